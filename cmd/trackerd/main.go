package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/crawlkit/tracker/internal/config"
	"github.com/crawlkit/tracker/internal/health"
	"github.com/crawlkit/tracker/internal/keys"
	"github.com/crawlkit/tracker/internal/metrics"
	"github.com/crawlkit/tracker/internal/model"
	"github.com/crawlkit/tracker/internal/registry"
	"github.com/crawlkit/tracker/internal/service"
	"github.com/crawlkit/tracker/internal/store"
)

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("Starting tracker daemon")

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	logger.Info("Configuration loaded",
		zap.String("redis_host", cfg.Redis.Host),
		zap.Int("redis_port", cfg.Redis.Port),
		zap.Int("redis_db", cfg.Redis.DB),
		zap.Strings("class_types", cfg.Worker.ClassTypes))

	// Initialize metrics
	m := metrics.NewMetrics()
	logger.Info("Metrics initialized")

	// Connect to the store
	addr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	var kv *store.RedisStore
	if cfg.Redis.Password != "" {
		kv, err = store.ConnectSecure(addr, cfg.Redis.DB, cfg.Redis.Password, logger)
	} else {
		kv, err = store.Connect(addr, cfg.Redis.DB, logger)
	}
	if err != nil {
		logger.Fatal("Failed to connect to store", zap.Error(err))
	}
	defer kv.Close()
	logger.Info("Store connected", zap.String("addr", addr))

	// Initialize registries
	classRegistry := registry.NewClassRegistry(kv, logger)
	objectRegistry := registry.NewObjectRegistry(kv, logger)
	diffEngine := registry.NewDiffEngine(kv, objectRegistry, logger)

	// The default lister reports the objects already indexed for the
	// class; deployments embed this daemon with their own lister and
	// processor wired in.
	lister := func(ctx context.Context, class *model.Class) ([]string, error) {
		return kv.SMembers(ctx, keys.ClassObjects(class.ID))
	}

	worker := service.NewTrackerService(
		classRegistry,
		objectRegistry,
		diffEngine,
		lister,
		nil,
		service.Options{
			WorkerID:        cfg.Worker.WorkerID,
			ClassTypes:      cfg.Worker.ClassTypes,
			BatchSize:       cfg.Worker.BatchSize,
			PollInterval:    cfg.Worker.PollInterval,
			MaxRetries:      cfg.Worker.MaxRetries,
			RetryBackoff:    cfg.Worker.RetryBackoff,
			RescheduleAfter: cfg.Worker.RescheduleAfter,
		},
		m,
		logger,
	)

	// Metrics and health HTTP server
	var httpServer *http.Server
	if cfg.Metrics.Enabled {
		checker := health.NewHealthChecker(kv, logger)
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, promhttp.Handler())
		mux.HandleFunc("/health/live", checker.LivenessHandler)
		mux.HandleFunc("/health/ready", checker.ReadinessHandler)

		httpServer = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler: mux,
		}
		go func() {
			logger.Info("Metrics server listening", zap.Int("port", cfg.Metrics.Port))
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("Metrics server failed", zap.Error(err))
			}
		}()
	}

	// Run the worker until interrupted
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- worker.Run(ctx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
		cancel()
		<-done
	case err := <-done:
		if err != nil && err != context.Canceled {
			logger.Error("Worker exited", zap.Error(err))
		}
	}

	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Metrics server shutdown failed", zap.Error(err))
		}
	}

	logger.Info("Tracker daemon stopped")
}
