package config

import (
	"errors"
	"time"
)

// Config represents the tracker daemon configuration
type Config struct {
	Redis   RedisConfig   `mapstructure:"redis"`
	Worker  WorkerConfig  `mapstructure:"worker"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// RedisConfig represents store connection configuration
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// WorkerConfig represents the reconciliation worker configuration
type WorkerConfig struct {
	WorkerID        string        `mapstructure:"worker_id"`
	ClassTypes      []string      `mapstructure:"class_types"`
	BatchSize       int64         `mapstructure:"batch_size"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	MaxRetries      int           `mapstructure:"max_retries"`
	RetryBackoff    time.Duration `mapstructure:"retry_backoff"`
	RescheduleAfter time.Duration `mapstructure:"reschedule_after"`
}

// MetricsConfig represents Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Redis.Host == "" {
		return errors.New("redis.host is required")
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		return errors.New("redis.port must be between 1 and 65535")
	}
	if len(c.Worker.ClassTypes) == 0 {
		return errors.New("worker.class_types must name at least one class type")
	}
	if c.Worker.BatchSize <= 0 {
		return errors.New("worker.batch_size must be positive")
	}
	if c.Worker.PollInterval <= 0 {
		return errors.New("worker.poll_interval must be positive")
	}
	if c.Worker.MaxRetries < 0 {
		return errors.New("worker.max_retries must not be negative")
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	return nil
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	return &Config{
		Redis: RedisConfig{
			Host:     "localhost",
			Port:     6379,
			Password: "",
			DB:       0,
		},
		Worker: WorkerConfig{
			ClassTypes:      []string{"feed"},
			BatchSize:       10,
			PollInterval:    30 * time.Second,
			MaxRetries:      3,
			RetryBackoff:    200 * time.Millisecond,
			RescheduleAfter: 15 * time.Minute,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
