package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	errs "github.com/crawlkit/tracker/internal/errors"
	"github.com/crawlkit/tracker/internal/metrics"
	"github.com/crawlkit/tracker/internal/model"
	"github.com/crawlkit/tracker/internal/registry"
)

// ClassTracker is the class-registry surface the worker depends on
type ClassTracker interface {
	TakeNewClasses(ctx context.Context, n int64, classType string) ([]*model.Class, error)
	ProcessClass(ctx context.Context, class *model.Class) error
	RemoveClass(ctx context.Context, classID, classType string) error
	UpdateClassScore(ctx context.Context, classID string, score float64, classType string) error
}

// ObjectTracker is the object-registry surface the worker depends on
type ObjectTracker interface {
	NewObjectID(ctx context.Context) (string, error)
	InsertInProcess(ctx context.Context, object *model.Object) error
	InsertProcessed(ctx context.Context, object *model.Object) error
	GetInProcess(ctx context.Context, classID string) (map[string]struct{}, error)
}

// Differ is the diff-engine surface the worker depends on
type Differ interface {
	Diff(ctx context.Context, classID string, observed []string) (*registry.DiffResult, error)
	RemoveOutdatedObjects(ctx context.Context, classID string, observed []string) error
}

// Lister produces the set of object identifiers currently present in a
// class, e.g. by listing a feed or crawling a directory.
type Lister func(ctx context.Context, class *model.Class) ([]string, error)

// Processor performs the actual work on one in-process object. A nil
// Processor leaves objects in-process for another consumer to finish.
type Processor func(ctx context.Context, object *model.Object) error

// TrackerService drives the class/object lifecycle: it claims classes
// from the monitored queue, reconciles their observed object sets
// through the diff engine, and releases them. Conflicts from the
// optimistic transactions are retried with a bounded backoff; a class
// lost to a concurrent claim is skipped, not failed.
type TrackerService struct {
	workerID     string
	classes      ClassTracker
	objects      ObjectTracker
	differ       Differ
	lister       Lister
	processor    Processor
	classTypes   []string
	batchSize    int64
	pollInterval time.Duration
	maxRetries   int
	retryBackoff time.Duration
	reschedule   time.Duration
	metrics      *metrics.Metrics
	logger       *zap.Logger
}

// Options configures a TrackerService
type Options struct {
	WorkerID        string
	ClassTypes      []string
	BatchSize       int64
	PollInterval    time.Duration
	MaxRetries      int
	RetryBackoff    time.Duration
	RescheduleAfter time.Duration
}

// NewTrackerService creates a new tracker service
func NewTrackerService(
	classes ClassTracker,
	objects ObjectTracker,
	differ Differ,
	lister Lister,
	processor Processor,
	opts Options,
	m *metrics.Metrics,
	logger *zap.Logger,
) *TrackerService {
	if opts.WorkerID == "" {
		opts.WorkerID = uuid.New().String()
	}
	if opts.BatchSize == 0 {
		opts.BatchSize = 10
	}
	if opts.RetryBackoff == 0 {
		opts.RetryBackoff = 200 * time.Millisecond
	}

	return &TrackerService{
		workerID:     opts.WorkerID,
		classes:      classes,
		objects:      objects,
		differ:       differ,
		lister:       lister,
		processor:    processor,
		classTypes:   opts.ClassTypes,
		batchSize:    opts.BatchSize,
		pollInterval: opts.PollInterval,
		maxRetries:   opts.MaxRetries,
		retryBackoff: opts.RetryBackoff,
		reschedule:   opts.RescheduleAfter,
		metrics:      m,
		logger:       logger.With(zap.String("worker_id", opts.WorkerID)),
	}
}

// Run polls the monitored queues until the context is canceled
func (s *TrackerService) Run(ctx context.Context) error {
	s.logger.Info("Tracker worker started",
		zap.Strings("class_types", s.classTypes),
		zap.Duration("poll_interval", s.pollInterval))

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		for _, classType := range s.classTypes {
			if err := s.RunOnce(ctx, classType); err != nil {
				s.logger.Error("Reconciliation pass failed",
					zap.String("class_type", classType),
					zap.Error(err))
			}
		}

		select {
		case <-ctx.Done():
			s.logger.Info("Tracker worker stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce takes one batch of classes for a class type and reconciles
// each. An empty monitored queue is not an error.
func (s *TrackerService) RunOnce(ctx context.Context, classType string) error {
	classes, err := s.classes.TakeNewClasses(ctx, s.batchSize, classType)
	if err != nil {
		if errs.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to take classes for %s: %w", classType, err)
	}

	for _, class := range classes {
		if err := s.reconcileClass(ctx, class); err != nil {
			s.logger.Error("Failed to reconcile class",
				zap.String("class_id", class.ID),
				zap.Error(err))
		}
	}
	return nil
}

// reconcileClass claims one class, reconciles its object sets, and
// releases it.
func (s *TrackerService) reconcileClass(ctx context.Context, class *model.Class) error {
	err := s.retryOnConflict(ctx, "process_class", func() error {
		return s.classes.ProcessClass(ctx, class)
	})
	if errs.IsConflict(err) {
		// Another worker owns this class now.
		s.metrics.ClassesSkipped.Inc()
		s.logger.Debug("Skipping class claimed by another worker",
			zap.String("class_id", class.ID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to claim class %s: %w", class.ID, err)
	}
	s.metrics.ClassesClaimed.Inc()

	reconcileErr := s.reconcileObjects(ctx, class)

	// Always reschedule and release, even after a failed pass, so the
	// class is neither stuck in-process nor dropped from monitoring.
	score := float64(time.Now().Add(s.reschedule).Unix())
	if err := s.retryOnConflict(ctx, "update_class_score", func() error {
		return s.classes.UpdateClassScore(ctx, class.ID, score, class.Type)
	}); err != nil {
		s.logger.Error("Failed to reschedule class",
			zap.String("class_id", class.ID),
			zap.Error(err))
	}
	if err := s.retryOnConflict(ctx, "remove_class", func() error {
		return s.classes.RemoveClass(ctx, class.ID, class.Type)
	}); err != nil {
		s.logger.Error("Failed to release class",
			zap.String("class_id", class.ID),
			zap.Error(err))
	}

	return reconcileErr
}

// reconcileObjects lists the class, classifies its objects, inserts the
// new ones, processes what is in-process, and drops outdated entries.
func (s *TrackerService) reconcileObjects(ctx context.Context, class *model.Class) error {
	observed, err := s.lister(ctx, class)
	if err != nil {
		return fmt.Errorf("failed to list objects for class %s: %w", class.ID, err)
	}

	diff, err := s.differ.Diff(ctx, class.ID, observed)
	if err != nil {
		return fmt.Errorf("failed to diff class %s: %w", class.ID, err)
	}

	for _, objectID := range diff.New {
		object := &model.Object{ID: objectID, ClassID: class.ID}
		if err := s.retryOnConflict(ctx, "insert_in_process", func() error {
			return s.objects.InsertInProcess(ctx, object)
		}); err != nil {
			return fmt.Errorf("failed to insert object %s: %w", objectID, err)
		}
		s.metrics.ObjectsInserted.Inc()
	}

	if s.processor != nil {
		if err := s.processInFlight(ctx, class); err != nil {
			return err
		}
	}

	if err := s.retryOnConflict(ctx, "remove_outdated_objects", func() error {
		return s.differ.RemoveOutdatedObjects(ctx, class.ID, observed)
	}); err != nil {
		return fmt.Errorf("failed to remove outdated objects for class %s: %w", class.ID, err)
	}
	s.metrics.ObjectsOutdated.Add(float64(len(diff.Outdated)))

	s.logger.Info("Class reconciled",
		zap.String("class_id", class.ID),
		zap.Int("observed", len(observed)),
		zap.Int("new", len(diff.New)),
		zap.Int("outdated", len(diff.Outdated)))

	return nil
}

// processInFlight runs the processor over every in-process object of a
// class and marks the successful ones processed.
func (s *TrackerService) processInFlight(ctx context.Context, class *model.Class) error {
	inProcess, err := s.objects.GetInProcess(ctx, class.ID)
	if err != nil {
		return fmt.Errorf("failed to read in-process objects for class %s: %w", class.ID, err)
	}

	for objectID := range inProcess {
		object := &model.Object{ID: objectID, ClassID: class.ID}
		if err := s.processor(ctx, object); err != nil {
			s.logger.Warn("Object processing failed, leaving in-process",
				zap.String("object_id", objectID),
				zap.String("class_id", class.ID),
				zap.Error(err))
			continue
		}
		if err := s.retryOnConflict(ctx, "insert_processed", func() error {
			return s.objects.InsertProcessed(ctx, object)
		}); err != nil {
			return fmt.Errorf("failed to mark object %s processed: %w", objectID, err)
		}
	}
	return nil
}

// MintObject allocates a fresh object identifier from the global
// counter and starts tracking it as in-process for the given class.
// Producer-side entry point for work items that do not yet have an
// identity of their own.
func (s *TrackerService) MintObject(ctx context.Context, classID string) (*model.Object, error) {
	objectID, err := s.objects.NewObjectID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate object id: %w", err)
	}

	object := &model.Object{ID: objectID, ClassID: classID}
	if err := s.retryOnConflict(ctx, "insert_in_process", func() error {
		return s.objects.InsertInProcess(ctx, object)
	}); err != nil {
		return nil, fmt.Errorf("failed to insert minted object %s: %w", objectID, err)
	}
	s.metrics.ObjectsInserted.Inc()

	return object, nil
}

// retryOnConflict retries fn on Conflict errors with a fixed backoff,
// up to maxRetries additional attempts. Any other error, and the last
// conflict, surface to the caller.
func (s *TrackerService) retryOnConflict(ctx context.Context, op string, fn func() error) error {
	start := time.Now()
	defer func() {
		s.metrics.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()

	var err error
	for attempt := 0; ; attempt++ {
		s.metrics.OperationsTotal.WithLabelValues(op).Inc()
		err = fn()
		if err == nil {
			return nil
		}
		if !errs.IsConflict(err) {
			s.metrics.OperationErrors.WithLabelValues(op, errs.GetCode(err).String()).Inc()
			return err
		}

		s.metrics.ConflictsTotal.WithLabelValues(op).Inc()
		if attempt >= s.maxRetries {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.retryBackoff):
		}
	}
}
