// Package registry implements the class and object lifecycle trackers
// over the key-value store, plus the diff engine that reconciles
// observed object sets against tracked state. Every multi-step state
// transition is one watched transaction; a conflict means a concurrent
// worker won and the caller must re-read and retry or skip.
package registry

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	errs "github.com/crawlkit/tracker/internal/errors"
	"github.com/crawlkit/tracker/internal/keys"
	"github.com/crawlkit/tracker/internal/model"
	"github.com/crawlkit/tracker/internal/store"
)

// ErrNoneAvailable is returned by TakeNewClasses when the monitored
// queue is empty, so callers can tell an empty queue from a store
// failure.
var ErrNoneAvailable = errs.NotFound("no classes available in monitored queue")

// ClassRegistry tracks class records and their monitored/in-process
// membership. It holds no state of its own; the store is the system
// of record.
type ClassRegistry struct {
	store  store.Store
	logger *zap.Logger
	now    func() time.Time
}

// NewClassRegistry creates a class registry bound to a store session
func NewClassRegistry(s store.Store, logger *zap.Logger) *ClassRegistry {
	return &ClassRegistry{
		store:  s,
		logger: logger,
		now:    time.Now,
	}
}

// GetClass reads a class record from its hash
func (r *ClassRegistry) GetClass(ctx context.Context, classID string) (*model.Class, error) {
	if err := keys.ValidateID(classID); err != nil {
		return nil, err
	}

	hash, err := r.store.HGetAll(ctx, keys.Class(classID))
	if err != nil {
		return nil, fmt.Errorf("failed to read class %s: %w", classID, err)
	}
	if len(hash) == 0 {
		return nil, errs.NotFound(fmt.Sprintf("class %s does not exist", classID))
	}
	return model.ClassFromHash(hash), nil
}

// TakeNewClasses reads up to n classes from the monitored queue for
// classType, soonest-due (lowest score) first, and resolves each to
// its full record. Returns ErrNoneAvailable when the queue is empty.
func (r *ClassRegistry) TakeNewClasses(ctx context.Context, n int64, classType string) ([]*model.Class, error) {
	if err := keys.ValidateID(classType); err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, errs.InvalidArgument("n must be positive")
	}

	ids, err := r.store.ZRangeByScoreAsc(ctx, keys.ClassesMonitored(classType), n)
	if err != nil {
		return nil, fmt.Errorf("failed to read monitored queue for %s: %w", classType, err)
	}
	if len(ids) == 0 {
		return nil, ErrNoneAvailable
	}

	classes := make([]*model.Class, 0, len(ids))
	for _, id := range ids {
		class, err := r.GetClass(ctx, id)
		if err != nil {
			return nil, err
		}
		classes = append(classes, class)
	}

	r.logger.Debug("Took classes from monitored queue",
		zap.String("class_type", classType),
		zap.Int("count", len(classes)))

	return classes, nil
}

// UpdateClassStatus writes the given fields onto the class hash. The
// field map must carry the class id.
func (r *ClassRegistry) UpdateClassStatus(ctx context.Context, fields map[string]string) error {
	classID, ok := fields[model.FieldClassID]
	if !ok {
		return errs.InvalidArgument("field map must contain class_id")
	}
	if err := keys.ValidateID(classID); err != nil {
		return err
	}

	if err := r.store.HSet(ctx, keys.Class(classID), fields); err != nil {
		return fmt.Errorf("failed to update class %s: %w", classID, err)
	}
	return nil
}

// ProcessClass claims a class: adds it to the in-process set for its
// type with the current time as score and marks status=1, in one
// transaction watching the class hash. A concurrent claim on the same
// class invalidates the watch, so exactly one of two racing workers
// succeeds.
func (r *ClassRegistry) ProcessClass(ctx context.Context, class *model.Class) error {
	if err := keys.ValidateID(class.ID); err != nil {
		return err
	}
	if err := keys.ValidateID(class.Type); err != nil {
		return err
	}

	score := float64(r.now().Unix())
	err := r.store.Watch(ctx, func(batch store.Batch) error {
		batch.ZAdd(keys.ClassesInProcess(class.Type), score, class.ID)
		batch.HSet(keys.Class(class.ID), map[string]string{
			model.FieldClassID: class.ID,
			model.FieldStatus:  strconv.Itoa(model.StatusInProcess),
		})
		return nil
	}, keys.Class(class.ID))
	if err != nil {
		return fmt.Errorf("failed to claim class %s: %w", class.ID, err)
	}

	r.logger.Debug("Class claimed",
		zap.String("class_id", class.ID),
		zap.String("class_type", class.Type))

	return nil
}

// RemoveClass releases a class: removes it from the in-process set and
// marks status=0, in one transaction watching the in-process set.
func (r *ClassRegistry) RemoveClass(ctx context.Context, classID, classType string) error {
	if err := keys.ValidateID(classID); err != nil {
		return err
	}
	if err := keys.ValidateID(classType); err != nil {
		return err
	}

	err := r.store.Watch(ctx, func(batch store.Batch) error {
		batch.ZRem(keys.ClassesInProcess(classType), classID)
		batch.HSet(keys.Class(classID), map[string]string{
			model.FieldClassID: classID,
			model.FieldStatus:  strconv.Itoa(model.StatusIdle),
		})
		return nil
	}, keys.ClassesInProcess(classType))
	if err != nil {
		return fmt.Errorf("failed to release class %s: %w", classID, err)
	}

	r.logger.Debug("Class released",
		zap.String("class_id", classID),
		zap.String("class_type", classType))

	return nil
}

// UpdateClassScore re-scores a class in the monitored queue, watching
// the queue key. Used to schedule or reschedule a class.
func (r *ClassRegistry) UpdateClassScore(ctx context.Context, classID string, score float64, classType string) error {
	if err := keys.ValidateID(classID); err != nil {
		return err
	}
	if err := keys.ValidateID(classType); err != nil {
		return err
	}

	err := r.store.Watch(ctx, func(batch store.Batch) error {
		batch.ZAdd(keys.ClassesMonitored(classType), score, classID)
		return nil
	}, keys.ClassesMonitored(classType))
	if err != nil {
		return fmt.Errorf("failed to re-score class %s: %w", classID, err)
	}
	return nil
}

// CheckClassScore reads the current score of a class in the monitored
// queue. Returns a NotFound error when the class is not queued.
func (r *ClassRegistry) CheckClassScore(ctx context.Context, classID, classType string) (float64, error) {
	if err := keys.ValidateID(classID); err != nil {
		return 0, err
	}
	if err := keys.ValidateID(classType); err != nil {
		return 0, err
	}

	score, ok, err := r.store.ZScore(ctx, keys.ClassesMonitored(classType), classID)
	if err != nil {
		return 0, fmt.Errorf("failed to read score of class %s: %w", classID, err)
	}
	if !ok {
		return 0, errs.NotFound(fmt.Sprintf("class %s is not in the monitored queue for %s", classID, classType))
	}
	return score, nil
}

// UpdateClass overwrites the class hash with the full field map of the
// given class, watching the hash key.
func (r *ClassRegistry) UpdateClass(ctx context.Context, class *model.Class) error {
	if err := keys.ValidateID(class.ID); err != nil {
		return err
	}
	if err := keys.ValidateID(class.Type); err != nil {
		return err
	}

	err := r.store.Watch(ctx, func(batch store.Batch) error {
		batch.HSet(keys.Class(class.ID), class.Hash())
		return nil
	}, keys.Class(class.ID))
	if err != nil {
		return fmt.Errorf("failed to update class %s: %w", class.ID, err)
	}
	return nil
}
