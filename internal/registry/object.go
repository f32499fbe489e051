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

// ObjectRegistry tracks object records, their per-class in-process and
// processed sets, the class-objects index, and the global id counter.
type ObjectRegistry struct {
	store  store.Store
	logger *zap.Logger
	now    func() time.Time
}

// NewObjectRegistry creates an object registry bound to a store session
func NewObjectRegistry(s store.Store, logger *zap.Logger) *ObjectRegistry {
	return &ObjectRegistry{
		store:  s,
		logger: logger,
		now:    time.Now,
	}
}

// NewObjectID atomically increments the global counter and returns the
// post-increment value as the new object identifier. One round-trip;
// the increment reply is the value, so no separate read-back can go
// stale under concurrent increments.
func (r *ObjectRegistry) NewObjectID(ctx context.Context) (string, error) {
	id, err := r.store.HIncrBy(ctx, keys.ObjectCounter, keys.CounterField, 1)
	if err != nil {
		return "", fmt.Errorf("failed to allocate object id: %w", err)
	}
	return strconv.FormatInt(id, 10), nil
}

// IndexObject writes the owning class into the object's index hash
func (r *ObjectRegistry) IndexObject(ctx context.Context, object *model.Object) error {
	if err := validateObject(object); err != nil {
		return err
	}

	fields := map[string]string{model.FieldObjectClassID: object.ClassID}
	if err := r.store.HSet(ctx, keys.Object(object.ID), fields); err != nil {
		return fmt.Errorf("failed to index object %s: %w", object.ID, err)
	}
	return nil
}

// IndexClassObject adds the object to its class's object index set
func (r *ObjectRegistry) IndexClassObject(ctx context.Context, object *model.Object) error {
	if err := validateObject(object); err != nil {
		return err
	}

	if err := r.store.SAdd(ctx, keys.ClassObjects(object.ClassID), object.ID); err != nil {
		return fmt.Errorf("failed to index object %s for class %s: %w", object.ID, object.ClassID, err)
	}
	return nil
}

// InsertInProcess starts tracking an object: adds it to the class's
// in-process set with the current time as score, writes its index
// hash, and adds it to the class-objects index, all in one transaction
// watching the three keys involved.
func (r *ObjectRegistry) InsertInProcess(ctx context.Context, object *model.Object) error {
	if err := validateObject(object); err != nil {
		return err
	}

	score := float64(r.now().Unix())
	err := r.store.Watch(ctx, func(batch store.Batch) error {
		batch.ZAdd(keys.ObjectsInProcess(object.ClassID), score, object.ID)
		batch.HSet(keys.Object(object.ID), map[string]string{
			model.FieldObjectClassID: object.ClassID,
		})
		batch.SAdd(keys.ClassObjects(object.ClassID), object.ID)
		return nil
	}, keys.ObjectsInProcess(object.ClassID), keys.Object(object.ID), keys.ClassObjects(object.ClassID))
	if err != nil {
		return fmt.Errorf("failed to insert object %s as in-process: %w", object.ID, err)
	}

	r.logger.Debug("Object inserted as in-process",
		zap.String("object_id", object.ID),
		zap.String("class_id", object.ClassID))

	return nil
}

// GetInProcess reads the full in-process set for a class
func (r *ObjectRegistry) GetInProcess(ctx context.Context, classID string) (map[string]struct{}, error) {
	if err := keys.ValidateID(classID); err != nil {
		return nil, err
	}
	return r.readFullSet(ctx, keys.ObjectsInProcess(classID))
}

// InsertProcessed marks an object as processed: adds it to the class's
// processed set and removes it from the in-process set in one
// transaction watching both keys, so the two memberships stay mutually
// exclusive.
func (r *ObjectRegistry) InsertProcessed(ctx context.Context, object *model.Object) error {
	if err := validateObject(object); err != nil {
		return err
	}

	score := float64(r.now().Unix())
	err := r.store.Watch(ctx, func(batch store.Batch) error {
		batch.ZAdd(keys.ProcessedObjects(object.ClassID), score, object.ID)
		batch.ZRem(keys.ObjectsInProcess(object.ClassID), object.ID)
		return nil
	}, keys.ProcessedObjects(object.ClassID), keys.ObjectsInProcess(object.ClassID))
	if err != nil {
		return fmt.Errorf("failed to insert object %s as processed: %w", object.ID, err)
	}

	r.logger.Debug("Object inserted as processed",
		zap.String("object_id", object.ID),
		zap.String("class_id", object.ClassID))

	return nil
}

// GetProcessed reads the full processed set for a class
func (r *ObjectRegistry) GetProcessed(ctx context.Context, classID string) (map[string]struct{}, error) {
	if err := keys.ValidateID(classID); err != nil {
		return nil, err
	}
	return r.readFullSet(ctx, keys.ProcessedObjects(classID))
}

// GetAllObjects returns the union of the in-process and processed sets,
// everything currently tracked for the class.
func (r *ObjectRegistry) GetAllObjects(ctx context.Context, classID string) (map[string]struct{}, error) {
	inProcess, err := r.GetInProcess(ctx, classID)
	if err != nil {
		return nil, err
	}
	processed, err := r.GetProcessed(ctx, classID)
	if err != nil {
		return nil, err
	}

	all := make(map[string]struct{}, len(inProcess)+len(processed))
	for id := range inProcess {
		all[id] = struct{}{}
	}
	for id := range processed {
		all[id] = struct{}{}
	}
	return all, nil
}

// readFullSet reads the cardinality of a sorted set, then its whole
// range.
func (r *ObjectRegistry) readFullSet(ctx context.Context, key string) (map[string]struct{}, error) {
	card, err := r.store.ZCard(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read cardinality of %s: %w", key, err)
	}
	if card == 0 {
		return map[string]struct{}{}, nil
	}

	members, err := r.store.ZRange(ctx, key, 0, card-1)
	if err != nil {
		return nil, fmt.Errorf("failed to read members of %s: %w", key, err)
	}

	set := make(map[string]struct{}, len(members))
	for _, member := range members {
		set[member] = struct{}{}
	}
	return set, nil
}

func validateObject(object *model.Object) error {
	if object == nil {
		return errs.InvalidArgument("object must not be nil")
	}
	if err := keys.ValidateID(object.ID); err != nil {
		return err
	}
	return keys.ValidateID(object.ClassID)
}
