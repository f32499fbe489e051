package registry

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/crawlkit/tracker/internal/keys"
	"github.com/crawlkit/tracker/internal/store"
)

// DiffEngine classifies a freshly observed object snapshot against the
// object registry's sets: objects never seen before are new, processed
// objects missing from the snapshot are outdated. Pure set algebra
// against the store's authoritative sets; no client-side cache.
type DiffEngine struct {
	store   store.Store
	objects *ObjectRegistry
	logger  *zap.Logger
}

// DiffResult holds the classification of one observed snapshot.
// Slices are sorted for deterministic iteration.
type DiffResult struct {
	New      []string
	Outdated []string
}

// NewDiffEngine creates a diff engine over an object registry
func NewDiffEngine(s store.Store, objects *ObjectRegistry, logger *zap.Logger) *DiffEngine {
	return &DiffEngine{
		store:   s,
		objects: objects,
		logger:  logger,
	}
}

// Diff computes which observed objects are new and which previously
// processed objects are no longer observed.
func (e *DiffEngine) Diff(ctx context.Context, classID string, observed []string) (*DiffResult, error) {
	if err := keys.ValidateID(classID); err != nil {
		return nil, err
	}

	tracked, err := e.objects.GetAllObjects(ctx, classID)
	if err != nil {
		return nil, fmt.Errorf("failed to read tracked objects for class %s: %w", classID, err)
	}
	processed, err := e.objects.GetProcessed(ctx, classID)
	if err != nil {
		return nil, fmt.Errorf("failed to read processed objects for class %s: %w", classID, err)
	}

	observedSet := make(map[string]struct{}, len(observed))
	for _, id := range observed {
		observedSet[id] = struct{}{}
	}

	result := &DiffResult{New: []string{}, Outdated: []string{}}
	for id := range observedSet {
		if _, ok := tracked[id]; !ok {
			result.New = append(result.New, id)
		}
	}
	for id := range processed {
		if _, ok := observedSet[id]; !ok {
			result.Outdated = append(result.Outdated, id)
		}
	}
	sort.Strings(result.New)
	sort.Strings(result.Outdated)

	e.logger.Debug("Computed object diff",
		zap.String("class_id", classID),
		zap.Int("observed", len(observedSet)),
		zap.Int("new", len(result.New)),
		zap.Int("outdated", len(result.Outdated)))

	return result, nil
}

// RemoveOutdatedObjects removes every outdated object from the class's
// processed set, one watched transaction per object so each removal is
// independently retryable. Idempotent: removing an already-removed
// member is a no-op.
func (e *DiffEngine) RemoveOutdatedObjects(ctx context.Context, classID string, observed []string) error {
	result, err := e.Diff(ctx, classID, observed)
	if err != nil {
		return err
	}

	processedKey := keys.ProcessedObjects(classID)
	for _, id := range result.Outdated {
		objectID := id
		err := e.store.Watch(ctx, func(batch store.Batch) error {
			batch.ZRem(processedKey, objectID)
			return nil
		}, processedKey)
		if err != nil {
			return fmt.Errorf("failed to remove outdated object %s: %w", objectID, err)
		}

		e.logger.Debug("Removed outdated object",
			zap.String("object_id", objectID),
			zap.String("class_id", classID))
	}
	return nil
}
