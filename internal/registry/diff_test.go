package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/crawlkit/tracker/internal/model"
	"github.com/crawlkit/tracker/internal/store"
)

func newDiffFixture(t *testing.T) (*DiffEngine, *ObjectRegistry, *store.MemoryStore) {
	t.Helper()
	s := store.NewMemoryStore()
	objects := NewObjectRegistry(s, zap.NewNop())
	return NewDiffEngine(s, objects, zap.NewNop()), objects, s
}

func TestDiffEngine_ClassifiesNewAndOutdated(t *testing.T) {
	engine, objects, _ := newDiffFixture(t)
	ctx := context.Background()

	// Processed set {o1, o2, o3}.
	for _, id := range []string{"o1", "o2", "o3"} {
		require.NoError(t, objects.InsertInProcess(ctx, &model.Object{ID: id, ClassID: "x"}))
		require.NoError(t, objects.InsertProcessed(ctx, &model.Object{ID: id, ClassID: "x"}))
	}

	result, err := engine.Diff(ctx, "x", []string{"o2", "o3", "o4"})
	require.NoError(t, err)
	assert.Equal(t, []string{"o4"}, result.New)
	assert.Equal(t, []string{"o1"}, result.Outdated)
}

func TestDiffEngine_InProcessObjectsAreNotNew(t *testing.T) {
	engine, objects, _ := newDiffFixture(t)
	ctx := context.Background()

	require.NoError(t, objects.InsertInProcess(ctx, &model.Object{ID: "o1", ClassID: "x"}))

	result, err := engine.Diff(ctx, "x", []string{"o1", "o2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"o2"}, result.New)
	assert.Empty(t, result.Outdated)
}

// A snapshot equal to everything tracked yields an empty diff.
func TestDiffEngine_RoundTrip(t *testing.T) {
	engine, objects, _ := newDiffFixture(t)
	ctx := context.Background()

	require.NoError(t, objects.InsertInProcess(ctx, &model.Object{ID: "o1", ClassID: "x"}))
	require.NoError(t, objects.InsertInProcess(ctx, &model.Object{ID: "o2", ClassID: "x"}))
	require.NoError(t, objects.InsertProcessed(ctx, &model.Object{ID: "o2", ClassID: "x"}))

	all, err := objects.GetAllObjects(ctx, "x")
	require.NoError(t, err)
	observed := make([]string, 0, len(all))
	for id := range all {
		observed = append(observed, id)
	}

	result, err := engine.Diff(ctx, "x", observed)
	require.NoError(t, err)
	assert.Empty(t, result.New)
	assert.Empty(t, result.Outdated)
}

func TestDiffEngine_RemoveOutdatedObjects(t *testing.T) {
	engine, objects, _ := newDiffFixture(t)
	ctx := context.Background()

	for _, id := range []string{"o1", "o2", "o3"} {
		require.NoError(t, objects.InsertInProcess(ctx, &model.Object{ID: id, ClassID: "x"}))
		require.NoError(t, objects.InsertProcessed(ctx, &model.Object{ID: id, ClassID: "x"}))
	}

	observed := []string{"o2", "o3", "o4"}
	require.NoError(t, engine.RemoveOutdatedObjects(ctx, "x", observed))

	processed, err := objects.GetProcessed(ctx, "x")
	require.NoError(t, err)
	assert.Len(t, processed, 2)
	assert.Contains(t, processed, "o2")
	assert.Contains(t, processed, "o3")
	assert.NotContains(t, processed, "o1")
}

func TestDiffEngine_RemoveOutdatedObjects_Idempotent(t *testing.T) {
	engine, objects, _ := newDiffFixture(t)
	ctx := context.Background()

	for _, id := range []string{"o1", "o2"} {
		require.NoError(t, objects.InsertInProcess(ctx, &model.Object{ID: id, ClassID: "x"}))
		require.NoError(t, objects.InsertProcessed(ctx, &model.Object{ID: id, ClassID: "x"}))
	}

	observed := []string{"o2"}
	require.NoError(t, engine.RemoveOutdatedObjects(ctx, "x", observed))
	require.NoError(t, engine.RemoveOutdatedObjects(ctx, "x", observed))

	processed, err := objects.GetProcessed(ctx, "x")
	require.NoError(t, err)
	assert.Len(t, processed, 1)
	assert.Contains(t, processed, "o2")
}

func TestDiffEngine_EmptyObserved(t *testing.T) {
	engine, objects, _ := newDiffFixture(t)
	ctx := context.Background()

	require.NoError(t, objects.InsertInProcess(ctx, &model.Object{ID: "o1", ClassID: "x"}))
	require.NoError(t, objects.InsertProcessed(ctx, &model.Object{ID: "o1", ClassID: "x"}))

	result, err := engine.Diff(ctx, "x", nil)
	require.NoError(t, err)
	assert.Empty(t, result.New)
	assert.Equal(t, []string{"o1"}, result.Outdated)
}
