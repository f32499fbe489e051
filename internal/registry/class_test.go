package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	errs "github.com/crawlkit/tracker/internal/errors"
	"github.com/crawlkit/tracker/internal/keys"
	"github.com/crawlkit/tracker/internal/model"
	"github.com/crawlkit/tracker/internal/store"
)

func newClassFixture(t *testing.T) (*ClassRegistry, *store.MemoryStore) {
	t.Helper()
	s := store.NewMemoryStore()
	return NewClassRegistry(s, zap.NewNop()), s
}

func seedClass(t *testing.T, s *store.MemoryStore, class *model.Class) {
	t.Helper()
	require.NoError(t, s.HSet(context.Background(), keys.Class(class.ID), class.Hash()))
}

func TestClassRegistry_GetClass(t *testing.T) {
	r, s := newClassFixture(t)
	ctx := context.Background()

	seedClass(t, s, &model.Class{ID: "c1", Type: "feed", Fields: map[string]string{"url": "https://example.com/feed"}})

	class, err := r.GetClass(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "c1", class.ID)
	assert.Equal(t, "feed", class.Type)
	assert.Equal(t, model.StatusIdle, class.Status)
	assert.Equal(t, "https://example.com/feed", class.Fields["url"])
}

func TestClassRegistry_GetClass_NotFound(t *testing.T) {
	r, _ := newClassFixture(t)

	_, err := r.GetClass(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errs.IsNotFound(err))
}

func TestClassRegistry_GetClass_InvalidID(t *testing.T) {
	r, _ := newClassFixture(t)

	_, err := r.GetClass(context.Background(), "bad:id")
	require.Error(t, err)
	assert.True(t, errs.IsInvalidArgument(err))
}

func TestClassRegistry_TakeNewClasses_OrderedByScore(t *testing.T) {
	r, s := newClassFixture(t)
	ctx := context.Background()

	for _, c := range []struct {
		id    string
		score float64
	}{
		{"A", 10},
		{"B", 20},
		{"C", 30},
	} {
		seedClass(t, s, &model.Class{ID: c.id, Type: "feed"})
		require.NoError(t, r.UpdateClassScore(ctx, c.id, c.score, "feed"))
	}

	classes, err := r.TakeNewClasses(ctx, 2, "feed")
	require.NoError(t, err)
	require.Len(t, classes, 2)
	assert.Equal(t, "A", classes[0].ID)
	assert.Equal(t, "B", classes[1].ID)
}

func TestClassRegistry_TakeNewClasses_EmptyQueue(t *testing.T) {
	r, _ := newClassFixture(t)

	_, err := r.TakeNewClasses(context.Background(), 5, "feed")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoneAvailable)
	assert.True(t, errs.IsNotFound(err))
}

func TestClassRegistry_UpdateClassStatus_RequiresClassID(t *testing.T) {
	r, _ := newClassFixture(t)

	err := r.UpdateClassStatus(context.Background(), map[string]string{"status": "1"})
	require.Error(t, err)
	assert.True(t, errs.IsInvalidArgument(err))
}

// The status field and the in-process membership must always agree:
// status==1 iff the class is a member of classes-in-process:<type>.
func TestClassRegistry_ProcessAndRemove_KeepInvariant(t *testing.T) {
	r, s := newClassFixture(t)
	ctx := context.Background()

	class := &model.Class{ID: "c1", Type: "feed"}
	seedClass(t, s, class)

	require.NoError(t, r.ProcessClass(ctx, class))

	got, err := r.GetClass(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusInProcess, got.Status)
	_, inSet, err := s.ZScore(ctx, keys.ClassesInProcess("feed"), "c1")
	require.NoError(t, err)
	assert.True(t, inSet)

	require.NoError(t, r.RemoveClass(ctx, "c1", "feed"))

	got, err = r.GetClass(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusIdle, got.Status)
	_, inSet, err = s.ZScore(ctx, keys.ClassesInProcess("feed"), "c1")
	require.NoError(t, err)
	assert.False(t, inSet)
}

func TestClassRegistry_ProcessClass_ConcurrentClaimConflicts(t *testing.T) {
	r, s := newClassFixture(t)
	ctx := context.Background()

	class := &model.Class{ID: "c1", Type: "feed"}
	seedClass(t, s, class)

	// A competing worker claims the class inside our optimistic window.
	other := NewClassRegistry(s, zap.NewNop())
	s.BeforeExec = func() {
		s.BeforeExec = nil
		require.NoError(t, other.ProcessClass(ctx, class))
	}

	err := r.ProcessClass(ctx, class)
	require.Error(t, err)
	assert.True(t, errs.IsConflict(err))

	// The competing claim holds; the invariant still does.
	got, err := r.GetClass(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusInProcess, got.Status)
}

func TestClassRegistry_CheckClassScore(t *testing.T) {
	r, s := newClassFixture(t)
	ctx := context.Background()

	seedClass(t, s, &model.Class{ID: "c1", Type: "feed"})
	require.NoError(t, r.UpdateClassScore(ctx, "c1", 42, "feed"))

	score, err := r.CheckClassScore(ctx, "c1", "feed")
	require.NoError(t, err)
	assert.Equal(t, 42.0, score)

	_, err = r.CheckClassScore(ctx, "unqueued", "feed")
	require.Error(t, err)
	assert.True(t, errs.IsNotFound(err))
}

func TestClassRegistry_UpdateClass(t *testing.T) {
	r, s := newClassFixture(t)
	ctx := context.Background()

	seedClass(t, s, &model.Class{ID: "c1", Type: "feed"})

	updated := &model.Class{
		ID:     "c1",
		Type:   "feed",
		Status: model.StatusIdle,
		Fields: map[string]string{"url": "https://example.com/v2"},
	}
	require.NoError(t, r.UpdateClass(ctx, updated))

	got, err := r.GetClass(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/v2", got.Fields["url"])
}

func TestClassRegistry_ProcessClass_ScoreIsClaimTime(t *testing.T) {
	r, s := newClassFixture(t)
	ctx := context.Background()

	claimedAt := time.Unix(1700000000, 0)
	r.now = func() time.Time { return claimedAt }

	class := &model.Class{ID: "c1", Type: "feed"}
	seedClass(t, s, class)
	require.NoError(t, r.ProcessClass(ctx, class))

	score, ok, err := s.ZScore(ctx, keys.ClassesInProcess("feed"), "c1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, float64(claimedAt.Unix()), score)
}
