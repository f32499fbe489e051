package store

import "context"

// Store is the key-value store surface the registries depend on: hash
// get/set, sorted-set add/remove/range/score/cardinality, set add,
// atomic field increment, and the watch+commit transaction primitive.
type Store interface {
	// HGetAll reads a full hash. A missing key yields an empty map.
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	// HSet writes the given fields onto a hash, creating it if absent.
	HSet(ctx context.Context, key string, fields map[string]string) error

	// HIncrBy atomically increments an integer hash field and returns
	// the post-increment value.
	HIncrBy(ctx context.Context, key, field string, incr int64) (int64, error)

	// ZScore reads the score of a member in a sorted set. The boolean
	// is false when the member is not present.
	ZScore(ctx context.Context, key, member string) (float64, bool, error)

	// ZCard returns the cardinality of a sorted set.
	ZCard(ctx context.Context, key string) (int64, error)

	// ZRange reads members of a sorted set by rank, ascending score.
	ZRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	// ZRangeByScoreAsc reads up to count members across the whole score
	// range, lowest score first.
	ZRangeByScoreAsc(ctx context.Context, key string, count int64) ([]string, error)

	// SAdd adds a member to an unordered set.
	SAdd(ctx context.Context, key, member string) error

	// SMembers reads an unordered set.
	SMembers(ctx context.Context, key string) ([]string, error)

	// Watch declares watchKeys, invokes fn to enqueue a batch of
	// mutations, then submits the batch as one all-or-nothing unit.
	// If any watched key was modified by another party between the
	// declaration and the submission, nothing is applied and Watch
	// returns an error carrying the Conflict code.
	Watch(ctx context.Context, fn func(Batch) error, watchKeys ...string) error

	// Ping checks the store connection.
	Ping(ctx context.Context) error

	// Close releases the underlying connection.
	Close() error
}

// Batch collects mutations that commit atomically at the end of a
// watched transaction. Enqueueing never fails; errors surface from
// Watch when the batch is submitted.
type Batch interface {
	HSet(key string, fields map[string]string)
	ZAdd(key string, score float64, member string)
	ZRem(key string, member string)
	SAdd(key, member string)
}
