package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	errs "github.com/crawlkit/tracker/internal/errors"
)

// connectTimeout bounds the ping issued while establishing a session.
const connectTimeout = 5 * time.Second

// RedisStore implements Store over a Redis connection. Its Watch method
// is the optimistic transaction executor: WATCH the declared keys, queue
// the batch with MULTI, and EXEC; Redis discards the whole batch when a
// watched key changed concurrently.
type RedisStore struct {
	client *redis.Client
	logger *zap.Logger
}

// Connect establishes an unauthenticated session to the store, bound to
// the selected database.
func Connect(addr string, db int, logger *zap.Logger) (*RedisStore, error) {
	return connect(&redis.Options{Addr: addr, DB: db}, logger)
}

// ConnectSecure establishes an authenticated session. It fails with an
// Unavailable error when the store rejects the connection or the
// credential; there is no silent fall-through to an unauthenticated
// session.
func ConnectSecure(addr string, db int, password string, logger *zap.Logger) (*RedisStore, error) {
	return connect(&redis.Options{Addr: addr, DB: db, Password: password}, logger)
}

func connect(opts *redis.Options, logger *zap.Logger) (*RedisStore, error) {
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errs.Unavailable("failed to connect to store", err)
	}

	return &RedisStore{client: client, logger: logger}, nil
}

// HGetAll reads a full hash
func (s *RedisStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	fields, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, storeError("HGETALL failed", err)
	}
	return fields, nil
}

// HSet writes fields onto a hash
func (s *RedisStore) HSet(ctx context.Context, key string, fields map[string]string) error {
	if err := s.client.HSet(ctx, key, flatten(fields)...).Err(); err != nil {
		return storeError("HSET failed", err)
	}
	return nil
}

// HIncrBy atomically increments a hash field and returns the new value
func (s *RedisStore) HIncrBy(ctx context.Context, key, field string, incr int64) (int64, error) {
	value, err := s.client.HIncrBy(ctx, key, field, incr).Result()
	if err != nil {
		return 0, storeError("HINCRBY failed", err)
	}
	return value, nil
}

// ZScore reads a member's score; the boolean is false when absent
func (s *RedisStore) ZScore(ctx context.Context, key, member string) (float64, bool, error) {
	score, err := s.client.ZScore(ctx, key, member).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, storeError("ZSCORE failed", err)
	}
	return score, true, nil
}

// ZCard returns the sorted-set cardinality
func (s *RedisStore) ZCard(ctx context.Context, key string) (int64, error) {
	n, err := s.client.ZCard(ctx, key).Result()
	if err != nil {
		return 0, storeError("ZCARD failed", err)
	}
	return n, nil
}

// ZRange reads members by rank, ascending score
func (s *RedisStore) ZRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	members, err := s.client.ZRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, storeError("ZRANGE failed", err)
	}
	return members, nil
}

// ZRangeByScoreAsc reads up to count members across the whole score
// range, lowest score first
func (s *RedisStore) ZRangeByScoreAsc(ctx context.Context, key string, count int64) ([]string, error) {
	members, err := s.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   "+inf",
		Count: count,
	}).Result()
	if err != nil {
		return nil, storeError("ZRANGEBYSCORE failed", err)
	}
	return members, nil
}

// SAdd adds a member to an unordered set
func (s *RedisStore) SAdd(ctx context.Context, key, member string) error {
	if err := s.client.SAdd(ctx, key, member).Err(); err != nil {
		return storeError("SADD failed", err)
	}
	return nil
}

// SMembers reads an unordered set
func (s *RedisStore) SMembers(ctx context.Context, key string) ([]string, error) {
	members, err := s.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, storeError("SMEMBERS failed", err)
	}
	return members, nil
}

// Watch runs one optimistic transaction: watch keys, enqueue the batch
// built by fn, submit. A watched-key conflict surfaces as a Conflict
// error with nothing applied.
func (s *RedisStore) Watch(ctx context.Context, fn func(Batch) error, watchKeys ...string) error {
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			return fn(&redisBatch{ctx: ctx, pipe: pipe})
		})
		return err
	}, watchKeys...)

	if errors.Is(err, redis.TxFailedErr) {
		s.logger.Debug("Watched transaction invalidated",
			zap.Strings("watch_keys", watchKeys))
		return errs.Conflict("watched key modified concurrently")
	}
	if err != nil {
		var te *errs.TrackerError
		if errors.As(err, &te) {
			return err
		}
		return storeError("transaction failed", err)
	}
	return nil
}

// Ping checks the store connection
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return errs.Unavailable("store ping failed", err)
	}
	return nil
}

// Close closes the underlying client
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// redisBatch queues mutations on a MULTI pipeline. Command errors are
// deferred to EXEC, so the enqueue methods have no error returns.
type redisBatch struct {
	ctx  context.Context
	pipe redis.Pipeliner
}

func (b *redisBatch) HSet(key string, fields map[string]string) {
	b.pipe.HSet(b.ctx, key, flatten(fields)...)
}

func (b *redisBatch) ZAdd(key string, score float64, member string) {
	b.pipe.ZAdd(b.ctx, key, redis.Z{Score: score, Member: member})
}

func (b *redisBatch) ZRem(key string, member string) {
	b.pipe.ZRem(b.ctx, key, member)
}

func (b *redisBatch) SAdd(key, member string) {
	b.pipe.SAdd(b.ctx, key, member)
}

// flatten converts a field map to the alternating key/value form the
// client expects, keeping HSet call sites map-shaped.
func flatten(fields map[string]string) []interface{} {
	flat := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		flat = append(flat, k, v)
	}
	return flat
}

// storeError classifies a client error as transport-level
func storeError(message string, err error) error {
	return errs.Unavailable(message, err)
}
