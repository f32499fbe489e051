package store

import (
	"context"
	"sort"
	"sync"

	errs "github.com/crawlkit/tracker/internal/errors"
)

// MemoryStore implements Store using in-memory maps with per-key
// version counters backing the watch semantics. It mirrors the store
// contract closely enough to exercise the registries in tests without
// a live server.
type MemoryStore struct {
	mu       sync.Mutex
	hashes   map[string]map[string]string
	zsets    map[string]map[string]float64
	sets     map[string]map[string]struct{}
	versions map[string]uint64

	// BeforeExec, when set, runs between building a watched batch and
	// committing it. Tests use it to interleave a concurrent
	// modification inside the optimistic window.
	BeforeExec func()
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		hashes:   make(map[string]map[string]string),
		zsets:    make(map[string]map[string]float64),
		sets:     make(map[string]map[string]struct{}),
		versions: make(map[string]uint64),
	}
}

func (s *MemoryStore) touch(key string) {
	s.versions[key]++
}

// HGetAll reads a full hash; a missing key yields an empty map
func (s *MemoryStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fields := make(map[string]string, len(s.hashes[key]))
	for k, v := range s.hashes[key] {
		fields[k] = v
	}
	return fields, nil
}

// HSet writes fields onto a hash
func (s *MemoryStore) HSet(ctx context.Context, key string, fields map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.hsetLocked(key, fields)
	return nil
}

func (s *MemoryStore) hsetLocked(key string, fields map[string]string) {
	hash, ok := s.hashes[key]
	if !ok {
		hash = make(map[string]string)
		s.hashes[key] = hash
	}
	for k, v := range fields {
		hash[k] = v
	}
	s.touch(key)
}

// HIncrBy increments a hash field and returns the new value
func (s *MemoryStore) HIncrBy(ctx context.Context, key, field string, incr int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hash, ok := s.hashes[key]
	if !ok {
		hash = make(map[string]string)
		s.hashes[key] = hash
	}
	current, err := parseInt(hash[field])
	if err != nil {
		return 0, errs.Internal("hash field is not an integer", err)
	}
	current += incr
	hash[field] = formatInt(current)
	s.touch(key)
	return current, nil
}

// ZScore reads a member's score; the boolean is false when absent
func (s *MemoryStore) ZScore(ctx context.Context, key, member string) (float64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	score, ok := s.zsets[key][member]
	return score, ok, nil
}

// ZCard returns the sorted-set cardinality
func (s *MemoryStore) ZCard(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return int64(len(s.zsets[key])), nil
}

// ZRange reads members by rank, ascending score
func (s *MemoryStore) ZRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	members := s.sortedMembersLocked(key)
	n := int64(len(members))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if start >= n || stop < start {
		return nil, nil
	}
	if stop >= n {
		stop = n - 1
	}
	return members[start : stop+1], nil
}

// ZRangeByScoreAsc reads up to count members, lowest score first
func (s *MemoryStore) ZRangeByScoreAsc(ctx context.Context, key string, count int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	members := s.sortedMembersLocked(key)
	if count >= 0 && int64(len(members)) > count {
		members = members[:count]
	}
	return members, nil
}

func (s *MemoryStore) sortedMembersLocked(key string) []string {
	zset := s.zsets[key]
	members := make([]string, 0, len(zset))
	for member := range zset {
		members = append(members, member)
	}
	sort.Slice(members, func(i, j int) bool {
		si, sj := zset[members[i]], zset[members[j]]
		if si != sj {
			return si < sj
		}
		return members[i] < members[j]
	})
	return members
}

// SAdd adds a member to an unordered set
func (s *MemoryStore) SAdd(ctx context.Context, key, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.saddLocked(key, member)
	return nil
}

func (s *MemoryStore) saddLocked(key, member string) {
	set, ok := s.sets[key]
	if !ok {
		set = make(map[string]struct{})
		s.sets[key] = set
	}
	set[member] = struct{}{}
	s.touch(key)
}

// SMembers reads an unordered set
func (s *MemoryStore) SMembers(ctx context.Context, key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	members := make([]string, 0, len(s.sets[key]))
	for member := range s.sets[key] {
		members = append(members, member)
	}
	sort.Strings(members)
	return members, nil
}

// Watch snapshots the versions of the watched keys, builds the batch,
// and commits only if no watched key changed in between. The mutex is
// released while fn runs so concurrent callers can interleave, exactly
// the window the optimistic protocol is defended against.
func (s *MemoryStore) Watch(ctx context.Context, fn func(Batch) error, watchKeys ...string) error {
	s.mu.Lock()
	snapshot := make(map[string]uint64, len(watchKeys))
	for _, key := range watchKeys {
		snapshot[key] = s.versions[key]
	}
	s.mu.Unlock()

	batch := &memoryBatch{}
	if err := fn(batch); err != nil {
		return err
	}

	if s.BeforeExec != nil {
		s.BeforeExec()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, version := range snapshot {
		if s.versions[key] != version {
			return errs.Conflict("watched key modified concurrently")
		}
	}
	for _, op := range batch.ops {
		op(s)
	}
	return nil
}

// Ping always succeeds
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op
func (s *MemoryStore) Close() error {
	return nil
}

// memoryBatch records mutations as closures applied under the store
// mutex at commit time.
type memoryBatch struct {
	ops []func(*MemoryStore)
}

func (b *memoryBatch) HSet(key string, fields map[string]string) {
	copied := make(map[string]string, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	b.ops = append(b.ops, func(s *MemoryStore) {
		s.hsetLocked(key, copied)
	})
}

func (b *memoryBatch) ZAdd(key string, score float64, member string) {
	b.ops = append(b.ops, func(s *MemoryStore) {
		zset, ok := s.zsets[key]
		if !ok {
			zset = make(map[string]float64)
			s.zsets[key] = zset
		}
		zset[member] = score
		s.touch(key)
	})
}

func (b *memoryBatch) ZRem(key string, member string) {
	b.ops = append(b.ops, func(s *MemoryStore) {
		if zset, ok := s.zsets[key]; ok {
			delete(zset, member)
			s.touch(key)
		}
	})
}

func (b *memoryBatch) SAdd(key, member string) {
	b.ops = append(b.ops, func(s *MemoryStore) {
		s.saddLocked(key, member)
	})
}
