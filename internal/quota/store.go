package quota

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Store holds per-(identity, day) counters.
type Store interface {
	// IncrementIfBelow atomically adds one to the counter if it is below
	// limit, returning the resulting count and whether it was incremented.
	IncrementIfBelow(ctx context.Context, identity string, day time.Time, limit int) (used int, admitted bool, err error)
	// Increment adds one unconditionally.
	Increment(ctx context.Context, identity string, day time.Time) (int, error)
	Usage(ctx context.Context, identity string, day time.Time) (int, error)
}

type counterKey struct {
	identity string
	day      string
}

// MemoryStore keeps counters in process. Each counter is updated with
// compare-and-swap, so unrelated identities never contend.
type MemoryStore struct {
	counters sync.Map
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) counter(identity string, day time.Time) *atomic.Int64 {
	key := counterKey{identity: identity, day: DayKey(day)}
	if c, ok := s.counters.Load(key); ok {
		return c.(*atomic.Int64)
	}
	c, _ := s.counters.LoadOrStore(key, new(atomic.Int64))
	return c.(*atomic.Int64)
}

func (s *MemoryStore) IncrementIfBelow(_ context.Context, identity string, day time.Time, limit int) (int, bool, error) {
	c := s.counter(identity, day)
	for {
		cur := c.Load()
		if cur >= int64(limit) {
			return int(cur), false, nil
		}
		if c.CompareAndSwap(cur, cur+1) {
			return int(cur + 1), true, nil
		}
	}
}

func (s *MemoryStore) Increment(_ context.Context, identity string, day time.Time) (int, error) {
	return int(s.counter(identity, day).Add(1)), nil
}

func (s *MemoryStore) Usage(_ context.Context, identity string, day time.Time) (int, error) {
	c, ok := s.counters.Load(counterKey{identity: identity, day: DayKey(day)})
	if !ok {
		return 0, nil
	}
	return int(c.(*atomic.Int64).Load()), nil
}

// PurgeBefore drops counters for days before day and returns how many were
// removed.
func (s *MemoryStore) PurgeBefore(_ context.Context, day time.Time) (int64, error) {
	cutoff := DayKey(day)
	var removed int64
	s.counters.Range(func(k, _ any) bool {
		if k.(counterKey).day < cutoff {
			s.counters.Delete(k)
			removed++
		}
		return true
	})
	return removed, nil
}
