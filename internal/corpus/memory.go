package corpus

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	apperrors "github.com/IskanderBlue/CodeChronicle/pkg/errors"
)

// MemoryStore keeps content sets in a copy-on-write map behind an atomic
// pointer. Readers never lock; writers copy the map and swap it.
type MemoryStore struct {
	mu      sync.Mutex
	sets    atomic.Pointer[map[string]*ContentSet]
	nextGen uint64
}

func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{}
	empty := make(map[string]*ContentSet)
	s.sets.Store(&empty)
	return s
}

func (s *MemoryStore) ContentSet(_ context.Context, id string) (*ContentSet, error) {
	set, ok := (*s.sets.Load())[id]
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrContentSetNotFound, 404, "content set %q", id)
	}
	return set, nil
}

// Replace installs passages as the new content of id under a fresh
// generation and returns the stored set.
func (s *MemoryStore) Replace(id, codeName string, passages []Passage) *ContentSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextGen++
	set := &ContentSet{
		ID:         id,
		CodeName:   codeName,
		Generation: s.nextGen,
		Passages:   normalizePassages(id, passages),
	}
	s.swap(func(m map[string]*ContentSet) { m[id] = set })
	return set
}

// Put installs set as-is, keeping the generation assigned by its source.
func (s *MemoryStore) Put(set *ContentSet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if set.Generation > s.nextGen {
		s.nextGen = set.Generation
	}
	s.swap(func(m map[string]*ContentSet) { m[set.ID] = set })
}

func (s *MemoryStore) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.swap(func(m map[string]*ContentSet) { delete(m, id) })
}

// IDs returns the stored content set ids, sorted.
func (s *MemoryStore) IDs() []string {
	m := *s.sets.Load()
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// swap must be called with mu held.
func (s *MemoryStore) swap(mutate func(map[string]*ContentSet)) {
	old := *s.sets.Load()
	next := make(map[string]*ContentSet, len(old)+1)
	for k, v := range old {
		next[k] = v
	}
	mutate(next)
	s.sets.Store(&next)
}
