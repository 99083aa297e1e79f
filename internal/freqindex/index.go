package freqindex

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Index maps content set ids to their current Snapshot. Lookups are
// lock-free; writers copy the map and publish it with one atomic store, so
// a reader sees either the old or the new snapshot of a set, never a mix.
type Index struct {
	mu    sync.Mutex
	snaps atomic.Pointer[map[string]*Snapshot]
}

func NewIndex() *Index {
	idx := &Index{}
	empty := make(map[string]*Snapshot)
	idx.snaps.Store(&empty)
	return idx
}

func (idx *Index) Lookup(contentSetID string) (*Snapshot, bool) {
	s, ok := (*idx.snaps.Load())[contentSetID]
	return s, ok
}

// Store publishes s unless a snapshot of a later generation is already
// present. It reports whether s was installed.
func (idx *Index) Store(s *Snapshot) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	old := *idx.snaps.Load()
	if cur, ok := old[s.ContentSetID]; ok && cur.Generation > s.Generation {
		return false
	}
	next := make(map[string]*Snapshot, len(old)+1)
	for k, v := range old {
		next[k] = v
	}
	next[s.ContentSetID] = s
	idx.snaps.Store(&next)
	return true
}

func (idx *Index) Remove(contentSetID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	old := *idx.snaps.Load()
	if _, ok := old[contentSetID]; !ok {
		return
	}
	next := make(map[string]*Snapshot, len(old))
	for k, v := range old {
		if k != contentSetID {
			next[k] = v
		}
	}
	idx.snaps.Store(&next)
}

func (idx *Index) Len() int {
	return len(*idx.snaps.Load())
}

func (idx *Index) IDs() []string {
	m := *idx.snaps.Load()
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
