package freqindex

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IskanderBlue/CodeChronicle/internal/corpus"
	apperrors "github.com/IskanderBlue/CodeChronicle/pkg/errors"
	"github.com/IskanderBlue/CodeChronicle/pkg/metrics"
)

func passages(keywords ...[]string) []corpus.Passage {
	out := make([]corpus.Passage, len(keywords))
	for i, k := range keywords {
		out[i] = corpus.Passage{ID: fmt.Sprintf("p%02d", i), Keywords: k}
	}
	return out
}

func TestComputeUsesSetSemantics(t *testing.T) {
	set := &corpus.ContentSet{
		ID:         "NBC",
		Generation: 7,
		Passages: []corpus.Passage{
			{ID: "a", Keywords: []string{"fire", "fire", "exit"}},
			{ID: "b", Keywords: []string{"fire"}},
			{ID: "c"},
		},
	}
	snap := Compute(set)
	assert.Equal(t, 3, snap.TotalDocs)
	assert.Equal(t, uint64(7), snap.Generation)
	assert.Equal(t, 2, snap.DocCount("fire"))
	assert.Equal(t, 1, snap.DocCount("exit"))
	assert.Equal(t, 0, snap.DocCount("stair"))
	assert.Equal(t, []Entry{{Term: "exit", DocCount: 1}, {Term: "fire", DocCount: 2}}, snap.Entries())
}

func TestIDF(t *testing.T) {
	assert.Equal(t, 1.0, IDF(100, 0), "unknown term is neutral")
	assert.Equal(t, 1.0, IDF(0, 0))
	assert.InDelta(t, 1.0, IDF(100, 100), 1e-12, "ubiquitous term")
	assert.InDelta(t, math.Log(20)+1, IDF(100, 5), 1e-12)
	assert.Greater(t, IDF(100, 5), IDF(100, 90))
}

func TestRebuildIsIdempotent(t *testing.T) {
	store := corpus.NewMemoryStore()
	store.Replace("NBC", "NBC_2025", passages([]string{"fire", "exit"}, []string{"fire"}, []string{"stair"}))
	b := NewBuilder(store, NewIndex(), nil, nil, 2)
	ctx := context.Background()

	first, err := b.Rebuild(ctx, "NBC")
	require.NoError(t, err)
	second, err := b.Rebuild(ctx, "NBC")
	require.NoError(t, err)

	assert.Equal(t, first.Entries(), second.Entries())
	assert.Equal(t, first.TotalDocs, second.TotalDocs)
	assert.Equal(t, first.Generation, second.Generation)
}

func TestRebuildPicksUpCorpusChanges(t *testing.T) {
	store := corpus.NewMemoryStore()
	store.Replace("NBC", "", passages([]string{"fire"}))
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	b := NewBuilder(store, NewIndex(), nil, m, 2)
	ctx := context.Background()

	_, err := b.Rebuild(ctx, "NBC")
	require.NoError(t, err)

	set := store.Replace("NBC", "", passages([]string{"exit"}, []string{"exit"}))
	snap, err := b.Rebuild(ctx, "NBC")
	require.NoError(t, err)
	assert.Equal(t, set.Generation, snap.Generation)
	assert.Equal(t, 0, snap.DocCount("fire"))
	assert.Equal(t, 2, snap.DocCount("exit"))

	got, ok := b.Index().Lookup("NBC")
	require.True(t, ok)
	assert.Same(t, snap, got)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.IndexRebuildsTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IndexedContentSets))
}

func TestRebuildRemovesMissingSet(t *testing.T) {
	store := corpus.NewMemoryStore()
	store.Replace("NBC", "", passages([]string{"fire"}))
	b := NewBuilder(store, NewIndex(), nil, nil, 1)
	ctx := context.Background()

	_, err := b.Rebuild(ctx, "NBC")
	require.NoError(t, err)

	store.Remove("NBC")
	_, err = b.Rebuild(ctx, "NBC")
	assert.True(t, apperrors.Is(err, apperrors.ErrContentSetNotFound))
	_, ok := b.Index().Lookup("NBC")
	assert.False(t, ok)
}

func TestRebuildAllSkipsMissing(t *testing.T) {
	store := corpus.NewMemoryStore()
	for i := 0; i < 10; i++ {
		store.Replace(fmt.Sprintf("set%d", i), "", passages([]string{"fire"}, []string{fmt.Sprint(i)}))
	}
	b := NewBuilder(store, NewIndex(), nil, nil, 3)

	ids := append(store.IDs(), "gone")
	require.NoError(t, b.RebuildAll(context.Background(), ids))
	assert.Equal(t, store.IDs(), b.Index().IDs())
}

func TestIndexStoreKeepsNewestGeneration(t *testing.T) {
	idx := NewIndex()
	newer := NewSnapshot("NBC", 5, 1, nil)
	older := NewSnapshot("NBC", 4, 1, nil)

	assert.True(t, idx.Store(newer))
	assert.False(t, idx.Store(older))
	got, _ := idx.Lookup("NBC")
	assert.Same(t, newer, got)

	idx.Remove("NBC")
	idx.Remove("NBC")
	assert.Zero(t, idx.Len())
}

func TestReadersNeverSeePartialSnapshot(t *testing.T) {
	// Two corpora whose snapshots are internally consistent: in corpus A
	// every passage carries "alpha", in B every passage carries "beta".
	const n = 50
	a := make([][]string, n)
	bb := make([][]string, n)
	for i := range a {
		a[i] = []string{"alpha"}
		bb[i] = []string{"beta"}
	}
	store := corpus.NewMemoryStore()
	store.Replace("set", "", passages(a...))
	builder := NewBuilder(store, NewIndex(), nil, nil, 1)
	ctx := context.Background()
	_, err := builder.Rebuild(ctx, "set")
	require.NoError(t, err)

	var wg sync.WaitGroup
	done := make(chan struct{})
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				snap, ok := builder.Index().Lookup("set")
				if !assert.True(t, ok) {
					return
				}
				alpha, beta := snap.DocCount("alpha"), snap.DocCount("beta")
				assert.True(t, (alpha == n && beta == 0) || (alpha == 0 && beta == n),
					"alpha=%d beta=%d", alpha, beta)
			}
		}()
	}
	for i := 0; i < 100; i++ {
		if i%2 == 0 {
			store.Replace("set", "", passages(bb...))
		} else {
			store.Replace("set", "", passages(a...))
		}
		_, err := builder.Rebuild(ctx, "set")
		require.NoError(t, err)
	}
	close(done)
	wg.Wait()
}

type recordingStore struct {
	mu    sync.Mutex
	saved map[string]*Snapshot
	fail  error
}

func (s *recordingStore) ReplaceEntries(_ context.Context, snap *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	if s.saved == nil {
		s.saved = make(map[string]*Snapshot)
	}
	s.saved[snap.ContentSetID] = snap
	return nil
}

func (s *recordingStore) Load(_ context.Context, id string) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.saved[id]
	if !ok {
		return nil, apperrors.ErrIndexUnavailable
	}
	return snap, nil
}

func TestWarmUsesPersistedSnapshotsOnlyWhenCurrent(t *testing.T) {
	ctx := context.Background()
	store := corpus.NewMemoryStore()
	store.Replace("fresh", "", passages([]string{"fire"}))
	store.Replace("stale", "", passages([]string{"fire"}))

	persisted := &recordingStore{}
	first := NewBuilder(store, NewIndex(), persisted, nil, 2)
	require.NoError(t, first.RebuildAll(ctx, store.IDs()))
	require.Len(t, persisted.saved, 2)

	store.Replace("stale", "", passages([]string{"exit"}))

	second := NewBuilder(store, NewIndex(), persisted, nil, 2)
	require.NoError(t, second.Warm(ctx, store.IDs()))

	fresh, ok := second.Index().Lookup("fresh")
	require.True(t, ok)
	assert.Same(t, persisted.saved["fresh"], fresh)

	stale, ok := second.Index().Lookup("stale")
	require.True(t, ok)
	assert.Equal(t, 1, stale.DocCount("exit"), "stale entries were recounted")
}

func TestPersistFailureStillPublishes(t *testing.T) {
	store := corpus.NewMemoryStore()
	store.Replace("NBC", "", passages([]string{"fire"}))
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	b := NewBuilder(store, NewIndex(), &recordingStore{fail: fmt.Errorf("disk full")}, m, 1)

	_, err := b.Rebuild(context.Background(), "NBC")
	require.NoError(t, err)
	_, ok := b.Index().Lookup("NBC")
	assert.True(t, ok)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IndexRebuildsTotal.WithLabelValues("persist_error")))
}

func BenchmarkCompute(b *testing.B) {
	vocab := make([]string, 500)
	for i := range vocab {
		vocab[i] = fmt.Sprintf("term%03d", i)
	}
	ps := make([]corpus.Passage, 5000)
	for i := range ps {
		kw := make([]string, 8)
		for j := range kw {
			kw[j] = vocab[(i*7+j*13)%len(vocab)]
		}
		ps[i] = corpus.Passage{ID: fmt.Sprint(i), Keywords: kw}
	}
	set := &corpus.ContentSet{ID: "bench", Generation: 1, Passages: ps}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Compute(set)
	}
}
