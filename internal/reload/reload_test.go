package reload

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IskanderBlue/CodeChronicle/internal/corpus"
	"github.com/IskanderBlue/CodeChronicle/internal/freqindex"
	"github.com/IskanderBlue/CodeChronicle/pkg/kafka"
	"github.com/IskanderBlue/CodeChronicle/pkg/resilience"
)

type setup struct {
	source  *corpus.MemoryStore
	cache   *corpus.MemoryStore
	builder *freqindex.Builder
	handle  kafka.MessageHandler
}

func newSetup() *setup {
	s := &setup{
		source: corpus.NewMemoryStore(),
		cache:  corpus.NewMemoryStore(),
	}
	s.builder = freqindex.NewBuilder(s.cache, freqindex.NewIndex(), nil, nil, 1)
	s.handle = HandleMessage(s.source, s.cache, s.builder)
	return s
}

func message(t *testing.T, id string) []byte {
	t.Helper()
	b, err := json.Marshal(Event{ContentSetID: id})
	require.NoError(t, err)
	return b
}

func TestHandleMessageReloadsAndRebuilds(t *testing.T) {
	s := newSetup()
	ctx := context.Background()
	src := s.source.Replace("OBC_Vol1", "OBC_2024", []corpus.Passage{
		{ID: "9.10.1", Keywords: []string{"fire"}},
		{ID: "3.2.5", Keywords: []string{"sprinkler", "fire"}},
	})

	require.NoError(t, s.handle(ctx, []byte("OBC_Vol1"), message(t, "OBC_Vol1")))

	cached, err := s.cache.ContentSet(ctx, "OBC_Vol1")
	require.NoError(t, err)
	assert.Equal(t, src.Generation, cached.Generation)
	snap, ok := s.builder.Index().Lookup("OBC_Vol1")
	require.True(t, ok)
	assert.Equal(t, src.Generation, snap.Generation)
	assert.Equal(t, 2, snap.DocCount("fire"))

	// A later replacement in the source moves both forward.
	src = s.source.Replace("OBC_Vol1", "OBC_2024", []corpus.Passage{{ID: "9.10.1", Keywords: []string{"fire"}}})
	require.NoError(t, s.handle(ctx, nil, message(t, "OBC_Vol1")))
	snap, _ = s.builder.Index().Lookup("OBC_Vol1")
	assert.Equal(t, src.Generation, snap.Generation)
	assert.Equal(t, 1, snap.TotalDocs)
}

func TestHandleMessageDropsRemovedSet(t *testing.T) {
	s := newSetup()
	ctx := context.Background()
	s.source.Replace("NBC", "NBC_2020", []corpus.Passage{{ID: "1", Keywords: []string{"fire"}}})
	require.NoError(t, s.handle(ctx, nil, message(t, "NBC")))

	s.source.Remove("NBC")
	require.NoError(t, s.handle(ctx, nil, message(t, "NBC")))
	_, ok := s.builder.Index().Lookup("NBC")
	assert.False(t, ok)
	assert.Empty(t, s.cache.IDs())
}

func TestHandleMessageRejectsGarbageWithoutRetry(t *testing.T) {
	s := newSetup()
	ctx := context.Background()
	for _, value := range []string{"{not json", `{}`} {
		calls := 0
		err := resilience.Retry(ctx, "reload", resilience.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond}, func() error {
			calls++
			return s.handle(ctx, []byte("k"), []byte(value))
		})
		require.Error(t, err, value)
		assert.Equal(t, 1, calls, value)
	}
	assert.Zero(t, s.builder.Index().Len())
}

type erroringReader struct{}

func (erroringReader) ContentSet(context.Context, string) (*corpus.ContentSet, error) {
	return nil, errors.New("connection refused")
}

func TestHandleMessageReturnsSourceErrors(t *testing.T) {
	cache := corpus.NewMemoryStore()
	handle := HandleMessage(erroringReader{}, cache, freqindex.NewBuilder(cache, freqindex.NewIndex(), nil, nil, 1))
	err := handle(context.Background(), nil, message(t, "OBC_Vol1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

type batchRecorder struct {
	mu      sync.Mutex
	batches [][]kafka.Event
	err     error
}

func (b *batchRecorder) PublishBatch(_ context.Context, events []kafka.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.batches = append(b.batches, events)
	return nil
}

func TestAnnounce(t *testing.T) {
	rec := &batchRecorder{}
	p := NewPublisher(rec)
	ctx := context.Background()

	require.NoError(t, p.Announce(ctx))
	assert.Empty(t, rec.batches)

	require.NoError(t, p.Announce(ctx, "OBC_Vol1", "OBC_Vol2"))
	require.Len(t, rec.batches, 1)
	require.Len(t, rec.batches[0], 2)
	assert.Equal(t, "OBC_Vol2", rec.batches[0][1].Key)
	assert.Equal(t, Event{ContentSetID: "OBC_Vol2"}, rec.batches[0][1].Value)

	rec.err = errors.New("broker down")
	assert.Error(t, p.Announce(ctx, "NBC"))
}
