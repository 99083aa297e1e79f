package analytics

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IskanderBlue/CodeChronicle/pkg/kafka"
)

type memPublisher struct {
	mu     sync.Mutex
	events []kafka.Event
	block  chan struct{}
}

func (p *memPublisher) Publish(_ context.Context, e kafka.Event) error {
	if p.block != nil {
		<-p.block
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *memPublisher) published() []kafka.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]kafka.Event(nil), p.events...)
}

func TestCollectorPublishesKeyedEvents(t *testing.T) {
	pub := &memPublisher{}
	c := NewCollector(pub, 10)
	c.Start(context.Background())

	c.Track(SearchEvent{Type: EventSearch, Identity: "user:1", Returned: 3})
	c.Track(QuotaEvent{Type: EventQuota, Identity: "anon:10.0.0.1", Admitted: false})
	c.Close()

	events := pub.published()
	require.Len(t, events, 2)
	assert.Equal(t, "user:1", events[0].Key)
	assert.Equal(t, "anon:10.0.0.1", events[1].Key)
	assert.IsType(t, QuotaEvent{}, events[1].Value)
}

func TestCollectorDropsWhenFull(t *testing.T) {
	pub := &memPublisher{block: make(chan struct{})}
	c := NewCollector(pub, 1)
	c.Start(context.Background())

	// The first event is taken by the publishing goroutine and blocks; the
	// second fills the buffer; later ones are dropped.
	c.Track(SearchEvent{Identity: "a"})
	require.Eventually(t, func() bool { return len(c.eventCh) == 0 }, time.Second, time.Millisecond)
	c.Track(SearchEvent{Identity: "b"})
	c.Track(SearchEvent{Identity: "c"})
	c.Track(SearchEvent{Identity: "d"})
	assert.Equal(t, int64(2), c.Dropped())

	close(pub.block)
	c.Close()
	assert.Len(t, pub.published(), 2)
}

func TestCollectorDrainsOnCancel(t *testing.T) {
	pub := &memPublisher{}
	c := NewCollector(pub, 10)
	ctx, cancel := context.WithCancel(context.Background())
	for i := 0; i < 5; i++ {
		c.Track(SearchEvent{Identity: "x"})
	}
	cancel()
	c.Start(ctx)
	<-c.done
	assert.Len(t, pub.published(), 5)
}

func TestCollectorTrackAfterCloseIsDropped(t *testing.T) {
	pub := &memPublisher{}
	c := NewCollector(pub, 10)
	c.Start(context.Background())
	c.Track(SearchEvent{Identity: "before"})
	c.Close()

	assert.NotPanics(t, func() {
		c.Track(SearchEvent{Identity: "after"})
		c.Close()
	})
	assert.Equal(t, int64(1), c.Dropped())
	assert.Len(t, pub.published(), 1)
}

func TestCollectorConcurrentTrackAndClose(t *testing.T) {
	c := NewCollector(&memPublisher{}, 4)
	c.Start(context.Background())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Track(SearchEvent{Identity: "x"})
			}
		}()
	}
	c.Close()
	wg.Wait()
}
