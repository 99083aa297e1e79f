package freqindex

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/IskanderBlue/CodeChronicle/internal/corpus"
	apperrors "github.com/IskanderBlue/CodeChronicle/pkg/errors"
	"github.com/IskanderBlue/CodeChronicle/pkg/metrics"
)

// EntryStore persists snapshots so a restarted process can warm its index
// without recounting.
type EntryStore interface {
	ReplaceEntries(ctx context.Context, s *Snapshot) error
	Load(ctx context.Context, contentSetID string) (*Snapshot, error)
}

// Builder recomputes snapshots from the corpus and publishes them to an
// Index.
type Builder struct {
	source      corpus.Reader
	index       *Index
	store       EntryStore
	metrics     *metrics.Metrics
	concurrency int
	group       singleflight.Group
	logger      *slog.Logger
}

// NewBuilder creates a Builder. store and m may be nil; concurrency bounds
// RebuildAll and defaults to 4.
func NewBuilder(source corpus.Reader, index *Index, store EntryStore, m *metrics.Metrics, concurrency int) *Builder {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Builder{
		source:      source,
		index:       index,
		store:       store,
		metrics:     m,
		concurrency: concurrency,
		logger:      slog.Default().With("component", "freq-builder"),
	}
}

func (b *Builder) Index() *Index {
	return b.index
}

// Rebuild recounts contentSetID and swaps the result into the index.
// Concurrent rebuilds of the same set at the same generation share one
// computation. An unknown set has its snapshot removed and returns
// ErrContentSetNotFound.
func (b *Builder) Rebuild(ctx context.Context, contentSetID string) (*Snapshot, error) {
	set, err := b.source.ContentSet(ctx, contentSetID)
	if apperrors.Is(err, apperrors.ErrContentSetNotFound) {
		b.index.Remove(contentSetID)
		b.observeSize()
		b.observe("not_found", 0)
		return nil, err
	}
	if err != nil {
		b.observe("error", 0)
		return nil, fmt.Errorf("reading content set %s: %w", contentSetID, err)
	}

	key := fmt.Sprintf("%s@%d", set.ID, set.Generation)
	v, err, shared := b.group.Do(key, func() (any, error) {
		return b.build(ctx, set), nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		b.logger.Debug("rebuild coalesced", "content_set", contentSetID, "generation", set.Generation)
	}
	return v.(*Snapshot), nil
}

func (b *Builder) build(ctx context.Context, set *corpus.ContentSet) *Snapshot {
	start := time.Now()
	snap := Compute(set)

	status := "success"
	if b.store != nil {
		if err := b.store.ReplaceEntries(ctx, snap); err != nil {
			// The in-memory snapshot is still correct; persisted entries are
			// checked against the corpus generation when warming.
			b.logger.Warn("persisting frequency entries failed",
				"content_set", set.ID,
				"error", err,
			)
			status = "persist_error"
		}
	}
	if !b.index.Store(snap) {
		b.logger.Info("newer snapshot already published, discarding",
			"content_set", set.ID,
			"generation", set.Generation,
		)
		status = "superseded"
	}
	b.observeSize()
	b.observe(status, time.Since(start))
	b.logger.Info("frequency index rebuilt",
		"content_set", set.ID,
		"generation", set.Generation,
		"passages", snap.TotalDocs,
		"terms", snap.Len(),
		"duration", time.Since(start),
	)
	return snap
}

// RebuildAll rebuilds ids with bounded parallelism. Sets that no longer
// exist are skipped; the first other failure cancels the rest.
func (b *Builder) RebuildAll(ctx context.Context, ids []string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for _, id := range ids {
		g.Go(func() error {
			_, err := b.Rebuild(ctx, id)
			if apperrors.Is(err, apperrors.ErrContentSetNotFound) {
				b.logger.Warn("skipping missing content set", "content_set", id)
				return nil
			}
			return err
		})
	}
	return g.Wait()
}

// Warm installs persisted snapshots that match the corpus generation and
// rebuilds the rest.
func (b *Builder) Warm(ctx context.Context, ids []string) error {
	var stale []string
	for _, id := range ids {
		if b.store == nil {
			stale = append(stale, id)
			continue
		}
		set, err := b.source.ContentSet(ctx, id)
		if err != nil {
			stale = append(stale, id)
			continue
		}
		snap, err := b.store.Load(ctx, id)
		if err != nil || snap.Generation != set.Generation {
			stale = append(stale, id)
			continue
		}
		b.index.Store(snap)
	}
	b.observeSize()
	b.logger.Info("frequency index warmed", "loaded", len(ids)-len(stale), "rebuilding", len(stale))
	return b.RebuildAll(ctx, stale)
}

func (b *Builder) observe(status string, d time.Duration) {
	if b.metrics == nil {
		return
	}
	b.metrics.IndexRebuildsTotal.WithLabelValues(status).Inc()
	if d > 0 {
		b.metrics.IndexRebuildDuration.Observe(d.Seconds())
	}
}

func (b *Builder) observeSize() {
	if b.metrics != nil {
		b.metrics.IndexedContentSets.Set(float64(b.index.Len()))
	}
}
