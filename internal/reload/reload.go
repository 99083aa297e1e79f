// Package reload keeps a process's in-memory corpus and frequency index in
// step with the authoritative passage store. Loaders announce changed
// content sets on a Kafka topic; every worker consuming it reloads the set
// and rebuilds its snapshot.
package reload

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/IskanderBlue/CodeChronicle/internal/corpus"
	"github.com/IskanderBlue/CodeChronicle/internal/freqindex"
	apperrors "github.com/IskanderBlue/CodeChronicle/pkg/errors"
	"github.com/IskanderBlue/CodeChronicle/pkg/kafka"
	"github.com/IskanderBlue/CodeChronicle/pkg/resilience"
)

// Event announces that a content set changed in the authoritative store.
type Event struct {
	ContentSetID string `json:"content_set_id"`
}

// Worker drives HandleMessage from a Kafka consumer.
type Worker struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

func NewWorker(consumer *kafka.Consumer) *Worker {
	return &Worker{
		consumer: consumer,
		logger:   slog.Default().With("component", "reload-worker"),
	}
}

// Start blocks until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("reload worker starting")
	return w.consumer.Start(ctx)
}

// HandleMessage returns a MessageHandler that copies the announced content
// set from source into cache and rebuilds its frequency snapshot. builder
// must read from cache. A set missing from source is dropped from cache. An
// undecodable event fails permanently, so the consumer skips it without
// retrying.
func HandleMessage(source corpus.Reader, cache *corpus.MemoryStore, builder *freqindex.Builder) kafka.MessageHandler {
	logger := slog.Default().With("component", "reload-worker")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[Event](value)
		if err != nil {
			return resilience.Permanent(fmt.Errorf("reload event %q: %w", key, err))
		}
		if event.ContentSetID == "" {
			return resilience.Permanent(fmt.Errorf("reload event %q names no content set", key))
		}
		id := event.ContentSetID

		set, err := source.ContentSet(ctx, id)
		if apperrors.Is(err, apperrors.ErrContentSetNotFound) {
			cache.Remove(id)
			if _, err := builder.Rebuild(ctx, id); err != nil && !apperrors.Is(err, apperrors.ErrContentSetNotFound) {
				return fmt.Errorf("dropping snapshot for %s: %w", id, err)
			}
			logger.Info("content set removed", "content_set", id)
			return nil
		}
		if err != nil {
			return fmt.Errorf("loading content set %s: %w", id, err)
		}

		cache.Put(set)
		snap, err := builder.Rebuild(ctx, id)
		if err != nil {
			return fmt.Errorf("rebuilding %s: %w", id, err)
		}
		logger.Info("content set reloaded",
			"content_set", id,
			"generation", set.Generation,
			"passages", len(set.Passages),
			"terms", snap.Len(),
		)
		return nil
	}
}

// BatchPublisher is satisfied by *kafka.Producer.
type BatchPublisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// Publisher announces changed content sets.
type Publisher struct {
	producer BatchPublisher
	logger   *slog.Logger
}

func NewPublisher(producer BatchPublisher) *Publisher {
	return &Publisher{
		producer: producer,
		logger:   slog.Default().With("component", "reload-publisher"),
	}
}

// Announce publishes one Event per id, keyed by id so reloads of the same
// set are consumed in order.
func (p *Publisher) Announce(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	events := make([]kafka.Event, len(ids))
	for i, id := range ids {
		events[i] = kafka.Event{Key: id, Value: Event{ContentSetID: id}}
	}
	if err := p.producer.PublishBatch(ctx, events); err != nil {
		return fmt.Errorf("announcing %d content sets: %w", len(ids), err)
	}
	p.logger.Info("reload announced", "content_sets", ids)
	return nil
}
