// Package consumer rebuilds the indexes whenever a crawl completes and
// announces the new index on the index-complete topic.
package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/websearch/internal/crawler"
	"github.com/Adithya-Monish-Kumar-K/websearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/websearch/internal/store"
	"github.com/Adithya-Monish-Kumar-K/websearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/websearch/pkg/logger"
)

// Rebuilder runs full index builds from the page store. Builds are
// serialised; a crawl event that arrives during a build waits for it.
type Rebuilder struct {
	engine    *indexer.Engine
	store     store.Store
	publisher kafka.Publisher
	logger    *slog.Logger
	mu        sync.Mutex
}

func NewRebuilder(engine *indexer.Engine, st store.Store, publisher kafka.Publisher) *Rebuilder {
	if publisher == nil {
		publisher = kafka.NopPublisher{}
	}
	return &Rebuilder{
		engine:    engine,
		store:     st,
		publisher: publisher,
		logger:    logger.WithComponent("index-consumer"),
	}
}

// Rebuild indexes every stored page and publishes an index-complete event
// tagged with runID.
func (rb *Rebuilder) Rebuild(ctx context.Context, runID string) (indexer.BuildStats, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	ctx = logger.WithRunID(ctx, runID)
	pages, err := rb.store.GetAllPages(ctx)
	if err != nil {
		return indexer.BuildStats{}, fmt.Errorf("loading pages: %w", err)
	}
	stats, err := rb.engine.Build(ctx, pages)
	if err != nil {
		return stats, fmt.Errorf("building index: %w", err)
	}
	if err := rb.publisher.Publish(ctx, kafka.Event{Key: runID, Value: stats.Event(runID)}); err != nil {
		// the index itself is built; searchers can still be reloaded by hand
		logger.FromContext(ctx).Error("publishing index-complete failed", "error", err)
	}
	return stats, nil
}

// HandleMessage returns a Kafka MessageHandler that rebuilds on every
// crawl-complete event. Undecodable messages are logged and skipped.
func (rb *Rebuilder) HandleMessage() kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[crawler.CompletedEvent](value)
		if err != nil {
			rb.logger.Error("failed to decode crawl event",
				"error", err,
				"key", string(key),
			)
			return nil
		}
		rb.logger.Info("crawl completed, rebuilding index",
			"run_id", event.RunID,
			"committed", event.Committed,
		)
		if _, err := rb.Rebuild(ctx, event.RunID); err != nil {
			return fmt.Errorf("rebuilding after crawl %s: %w", event.RunID, err)
		}
		return nil
	}
}
