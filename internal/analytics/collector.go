package analytics

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/websearch/pkg/kafka"
)

// Collector buffers search events and publishes them in batches, flushing
// when a batch fills or the flush interval elapses. Track never blocks the
// request path; events beyond the buffer are dropped.
type Collector struct {
	publisher     kafka.BatchPublisher
	eventCh       chan SearchEvent
	batchSize     int
	flushInterval time.Duration
	dropped       atomic.Int64
	logger        *slog.Logger
	done          chan struct{}
}

func NewCollector(publisher kafka.BatchPublisher, bufferSize, batchSize int, flushInterval time.Duration) *Collector {
	if publisher == nil {
		publisher = kafka.NopPublisher{}
	}
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	return &Collector{
		publisher:     publisher,
		eventCh:       make(chan SearchEvent, bufferSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		logger:        slog.Default().With("component", "analytics-collector"),
		done:          make(chan struct{}),
	}
}

// Start launches the flush loop. It stops when ctx is cancelled or Close is
// called, publishing whatever is still buffered.
func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
	c.logger.Info("analytics collector started",
		"buffer_size", cap(c.eventCh),
		"batch_size", c.batchSize,
		"flush_interval", c.flushInterval,
	)
}

func (c *Collector) run(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	batch := make([]kafka.Event, 0, c.batchSize)
	for {
		select {
		case ev, ok := <-c.eventCh:
			if !ok {
				c.flush(context.Background(), batch)
				return
			}
			batch = append(batch, kafka.Event{Key: ev.Query, Value: ev})
			if len(batch) >= c.batchSize {
				batch = c.flush(ctx, batch)
			}
		case <-ticker.C:
			batch = c.flush(ctx, batch)
		case <-ctx.Done():
			batch = c.drain(batch)
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			c.flush(flushCtx, batch)
			cancel()
			return
		}
	}
}

func (c *Collector) drain(batch []kafka.Event) []kafka.Event {
	for {
		select {
		case ev, ok := <-c.eventCh:
			if !ok {
				return batch
			}
			batch = append(batch, kafka.Event{Key: ev.Query, Value: ev})
		default:
			return batch
		}
	}
}

// flush publishes batch and returns an empty slice to refill. A failed
// batch is logged and discarded.
func (c *Collector) flush(ctx context.Context, batch []kafka.Event) []kafka.Event {
	if len(batch) == 0 {
		return batch
	}
	if err := c.publisher.PublishBatch(ctx, batch); err != nil {
		c.logger.Error("analytics batch publish failed", "batch_size", len(batch), "error", err)
	}
	return make([]kafka.Event, 0, c.batchSize)
}

func (c *Collector) Track(event SearchEvent) {
	select {
	case c.eventCh <- event:
	default:
		if n := c.dropped.Add(1); n%100 == 1 {
			c.logger.Warn("analytics event dropped (buffer full)", "dropped_total", n)
		}
	}
}

func (c *Collector) Dropped() int64 { return c.dropped.Load() }

// Close stops accepting events and waits for the final flush. It must be
// called at most once, after Start, and not concurrently with Track.
func (c *Collector) Close() {
	close(c.eventCh)
	<-c.done
}
