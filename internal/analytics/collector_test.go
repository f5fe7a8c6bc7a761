package analytics

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/websearch/pkg/kafka"
)

type batchRecorder struct {
	mu      sync.Mutex
	batches [][]kafka.Event
}

func (b *batchRecorder) Publish(ctx context.Context, e kafka.Event) error {
	return b.PublishBatch(ctx, []kafka.Event{e})
}

func (b *batchRecorder) PublishBatch(_ context.Context, events []kafka.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.batches = append(b.batches, append([]kafka.Event(nil), events...))
	return nil
}

func (b *batchRecorder) Close() error { return nil }

func (b *batchRecorder) total() (batches, events int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, batch := range b.batches {
		events += len(batch)
	}
	return len(b.batches), events
}

func TestCollectorFlushesFullBatches(t *testing.T) {
	rec := &batchRecorder{}
	c := NewCollector(rec, 100, 3, time.Hour)
	c.Start(context.Background())
	for i := 0; i < 7; i++ {
		c.Track(SearchEvent{Query: "q"})
	}
	c.Close()

	batches, events := rec.total()
	if events != 7 {
		t.Errorf("published %d events, want 7", events)
	}
	// two full batches plus the remainder on close
	if batches != 3 {
		t.Errorf("published %d batches, want 3", batches)
	}
}

func TestCollectorFlushesOnInterval(t *testing.T) {
	rec := &batchRecorder{}
	c := NewCollector(rec, 100, 50, 20*time.Millisecond)
	c.Start(context.Background())
	defer c.Close()
	c.Track(SearchEvent{Query: "q"})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, n := rec.total(); n == 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("event was not flushed by the interval")
}

func TestCollectorDropsWhenFull(t *testing.T) {
	c := NewCollector(&batchRecorder{}, 2, 10, time.Hour)
	// not started: nothing drains the buffer
	for i := 0; i < 5; i++ {
		c.Track(SearchEvent{Query: "q"})
	}
	if c.Dropped() != 3 {
		t.Errorf("Dropped = %d, want 3", c.Dropped())
	}
}

func TestCollectorFlushesOnCancel(t *testing.T) {
	rec := &batchRecorder{}
	c := NewCollector(rec, 100, 50, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	for i := 0; i < 4; i++ {
		c.Track(SearchEvent{Query: "q"})
	}
	c.Start(ctx)
	cancel()
	<-c.done
	if _, n := rec.total(); n != 4 {
		t.Errorf("published %d events after cancel, want 4", n)
	}
}

func TestCollectorIntoLocalAggregator(t *testing.T) {
	agg := NewAggregator()
	c := NewCollector(agg.Publisher(), 10, 2, time.Hour)
	c.Start(context.Background())
	c.Track(NewSearchEvent("a", "cosine", []string{"a"}, 0, 1, 1, time.Millisecond, false, ""))
	c.Track(NewSearchEvent("b", "cosine", []string{"b"}, 0, 0, 0, time.Millisecond, false, ""))
	c.Track(NewSearchEvent("c", "combined", []string{"c"}, 0, 4, 4, time.Millisecond, true, ""))
	c.Close()

	s := agg.Stats()
	if s.TotalSearches != 3 || s.ZeroResultCount != 1 || s.CacheHits != 1 {
		t.Errorf("stats = %+v", s)
	}
}
