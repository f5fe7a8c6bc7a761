package analytics

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/websearch/internal/indexer"
)

func TestAggregatorStats(t *testing.T) {
	agg := NewAggregator()
	events := []SearchEvent{
		NewSearchEvent("hong kong", "combined", []string{"hong", "kong"}, 0, 3, 3, 10*time.Millisecond, false, "r1"),
		NewSearchEvent("hong kong", "combined", []string{"hong", "kong"}, 0, 3, 3, 2*time.Millisecond, true, "r2"),
		NewSearchEvent(`"hong kong"`, "cosine", []string{"hong", "kong"}, 1, 1, 1, 30*time.Millisecond, false, "r3"),
		NewSearchEvent("zebra", "combined", []string{"zebra"}, 0, 0, 0, 1*time.Millisecond, false, "r4"),
	}
	for _, e := range events {
		agg.RecordSearch(e)
	}
	// redelivery
	agg.RecordSearch(events[0])

	s := agg.Stats()
	if s.TotalSearches != 4 {
		t.Errorf("TotalSearches = %d, want 4", s.TotalSearches)
	}
	if s.CacheHits != 1 || s.CacheMisses != 3 {
		t.Errorf("cache = %d/%d", s.CacheHits, s.CacheMisses)
	}
	if s.ZeroResultCount != 1 || len(s.ZeroResultQueries) != 1 || s.ZeroResultQueries[0].Query != "zebra" {
		t.Errorf("zero results = %d %+v", s.ZeroResultCount, s.ZeroResultQueries)
	}
	if s.PhraseSearches != 1 {
		t.Errorf("PhraseSearches = %d", s.PhraseSearches)
	}
	if s.ByRank["combined"] != 3 || s.ByRank["cosine"] != 1 {
		t.Errorf("ByRank = %v", s.ByRank)
	}
	if s.TopQueries[0].Query != "hong kong" || s.TopQueries[0].Count != 2 {
		t.Errorf("TopQueries = %+v", s.TopQueries)
	}
	if s.TopTerms[0].Query != "hong" || s.TopTerms[0].Count != 3 {
		t.Errorf("TopTerms = %+v", s.TopTerms)
	}
	if s.P50LatencyMs != 10 || s.P99LatencyMs != 30 {
		t.Errorf("latency p50=%d p99=%d", s.P50LatencyMs, s.P99LatencyMs)
	}
	if events[3].Type != EventZeroResult || events[0].Type != EventSearch {
		t.Errorf("event types = %s/%s", events[3].Type, events[0].Type)
	}
}

func TestHandleMessages(t *testing.T) {
	agg := NewAggregator()
	ctx := context.Background()

	search, _ := json.Marshal(NewSearchEvent("test", "cosine", []string{"test"}, 0, 2, 2, time.Millisecond, false, ""))
	if err := HandleSearchEvent(agg)(ctx, nil, search); err != nil {
		t.Fatalf("search handler: %v", err)
	}
	if err := HandleSearchEvent(agg)(ctx, nil, []byte("{not json")); err != nil {
		t.Errorf("bad message should be skipped, got %v", err)
	}

	idx, _ := json.Marshal(indexer.CompletedEvent{RunID: "run-9", Documents: 12, Terms: 340})
	if err := HandleIndexEvent(agg)(ctx, nil, idx); err != nil {
		t.Fatalf("index handler: %v", err)
	}

	s := agg.Stats()
	if s.TotalSearches != 1 || s.IndexBuilds != 1 || s.IndexedDocuments != 12 || s.IndexedTerms != 340 || s.LastIndexRunID != "run-9" {
		t.Errorf("stats = %+v", s)
	}
}

func TestLatencyWindowBounded(t *testing.T) {
	agg := NewAggregator()
	for i := 0; i < maxLatencySamples+50; i++ {
		agg.RecordSearch(SearchEvent{Query: "q", LatencyMs: int64(i), TotalHits: 1})
	}
	if n := len(agg.latencies); n != maxLatencySamples {
		t.Errorf("latency samples = %d, want %d", n, maxLatencySamples)
	}
}
