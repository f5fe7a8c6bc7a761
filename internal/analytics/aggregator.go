package analytics

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/websearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/websearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/websearch/pkg/logger"
)

const (
	maxLatencySamples = 10000
	maxSeenIDs        = 100000
)

type AggregatedStats struct {
	TotalSearches     int64            `json:"total_searches"`
	CacheHits         int64            `json:"cache_hits"`
	CacheMisses       int64            `json:"cache_misses"`
	ZeroResultCount   int64            `json:"zero_result_count"`
	PhraseSearches    int64            `json:"phrase_searches"`
	ByRank            map[string]int64 `json:"by_rank"`
	AvgLatencyMs      float64          `json:"avg_latency_ms"`
	P50LatencyMs      int64            `json:"p50_latency_ms"`
	P95LatencyMs      int64            `json:"p95_latency_ms"`
	P99LatencyMs      int64            `json:"p99_latency_ms"`
	TopQueries        []QueryCount     `json:"top_queries"`
	TopTerms          []QueryCount     `json:"top_terms"`
	ZeroResultQueries []QueryCount     `json:"zero_result_queries"`
	QueriesPerMinute  float64          `json:"queries_per_minute"`
	IndexBuilds       int64            `json:"index_builds"`
	IndexedDocuments  int              `json:"indexed_documents"`
	IndexedTerms      int              `json:"indexed_terms"`
	LastIndexRunID    string           `json:"last_index_run_id,omitempty"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Aggregator folds search and index events into running statistics. Only
// the most recent latency samples are kept for percentiles.
type Aggregator struct {
	mu                sync.RWMutex
	totalSearches     int64
	cacheHits         int64
	cacheMisses       int64
	zeroResults       int64
	phraseSearches    int64
	byRank            map[string]int64
	latencies         []int64
	next              int
	queryCounts       map[string]int64
	termCounts        map[string]int64
	zeroResultQueries map[string]int64
	seen              map[string]struct{}
	index             indexer.CompletedEvent
	indexBuilds       int64
	startTime         time.Time

	logger *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		byRank:            make(map[string]int64),
		latencies:         make([]int64, 0, 1024),
		queryCounts:       make(map[string]int64),
		termCounts:        make(map[string]int64),
		zeroResultQueries: make(map[string]int64),
		seen:              make(map[string]struct{}),
		startTime:         time.Now(),
		logger:            logger.WithComponent("analytics-aggregator"),
	}
}

// HandleSearchEvent decodes analytics-topic messages. Undecodable messages
// are logged and skipped so one bad record cannot stall the consumer.
func HandleSearchEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[SearchEvent](value)
		if err != nil {
			agg.logger.Error("failed to decode search event", "error", err)
			return nil
		}
		agg.RecordSearch(event)
		return nil
	}
}

// HandleIndexEvent decodes index.complete messages.
func HandleIndexEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[indexer.CompletedEvent](value)
		if err != nil {
			agg.logger.Error("failed to decode index event", "error", err)
			return nil
		}
		agg.RecordIndexBuild(event)
		return nil
	}
}

// RecordSearch folds one event in. Redelivered events (same ID) count once.
func (a *Aggregator) RecordSearch(event SearchEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if event.ID != "" {
		if _, dup := a.seen[event.ID]; dup {
			return
		}
		if len(a.seen) >= maxSeenIDs {
			clear(a.seen)
		}
		a.seen[event.ID] = struct{}{}
	}

	a.totalSearches++
	if event.CacheHit {
		a.cacheHits++
	} else {
		a.cacheMisses++
	}
	if event.Phrases > 0 {
		a.phraseSearches++
	}
	if event.Rank != "" {
		a.byRank[event.Rank]++
	}
	if len(a.latencies) < maxLatencySamples {
		a.latencies = append(a.latencies, event.LatencyMs)
	} else {
		a.latencies[a.next] = event.LatencyMs
		a.next = (a.next + 1) % maxLatencySamples
	}
	a.queryCounts[event.Query]++
	for _, t := range event.Terms {
		a.termCounts[t]++
	}
	if event.TotalHits == 0 {
		a.zeroResults++
		a.zeroResultQueries[event.Query]++
	}
}

func (a *Aggregator) RecordIndexBuild(event indexer.CompletedEvent) {
	a.mu.Lock()
	a.indexBuilds++
	a.index = event
	a.mu.Unlock()
	a.logger.Info("index build observed", "run_id", event.RunID, "documents", event.Documents, "terms", event.Terms)
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalSearches:    a.totalSearches,
		CacheHits:        a.cacheHits,
		CacheMisses:      a.cacheMisses,
		ZeroResultCount:  a.zeroResults,
		PhraseSearches:   a.phraseSearches,
		ByRank:           make(map[string]int64, len(a.byRank)),
		IndexBuilds:      a.indexBuilds,
		IndexedDocuments: a.index.Documents,
		IndexedTerms:     a.index.Terms,
		LastIndexRunID:   a.index.RunID,
	}
	for k, v := range a.byRank {
		stats.ByRank[k] = v
	}
	if len(a.latencies) > 0 {
		sorted := make([]int64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopQueries = topN(a.queryCounts, 10)
	stats.TopTerms = topN(a.termCounts, 10)
	stats.ZeroResultQueries = topN(a.zeroResultQueries, 10)
	elapsed := time.Since(a.startTime).Minutes()
	if elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalSearches) / elapsed
	}
	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Query < result[j].Query
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}

// Publisher returns a BatchPublisher that feeds events straight into a,
// for single-process runs without a broker.
func (a *Aggregator) Publisher() kafka.BatchPublisher {
	return localPublisher{agg: a}
}

type localPublisher struct{ agg *Aggregator }

func (p localPublisher) Publish(ctx context.Context, e kafka.Event) error {
	return p.PublishBatch(ctx, []kafka.Event{e})
}

func (p localPublisher) PublishBatch(_ context.Context, events []kafka.Event) error {
	for _, e := range events {
		if ev, ok := e.Value.(SearchEvent); ok {
			p.agg.RecordSearch(ev)
		}
	}
	return nil
}

func (localPublisher) Close() error { return nil }
