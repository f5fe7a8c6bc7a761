package analytics

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventSearch     EventType = "search"
	EventZeroResult EventType = "zero_result"
)

// SearchEvent describes one answered search request.
type SearchEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Query     string    `json:"query"`
	Terms     []string  `json:"terms"`
	Phrases   int       `json:"phrases"`
	Rank      string    `json:"rank"`
	TotalHits int       `json:"total_hits"`
	Returned  int       `json:"returned"`
	LatencyMs int64     `json:"latency_ms"`
	CacheHit  bool      `json:"cache_hit"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

// NewSearchEvent stamps an event with a fresh ID and the current time, and
// types it as a zero-result event when nothing matched.
func NewSearchEvent(query, rank string, terms []string, phrases, total, returned int, latency time.Duration, cacheHit bool, requestID string) SearchEvent {
	typ := EventSearch
	if total == 0 {
		typ = EventZeroResult
	}
	return SearchEvent{
		ID:        uuid.NewString(),
		Type:      typ,
		Query:     query,
		Terms:     terms,
		Phrases:   phrases,
		Rank:      rank,
		TotalHits: total,
		Returned:  returned,
		LatencyMs: latency.Milliseconds(),
		CacheHit:  cacheHit,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}

// Snapshot is a persisted copy of the aggregated stats.
type Snapshot struct {
	CapturedAt time.Time       `json:"captured_at"`
	Stats      AggregatedStats `json:"stats"`
}
