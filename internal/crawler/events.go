package crawler

import "time"

// CompletedEvent is published on the crawl-complete topic when a crawl run
// finishes and its pages are committed.
type CompletedEvent struct {
	RunID      string    `json:"run_id"`
	Seed       string    `json:"seed"`
	Committed  int       `json:"committed"`
	Abandoned  int       `json:"abandoned"`
	Documents  int       `json:"documents"`
	Edges      int       `json:"edges"`
	DurationMs int64     `json:"duration_ms"`
	FinishedAt time.Time `json:"finished_at"`
}

// Event builds the completion event for r.
func (r *Result) Event(seed string) CompletedEvent {
	return CompletedEvent{
		RunID:      r.RunID,
		Seed:       seed,
		Committed:  r.Committed,
		Abandoned:  len(r.Abandoned),
		Documents:  r.Graph.Size(),
		Edges:      r.Graph.EdgeCount(),
		DurationMs: r.Duration.Milliseconds(),
		FinishedAt: time.Now().UTC(),
	}
}
