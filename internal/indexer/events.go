package indexer

import "time"

// CompletedEvent is published on the index-complete topic after a rebuild;
// searchers reload their snapshot when they see it.
type CompletedEvent struct {
	RunID      string    `json:"run_id"`
	Documents  int       `json:"documents"`
	Failed     int       `json:"failed"`
	Terms      int       `json:"terms"`
	DurationMs int64     `json:"duration_ms"`
	FinishedAt time.Time `json:"finished_at"`
}

func (s BuildStats) Event(runID string) CompletedEvent {
	return CompletedEvent{
		RunID:      runID,
		Documents:  s.Documents,
		Failed:     s.Failed,
		Terms:      s.Terms,
		DurationMs: s.Duration.Milliseconds(),
		FinishedAt: time.Now().UTC(),
	}
}
