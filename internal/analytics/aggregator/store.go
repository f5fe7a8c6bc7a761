// Package aggregator persists periodic snapshots of the analytics
// aggregator so that stats history survives restarts.
package aggregator

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/websearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/websearch/pkg/database"
)

const schema = `CREATE TABLE IF NOT EXISTS analytics_snapshots (
	captured_at BIGINT NOT NULL,
	data        TEXT NOT NULL
)`

// Store keeps snapshots in the same database as the page store.
type Store struct {
	db     *database.Client
	logger *slog.Logger
}

func NewStore(db *database.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "analytics-store"),
	}
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating analytics_snapshots: %w", err)
	}
	return nil
}

func (s *Store) SaveSnapshot(ctx context.Context, stats analytics.AggregatedStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshaling stats: %w", err)
	}
	_, err = s.db.DB.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO analytics_snapshots (captured_at, data) VALUES (?, ?)`),
		time.Now().UTC().UnixNano(), string(data))
	if err != nil {
		return fmt.Errorf("saving analytics snapshot: %w", err)
	}
	s.logger.Debug("analytics snapshot saved", "total_searches", stats.TotalSearches)
	return nil
}

// LatestSnapshot returns nil, nil when nothing has been saved yet.
func (s *Store) LatestSnapshot(ctx context.Context) (*analytics.Snapshot, error) {
	snaps, err := s.ListSnapshots(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, nil
	}
	return &snaps[0], nil
}

// ListSnapshots returns the last limit snapshots, newest first. Rows that
// no longer decode are skipped.
func (s *Store) ListSnapshots(ctx context.Context, limit int) ([]analytics.Snapshot, error) {
	var rows []struct {
		CapturedAt int64  `db:"captured_at"`
		Data       string `db:"data"`
	}
	err := s.db.DB.SelectContext(ctx, &rows, s.db.Rebind(
		`SELECT captured_at, data FROM analytics_snapshots ORDER BY captured_at DESC LIMIT ?`), limit)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}

	out := make([]analytics.Snapshot, 0, len(rows))
	for _, r := range rows {
		var stats analytics.AggregatedStats
		if err := json.Unmarshal([]byte(r.Data), &stats); err != nil {
			s.logger.Warn("skipping corrupt snapshot", "error", err)
			continue
		}
		out = append(out, analytics.Snapshot{CapturedAt: time.Unix(0, r.CapturedAt).UTC(), Stats: stats})
	}
	return out, nil
}

// StartPeriodicSave snapshots agg every interval until ctx is cancelled,
// then takes one final snapshot. The returned channel closes once the final
// snapshot has been attempted.
func (s *Store) StartPeriodicSave(ctx context.Context, agg *analytics.Aggregator, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := s.SaveSnapshot(ctx, agg.Stats()); err != nil {
					s.logger.Error("periodic snapshot failed", "error", err)
				}
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := s.SaveSnapshot(shutdownCtx, agg.Stats()); err != nil {
					s.logger.Error("final snapshot failed", "error", err)
				}
				return
			}
		}
	}()
	s.logger.Info("periodic snapshot started", "interval", interval)
	return done
}
