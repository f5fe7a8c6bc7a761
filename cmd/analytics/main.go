// Command analytics aggregates search events from Kafka and serves the
// totals at GET /api/v1/analytics. Snapshots of the totals are written to
// the database periodically and served at GET /api/v1/analytics/history.
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/development.yaml]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/websearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/websearch/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/websearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/websearch/pkg/database"
	"github.com/Adithya-Monish-Kumar-K/websearch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/websearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/websearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/websearch/pkg/middleware"
)

const snapshotInterval = time.Minute

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	if err := run(cfg); err != nil {
		slog.Error("analytics service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("analytics service stopped")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	slog.Info("starting analytics service", "port", cfg.Analytics.Port)

	if !cfg.Kafka.Enabled {
		return errors.New("analytics service needs kafka.enabled; the searcher aggregates locally without it")
	}

	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()
	snapshots := aggregator.NewStore(db)
	if err := snapshots.Migrate(ctx); err != nil {
		return err
	}
	if last, err := snapshots.LatestSnapshot(ctx); err != nil {
		slog.Warn("reading last snapshot failed", "error", err)
	} else if last != nil {
		slog.Info("previous analytics snapshot",
			"captured_at", last.CapturedAt,
			"total_searches", last.Stats.TotalSearches,
		)
	}

	agg := analytics.NewAggregator()
	consumers := []*kafka.Consumer{
		kafka.NewConsumer(cfg.Kafka, "analytics", cfg.Kafka.Topics.AnalyticsEvents, analytics.HandleSearchEvent(agg)),
		kafka.NewConsumer(cfg.Kafka, "analytics-index", cfg.Kafka.Topics.IndexComplete, analytics.HandleIndexEvent(agg)),
	}
	for _, c := range consumers {
		go func() {
			if err := c.Start(ctx); err != nil && ctx.Err() == nil {
				slog.Error("consumer stopped", "error", err)
			}
		}()
	}
	saved := snapshots.StartPeriodicSave(ctx, agg, snapshotInterval)
	slog.Info("analytics aggregator started",
		"search_topic", cfg.Kafka.Topics.AnalyticsEvents,
		"index_topic", cfg.Kafka.Topics.IndexComplete,
	)

	checker := health.NewChecker()
	checker.Register("database", health.PingCheck(db.Ping))

	mux := http.NewServeMux()
	analytics.NewHandler(agg, snapshots).Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Analytics.Port),
		Handler:      middleware.Chain(mux, middleware.RequestID),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("analytics service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-saved
	return nil
}
