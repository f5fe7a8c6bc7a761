// Command crawler crawls outward from a seed URL into the page store and
// announces the finished run on the crawl-complete topic.
//
// Usage:
//
//	go run ./cmd/crawler [-config configs/development.yaml] [-seed URL] [-budget N]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/websearch/internal/crawler"
	"github.com/Adithya-Monish-Kumar-K/websearch/internal/store"
	"github.com/Adithya-Monish-Kumar-K/websearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/websearch/pkg/database"
	"github.com/Adithya-Monish-Kumar-K/websearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/websearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/websearch/pkg/metrics"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	seed := flag.String("seed", "", "seed URL (overrides crawler.seedUrl)")
	budget := flag.Int("budget", 0, "page budget (overrides crawler.pageBudget)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *seed != "" {
		cfg.Crawler.SeedURL = *seed
	}
	if *budget > 0 {
		cfg.Crawler.PageBudget = *budget
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	if err := run(cfg); err != nil {
		slog.Error("crawl failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("starting crawler",
		"seed", cfg.Crawler.SeedURL,
		"budget", cfg.Crawler.PageBudget,
		"database", cfg.Database.Driver,
	)

	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()
	st := store.NewSQLStore(db)
	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrating page store: %w", err)
	}

	m := metrics.New()
	metricsSrv, err := metrics.Serve(cfg.Metrics)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		metricsSrv.Shutdown(shutdownCtx)
	}()

	var publisher kafka.Publisher = kafka.NopPublisher{}
	if cfg.Kafka.Enabled {
		publisher = kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.CrawlComplete)
	}
	defer publisher.Close()

	c := crawler.New(cfg.Crawler, st, nil, m)
	res, err := c.Crawl(ctx, cfg.Crawler.SeedURL, cfg.Crawler.PageBudget)
	if err != nil {
		return err
	}

	event := res.Event(cfg.Crawler.SeedURL)
	slog.Info("crawl finished",
		"run_id", res.RunID,
		"committed", res.Committed,
		"abandoned", len(res.Abandoned),
		"documents", event.Documents,
		"edges", event.Edges,
		"duration", res.Duration.Round(time.Millisecond),
	)
	// the crawl already happened; publish even if a signal arrived meanwhile
	if err := publisher.Publish(context.WithoutCancel(ctx), kafka.Event{Key: res.RunID, Value: event}); err != nil {
		return fmt.Errorf("publishing crawl-complete: %w", err)
	}
	if cfg.Kafka.Enabled {
		slog.Info("crawl-complete published", "topic", cfg.Kafka.Topics.CrawlComplete)
	}
	return nil
}
