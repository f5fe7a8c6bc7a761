// Command indexer builds the title and body indexes from the page store.
// With -once (or with Kafka disabled) it builds once and exits; otherwise
// it rebuilds on every crawl-complete event.
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

	"github.com/Adithya-Monish-Kumar-K/websearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/websearch/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/websearch/internal/store"
	"github.com/Adithya-Monish-Kumar-K/websearch/internal/textproc"
	"github.com/Adithya-Monish-Kumar-K/websearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/websearch/pkg/database"
	"github.com/Adithya-Monish-Kumar-K/websearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/websearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/websearch/pkg/metrics"
	"github.com/google/uuid"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	once := flag.Bool("once", false, "build the index once and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	if err := run(cfg, *once || !cfg.Kafka.Enabled); err != nil {
		slog.Error("indexer failed", "error", err)
		os.Exit(1)
	}
	slog.Info("indexer stopped")
}

func run(cfg *config.Config, once bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("starting indexer", "data_dir", cfg.Indexer.DataDir, "stemmer", cfg.Indexer.Stemmer, "once", once)

	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()
	st := store.NewSQLStore(db)
	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrating page store: %w", err)
	}

	analyzer, err := textproc.New(cfg.Indexer.Stemmer)
	if err != nil {
		return err
	}
	m := metrics.New()
	metricsCfg := cfg.Metrics
	// a one-shot build exits before anything could scrape it
	metricsCfg.Enabled = metricsCfg.Enabled && !once
	metricsSrv, err := metrics.Serve(metricsCfg)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		metricsSrv.Shutdown(shutdownCtx)
	}()

	engine, err := indexer.Open(cfg.Indexer, analyzer, m)
	if err != nil {
		return fmt.Errorf("opening index: %w", err)
	}
	defer engine.Close()

	var publisher kafka.Publisher = kafka.NopPublisher{}
	if cfg.Kafka.Enabled {
		publisher = kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete)
	}
	defer publisher.Close()
	rb := consumer.NewRebuilder(engine, st, publisher)

	if once {
		stats, err := rb.Rebuild(ctx, uuid.NewString())
		if err != nil {
			return err
		}
		slog.Info("index built",
			"documents", stats.Documents,
			"failed", stats.Failed,
			"terms", stats.Terms,
			"duration", stats.Duration.Round(time.Millisecond),
		)
		return nil
	}

	c := kafka.NewConsumer(cfg.Kafka, "indexer", cfg.Kafka.Topics.CrawlComplete, rb.HandleMessage())
	slog.Info("indexer consuming",
		"topic", cfg.Kafka.Topics.CrawlComplete,
		"group", cfg.Kafka.ConsumerGroup,
	)
	if err := c.Start(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("consuming crawl events: %w", err)
	}
	return nil
}
