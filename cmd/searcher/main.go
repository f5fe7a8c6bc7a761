// Command searcher serves the search API over the latest corpus snapshot.
// It reloads the snapshot whenever an index-complete event arrives.
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
	"github.com/Adithya-Monish-Kumar-K/websearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/websearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/websearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/websearch/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/websearch/internal/store"
	"github.com/Adithya-Monish-Kumar-K/websearch/internal/textproc"
	"github.com/Adithya-Monish-Kumar-K/websearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/websearch/pkg/database"
	apperrors "github.com/Adithya-Monish-Kumar-K/websearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/websearch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/websearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/websearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/websearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/websearch/pkg/middleware"
	pkgredis "github.com/Adithya-Monish-Kumar-K/websearch/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/websearch/pkg/tracing"
)

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
		slog.Error("search service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("search service stopped")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	slog.Info("starting search service", "port", cfg.Server.Port)

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
	metricsSrv, err := metrics.Serve(cfg.Metrics)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		metricsSrv.Shutdown(shutdownCtx)
	}()

	exec := executor.New(executor.NewLoader(st, cfg.Indexer, cfg.PageRank), st, analyzer, cfg.Search)
	defer exec.Close()

	var backend cache.Backend
	var redisClient *pkgredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			backend = redisClient
			slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}
	queryCache := cache.New(backend, cfg.Redis.CacheTTL, m)
	exec.OnReload(func(ctx context.Context) {
		if err := queryCache.Invalidate(ctx); err != nil {
			slog.Warn("cache invalidation after reload failed", "error", err)
		}
	})

	if _, err := exec.Reload(ctx); err != nil {
		if !errors.Is(err, apperrors.ErrNotReady) {
			return fmt.Errorf("loading corpus: %w", err)
		}
		slog.Warn("no index yet; serving 503 until one is built", "data_dir", cfg.Indexer.DataDir)
	}

	aggregator := analytics.NewAggregator()
	var analyticsPublisher kafka.BatchPublisher = aggregator.Publisher()
	if cfg.Kafka.Enabled {
		analyticsPublisher = kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		startConsumers(ctx, cfg, exec, aggregator)
	}
	defer analyticsPublisher.Close()
	collector := analytics.NewCollector(analyticsPublisher, cfg.Analytics.BufferSize, cfg.Analytics.BatchSize, cfg.Analytics.FlushInterval)
	collector.Start(ctx)
	defer collector.Close()

	checker := health.NewChecker()
	checker.Register("database", health.PingCheck(st.Ping))
	checker.Register("snapshot", health.PingCheck(exec.ReadyCheck))
	if redisClient != nil {
		checker.Register("redis", health.OptionalCheck(redisClient.Ping))
	}

	mux := http.NewServeMux()
	tracer := tracing.NewTracer(cfg.Tracing.Enabled, cfg.Tracing.SampleRate)
	handler.New(exec, queryCache, collector, tracer, m).Register(mux)
	analytics.NewHandler(aggregator, nil).Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	mws := []func(http.Handler) http.Handler{
		middleware.RequestID,
		middleware.Metrics(m),
		middleware.CORS(middleware.DefaultCORSConfig(cfg.Server.CORSOrigins)),
	}
	if cfg.Server.RateLimitRPS > 0 {
		mws = append(mws, middleware.RateLimit(middleware.NewClientLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst, 10*time.Minute)))
	}
	mws = append(mws, middleware.Timeout(cfg.Server.RequestTimeout))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      middleware.Chain(mux, mws...),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	// handlers may still be tracking events until Shutdown returns
	<-shutdownDone
	return nil
}

// startConsumers reloads the snapshot on index-complete and feeds the
// local analytics aggregator from the shared analytics topic.
//
// Every replica must see every index-complete event, so the reload group is
// per host.
func startConsumers(ctx context.Context, cfg *config.Config, exec *executor.Executor, agg *analytics.Aggregator) {
	host, _ := os.Hostname()
	reload := kafka.NewConsumer(cfg.Kafka, "searcher-"+host, cfg.Kafka.Topics.IndexComplete,
		func(ctx context.Context, key, value []byte) error {
			event, err := kafka.DecodeJSON[indexer.CompletedEvent](value)
			if err != nil {
				slog.Error("failed to decode index event", "error", err)
				return nil
			}
			slog.Info("index rebuilt, reloading", "run_id", event.RunID, "documents", event.Documents)
			if _, err := exec.Reload(ctx); err != nil {
				return fmt.Errorf("reloading after index run %s: %w", event.RunID, err)
			}
			return nil
		})
	events := kafka.NewConsumer(cfg.Kafka, "searcher-analytics-"+host, cfg.Kafka.Topics.AnalyticsEvents, analytics.HandleSearchEvent(agg))

	for _, c := range []*kafka.Consumer{reload, events} {
		go func() {
			if err := c.Start(ctx); err != nil && ctx.Err() == nil {
				slog.Error("consumer stopped", "error", err)
			}
		}()
	}
}
