// Package crawler discovers pages breadth-first from a seed URL, persists
// them through the store and records the links between them.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/websearch/internal/linkgraph"
	"github.com/Adithya-Monish-Kumar-K/websearch/internal/store"
	"github.com/Adithya-Monish-Kumar-K/websearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/websearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/websearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/websearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/websearch/pkg/resilience"
)

// Result summarises one crawl run.
type Result struct {
	RunID     string
	Committed int
	Abandoned []string
	Duration  time.Duration
	Graph     *linkgraph.Graph
}

type Crawler struct {
	cfg     config.CrawlerConfig
	store   store.Store
	fetcher Fetcher
	metrics *metrics.Metrics
}

// New builds a crawler. A nil fetcher selects an HTTPFetcher configured from
// cfg; m may be nil.
func New(cfg config.CrawlerConfig, st store.Store, fetcher Fetcher, m *metrics.Metrics) *Crawler {
	return &Crawler{cfg: cfg, store: st, fetcher: fetcher, metrics: m}
}

// Workers returns the pool size: the configured value, otherwise twice the
// CPU count clamped to [4, 32].
func (c *Crawler) Workers() int {
	if c.cfg.Workers > 0 {
		return c.cfg.Workers
	}
	return max(4, min(2*runtime.NumCPU(), 32))
}

// run is the mutable state of a single Crawl call.
type run struct {
	c        *Crawler
	budget   int
	frontier *Frontier
	cancel   context.CancelFunc
	logger   *slog.Logger

	mu        sync.Mutex
	committed int
	nextID    int
	finalized bool
	abandoned []string
}

// Crawl fetches up to pageBudget pages reachable from seedURL. It stops when
// the budget is reached, when nothing is left to fetch, or when ctx is
// cancelled, and returns the link graph over the committed pages.
func (c *Crawler) Crawl(ctx context.Context, seedURL string, pageBudget int) (*Result, error) {
	if pageBudget <= 0 {
		return nil, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "page budget must be positive")
	}
	seed, seedStr, ok := NormalizeSeed(seedURL)
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "invalid seed url %q", seedURL)
	}
	fetcher := c.fetcher
	if fetcher == nil {
		fetcher = NewHTTPFetcher(c.cfg, NewLinkFilter(seed, c.cfg.SameHostOnly))
	}

	runID := uuid.NewString()
	ctx = logger.WithRunID(ctx, runID)
	log := logger.FromContext(ctx).With("component", "crawler")
	start := time.Now()

	if c.cfg.MaxDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.MaxDuration)
		defer cancel()
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("crawl not started: %w", err)
	}
	maxID, err := c.store.MaxPageID(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading max page id: %w", err)
	}

	workCtx, cancelWork := context.WithCancel(ctx)
	defer cancelWork()

	r := &run{
		c:        c,
		budget:   pageBudget,
		frontier: NewFrontier(),
		cancel:   cancelWork,
		logger:   log,
		nextID:   maxID + 1,
	}
	r.frontier.Push(seedStr)
	stop := context.AfterFunc(workCtx, r.frontier.Close)
	defer stop()

	workers := c.Workers()
	log.Info("crawl started",
		"seed", seedStr,
		"budget", pageBudget,
		"workers", workers,
		"next_id", r.nextID,
	)

	g, gctx := errgroup.WithContext(workCtx)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			r.work(gctx, fetcher)
			return nil
		})
	}
	done := make(chan struct{})
	go func() {
		g.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-workCtx.Done():
		drainErr := resilience.WithTimeout(context.Background(), c.cfg.DrainTimeout, "crawl-drain", func(dctx context.Context) error {
			select {
			case <-done:
				return nil
			case <-dctx.Done():
				return dctx.Err()
			}
		})
		if drainErr != nil {
			log.Warn("worker drain timed out, finalizing with committed pages", "error", drainErr)
		}
	}

	r.mu.Lock()
	r.finalized = true
	committed := r.committed
	abandoned := append([]string(nil), r.abandoned...)
	r.mu.Unlock()

	// Finalization must outlive a cancelled crawl context.
	finCtx := context.WithoutCancel(ctx)
	graph, err := linkgraph.Load(finCtx, c.store)
	if err != nil {
		return nil, err
	}

	res := &Result{
		RunID:     runID,
		Committed: committed,
		Abandoned: abandoned,
		Duration:  time.Since(start),
		Graph:     graph,
	}
	log.Info("crawl finished",
		"committed", committed,
		"abandoned", len(abandoned),
		"documents", graph.Size(),
		"edges", graph.EdgeCount(),
		"duration_ms", res.Duration.Milliseconds(),
		"cancelled", ctx.Err() != nil,
	)
	return res, nil
}

func (r *run) work(ctx context.Context, fetcher Fetcher) {
	for {
		t, ok := r.frontier.Pop()
		if !ok {
			return
		}
		r.c.metrics.SetFrontier(r.frontier.Len())
		r.process(ctx, fetcher, t)
		r.frontier.Done()
	}
}

func (r *run) process(ctx context.Context, fetcher Fetcher, t task) {
	if ctx.Err() != nil || r.budgetReached() {
		return
	}
	start := time.Now()
	doc, err := fetcher.Fetch(ctx, t.url)
	r.c.metrics.FetchObserved(time.Since(start))
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		r.fetchFailed(t, err)
		return
	}

	id, err := r.commit(ctx, doc)
	if err != nil {
		if !errors.Is(err, errBudgetReached) && ctx.Err() == nil {
			r.logger.Error("committing page failed", "url", t.url, "error", err)
			r.abandon(t.url)
		}
		return
	}
	r.logger.Debug("page committed", "url", t.url, "id", id, "links", len(doc.Links))

	// The page is committed; its links are recorded even if the run is
	// being cancelled.
	relCtx := context.WithoutCancel(ctx)
	for _, link := range doc.Links {
		if err := r.c.store.InsertRelationship(relCtx, doc.URL, link); err != nil {
			r.logger.Warn("recording link failed", "parent", doc.URL, "child", link, "error", err)
		}
		if !r.budgetReached() {
			r.frontier.Push(link)
		}
	}
}

func (r *run) fetchFailed(t task, err error) {
	kind := "unknown"
	var fe *FetchError
	if errors.As(err, &fe) {
		kind = fe.Kind
	}
	if IsTransient(err) && t.attempt < r.c.cfg.MaxRetries {
		if r.frontier.Retry(t) {
			r.c.metrics.FetchFailed(kind, true)
			r.logger.Warn("transient fetch failure, retrying",
				"url", t.url,
				"attempt", t.attempt+1,
				"error", err,
			)
			return
		}
	}
	r.c.metrics.FetchFailed(kind, false)
	r.logger.Warn("page abandoned", "url", t.url, "attempts", t.attempt+1, "error", err)
	r.abandon(t.url)
}

func (r *run) abandon(url string) {
	r.mu.Lock()
	r.abandoned = append(r.abandoned, url)
	r.mu.Unlock()
}

func (r *run) budgetReached() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.committed >= r.budget || r.finalized
}

var errBudgetReached = errors.New("page budget reached")

// commit persists doc. The budget check, the ID assignment and the store
// write share one critical section so committed pages never exceed the
// budget and IDs stay contiguous. A URL already in the store keeps its ID.
func (r *run) commit(ctx context.Context, doc *Document) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finalized || r.committed >= r.budget {
		return 0, errBudgetReached
	}

	page := store.Page{
		ID:           r.nextID,
		URL:          doc.URL,
		Title:        doc.Title,
		Content:      doc.Text,
		LastModified: doc.LastModified,
		Size:         doc.Size,
	}
	err := r.c.store.Insert(ctx, page)
	switch {
	case err == nil:
		r.nextID++
	case errors.Is(err, apperrors.ErrConflict):
		id, lookupErr := r.c.store.GetPageID(ctx, doc.URL)
		if lookupErr != nil {
			return 0, fmt.Errorf("resolving existing page: %w", lookupErr)
		}
		if id < 0 {
			return 0, fmt.Errorf("page %s conflicted but has no id", doc.URL)
		}
		page.ID = id
		if _, err := r.c.store.UpdateByID(ctx, page); err != nil {
			return 0, fmt.Errorf("updating page %d: %w", id, err)
		}
	default:
		return 0, fmt.Errorf("inserting page: %w", err)
	}

	r.committed++
	r.c.metrics.PageCommitted()
	if r.committed >= r.budget {
		r.logger.Info("page budget reached", "budget", r.budget)
		r.frontier.Close()
		r.cancel()
	}
	return page.ID, nil
}
