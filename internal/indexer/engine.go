// Package indexer builds the title and body inverted indexes from stored
// pages and maintains the corpus vocabulary.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/websearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/websearch/internal/indexer/kvlog"
	"github.com/Adithya-Monish-Kumar-K/websearch/internal/store"
	"github.com/Adithya-Monish-Kumar-K/websearch/internal/textproc"
	"github.com/Adithya-Monish-Kumar-K/websearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/websearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/websearch/pkg/metrics"
)

const (
	TitleIndexFile = "title.kv"
	BodyIndexFile  = "body.kv"
)

// BuildStats summarises a full rebuild.
type BuildStats struct {
	Documents  int           `json:"documents"`
	Failed     int           `json:"failed"`
	Terms      int           `json:"terms"`
	TitleTerms int           `json:"titleTerms"`
	BodyTerms  int           `json:"bodyTerms"`
	Duration   time.Duration `json:"duration"`
}

type Engine struct {
	title    *index.InvertedIndex
	body     *index.InvertedIndex
	analyzer *textproc.Analyzer
	metrics  *metrics.Metrics
	logger   *slog.Logger

	mu    sync.RWMutex
	terms *TermTable
}

// Open opens (or creates) both indexes under cfg.DataDir and loads the
// vocabulary from them. m may be nil.
func Open(cfg config.IndexerConfig, analyzer *textproc.Analyzer, m *metrics.Metrics) (*Engine, error) {
	return open(cfg, analyzer, m, kvlog.Options{SyncWrites: cfg.SyncWrites})
}

// OpenReadOnly opens existing indexes for querying. The files must exist;
// IndexDocument and Build fail on the returned engine.
func OpenReadOnly(cfg config.IndexerConfig) (*Engine, error) {
	return open(cfg, nil, nil, kvlog.Options{ReadOnly: true})
}

func open(cfg config.IndexerConfig, analyzer *textproc.Analyzer, m *metrics.Metrics, opts kvlog.Options) (*Engine, error) {
	title, err := index.Open("title", filepath.Join(cfg.DataDir, TitleIndexFile), opts)
	if err != nil {
		return nil, err
	}
	body, err := index.Open("body", filepath.Join(cfg.DataDir, BodyIndexFile), opts)
	if err != nil {
		title.Close()
		return nil, err
	}
	terms, err := LoadTermTable(title, body)
	if err != nil {
		title.Close()
		body.Close()
		return nil, fmt.Errorf("loading term table: %w", err)
	}
	e := &Engine{
		title:    title,
		body:     body,
		analyzer: analyzer,
		metrics:  m,
		logger:   logger.WithComponent("indexer"),
		terms:    terms,
	}
	e.logger.Info("indexes opened",
		"data_dir", cfg.DataDir,
		"read_only", opts.ReadOnly,
		"title_terms", title.Len(),
		"body_terms", body.Len(),
		"vocabulary", terms.Len(),
	)
	return e, nil
}

func (e *Engine) Title() *index.InvertedIndex { return e.title }
func (e *Engine) Body() *index.InvertedIndex  { return e.body }

// Terms returns the current vocabulary. It must not be read concurrently
// with IndexDocument or Build.
func (e *Engine) Terms() *TermTable {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.terms
}

// analyze runs the text pipeline over one page. A panic inside it fails
// that page only.
func (e *Engine) analyze(page store.Page) (title, body map[string]*textproc.TermInfo, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("analyzing doc %d: %v", page.ID, r)
		}
	}()
	return e.analyzer.Analyze(page.Title), e.analyzer.Analyze(page.Content), nil
}

// IndexDocument adds page's title and body terms to the indexes. A storage
// failure on one term is logged and the remaining terms are still indexed;
// the joined failures are returned.
func (e *Engine) IndexDocument(page store.Page) error {
	if e.analyzer == nil {
		return kvlog.ErrReadOnly
	}
	titleTerms, bodyTerms, err := e.analyze(page)
	if err != nil {
		e.logger.Error("analyzing document failed", "doc_id", page.ID, "url", page.URL, "error", err)
		return err
	}

	var errs []error
	touched := make(map[string]struct{}, len(titleTerms)+len(bodyTerms))
	add := func(ix *index.InvertedIndex, terms map[string]*textproc.TermInfo) {
		for term, info := range terms {
			if err := ix.AddEntry(term, page.ID, info.Positions); err != nil {
				e.logger.Error("indexing term failed",
					"field", ix.Name(),
					"term", term,
					"doc_id", page.ID,
					"error", err,
				)
				errs = append(errs, err)
				continue
			}
			touched[term] = struct{}{}
		}
	}
	add(e.title, titleTerms)
	add(e.body, bodyTerms)

	// Deterministic ID assignment for terms first seen in this document.
	sorted := make([]string, 0, len(touched))
	for t := range touched {
		sorted = append(sorted, t)
	}
	sort.Strings(sorted)

	e.mu.Lock()
	for _, term := range sorted {
		tp, err := e.title.GetPostings(term)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		bp, err := e.body.GetPostings(term)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		e.terms.set(term, documentFrequency(tp, bp))
	}
	e.mu.Unlock()

	e.metrics.DocIndexed()
	e.logger.Debug("document indexed",
		"doc_id", page.ID,
		"title_terms", len(titleTerms),
		"body_terms", len(bodyTerms),
	)
	return errors.Join(errs...)
}

// Build replaces the indexes with the contents of pages: both indexes are
// cleared, every page is indexed, then both logs are compacted.
func (e *Engine) Build(ctx context.Context, pages []store.Page) (BuildStats, error) {
	start := time.Now()
	if err := e.title.Clear(); err != nil {
		return BuildStats{}, fmt.Errorf("clearing title index: %w", err)
	}
	if err := e.body.Clear(); err != nil {
		return BuildStats{}, fmt.Errorf("clearing body index: %w", err)
	}
	e.mu.Lock()
	e.terms = NewTermTable()
	e.mu.Unlock()

	var stats BuildStats
	for _, p := range pages {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if err := e.IndexDocument(p); err != nil {
			stats.Failed++
		}
		stats.Documents++
	}

	if err := e.title.Compact(); err != nil {
		return stats, fmt.Errorf("compacting title index: %w", err)
	}
	if err := e.body.Compact(); err != nil {
		return stats, fmt.Errorf("compacting body index: %w", err)
	}

	stats.TitleTerms = e.title.Len()
	stats.BodyTerms = e.body.Len()
	stats.Terms = e.Terms().Len()
	stats.Duration = time.Since(start)
	e.metrics.IndexBuilt(stats.Duration, stats.TitleTerms, stats.BodyTerms)
	e.logger.Info("index build complete",
		"documents", stats.Documents,
		"failed", stats.Failed,
		"terms", stats.Terms,
		"title_terms", stats.TitleTerms,
		"body_terms", stats.BodyTerms,
		"duration_ms", stats.Duration.Milliseconds(),
	)
	return stats, nil
}

func (e *Engine) Close() error {
	return errors.Join(e.title.Close(), e.body.Close())
}
