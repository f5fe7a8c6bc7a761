package executor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/websearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/websearch/internal/linkgraph"
	"github.com/Adithya-Monish-Kumar-K/websearch/internal/pagerank"
	"github.com/Adithya-Monish-Kumar-K/websearch/internal/store"
	"github.com/Adithya-Monish-Kumar-K/websearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/websearch/pkg/errors"
)

// Snapshot is an immutable view of the corpus: pages, indexes, vocabulary,
// link graph and PageRank, all taken at the same moment.
type Snapshot struct {
	Pages    map[int]store.Page
	Index    *indexer.Engine
	Graph    *linkgraph.Graph
	PageRank map[int]float64
	LoadedAt time.Time
}

// Documents is N, the corpus size used for IDF.
func (s *Snapshot) Documents() int { return len(s.Pages) }

// Loader assembles snapshots from the page store and the index files.
type Loader struct {
	store    store.Store
	indexCfg config.IndexerConfig
	prCfg    config.PageRankConfig
}

func NewLoader(st store.Store, indexCfg config.IndexerConfig, prCfg config.PageRankConfig) *Loader {
	return &Loader{store: st, indexCfg: indexCfg, prCfg: prCfg}
}

// Load reads every page, opens the indexes read-only, builds the link graph
// and computes PageRank over it. Missing index files yield ErrNotReady.
func (l *Loader) Load(ctx context.Context) (*Snapshot, error) {
	pages, err := l.store.GetAllPages(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading pages: %w", err)
	}
	engine, err := indexer.OpenReadOnly(l.indexCfg)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperrors.New(apperrors.ErrNotReady, http.StatusServiceUnavailable, "index has not been built")
		}
		return nil, fmt.Errorf("opening index: %w", err)
	}
	graph, err := linkgraph.Load(ctx, l.store)
	if err != nil {
		engine.Close()
		return nil, err
	}
	pr := pagerank.New(graph.Matrix())
	pr.Compute(l.prCfg.Iterations, l.prCfg.Damping)

	byID := make(map[int]store.Page, len(pages))
	for _, p := range pages {
		byID[p.ID] = p
	}
	return &Snapshot{
		Pages:    byID,
		Index:    engine,
		Graph:    graph,
		PageRank: pr.Scores(),
		LoadedAt: time.Now().UTC(),
	}, nil
}

func (s *Snapshot) urls(ids []int) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if p, ok := s.Pages[id]; ok {
			out = append(out, p.URL)
		}
	}
	return out
}

func (s *Snapshot) close() error {
	if s == nil || s.Index == nil {
		return nil
	}
	return s.Index.Close()
}
