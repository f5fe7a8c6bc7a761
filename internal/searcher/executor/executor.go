// Package executor runs queries against the current corpus snapshot and
// assembles result records.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/websearch/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/websearch/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/websearch/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/websearch/internal/searcher/snippet"
	"github.com/Adithya-Monish-Kumar-K/websearch/internal/store"
	"github.com/Adithya-Monish-Kumar-K/websearch/internal/textproc"
	"github.com/Adithya-Monish-Kumar-K/websearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/websearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/websearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/websearch/pkg/tracing"
)

const (
	topTermsLimit = 5
	keywordsLimit = 10
)

// TermFrequency is a term and its occurrence count.
type TermFrequency struct {
	Term      string `json:"term"`
	Frequency int    `json:"frequency"`
}

// Result is one ranked document.
type Result struct {
	DocID          int              `json:"docId"`
	Title          string           `json:"title"`
	URL            string           `json:"url"`
	Score          float64          `json:"score"`
	CosineScore    float64          `json:"cosineScore"`
	PageRankScore  float64          `json:"pageRankScore"`
	TopTerms       []TermFrequency  `json:"topTerms"`
	TitlePositions map[string][]int `json:"titlePositions"`
	BodyPositions  map[string][]int `json:"bodyPositions"`
	ParentURLs     []string         `json:"parentUrls"`
	ChildURLs      []string         `json:"childUrls"`
	Snippets       []string         `json:"snippets"`
	LastModified   *time.Time       `json:"lastModified,omitempty"`
	Size           int              `json:"size"`
}

type Response struct {
	Query   string          `json:"query"`
	Rank    ranker.Mode     `json:"rank"`
	Terms   []string        `json:"terms"`
	Phrases []parser.Phrase `json:"phrases,omitempty"`
	Total   int             `json:"total"`
	Results []Result        `json:"results"`
}

// Status is the initialisation probe.
type Status struct {
	Initialized bool      `json:"initialized"`
	Documents   int       `json:"documents"`
	Terms       int       `json:"terms"`
	Links       int       `json:"links"`
	LoadedAt    time.Time `json:"loadedAt,omitempty"`
}

// Summary is a page without its content, used for listings.
type Summary struct {
	ID           int        `json:"id"`
	URL          string     `json:"url"`
	Title        string     `json:"title"`
	LastModified *time.Time `json:"lastModified,omitempty"`
	Size         int        `json:"size"`
}

type Listing struct {
	Total     int       `json:"total"`
	Limit     int       `json:"limit"`
	Offset    int       `json:"offset"`
	Documents []Summary `json:"documents"`
}

// Detail is the full record of one document.
type Detail struct {
	store.Page
	PageRankScore float64         `json:"pageRankScore"`
	ParentURLs    []string        `json:"parentUrls"`
	ChildURLs     []string        `json:"childUrls"`
	Keywords      []TermFrequency `json:"keywords"`
}

type Executor struct {
	loader   *Loader
	store    store.Store
	analyzer *textproc.Analyzer
	cfg      config.SearchConfig
	logger   *slog.Logger

	snap     atomic.Pointer[Snapshot]
	reloadMu sync.Mutex
	hooksMu  sync.Mutex
	onReload []func(context.Context)
}

func New(loader *Loader, st store.Store, analyzer *textproc.Analyzer, cfg config.SearchConfig) *Executor {
	return &Executor{
		loader:   loader,
		store:    st,
		analyzer: analyzer,
		cfg:      cfg,
		logger:   logger.WithComponent("query-executor"),
	}
}

// OnReload registers fn to run after every successful reload.
func (e *Executor) OnReload(fn func(context.Context)) {
	e.hooksMu.Lock()
	e.onReload = append(e.onReload, fn)
	e.hooksMu.Unlock()
}

// Reload loads a fresh snapshot and swaps it in. In-flight searches finish
// against the snapshot they started with.
func (e *Executor) Reload(ctx context.Context) (Status, error) {
	e.reloadMu.Lock()
	defer e.reloadMu.Unlock()

	start := time.Now()
	snap, err := e.loader.Load(ctx)
	if err != nil {
		return e.Status(), err
	}
	if old := e.snap.Swap(snap); old != nil {
		if err := old.close(); err != nil {
			e.logger.Warn("closing previous snapshot", "error", err)
		}
	}
	st := e.Status()
	e.logger.Info("corpus snapshot loaded",
		"documents", st.Documents,
		"terms", st.Terms,
		"links", st.Links,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	e.hooksMu.Lock()
	hooks := append(([]func(context.Context))(nil), e.onReload...)
	e.hooksMu.Unlock()
	for _, fn := range hooks {
		fn(ctx)
	}
	return st, nil
}

func (e *Executor) Ready() bool {
	return e.snap.Load() != nil
}

// ReadyCheck adapts Ready to a health check.
func (e *Executor) ReadyCheck(context.Context) error {
	if !e.Ready() {
		return apperrors.ErrNotReady
	}
	return nil
}

func (e *Executor) Status() Status {
	snap := e.snap.Load()
	if snap == nil {
		return Status{}
	}
	return Status{
		Initialized: true,
		Documents:   snap.Documents(),
		Terms:       snap.Index.Terms().Len(),
		Links:       snap.Graph.EdgeCount(),
		LoadedAt:    snap.LoadedAt,
	}
}

// Mode resolves a request's rank parameter, falling back to the configured
// default.
func (e *Executor) Mode(rank string) (ranker.Mode, error) {
	if rank == "" {
		rank = e.cfg.DefaultRank
	}
	m := ranker.Mode(rank)
	if !m.Valid() {
		return "", apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "rank must be %q or %q", ranker.ModeCosine, ranker.ModeCombined)
	}
	return m, nil
}

// Limit clamps a requested result count to [1, MaxResults].
func (e *Executor) Limit(limit int) int {
	if limit <= 0 {
		limit = e.cfg.DefaultLimit
	}
	if e.cfg.MaxResults > 0 && limit > e.cfg.MaxResults {
		limit = e.cfg.MaxResults
	}
	return limit
}

// Parse normalises raw with the executor's analyzer.
func (e *Executor) Parse(raw string) *parser.Query {
	return parser.Parse(raw, e.analyzer)
}

// Search ranks the corpus against raw. An empty or all-stopword query, or
// one whose terms the corpus has never seen, yields an empty result list.
func (e *Executor) Search(ctx context.Context, raw string, mode ranker.Mode, limit int) (*Response, error) {
	snap := e.snap.Load()
	if snap == nil {
		return nil, apperrors.New(apperrors.ErrNotReady, http.StatusServiceUnavailable, "search index is not loaded")
	}
	if !mode.Valid() {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "unknown rank mode %q", mode)
	}
	limit = e.Limit(limit)

	_, parseSpan := tracing.StartChildSpan(ctx, "search.parse")
	q := e.Parse(raw)
	parseSpan.SetAttr("terms", len(q.Terms))
	parseSpan.SetAttr("phrases", len(q.Phrases))
	parseSpan.End()

	resp := &Response{Query: raw, Rank: mode, Terms: q.Terms, Phrases: q.Phrases, Results: []Result{}}
	if q.Empty() {
		return resp, nil
	}

	_, scoreSpan := tracing.StartChildSpan(ctx, "search.score")
	corpus := ranker.Corpus{
		Title:     snap.Index.Title(),
		Body:      snap.Index.Body(),
		Terms:     snap.Index.Terms(),
		Documents: snap.Documents(),
		PageRank:  snap.PageRank,
	}
	weights := ranker.Weights{Title: e.cfg.TitleWeight, Body: e.cfg.BodyWeight}
	matches := ranker.Score(q, corpus, weights, mode, e.logger)
	top := merger.TopK(matches, limit)
	scoreSpan.SetAttr("matches", len(matches))
	scoreSpan.End()

	_, buildSpan := tracing.StartChildSpan(ctx, "search.results")
	for _, m := range top {
		page, ok := snap.Pages[m.DocID]
		if !ok {
			// indexed under an ID the page store no longer has
			continue
		}
		resp.Results = append(resp.Results, e.result(snap, page, m, q.Terms))
	}
	buildSpan.End()
	resp.Total = len(matches)
	return resp, nil
}

func (e *Executor) result(snap *Snapshot, page store.Page, m ranker.Match, queryTerms []string) Result {
	top := topTerms(queryTerms, m.TitlePositions, m.BodyPositions, topTermsLimit)
	snippetTerms := make([]string, len(top))
	for i, tf := range top {
		snippetTerms[i] = tf.Term
	}

	snippets := snippet.Build(textproc.Tokenize(page.Content), m.BodyPositions, snippetTerms, e.cfg.SnippetWindow)
	if len(snippets) == 0 {
		snippets = snippet.Build(textproc.Tokenize(page.Title), m.TitlePositions, snippetTerms, e.cfg.SnippetWindow)
	}
	if snippets == nil {
		snippets = []string{}
	}

	return Result{
		DocID:          page.ID,
		Title:          page.Title,
		URL:            page.URL,
		Score:          m.Score,
		CosineScore:    m.Cosine,
		PageRankScore:  m.PageRank,
		TopTerms:       top,
		TitlePositions: nonNil(m.TitlePositions),
		BodyPositions:  nonNil(m.BodyPositions),
		ParentURLs:     snap.urls(snap.Graph.Parents(page.ID)),
		ChildURLs:      snap.urls(snap.Graph.Children(page.ID)),
		Snippets:       snippets,
		LastModified:   page.LastModified,
		Size:           page.Size,
	}
}

// topTerms ranks the query terms a document holds by combined title and
// body frequency, ties broken alphabetically.
func topTerms(queryTerms []string, title, body map[string][]int, limit int) []TermFrequency {
	out := make([]TermFrequency, 0, len(queryTerms))
	for _, t := range queryTerms {
		n := len(title[t]) + len(body[t])
		if n > 0 {
			out = append(out, TermFrequency{Term: t, Frequency: n})
		}
	}
	sortFrequencies(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func sortFrequencies(tfs []TermFrequency) {
	sort.Slice(tfs, func(i, j int) bool {
		if tfs[i].Frequency != tfs[j].Frequency {
			return tfs[i].Frequency > tfs[j].Frequency
		}
		return tfs[i].Term < tfs[j].Term
	})
}

func nonNil(m map[string][]int) map[string][]int {
	if m == nil {
		return map[string][]int{}
	}
	return m
}

// Document returns the stored page with its links, PageRank and most
// frequent terms. Title occurrences count twice.
func (e *Executor) Document(ctx context.Context, id int) (*Detail, error) {
	page, err := e.store.GetPage(ctx, id)
	if err != nil {
		return nil, err
	}
	parents, err := e.store.ParentURLs(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading parents of %d: %w", id, err)
	}
	children, err := e.store.ChildURLs(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading children of %d: %w", id, err)
	}
	d := &Detail{
		Page:       *page,
		ParentURLs: parents,
		ChildURLs:  children,
		Keywords:   e.keywords(page),
	}
	if snap := e.snap.Load(); snap != nil {
		d.PageRankScore = snap.PageRank[id]
	}
	return d, nil
}

func (e *Executor) keywords(page *store.Page) []TermFrequency {
	counts := make(map[string]int)
	for term, info := range e.analyzer.Analyze(page.Title) {
		counts[term] += 2 * info.Frequency
	}
	for term, info := range e.analyzer.Analyze(page.Content) {
		counts[term] += info.Frequency
	}
	out := make([]TermFrequency, 0, len(counts))
	for t, n := range counts {
		out = append(out, TermFrequency{Term: t, Frequency: n})
	}
	sortFrequencies(out)
	if len(out) > keywordsLimit {
		out = out[:keywordsLimit]
	}
	return out
}

// List pages through the store in ID order.
func (e *Executor) List(ctx context.Context, limit, offset int) (*Listing, error) {
	limit = e.Limit(limit)
	if offset < 0 {
		offset = 0
	}
	total, err := e.store.CountPages(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting pages: %w", err)
	}
	pages, err := e.store.ListPages(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing pages: %w", err)
	}
	l := &Listing{Total: total, Limit: limit, Offset: offset, Documents: make([]Summary, 0, len(pages))}
	for _, p := range pages {
		l.Documents = append(l.Documents, Summary{
			ID:           p.ID,
			URL:          p.URL,
			Title:        p.Title,
			LastModified: p.LastModified,
			Size:         p.Size,
		})
	}
	return l, nil
}

// Close releases the current snapshot.
func (e *Executor) Close() error {
	return e.snap.Swap(nil).close()
}
