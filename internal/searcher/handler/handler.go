// Package handler exposes the search executor over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/websearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/websearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/websearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/websearch/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/websearch/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/websearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/websearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/websearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/websearch/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/websearch/pkg/tracing"
)

// Searcher is the part of *executor.Executor the handlers use.
type Searcher interface {
	Parse(raw string) *parser.Query
	Mode(rank string) (ranker.Mode, error)
	Limit(limit int) int
	Search(ctx context.Context, raw string, mode ranker.Mode, limit int) (*executor.Response, error)
	Document(ctx context.Context, id int) (*executor.Detail, error)
	List(ctx context.Context, limit, offset int) (*executor.Listing, error)
	Status() executor.Status
	Reload(ctx context.Context) (executor.Status, error)
}

type Handler struct {
	searcher  Searcher
	cache     *cache.QueryCache
	collector *analytics.Collector
	tracer    *tracing.Tracer
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// New builds the handlers. queryCache must not be nil (use cache.New(nil, ...)
// to disable caching); collector, tracer and m may be.
func New(s Searcher, queryCache *cache.QueryCache, collector *analytics.Collector, tracer *tracing.Tracer, m *metrics.Metrics) *Handler {
	return &Handler{
		searcher:  s,
		cache:     queryCache,
		collector: collector,
		tracer:    tracer,
		metrics:   m,
		logger:    logger.WithComponent("search-handler"),
	}
}

// Register mounts the search API on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/documents", h.ListDocuments)
	mux.HandleFunc("GET /api/v1/documents/{id}", h.Document)
	mux.HandleFunc("GET /api/v1/status", h.Status)
	mux.HandleFunc("POST /api/v1/reload", h.Reload)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

// Search answers GET /api/v1/search?q=&rank=&limit=. A missing or empty q
// is an empty query and yields an empty result list.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, span := h.tracer.Start(r.Context(), "search", middleware.GetRequestID(r))
	defer span.Finish()
	log := logger.FromContext(ctx)

	params := r.URL.Query()
	raw := params.Get("q")
	span.SetAttr("query", raw)

	mode, err := h.searcher.Mode(params.Get("rank"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	limit, err := intParam(params, "limit", 0)
	if err != nil {
		h.writeError(w, err)
		return
	}
	limit = h.searcher.Limit(limit)

	q := h.searcher.Parse(raw)
	compute := func() (*executor.Response, error) {
		return h.searcher.Search(ctx, raw, mode, limit)
	}

	var (
		resp        *executor.Response
		cacheHit    bool
		cacheStatus = "bypass"
	)
	if q.Empty() {
		resp, err = compute()
	} else {
		_, cacheSpan := tracing.StartChildSpan(ctx, "search.cache")
		resp, cacheHit, err = h.cache.GetOrCompute(ctx, cache.Key(q, mode, limit), compute)
		cacheSpan.SetAttr("hit", cacheHit)
		cacheSpan.End()
		cacheStatus = "miss"
		if cacheHit {
			cacheStatus = "hit"
		}
	}
	if err != nil {
		log.Error("search failed", "query", raw, "error", err)
		h.writeError(w, err)
		return
	}
	if cacheHit && resp.Query != raw {
		// equivalent spellings share an entry; echo this request's text
		cp := *resp
		cp.Query = raw
		resp = &cp
	}

	elapsed := time.Since(start)
	resultType := "results"
	if resp.Total == 0 {
		resultType = "zero"
	}
	h.metrics.SearchObserved(string(mode), resultType, cacheStatus, elapsed, len(resp.Results))
	log.Info("search completed",
		"query", raw,
		"rank", mode,
		"total", resp.Total,
		"returned", len(resp.Results),
		"cache", cacheStatus,
		"latency_ms", elapsed.Milliseconds(),
	)
	if h.collector != nil {
		h.collector.Track(analytics.NewSearchEvent(raw, string(mode), q.Terms, len(q.Phrases),
			resp.Total, len(resp.Results), elapsed, cacheHit, middleware.GetRequestID(r)))
	}

	w.Header().Set("X-Cache", cacheStatus)
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Document(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id < 1 {
		h.writeError(w, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "document id must be a positive integer"))
		return
	}
	d, err := h.searcher.Document(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, d)
}

func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	limit, err := intParam(params, "limit", 0)
	if err != nil {
		h.writeError(w, err)
		return
	}
	offset, err := intParam(params, "offset", 0)
	if err != nil {
		h.writeError(w, err)
		return
	}
	l, err := h.searcher.List(r.Context(), limit, offset)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, l)
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.searcher.Status())
}

// Reload swaps in a fresh corpus snapshot. Reload hooks registered on the
// executor (cache invalidation among them) run before this returns.
func (h *Handler) Reload(w http.ResponseWriter, r *http.Request) {
	st, err := h.searcher.Reload(r.Context())
	if err != nil {
		logger.FromContext(r.Context()).Error("reload failed", "error", err)
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, st)
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	st := h.cache.Stats()
	total := st.Hits + st.Misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(st.Hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"enabled":  st.Enabled,
		"hits":     st.Hits,
		"misses":   st.Misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
		"breaker":  st.Breaker,
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if !h.cache.Enabled() {
		h.writeError(w, apperrors.New(apperrors.ErrUnavailable, http.StatusServiceUnavailable, "caching is disabled"))
		return
	}
	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, apperrors.New(apperrors.ErrUnavailable, http.StatusServiceUnavailable, "cache invalidation failed"))
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func intParam(params map[string][]string, name string, def int) (int, error) {
	vals := params[name]
	if len(vals) == 0 || vals[0] == "" {
		return def, nil
	}
	n, err := strconv.Atoi(vals[0])
	if err != nil || n < 0 {
		return 0, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "%s must be a non-negative integer", name)
	}
	return n, nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

// writeError maps err to its status. Only AppError messages reach the
// client; anything else is reported by status text.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	msg := http.StatusText(status)
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		msg = appErr.Message
	}
	h.writeJSON(w, status, map[string]string{"error": msg})
}
