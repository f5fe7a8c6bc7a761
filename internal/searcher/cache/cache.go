// Package cache memoises search responses in Redis, keyed by the normalised
// query so that equivalent spellings share an entry.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/websearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/websearch/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/websearch/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/websearch/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/websearch/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/websearch/pkg/resilience"
	"golang.org/x/sync/singleflight"
)

const (
	keyPrefix   = "websearch:q:"
	breakerName = "redis-cache"
)

// Backend is the key-value store behind the cache. *pkgredis.Client
// satisfies it.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPrefix(ctx context.Context, prefix string) (int64, error)
}

// Stats reports lookups since start.
type Stats struct {
	Enabled bool   `json:"enabled"`
	Hits    int64  `json:"hits"`
	Misses  int64  `json:"misses"`
	Breaker string `json:"breaker"`
}

type QueryCache struct {
	backend Backend
	ttl     time.Duration
	breaker *resilience.CircuitBreaker
	metrics *metrics.Metrics
	group   singleflight.Group
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New wraps backend. A nil backend disables caching: every lookup misses
// and GetOrCompute always computes.
func New(backend Backend, ttl time.Duration, m *metrics.Metrics) *QueryCache {
	m.BreakerState(breakerName, int(resilience.StateClosed))
	return &QueryCache{
		backend: backend,
		ttl:     ttl,
		breaker: resilience.NewCircuitBreaker(breakerName, resilience.CircuitBreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     15 * time.Second,
			// a miss or a caller hanging up says nothing about redis health
			IsFailure: func(err error) bool {
				return !pkgredis.IsNilError(err) && !errors.Is(err, context.Canceled)
			},
			OnStateChange: func(name string, _, to resilience.State) {
				m.BreakerState(name, int(to))
			},
		}),
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
}

func (c *QueryCache) Enabled() bool { return c.backend != nil }

// Key derives the cache key for a parsed query, rank mode and limit.
func Key(q *parser.Query, mode ranker.Mode, limit int) string {
	raw := q.Key() + "|rank=" + string(mode) + "|limit=" + strconv.Itoa(limit)
	sum := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, sum[:16])
}

func (c *QueryCache) get(ctx context.Context, key string) (*executor.Response, bool) {
	if c.backend == nil {
		return nil, false
	}
	var data []byte
	err := c.breaker.Execute(func() error {
		var err error
		data, err = c.backend.Get(ctx, key)
		return err
	})
	if pkgredis.IsNilError(err) {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("cache get failed", "key", key, "error", err)
		return nil, false
	}
	if data == nil {
		return nil, false
	}
	var resp executor.Response
	if err := json.Unmarshal(data, &resp); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		return nil, false
	}
	return &resp, true
}

func (c *QueryCache) set(ctx context.Context, key string, resp *executor.Response) {
	if c.backend == nil {
		return
	}
	data, err := json.Marshal(resp)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Execute(func() error {
		return c.backend.Set(ctx, key, data, c.ttl)
	})
	if err != nil {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

func (c *QueryCache) record(hit bool) {
	if hit {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	c.metrics.CacheLookup(hit)
}

// GetOrCompute returns the cached response for key, or runs compute and
// stores its result. Concurrent misses on one key share a single compute.
// Backend failures degrade to computing; they never fail the search.
func (c *QueryCache) GetOrCompute(ctx context.Context, key string, compute func() (*executor.Response, error)) (*executor.Response, bool, error) {
	if resp, ok := c.get(ctx, key); ok {
		c.record(true)
		return resp, true, nil
	}
	c.record(false)
	val, err, _ := c.group.Do(key, func() (any, error) {
		resp, err := compute()
		if err != nil {
			return nil, err
		}
		c.set(ctx, key, resp)
		return resp, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*executor.Response), false, nil
}

// Invalidate drops every cached response. Called whenever the corpus
// snapshot changes.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	if c.backend == nil {
		return nil
	}
	var deleted int64
	err := c.breaker.Execute(func() error {
		var err error
		deleted, err = c.backend.FlushByPrefix(ctx, keyPrefix)
		return err
	})
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return nil
}

func (c *QueryCache) Stats() Stats {
	return Stats{
		Enabled: c.Enabled(),
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Breaker: c.breaker.GetState().String(),
	}
}
