// Command loadtest drives the search API with a mix of free-text and phrase
// queries across both rank modes and reports latency, status codes and the
// cache hit ratio seen in X-Cache.
//
// Usage:
//
//	go run ./cmd/loadtest [-url http://localhost:8080] [-concurrency 10] [-duration 30s] [-rps 0] [-queries file]
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

var defaultQueries = []string{
	"test page",
	`"hong kong"`,
	"computer science",
	`"computer science" department`,
	"movie",
	"news",
	"books",
	"the of and",
	"zebra",
}

var rankModes = []string{"combined", "cosine"}

type stats struct {
	total     atomic.Int64
	failed    atomic.Int64
	cacheHits atomic.Int64

	mu        sync.Mutex
	latencies []time.Duration
	codes     map[int]int64
}

func (s *stats) record(d time.Duration, code int, cacheHit bool, err error) {
	s.total.Add(1)
	if err != nil {
		s.failed.Add(1)
		return
	}
	if code < 200 || code >= 300 {
		s.failed.Add(1)
	}
	if cacheHit {
		s.cacheHits.Add(1)
	}
	s.mu.Lock()
	s.latencies = append(s.latencies, d)
	s.codes[code]++
	s.mu.Unlock()
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the search service")
	concurrency := flag.Int("concurrency", 10, "concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	rps := flag.Float64("rps", 0, "overall request rate limit (0 = unlimited)")
	queryFile := flag.String("queries", "", "file with one query per line")
	flag.Parse()

	queries := defaultQueries
	if *queryFile != "" {
		var err error
		if queries, err = readQueries(*queryFile); err != nil {
			fmt.Fprintf(os.Stderr, "reading queries: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Println("=== websearch load test ===")
	fmt.Printf("Target:      %s\n", *baseURL)
	fmt.Printf("Concurrency: %d\n", *concurrency)
	fmt.Printf("Duration:    %s\n", *duration)
	fmt.Printf("Queries:     %d unique x %d rank modes\n\n", len(queries), len(rankModes))

	s := run(*baseURL, queries, *concurrency, *duration, *rps)
	if !report(s, *duration) {
		os.Exit(1)
	}
}

func readQueries(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if q := strings.TrimSpace(sc.Text()); q != "" {
			out = append(out, q)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s has no queries", path)
	}
	return out, sc.Err()
}

func run(baseURL string, queries []string, concurrency int, d time.Duration, rps float64) *stats {
	s := &stats{codes: make(map[int]int64)}
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        concurrency * 2,
			MaxIdleConnsPerHost: concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < concurrency; w++ {
		g.Go(func() error {
			for i := w; ; i++ {
				if err := limiter.Wait(ctx); err != nil {
					return nil
				}
				q := queries[i%len(queries)]
				mode := rankModes[(i/len(queries))%len(rankModes)]
				target := fmt.Sprintf("%s/api/v1/search?q=%s&rank=%s&limit=10", baseURL, url.QueryEscape(q), mode)

				req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
				if err != nil {
					return err
				}
				start := time.Now()
				resp, err := client.Do(req)
				elapsed := time.Since(start)
				if ctx.Err() != nil {
					return nil
				}
				if err != nil {
					s.record(elapsed, 0, false, err)
					continue
				}
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				s.record(elapsed, resp.StatusCode, resp.Header.Get("X-Cache") == "hit", nil)
			}
		})
	}
	if err := g.Wait(); err != nil {
		fmt.Fprintf(os.Stderr, "load test aborted: %v\n", err)
	}
	return s
}

func report(s *stats, d time.Duration) bool {
	total := s.total.Load()
	fmt.Println("=== Results ===")
	fmt.Printf("Requests:     %d\n", total)
	fmt.Printf("Failed:       %d\n", s.failed.Load())
	if total == 0 {
		fmt.Println("\nWARNING: no requests completed. Is the search service running?")
		return false
	}
	fmt.Printf("Requests/sec: %.2f\n", float64(total)/d.Seconds())
	fmt.Printf("Cache hits:   %.1f%%\n", float64(s.cacheHits.Load())/float64(total)*100)

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.latencies) > 0 {
		sort.Slice(s.latencies, func(i, j int) bool { return s.latencies[i] < s.latencies[j] })
		var sum time.Duration
		for _, l := range s.latencies {
			sum += l
		}
		fmt.Println("\n=== Latency ===")
		fmt.Printf("Min: %s\n", s.latencies[0])
		fmt.Printf("Avg: %s\n", sum/time.Duration(len(s.latencies)))
		for _, p := range []int{50, 90, 99} {
			fmt.Printf("P%d: %s\n", p, percentile(s.latencies, p))
		}
		fmt.Printf("Max: %s\n", s.latencies[len(s.latencies)-1])
	}

	fmt.Println("\n=== Status codes ===")
	codes := make([]int, 0, len(s.codes))
	for c := range s.codes {
		codes = append(codes, c)
	}
	sort.Ints(codes)
	for _, c := range codes {
		fmt.Printf("  %d: %d\n", c, s.codes[c])
	}
	return true
}

func percentile(sorted []time.Duration, p int) time.Duration {
	idx := (p*len(sorted)+99)/100 - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
