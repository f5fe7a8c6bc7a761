package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/websearch/internal/store"
	"github.com/Adithya-Monish-Kumar-K/websearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/websearch/pkg/database"
	apperrors "github.com/Adithya-Monish-Kumar-K/websearch/pkg/errors"
)

func newTestStore(t *testing.T) *store.SQLStore {
	t.Helper()
	ctx := context.Background()
	db, err := database.New(ctx, config.DatabaseConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "crawl.db"),
	})
	if err != nil {
		t.Fatalf("opening sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	s := store.NewSQLStore(db)
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return s
}

func testConfig() config.CrawlerConfig {
	return config.CrawlerConfig{
		Workers:        4,
		MaxRetries:     2,
		RequestTimeout: 5 * time.Second,
		DrainTimeout:   5 * time.Second,
		UserAgent:      "websearch-test",
		SameHostOnly:   true,
		MaxBodyBytes:   1 << 20,
	}
}

// site serves a fixed set of HTML pages and counts hits per path.
type site struct {
	mu    sync.Mutex
	hits  map[string]int
	pages map[string]string
	// status returns a non-200 code for the given path and hit number, or 0.
	status func(path string, hit int) int
}

func newSite(pages map[string]string) *site {
	return &site{hits: make(map[string]int), pages: pages}
}

func (s *site) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.hits[r.URL.Path]++
	hit := s.hits[r.URL.Path]
	s.mu.Unlock()

	if s.status != nil {
		if code := s.status(r.URL.Path, hit); code != 0 {
			w.WriteHeader(code)
			return
		}
	}
	body, ok := s.pages[r.URL.Path]
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Last-Modified", "Wed, 21 Oct 2015 07:28:00 GMT")
	fmt.Fprint(w, body)
}

func (s *site) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func page(title, body string, links ...string) string {
	html := "<html><head><title>" + title + "</title></head><body><p>" + body + "</p>"
	for _, l := range links {
		html += `<a href="` + l + `">link</a>`
	}
	return html + "</body></html>"
}

func smallSite() *site {
	return newSite(map[string]string{
		"/":  page("Home", "welcome home", "/a", "/b", "#top", "mailto:x@y.z", "/logo.png", "javascript:void(0)"),
		"/a": page("Page A", "alpha content", "/b", "/c", "http://elsewhere.example/x"),
		"/b": page("Page B", "beta content", "/"),
		"/c": page("Page C", "gamma content"),
	})
}

func TestCrawlWholeSite(t *testing.T) {
	srv := httptest.NewServer(smallSite())
	defer srv.Close()
	st := newTestStore(t)
	ctx := context.Background()

	res, err := New(testConfig(), st, nil, nil).Crawl(ctx, srv.URL+"/", 100)
	if err != nil {
		t.Fatalf("Crawl: %v", err)
	}
	if res.Committed != 4 {
		t.Fatalf("Committed = %d, want 4", res.Committed)
	}
	if res.RunID == "" {
		t.Error("missing run id")
	}
	if len(res.Abandoned) != 0 {
		t.Errorf("Abandoned = %v", res.Abandoned)
	}

	pages, err := st.GetAllPages(ctx)
	if err != nil {
		t.Fatalf("GetAllPages: %v", err)
	}
	ids := make([]int, 0, len(pages))
	for _, p := range pages {
		ids = append(ids, p.ID)
		if p.LastModified == nil || p.LastModified.Year() != 2015 {
			t.Errorf("page %s LastModified = %v", p.URL, p.LastModified)
		}
		if p.Size <= 0 {
			t.Errorf("page %s Size = %d", p.URL, p.Size)
		}
	}
	sort.Ints(ids)
	for i, id := range ids {
		if id != i+1 {
			t.Fatalf("ids not contiguous: %v", ids)
		}
	}
	seedID, _ := st.GetPageID(ctx, srv.URL+"/")
	if seedID != 1 {
		t.Errorf("seed id = %d, want 1", seedID)
	}

	g := res.Graph
	if g.Size() != 4 {
		t.Fatalf("graph size = %d, want 4", g.Size())
	}
	// home→a, home→b, a→b, a→c, b→home
	if g.EdgeCount() != 5 {
		t.Errorf("EdgeCount = %d, want 5", g.EdgeCount())
	}
	aID, _ := st.GetPageID(ctx, srv.URL+"/a")
	if g.OutDegree(aID) != 2 {
		t.Errorf("OutDegree(a) = %d, want 2", g.OutDegree(aID))
	}
}

func TestCrawlRespectsBudget(t *testing.T) {
	srv := httptest.NewServer(smallSite())
	defer srv.Close()
	st := newTestStore(t)
	ctx := context.Background()

	res, err := New(testConfig(), st, nil, nil).Crawl(ctx, srv.URL+"/", 2)
	if err != nil {
		t.Fatalf("Crawl: %v", err)
	}
	if res.Committed != 2 {
		t.Errorf("Committed = %d, want 2", res.Committed)
	}
	n, _ := st.CountPages(ctx)
	if n != 2 {
		t.Errorf("stored pages = %d, want 2", n)
	}
	if res.Graph.Size() != 2 {
		t.Errorf("graph size = %d, want 2", res.Graph.Size())
	}
	for id := 1; id <= 2; id++ {
		for _, child := range res.Graph.Children(id) {
			if child > 2 {
				t.Errorf("edge %d→%d points past the committed set", id, child)
			}
		}
	}
}

func TestCrawlRetriesTransientFailures(t *testing.T) {
	s := newSite(map[string]string{
		"/":      page("Home", "start", "/flaky", "/down", "/gone"),
		"/flaky": page("Flaky", "eventually works"),
		"/down":  page("Down", "never served"),
	})
	s.status = func(path string, hit int) int {
		switch {
		case path == "/flaky" && hit == 1:
			return http.StatusServiceUnavailable
		case path == "/down":
			return http.StatusInternalServerError
		}
		return 0
	}
	srv := httptest.NewServer(s)
	defer srv.Close()
	st := newTestStore(t)
	cfg := testConfig()

	res, err := New(cfg, st, nil, nil).Crawl(context.Background(), srv.URL+"/", 10)
	if err != nil {
		t.Fatalf("Crawl: %v", err)
	}
	if res.Committed != 2 {
		t.Errorf("Committed = %d, want 2 (home, flaky)", res.Committed)
	}
	if got := s.Hits("/flaky"); got != 2 {
		t.Errorf("/flaky hits = %d, want 2", got)
	}
	if got := s.Hits("/down"); got != cfg.MaxRetries+1 {
		t.Errorf("/down hits = %d, want %d", got, cfg.MaxRetries+1)
	}
	if got := s.Hits("/gone"); got != 1 {
		t.Errorf("/gone hits = %d, want 1 (404 is permanent)", got)
	}
	sort.Strings(res.Abandoned)
	want := []string{srv.URL + "/down", srv.URL + "/gone"}
	if fmt.Sprint(res.Abandoned) != fmt.Sprint(want) {
		t.Errorf("Abandoned = %v, want %v", res.Abandoned, want)
	}
}

func TestRecrawlKeepsIDs(t *testing.T) {
	srv := httptest.NewServer(smallSite())
	defer srv.Close()
	st := newTestStore(t)
	ctx := context.Background()
	c := New(testConfig(), st, nil, nil)

	if _, err := c.Crawl(ctx, srv.URL+"/", 100); err != nil {
		t.Fatalf("first Crawl: %v", err)
	}
	before, _ := st.GetAllPages(ctx)

	res, err := c.Crawl(ctx, srv.URL+"/", 100)
	if err != nil {
		t.Fatalf("second Crawl: %v", err)
	}
	if res.Committed != 4 {
		t.Errorf("second Committed = %d, want 4", res.Committed)
	}
	after, _ := st.GetAllPages(ctx)
	if len(after) != len(before) {
		t.Fatalf("page count changed: %d → %d", len(before), len(after))
	}
	for i := range before {
		if before[i].ID != after[i].ID || before[i].URL != after[i].URL {
			t.Errorf("page %d changed identity: %+v → %+v", i, before[i], after[i])
		}
	}
	if res.Graph.EdgeCount() != 5 {
		t.Errorf("EdgeCount = %d, want 5", res.Graph.EdgeCount())
	}
}

func TestCrawlCancelled(t *testing.T) {
	srv := httptest.NewServer(smallSite())
	defer srv.Close()
	st := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(testConfig(), st, nil, nil).Crawl(ctx, srv.URL+"/", 100)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if n, _ := st.CountPages(context.Background()); n != 0 {
		t.Errorf("stored %d pages after cancellation, want 0", n)
	}
}

func TestCrawlCanonicalURLsFetchedOnce(t *testing.T) {
	s := newSite(map[string]string{})
	srv := httptest.NewServer(s)
	defer srv.Close()
	s.pages["/"] = page("Home", "welcome", srv.URL, srv.URL+"/a", srv.URL+"/a?", srv.URL+"/a#x")
	s.pages["/a"] = page("Page A", "alpha", srv.URL+"/?")
	st := newTestStore(t)
	ctx := context.Background()

	res, err := New(testConfig(), st, nil, nil).Crawl(ctx, srv.URL, 100)
	if err != nil {
		t.Fatalf("Crawl: %v", err)
	}
	if res.Committed != 2 {
		t.Errorf("Committed = %d, want 2", res.Committed)
	}
	pages, err := st.GetAllPages(ctx)
	if err != nil {
		t.Fatalf("GetAllPages: %v", err)
	}
	var urls []string
	for _, p := range pages {
		urls = append(urls, p.URL)
	}
	sort.Strings(urls)
	want := []string{srv.URL + "/", srv.URL + "/a"}
	if len(urls) != 2 || urls[0] != want[0] || urls[1] != want[1] {
		t.Errorf("stored urls = %v, want %v", urls, want)
	}
	if h := s.Hits("/"); h != 1 {
		t.Errorf("home fetched %d times, want 1", h)
	}
}

func TestCrawlInvalidInput(t *testing.T) {
	st := newTestStore(t)
	c := New(testConfig(), st, nil, nil)
	ctx := context.Background()

	if _, err := c.Crawl(ctx, "ftp://example.com/", 10); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("ftp seed: err = %v, want ErrInvalidInput", err)
	}
	if _, err := c.Crawl(ctx, "http://example.com/", 0); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("zero budget: err = %v, want ErrInvalidInput", err)
	}
}

func TestWorkersDefault(t *testing.T) {
	c := New(config.CrawlerConfig{}, nil, nil, nil)
	if w := c.Workers(); w < 4 || w > 32 {
		t.Errorf("Workers = %d, want within [4, 32]", w)
	}
	c = New(config.CrawlerConfig{Workers: 3}, nil, nil, nil)
	if c.Workers() != 3 {
		t.Errorf("Workers = %d, want configured 3", c.Workers())
	}
}
