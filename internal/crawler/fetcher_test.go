package crawler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"
)

const samplePage = `<!doctype html>
<html><head>
<title>Hello &amp; <b>World</b></title>
<style>body { color: red }</style>
</head>
<body>
<h1>Big   Heading</h1>
<script>var hidden = "nope";</script>
<p>Some <em>visible</em> text</p>
<noscript>enable js</noscript>
<a href="/next">next</a><a href="/next#again">dup</a><a href="mailto:a@b.c">mail</a>
</body></html>`

func newFetcher(srvURL string) *HTTPFetcher {
	seed, _ := url.Parse(srvURL)
	cfg := testConfig()
	cfg.SameHostOnly = false
	return NewHTTPFetcher(cfg, NewLinkFilter(seed, false))
}

func TestFetchParsesPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Header().Set("Last-Modified", "Tue, 02 Jan 2024 15:04:05 GMT")
		w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	doc, err := newFetcher(srv.URL).Fetch(context.Background(), srv.URL+"/")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if doc.Title != "Hello & World" {
		t.Errorf("Title = %q", doc.Title)
	}
	if doc.Text != "Big Heading Some visible text next dup mail" {
		t.Errorf("Text = %q", doc.Text)
	}
	if len(doc.Links) != 1 || doc.Links[0] != srv.URL+"/next" {
		t.Errorf("Links = %v", doc.Links)
	}
	want := time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC)
	if doc.LastModified == nil || !doc.LastModified.Equal(want) {
		t.Errorf("LastModified = %v, want %v", doc.LastModified, want)
	}
	if doc.Size != len(samplePage) {
		t.Errorf("Size = %d, want %d", doc.Size, len(samplePage))
	}
}

func TestFetchMalformedLastModified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Header().Set("Last-Modified", "yesterday-ish")
		w.Write([]byte("<html><body>x</body></html>"))
	}))
	defer srv.Close()

	doc, err := newFetcher(srv.URL).Fetch(context.Background(), srv.URL+"/")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if doc.LastModified != nil {
		t.Errorf("LastModified = %v, want nil", doc.LastModified)
	}
}

func TestFetchClassifiesFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/busy":
			w.WriteHeader(http.StatusTooManyRequests)
		case "/error":
			w.WriteHeader(http.StatusBadGateway)
		case "/image":
			w.Header().Set("Content-Type", "image/png")
			w.Write([]byte{0x89, 'P', 'N', 'G'})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	f := newFetcher(srv.URL)

	tests := []struct {
		path      string
		transient bool
	}{
		{"/busy", true},
		{"/error", true},
		{"/missing", false},
		{"/image", false},
	}
	for _, tt := range tests {
		_, err := f.Fetch(context.Background(), srv.URL+tt.path)
		if err == nil {
			t.Errorf("%s: expected error", tt.path)
			continue
		}
		if IsTransient(err) != tt.transient {
			t.Errorf("%s: transient = %v, want %v (%v)", tt.path, IsTransient(err), tt.transient, err)
		}
	}
}
