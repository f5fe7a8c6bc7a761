package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/time/rate"

	"github.com/Adithya-Monish-Kumar-K/websearch/pkg/config"
)

// Document is a fetched and parsed HTML page.
type Document struct {
	URL          string
	Title        string
	Text         string
	Links        []string
	LastModified *time.Time
	Size         int
}

// Fetcher retrieves and parses one page.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*Document, error)
}

// FetchError describes a failed fetch. Transient failures are worth retrying.
type FetchError struct {
	URL        string
	StatusCode int
	Kind       string
	Transient  bool
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetching %s: %s (status %d)", e.URL, e.Kind, e.StatusCode)
	}
	return fmt.Sprintf("fetching %s: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a fetch failure that may succeed later.
func IsTransient(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Transient
}

// HTTPFetcher fetches pages over HTTP and extracts the title, visible text and
// outbound links.
type HTTPFetcher struct {
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
	maxBytes  int64
	filter    *LinkFilter
	policy    *bluemonday.Policy
}

func NewHTTPFetcher(cfg config.CrawlerConfig, filter *LinkFilter) *HTTPFetcher {
	f := &HTTPFetcher{
		client:    &http.Client{Timeout: cfg.RequestTimeout},
		userAgent: cfg.UserAgent,
		maxBytes:  cfg.MaxBodyBytes,
		filter:    filter,
		policy:    bluemonday.StrictPolicy(),
	}
	if cfg.RequestsPerSecond > 0 {
		f.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return f
}

func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*Document, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Kind: "request", Err: err}
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Kind: "network", Transient: ctx.Err() == nil, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		transient := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		return nil, &FetchError{URL: rawURL, StatusCode: resp.StatusCode, Kind: "status", Transient: transient}
	}
	if !isHTML(resp.Header.Get("Content-Type")) {
		return nil, &FetchError{URL: rawURL, Kind: "content_type", Err: fmt.Errorf("unsupported content type %q", resp.Header.Get("Content-Type"))}
	}

	var body io.Reader = resp.Body
	if f.maxBytes > 0 {
		body = io.LimitReader(resp.Body, f.maxBytes)
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Kind: "read", Transient: ctx.Err() == nil, Err: err}
	}

	base := resp.Request.URL
	doc, err := f.parse(base, raw)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Kind: "parse", Err: err}
	}
	doc.URL = rawURL
	doc.Size = contentLength(resp.Header.Get("Content-Length"), len(raw))
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		if t, err := http.ParseTime(lm); err == nil {
			t = t.UTC()
			doc.LastModified = &t
		}
	}
	return doc, nil
}

func (f *HTTPFetcher) parse(base *url.URL, raw []byte) (*Document, error) {
	gq, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	doc := &Document{
		Title: cleanTitle(f.policy, gq.Find("title").First().Text()),
		Text:  visibleText(gq),
	}
	gq.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if link, ok := f.filter.Resolve(base, href); ok {
			doc.Links = append(doc.Links, link)
		}
	})
	doc.Links = dedupe(doc.Links)
	return doc, nil
}

func cleanTitle(p *bluemonday.Policy, title string) string {
	return strings.Join(strings.Fields(html.UnescapeString(p.Sanitize(title))), " ")
}

var hiddenElements = map[string]struct{}{"script": {}, "style": {}, "noscript": {}, "template": {}, "head": {}}

// visibleText concatenates the text nodes under <body>, skipping elements a
// browser would not render.
func visibleText(doc *goquery.Document) string {
	roots := doc.Find("body").Nodes
	if len(roots) == 0 {
		roots = doc.Nodes
	}
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if _, hidden := hiddenElements[strings.ToLower(n.Data)]; hidden {
				return
			}
		}
		if n.Type == html.TextNode {
			for _, w := range strings.Fields(n.Data) {
				if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(w)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, r := range roots {
		walk(r)
	}
	return sb.String()
}

func isHTML(contentType string) bool {
	if contentType == "" {
		return true
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "text/html" || mt == "application/xhtml+xml"
}

func contentLength(header string, read int) int {
	if n, err := strconv.Atoi(header); err == nil && n >= 0 {
		return n
	}
	return read
}
