package crawler

import (
	"net/url"
	"path"
	"strings"
)

var binaryExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".bmp": {}, ".svg": {}, ".webp": {}, ".ico": {},
	".pdf": {}, ".doc": {}, ".docx": {}, ".xls": {}, ".xlsx": {}, ".ppt": {}, ".pptx": {},
	".zip": {}, ".gz": {}, ".tgz": {}, ".tar": {}, ".rar": {}, ".7z": {}, ".exe": {}, ".dmg": {}, ".iso": {},
	".mp3": {}, ".mp4": {}, ".avi": {}, ".mov": {}, ".wav": {}, ".flac": {}, ".mkv": {},
	".css": {}, ".js": {}, ".json": {}, ".xml": {}, ".woff": {}, ".woff2": {}, ".ttf": {}, ".eot": {},
}

var rejectedPrefixes = []string{"javascript:", "mailto:", "tel:", "data:"}

// LinkFilter decides which hrefs become crawl candidates and canonicalises
// the ones it accepts.
type LinkFilter struct {
	sameHost bool
	host     string
}

// NewLinkFilter builds a filter for a crawl rooted at seed. With sameHost set
// only links on the seed's host are accepted.
func NewLinkFilter(seed *url.URL, sameHost bool) *LinkFilter {
	return &LinkFilter{sameHost: sameHost, host: strings.ToLower(seed.Hostname())}
}

// Resolve resolves href against base and returns the absolute URL without its
// fragment, or false when the link must not be followed.
func (lf *LinkFilter) Resolve(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}
	lower := strings.ToLower(href)
	for _, p := range rejectedPrefixes {
		if strings.HasPrefix(lower, p) {
			return "", false
		}
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	u := base.ResolveReference(ref)
	return lf.accept(u)
}

func (lf *LinkFilter) accept(u *url.URL) (string, bool) {
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	if u.Host == "" {
		return "", false
	}
	if _, binary := binaryExtensions[strings.ToLower(path.Ext(u.Path))]; binary {
		return "", false
	}
	if lf.sameHost && !strings.EqualFold(u.Hostname(), lf.host) {
		return "", false
	}
	canonicalize(u)
	return u.String(), true
}

// canonicalize rewrites u in place so that spellings of one address compare
// equal: lower-case host, no default port, "/" for an empty path, no empty
// trailing "?" and no fragment.
func canonicalize(u *url.URL) {
	host, port := strings.ToLower(u.Hostname()), u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		host += ":" + port
	}
	u.Host = host
	if u.Path == "" {
		u.Path = "/"
		u.RawPath = ""
	}
	u.ForceQuery = false
	u.Fragment = ""
	u.RawFragment = ""
}

// NormalizeSeed validates and canonicalises the crawl's starting URL.
func NormalizeSeed(raw string) (*url.URL, string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, "", false
	}
	s, ok := (&LinkFilter{}).accept(u)
	if !ok {
		return nil, "", false
	}
	return u, s, true
}

// dedupe keeps the first occurrence of each link, preserving document order.
func dedupe(links []string) []string {
	seen := make(map[string]struct{}, len(links))
	out := links[:0]
	for _, l := range links {
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	return out
}
