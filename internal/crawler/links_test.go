package crawler

import (
	"net/url"
	"testing"
)

func TestLinkFilterResolve(t *testing.T) {
	base, _ := url.Parse("http://example.com/dir/page.html")
	lf := NewLinkFilter(base, false)

	tests := []struct {
		href string
		want string
		ok   bool
	}{
		{"other.html", "http://example.com/dir/other.html", true},
		{"/root#section", "http://example.com/root", true},
		{"https://b.example.org/x?q=1#f", "https://b.example.org/x?q=1", true},
		{"", "", false},
		{"#top", "", false},
		{"javascript:alert(1)", "", false},
		{"MAILTO:me@example.com", "", false},
		{"ftp://example.com/file", "", false},
		{"/img/photo.JPG", "", false},
		{"/docs/manual.pdf", "", false},
		{"http://example.com", "http://example.com/", true},
		{"/dir/other.html?", "http://example.com/dir/other.html", true},
		{"http://example.com:80/a", "http://example.com/a", true},
		{"https://example.com:443/a", "https://example.com/a", true},
		{"http://example.com:8080/a", "http://example.com:8080/a", true},
		{"https://example.com:80/a", "https://example.com:80/a", true},
		{"HTTP://Example.COM/a", "http://example.com/a", true},
	}
	for _, tt := range tests {
		got, ok := lf.Resolve(base, tt.href)
		if ok != tt.ok || got != tt.want {
			t.Errorf("Resolve(%q) = %q/%v, want %q/%v", tt.href, got, ok, tt.want, tt.ok)
		}
	}
}

func TestLinkFilterSameHost(t *testing.T) {
	base, _ := url.Parse("http://example.com/")
	lf := NewLinkFilter(base, true)
	if _, ok := lf.Resolve(base, "http://other.com/"); ok {
		t.Error("cross-host link accepted in same-host mode")
	}
	if _, ok := lf.Resolve(base, "http://EXAMPLE.com/a"); !ok {
		t.Error("same host with different case rejected")
	}
}

func TestNormalizeSeed(t *testing.T) {
	_, s, ok := NormalizeSeed("http://example.com")
	if !ok || s != "http://example.com/" {
		t.Errorf("NormalizeSeed = %q/%v", s, ok)
	}
	if _, s, _ := NormalizeSeed("https://example.com:443?"); s != "https://example.com/" {
		t.Errorf("NormalizeSeed with default port = %q", s)
	}
	if _, _, ok := NormalizeSeed("not a url"); ok {
		t.Error("relative seed accepted")
	}
}

func TestDedupe(t *testing.T) {
	got := dedupe([]string{"a", "b", "a", "c", "b"})
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("dedupe = %v", got)
	}
}
