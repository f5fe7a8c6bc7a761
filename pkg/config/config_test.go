package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("driver = %q, want sqlite", cfg.Database.Driver)
	}
	if cfg.Crawler.MaxRetries != 2 {
		t.Errorf("maxRetries = %d, want 2", cfg.Crawler.MaxRetries)
	}
	if cfg.Search.TitleWeight != 0.6 || cfg.Search.BodyWeight != 0.4 {
		t.Errorf("weights = %v/%v, want 0.6/0.4", cfg.Search.TitleWeight, cfg.Search.BodyWeight)
	}
	if cfg.Search.DefaultRank != "combined" {
		t.Errorf("defaultRank = %q, want combined", cfg.Search.DefaultRank)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
crawler:
  seedUrl: https://example.com/
  pageBudget: 25
  requestTimeout: 3s
pagerank:
  iterations: 5
  damping: 0.8
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	t.Setenv("WS_CRAWLER_WORKERS", "7")
	t.Setenv("WS_SEARCH_DEFAULT_RANK", "cosine")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Crawler.SeedURL != "https://example.com/" || cfg.Crawler.PageBudget != 25 {
		t.Errorf("crawler = %+v", cfg.Crawler)
	}
	if cfg.Crawler.RequestTimeout != 3*time.Second {
		t.Errorf("requestTimeout = %v, want 3s", cfg.Crawler.RequestTimeout)
	}
	if cfg.Crawler.Workers != 7 {
		t.Errorf("workers = %d, want 7 from env", cfg.Crawler.Workers)
	}
	if cfg.PageRank.Iterations != 5 || cfg.PageRank.Damping != 0.8 {
		t.Errorf("pagerank = %+v", cfg.PageRank)
	}
	if cfg.Search.DefaultRank != "cosine" {
		t.Errorf("defaultRank = %q, want cosine", cfg.Search.DefaultRank)
	}
	// untouched sections keep defaults
	if cfg.Search.MaxResults != 50 {
		t.Errorf("maxResults = %d, want 50", cfg.Search.MaxResults)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad driver", func(c *Config) { c.Database.Driver = "mysql" }},
		{"bad stemmer", func(c *Config) { c.Indexer.Stemmer = "lancaster" }},
		{"bad rank", func(c *Config) { c.Search.DefaultRank = "bm25" }},
		{"bad damping", func(c *Config) { c.PageRank.Damping = 1.5 }},
		{"negative retries", func(c *Config) { c.Crawler.MaxRetries = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestDSN(t *testing.T) {
	pg := DatabaseConfig{Driver: "postgres", Host: "db", Port: 5432, User: "u", Password: "p", Database: "d", SSLMode: "disable"}
	want := "host=db port=5432 user=u password=p dbname=d sslmode=disable"
	if got := pg.DSN(); got != want {
		t.Errorf("DSN = %q, want %q", got, want)
	}
	lite := DatabaseConfig{Driver: "sqlite", Path: "/tmp/x.db"}
	if got := lite.DSN(); got[:len("file:/tmp/x.db")] != "file:/tmp/x.db" {
		t.Errorf("sqlite DSN = %q", got)
	}
}
