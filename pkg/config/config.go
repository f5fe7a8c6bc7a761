// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Database, Kafka, Redis, Crawler, Indexer, PageRank, Search, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Crawler   CrawlerConfig   `yaml:"crawler"`
	Indexer   IndexerConfig   `yaml:"indexer"`
	PageRank  PageRankConfig  `yaml:"pagerank"`
	Search    SearchConfig    `yaml:"search"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	CORSOrigins     []string      `yaml:"corsOrigins"`
	RateLimitRPS    float64       `yaml:"rateLimitRps"`
	RateLimitBurst  int           `yaml:"rateLimitBurst"`
}

// DatabaseConfig selects the page store driver and its connection parameters.
// Driver is either "sqlite" (Path is used) or "postgres" (host fields are used).
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"`
	Path            string        `yaml:"path"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns the data source name for the configured driver.
func (d DatabaseConfig) DSN() string {
	if d.Driver == "sqlite" {
		return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", d.Path)
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	CrawlComplete   string `yaml:"crawlComplete"`
	IndexComplete   string `yaml:"indexComplete"`
	AnalyticsEvents string `yaml:"analyticsEvents"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// CrawlerConfig bounds the crawl: page budget, worker pool, retry and
// politeness settings.
type CrawlerConfig struct {
	SeedURL           string        `yaml:"seedUrl"`
	PageBudget        int           `yaml:"pageBudget"`
	Workers           int           `yaml:"workers"`
	MaxRetries        int           `yaml:"maxRetries"`
	RequestTimeout    time.Duration `yaml:"requestTimeout"`
	DrainTimeout      time.Duration `yaml:"drainTimeout"`
	MaxDuration       time.Duration `yaml:"maxDuration"`
	RequestsPerSecond float64       `yaml:"requestsPerSecond"`
	UserAgent         string        `yaml:"userAgent"`
	SameHostOnly      bool          `yaml:"sameHostOnly"`
	MaxBodyBytes      int64         `yaml:"maxBodyBytes"`
}

// IndexerConfig controls where the inverted indexes live and how terms are
// normalised.
type IndexerConfig struct {
	DataDir    string `yaml:"dataDir"`
	SyncWrites bool   `yaml:"syncWrites"`
	Stemmer    string `yaml:"stemmer"`
}

// PageRankConfig controls the power iteration.
type PageRankConfig struct {
	Iterations int     `yaml:"iterations"`
	Damping    float64 `yaml:"damping"`
}

// SearchConfig controls ranking weights and result limits.
type SearchConfig struct {
	MaxResults    int     `yaml:"maxResults"`
	DefaultLimit  int     `yaml:"defaultLimit"`
	TitleWeight   float64 `yaml:"titleWeight"`
	BodyWeight    float64 `yaml:"bodyWeight"`
	SnippetWindow int     `yaml:"snippetWindow"`
	DefaultRank   string  `yaml:"defaultRank"`
}

// AnalyticsConfig controls the search analytics collector.
type AnalyticsConfig struct {
	Port          int           `yaml:"port"`
	BufferSize    int           `yaml:"bufferSize"`
	BatchSize     int           `yaml:"batchSize"`
	FlushInterval time.Duration `yaml:"flushInterval"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig controls span logging.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	SampleRate float64 `yaml:"sampleRate"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	switch c.Indexer.Stemmer {
	case "porter", "snowball":
	default:
		return fmt.Errorf("unsupported stemmer %q", c.Indexer.Stemmer)
	}
	switch c.Search.DefaultRank {
	case "cosine", "combined":
	default:
		return fmt.Errorf("unsupported default rank %q", c.Search.DefaultRank)
	}
	if c.PageRank.Damping < 0 || c.PageRank.Damping > 1 {
		return fmt.Errorf("pagerank damping %v out of range [0,1]", c.PageRank.Damping)
	}
	if c.Crawler.MaxRetries < 0 {
		return fmt.Errorf("crawler maxRetries must not be negative")
	}
	if c.Search.MaxResults <= 0 {
		return fmt.Errorf("search maxResults must be positive")
	}
	return nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RequestTimeout:  10 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:          "sqlite",
			Path:            "data/websearch.db",
			Host:            "localhost",
			Port:            5432,
			Database:        "websearch",
			User:            "websearch",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "websearch-group",
			Topics: KafkaTopics{
				CrawlComplete:   "crawl.complete",
				IndexComplete:   "index.complete",
				AnalyticsEvents: "analytics-events",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Crawler: CrawlerConfig{
			PageBudget:     300,
			MaxRetries:     2,
			RequestTimeout: 10 * time.Second,
			DrainTimeout:   30 * time.Second,
			MaxDuration:    30 * time.Minute,
			UserAgent:      "websearch-crawler/1.0",
			MaxBodyBytes:   5 << 20,
		},
		Indexer: IndexerConfig{
			DataDir:    "data/index",
			SyncWrites: true,
			Stemmer:    "porter",
		},
		PageRank: PageRankConfig{
			Iterations: 30,
			Damping:    0.85,
		},
		Search: SearchConfig{
			MaxResults:    50,
			DefaultLimit:  50,
			TitleWeight:   0.6,
			BodyWeight:    0.4,
			SnippetWindow: 4,
			DefaultRank:   "combined",
		},
		Analytics: AnalyticsConfig{
			Port:          8083,
			BufferSize:    1000,
			BatchSize:     100,
			FlushInterval: 5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			SampleRate: 1.0,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads WS_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	setInt("WS_SERVER_PORT", &cfg.Server.Port)
	setString("WS_DATABASE_DRIVER", &cfg.Database.Driver)
	setString("WS_DATABASE_PATH", &cfg.Database.Path)
	setString("WS_DATABASE_HOST", &cfg.Database.Host)
	setInt("WS_DATABASE_PORT", &cfg.Database.Port)
	setString("WS_DATABASE_NAME", &cfg.Database.Database)
	setString("WS_DATABASE_USER", &cfg.Database.User)
	setString("WS_DATABASE_PASSWORD", &cfg.Database.Password)
	setString("WS_DATABASE_SSLMODE", &cfg.Database.SSLMode)
	setBool("WS_KAFKA_ENABLED", &cfg.Kafka.Enabled)
	if v := os.Getenv("WS_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	setBool("WS_REDIS_ENABLED", &cfg.Redis.Enabled)
	setString("WS_REDIS_ADDR", &cfg.Redis.Addr)
	setString("WS_REDIS_PASSWORD", &cfg.Redis.Password)
	setString("WS_CRAWLER_SEED_URL", &cfg.Crawler.SeedURL)
	setInt("WS_CRAWLER_PAGE_BUDGET", &cfg.Crawler.PageBudget)
	setInt("WS_CRAWLER_WORKERS", &cfg.Crawler.Workers)
	setString("WS_INDEXER_DATA_DIR", &cfg.Indexer.DataDir)
	setString("WS_INDEXER_STEMMER", &cfg.Indexer.Stemmer)
	setString("WS_SEARCH_DEFAULT_RANK", &cfg.Search.DefaultRank)
	setString("WS_LOGGING_LEVEL", &cfg.Logging.Level)
	setString("WS_LOGGING_FORMAT", &cfg.Logging.Format)
	if v := os.Getenv("WS_PAGERANK_DAMPING"); v != "" {
		if d, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.PageRank.Damping = d
		}
	}
}

func setString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
