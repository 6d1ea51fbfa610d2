// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for the index
// builder, the query engine, snapshot storage and the services around them.
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
	Index     IndexConfig     `yaml:"index"`
	Search    SearchConfig    `yaml:"search"`
	Snapshot  SnapshotConfig  `yaml:"snapshot"`
	Storage   StorageConfig   `yaml:"storage"`
	Source    SourceConfig    `yaml:"source"`
	Schedule  string          `yaml:"schedule"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Redis     RedisConfig     `yaml:"redis"`
	Cache     CacheConfig     `yaml:"cache"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Analytics AnalyticsConfig `yaml:"analytics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// IndexConfig controls text normalization and posting weights. The
// normalization settings are stored inside every snapshot so queries are
// always tokenized the way the snapshot was built.
type IndexConfig struct {
	MinTokenLength int      `yaml:"minTokenLength"`
	StopWords      []string `yaml:"stopWords"`
	Stem           bool     `yaml:"stem"`
	TitleWeight    float64  `yaml:"titleWeight"`
	BodyWeight     float64  `yaml:"bodyWeight"`
}

// SearchConfig controls query execution limits and scoring of partial
// (OR fallback) matches.
type SearchConfig struct {
	DefaultLimit       int     `yaml:"defaultLimit"`
	MaxResults         int     `yaml:"maxResults"`
	PartialMatchFactor float64 `yaml:"partialMatchFactor"`
}

// SnapshotConfig controls where built snapshots live locally and how the
// searcher picks up new ones.
type SnapshotConfig struct {
	Dir            string        `yaml:"dir"`
	Name           string        `yaml:"name"`
	Compress       bool          `yaml:"compress"`
	Watch          bool          `yaml:"watch"`
	ReloadInterval time.Duration `yaml:"reloadInterval"`
}

// StorageConfig selects the snapshot store backend.
type StorageConfig struct {
	Type        string `yaml:"type"`
	S3Bucket    string `yaml:"s3Bucket"`
	S3Region    string `yaml:"s3Region"`
	S3Endpoint  string `yaml:"s3Endpoint"`
	S3Prefix    string `yaml:"s3Prefix"`
	S3AccessKey string `yaml:"s3AccessKey"`
	S3SecretKey string `yaml:"s3SecretKey"`
	S3PathStyle bool   `yaml:"s3PathStyle"`
}

// SourceConfig selects where the builder reads documents from.
type SourceConfig struct {
	Type  string `yaml:"type"`
	Path  string `yaml:"path"`
	Table string `yaml:"table"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
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

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// RedisConfig holds Redis connection and caching parameters. An empty Addr
// disables the shared cache tier.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// CacheConfig controls the in-process LRU tier.
type CacheConfig struct {
	LocalSize int           `yaml:"localSize"`
	LocalTTL  time.Duration `yaml:"localTTL"`
}

// KafkaConfig holds Kafka broker and topic settings. No brokers disables
// event publishing and consumption.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	SnapshotPublished string `yaml:"snapshotPublished"`
	SearchEvents      string `yaml:"searchEvents"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// RateLimitConfig controls per-client request throttling on the search API.
// A zero RPS disables it.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
	// TrustProxy keys clients by X-Forwarded-For. Enable it only when every
	// request arrives through a proxy that appends that header.
	TrustProxy bool `yaml:"trustProxy"`
}

// AnalyticsConfig controls search-event batching on the searcher and
// persistence of aggregated stats in the analytics service.
type AnalyticsConfig struct {
	BufferSize    int           `yaml:"bufferSize"`
	BatchSize     int           `yaml:"batchSize"`
	FlushInterval time.Duration `yaml:"flushInterval"`
	SaveInterval  time.Duration `yaml:"saveInterval"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with defaults for any missing
// values.
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
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Default returns the built-in configuration without reading any file.
func Default() *Config {
	return defaultConfig()
}

// Validate rejects settings the builder or query engine cannot work with.
func (c *Config) Validate() error {
	if c.Index.MinTokenLength < 1 {
		return fmt.Errorf("index.minTokenLength must be >= 1, got %d", c.Index.MinTokenLength)
	}
	if c.Index.TitleWeight <= 0 || c.Index.BodyWeight <= 0 {
		return fmt.Errorf("index weights must be positive (title=%v, body=%v)", c.Index.TitleWeight, c.Index.BodyWeight)
	}
	if c.Search.DefaultLimit < 1 {
		return fmt.Errorf("search.defaultLimit must be >= 1, got %d", c.Search.DefaultLimit)
	}
	if c.Search.MaxResults < c.Search.DefaultLimit {
		return fmt.Errorf("search.maxResults (%d) must be >= search.defaultLimit (%d)", c.Search.MaxResults, c.Search.DefaultLimit)
	}
	if c.Search.PartialMatchFactor <= 0 || c.Search.PartialMatchFactor > 1 {
		return fmt.Errorf("search.partialMatchFactor must be in (0, 1], got %v", c.Search.PartialMatchFactor)
	}
	switch c.Storage.Type {
	case "fs":
	case "s3":
		if c.Storage.S3Bucket == "" {
			return fmt.Errorf("storage.s3Bucket is required for s3 storage")
		}
	default:
		return fmt.Errorf("unknown storage.type %q", c.Storage.Type)
	}
	switch c.Source.Type {
	case "jsonl", "sphinx", "postgres":
	default:
		return fmt.Errorf("unknown source.type %q", c.Source.Type)
	}
	return nil
}

// defaultConfig returns a Config with defaults suitable for local
// development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Index: IndexConfig{
			MinTokenLength: 3,
			TitleWeight:    2,
			BodyWeight:     1,
		},
		Search: SearchConfig{
			DefaultLimit:       20,
			MaxResults:         100,
			PartialMatchFactor: 0.5,
		},
		Snapshot: SnapshotConfig{
			Dir:            "data/snapshots",
			Name:           "site",
			Watch:          true,
			ReloadInterval: 5 * time.Minute,
		},
		Storage: StorageConfig{
			Type:     "fs",
			S3Region: "us-east-1",
			S3Prefix: "snapshots/",
		},
		Source: SourceConfig{
			Type:  "jsonl",
			Path:  "data/docs.jsonl",
			Table: "doc_entries",
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "docsearch",
			User:            "docsearch",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Cache: CacheConfig{
			LocalSize: 1024,
			LocalTTL:  30 * time.Second,
		},
		Kafka: KafkaConfig{
			ConsumerGroup: "docsearch-searchers",
			Topics: KafkaTopics{
				SnapshotPublished: "snapshot.published",
				SearchEvents:      "search-events",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
		RateLimit: RateLimitConfig{
			RPS:   50,
			Burst: 100,
		},
		Analytics: AnalyticsConfig{
			BufferSize:    10000,
			BatchSize:     100,
			FlushInterval: 5 * time.Second,
			SaveInterval:  5 * time.Minute,
		},
	}
}

// applyEnvOverrides reads DS_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DS_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("DS_INDEX_MIN_TOKEN_LENGTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Index.MinTokenLength = n
		}
	}
	if v := os.Getenv("DS_RATE_LIMIT_TRUST_PROXY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.RateLimit.TrustProxy = b
		}
	}
	if v := os.Getenv("DS_INDEX_STEM"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Index.Stem = b
		}
	}
	if v := os.Getenv("DS_INDEX_TITLE_WEIGHT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Index.TitleWeight = f
		}
	}
	if v := os.Getenv("DS_SEARCH_DEFAULT_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Search.DefaultLimit = n
		}
	}
	if v := os.Getenv("DS_SNAPSHOT_DIR"); v != "" {
		cfg.Snapshot.Dir = v
	}
	if v := os.Getenv("DS_STORAGE_TYPE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("DS_STORAGE_S3_BUCKET"); v != "" {
		cfg.Storage.S3Bucket = v
	}
	if v := os.Getenv("DS_STORAGE_S3_ENDPOINT"); v != "" {
		cfg.Storage.S3Endpoint = v
	}
	if v := os.Getenv("DS_STORAGE_S3_ACCESS_KEY"); v != "" {
		cfg.Storage.S3AccessKey = v
	}
	if v := os.Getenv("DS_STORAGE_S3_SECRET_KEY"); v != "" {
		cfg.Storage.S3SecretKey = v
	}
	if v := os.Getenv("DS_SOURCE_TYPE"); v != "" {
		cfg.Source.Type = v
	}
	if v := os.Getenv("DS_SOURCE_PATH"); v != "" {
		cfg.Source.Path = v
	}
	if v := os.Getenv("DS_SCHEDULE"); v != "" {
		cfg.Schedule = v
	}
	if v := os.Getenv("DS_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("DS_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("DS_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("DS_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("DS_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("DS_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("DS_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("DS_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("DS_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("DS_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
