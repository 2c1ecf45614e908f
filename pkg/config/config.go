// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Index, Auxiliary, Search, Cache, Redis, Postgres, Kafka, etc.).
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
	Auxiliary AuxiliaryConfig `yaml:"auxiliary"`
	Search    SearchConfig    `yaml:"search"`
	Cache     CacheConfig     `yaml:"cache"`
	Startup   StartupConfig   `yaml:"startup"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	AllowOrigins    []string      `yaml:"allowOrigins"`
}

// IndexConfig controls where the index snapshot lives and how often the
// searcher checks it for new commits.
type IndexConfig struct {
	Dir            string        `yaml:"dir"`
	ReopenInterval time.Duration `yaml:"reopenInterval"`
	CommitInterval time.Duration `yaml:"commitInterval"`
	WarmupQuery    string        `yaml:"warmupQuery"`
}

// AuxiliaryConfig controls the side-table loader (owners, curated feeds,
// downloads, rankings).
type AuxiliaryConfig struct {
	Loader          string        `yaml:"loader"`
	Dir             string        `yaml:"dir"`
	RefreshInterval time.Duration `yaml:"refreshInterval"`
}

// SearchConfig controls query execution limits and timeouts.
type SearchConfig struct {
	DefaultTake  int           `yaml:"defaultTake"`
	MaxTake      int           `yaml:"maxTake"`
	QueryTimeout time.Duration `yaml:"queryTimeout"`
}

// CacheConfig selects the result cache backend. Kind is one of "lru",
// "redis" or "none".
type CacheConfig struct {
	Kind string        `yaml:"kind"`
	Size int           `yaml:"size"`
	TTL  time.Duration `yaml:"ttl"`
}

// StartupConfig bounds the retries made while opening the first generation.
type StartupConfig struct {
	MaxAttempts  int           `yaml:"maxAttempts"`
	InitialDelay time.Duration `yaml:"initialDelay"`
	MaxDelay     time.Duration `yaml:"maxDelay"`
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

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	PackageMetadata string `yaml:"packageMetadata"`
	SearchEvents    string `yaml:"searchEvents"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"poolSize"`
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

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	if c.Index.Dir == "" {
		return fmt.Errorf("index.dir is required")
	}
	if c.Index.ReopenInterval <= 0 {
		return fmt.Errorf("index.reopenInterval must be positive, got %v", c.Index.ReopenInterval)
	}
	if c.Auxiliary.RefreshInterval <= 0 {
		return fmt.Errorf("auxiliary.refreshInterval must be positive, got %v", c.Auxiliary.RefreshInterval)
	}
	switch c.Auxiliary.Loader {
	case "file", "postgres":
	default:
		return fmt.Errorf("auxiliary.loader must be file or postgres, got %q", c.Auxiliary.Loader)
	}
	switch c.Cache.Kind {
	case "lru", "redis", "none":
	default:
		return fmt.Errorf("cache.kind must be lru, redis or none, got %q", c.Cache.Kind)
	}
	if c.Search.DefaultTake <= 0 || c.Search.MaxTake < c.Search.DefaultTake {
		return fmt.Errorf("search.defaultTake (%d) must be positive and not exceed search.maxTake (%d)",
			c.Search.DefaultTake, c.Search.MaxTake)
	}
	return nil
}

// defaultConfig returns a Config with production-ready defaults for local
// development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			AllowOrigins:    []string{"*"},
		},
		Index: IndexConfig{
			Dir:            "data/index",
			ReopenInterval: 30 * time.Second,
			CommitInterval: time.Minute,
			WarmupQuery:    "newtonsoft.json",
		},
		Auxiliary: AuxiliaryConfig{
			Loader:          "file",
			Dir:             "data/auxiliary",
			RefreshInterval: time.Hour,
		},
		Search: SearchConfig{
			DefaultTake:  20,
			MaxTake:      1000,
			QueryTimeout: 10 * time.Second,
		},
		Cache: CacheConfig{
			Kind: "lru",
			Size: 10000,
			TTL:  60 * time.Second,
		},
		Startup: StartupConfig{
			MaxAttempts:  5,
			InitialDelay: time.Second,
			MaxDelay:     30 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "packagesearch",
			User:            "packagesearch",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Enabled:       false,
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "packagesearch-indexer",
			Topics: KafkaTopics{
				PackageMetadata: "package-metadata",
				SearchEvents:    "search-events",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads SP_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SP_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SP_INDEX_DIR"); v != "" {
		cfg.Index.Dir = v
	}
	if v := os.Getenv("SP_INDEX_REOPEN_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Index.ReopenInterval = d
		}
	}
	if v := os.Getenv("SP_AUXILIARY_LOADER"); v != "" {
		cfg.Auxiliary.Loader = v
	}
	if v := os.Getenv("SP_AUXILIARY_DIR"); v != "" {
		cfg.Auxiliary.Dir = v
	}
	if v := os.Getenv("SP_AUXILIARY_REFRESH_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Auxiliary.RefreshInterval = d
		}
	}
	if v := os.Getenv("SP_CACHE_KIND"); v != "" {
		cfg.Cache.Kind = v
	}
	if v := os.Getenv("SP_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("SP_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("SP_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("SP_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("SP_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("SP_KAFKA_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Kafka.Enabled = enabled
		}
	}
	if v := os.Getenv("SP_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("SP_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SP_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SP_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SP_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
