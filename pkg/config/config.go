// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Postgres, Redis, Kafka, Catalog, Search, Quota, Index, etc.).
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
	Server   ServerConfig   `yaml:"server"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Search   SearchConfig   `yaml:"search"`
	Quota    QuotaConfig    `yaml:"quota"`
	Index    IndexConfig    `yaml:"index"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds settings for the long-running worker process.
type ServerConfig struct {
	HealthPort      int           `yaml:"healthPort"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
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
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	CorpusReload string `yaml:"corpusReload"`
	UsageEvents  string `yaml:"usageEvents"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"poolSize"`
}

// CatalogConfig points at the edition catalog, the historical regulations
// feed, the synonym table and the directory of passage maps.
type CatalogConfig struct {
	EditionsFile    string `yaml:"editionsFile"`
	RegulationsFile string `yaml:"regulationsFile"`
	SynonymsFile    string `yaml:"synonymsFile"`
	MapsDir         string `yaml:"mapsDir"`
	// Source selects where editions and passages are read from: "files" or
	// "postgres".
	Source string `yaml:"source"`
}

// SearchConfig controls ranking limits, the hierarchy tie-break and fuzzy
// matching of misspelled terms.
type SearchConfig struct {
	DefaultLimit    int    `yaml:"defaultLimit"`
	MaxLimit        int    `yaml:"maxLimit"`
	HierarchyPolicy string `yaml:"hierarchyPolicy"`
	// FuzzyThreshold is the keyword similarity a misspelled term needs to
	// match; 0 disables fuzzy matching.
	FuzzyThreshold float64 `yaml:"fuzzyThreshold"`
}

// QuotaConfig selects the counter backend and the per-tier daily limits.
type QuotaConfig struct {
	Backend         string        `yaml:"backend"`
	AnonymousLimit  int           `yaml:"anonymousLimit"`
	FreeLimit       int           `yaml:"freeLimit"`
	FailOpen        bool          `yaml:"failOpen"`
	RecordUnlimited bool          `yaml:"recordUnlimited"`
	KeyTTL          time.Duration `yaml:"keyTTL"`
}

// IndexConfig controls frequency index rebuilds.
type IndexConfig struct {
	RebuildConcurrency int  `yaml:"rebuildConcurrency"`
	PersistEntries     bool `yaml:"persistEntries"`
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

// Validate rejects values no component can work with.
func (c *Config) Validate() error {
	switch c.Quota.Backend {
	case "memory", "redis", "postgres":
	default:
		return fmt.Errorf("invalid quota backend %q", c.Quota.Backend)
	}
	switch c.Catalog.Source {
	case "files", "postgres":
	default:
		return fmt.Errorf("invalid catalog source %q", c.Catalog.Source)
	}
	if c.Quota.AnonymousLimit < 0 || c.Quota.FreeLimit < 0 {
		return fmt.Errorf("quota limits must not be negative")
	}
	if c.Search.DefaultLimit <= 0 || c.Search.MaxLimit < c.Search.DefaultLimit {
		return fmt.Errorf("invalid search limits default=%d max=%d", c.Search.DefaultLimit, c.Search.MaxLimit)
	}
	if c.Search.FuzzyThreshold < 0 || c.Search.FuzzyThreshold > 1 {
		return fmt.Errorf("fuzzy threshold %v outside [0, 1]", c.Search.FuzzyThreshold)
	}
	return nil
}

// defaultConfig returns a Config with defaults suitable for local
// development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HealthPort:      8085,
			ShutdownTimeout: 15 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "codechronicle",
			User:            "codechronicle",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "codechronicle-reindexer",
			Topics: KafkaTopics{
				CorpusReload: "corpus-reload",
				UsageEvents:  "usage-events",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
		},
		Catalog: CatalogConfig{
			EditionsFile: "configs/editions.yaml",
			SynonymsFile: "configs/synonyms.yaml",
			MapsDir:      "maps",
			Source:       "files",
		},
		Search: SearchConfig{
			DefaultLimit:    10,
			MaxLimit:        50,
			HierarchyPolicy: "prefer-deepest",
			FuzzyThreshold:  0.8,
		},
		Quota: QuotaConfig{
			Backend:         "memory",
			AnonymousLimit:  1,
			FreeLimit:       3,
			FailOpen:        false,
			RecordUnlimited: true,
			KeyTTL:          48 * time.Hour,
		},
		Index: IndexConfig{
			RebuildConcurrency: 4,
			PersistEntries:     false,
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

// applyEnvOverrides reads CC_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CC_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("CC_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("CC_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("CC_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("CC_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("CC_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("CC_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("CC_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("CC_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("CC_CATALOG_SOURCE"); v != "" {
		cfg.Catalog.Source = v
	}
	if v := os.Getenv("CC_MAPS_DIR"); v != "" {
		cfg.Catalog.MapsDir = v
	}
	if v := os.Getenv("CC_QUOTA_BACKEND"); v != "" {
		cfg.Quota.Backend = v
	}
	if v := os.Getenv("CC_QUOTA_ANONYMOUS_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Quota.AnonymousLimit = n
		}
	}
	if v := os.Getenv("CC_QUOTA_FREE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Quota.FreeLimit = n
		}
	}
	if v := os.Getenv("CC_QUOTA_FAIL_OPEN"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Quota.FailOpen = b
		}
	}
	if v := os.Getenv("CC_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("CC_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
