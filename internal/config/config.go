// Package config loads vidsearch configuration from YAML files and
// environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete vidsearch configuration.
type Config struct {
	Registry RegistryConfig `yaml:"registry"`
	NLP      NLPConfig      `yaml:"nlp"`
	Indexing IndexingConfig `yaml:"indexing"`
	Search   SearchConfig   `yaml:"search"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// RegistryConfig configures the remote video registry client.
type RegistryConfig struct {
	// Endpoint is the base URL of the content registry.
	Endpoint string `yaml:"endpoint"`

	// Timeout bounds each registry request.
	Timeout time.Duration `yaml:"timeout"`

	// CacheTTL bounds how long registry responses may be served stale.
	CacheTTL time.Duration `yaml:"cache_ttl"`

	// CacheSize is the maximum number of cached registry responses.
	CacheSize int `yaml:"cache_size"`

	// RequestsPerSecond rate-limits outbound registry calls.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// NLPConfig configures the text-understanding service client.
type NLPConfig struct {
	// Endpoint is the base URL of the embedding/NLP service.
	// Empty selects the built-in static processor.
	Endpoint string `yaml:"endpoint"`

	Timeout   time.Duration `yaml:"timeout"`
	CacheSize int           `yaml:"cache_size"`
}

// IndexingConfig configures the queue, worker pool, and registry syncer.
type IndexingConfig struct {
	// QueueCapacity bounds the indexing queue; enqueue fails when full.
	QueueCapacity int `yaml:"queue_capacity"`

	// Workers is the fixed worker-pool size, which also caps concurrent
	// outbound collaborator calls.
	Workers int `yaml:"workers"`

	// MaxRetries is the maximum number of indexing attempts per video.
	MaxRetries int `yaml:"max_retries"`

	// SyncInterval is the minimum interval between registry syncs.
	SyncInterval time.Duration `yaml:"sync_interval"`

	// StalenessThreshold triggers an alert when a video has been processing
	// longer than this.
	StalenessThreshold time.Duration `yaml:"staleness_threshold"`
}

// SearchConfig configures the search engine.
type SearchConfig struct {
	DefaultLimit int     `yaml:"default_limit"`
	MaxLimit     int     `yaml:"max_limit"`
	Threshold    float64 `yaml:"threshold"`

	// CacheSize and CacheTTL bound the search result cache.
	CacheSize int           `yaml:"cache_size"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level    string `yaml:"level"`
	FilePath string `yaml:"file_path"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Registry: RegistryConfig{
			Timeout:           30 * time.Second,
			CacheTTL:          1 * time.Hour,
			CacheSize:         1000,
			RequestsPerSecond: 10,
		},
		NLP: NLPConfig{
			Timeout:   30 * time.Second,
			CacheSize: 1000,
		},
		Indexing: IndexingConfig{
			QueueCapacity:      1000,
			Workers:            10,
			MaxRetries:         3,
			SyncInterval:       5 * time.Minute,
			StalenessThreshold: 5 * time.Minute,
		},
		Search: SearchConfig{
			DefaultLimit: 10,
			MaxLimit:     100,
			Threshold:    0.5,
			CacheSize:    500,
			CacheTTL:     5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the given YAML file, if present, then applies
// environment variable overrides. A missing file is not an error; defaults
// are used.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies VIDSEARCH_* environment variables on top of the
// loaded configuration. Env vars take precedence over file values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VIDSEARCH_REGISTRY_ENDPOINT"); v != "" {
		cfg.Registry.Endpoint = v
	}
	if v := os.Getenv("VIDSEARCH_NLP_ENDPOINT"); v != "" {
		cfg.NLP.Endpoint = v
	}
	if v := os.Getenv("VIDSEARCH_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("VIDSEARCH_QUEUE_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Indexing.QueueCapacity = n
		}
	}
	if v := os.Getenv("VIDSEARCH_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Indexing.Workers = n
		}
	}
	if v := os.Getenv("VIDSEARCH_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Indexing.MaxRetries = n
		}
	}
	if v := os.Getenv("VIDSEARCH_SEARCH_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Search.Threshold = f
		}
	}
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Indexing.QueueCapacity <= 0 {
		return fmt.Errorf("config: queue_capacity must be positive, got %d", c.Indexing.QueueCapacity)
	}
	if c.Indexing.Workers <= 0 {
		return fmt.Errorf("config: workers must be positive, got %d", c.Indexing.Workers)
	}
	if c.Indexing.MaxRetries <= 0 {
		return fmt.Errorf("config: max_retries must be positive, got %d", c.Indexing.MaxRetries)
	}
	if c.Search.Threshold < 0 || c.Search.Threshold > 1 {
		return fmt.Errorf("config: search threshold must be in [0,1], got %g", c.Search.Threshold)
	}
	if c.Search.DefaultLimit <= 0 || c.Search.MaxLimit < c.Search.DefaultLimit {
		return fmt.Errorf("config: search limits invalid (default %d, max %d)", c.Search.DefaultLimit, c.Search.MaxLimit)
	}
	if c.Search.CacheSize <= 0 || c.Search.CacheTTL <= 0 {
		return fmt.Errorf("config: search cache size and TTL must be positive")
	}
	return nil
}
