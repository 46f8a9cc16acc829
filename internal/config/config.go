// Package config provides unified configuration for the Hookrelay service.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the unified configuration for the Hookrelay service.
type Config struct {
	// DataDir is the base directory for all data files
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// HTTP configuration
	HTTP HTTPConfig `json:"http" yaml:"http"`

	// Dedup cache configuration
	Dedup DedupConfig `json:"dedup" yaml:"dedup"`

	// Query configuration
	Query QueryConfig `json:"query" yaml:"query"`

	// Dispatch configuration
	Dispatch DispatchConfig `json:"dispatch" yaml:"dispatch"`

	// Archive configuration
	Archive ArchiveConfig `json:"archive" yaml:"archive"`

	// Storage configuration for archived segments
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// Metrics configuration
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	// Addr is the listen address for the API server
	Addr string `json:"addr" yaml:"addr"`

	// ReadTimeout is the HTTP read timeout
	ReadTimeout time.Duration `json:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout is the HTTP write timeout
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`

	// IdleTimeout is the HTTP idle timeout
	IdleTimeout time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
}

// DedupConfig holds dedup cache configuration.
type DedupConfig struct {
	// Capacity is the hard cap on remembered idempotency keys. When
	// exceeded, the oldest half in insertion order is evicted.
	Capacity int `json:"capacity" yaml:"capacity"`

	// SeedTailLines is how many trailing log lines per source are scanned
	// into the cache on first use.
	SeedTailLines int `json:"seed_tail_lines" yaml:"seed_tail_lines"`
}

// QueryConfig holds event query configuration.
type QueryConfig struct {
	// DefaultLimit is the page size applied when a query gives no limit
	DefaultLimit int `json:"default_limit" yaml:"default_limit"`

	// MaxPerSource caps how many events one source contributes to a
	// cross-source query before merging.
	MaxPerSource int `json:"max_per_source" yaml:"max_per_source"`
}

// DispatchConfig holds trigger dispatch configuration.
type DispatchConfig struct {
	// MaxConcurrentExecutions bounds in-flight agent invocations
	MaxConcurrentExecutions int64 `json:"max_concurrent_executions" yaml:"max_concurrent_executions"`

	// DefaultMaxTurns applies when a trigger sets no turn limit
	DefaultMaxTurns int `json:"default_max_turns" yaml:"default_max_turns"`

	// ExecutorURL, when set, forwards fired agent sessions to this endpoint.
	// Empty means fired sessions are only logged.
	ExecutorURL string `json:"executor_url" yaml:"executor_url"`
}

// ArchiveConfig holds event log archival configuration.
type ArchiveConfig struct {
	// Enabled controls whether the archive daemon runs
	Enabled bool `json:"enabled" yaml:"enabled"`

	// MaxActiveBytes is the active log size that triggers rotation
	MaxActiveBytes int64 `json:"max_active_bytes" yaml:"max_active_bytes"`

	// CheckInterval is the interval between rotation checks
	CheckInterval time.Duration `json:"check_interval" yaml:"check_interval"`

	// WorkDir is the directory for staging compressed segments
	WorkDir string `json:"work_dir" yaml:"work_dir"`
}

// StorageConfig holds archived-segment storage configuration.
type StorageConfig struct {
	// Type is the storage type: local, s3
	Type string `json:"type" yaml:"type"`

	// Path is the local storage path (for local type)
	Path string `json:"path" yaml:"path"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`
}

// MetricsConfig holds metrics endpoint configuration.
type MetricsConfig struct {
	// Enabled controls whether /metrics is served
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// DefaultConfig returns the default configuration for local development.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data/hookrelay",
		HTTP: HTTPConfig{
			Addr:         ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		Dedup: DedupConfig{
			Capacity:      5000,
			SeedTailLines: 500,
		},
		Query: QueryConfig{
			DefaultLimit: 100,
			MaxPerSource: 10000,
		},
		Dispatch: DispatchConfig{
			MaxConcurrentExecutions: 8,
			DefaultMaxTurns:         30,
		},
		Archive: ArchiveConfig{
			Enabled:        false,
			MaxActiveBytes: 32 * 1024 * 1024,
			CheckInterval:  5 * time.Minute,
			WorkDir:        "",
		},
		Storage: StorageConfig{
			Type: "local",
			Path: "",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Resolve resolves relative paths and sets defaults based on DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/hookrelay"
	}

	if c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(c.DataDir, "archive")
	}

	if c.Archive.WorkDir == "" {
		c.Archive.WorkDir = filepath.Join(c.DataDir, "archive-work")
	}
}

// EventsDir returns the root directory of the per-source event logs.
func (c *Config) EventsDir() string {
	return filepath.Join(c.DataDir, "events")
}

// AgentsDir returns the root directory of the per-agent trigger collections.
func (c *Config) AgentsDir() string {
	return filepath.Join(c.DataDir, "agents")
}

// CatalogPath returns the path to the archive catalog database.
func (c *Config) CatalogPath() string {
	return filepath.Join(c.DataDir, "catalog.db")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	if c.Storage.Type != "local" && c.Storage.Type != "s3" {
		return fmt.Errorf("invalid storage type: %s (must be local or s3)", c.Storage.Type)
	}

	if c.Storage.Type == "s3" && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required when storage type is s3")
	}

	if c.Dedup.Capacity <= 0 {
		return fmt.Errorf("dedup.capacity must be positive, got %d", c.Dedup.Capacity)
	}

	if c.Dedup.SeedTailLines < 0 {
		return fmt.Errorf("dedup.seed_tail_lines must not be negative, got %d", c.Dedup.SeedTailLines)
	}

	if c.Dispatch.MaxConcurrentExecutions <= 0 {
		return fmt.Errorf("dispatch.max_concurrent_executions must be positive, got %d", c.Dispatch.MaxConcurrentExecutions)
	}

	if c.Archive.Enabled && c.Archive.MaxActiveBytes <= 0 {
		return fmt.Errorf("archive.max_active_bytes must be positive, got %d", c.Archive.MaxActiveBytes)
	}

	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the HOOKRELAY_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("HOOKRELAY_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("HOOKRELAY_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}

	// Dedup configuration
	if v := os.Getenv("HOOKRELAY_DEDUP_CAPACITY"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Dedup.Capacity)
	}
	if v := os.Getenv("HOOKRELAY_DEDUP_SEED_TAIL_LINES"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Dedup.SeedTailLines)
	}

	// Dispatch configuration
	if v := os.Getenv("HOOKRELAY_DISPATCH_MAX_CONCURRENT"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Dispatch.MaxConcurrentExecutions)
	}
	if v := os.Getenv("HOOKRELAY_DISPATCH_EXECUTOR_URL"); v != "" {
		cfg.Dispatch.ExecutorURL = v
	}

	// Archive configuration
	if v := os.Getenv("HOOKRELAY_ARCHIVE_ENABLED"); v != "" {
		cfg.Archive.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("HOOKRELAY_ARCHIVE_CHECK_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Archive.CheckInterval = d
		}
	}
	if v := os.Getenv("HOOKRELAY_ARCHIVE_MAX_ACTIVE_BYTES"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Archive.MaxActiveBytes)
	}

	// Storage configuration
	if v := os.Getenv("HOOKRELAY_STORAGE_TYPE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("HOOKRELAY_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("HOOKRELAY_S3_BUCKET"); v != "" {
		cfg.Storage.S3.Bucket = v
	}
	if v := os.Getenv("HOOKRELAY_S3_REGION"); v != "" {
		cfg.Storage.S3.Region = v
	}
	if v := os.Getenv("HOOKRELAY_S3_ENDPOINT"); v != "" {
		cfg.Storage.S3.Endpoint = v
	}

	// Metrics configuration
	if v := os.Getenv("HOOKRELAY_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = v == "true" || v == "1"
	}
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.DataDir,
		c.EventsDir(),
		c.AgentsDir(),
		c.Storage.Path,
		c.Archive.WorkDir,
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
