// Package config loads and validates the memclawz service configuration.
// Precedence: defaults < YAML config file < environment variables.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete memclawz configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Server     ServerConfig     `yaml:"server" json:"server"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Index      IndexConfig      `yaml:"index" json:"index"`
	Sync       SyncConfig       `yaml:"sync" json:"sync"`
	Fleet      FleetConfig      `yaml:"fleet" json:"fleet"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`

	// MaxIndexBatch is the maximum number of docs accepted in one index
	// request. Larger batches are rejected with PayloadTooLarge.
	MaxIndexBatch int `yaml:"max_index_batch" json:"max_index_batch"`

	// DataDir holds the instance lock and log files.
	DataDir string `yaml:"data_dir" json:"data_dir"`

	LogLevel string `yaml:"log_level" json:"log_level"`
}

// EmbeddingsConfig configures the external embedding collaborator.
type EmbeddingsConfig struct {
	// Provider selects the embedder backend: "http" (external model
	// service) or "static" (deterministic hash-based, for tests and
	// air-gapped setups).
	Provider string `yaml:"provider" json:"provider"`

	// Endpoint is the embedding service URL (http provider).
	Endpoint string `yaml:"endpoint" json:"endpoint"`

	// Dimensions is the vector dimension. 0 means detect from the first
	// embedding returned by the provider.
	Dimensions int `yaml:"dimensions" json:"dimensions"`

	// Timeout bounds every embedding call.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// CacheSize is the LRU embedding cache capacity (0 disables caching).
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// SearchConfig configures hybrid search fusion.
type SearchConfig struct {
	// VectorWeight and KeywordWeight must sum to 1.0.
	VectorWeight  float64 `yaml:"vector_weight" json:"vector_weight"`
	KeywordWeight float64 `yaml:"keyword_weight" json:"keyword_weight"`

	// CandidateMultiplier sizes the per-signal candidate pool relative
	// to topK before fusion.
	CandidateMultiplier int `yaml:"candidate_multiplier" json:"candidate_multiplier"`

	DefaultTopK int `yaml:"default_top_k" json:"default_top_k"`
	MaxTopK     int `yaml:"max_top_k" json:"max_top_k"`
}

// IndexConfig configures per-namespace index structures and chunking.
type IndexConfig struct {
	// HNSW graph parameters.
	M              int `yaml:"hnsw_m" json:"hnsw_m"`
	EfConstruction int `yaml:"hnsw_ef_construction" json:"hnsw_ef_construction"`
	EfSearch       int `yaml:"hnsw_ef_search" json:"hnsw_ef_search"`

	// Chunking parameters.
	ChunkMaxChars   int `yaml:"chunk_max_chars" json:"chunk_max_chars"`
	ChunkOverlap    int `yaml:"chunk_overlap" json:"chunk_overlap"`
	ChunkMinSection int `yaml:"chunk_min_section" json:"chunk_min_section"`
}

// SyncConfig configures the incremental sync loop.
type SyncConfig struct {
	// Enabled turns the background sync loop on.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Interval between sync passes.
	Interval time.Duration `yaml:"interval" json:"interval"`

	// SourcePath is the SQLite source-of-truth log database.
	SourcePath string `yaml:"source_path" json:"source_path"`

	// StatePath is the JSON cursor state file.
	StatePath string `yaml:"state_path" json:"state_path"`

	// BatchSize bounds upsert batches applied to a namespace index.
	BatchSize int `yaml:"batch_size" json:"batch_size"`

	// FetchLimit caps records read from the source per pass.
	FetchLimit int `yaml:"fetch_limit" json:"fetch_limit"`

	// Namespace is the default namespace for records that carry none.
	Namespace string `yaml:"namespace" json:"namespace"`

	// WatchSource triggers an immediate sync when the source file changes.
	WatchSource bool `yaml:"watch_source" json:"watch_source"`
}

// FleetConfig configures tenant credentials.
type FleetConfig struct {
	Tenants []TenantConfig `yaml:"tenants" json:"tenants"`
}

// TenantConfig maps one shared-secret credential to its namespace.
type TenantConfig struct {
	Namespace string `yaml:"namespace" json:"namespace"`
	Key       string `yaml:"key" json:"key"`
}

// DefaultDataDir returns the default data directory (~/.memclawz).
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".memclawz")
	}
	return filepath.Join(home, ".memclawz")
}

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	dataDir := DefaultDataDir()
	return &Config{
		Version: 1,
		Server: ServerConfig{
			Host:          "127.0.0.1",
			Port:          4011,
			MaxIndexBatch: 500,
			DataDir:       dataDir,
			LogLevel:      "info",
		},
		Embeddings: EmbeddingsConfig{
			Provider:  "http",
			Endpoint:  "http://localhost:4020",
			Timeout:   30 * time.Second,
			CacheSize: 1000,
		},
		Search: SearchConfig{
			VectorWeight:        0.7,
			KeywordWeight:       0.3,
			CandidateMultiplier: 4,
			DefaultTopK:         10,
			MaxTopK:             100,
		},
		Index: IndexConfig{
			M:               16,
			EfConstruction:  128,
			EfSearch:        64,
			ChunkMaxChars:   2000,
			ChunkOverlap:    200,
			ChunkMinSection: 50,
		},
		Sync: SyncConfig{
			Enabled:     true,
			Interval:    60 * time.Second,
			SourcePath:  filepath.Join(dataDir, "source", "main.sqlite"),
			StatePath:   filepath.Join(dataDir, "sync-state.json"),
			BatchSize:   50,
			FetchLimit:  500,
			Namespace:   "default",
			WatchSource: false,
		},
	}
}

// Load reads the config file at path (if non-empty), applies env overrides,
// and validates the result.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	if path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadYAML merges a YAML file over the current config.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return nil
}

// applyEnvOverrides applies MEMCLAWZ_* environment variables (highest
// precedence).
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("MEMCLAWZ_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("MEMCLAWZ_DATA"); v != "" {
		c.Server.DataDir = v
	}
	if v := os.Getenv("MEMCLAWZ_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("MEMCLAWZ_EMBED_ENDPOINT"); v != "" {
		c.Embeddings.Endpoint = v
	}
	if v := os.Getenv("MEMCLAWZ_EMBED_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("MEMCLAWZ_VECTOR_WEIGHT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Search.VectorWeight = f
		}
	}
	if v := os.Getenv("MEMCLAWZ_KEYWORD_WEIGHT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Search.KeywordWeight = f
		}
	}
	if v := os.Getenv("MEMCLAWZ_SOURCE_PATH"); v != "" {
		c.Sync.SourcePath = v
	}
	if v := os.Getenv("MEMCLAWZ_SYNC_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Sync.Interval = d
		}
	}
}

// Validate checks the final configuration for consistency.
func (c *Config) Validate() error {
	if c.Search.VectorWeight < 0 || c.Search.VectorWeight > 1 {
		return fmt.Errorf("vector_weight must be between 0 and 1, got %f", c.Search.VectorWeight)
	}
	if c.Search.KeywordWeight < 0 || c.Search.KeywordWeight > 1 {
		return fmt.Errorf("keyword_weight must be between 0 and 1, got %f", c.Search.KeywordWeight)
	}

	sum := c.Search.VectorWeight + c.Search.KeywordWeight
	if math.Abs(sum-1.0) > 0.01 {
		return fmt.Errorf("vector_weight + keyword_weight must equal 1.0, got %.2f", sum)
	}

	if c.Search.CandidateMultiplier < 1 {
		return fmt.Errorf("candidate_multiplier must be at least 1, got %d", c.Search.CandidateMultiplier)
	}
	if c.Search.MaxTopK < c.Search.DefaultTopK {
		return fmt.Errorf("max_top_k (%d) must be >= default_top_k (%d)", c.Search.MaxTopK, c.Search.DefaultTopK)
	}

	validProviders := map[string]bool{"http": true, "static": true}
	if !validProviders[strings.ToLower(c.Embeddings.Provider)] {
		return fmt.Errorf("embeddings.provider must be 'http' or 'static', got %s", c.Embeddings.Provider)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	if c.Server.MaxIndexBatch < 1 {
		return fmt.Errorf("max_index_batch must be positive, got %d", c.Server.MaxIndexBatch)
	}

	if c.Sync.BatchSize < 1 {
		return fmt.Errorf("sync.batch_size must be positive, got %d", c.Sync.BatchSize)
	}
	if c.Sync.FetchLimit < c.Sync.BatchSize {
		return fmt.Errorf("sync.fetch_limit (%d) must be >= sync.batch_size (%d)", c.Sync.FetchLimit, c.Sync.BatchSize)
	}
	if c.Sync.Interval <= 0 {
		return fmt.Errorf("sync.interval must be positive, got %s", c.Sync.Interval)
	}

	if c.Index.ChunkOverlap >= c.Index.ChunkMaxChars {
		return fmt.Errorf("chunk_overlap (%d) must be smaller than chunk_max_chars (%d)", c.Index.ChunkOverlap, c.Index.ChunkMaxChars)
	}

	seen := make(map[string]bool, len(c.Fleet.Tenants))
	for _, tenant := range c.Fleet.Tenants {
		if tenant.Namespace == "" {
			return fmt.Errorf("fleet tenant with empty namespace")
		}
		if tenant.Namespace == "all" {
			return fmt.Errorf("namespace 'all' is reserved for fan-out queries")
		}
		if tenant.Key == "" {
			return fmt.Errorf("fleet tenant %q has empty key", tenant.Namespace)
		}
		if seen[tenant.Namespace] {
			return fmt.Errorf("duplicate fleet tenant namespace %q", tenant.Namespace)
		}
		seen[tenant.Namespace] = true
	}

	return nil
}

// WriteYAML writes the config to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}
