// Package config loads datakit settings with layered precedence:
// built-in defaults, then an optional YAML file, then DATAKIT_* environment
// variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/behaviorlab/datakit/codec"
)

// ConfigPathEnvVar overrides the config file search path.
const ConfigPathEnvVar = "DATAKIT_CONFIG_PATH"

// DefaultConfigPaths lists where a config file is searched, in order.
var DefaultConfigPaths = []string{
	"datakit.yaml",
	"datakit.yml",
	"/etc/datakit/config.yaml",
}

// Config is the root configuration.
type Config struct {
	Cache     CacheConfig     `koanf:"cache"`
	Ingest    IngestConfig    `koanf:"ingest"`
	Resources ResourceConfig  `koanf:"resources"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// CacheConfig configures the two-tier result cache.
type CacheConfig struct {
	// Dir is the disk-tier directory. Empty keeps the cache memory-only.
	Dir               string        `koanf:"dir"`
	MemoryBudgetBytes int64         `koanf:"memory_budget_bytes"`
	DiskBudgetBytes   int64         `koanf:"disk_budget_bytes"`
	TTL               time.Duration `koanf:"ttl"`
	// Compressor is the disk payload codec: zstd, lz4, or none.
	Compressor string `koanf:"compressor"`
	// Codec is the result payload codec: go-json or json.
	Codec string `koanf:"codec"`
}

// IngestConfig configures dataset loading.
type IngestConfig struct {
	ChunkRows       int     `koanf:"chunk_rows"`
	SampleRows      int     `koanf:"sample_rows"`
	MaxBadRowRatio  float64 `koanf:"max_bad_row_ratio"`
	ReadBufferBytes int     `koanf:"read_buffer_bytes"`
}

// ResourceConfig configures process-wide resource limits.
type ResourceConfig struct {
	MemoryLimitBytes    int64 `koanf:"memory_limit_bytes"`
	MaxConcurrentWrites int64 `koanf:"max_concurrent_writes"`
	IOLimitBytesPerSec  int64 `koanf:"io_limit_bytes_per_sec"`
}

// LoggingConfig configures the slog handler.
type LoggingConfig struct {
	// Level is debug, info, warn, or error.
	Level string `koanf:"level"`
	// Format is text or json.
	Format string `koanf:"format"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		Cache: CacheConfig{
			Dir:               "",
			MemoryBudgetBytes: 256 << 20,
			DiskBudgetBytes:   2 << 30,
			TTL:               time.Hour,
			Compressor:        "zstd",
			Codec:             "go-json",
		},
		Ingest: IngestConfig{
			ChunkRows:       10000,
			SampleRows:      1000,
			MaxBadRowRatio:  0.05,
			ReadBufferBytes: 64 << 10,
		},
		Resources: ResourceConfig{
			MemoryLimitBytes:    0, // tracked but unenforced
			MaxConcurrentWrites: 8,
			IOLimitBytesPerSec:  0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// envMappings translates DATAKIT_* environment variables to config paths.
var envMappings = map[string]string{
	"datakit_cache_dir":                 "cache.dir",
	"datakit_cache_memory_budget_bytes": "cache.memory_budget_bytes",
	"datakit_cache_disk_budget_bytes":   "cache.disk_budget_bytes",
	"datakit_cache_ttl":                 "cache.ttl",
	"datakit_cache_compressor":          "cache.compressor",
	"datakit_cache_codec":               "cache.codec",

	"datakit_ingest_chunk_rows":        "ingest.chunk_rows",
	"datakit_ingest_sample_rows":       "ingest.sample_rows",
	"datakit_ingest_max_bad_row_ratio": "ingest.max_bad_row_ratio",
	"datakit_ingest_read_buffer_bytes": "ingest.read_buffer_bytes",

	"datakit_resources_memory_limit_bytes":     "resources.memory_limit_bytes",
	"datakit_resources_max_concurrent_writes":  "resources.max_concurrent_writes",
	"datakit_resources_io_limit_bytes_per_sec": "resources.io_limit_bytes_per_sec",

	"datakit_logging_level":  "logging.level",
	"datakit_logging_format": "logging.format",
}

func envTransform(key string) string {
	return envMappings[strings.ToLower(key)]
}

// Load builds the configuration from defaults, the first config file found
// (or path, if non-empty), and environment variables, in rising precedence.
func Load(path string) (Config, error) {
	k := koanf.New(".")

	defaults := Default()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("DATAKIT_", ".", envTransform), nil); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Validate rejects settings the data core cannot run with.
func (c Config) Validate() error {
	if c.Cache.MemoryBudgetBytes <= 0 {
		return fmt.Errorf("cache.memory_budget_bytes must be positive, got %d", c.Cache.MemoryBudgetBytes)
	}
	if c.Cache.DiskBudgetBytes <= 0 {
		return fmt.Errorf("cache.disk_budget_bytes must be positive, got %d", c.Cache.DiskBudgetBytes)
	}
	switch c.Cache.Compressor {
	case "zstd", "lz4", "none", "":
	default:
		return fmt.Errorf("cache.compressor must be zstd, lz4, or none, got %q", c.Cache.Compressor)
	}
	if c.Cache.Codec != "" {
		if _, ok := codec.ByName(c.Cache.Codec); !ok {
			return fmt.Errorf("cache.codec must be go-json or json, got %q", c.Cache.Codec)
		}
	}
	if c.Ingest.ChunkRows <= 0 {
		return fmt.Errorf("ingest.chunk_rows must be positive, got %d", c.Ingest.ChunkRows)
	}
	if c.Ingest.SampleRows <= 0 {
		return fmt.Errorf("ingest.sample_rows must be positive, got %d", c.Ingest.SampleRows)
	}
	if c.Ingest.MaxBadRowRatio < 0 || c.Ingest.MaxBadRowRatio > 1 {
		return fmt.Errorf("ingest.max_bad_row_ratio must be in [0, 1], got %g", c.Ingest.MaxBadRowRatio)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	return nil
}
