package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ArchiveConfig describes the history archive buckets are read from.
type ArchiveConfig struct {
	URL                 string `yaml:"url"`     // overrides the network's default archive
	Network             string `yaml:"network"` // e.g., "testnet", "mainnet", "futurenet", "local"
	CheckpointFrequency uint32 `yaml:"checkpoint_frequency"`
	BucketCompression   string `yaml:"bucket_compression"` // compression of remote bucket objects
	Timeout             string `yaml:"timeout"`
	Retries             int    `yaml:"retries"` // extra attempts after a failed request; 0 disables retrying
	RetryInterval       string `yaml:"retry_interval"`
}

// CacheConfig holds bucket cache configuration.
type CacheConfig struct {
	Dir             string `yaml:"dir"` // empty means the user cache directory
	Workers         int    `yaml:"workers"`
	VerifyHashes    bool   `yaml:"verify_hashes"`
	CheckpointIndex bool   `yaml:"checkpoint_index"`
	MinFreeBytes    uint64 `yaml:"min_free_bytes"`

	SlowDownloadThreshold string  `yaml:"slow_download_threshold"`
	MinDownloadRate       float64 `yaml:"min_download_rate"` // bytes per second, 0 disables the check
}

// SnapshotConfig controls what is snapshotted and where it is written.
type SnapshotConfig struct {
	Ledger      uint32 `yaml:"ledger"` // 0 means the latest checkpoint
	Out         string `yaml:"out"`
	Format      string `yaml:"format"`
	Compression string `yaml:"compression"`
	Indent      bool   `yaml:"indent"`
}

// FilterConfig lists the entities to keep.
type FilterConfig struct {
	Addresses  []string `yaml:"addresses"`   // G... accounts and C... contracts
	WasmHashes []string `yaml:"wasm_hashes"` // hex
}

// LoggingConfig holds logging-specific configurations.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // e.g., "debug", "info", "warn", "error"
	Output string `yaml:"output"` // e.g., "stdout", "stderr", "file", "none"
	File   string `yaml:"file"`   // Path to the log file, used if output is "file"
	Format string `yaml:"format"` // "text" or "json"
}

// TracingConfig holds configuration for distributed tracing.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"` // e.g., "localhost:4317" for gRPC OTLP collector
	Protocol    string `yaml:"protocol"` // "grpc" or "http"
	ServiceName string `yaml:"service_name"`
}

// DebugConfig exposes expvar metrics and pprof while a run is in progress.
type DebugConfig struct {
	Enabled       bool   `yaml:"enabled"`
	ListenAddress string `yaml:"listen_address"`
	PProfEnabled  bool   `yaml:"pprof_enabled"`
}

// Config is the top-level configuration struct.
type Config struct {
	Archive  ArchiveConfig  `yaml:"archive"`
	Cache    CacheConfig    `yaml:"cache"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
	Filter   FilterConfig   `yaml:"filter"`
	Logging  LoggingConfig  `yaml:"logging"`
	Tracing  TracingConfig  `yaml:"tracing"`
	Debug    DebugConfig    `yaml:"debug"`
}

// ParseDuration parses a duration string. Returns the default duration if the string is empty or invalid.
// Logs a warning if the string is invalid but not empty.
func ParseDuration(durationStr string, defaultDuration time.Duration, logger *slog.Logger) time.Duration {
	if durationStr == "" || durationStr == "0" {
		return defaultDuration
	}
	d, err := time.ParseDuration(durationStr)
	if err != nil {
		if logger != nil {
			logger.Warn("Invalid duration format, using default", "input", durationStr, "default", defaultDuration.String(), "error", err)
		}
		return defaultDuration
	}
	return d
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Archive: ArchiveConfig{
			Network:             "testnet",
			CheckpointFrequency: 64,
			BucketCompression:   "gzip",
			Timeout:             "60s",
			Retries:             0,
			RetryInterval:       "500ms",
		},
		Cache: CacheConfig{
			Workers:               4,
			VerifyHashes:          true,
			CheckpointIndex:       true,
			MinFreeBytes:          1 << 30, // 1 GiB
			SlowDownloadThreshold: "2m",
		},
		Snapshot: SnapshotConfig{
			Out:         "snapshot.json",
			Format:      "json",
			Compression: "none",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stderr",
			File:   "ledgersnap.log",
			Format: "text",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			Endpoint:    "localhost:4317",
			Protocol:    "grpc",
			ServiceName: "ledgersnap",
		},
		Debug: DebugConfig{
			Enabled:       false,
			ListenAddress: "localhost:6060",
			PProfEnabled:  true,
		},
	}
}

// Load reads configuration from an io.Reader.
// This is the core logic, separated for testability.
func Load(r io.Reader) (*Config, error) {
	cfg := Default()

	// If the reader is nil, it's like an empty file, return defaults.
	if r == nil {
		return cfg, nil
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config data: %w", err)
	}
	if len(data) == 0 {
		return cfg, nil
	}

	// Unmarshal YAML into the config struct, overwriting defaults
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfig reads configuration from a YAML file by path.
func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			// If file doesn't exist, return default config by calling Load with a nil reader.
			return Load(nil)
		}
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer file.Close()

	return Load(file)
}

// Validate rejects values no component can work with. Names of codecs and
// networks are checked by the components that resolve them.
func (c *Config) Validate() error {
	if c.Cache.Workers < 1 {
		return fmt.Errorf("invalid config: cache.workers must be at least 1, got %d", c.Cache.Workers)
	}
	if c.Archive.Retries < 0 {
		return fmt.Errorf("invalid config: archive.retries must not be negative, got %d", c.Archive.Retries)
	}
	if c.Archive.CheckpointFrequency == 0 {
		return fmt.Errorf("invalid config: archive.checkpoint_frequency must be positive")
	}
	switch strings.ToLower(c.Logging.Output) {
	case "stdout", "stderr", "file", "none", "":
	default:
		return fmt.Errorf("invalid config: unknown logging.output %q", c.Logging.Output)
	}
	switch strings.ToLower(c.Tracing.Protocol) {
	case "grpc", "http":
	default:
		return fmt.Errorf("invalid config: unknown tracing.protocol %q", c.Tracing.Protocol)
	}
	return nil
}

// CacheDir returns the configured cache directory, or the per-user default.
func (c *Config) CacheDir() (string, error) {
	if c.Cache.Dir != "" {
		return c.Cache.Dir, nil
	}
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("resolving default cache directory: %w", err)
	}
	return filepath.Join(base, "ledgersnap", "buckets"), nil
}
