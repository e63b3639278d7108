package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
)

// MaxBucketSize bounds a single padding bucket. The padded length prefix is
// a u32, and larger buckets only waste bandwidth.
const MaxBucketSize = 256 << 20

// MaxEpochAdvanceLimit is the hard cap on sync.max_epoch_advance. Each step
// past the base epoch is one HKDF derivation.
const MaxEpochAdvanceLimit = 1000

// Storage backends.
const (
	BackendSQLite = "sqlite"
	BackendJSON   = "json"
)

// Config holds all application configuration.
type Config struct {
	// Envelope and key handling
	Sync SyncConfig `json:"sync" mapstructure:"sync"`

	// Local wrapped-DEK index
	Storage StorageConfig `json:"storage" mapstructure:"storage"`

	// Logging
	Log LogConfig `json:"log" mapstructure:"log"`
}

// SyncConfig for the transport pipeline and epoch cache.
type SyncConfig struct {
	PaddingBuckets  []int  `json:"padding_buckets" mapstructure:"padding_buckets"`     // Ascending bucket sizes in bytes; empty disables padding
	MaxEpochAdvance uint32 `json:"max_epoch_advance" mapstructure:"max_epoch_advance"` // Ratchet steps allowed past the base epoch
	EpochCacheSize  int    `json:"epoch_cache_size" mapstructure:"epoch_cache_size"`   // Memoized epoch keys
}

// StorageConfig for local file paths.
type StorageConfig struct {
	DataDir  string `json:"data_dir" mapstructure:"data_dir"`   // Base directory for all data
	StateDir string `json:"state_dir" mapstructure:"state_dir"` // Space state storage
	Backend  string `json:"backend" mapstructure:"backend"`     // sqlite, json
}

// StatePath returns where the configured backend keeps its data.
func (s StorageConfig) StatePath() string {
	if s.Backend == BackendSQLite {
		return filepath.Join(s.StateDir, "state.db")
	}
	return s.StateDir
}

// BlobDir is where sealed record blobs are kept.
func (s StorageConfig) BlobDir() string {
	return filepath.Join(s.DataDir, "blobs")
}

// LogConfig for logging behavior.
type LogConfig struct {
	Level  string `json:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `json:"format" mapstructure:"format"` // text, json
	File   string `json:"file" mapstructure:"file"`     // Log file path (empty = stdout)
	Color  bool   `json:"color" mapstructure:"color"`   // Enable colored output
}

// DefaultBuckets are the padding sizes used when none are configured.
func DefaultBuckets() []int {
	return []int{256, 1024, 4096, 16384, 65536, 262144, 1048576}
}

// DefaultConfig returns config with sensible defaults.
func DefaultConfig() *Config {
	dataDir := ".spacesync"

	return &Config{
		Sync: SyncConfig{
			PaddingBuckets:  DefaultBuckets(),
			MaxEpochAdvance: MaxEpochAdvanceLimit,
			EpochCacheSize:  1001,
		},
		Storage: StorageConfig{
			DataDir:  dataDir,
			StateDir: filepath.Join(dataDir, "state"),
			Backend:  BackendSQLite,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			File:   "",
			Color:  true,
		},
	}
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	prev := 0
	for i, b := range c.Sync.PaddingBuckets {
		if b <= 4 {
			return fmt.Errorf("sync.padding_buckets[%d]: bucket must exceed the 4-byte length prefix, got %d", i, b)
		}
		if b > MaxBucketSize {
			return fmt.Errorf("sync.padding_buckets[%d]: %s exceeds maximum bucket size %s",
				i, humanize.IBytes(uint64(b)), humanize.IBytes(MaxBucketSize))
		}
		if b <= prev {
			return fmt.Errorf("sync.padding_buckets must be strictly ascending: %d follows %d", b, prev)
		}
		prev = b
	}

	if c.Sync.MaxEpochAdvance == 0 {
		return errors.New("sync.max_epoch_advance must be positive")
	}
	if c.Sync.MaxEpochAdvance > MaxEpochAdvanceLimit {
		return fmt.Errorf("sync.max_epoch_advance %d exceeds limit %d", c.Sync.MaxEpochAdvance, MaxEpochAdvanceLimit)
	}

	if c.Sync.EpochCacheSize <= 0 {
		return errors.New("sync.epoch_cache_size must be positive")
	}

	if c.Storage.DataDir == "" {
		return errors.New("storage.data_dir is required")
	}

	validBackends := map[string]bool{BackendSQLite: true, BackendJSON: true}
	if !validBackends[c.Storage.Backend] {
		return fmt.Errorf("invalid storage backend: %s", c.Storage.Backend)
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("invalid log format: %s", c.Log.Format)
	}

	return nil
}

// EnsureDirectories creates required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDir,
		c.Storage.StateDir,
		c.Storage.BlobDir(),
	}

	if c.Log.File != "" {
		dirs = append(dirs, filepath.Dir(c.Log.File))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return nil
}
