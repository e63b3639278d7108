package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading from multiple sources.
type Loader struct {
	configPath string
	envPrefix  string
}

// NewLoader creates a config loader.
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
		envPrefix:  "SPACESYNC",
	}
}

var configKeys = []string{
	"sync.padding_buckets",
	"sync.max_epoch_advance",
	"sync.epoch_cache_size",
	"storage.data_dir",
	"storage.state_dir",
	"storage.backend",
	"log.level",
	"log.format",
	"log.file",
	"log.color",
}

func (l *Loader) newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(l.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range configKeys {
		_ = v.BindEnv(key)
	}
	return v
}

// Load reads configuration from file and environment.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()
	v := l.newViper()

	if l.configPath == "" {
		for _, path := range l.defaultPaths() {
			if _, err := os.Stat(path); err == nil {
				l.configPath = path
				break
			}
		}
	}

	if l.configPath != "" {
		v.SetConfigFile(l.configPath)
		v.SetConfigType(configType(l.configPath))
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", l.configPath, err)
		}
	}

	if err := parse(cfg, v); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// defaultPaths returns default config file locations.
func (l *Loader) defaultPaths() []string {
	paths := []string{
		"spacesync.yaml",
		".spacesync.yaml",
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(homeDir, ".config", "spacesync", "config.yaml"),
			filepath.Join(homeDir, ".spacesync", "config.yaml"),
		)
	}

	return paths
}

func configType(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return "json"
	}
	return "yaml"
}

// parse overrides cfg with every key set in the file or environment.
func parse(cfg *Config, v *viper.Viper) error {
	if v.IsSet("sync.padding_buckets") {
		buckets, err := intSlice(v.Get("sync.padding_buckets"))
		if err != nil {
			return fmt.Errorf("sync.padding_buckets: %w", err)
		}
		cfg.Sync.PaddingBuckets = buckets
	}
	if v.IsSet("sync.max_epoch_advance") {
		cfg.Sync.MaxEpochAdvance = v.GetUint32("sync.max_epoch_advance")
	}
	if v.IsSet("sync.epoch_cache_size") {
		cfg.Sync.EpochCacheSize = v.GetInt("sync.epoch_cache_size")
	}

	if v.IsSet("storage.data_dir") {
		cfg.Storage.DataDir = v.GetString("storage.data_dir")
		// Update dependent paths
		if !v.IsSet("storage.state_dir") {
			cfg.Storage.StateDir = filepath.Join(cfg.Storage.DataDir, "state")
		}
	}
	if v.IsSet("storage.state_dir") {
		cfg.Storage.StateDir = v.GetString("storage.state_dir")
	}
	if v.IsSet("storage.backend") {
		cfg.Storage.Backend = strings.ToLower(v.GetString("storage.backend"))
	}

	if v.IsSet("log.level") {
		cfg.Log.Level = strings.ToLower(v.GetString("log.level"))
	}
	if v.IsSet("log.format") {
		cfg.Log.Format = strings.ToLower(v.GetString("log.format"))
	}
	if v.IsSet("log.file") {
		cfg.Log.File = v.GetString("log.file")
	}
	if v.IsSet("log.color") {
		cfg.Log.Color = v.GetBool("log.color")
	}

	return nil
}

// intSlice accepts a list from a config file or a comma-separated string
// from the environment.
func intSlice(raw any) ([]int, error) {
	switch x := raw.(type) {
	case string:
		out := []int{}
		for _, field := range strings.FieldsFunc(x, func(r rune) bool { return r == ',' || r == ' ' }) {
			n, err := strconv.Atoi(field)
			if err != nil {
				return nil, err
			}
			out = append(out, n)
		}
		return out, nil
	case []any:
		out := make([]int, 0, len(x))
		for _, item := range x {
			switch n := item.(type) {
			case int:
				out = append(out, n)
			case int64:
				out = append(out, int(n))
			case float64:
				out = append(out, int(n))
			default:
				return nil, fmt.Errorf("unexpected element %v", item)
			}
		}
		return out, nil
	case []int:
		return x, nil
	}
	return nil, fmt.Errorf("unexpected value %v", raw)
}

// SaveExample writes an example config file.
func SaveExample(path string) error {
	cfg := DefaultConfig()

	data, err := yaml.Marshal(map[string]any{
		"sync": map[string]any{
			"padding_buckets":   cfg.Sync.PaddingBuckets,
			"max_epoch_advance": cfg.Sync.MaxEpochAdvance,
			"epoch_cache_size":  cfg.Sync.EpochCacheSize,
		},
		"storage": map[string]any{
			"data_dir":  cfg.Storage.DataDir,
			"state_dir": cfg.Storage.StateDir,
			"backend":   cfg.Storage.Backend,
		},
		"log": map[string]any{
			"level":  cfg.Log.Level,
			"format": cfg.Log.Format,
			"file":   cfg.Log.File,
			"color":  cfg.Log.Color,
		},
	})
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	example := "# spacesync configuration file\n" +
		"# Environment variables override these settings using the SPACESYNC_ prefix\n" +
		"# For example: SPACESYNC_LOG_LEVEL=debug\n\n" + string(data)

	if err := os.WriteFile(path, []byte(example), 0600); err != nil {
		return fmt.Errorf("write file: %w", err)
	}

	return nil
}
