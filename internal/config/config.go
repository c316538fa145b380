// Package config provides unified configuration loading for protomech.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nvandessel/protomech/internal/circuit"
	"github.com/nvandessel/protomech/internal/constants"
	"gopkg.in/yaml.v3"
)

// ProtomechConfig contains all protomech configuration settings.
type ProtomechConfig struct {
	// Dataset selects the dataset directory to load.
	Dataset DatasetConfig `json:"dataset" yaml:"dataset"`

	// Weights controls the initial influence threshold.
	Weights WeightsConfig `json:"weights" yaml:"weights"`

	// Layout is the grid used to place new circuit nodes.
	Layout circuit.Layout `json:"layout" yaml:"layout"`

	// Store selects where circuit snapshots are saved.
	Store StoreConfig `json:"store" yaml:"store"`

	// Server configures the local HTTP API.
	Server ServerConfig `json:"server" yaml:"server"`

	// Cache sizes the explorer's caches.
	Cache CacheConfig `json:"cache" yaml:"cache"`

	// Watch configures dataset reloading while serving.
	Watch WatchConfig `json:"watch" yaml:"watch"`

	// Logging contains settings for operational and event logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// DatasetConfig locates the dataset.
type DatasetConfig struct {
	// Dir is the dataset directory. Supports ${VAR} syntax for env vars.
	Dir string `json:"dir" yaml:"dir"`

	// TopRecords limits how many top-activation records are aligned.
	TopRecords int `json:"top_records" yaml:"top_records"`
}

// WeightsConfig configures influence thresholding.
type WeightsConfig struct {
	// MaxDefaultEdges caps the samples kept by the default threshold.
	// Zero or less keeps every sample.
	MaxDefaultEdges int `json:"max_default_edges" yaml:"max_default_edges"`
}

// StoreConfig configures snapshot persistence.
type StoreConfig struct {
	// Backend is "file" (default), "sqlite" or "memory".
	Backend string `json:"backend" yaml:"backend"`

	// Dir holds snapshot files or the database. Empty means ~/.protomech/circuits.
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`

	// Format is the file format version written by the file backend (1 or 2).
	Format int `json:"format" yaml:"format"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	// Addr is the listen address. Port 0 lets the OS pick one.
	Addr string `json:"addr" yaml:"addr"`

	// OpenBrowser opens the API root in a browser on start.
	OpenBrowser bool `json:"open_browser" yaml:"open_browser"`
}

// CacheConfig sizes caches.
type CacheConfig struct {
	// AlignmentEntries is the number of alignments kept in memory.
	AlignmentEntries int `json:"alignment_entries" yaml:"alignment_entries"`
}

// WatchConfig configures dataset file watching.
type WatchConfig struct {
	Enabled  bool          `json:"enabled" yaml:"enabled"`
	Debounce time.Duration `json:"debounce" yaml:"debounce"`
}

// LoggingConfig configures protomech's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables the circuit event log in the state directory.
	Level string `json:"level" yaml:"level"`
}

// Default returns a ProtomechConfig with sensible defaults.
func Default() *ProtomechConfig {
	return &ProtomechConfig{
		Dataset: DatasetConfig{
			TopRecords: constants.DefaultTopRecords,
		},
		Weights: WeightsConfig{
			MaxDefaultEdges: constants.DefaultMaxEdges,
		},
		Layout: circuit.DefaultLayout(),
		Store: StoreConfig{
			Backend: "file",
			Format:  2,
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:0",
		},
		Cache: CacheConfig{
			AlignmentEntries: constants.DefaultAlignmentCacheSize,
		},
		Watch: WatchConfig{
			Enabled:  true,
			Debounce: 250 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DefaultPath returns ~/.protomech/config.yaml.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".protomech", "config.yaml"), nil
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.protomech/config.yaml -> environment variables
func Load() (*ProtomechConfig, error) {
	path, err := DefaultPath()
	if err != nil {
		path = ""
	}
	return LoadPath(path)
}

// LoadPath is Load with an explicit config file. A missing file is not an
// error; the defaults are used instead.
func LoadPath(path string) (*ProtomechConfig, error) {
	config := Default()

	if path != "" {
		if _, statErr := os.Stat(path); statErr == nil {
			fileConfig, loadErr := LoadFromFile(path)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			config = fileConfig
		}
	}

	applyEnvOverrides(config)
	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file.
func LoadFromFile(path string) (*ProtomechConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	config.Dataset.Dir = expandEnvVars(config.Dataset.Dir)
	config.Store.Dir = expandEnvVars(config.Store.Dir)

	return config, nil
}

// Save writes the configuration as YAML to path, creating its directory.
func (c *ProtomechConfig) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Validate checks that the configuration is valid.
func (c *ProtomechConfig) Validate() error {
	if c.Dataset.TopRecords < 0 {
		return fmt.Errorf("top_records must be non-negative, got %d", c.Dataset.TopRecords)
	}

	if c.Layout.PerRow <= 0 {
		return fmt.Errorf("nodes_per_row must be positive, got %d", c.Layout.PerRow)
	}

	validBackends := map[string]bool{"file": true, "sqlite": true, "memory": true}
	if !validBackends[c.Store.Backend] {
		return fmt.Errorf("invalid store backend: %s (valid: file, sqlite, memory)", c.Store.Backend)
	}
	if c.Store.Format != 1 && c.Store.Format != 2 {
		return fmt.Errorf("invalid store format: %d (valid: 1, 2)", c.Store.Format)
	}

	if c.Cache.AlignmentEntries <= 0 {
		return fmt.Errorf("alignment_entries must be positive, got %d", c.Cache.AlignmentEntries)
	}

	if c.Watch.Debounce < 0 {
		return fmt.Errorf("debounce must be non-negative, got %v", c.Watch.Debounce)
	}

	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default)", c.Logging.Level)
	}

	return nil
}

// Keys returns every dot-notation key accepted by Get and Set, sorted.
func Keys() []string {
	keys := make([]string, 0, len(accessors))
	for k := range accessors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type accessor struct {
	get func(c *ProtomechConfig) interface{}
	set func(c *ProtomechConfig, v string) error
}

var accessors = map[string]accessor{
	"dataset.dir": {
		get: func(c *ProtomechConfig) interface{} { return c.Dataset.Dir },
		set: func(c *ProtomechConfig, v string) error { c.Dataset.Dir = v; return nil },
	},
	"dataset.top_records": {
		get: func(c *ProtomechConfig) interface{} { return c.Dataset.TopRecords },
		set: func(c *ProtomechConfig, v string) error { return setInt(&c.Dataset.TopRecords, v) },
	},
	"weights.max_default_edges": {
		get: func(c *ProtomechConfig) interface{} { return c.Weights.MaxDefaultEdges },
		set: func(c *ProtomechConfig, v string) error { return setInt(&c.Weights.MaxDefaultEdges, v) },
	},
	"layout.nodes_per_row": {
		get: func(c *ProtomechConfig) interface{} { return c.Layout.PerRow },
		set: func(c *ProtomechConfig, v string) error { return setInt(&c.Layout.PerRow, v) },
	},
	"store.backend": {
		get: func(c *ProtomechConfig) interface{} { return c.Store.Backend },
		set: func(c *ProtomechConfig, v string) error { c.Store.Backend = v; return nil },
	},
	"store.dir": {
		get: func(c *ProtomechConfig) interface{} { return c.Store.Dir },
		set: func(c *ProtomechConfig, v string) error { c.Store.Dir = v; return nil },
	},
	"store.format": {
		get: func(c *ProtomechConfig) interface{} { return c.Store.Format },
		set: func(c *ProtomechConfig, v string) error { return setInt(&c.Store.Format, v) },
	},
	"server.addr": {
		get: func(c *ProtomechConfig) interface{} { return c.Server.Addr },
		set: func(c *ProtomechConfig, v string) error { c.Server.Addr = v; return nil },
	},
	"server.open_browser": {
		get: func(c *ProtomechConfig) interface{} { return c.Server.OpenBrowser },
		set: func(c *ProtomechConfig, v string) error { return setBool(&c.Server.OpenBrowser, v) },
	},
	"cache.alignment_entries": {
		get: func(c *ProtomechConfig) interface{} { return c.Cache.AlignmentEntries },
		set: func(c *ProtomechConfig, v string) error { return setInt(&c.Cache.AlignmentEntries, v) },
	},
	"watch.enabled": {
		get: func(c *ProtomechConfig) interface{} { return c.Watch.Enabled },
		set: func(c *ProtomechConfig, v string) error { return setBool(&c.Watch.Enabled, v) },
	},
	"watch.debounce": {
		get: func(c *ProtomechConfig) interface{} { return c.Watch.Debounce.String() },
		set: func(c *ProtomechConfig, v string) error {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid duration: %s", v)
			}
			c.Watch.Debounce = d
			return nil
		},
	},
	"logging.level": {
		get: func(c *ProtomechConfig) interface{} { return c.Logging.Level },
		set: func(c *ProtomechConfig, v string) error { c.Logging.Level = v; return nil },
	},
}

// Get returns a configuration value by dot-notation key.
func (c *ProtomechConfig) Get(key string) (interface{}, bool) {
	a, ok := accessors[key]
	if !ok {
		return nil, false
	}
	return a.get(c), true
}

// Set assigns a configuration value by dot-notation key and re-validates.
// On error the configuration is left unchanged.
func (c *ProtomechConfig) Set(key, value string) error {
	a, ok := accessors[key]
	if !ok {
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	next := *c
	if err := a.set(&next, value); err != nil {
		return err
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*c = next
	return nil
}

func setInt(dst *int, v string) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid integer: %s", v)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, v string) error {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid boolean: %s", v)
	}
	*dst = b
	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *ProtomechConfig) {
	if v := os.Getenv("PROTOMECH_DATASET"); v != "" {
		config.Dataset.Dir = v
	}

	if v := os.Getenv("PROTOMECH_TOP_RECORDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Dataset.TopRecords = n
		}
	}

	if v := os.Getenv("PROTOMECH_MAX_EDGES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Weights.MaxDefaultEdges = n
		}
	}

	if v := os.Getenv("PROTOMECH_STORE_BACKEND"); v != "" {
		config.Store.Backend = v
	}
	if v := os.Getenv("PROTOMECH_STORE_DIR"); v != "" {
		config.Store.Dir = v
	}
	if v := os.Getenv("PROTOMECH_STORE_FORMAT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Store.Format = n
		}
	}

	if v := os.Getenv("PROTOMECH_SERVER_ADDR"); v != "" {
		config.Server.Addr = v
	}

	if v := os.Getenv("PROTOMECH_CACHE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Cache.AlignmentEntries = n
		}
	}

	if v := os.Getenv("PROTOMECH_WATCH"); v != "" {
		config.Watch.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("PROTOMECH_WATCH_DEBOUNCE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Watch.Debounce = d
		}
	}

	if v := os.Getenv("PROTOMECH_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
