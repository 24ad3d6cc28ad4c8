// Package config loads the layered indexmode configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	moderr "github.com/Aman-CERP/indexmode/internal/errors"
)

// Queue orders accepted by scheduler.queue_order.
const (
	QueueOrderFIFO = "fifo"
	QueueOrderLIFO = "lifo"
)

// Config represents the complete indexmode configuration.
type Config struct {
	Version   int             `yaml:"version" json:"version"`
	DataDir   string          `yaml:"data_dir" json:"data_dir"`
	Scheduler SchedulerConfig `yaml:"scheduler" json:"scheduler"`
	Watch     WatchConfig     `yaml:"watch" json:"watch"`
	Metrics   MetricsConfig   `yaml:"metrics" json:"metrics"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
}

// SchedulerConfig tunes the mode coordinator and its background executor.
type SchedulerConfig struct {
	// StartDumb seeds the session as "not yet indexed": it begins dumb and
	// stays dumb until the initial full rescan completes.
	StartDumb bool `yaml:"start_dumb" json:"start_dumb"`
	// QueueOrder is the tie-break for pending tasks of equal priority
	// that did not merge: "fifo" (default) or "lifo".
	QueueOrder string `yaml:"queue_order" json:"queue_order"`
	// CancelPollInterval is how often CancelAllTasksAndWait re-checks the executor.
	CancelPollInterval string `yaml:"cancel_poll_interval" json:"cancel_poll_interval"`
	// CancelWaitTimeout bounds CancelAllTasksAndWait ("0" = wait until done).
	CancelWaitTimeout string `yaml:"cancel_wait_timeout" json:"cancel_wait_timeout"`
	// SmartWaitTimeout is the default for WaitForSmartMode callers that pass none.
	SmartWaitTimeout string `yaml:"smart_wait_timeout" json:"smart_wait_timeout"`
	// TraceHistory is how many dumb-mode start traces are retained.
	TraceHistory int `yaml:"trace_history" json:"trace_history"`
}

// WatchConfig configures the file watcher that drives refresh activities.
type WatchConfig struct {
	Enabled  bool     `yaml:"enabled" json:"enabled"`
	Debounce string   `yaml:"debounce" json:"debounce"`
	Buffer   int      `yaml:"buffer" json:"buffer"`
	Exclude  []string `yaml:"exclude" json:"exclude"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
}

// LoggingConfig configures the session log.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`
	File      string `yaml:"file" json:"file"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		DataDir: ".indexmode",
		Scheduler: SchedulerConfig{
			StartDumb:          true,
			QueueOrder:         QueueOrderFIFO,
			CancelPollInterval: "10ms",
			CancelWaitTimeout:  "30s",
			SmartWaitTimeout:   "10s",
			TraceHistory:       32,
		},
		Watch: WatchConfig{
			Enabled:  true,
			Debounce: "500ms",
			Buffer:   64,
			Exclude:  []string{".git", ".indexmode", "node_modules"},
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9464",
		},
		Logging: LoggingConfig{
			Level:     "info",
			File:      "",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
	}
}

// GetUserConfigPath returns the path to the user/global configuration file.
// It follows XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/indexmode/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/indexmode/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "indexmode", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "indexmode", "config.yaml")
	}
	return filepath.Join(home, ".config", "indexmode", "config.yaml")
}

// Load loads configuration for the project in dir.
// It applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/indexmode/config.yaml)
//  3. Project config (.indexmode.yaml in dir)
//  4. Environment variables (INDEXMODE_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if path := GetUserConfigPath(); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, moderr.ConfigError("invalid configuration", err).
			WithSuggestion("check .indexmode.yaml and INDEXMODE_* environment variables")
	}

	return cfg, nil
}

// loadFromFile attempts to load configuration from .indexmode.yaml or .indexmode.yml.
func (c *Config) loadFromFile(dir string) error {
	for _, name := range []string{".indexmode.yaml", ".indexmode.yml"} {
		path := filepath.Join(dir, name)
		if fileExists(path) {
			return c.loadYAML(path)
		}
	}
	return nil
}

// loadYAML decodes path on top of the current values. Keys absent from the
// file keep their current value, so explicit false/zero values are honored.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return moderr.ConfigError(fmt.Sprintf("failed to parse config file %s", path), err)
	}
	return nil
}

// applyEnvOverrides applies INDEXMODE_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("INDEXMODE_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("INDEXMODE_START_DUMB"); v != "" {
		c.Scheduler.StartDumb = parseBool(v)
	}
	if v := os.Getenv("INDEXMODE_QUEUE_ORDER"); v != "" {
		c.Scheduler.QueueOrder = strings.ToLower(v)
	}
	if v := os.Getenv("INDEXMODE_CANCEL_WAIT_TIMEOUT"); v != "" {
		c.Scheduler.CancelWaitTimeout = v
	}
	if v := os.Getenv("INDEXMODE_WATCH"); v != "" {
		c.Watch.Enabled = parseBool(v)
	}
	if v := os.Getenv("INDEXMODE_WATCH_DEBOUNCE"); v != "" {
		c.Watch.Debounce = v
	}
	if v := os.Getenv("INDEXMODE_METRICS_ADDR"); v != "" {
		c.Metrics.Enabled = true
		c.Metrics.Addr = v
	}
	if v := os.Getenv("INDEXMODE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Scheduler.QueueOrder) {
	case QueueOrderFIFO, QueueOrderLIFO:
	default:
		return fmt.Errorf("scheduler.queue_order must be 'fifo' or 'lifo', got %q", c.Scheduler.QueueOrder)
	}

	durations := map[string]string{
		"scheduler.cancel_poll_interval": c.Scheduler.CancelPollInterval,
		"scheduler.cancel_wait_timeout":  c.Scheduler.CancelWaitTimeout,
		"scheduler.smart_wait_timeout":   c.Scheduler.SmartWaitTimeout,
		"watch.debounce":                 c.Watch.Debounce,
	}
	for key, raw := range durations {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("%s must be a duration, got %q", key, raw)
		}
		if d < 0 {
			return fmt.Errorf("%s must be non-negative, got %s", key, raw)
		}
	}
	if d, _ := time.ParseDuration(c.Scheduler.CancelPollInterval); d == 0 {
		return fmt.Errorf("scheduler.cancel_poll_interval must be positive")
	}

	if c.Scheduler.TraceHistory <= 0 {
		return fmt.Errorf("scheduler.trace_history must be positive, got %d", c.Scheduler.TraceHistory)
	}
	if c.Watch.Buffer <= 0 {
		return fmt.Errorf("watch.buffer must be positive, got %d", c.Watch.Buffer)
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr is required when metrics are enabled")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}

	return nil
}

// CancelPollInterval returns the parsed scheduler.cancel_poll_interval.
func (c *Config) CancelPollInterval() time.Duration {
	return durationOr(c.Scheduler.CancelPollInterval, 10*time.Millisecond)
}

// CancelWaitTimeout returns the parsed scheduler.cancel_wait_timeout (0 = unbounded).
func (c *Config) CancelWaitTimeout() time.Duration {
	return durationOr(c.Scheduler.CancelWaitTimeout, 30*time.Second)
}

// SmartWaitTimeout returns the parsed scheduler.smart_wait_timeout.
func (c *Config) SmartWaitTimeout() time.Duration {
	return durationOr(c.Scheduler.SmartWaitTimeout, 10*time.Second)
}

// WatchDebounce returns the parsed watch.debounce.
func (c *Config) WatchDebounce() time.Duration {
	return durationOr(c.Watch.Debounce, 500*time.Millisecond)
}

// ResolveDataDir returns the data directory, resolved against root when relative.
func (c *Config) ResolveDataDir(root string) string {
	if filepath.IsAbs(c.DataDir) {
		return c.DataDir
	}
	return filepath.Join(root, c.DataDir)
}

// WriteYAML renders the configuration as YAML.
func (c *Config) WriteYAML() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}

func durationOr(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}

func parseBool(v string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	return err == nil && b
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
