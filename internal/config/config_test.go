package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	moderr "github.com/Aman-CERP/indexmode/internal/errors"
)

// isolateUserConfig points the user config lookup at an empty directory.
func isolateUserConfig(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
}

func TestNewConfig_Defaults(t *testing.T) {
	cfg := NewConfig()

	assert.True(t, cfg.Scheduler.StartDumb)
	assert.Equal(t, QueueOrderFIFO, cfg.Scheduler.QueueOrder)
	assert.Equal(t, 10*time.Millisecond, cfg.CancelPollInterval())
	assert.Equal(t, 30*time.Second, cfg.CancelWaitTimeout())
	assert.Equal(t, 10*time.Second, cfg.SmartWaitTimeout())
	assert.Equal(t, 500*time.Millisecond, cfg.WatchDebounce())
	assert.Equal(t, 32, cfg.Scheduler.TraceHistory)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, "info", cfg.Logging.Level)
	require.NoError(t, cfg.Validate())
}

func TestLoad_NoFiles_ReturnsDefaults(t *testing.T) {
	isolateUserConfig(t)

	cfg, err := Load(t.TempDir())

	require.NoError(t, err)
	assert.Equal(t, NewConfig(), cfg)
}

func TestLoad_ProjectFileOverridesDefaults(t *testing.T) {
	isolateUserConfig(t)
	dir := t.TempDir()

	// Given: a project config that disables start_dumb and switches to LIFO
	content := `
scheduler:
  start_dumb: false
  queue_order: lifo
  cancel_wait_timeout: 2s
watch:
  debounce: 50ms
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".indexmode.yaml"), []byte(content), 0o644))

	// When: loading
	cfg, err := Load(dir)

	// Then: the file values win and untouched keys keep defaults
	require.NoError(t, err)
	assert.False(t, cfg.Scheduler.StartDumb)
	assert.Equal(t, QueueOrderLIFO, cfg.Scheduler.QueueOrder)
	assert.Equal(t, 2*time.Second, cfg.CancelWaitTimeout())
	assert.Equal(t, 50*time.Millisecond, cfg.WatchDebounce())
	assert.Equal(t, 32, cfg.Scheduler.TraceHistory)
	assert.True(t, cfg.Watch.Enabled)
}

func TestLoad_YmlExtension(t *testing.T) {
	isolateUserConfig(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".indexmode.yml"), []byte("logging:\n  level: debug\n"), 0o644))

	cfg, err := Load(dir)

	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_UserConfigBelowProjectConfig(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	dir := t.TempDir()

	// Given: user config sets two keys, project config overrides one
	userPath := filepath.Join(xdg, "indexmode", "config.yaml")
	require.NoError(t, os.MkdirAll(filepath.Dir(userPath), 0o755))
	require.NoError(t, os.WriteFile(userPath, []byte("scheduler:\n  trace_history: 8\nlogging:\n  level: warn\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".indexmode.yaml"), []byte("logging:\n  level: error\n"), 0o644))

	// When
	cfg, err := Load(dir)

	// Then
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Scheduler.TraceHistory)
	assert.Equal(t, "error", cfg.Logging.Level)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	isolateUserConfig(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".indexmode.yaml"), []byte("scheduler:\n  queue_order: fifo\n"), 0o644))

	t.Setenv("INDEXMODE_QUEUE_ORDER", "LIFO")
	t.Setenv("INDEXMODE_START_DUMB", "false")
	t.Setenv("INDEXMODE_METRICS_ADDR", "127.0.0.1:0")

	cfg, err := Load(dir)

	require.NoError(t, err)
	assert.Equal(t, QueueOrderLIFO, cfg.Scheduler.QueueOrder)
	assert.False(t, cfg.Scheduler.StartDumb)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "127.0.0.1:0", cfg.Metrics.Addr)
}

func TestLoad_InvalidYAML_ReturnsConfigError(t *testing.T) {
	isolateUserConfig(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".indexmode.yaml"), []byte("scheduler: [unclosed"), 0o644))

	_, err := Load(dir)

	require.Error(t, err)
	assert.Equal(t, moderr.ErrCodeConfigInvalid, moderr.GetCode(err))
}

func TestLoad_InvalidValues_ReturnsConfigError(t *testing.T) {
	isolateUserConfig(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".indexmode.yaml"), []byte("scheduler:\n  queue_order: random\n"), 0o644))

	_, err := Load(dir)

	require.Error(t, err)
	assert.Equal(t, moderr.ErrCodeConfigInvalid, moderr.GetCode(err))
	assert.Contains(t, err.Error(), "queue_order")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"bad order", func(c *Config) { c.Scheduler.QueueOrder = "stack" }, "queue_order"},
		{"bad duration", func(c *Config) { c.Watch.Debounce = "soon" }, "watch.debounce"},
		{"negative duration", func(c *Config) { c.Scheduler.CancelWaitTimeout = "-1s" }, "non-negative"},
		{"zero poll interval", func(c *Config) { c.Scheduler.CancelPollInterval = "0s" }, "cancel_poll_interval"},
		{"zero wait timeout allowed", func(c *Config) { c.Scheduler.CancelWaitTimeout = "0s" }, ""},
		{"zero trace history", func(c *Config) { c.Scheduler.TraceHistory = 0 }, "trace_history"},
		{"zero buffer", func(c *Config) { c.Watch.Buffer = 0 }, "watch.buffer"},
		{"metrics without addr", func(c *Config) { c.Metrics.Enabled = true; c.Metrics.Addr = "" }, "metrics.addr"},
		{"bad level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)

			err := cfg.Validate()

			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestResolveDataDir(t *testing.T) {
	cfg := NewConfig()
	assert.Equal(t, filepath.Join("/proj", ".indexmode"), cfg.ResolveDataDir("/proj"))

	cfg.DataDir = "/var/lib/indexmode"
	assert.Equal(t, "/var/lib/indexmode", cfg.ResolveDataDir("/proj"))
}

func TestWriteYAML_RoundTrips(t *testing.T) {
	cfg := NewConfig()
	cfg.Scheduler.QueueOrder = QueueOrderLIFO

	data, err := cfg.WriteYAML()
	require.NoError(t, err)

	var decoded Config
	require.NoError(t, yaml.Unmarshal(data, &decoded))
	assert.Equal(t, *cfg, decoded)
}
