package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/pilot/pkg/browser"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, BackendFile, cfg.Counters.Backend)
	assert.Equal(t, "normal", cfg.Logging.Verbosity)
}

func TestParseOverlaysDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
browser:
  engine: firefox
  headless: false
  slow_mo: 250ms
  viewport: {width: 1600, height: 900}
execution:
  retry_delay: 1s
counters:
  backend: redis
  redis:
    addr: redis:6379
    db: 2
tracing:
  enabled: true
  endpoint: collector:4318
`))
	require.NoError(t, err)

	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, 250*time.Millisecond, cfg.Browser.SlowMo)
	assert.Equal(t, 1600, cfg.Browser.Viewport.Width)
	assert.Equal(t, time.Second, cfg.Execution.RetryDelay)
	assert.Equal(t, 500*time.Millisecond, cfg.Execution.AllocationSettle, "unset fields keep defaults")
	assert.Equal(t, BackendRedis, cfg.Counters.Backend)
	assert.Equal(t, 2, cfg.Counters.Redis.DB)

	tc := cfg.TraceConfig()
	assert.True(t, tc.Enabled)
	assert.Equal(t, "pilot", tc.ServiceName)
	assert.Equal(t, "collector:4318", tc.Endpoint)

	opts := cfg.SessionOptions()
	assert.Equal(t, browser.EngineFirefox, opts.Engine)
	assert.False(t, opts.Headless)
	assert.Equal(t, 900, opts.Viewport.Height)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{name: "unknown field", yaml: "browser:\n  headles: true\n", wantErr: "field headles not found"},
		{name: "bad backend", yaml: "counters:\n  backend: mongo\n", wantErr: "oneof"},
		{name: "file backend without path", yaml: "counters:\n  backend: file\n  file: \"\"\n", wantErr: "required_if"},
		{name: "postgres without url", yaml: "counters:\n  backend: postgres\n", wantErr: "required_if"},
		{name: "redis without addr", yaml: "counters:\n  backend: redis\n  redis: {addr: \"\"}\n", wantErr: "redis.addr"},
		{name: "bad verbosity", yaml: "logging:\n  verbosity: loud\n", wantErr: "Verbosity"},
		{name: "negative timeout", yaml: "browser:\n  timeout: -1s\n", wantErr: "Timeout"},
		{name: "database without postgres", yaml: "artifacts:\n  database: true\n", wantErr: "artifacts.database"},
		{name: "zero sessions", yaml: "browser:\n  max_sessions: 0\n", wantErr: "MaxSessions"},
		{name: "unknown engine", yaml: "browser:\n  engine: netscape\n", wantErr: "Engine"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad(t *testing.T) {
	t.Run("explicit missing file fails", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Error(t, err)
	})

	t.Run("default path falls back to defaults", func(t *testing.T) {
		t.Setenv("HOME", t.TempDir())
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("empty file keeps defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, nil, 0600))
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), cfg)
	})
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.Counters.Backend = BackendPostgres
	cfg.Counters.Postgres = "postgres://localhost/pilot?sslmode=disable"
	cfg.Artifacts.Database = true
	cfg.Execution.LocatorTimeout = 3 * time.Second

	require.NoError(t, cfg.Save(path))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
