// Package config loads the run configuration: browser settings, execution tuning,
// counter and statistics stores, artifacts, logging and tracing.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/entrhq/pilot/pkg/browser"
	"github.com/entrhq/pilot/pkg/tracing"
)

// Counter store backends.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config is the run configuration.
type Config struct {
	Browser   BrowserConfig   `yaml:"browser"`
	Execution ExecutionConfig `yaml:"execution"`
	Counters  CounterConfig   `yaml:"counters"`
	Stats     StatsConfig     `yaml:"stats"`
	Artifacts ArtifactConfig  `yaml:"artifacts"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

// BrowserConfig configures the Playwright session.
type BrowserConfig struct {
	Engine      string           `yaml:"engine" validate:"oneof=chromium firefox webkit"`
	Headless    bool             `yaml:"headless"`
	Viewport    browser.Viewport `yaml:"viewport"`
	Timeout     time.Duration    `yaml:"timeout" validate:"gte=0"`
	SlowMo      time.Duration    `yaml:"slow_mo" validate:"gte=0"`
	MaxSessions int              `yaml:"max_sessions" validate:"gte=1"`
	// SkipInstall starts the Playwright driver without downloading it first.
	SkipInstall bool `yaml:"skip_install"`
}

// ExecutionConfig tunes the executor and the locator resolver.
type ExecutionConfig struct {
	RetryDelay       time.Duration `yaml:"retry_delay" validate:"gte=0"`
	AllocationSettle time.Duration `yaml:"allocation_settle" validate:"gte=0"`
	LocatorTimeout   time.Duration `yaml:"locator_timeout" validate:"gte=0"`
	PollInterval     time.Duration `yaml:"poll_interval" validate:"gte=0"`
	ScreenshotDir    string        `yaml:"screenshot_dir"`
}

// CounterConfig selects the identifier counter store.
type CounterConfig struct {
	Backend  string      `yaml:"backend" validate:"oneof=memory file redis postgres"`
	File     string      `yaml:"file" validate:"required_if=Backend file"`
	Redis    RedisConfig `yaml:"redis"`
	Postgres string      `yaml:"postgres_url" validate:"required_if=Backend postgres"`
}

// RedisConfig configures the Redis counter store.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" validate:"gte=0"`
	Prefix   string `yaml:"prefix"`
}

// StatsConfig configures strategy statistics. An empty File keeps them in memory.
type StatsConfig struct {
	File string `yaml:"file"`
}

// ArtifactConfig configures per-run artifacts.
type ArtifactConfig struct {
	Enabled   bool   `yaml:"enabled"`
	OutputDir string `yaml:"output_dir" validate:"required_if=Enabled true"`
	// PDF collects failure screenshots into failures.pdf.
	PDF bool `yaml:"pdf"`
	// Database also stores execution records in PostgreSQL when the counter backend
	// is postgres.
	Database bool `yaml:"database"`
}

// LoggingConfig configures the log file and console verbosity.
type LoggingConfig struct {
	// Verbosity controls console output: quiet, normal, verbose, debug.
	Verbosity string `yaml:"verbosity" validate:"oneof=quiet normal verbose debug"`
	// Level is the minimum log file level: debug, info, warn, error.
	Level     string `yaml:"level" validate:"oneof=debug info warn error"`
	Directory string `yaml:"directory"`
}

// TracingConfig configures OpenTelemetry export.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
	Endpoint    string `yaml:"endpoint"`
	Insecure    bool   `yaml:"insecure"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Browser: BrowserConfig{
			Engine:      string(browser.EngineChromium),
			Headless:    true,
			Viewport:    browser.Viewport{Width: browser.DefaultViewportWidth, Height: browser.DefaultViewportHeight},
			Timeout:     browser.DefaultTimeout,
			MaxSessions: browser.DefaultMaxSessions,
		},
		Execution: ExecutionConfig{
			RetryDelay:       500 * time.Millisecond,
			AllocationSettle: 500 * time.Millisecond,
			LocatorTimeout:   2 * time.Second,
			PollInterval:     100 * time.Millisecond,
			ScreenshotDir:    filepath.Join(".pilot", "screenshots"),
		},
		Counters: CounterConfig{
			Backend: BackendFile,
			File:    filepath.Join(".pilot", "counters.json"),
			Redis:   RedisConfig{Addr: "localhost:6379"},
		},
		Stats: StatsConfig{
			File: filepath.Join(".pilot", "locator-stats.json"),
		},
		Artifacts: ArtifactConfig{
			Enabled:   true,
			OutputDir: filepath.Join(".pilot", "artifacts"),
		},
		Logging: LoggingConfig{
			Verbosity: "normal",
			Level:     "info",
		},
		Tracing: TracingConfig{
			ServiceName: "pilot",
		},
	}
}

// DefaultPath returns ~/.pilot/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, ".pilot", "config.yaml"), nil
}

// Load reads path over the defaults and validates the result. A missing file at the
// default path is not an error; a missing explicit path is.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			cfg := DefaultConfig()
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			msgs := make([]string, 0, len(validationErrors))
			for _, fe := range validationErrors {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	if c.Counters.Backend == BackendRedis && c.Counters.Redis.Addr == "" {
		return fmt.Errorf("invalid config: counters.redis.addr is required for the redis backend")
	}
	if c.Artifacts.Database && c.Counters.Backend != BackendPostgres {
		return fmt.Errorf("invalid config: artifacts.database requires the postgres counter backend")
	}
	if c.Browser.Viewport.Width < 0 || c.Browser.Viewport.Height < 0 {
		return fmt.Errorf("invalid config: viewport dimensions cannot be negative")
	}
	return nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SessionOptions converts the browser section for the session manager.
func (c *Config) SessionOptions() browser.SessionOptions {
	vp := c.Browser.Viewport
	return browser.SessionOptions{
		Engine:   browser.Engine(c.Browser.Engine),
		Headless: c.Browser.Headless,
		Viewport: &vp,
		Timeout:  c.Browser.Timeout,
		SlowMo:   c.Browser.SlowMo,
	}
}

// TraceConfig converts the tracing section.
func (c *Config) TraceConfig() tracing.Config {
	return tracing.Config{
		Enabled:     c.Tracing.Enabled,
		ServiceName: c.Tracing.ServiceName,
		Endpoint:    c.Tracing.Endpoint,
		Insecure:    c.Tracing.Insecure,
	}
}
