// Package config loads and validates the controller configuration from
// YAML.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Execution defaults and bounds.
const (
	DefaultParallel = 10
	MaxParallel     = 100
	DefaultTimeout  = 5 * time.Minute
)

// Config is the root configuration.
type Config struct {
	// Parallel bounds concurrent hosts per run.
	Parallel int `yaml:"parallel" validate:"min=0,max=100"`

	// FailFast cancels remaining hosts on the first failure.
	FailFast bool `yaml:"fail_fast"`

	// AllowDestructive permits destructive (but never blocked) commands.
	AllowDestructive bool `yaml:"allow_destructive"`

	// StatePath is the state store document.
	StatePath string `yaml:"state_path"`

	// CacheDir holds built gate bundles.
	CacheDir string `yaml:"cache_dir"`

	// InventoryPath is the inventory document.
	InventoryPath string `yaml:"inventory_path"`

	Audit     AuditConfig     `yaml:"audit"`
	SSH       SSHConfig       `yaml:"ssh"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Secrets   SecretsConfig   `yaml:"secrets"`
}

// AuditConfig selects and locates the audit backend.
type AuditConfig struct {
	// Backend is "file", "sqlite", or "none".
	Backend string `yaml:"backend" validate:"omitempty,oneof=file sqlite none"`
	Path    string `yaml:"path"`
}

// SSHConfig carries connection defaults for remote hosts.
type SSHConfig struct {
	User                  string `yaml:"user"`
	KeyPath               string `yaml:"key_path"`
	KnownHostsPath        string `yaml:"known_hosts_path"`
	ConnectTimeoutSeconds int    `yaml:"connect_timeout_seconds" validate:"min=0"`
}

// TelemetryConfig configures logging, metrics, and tracing.
type TelemetryConfig struct {
	LogLevel       string  `yaml:"log_level" validate:"omitempty,oneof=trace debug info warn error fatal"`
	LogFormat      string  `yaml:"log_format" validate:"omitempty,oneof=console json"`
	MetricsEnabled bool    `yaml:"metrics_enabled"`
	MetricsListen  string  `yaml:"metrics_listen"`
	TracingEnabled bool    `yaml:"tracing_enabled"`
	TraceExporter  string  `yaml:"trace_exporter" validate:"omitempty,oneof=otlp stdout none"`
	TraceEndpoint  string  `yaml:"trace_endpoint"`
	TraceSampling  float64 `yaml:"trace_sampling" validate:"min=0,max=1"`
}

// SecretsConfig declares secret bindings resolved at dispatch time.
type SecretsConfig struct {
	Bindings []SecretBinding `yaml:"bindings" validate:"dive"`
}

// SecretBinding maps one action parameter to a lookup key.
type SecretBinding struct {
	Action string `yaml:"action" validate:"required"`
	Param  string `yaml:"param" validate:"required"`
	Key    string `yaml:"key" validate:"required"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Parallel:      DefaultParallel,
		StatePath:     filepath.Join(home, ".fleetgate", "state.json"),
		CacheDir:      filepath.Join(home, ".cache", "fleetgate", "gates"),
		InventoryPath: filepath.Join(home, ".fleetgate", "inventory.yaml"),
		Audit: AuditConfig{
			Backend: "file",
			Path:    filepath.Join(home, ".fleetgate", "audit.json"),
		},
		SSH: SSHConfig{
			ConnectTimeoutSeconds: 30,
		},
		Telemetry: TelemetryConfig{
			LogLevel:      "info",
			LogFormat:     "console",
			TraceExporter: "stdout",
			TraceSampling: 1.0,
		},
	}
}

// Load reads the configuration at path on top of the defaults. A
// missing file returns the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks field constraints and normalizes derived values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if c.Parallel == 0 {
		c.Parallel = DefaultParallel
	}
	if c.Parallel > MaxParallel {
		return fmt.Errorf("parallel %d exceeds the maximum of %d", c.Parallel, MaxParallel)
	}
	return nil
}

// ConnectTimeout returns the SSH connect timeout as a duration.
func (c *SSHConfig) ConnectTimeout() time.Duration {
	if c.ConnectTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.ConnectTimeoutSeconds) * time.Second
}
