// Package telemetry bundles the observability stack: structured
// logging, Prometheus metrics, and OpenTelemetry tracing.
package telemetry

import (
	"fmt"
	"time"
)

// Config contains the telemetry configuration.
type Config struct {
	// ServiceName identifies the service in traces and metrics.
	ServiceName string

	// ServiceVersion is the running version.
	ServiceVersion string

	// Environment names the deployment environment (dev, staging, prod).
	Environment string

	Logging LoggingConfig
	Tracing TracingConfig
	Metrics MetricsConfig
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level sets the minimum log level (trace, debug, info, warn, error).
	Level string

	// Format is "console" or "json".
	Format string

	// Output is "stdout", "stderr", or a file path.
	Output string

	// EnableCaller adds file:line caller information.
	EnableCaller bool
}

// TracingConfig configures distributed tracing.
type TracingConfig struct {
	// Enabled controls whether tracing is active.
	Enabled bool

	// Exporter is "otlp", "stdout", or "none".
	Exporter string

	// Endpoint is the OTLP collector endpoint.
	Endpoint string

	// SamplingRate is the trace sampling rate (0.0 to 1.0).
	SamplingRate float64

	// ExportTimeout bounds trace export.
	ExportTimeout time.Duration

	// Insecure disables TLS for the exporter connection.
	Insecure bool
}

// MetricsConfig configures metrics collection.
type MetricsConfig struct {
	// Enabled controls whether metrics are collected.
	Enabled bool

	// ListenAddress serves the metrics endpoint when set.
	ListenAddress string

	// Namespace prefixes every metric name.
	Namespace string
}

// DefaultConfig returns sensible development defaults.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "fleetgate",
		ServiceVersion: "dev",
		Environment:    "development",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stderr",
		},
		Tracing: TracingConfig{
			Enabled:       false,
			Exporter:      "stdout",
			SamplingRate:  1.0,
			ExportTimeout: 30 * time.Second,
			Insecure:      true,
		},
		Metrics: MetricsConfig{
			Enabled:   false,
			Namespace: "fleetgate",
		},
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service name is required")
	}
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("invalid log format %q (must be console or json)", c.Logging.Format)
	}
	if c.Tracing.Enabled {
		switch c.Tracing.Exporter {
		case "otlp", "stdout", "none":
		default:
			return fmt.Errorf("invalid trace exporter %q", c.Tracing.Exporter)
		}
		if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
			return fmt.Errorf("trace sampling rate must be between 0 and 1, got %f", c.Tracing.SamplingRate)
		}
	}
	if c.Metrics.Enabled && c.Metrics.ListenAddress == "" {
		return fmt.Errorf("metrics listen address is required when metrics are enabled")
	}
	return nil
}
