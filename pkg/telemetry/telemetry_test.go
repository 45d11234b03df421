package telemetry

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"missing service name", func(c *Config) { c.ServiceName = "" }, true},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, true},
		{"bad exporter", func(c *Config) { c.Tracing.Enabled = true; c.Tracing.Exporter = "jaeger2" }, true},
		{"bad sampling rate", func(c *Config) { c.Tracing.Enabled = true; c.Tracing.SamplingRate = 1.5 }, true},
		{"metrics without address", func(c *Config) { c.Metrics.Enabled = true }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	if got := parseLogLevel("debug"); got != zerolog.DebugLevel {
		t.Errorf("parseLogLevel(debug) = %v", got)
	}
	if got := parseLogLevel(""); got != zerolog.InfoLevel {
		t.Errorf("parseLogLevel(empty) = %v", got)
	}
	if got := parseLogLevel("nonsense"); got != zerolog.InfoLevel {
		t.Errorf("parseLogLevel(nonsense) = %v", got)
	}
}

func TestDisabledMetricsAreNoOps(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}
	// Must not panic.
	m.RunStarted()
	m.RunCompleted("success")
	m.ObserveAction("web1", "command", "success", 0.25)
	m.BundleCacheHit("memory")
	m.BundleCacheMiss()
	m.AddUploadBytes(1024)
}

func TestMetricsExposition(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: true, ListenAddress: ":0", Namespace: "fleetgate"})
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}

	m.RunStarted()
	m.RunCompleted("success")
	m.ObserveAction("web1", "command", "success", 0.25)
	m.BundleCacheHit("disk")
	m.AddUploadBytes(2048)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	for _, want := range []string{
		"fleetgate_runs_started_total 1",
		`fleetgate_runs_completed_total{status="success"} 1`,
		`fleetgate_bundle_cache_hits_total{tier="disk"} 1`,
		"fleetgate_bundle_upload_bytes_total 2048",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}
