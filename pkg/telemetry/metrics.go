package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for runs, per-host action
// execution, and the bundle cache. A disabled or nil instance is a
// no-op so call sites never branch.
type Metrics struct {
	config MetricsConfig

	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec

	actionDuration *prometheus.HistogramVec
	actionsTotal   *prometheus.CounterVec

	bundleCacheHits   *prometheus.CounterVec
	bundleCacheMisses prometheus.Counter
	uploadBytes       prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics creates a metrics collector.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_started_total",
			Help:      "Total number of runs started",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_completed_total",
			Help:      "Total number of runs completed",
		}, []string{"status"}),

		actionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "action_duration_seconds",
			Help:      "Duration of action execution per host in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"host", "action"}),
		actionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Total number of action executions",
		}, []string{"action", "status"}),

		bundleCacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bundle_cache_hits_total",
			Help:      "Total number of bundle cache hits",
		}, []string{"tier"}),
		bundleCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bundle_cache_misses_total",
			Help:      "Total number of bundle builds forced by cache misses",
		}),
		uploadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bundle_upload_bytes_total",
			Help:      "Total bundle bytes uploaded to remote hosts",
		}),
	}

	registry.MustRegister(
		m.runsStarted,
		m.runsCompleted,
		m.actionDuration,
		m.actionsTotal,
		m.bundleCacheHits,
		m.bundleCacheMisses,
		m.uploadBytes,
	)
	return m, nil
}

// RunStarted counts a started run.
func (m *Metrics) RunStarted() {
	if m == nil || m.registry == nil {
		return
	}
	m.runsStarted.Inc()
}

// RunCompleted counts a finished run by status ("success" or "failed").
func (m *Metrics) RunCompleted(status string) {
	if m == nil || m.registry == nil {
		return
	}
	m.runsCompleted.WithLabelValues(status).Inc()
}

// ObserveAction records one action execution.
func (m *Metrics) ObserveAction(host, action, status string, seconds float64) {
	if m == nil || m.registry == nil {
		return
	}
	m.actionDuration.WithLabelValues(host, action).Observe(seconds)
	m.actionsTotal.WithLabelValues(action, status).Inc()
}

// BundleCacheHit counts a cache hit by tier ("memory" or "disk").
func (m *Metrics) BundleCacheHit(tier string) {
	if m == nil || m.registry == nil {
		return
	}
	m.bundleCacheHits.WithLabelValues(tier).Inc()
}

// BundleCacheMiss counts a forced build.
func (m *Metrics) BundleCacheMiss() {
	if m == nil || m.registry == nil {
		return
	}
	m.bundleCacheMisses.Inc()
}

// AddUploadBytes accumulates uploaded bundle bytes.
func (m *Metrics) AddUploadBytes(n int) {
	if m == nil || m.registry == nil {
		return
	}
	m.uploadBytes.Add(float64(n))
}

// Handler serves the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
