package telemetry

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openfroyo/tdre/pkg/engine"
)

// Metrics provides Prometheus metrics for resolution and registry builds.
type Metrics struct {
	config MetricsConfig

	// Resolution metrics
	resolutions        *prometheus.CounterVec
	resolutionDuration *prometheus.HistogramVec
	conversionsApplied *prometheus.CounterVec

	// Error metrics
	errorsByKind *prometheus.CounterVec

	// Registry metrics
	registryBindings    *prometheus.GaugeVec
	registryConversions prometheus.Gauge
	registrySubtypes    prometheus.Gauge
	reloads             *prometheus.CounterVec
	buildDuration       prometheus.Histogram

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	// Create a new registry
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		resolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resolutions_total",
				Help:      "Total number of top-level resolutions by outcome and witness source",
			},
			[]string{"outcome", "source"},
		),
		resolutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "resolution_duration_seconds",
				Help:      "Duration of top-level resolutions in seconds",
				Buckets:   buckets,
			},
			[]string{"outcome"},
		),
		conversionsApplied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "conversions_applied_total",
				Help:      "Total number of single-hop conversions applied",
			},
			[]string{"conversion"},
		),

		errorsByKind: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_kind_total",
				Help:      "Total number of resolution errors by kind",
			},
			[]string{"kind"},
		),

		registryBindings: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "registry_bindings",
				Help:      "Bindings in the current registry snapshot by scope kind",
			},
			[]string{"scope_kind"},
		),
		registryConversions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "registry_conversions",
				Help:      "Conversions in the current registry snapshot",
			},
		),
		registrySubtypes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "registry_subtypes",
				Help:      "Subtype declarations in the current registry snapshot",
			},
		),
		reloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "registry_reloads_total",
				Help:      "Total number of registry rebuilds by status",
			},
			[]string{"status"},
		),
		buildDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "registry_build_duration_seconds",
				Help:      "Duration of manifest load and registry build in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.resolutions,
		m.resolutionDuration,
		m.conversionsApplied,
		m.errorsByKind,
		m.registryBindings,
		m.registryConversions,
		m.registrySubtypes,
		m.reloads,
		m.buildDuration,
	)

	return m, nil
}

// Resolution Metrics

// RecordResolution records a finished top-level resolution.
func (m *Metrics) RecordResolution(outcome, source string, duration time.Duration) {
	if m.resolutions == nil {
		return
	}
	m.resolutions.WithLabelValues(outcome, source).Inc()
	m.resolutionDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordConversion records an applied conversion by label.
func (m *Metrics) RecordConversion(label string) {
	if m.conversionsApplied == nil {
		return
	}
	m.conversionsApplied.WithLabelValues(label).Inc()
}

// Error Metrics

// RecordError records a resolution error by kind. Errors that did not come
// from the engine are counted as "error".
func (m *Metrics) RecordError(err error) {
	if m.errorsByKind == nil || err == nil {
		return
	}
	m.errorsByKind.WithLabelValues(outcomeOf(err)).Inc()
}

// Registry Metrics

// SetRegistryStats publishes the counts of a freshly frozen registry.
func (m *Metrics) SetRegistryStats(st engine.Stats) {
	if m.registryBindings == nil {
		return
	}
	for _, kind := range engine.ScopeKinds {
		m.registryBindings.WithLabelValues(string(kind)).Set(float64(st.BindingsByKind[kind]))
	}
	m.registryConversions.Set(float64(st.Conversions))
	m.registrySubtypes.Set(float64(st.Subtypes))
}

// RecordReload records a registry rebuild attempt.
func (m *Metrics) RecordReload(status string, duration time.Duration) {
	if m.reloads == nil {
		return
	}
	m.reloads.WithLabelValues(status).Inc()
	m.buildDuration.Observe(duration.Seconds())
}

// Registry returns the underlying Prometheus registry, or nil when metrics
// are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// outcomeOf maps an error to a metric label.
func outcomeOf(err error) string {
	if err == nil {
		return "resolved"
	}
	var re *engine.ResolutionError
	if errors.As(err, &re) {
		return string(re.Kind)
	}
	return "error"
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// NewServer returns an HTTP server exposing the metrics endpoint, or nil if
// metrics are disabled. The caller owns its lifecycle.
func (m *Metrics) NewServer() *http.Server {
	if !m.config.Enabled {
		return nil
	}

	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	return &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
