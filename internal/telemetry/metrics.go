// Package telemetry exposes Prometheus metrics for the monitoring engine.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics aggregates the engine's instrumentation. A nil *Metrics is
// valid and records nothing, so tests can skip wiring it.
type Metrics struct {
	registry *prometheus.Registry

	checksTotal        *prometheus.CounterVec
	checkDuration      *prometheus.HistogramVec
	checksInFlight     prometheus.Gauge
	notificationsTotal *prometheus.CounterVec
	observationsPruned prometheus.Counter
}

// NewMetrics creates and registers the engine metrics on a fresh registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		checksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "quotawatch",
				Name:      "checks_total",
				Help:      "Balance checks by provider slug and terminal state.",
			},
			[]string{"provider", "state"},
		),
		checkDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "quotawatch",
				Name:      "check_duration_seconds",
				Help:      "Duration of individual provider balance calls.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"provider"},
		),
		checksInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "quotawatch",
				Name:      "checks_in_flight",
				Help:      "Number of credential checks currently executing or retrying.",
			},
		),
		notificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "quotawatch",
				Name:      "notifications_total",
				Help:      "Alert dispatches by channel and result.",
			},
			[]string{"channel", "result"},
		),
		observationsPruned: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "quotawatch",
				Name:      "observations_pruned_total",
				Help:      "Balance observations removed by retention pruning.",
			},
		),
	}

	registry.MustRegister(
		m.checksTotal,
		m.checkDuration,
		m.checksInFlight,
		m.notificationsTotal,
		m.observationsPruned,
	)

	return m
}

// Handler returns the /metrics HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// CheckCompleted records a check reaching a terminal state.
func (m *Metrics) CheckCompleted(provider, state string) {
	if m == nil {
		return
	}
	m.checksTotal.WithLabelValues(provider, state).Inc()
}

// CheckDuration records the duration of one provider call in seconds.
func (m *Metrics) CheckDuration(provider string, seconds float64) {
	if m == nil {
		return
	}
	m.checkDuration.WithLabelValues(provider).Observe(seconds)
}

// CheckStarted and CheckFinished track the in-flight gauge.
func (m *Metrics) CheckStarted() {
	if m == nil {
		return
	}
	m.checksInFlight.Inc()
}

func (m *Metrics) CheckFinished() {
	if m == nil {
		return
	}
	m.checksInFlight.Dec()
}

// NotificationSent records an alert dispatch attempt.
func (m *Metrics) NotificationSent(channel string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.notificationsTotal.WithLabelValues(channel, result).Inc()
}

// ObservationsPruned records retention deletions.
func (m *Metrics) ObservationsPruned(n int64) {
	if m == nil {
		return
	}
	m.observationsPruned.Add(float64(n))
}
