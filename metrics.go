package datagate

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors exported by datagate.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	PipelineDuration      *prometheus.HistogramVec
	AuthorizationDecision *prometheus.CounterVec
	Commits               *prometheus.CounterVec
	Elevations            *prometheus.CounterVec
	ActiveSessions        prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg. A nil
// registerer creates unregistered collectors, which is handy in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PipelineDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "datagate_pipeline_duration_seconds",
			Help:    "Time between prologue and epilogue of a pipeline action",
			Buckets: prometheus.DefBuckets,
		}, []string{"action", "model"}),
		AuthorizationDecision: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "datagate_authorization_decisions_total",
			Help: "Access checks labeled by decision",
		}, []string{"decision"}),
		Commits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "datagate_commits_total",
			Help: "Transaction commits labeled by outcome reason",
		}, []string{"reason"}),
		Elevations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "datagate_elevations_total",
			Help: "Elevation attempts labeled by outcome",
		}, []string{"outcome"}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "datagate_active_sessions",
			Help: "Current number of active sessions",
		}),
	}
}

func (m *Metrics) observeDuration(tag ActionTag, model string, seconds float64) {
	if m == nil {
		return
	}
	m.PipelineDuration.WithLabelValues(tag.String(), model).Observe(seconds)
}

func (m *Metrics) observeDecision(d Decision) {
	if m == nil {
		return
	}
	m.AuthorizationDecision.WithLabelValues(d.String()).Inc()
}

func (m *Metrics) observeCommit(reason FailureReason) {
	if m == nil {
		return
	}
	m.Commits.WithLabelValues(reason.String()).Inc()
}

func (m *Metrics) observeElevation(outcome string) {
	if m == nil {
		return
	}
	m.Elevations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) sessionStarted() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
}

func (m *Metrics) sessionEnded() {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
}
