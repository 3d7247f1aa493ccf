// Package telemetry exposes the agent's own Prometheus metrics.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Probe results used as the "result" label.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Metrics holds the agent collectors on a private registry, so several
// instances (one per test) never collide.
type Metrics struct {
	reg *prometheus.Registry

	probes        *prometheus.CounterVec
	probeLatency  prometheus.Histogram
	storageErrors prometheus.Counter
	shipped       prometheus.Counter
	dropped       prometheus.Counter
	badges        *prometheus.GaugeVec
	reliability   *prometheus.GaugeVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "apibadges_agent_probes_total",
			Help: "Probes executed, by result.",
		}, []string{"result"}),
		probeLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "apibadges_agent_probe_duration_seconds",
			Help:    "Response time of successful probes.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		storageErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "apibadges_agent_storage_errors_total",
			Help: "Sample history loads or persists that failed.",
		}),
		shipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "apibadges_agent_snapshots_shipped_total",
			Help: "Snapshots accepted by the server.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "apibadges_agent_snapshots_dropped_total",
			Help: "Snapshots discarded because the buffer was full or the server rejected them.",
		}),
		badges: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "apibadges_agent_badges",
			Help: "Badges currently earned per entity.",
		}, []string{"entity"}),
		reliability: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "apibadges_agent_reliability_score",
			Help: "Composite reliability score per entity (0-100).",
		}, []string{"entity"}),
	}
	m.reg.MustRegister(m.probes, m.probeLatency, m.storageErrors, m.shipped, m.dropped, m.badges, m.reliability)
	return m
}

// ObserveProbe records one probe outcome.
func (m *Metrics) ObserveProbe(success bool, responseTimeMs float64) {
	if !success {
		m.probes.WithLabelValues(ResultFailure).Inc()
		return
	}
	m.probes.WithLabelValues(ResultSuccess).Inc()
	m.probeLatency.Observe(responseTimeMs / 1000)
}

// StorageError counts a failed history load or persist.
func (m *Metrics) StorageError() { m.storageErrors.Inc() }

// Shipped counts snapshots delivered to the server.
func (m *Metrics) Shipped(n int) { m.shipped.Add(float64(n)) }

// Dropped counts snapshots that were discarded.
func (m *Metrics) Dropped(n int) { m.dropped.Add(float64(n)) }

// SetEntity records the current badge count and reliability of an entity.
func (m *Metrics) SetEntity(entityID string, badges, reliability int) {
	m.badges.WithLabelValues(entityID).Set(float64(badges))
	m.reliability.WithLabelValues(entityID).Set(float64(reliability))
}

// ForgetEntity removes the per-entity series of a target that is no longer
// monitored.
func (m *Metrics) ForgetEntity(entityID string) {
	m.badges.DeleteLabelValues(entityID)
	m.reliability.DeleteLabelValues(entityID)
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
