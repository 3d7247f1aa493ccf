package api

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/obsidianstack/apibadges/server/internal/store"
)

// Collector exposes the live entities of a store as Prometheus gauges. It
// reads the store on every scrape, so stale entities disappear on their own.
type Collector struct {
	store *store.Store

	entities    *prometheus.Desc
	badges      *prometheus.Desc
	reliability *prometheus.Desc
	uptime      *prometheus.Desc
	response    *prometheus.Desc
}

// NewCollector returns a Collector over st.
func NewCollector(st *store.Store) *Collector {
	labels := []string{"entity", "name"}
	return &Collector{
		store: st,
		entities: prometheus.NewDesc("apibadges_entities",
			"Live monitored entities.", nil, nil),
		badges: prometheus.NewDesc("apibadges_entity_badges",
			"Badges currently earned by the entity.", labels, nil),
		reliability: prometheus.NewDesc("apibadges_entity_reliability_score",
			"Composite reliability score (0-100).", labels, nil),
		uptime: prometheus.NewDesc("apibadges_entity_uptime_percent",
			"Average uptime over the sample history.", labels, nil),
		response: prometheus.NewDesc("apibadges_entity_response_ms",
			"Average response time of successful probes.", labels, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.entities
	ch <- c.badges
	ch <- c.reliability
	ch <- c.uptime
	ch <- c.response
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	entries := c.store.List()
	ch <- prometheus.MustNewConstMetric(c.entities, prometheus.GaugeValue, float64(len(entries)))

	for _, e := range entries {
		s := e.Snapshot
		ch <- prometheus.MustNewConstMetric(c.badges, prometheus.GaugeValue, float64(len(s.Badges)), s.EntityID, s.Name)
		ch <- prometheus.MustNewConstMetric(c.reliability, prometheus.GaugeValue, float64(s.Reliability), s.EntityID, s.Name)
		ch <- prometheus.MustNewConstMetric(c.uptime, prometheus.GaugeValue, s.AvgUptime, s.EntityID, s.Name)
		if s.AvgResponseMs != nil {
			ch <- prometheus.MustNewConstMetric(c.response, prometheus.GaugeValue, *s.AvgResponseMs, s.EntityID, s.Name)
		}
	}
}
