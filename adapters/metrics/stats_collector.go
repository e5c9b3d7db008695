package metrics

import (
	"github.com/artpar/wakeacct/ports"
	"github.com/prometheus/client_golang/prometheus"
)

// StatsCollector exports per-client statistics snapshots at scrape time.
// Each scrape projects pending time to the current uptime.
type StatsCollector struct {
	source ports.StatsSource

	completedCount *prometheus.Desc
	completedTime  *prometheus.Desc
	pendingCount   *prometheus.Desc
	pendingTime    *prometheus.Desc
}

// NewStatsCollector creates a collector reading from source.
func NewStatsCollector(source ports.StatsSource) *StatsCollector {
	labels := []string{"client"}
	return &StatsCollector{
		source: source,
		completedCount: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "client", "completed_requests"),
			"Completed requests per client",
			labels, nil,
		),
		completedTime: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "client", "completed_attributed_seconds"),
			"Wakelock time attributed to completed requests per client",
			labels, nil,
		),
		pendingCount: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "client", "pending_requests"),
			"Pending requests per client",
			labels, nil,
		),
		pendingTime: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "client", "pending_attributed_seconds"),
			"Wakelock time attributed so far to pending requests per client",
			labels, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *StatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.completedCount
	ch <- c.completedTime
	ch <- c.pendingCount
	ch <- c.pendingTime
}

// Collect implements prometheus.Collector.
func (c *StatsCollector) Collect(ch chan<- prometheus.Metric) {
	for _, s := range c.source.AllClientStats() {
		ch <- prometheus.MustNewConstMetric(c.completedCount, prometheus.CounterValue,
			float64(s.CompletedRequestCount), s.ClientID)
		ch <- prometheus.MustNewConstMetric(c.completedTime, prometheus.CounterValue,
			float64(s.CompletedAttributedTimeMs)/1000, s.ClientID)
		ch <- prometheus.MustNewConstMetric(c.pendingCount, prometheus.GaugeValue,
			float64(s.PendingRequestCount), s.ClientID)
		ch <- prometheus.MustNewConstMetric(c.pendingTime, prometheus.GaugeValue,
			float64(s.PendingAttributedTimeMs)/1000, s.ClientID)
	}
}

// Ensure interface compliance.
var _ prometheus.Collector = (*StatsCollector)(nil)
