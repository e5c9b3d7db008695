// Package metrics provides Prometheus metrics collection for wakelock accounting.
package metrics

import (
	"strconv"

	"github.com/artpar/wakeacct/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "wakeacct"

// Collector holds all event-driven Prometheus metrics.
// It implements ports.AccountingObserver.
type Collector struct {
	// Request metrics
	RequestsStarted   *prometheus.CounterVec
	RequestsCompleted *prometheus.CounterVec
	AttributedTime    *prometheus.HistogramVec

	// Protocol anomaly metrics
	UnmatchedStops  *prometheus.CounterVec
	DuplicateStarts *prometheus.CounterVec
	InvalidLevels   prometheus.Counter

	// Client metrics
	ActiveClientsGauge prometheus.Gauge

	// HTTP metrics
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Config metrics
	ConfigReloads      prometheus.Counter
	ConfigReloadErrors prometheus.Counter
	ConfigLastReload   prometheus.Gauge
}

// New creates a new metrics collector registered with the default registry.
func New() *Collector {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a new metrics collector with a custom registry.
// Useful for testing to avoid global state.
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		RequestsStarted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_started_total",
				Help:      "Total number of requests that started holding the wakelock",
			},
			[]string{"client", "kind"},
		),
		RequestsCompleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_completed_total",
				Help:      "Total number of requests whose wakelock hold completed",
			},
			[]string{"client", "kind"},
		),
		AttributedTime: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "attributed_time_seconds",
				Help:      "Wakelock time attributed to a completed request in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"kind"},
		),
		UnmatchedStops: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "unmatched_stops_total",
				Help:      "Total number of stop events without a matching pending request",
			},
			[]string{"client"},
		),
		DuplicateStarts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "duplicate_starts_total",
				Help:      "Total number of start events for an already pending request",
			},
			[]string{"client"},
		),
		InvalidLevels: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invalid_concurrency_total",
				Help:      "Total number of non-positive concurrency levels reported",
			},
		),
		ActiveClientsGauge: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_clients",
				Help:      "Number of clients currently holding at least one pending request",
			},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Statistics API request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Number of statistics API requests currently being served",
			},
		),
		ConfigReloads: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reloads_total",
				Help:      "Total number of successful config reloads",
			},
		),
		ConfigReloadErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reload_errors_total",
				Help:      "Total number of config reload errors",
			},
		),
		ConfigLastReload: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "config_last_reload_timestamp",
				Help:      "Unix timestamp of last successful config reload",
			},
		),
	}
}

// RequestStarted counts a started request.
func (c *Collector) RequestStarted(clientID string, kind int) {
	c.RequestsStarted.WithLabelValues(clientID, KindLabel(kind)).Inc()
}

// RequestCompleted counts a completed request and observes its attributed time.
func (c *Collector) RequestCompleted(clientID string, kind int, attributedMs int64) {
	label := KindLabel(kind)
	c.RequestsCompleted.WithLabelValues(clientID, label).Inc()
	c.AttributedTime.WithLabelValues(label).Observe(float64(attributedMs) / 1000)
}

// UnmatchedStop counts a stop without a pending request.
func (c *Collector) UnmatchedStop(clientID string, _ int) {
	c.UnmatchedStops.WithLabelValues(clientID).Inc()
}

// DuplicateStart counts a start for an already pending request.
func (c *Collector) DuplicateStart(clientID string, _ int) {
	c.DuplicateStarts.WithLabelValues(clientID).Inc()
}

// InvalidConcurrency counts a non-positive concurrency level.
func (c *Collector) InvalidConcurrency(int) {
	c.InvalidLevels.Inc()
}

// ActiveClients sets the active client gauge.
func (c *Collector) ActiveClients(n int) {
	c.ActiveClientsGauge.Set(float64(n))
}

// KindLabel renders a request kind as a label value.
func KindLabel(kind int) string {
	return strconv.Itoa(kind)
}

// Ensure interface compliance.
var _ ports.AccountingObserver = (*Collector)(nil)
