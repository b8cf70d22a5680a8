package metrics

import (
	"context"
	"net/http"
	"time"

	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/general/logger"
	"ride-dispatch/internal/ports"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ride_dispatch"

// Metrics holds every collector the dispatch service exports.
type Metrics struct {
	registry *prometheus.Registry

	InboundEvents   *prometheus.CounterVec
	EventLatency    *prometheus.HistogramVec
	Assignments     prometheus.Counter
	AssignConflicts prometheus.Counter
	Notifications   *prometheus.CounterVec
	DriversOnline   prometheus.Gauge
	Connections     prometheus.Gauge

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New registers the collectors on a fresh registry. stats may be nil, in
// which case the per-status ride gauges are not exported.
func New(stats ports.RideStats, log *logger.Logger) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,
		InboundEvents: factory.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "inbound_events_total", Help: "Inbound events handled, by event and outcome code"},
			[]string{"event", "code"},
		),
		EventLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "event_duration_seconds",
				Help:      "Inbound event handling latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"event"},
		),
		Assignments:     factory.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "assignments_total", Help: "Rides assigned to a driver"}),
		AssignConflicts: factory.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "assign_conflicts_total", Help: "Accept attempts that lost the assignment race"}),
		Notifications: factory.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "notifications_total", Help: "Outbound notifications, by event and delivery result"},
			[]string{"event", "delivered"},
		),
		DriversOnline: factory.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "drivers_online", Help: "Number of online drivers"}),
		Connections:   factory.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "websocket_connections", Help: "Open websocket connections on this instance"}),

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled"},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency distribution",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
	}

	if stats != nil {
		reg.MustRegister(newRideCollector(stats, log, 2*time.Second))
	}
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveEvent records one handled inbound event.
func (m *Metrics) ObserveEvent(event, code string, took time.Duration) {
	if m == nil {
		return
	}
	m.InboundEvents.WithLabelValues(event, code).Inc()
	m.EventLatency.WithLabelValues(event).Observe(took.Seconds())
}

// ObserveNotification records one outbound delivery attempt.
func (m *Metrics) ObserveNotification(event string, delivered bool) {
	if m == nil {
		return
	}
	result := "false"
	if delivered {
		result = "true"
	}
	m.Notifications.WithLabelValues(event, result).Inc()
}

// ObserveBroadcast records a fan-out of sent attempts of which delivered reached a connection.
func (m *Metrics) ObserveBroadcast(event string, sent, delivered int) {
	if m == nil || sent <= 0 {
		return
	}
	delivered = min(max(delivered, 0), sent)
	m.Notifications.WithLabelValues(event, "true").Add(float64(delivered))
	m.Notifications.WithLabelValues(event, "false").Add(float64(sent - delivered))
}

// rideCollector queries the store on every scrape.
type rideCollector struct {
	stats   ports.RideStats
	log     *logger.Logger
	timeout time.Duration

	byStatus   *prometheus.Desc
	cancelRate *prometheus.Desc
}

func newRideCollector(stats ports.RideStats, log *logger.Logger, timeout time.Duration) *rideCollector {
	return &rideCollector{
		stats:      stats,
		log:        log,
		timeout:    timeout,
		byStatus:   prometheus.NewDesc(namespace+"_rides_by_status", "Rides currently in each status", []string{"status"}, nil),
		cancelRate: prometheus.NewDesc(namespace+"_cancellation_rate_24h", "Share of rides created in the last 24h that were cancelled", nil, nil),
	}
}

func (c *rideCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.byStatus
	ch <- c.cancelRate
}

func (c *rideCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	counts, err := c.stats.CountByStatus(ctx)
	if err != nil {
		c.logError(ctx, "count rides by status", err)
	} else {
		for _, status := range []ride.Status{
			ride.StatusRequested, ride.StatusAccepted, ride.StatusInProgress, ride.StatusCompleted, ride.StatusCancelled,
		} {
			ch <- prometheus.MustNewConstMetric(c.byStatus, prometheus.GaugeValue, float64(counts[status]), status.String())
		}
	}

	now := time.Now()
	rate, err := c.stats.CancellationRateBetween(ctx, now.Add(-24*time.Hour), now)
	if err != nil {
		c.logError(ctx, "cancellation rate", err)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.cancelRate, prometheus.GaugeValue, rate)
}

func (c *rideCollector) logError(ctx context.Context, msg string, err error) {
	if c.log != nil {
		c.log.Error(ctx, "metrics_collect", msg, err, nil)
	}
}
