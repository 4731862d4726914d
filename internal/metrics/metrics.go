package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPActiveConnections *prometheus.GaugeVec

	// Rate limiting metrics
	RateLimitExceededTotal *prometheus.CounterVec

	// Fan-out metrics
	NotificationsPersisted *prometheus.CounterVec
	NotificationsFailed    *prometheus.CounterVec
	NotificationsSkipped   *prometheus.CounterVec
	LivePushesTotal        *prometheus.CounterVec
	FanoutDuration         *prometheus.HistogramVec
	MessagesSentTotal      *prometheus.CounterVec

	// Transport and presence metrics
	WSConnectionsActive  prometheus.Gauge
	WSConnectionsTotal   prometheus.Counter
	WSEventsReceived     *prometheus.CounterVec
	PresenceIdentified   prometheus.Counter
	PresenceErrorsTotal  *prometheus.CounterVec
	SignalingRelaysTotal *prometheus.CounterVec

	// Pagination cursor cache
	PaginationPagesTotal *prometheus.CounterVec

	// Error metrics
	ErrorsTotal *prometheus.CounterVec
}

var (
	instance *Metrics
	once     sync.Once
)

// Initialize creates and registers all Prometheus metrics
func Initialize() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			// HTTP metrics
			HTTPRequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "http_requests_total",
					Help: "Total number of HTTP requests",
				},
				[]string{"method", "path", "status"},
			),
			HTTPRequestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "http_request_duration_seconds",
					Help:    "HTTP request latency in seconds",
					Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
				},
				[]string{"method", "path", "status"},
			),
			HTTPActiveConnections: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "http_active_connections",
					Help: "Number of in-flight HTTP requests",
				},
				[]string{"method", "path"},
			),

			RateLimitExceededTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "rate_limit_exceeded_total",
					Help: "Total number of requests rejected by the rate limiter",
				},
				[]string{"endpoint", "method"},
			),

			// Fan-out metrics
			NotificationsPersisted: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "notifications_persisted_total",
					Help: "Notification records written, by producing operation",
				},
				[]string{"operation"},
			),
			NotificationsFailed: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "notifications_failed_total",
					Help: "Notification records that could not be written",
				},
				[]string{"operation"},
			),
			NotificationsSkipped: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "notifications_skipped_total",
					Help: "Recipients dropped before persisting, by reason",
				},
				[]string{"reason"},
			),
			LivePushesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "live_pushes_total",
					Help: "Live pushes attempted, by event and result (delivered, offline, dropped)",
				},
				[]string{"event", "result"},
			),
			FanoutDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "fanout_duration_seconds",
					Help:    "Time to persist and push one notify operation",
					Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
				},
				[]string{"operation"},
			),
			MessagesSentTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "messages_sent_total",
					Help: "Chat messages persisted, by type",
				},
				[]string{"type"},
			),

			// Transport and presence metrics
			WSConnectionsActive: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "websocket_connections_active",
					Help: "Currently open websocket connections",
				},
			),
			WSConnectionsTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "websocket_connections_total",
					Help: "Websocket connections accepted",
				},
			),
			WSEventsReceived: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "websocket_events_received_total",
					Help: "Inbound websocket events by type",
				},
				[]string{"event"},
			),
			PresenceIdentified: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "presence_identified_total",
					Help: "Connections that identified a user",
				},
			),
			PresenceErrorsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "presence_errors_total",
					Help: "Presence registry failures by operation",
				},
				[]string{"operation"},
			),
			SignalingRelaysTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "signaling_relays_total",
					Help: "Call signaling relays by event and result",
				},
				[]string{"event", "result"},
			),

			PaginationPagesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "notification_pages_total",
					Help: "Notification pages served, by outcome (page, exhausted)",
				},
				[]string{"outcome"},
			),

			// Error metrics
			ErrorsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "errors_total",
					Help: "Total number of errors by type",
				},
				[]string{"error_type", "endpoint"},
			),
		}
	})
	return instance
}

// Get returns the global metrics instance
func Get() *Metrics {
	if instance == nil {
		return Initialize()
	}
	return instance
}
