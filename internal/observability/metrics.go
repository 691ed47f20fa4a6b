package observability

import (
	"database/sql"

	"groupchat/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// WebSocket metrics
	WebSocketConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections_active",
			Help: "Number of registered WebSocket connections",
		},
	)

	WebSocketGroupsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_groups_active",
			Help: "Number of groups with at least one joined connection",
		},
	)

	WebSocketMessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of frames enqueued to WebSocket connections",
		},
		[]string{"type"},
	)

	WebSocketConnectionsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_connections_dropped_total",
			Help: "Connections closed by the server",
		},
		[]string{"reason"},
	)

	// Membership metrics
	MembershipOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "membership_operations_total",
			Help: "Membership operations by outcome",
		},
		[]string{"operation", "outcome"},
	)

	// Push notification metrics
	PushJobsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "push_jobs_published_total",
			Help: "Push notification jobs handed to the broker",
		},
		[]string{"kind", "outcome"},
	)

	// Database metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5},
		},
		[]string{"operation", "table"},
	)

	DBTxRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "db_tx_retries_total",
			Help: "Transactions retried after a serialization failure or deadlock",
		},
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_open",
			Help: "Number of open database connections",
		},
	)

	DBConnectionsInUse = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_in_use",
			Help: "Number of database connections currently in use",
		},
	)

	DBConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_idle",
			Help: "Number of idle database connections",
		},
	)
)

// Outcome returns the metric label for an operation result: "ok" or the
// error code.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return domain.CodeOf(err)
}

// RecordDBStats copies connection pool statistics into the pool gauges.
func RecordDBStats(stats sql.DBStats) {
	DBConnectionsOpen.Set(float64(stats.OpenConnections))
	DBConnectionsInUse.Set(float64(stats.InUse))
	DBConnectionsIdle.Set(float64(stats.Idle))
}
