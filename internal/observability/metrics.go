// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ledger metrics
	OperationsTotal   *prometheus.CounterVec
	OperationLatency  *prometheus.HistogramVec
	Compensations     *prometheus.CounterVec
	EventsPublished   *prometheus.CounterVec
	EventPublishFails *prometheus.CounterVec

	// Gateway metrics
	GatewayCallLatency *prometheus.HistogramVec

	// Streaming metrics
	StreamSubscribers prometheus.Gauge

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "crowdfund_ledger"
	}

	return &Metrics{
		// Ledger metrics
		OperationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "operations_total",
			Help:      "Total number of ledger operations by outcome code",
		}, []string{"operation", "outcome"}),
		OperationLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "operation_latency_seconds",
			Help:      "Ledger operation latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		Compensations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "compensating_transfers_total",
			Help:      "Reverse transfers issued after a failed commit, by result",
		}, []string{"result"}),
		EventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Total number of events published by topic",
		}, []string{"topic"}),
		EventPublishFails: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "publish_failures_total",
			Help:      "Total number of events a sink failed to accept",
		}, []string{"topic"}),

		// Gateway metrics
		GatewayCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "call_latency_seconds",
			Help:      "Token gateway RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		// Streaming metrics
		StreamSubscribers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "stream_subscribers",
			Help:      "Current number of websocket event subscribers",
		}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordOperation records one ledger operation and its outcome.
// outcome is "ok" or the rejecting error code.
func RecordOperation(operation, outcome string, seconds float64) {
	DefaultMetrics.OperationsTotal.WithLabelValues(operation, outcome).Inc()
	DefaultMetrics.OperationLatency.WithLabelValues(operation).Observe(seconds)
}

// RecordCompensation records a reverse transfer attempt.
func RecordCompensation(err error) {
	result := "ok"
	if err != nil {
		result = "failed"
	}
	DefaultMetrics.Compensations.WithLabelValues(result).Inc()
}

// RecordEventPublished records an event delivery attempt.
func RecordEventPublished(topic string, err error) {
	if err != nil {
		DefaultMetrics.EventPublishFails.WithLabelValues(topic).Inc()
		return
	}
	DefaultMetrics.EventsPublished.WithLabelValues(topic).Inc()
}

// RecordGatewayLatency records token gateway call latency.
func RecordGatewayLatency(method string, seconds float64) {
	DefaultMetrics.GatewayCallLatency.WithLabelValues(method).Observe(seconds)
}

// UpdateStreamSubscribers sets the websocket subscriber gauge.
func UpdateStreamSubscribers(n int) {
	DefaultMetrics.StreamSubscribers.Set(float64(n))
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
