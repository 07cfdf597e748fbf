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
	// Registry metrics
	Operations          *prometheus.CounterVec
	OperationLatency    *prometheus.HistogramVec
	HistoryAppendErrors prometheus.Counter

	// Runtime metrics
	Transactions *prometheus.CounterVec

	// Storage metrics
	CacheLookups *prometheus.CounterVec

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPLatency  *prometheus.HistogramVec

	// Cluster metrics
	RPCCallLatency  *prometheus.HistogramVec
	WSNotifications *prometheus.CounterVec
	HighestSlotSeen prometheus.Gauge
}

// NewMetrics creates a new Metrics instance registered on reg.
// A nil reg registers on the default Prometheus registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "oracle_registry"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		Operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "operations_total",
			Help:      "Registry operations by program, operation and result code",
		}, []string{"program", "operation", "result"}),
		OperationLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "operation_duration_seconds",
			Help:      "Registry operation latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"program", "operation"}),
		HistoryAppendErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "history_append_errors_total",
			Help:      "Oracle revisions that could not be written to the history store",
		}),

		Transactions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "runtime",
			Name:      "transactions_total",
			Help:      "Submitted transactions by result code",
		}, []string{"result"}),

		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "cache_lookups_total",
			Help:      "Account cache lookups by result (hit or miss)",
		}, []string{"result"}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route pattern and status code",
		}, []string{"route", "status"}),
		HTTPLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),

		RPCCallLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		WSNotifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "ws_notifications_total",
			Help:      "WebSocket subscription notifications by method",
		}, []string{"method"}),
		HighestSlotSeen: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "highest_slot_seen",
			Help:      "Highest Solana slot number seen",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", nil)

// orDefault lets components hold a nil *Metrics.
func (m *Metrics) orDefault() *Metrics {
	if m == nil {
		return DefaultMetrics
	}
	return m
}

// RecordOperation records a registry operation outcome and its latency.
func (m *Metrics) RecordOperation(program, operation, result string, seconds float64) {
	m = m.orDefault()
	m.Operations.WithLabelValues(program, operation, result).Inc()
	m.OperationLatency.WithLabelValues(program, operation).Observe(seconds)
}

// RecordHistoryAppendError counts a revision lost by the history store.
func (m *Metrics) RecordHistoryAppendError() {
	m.orDefault().HistoryAppendErrors.Inc()
}

// RecordTransaction records a processed transaction by result code.
func (m *Metrics) RecordTransaction(result string) {
	m.orDefault().Transactions.WithLabelValues(result).Inc()
}

// RecordCacheLookup records an account cache hit or miss.
func (m *Metrics) RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.orDefault().CacheLookups.WithLabelValues(result).Inc()
}

// RecordHTTPRequest records one served HTTP request.
func (m *Metrics) RecordHTTPRequest(route, status string, seconds float64) {
	m = m.orDefault()
	m.HTTPRequests.WithLabelValues(route, status).Inc()
	m.HTTPLatency.WithLabelValues(route).Observe(seconds)
}

// RecordRPCLatency records RPC call latency.
func (m *Metrics) RecordRPCLatency(method string, seconds float64) {
	m.orDefault().RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordWSNotification counts a subscription notification.
func (m *Metrics) RecordWSNotification(method string) {
	m.orDefault().WSNotifications.WithLabelValues(method).Inc()
}

// UpdateHighestSlot updates the highest slot seen gauge.
func (m *Metrics) UpdateHighestSlot(slot int64) {
	m.orDefault().HighestSlotSeen.Set(float64(slot))
}
