package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the protocol counters exported to Prometheus.
type Metrics struct {
	Operations      *prometheus.CounterVec
	Failures        *prometheus.CounterVec
	RPCLatency      *prometheus.HistogramVec
	PoolUtilization prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics builds and registers the protocol metric set on a private
// registry so repeated construction in tests never collides.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &Metrics{
		Operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zlend",
			Name:      "operations_total",
			Help:      "State-mutating protocol operations processed, by operation name.",
		}, []string{"op"}),
		Failures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zlend",
			Name:      "operation_failures_total",
			Help:      "Protocol operations rejected or failed, by operation name.",
		}, []string{"op"}),
		RPCLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "zlend",
			Name:      "rpc_duration_seconds",
			Help:      "JSON-RPC request latency, by method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		PoolUtilization: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "zlend",
			Name:      "pool_utilization_ratio",
			Help:      "Borrowed over supplied pool funds after the last committed operation.",
		}),
		registry: registry,
	}
}

// Handler exposes the registry for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SetPoolUtilization publishes the current utilization ratio.
func (m *Metrics) SetPoolUtilization(ratio float64) {
	if m == nil {
		return
	}
	m.PoolUtilization.Set(ratio)
}

// RecordOperation tracks a completed operation and its outcome.
func (m *Metrics) RecordOperation(op string, err error) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(op).Inc()
	if err != nil {
		m.Failures.WithLabelValues(op).Inc()
	}
}
