// Package metrics holds the Prometheus collectors of the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/congo-pay/minipay/internal/apperr"
)

const namespace = "minipay"

// Metrics owns a private registry so tests can build independent instances.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	operations   *prometheus.CounterVec
	moved        *prometheus.CounterVec
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	reconcileRun prometheus.Counter
	drift        prometheus.Gauge
}

// New registers every collector, including the Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "wallet",
			Name:      "operations_total",
			Help:      "Wallet operations by kind and outcome.",
		}, []string{"operation", "outcome"}),
		moved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "wallet",
			Name:      "amount_total",
			Help:      "Sum of committed amounts by operation, in the smallest unit.",
		}, []string{"operation"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		}, []string{"method", "route"}),
		reconcileRun: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "runs_total",
			Help:      "Completed reconciliation passes.",
		}),
		drift: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "mismatched_wallets",
			Help:      "Wallets whose balance differed from their ledger sum in the last pass.",
		}),
	}
	m.Registry.MustRegister(
		m.operations,
		m.moved,
		m.httpRequests,
		m.httpDuration,
		m.reconcileRun,
		m.drift,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveOperation counts one wallet operation. amount is added to the moved
// total only on success.
func (m *Metrics) ObserveOperation(operation string, amount int64, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, outcome(err)).Inc()
	if err == nil && amount > 0 {
		m.moved.WithLabelValues(operation).Add(float64(amount))
	}
}

// ObserveHTTP records one finished request.
func (m *Metrics) ObserveHTTP(method, route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, status).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(seconds)
}

// ObserveReconcile records the result of one reconciliation pass.
func (m *Metrics) ObserveReconcile(mismatched int) {
	if m == nil {
		return
	}
	m.reconcileRun.Inc()
	m.drift.Set(float64(mismatched))
}

func outcome(err error) string {
	if err == nil {
		return "success"
	}
	switch apperr.KindOf(err) {
	case apperr.ErrNotFound:
		return "not_found"
	case apperr.ErrConflict:
		return "conflict"
	case apperr.ErrInsufficientFunds:
		return "insufficient_funds"
	case apperr.ErrBadRequest:
		return "bad_request"
	case apperr.ErrUnavailable:
		return "unavailable"
	default:
		return "error"
	}
}
