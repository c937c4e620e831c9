// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sakif/snippet-sync/internal/apperror"
)

// Metrics groups the collectors. A nil *Metrics is valid and records nothing,
// so components can be built without a registry in tests.
type Metrics struct {
	operations   *prometheus.CounterVec
	requests     *prometheus.HistogramVec
	routerMsgs   *prometheus.CounterVec
	changeEvents prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "snippets",
			Name:      "operations_total",
			Help:      "Snippet service operations by operation and result.",
		}, []string{"op", "result"}),
		requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "snippets",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method, route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		routerMsgs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "snippets",
			Name:      "router_messages_total",
			Help:      "Background router messages by action and outcome.",
		}, []string{"action", "outcome"}),
		changeEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "snippets",
			Name:      "store_change_events_total",
			Help:      "Change events received from the key-value store.",
		}),
	}
	reg.MustRegister(m.operations, m.requests, m.routerMsgs, m.changeEvents)
	return m
}

// ObserveOperation counts one service operation.
func (m *Metrics) ObserveOperation(op string, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, Result(err)).Inc()
}

// ObserveRequest records the latency of one HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}

// ObserveMessage counts one router message.
func (m *Metrics) ObserveMessage(action, outcome string) {
	if m == nil {
		return
	}
	m.routerMsgs.WithLabelValues(action, outcome).Inc()
}

// ObserveChange counts one store change event.
func (m *Metrics) ObserveChange() {
	if m == nil {
		return
	}
	m.changeEvents.Inc()
}

// Result maps an error to a low-cardinality label value.
func Result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, apperror.ErrValidation):
		return "invalid"
	case errors.Is(err, apperror.ErrNotFound):
		return "not_found"
	case errors.Is(err, apperror.ErrStorage):
		return "storage_error"
	default:
		return "error"
	}
}
