// Package metrics holds the Prometheus collectors for the membership
// subsystem. A nil *Metrics is valid and records nothing, which keeps
// services usable in tests without a registry.
package metrics

import (
	"net/http"

	"github.com/dalemusser/spendhub/internal/app/system/apperr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "spendhub"

// Metrics owns a private registry and the collectors registered on it.
type Metrics struct {
	Registry *prometheus.Registry

	lifecycle      *prometheus.CounterVec
	capacity       *prometheus.CounterVec
	tokens         *prometheus.CounterVec
	continuity     *prometheus.CounterVec
	notifyEvents   *prometheus.CounterVec
	notifyDelivery *prometheus.CounterVec
	notifyQueue    prometheus.Gauge
	httpRequests   *prometheus.CounterVec
}

// New creates and registers all collectors, including the Go and process
// collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		lifecycle: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "membership",
			Name:      "operations_total",
			Help:      "Membership lifecycle operations by operation and result kind.",
		}, []string{"operation", "result"}),
		capacity: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "membership",
			Name:      "capacity_rejections_total",
			Help:      "Joins rejected because a user or group was at capacity.",
		}, []string{"operation"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "invitations",
			Name:      "tokens_total",
			Help:      "Invitation token events (created, accepted, rejected, cancelled).",
		}, []string{"event"}),
		continuity: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "continuity",
			Name:      "resolutions_total",
			Help:      "Leadership continuity outcomes per resolved group.",
		}, []string{"outcome"}),
		notifyEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "events_total",
			Help:      "Lifecycle events offered to the notification dispatcher.",
		}, []string{"result"}),
		notifyDelivery: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "deliveries_total",
			Help:      "Per-recipient notification deliveries by notifier and result.",
		}, []string{"notifier", "result"}),
		notifyQueue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "queue_depth",
			Help:      "Events waiting for a notification worker.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "api_errors_total",
			Help:      "API responses by error kind.",
		}, []string{"kind"}),
	}
	m.Registry.MustRegister(
		m.lifecycle,
		m.capacity,
		m.tokens,
		m.continuity,
		m.notifyEvents,
		m.notifyDelivery,
		m.notifyQueue,
		m.httpRequests,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Operation records the result of a lifecycle operation. A nil err counts
// as "ok"; any other error counts under its apperr kind.
func (m *Metrics) Operation(op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = string(apperr.KindOf(err))
		if apperr.KindOf(err) == apperr.KindCapacityExceeded {
			m.capacity.WithLabelValues(op).Inc()
		}
	}
	m.lifecycle.WithLabelValues(op, result).Inc()
}

// Token records an invitation token event.
func (m *Metrics) Token(event string) {
	if m == nil {
		return
	}
	m.tokens.WithLabelValues(event).Inc()
}

// Continuity records a continuity outcome.
func (m *Metrics) Continuity(outcome string) {
	if m == nil {
		return
	}
	m.continuity.WithLabelValues(outcome).Inc()
}

// NotifyEvent records whether an event was queued or dropped.
func (m *Metrics) NotifyEvent(result string) {
	if m == nil {
		return
	}
	m.notifyEvents.WithLabelValues(result).Inc()
}

// NotifyDelivery records one notifier call for one recipient.
func (m *Metrics) NotifyDelivery(notifier string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.notifyDelivery.WithLabelValues(notifier, result).Inc()
}

// NotifyQueueDepth sets the current queue depth.
func (m *Metrics) NotifyQueueDepth(n int) {
	if m == nil {
		return
	}
	m.notifyQueue.Set(float64(n))
}

// APIError records an error response by kind.
func (m *Metrics) APIError(kind apperr.Kind) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(string(kind)).Inc()
}
