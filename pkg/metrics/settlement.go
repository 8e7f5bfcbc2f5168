package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SettlementMetrics tracks compound ledger operations by kind and outcome.
type SettlementMetrics struct {
	duration     *prometheus.HistogramVec
	outcomes     *prometheus.CounterVec
	compensation *prometheus.CounterVec
}

// NewSettlementMetrics registers the settlement metrics on the provided registerer.
func NewSettlementMetrics(reg prometheus.Registerer) *SettlementMetrics {
	if reg == nil {
		return &SettlementMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "settlement_operation_duration_seconds",
		Help:    "Duration of settlement operations in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind", "mode"})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_operations_total",
		Help: "Settlement operations by final status.",
	}, []string{"kind", "mode", "status"})
	compensation := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_compensations_total",
		Help: "Compensating actions executed by step and result.",
	}, []string{"step", "result"})
	reg.MustRegister(duration, outcomes, compensation)
	return &SettlementMetrics{
		duration:     duration,
		outcomes:     outcomes,
		compensation: compensation,
	}
}

// Observe records one finished operation.
func (m *SettlementMetrics) Observe(kind, mode, status string, duration time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	kind, mode = normalizeLabel(kind), normalizeLabel(mode)
	m.duration.WithLabelValues(kind, mode).Observe(duration.Seconds())
	m.outcomes.WithLabelValues(kind, mode, normalizeLabel(status)).Inc()
}

// IncCompensation counts one compensating action.
func (m *SettlementMetrics) IncCompensation(step string, ok bool) {
	if m == nil || m.compensation == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.compensation.WithLabelValues(normalizeLabel(step), result).Inc()
}

// OutboxMetrics counts publisher results.
type OutboxMetrics struct {
	published *prometheus.CounterVec
	failed    *prometheus.CounterVec
}

// NewOutboxMetrics registers the outbox publisher metrics.
func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	published := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_events_published_total",
		Help: "Outbox events delivered to Pub/Sub.",
	}, []string{"event_type"})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_events_failed_total",
		Help: "Outbox publish failures by event type and whether they are terminal.",
	}, []string{"event_type", "terminal"})
	reg.MustRegister(published, failed)
	return &OutboxMetrics{published: published, failed: failed}
}

func (m *OutboxMetrics) IncPublished(eventType string) {
	if m == nil || m.published == nil {
		return
	}
	m.published.WithLabelValues(normalizeLabel(eventType)).Inc()
}

func (m *OutboxMetrics) IncFailed(eventType string, terminal bool) {
	if m == nil || m.failed == nil {
		return
	}
	label := "false"
	if terminal {
		label = "true"
	}
	m.failed.WithLabelValues(normalizeLabel(eventType), label).Inc()
}
