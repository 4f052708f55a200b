package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcomes reported by the outbox publisher.
const (
	OutboxOutcomeRetry      = "retry"
	OutboxOutcomeDeadLetter = "dead_letter"
)

// OutboxMetrics instruments the outbox publisher loop.
type OutboxMetrics struct {
	published *prometheus.CounterVec
	failed    *prometheus.CounterVec
	pending   prometheus.Gauge
}

// NewOutboxMetrics registers the outbox metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	published := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "events_published_total",
		Help:      "Outbox events delivered to pubsub, by event type.",
	}, []string{"event_type"})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "events_failed_total",
		Help:      "Outbox publish failures, by event type and outcome.",
	}, []string{"event_type", "outcome"})
	pending := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "events_pending",
		Help:      "Outbox rows not yet published as of the last poll.",
	})
	reg.MustRegister(published, failed, pending)
	return &OutboxMetrics{
		published: published,
		failed:    failed,
		pending:   pending,
	}
}

// IncPublished counts one delivered event.
func (m *OutboxMetrics) IncPublished(eventType string) {
	if m == nil || m.published == nil {
		return
	}
	m.published.WithLabelValues(normalizeLabel(eventType)).Inc()
}

// IncFailed counts one failed delivery with its outcome.
func (m *OutboxMetrics) IncFailed(eventType, outcome string) {
	if m == nil || m.failed == nil {
		return
	}
	m.failed.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

// SetPending records the backlog size.
func (m *OutboxMetrics) SetPending(count int64) {
	if m == nil || m.pending == nil {
		return
	}
	m.pending.Set(float64(count))
}
