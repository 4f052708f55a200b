package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Failure reasons reported by the ledger engine.
const (
	LedgerFailureValidation        = "validation"
	LedgerFailureInsufficientFunds = "insufficient_funds"
	LedgerFailureContention        = "contention"
	LedgerFailureInternal          = "internal"
)

// LedgerMetrics instruments posting outcomes of the ledger engine.
type LedgerMetrics struct {
	posted      *prometheus.CounterVec
	replayed    *prometheus.CounterVec
	failed      *prometheus.CounterVec
	lockRetries prometheus.Counter
	duration    *prometheus.HistogramVec
	drift       prometheus.Gauge
}

// NewLedgerMetrics registers the ledger metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	posted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "entries_posted_total",
		Help:      "Ledger entries committed, by type and direction.",
	}, []string{"type", "direction"})
	replayed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "entries_replayed_total",
		Help:      "Posting requests answered with an existing entry for the same idempotency key.",
	}, []string{"type"})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "post_failures_total",
		Help:      "Posting requests that ended in an error, by reason.",
	}, []string{"reason"})
	lockRetries := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "lock_retries_total",
		Help:      "Posting transactions retried after lock contention.",
	})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "post_duration_seconds",
		Help:      "Latency of posting requests in seconds.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"direction"})
	drift := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "balance_drift_accounts",
		Help:      "Accounts whose balance disagreed with the ledger sum at the last reconciliation.",
	})
	reg.MustRegister(posted, replayed, failed, lockRetries, duration, drift)
	return &LedgerMetrics{
		posted:      posted,
		replayed:    replayed,
		failed:      failed,
		lockRetries: lockRetries,
		duration:    duration,
		drift:       drift,
	}
}

func (m *LedgerMetrics) IncPosted(entryType, direction string) {
	if m == nil || m.posted == nil {
		return
	}
	m.posted.WithLabelValues(normalizeLabel(entryType), normalizeLabel(direction)).Inc()
}

func (m *LedgerMetrics) IncReplayed(entryType string) {
	if m == nil || m.replayed == nil {
		return
	}
	m.replayed.WithLabelValues(normalizeLabel(entryType)).Inc()
}

func (m *LedgerMetrics) IncFailed(reason string) {
	if m == nil || m.failed == nil {
		return
	}
	m.failed.WithLabelValues(normalizeLabel(reason)).Inc()
}

func (m *LedgerMetrics) IncLockRetry() {
	if m == nil || m.lockRetries == nil {
		return
	}
	m.lockRetries.Inc()
}

func (m *LedgerMetrics) ObservePost(direction string, d time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(direction)).Observe(d.Seconds())
}

func (m *LedgerMetrics) SetDriftAccounts(n int) {
	if m == nil || m.drift == nil {
		return
	}
	m.drift.Set(float64(n))
}
