package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the correction module.
type Metrics struct {
	// Correction outcomes by path (manual, auto, merge, integrate) and result
	CorrectionOutcome *prometheus.CounterVec

	// Provider call latencies and results
	ProviderLatency *prometheus.HistogramVec
	ProviderCalls   *prometheus.CounterVec

	// Quota denials by provider and country
	QuotaDenials *prometheus.CounterVec

	// Notification enqueue attempts
	NotificationsEnqueued prometheus.Counter
}

// New creates a Metrics instance with all correction module metrics registered.
func New() *Metrics {
	return &Metrics{
		CorrectionOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "simba_correction_outcomes_total",
			Help: "Total correction outcomes by path and result",
		}, []string{"path", "result"}), // path: "manual", "auto", "merge", "integrate"

		ProviderLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "simba_provider_call_duration_seconds",
			Help:    "Duration of external provider validation calls",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"provider"}),

		ProviderCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "simba_provider_calls_total",
			Help: "Total provider validation calls by provider and result",
		}, []string{"provider", "result"}), // result: "accepted", "rejected", "error"

		QuotaDenials: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "simba_quota_denials_total",
			Help: "Total quota ledger denials by provider and country",
		}, []string{"provider", "country"}),

		NotificationsEnqueued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "simba_notifications_enqueued_total",
			Help: "Total correction notifications handed to the dispatcher",
		}),
	}
}

// IncrementOutcome records a correction outcome for one path.
func (m *Metrics) IncrementOutcome(path, result string) {
	if m != nil {
		m.CorrectionOutcome.WithLabelValues(path, result).Inc()
	}
}

// ObserveProviderCall records one provider call with its duration and result.
func (m *Metrics) ObserveProviderCall(provider, result string, d time.Duration) {
	if m != nil {
		m.ProviderLatency.WithLabelValues(provider).Observe(d.Seconds())
		m.ProviderCalls.WithLabelValues(provider, result).Inc()
	}
}

// IncrementQuotaDenial records a quota ledger denial.
func (m *Metrics) IncrementQuotaDenial(provider, country string) {
	if m != nil {
		m.QuotaDenials.WithLabelValues(provider, country).Inc()
	}
}

// IncrementNotification records one dispatcher enqueue.
func (m *Metrics) IncrementNotification() {
	if m != nil {
		m.NotificationsEnqueued.Inc()
	}
}
