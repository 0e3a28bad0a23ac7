package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the screening engine. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	// Provider call latency by provider and final status
	ProviderLatency *prometheus.HistogramVec
	// Provider outcomes by provider and status (ok, timeout, rate_limited, error)
	ProviderResults *prometheus.CounterVec
	// Extra attempts made after a transient failure
	ProviderRetries *prometheus.CounterVec

	ChecksActive   prometheus.Gauge
	ChecksRejected *prometheus.CounterVec
	ChecksFinished *prometheus.CounterVec
	CheckLatency   *prometheus.HistogramVec
	Decisions      *prometheus.CounterVec

	Publications *prometheus.CounterVec
}

// New registers the engine metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ProviderLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "propertyvet_provider_call_duration_seconds",
			Help:    "Duration of provider calls including retries",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"provider", "status"}),

		ProviderResults: f.NewCounterVec(prometheus.CounterOpts{
			Name: "propertyvet_provider_results_total",
			Help: "Provider results by provider and status",
		}, []string{"provider", "status"}),

		ProviderRetries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "propertyvet_provider_retries_total",
			Help: "Retried provider attempts after transient failures",
		}, []string{"provider"}),

		ChecksActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "propertyvet_checks_active",
			Help: "Checks currently pending or in progress",
		}),

		ChecksRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "propertyvet_checks_rejected_total",
			Help: "Checks rejected at submission by reason",
		}, []string{"reason"}), // reason: validation, duplicate, capacity

		ChecksFinished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "propertyvet_checks_finished_total",
			Help: "Checks reaching a terminal state",
		}, []string{"tier", "state"}),

		CheckLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "propertyvet_check_duration_seconds",
			Help:    "End-to-end check duration from start to terminal state",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"tier"}),

		Decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "propertyvet_decisions_total",
			Help: "Recommendations by decision and risk level",
		}, []string{"decision", "risk_level"}),

		Publications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "propertyvet_report_publications_total",
			Help: "Report deliveries by sink and outcome",
		}, []string{"sink", "outcome"}), // outcome: ok, error, skipped, dropped
	}
}

func (m *Metrics) ObserveProviderCall(provider, status string, d time.Duration) {
	if m != nil {
		m.ProviderLatency.WithLabelValues(provider, status).Observe(d.Seconds())
		m.ProviderResults.WithLabelValues(provider, status).Inc()
	}
}

func (m *Metrics) IncrementRetry(provider string) {
	if m != nil {
		m.ProviderRetries.WithLabelValues(provider).Inc()
	}
}

func (m *Metrics) SetActive(n int) {
	if m != nil {
		m.ChecksActive.Set(float64(n))
	}
}

func (m *Metrics) IncrementRejected(reason string) {
	if m != nil {
		m.ChecksRejected.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) ObserveFinished(tier, state string, d time.Duration) {
	if m != nil {
		m.ChecksFinished.WithLabelValues(tier, state).Inc()
		m.CheckLatency.WithLabelValues(tier).Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementDecision(decision, riskLevel string) {
	if m != nil {
		m.Decisions.WithLabelValues(decision, riskLevel).Inc()
	}
}

func (m *Metrics) IncrementPublication(sink, outcome string) {
	if m != nil {
		m.Publications.WithLabelValues(sink, outcome).Inc()
	}
}
