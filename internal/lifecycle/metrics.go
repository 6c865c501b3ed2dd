package lifecycle

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks saga terminal states and per-step failures.
type Metrics struct {
	SagaOutcomes    *prometheus.CounterVec
	SagaDuration    *prometheus.HistogramVec
	StepFailures    *prometheus.CounterVec
	StrandedSerials prometheus.Counter
}

func NewMetrics() *Metrics {
	return &Metrics{
		SagaOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "helixpass_saga_outcomes_total",
			Help: "Terminal saga states by saga and outcome.",
		}, []string{"saga", "outcome"}),
		SagaDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "helixpass_saga_duration_seconds",
			Help:    "Wall time from saga start to terminal state.",
			Buckets: prometheus.DefBuckets,
		}, []string{"saga"}),
		StepFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "helixpass_saga_step_failures_total",
			Help: "Saga step failures by step and severity.",
		}, []string{"step", "severity"}),
		StrandedSerials: promauto.NewCounter(prometheus.CounterOpts{
			Name: "helixpass_stranded_serials_total",
			Help: "Credential serials minted but never transferred out of the treasury.",
		}),
	}
}

func (m *Metrics) outcome(saga, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.SagaOutcomes.WithLabelValues(saga, outcome).Inc()
	m.SagaDuration.WithLabelValues(saga).Observe(seconds)
}

func (m *Metrics) stepFailure(step SagaStep, status StepStatus) {
	if m == nil {
		return
	}
	m.StepFailures.WithLabelValues(string(step), string(status)).Inc()
}

func (m *Metrics) strandedSerial() {
	if m == nil {
		return
	}
	m.StrandedSerials.Inc()
}
