package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks gateway operation outcomes and retry pressure.
type Metrics struct {
	OpDuration *prometheus.HistogramVec
	Retries    *prometheus.CounterVec
	Failures   *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		OpDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "helixpass_ledger_op_duration_seconds",
			Help:    "Latency of ledger gateway operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		Retries: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "helixpass_ledger_retries_total",
			Help: "Transient ledger failures that were retried.",
		}, []string{"op"}),
		Failures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "helixpass_ledger_failures_total",
			Help: "Ledger operations that failed after retries, by error kind.",
		}, []string{"op", "kind"}),
	}
}

func (m *Metrics) observe(op string, seconds float64) {
	if m == nil {
		return
	}
	m.OpDuration.WithLabelValues(op).Observe(seconds)
}

func (m *Metrics) retry(op string) {
	if m == nil {
		return
	}
	m.Retries.WithLabelValues(op).Inc()
}

func (m *Metrics) failure(op string, kind ErrorKind) {
	if m == nil {
		return
	}
	m.Failures.WithLabelValues(op, string(kind)).Inc()
}
