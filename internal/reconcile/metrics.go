package reconcile

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks sweep runs and the divergences they surface.
type Metrics struct {
	Sweeps        *prometheus.CounterVec
	SweepDuration prometheus.Histogram
	Findings      *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		Sweeps: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "helixpass_reconcile_sweeps_total",
			Help: "Reconciliation sweeps by result.",
		}, []string{"result"}),
		SweepDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "helixpass_reconcile_sweep_duration_seconds",
			Help:    "Wall time of one reconciliation sweep.",
			Buckets: prometheus.DefBuckets,
		}),
		Findings: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "helixpass_reconcile_findings_total",
			Help: "Divergences between store and ledger by kind.",
		}, []string{"kind"}),
	}
}

func (m *Metrics) sweep(ok bool, seconds float64) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.Sweeps.WithLabelValues(result).Inc()
	m.SweepDuration.Observe(seconds)
}

func (m *Metrics) finding(kind string) {
	if m == nil {
		return
	}
	m.Findings.WithLabelValues(kind).Inc()
}
