package incentive

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"helixpass/internal/domain"
)

// Metrics counts award outcomes.
type Metrics struct {
	Outcomes *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		Outcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "helixpass_incentive_awards_total",
			Help: "Incentive award attempts by outcome.",
		}, []string{"status"}),
	}
}

func (m *Metrics) outcome(status domain.AwardStatus) {
	if m == nil {
		return
	}
	m.Outcomes.WithLabelValues(string(status)).Inc()
}
