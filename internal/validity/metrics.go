package validity

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks resolution verdicts and ownership cache effectiveness.
type Metrics struct {
	Resolutions *prometheus.CounterVec
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter
}

func NewMetrics() *Metrics {
	return &Metrics{
		Resolutions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "helixpass_validity_resolutions_total",
			Help: "Validity resolutions by effective verdict.",
		}, []string{"valid"}),
		CacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "helixpass_validity_ownership_cache_hits_total",
			Help: "Ownership reads served from cache.",
		}),
		CacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "helixpass_validity_ownership_cache_misses_total",
			Help: "Ownership reads that went to the ledger.",
		}),
	}
}

func (m *Metrics) resolved(valid bool) {
	if m == nil {
		return
	}
	if valid {
		m.Resolutions.WithLabelValues("true").Inc()
	} else {
		m.Resolutions.WithLabelValues("false").Inc()
	}
}

func (m *Metrics) cacheHit() {
	if m == nil {
		return
	}
	m.CacheHits.Inc()
}

func (m *Metrics) cacheMiss() {
	if m == nil {
		return
	}
	m.CacheMisses.Inc()
}
