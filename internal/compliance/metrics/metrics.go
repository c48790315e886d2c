package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics covers compliance evaluation and access-gate decisions.
type Metrics struct {
	Evaluations        *prometheus.CounterVec
	EvaluationDuration prometheus.Histogram
	CacheLookups       *prometheus.CounterVec
	GateDecisions      *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		Evaluations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "signet_compliance_evaluations_total",
			Help: "Compliance evaluations by target kind and outcome (compliant, non_compliant, error)",
		}, []string{"target_kind", "outcome"}),

		EvaluationDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "signet_compliance_evaluation_duration_seconds",
			Help:    "Duration of uncached compliance evaluations",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.5, 1, 2},
		}),

		CacheLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "signet_compliance_cache_lookups_total",
			Help: "Compliance cache lookups by result (hit, miss)",
		}, []string{"result"}),

		GateDecisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "signet_gate_decisions_total",
			Help: "Access gate decisions (granted, forbidden, compliance_required, error)",
		}, []string{"decision"}),
	}
}

func (m *Metrics) IncrementEvaluation(kind, outcome string) {
	if m != nil {
		m.Evaluations.WithLabelValues(kind, outcome).Inc()
	}
}

func (m *Metrics) ObserveEvaluation(d time.Duration) {
	if m != nil {
		m.EvaluationDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheLookups.WithLabelValues("hit").Inc()
		return
	}
	m.CacheLookups.WithLabelValues("miss").Inc()
}

func (m *Metrics) IncrementGateDecision(decision string) {
	if m != nil {
		m.GateDecisions.WithLabelValues(decision).Inc()
	}
}
