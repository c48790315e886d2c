package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for document drafting and signing.
type Metrics struct {
	DocumentsDrafted  *prometheus.CounterVec
	SignatureOutcomes *prometheus.CounterVec
	DocumentsExpired  prometheus.Counter
	GenerateLatency   prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		DocumentsDrafted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "signet_documents_drafted_total",
			Help: "Documents generated and persisted, by type code",
		}, []string{"type_code"}),

		SignatureOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "signet_signature_outcomes_total",
			Help: "Signature attempts by outcome (signed, conflict, expired, tampered, not_found, error)",
		}, []string{"outcome"}),

		DocumentsExpired: promauto.NewCounter(prometheus.CounterOpts{
			Name: "signet_documents_expired_total",
			Help: "Pending documents moved to EXPIRED by the sweeper",
		}),

		GenerateLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "signet_document_generate_duration_seconds",
			Help:    "Duration of generation plus persistence",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
	}
}

func (m *Metrics) IncrementDrafted(typeCode string) {
	if m != nil {
		m.DocumentsDrafted.WithLabelValues(typeCode).Inc()
	}
}

func (m *Metrics) IncrementSignature(outcome string) {
	if m != nil {
		m.SignatureOutcomes.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) AddExpired(n int) {
	if m != nil && n > 0 {
		m.DocumentsExpired.Add(float64(n))
	}
}

func (m *Metrics) ObserveGenerateLatency(d time.Duration) {
	if m != nil {
		m.GenerateLatency.Observe(d.Seconds())
	}
}
