// Package metrics records pipeline outcomes as Prometheus collectors.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Recorder implements domain.OutcomeRecorder with Prometheus collectors.
type Recorder struct {
	evaluations *prometheus.CounterVec
	riskScore   *prometheus.HistogramVec
	duration    *prometheus.HistogramVec
	claimAmount prometheus.Histogram
}

// NewRecorder creates the collectors. Call Register before serving them.
func NewRecorder() *Recorder {
	return &Recorder{
		evaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "kestrel",
				Name:      "evaluations_total",
				Help:      "Total number of pipeline evaluations, partitioned by pipeline and outcome.",
			},
			[]string{"pipeline", "outcome"},
		),
		riskScore: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "kestrel",
				Name:      "risk_score",
				Help:      "Distribution of composite risk scores.",
				Buckets:   prometheus.LinearBuckets(0, 10, 11),
			},
			[]string{"pipeline"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "kestrel",
				Name:      "processing_seconds",
				Help:      "Pipeline processing latency in seconds.",
				Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"pipeline"},
		),
		claimAmount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "kestrel",
				Name:      "claim_amount",
				Help:      "Distribution of claimed amounts.",
				Buckets:   []float64{100, 500, 1000, 5000, 10000, 25000, 50000, 100000, 250000},
			},
		),
	}
}

// Register attaches the collectors to reg. Collectors already registered are skipped.
func (r *Recorder) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		r.evaluations,
		r.riskScore,
		r.duration,
		r.claimAmount,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}
			return err
		}
	}
	return nil
}

// RecordOutcome implements domain.OutcomeRecorder.
func (r *Recorder) RecordOutcome(o domain.Outcome) {
	r.evaluations.WithLabelValues(o.Pipeline, o.Status).Inc()

	duration := o.Duration
	if duration < 0 {
		duration = 0
	}
	r.duration.WithLabelValues(o.Pipeline).Observe(duration.Seconds())

	if o.Scored {
		r.riskScore.WithLabelValues(o.Pipeline).Observe(o.Score)
	}
	if o.Pipeline == domain.PipelineClaims {
		r.claimAmount.Observe(o.Amount)
	}
}

var _ domain.OutcomeRecorder = (*Recorder)(nil)
