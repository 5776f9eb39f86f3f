// Package fraud scores claims for fraud risk: every factor rule is evaluated,
// the triggered contributions are aggregated and the score is classified.
package fraud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/tables"
)

// ErrNilRequest is returned when DetectFraud is called without a request.
var ErrNilRequest = errors.New("fraud check request is required")

// Detector runs the fraud pipeline.
type Detector struct {
	tables   *tables.Tables
	engine   *rules.Engine
	recorder domain.OutcomeRecorder
	now      func() time.Time
}

// NewDetector creates a fraud detector. A nil recorder discards outcomes.
func NewDetector(t *tables.Tables, engine *rules.Engine, recorder domain.OutcomeRecorder) *Detector {
	if recorder == nil {
		recorder = domain.NopRecorder{}
	}
	return &Detector{
		tables:   t,
		engine:   engine,
		recorder: recorder,
		now:      time.Now,
	}
}

// DetectFraud scores a fraud check request.
func (d *Detector) DetectFraud(ctx context.Context, req *domain.FraudCheckRequest) (*domain.FraudDecision, error) {
	if req == nil {
		return nil, ErrNilRequest
	}
	start := d.now()

	results, err := d.engine.Evaluate(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("evaluate fraud factors: %w", err)
	}

	factors := rules.Triggered(results)
	agg := Aggregate(factors, req.PreviousClaims, d.tables.Fraud.PriorClaimMultiplier, d.tables.Fraud.ScoreCap)
	status := Classify(agg.Score, d.tables.Fraud.StatusThresholds)

	decision := &domain.FraudDecision{
		ID:          uuid.New().String(),
		ClaimID:     req.ClaimID,
		RiskScore:   agg.Score,
		RiskFactors: domain.Labels(factors),
		Factors:     factors,
		Status:      status,
		Confidence:  ConfidenceFor(agg.Triggered, d.tables.Fraud.ConfidenceThresholds),
		NextSteps:   d.tables.FraudNextSteps(status),
		Timestamp:   d.now().UTC(),
	}

	elapsed := d.now().Sub(start)
	d.recorder.RecordOutcome(domain.Outcome{
		Pipeline: domain.PipelineFraud,
		Status:   string(status),
		Score:    agg.Score,
		Scored:   true,
		Duration: elapsed,
	})

	slog.Debug("fraud check scored",
		"claim_id", req.ClaimID,
		"base_score", agg.BaseScore,
		"multiplier", agg.Multiplier,
		"risk_score", agg.Score,
		"status", status,
		"factors", agg.Triggered,
	)

	return decision, nil
}
