// Package underwriting scores applicants: factor scores are computed in a fixed
// order, combined with positional weights and mapped to a risk level.
package underwriting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/tables"
)

// ErrNilRequest is returned when AssessRisk is called without a request.
var ErrNilRequest = errors.New("underwriting request is required")

// Assessor runs the underwriting pipeline.
type Assessor struct {
	tables   *tables.Tables
	weights  []float64
	recorder domain.OutcomeRecorder
	now      func() time.Time
}

// NewAssessor creates an assessor. A nil recorder discards outcomes.
func NewAssessor(t *tables.Tables, recorder domain.OutcomeRecorder) *Assessor {
	if recorder == nil {
		recorder = domain.NopRecorder{}
	}
	return &Assessor{
		tables:   t,
		weights:  t.NormalizedWeights(),
		recorder: recorder,
		now:      time.Now,
	}
}

// AssessRisk scores an underwriting request.
func (a *Assessor) AssessRisk(ctx context.Context, req *domain.UnderwritingRequest) (*domain.RiskDecision, error) {
	if req == nil {
		return nil, ErrNilRequest
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := a.now()

	scores := ComputeScores(req, a.tables)

	score, err := Aggregate(scores.Values(), a.weights, a.tables.Underwriting.ScoreCap)
	if err != nil {
		return nil, fmt.Errorf("aggregate underwriting scores: %w", err)
	}

	level := Classify(score, a.tables)

	flagged := scores.Flagged
	if flagged == nil {
		flagged = []string{}
	}

	decision := &domain.RiskDecision{
		ID:             uuid.New().String(),
		PolicyID:       req.PolicyID,
		RiskScore:      score,
		RiskFactors:    flagged,
		Factors:        scores.Factors,
		RiskLevel:      level,
		NextSteps:      []string{level.RecommendedAction},
		AssessmentDate: a.now().UTC(),
	}

	a.recorder.RecordOutcome(domain.Outcome{
		Pipeline: domain.PipelineUnderwriting,
		Status:   string(level.RiskLevel),
		Score:    score,
		Scored:   true,
		Duration: a.now().Sub(start),
	})

	slog.Debug("underwriting assessed",
		"policy_id", req.PolicyID,
		"risk_score", score,
		"risk_level", level.RiskLevel,
		"factors", len(scores.Factors),
	)

	return decision, nil
}
