// Package claims decides claim admissibility and approval with a short-circuiting
// gate chain: validation, coverage, amount range, document content, auto-approval,
// and a manual review fallback.
package claims

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/tables"
)

// Pipeline runs the claims gate chain.
type Pipeline struct {
	tables   *tables.Tables
	provider domain.PolicyDataProvider
	recorder domain.OutcomeRecorder
	now      func() time.Time
}

// NewPipeline creates a claims pipeline. A nil recorder discards outcomes.
func NewPipeline(t *tables.Tables, provider domain.PolicyDataProvider, recorder domain.OutcomeRecorder) *Pipeline {
	if recorder == nil {
		recorder = domain.NopRecorder{}
	}
	return &Pipeline{
		tables:   t,
		provider: provider,
		recorder: recorder,
		now:      time.Now,
	}
}

// ProcessClaim runs a claim through the gate chain. It never fails: provider
// errors and panics produce a decision with status error, flagged for manual review.
func (p *Pipeline) ProcessClaim(ctx context.Context, req *domain.ClaimRequest) (decision *domain.ClaimDecision) {
	start := p.now()

	defer func() {
		if r := recover(); r != nil {
			decision = p.systemError(req, start, fmt.Errorf("panic: %v", r))
		}
		p.record(req, decision, start)
	}()

	if req == nil {
		return p.systemError(req, start, fmt.Errorf("claim request is required"))
	}

	v, err := p.run(ctx, req)
	if err != nil {
		return p.systemError(req, start, err)
	}

	slog.Debug("claim processed",
		"claim_id", req.ClaimID,
		"status", v.status,
		"approved_amount", v.approved.String(),
	)

	return p.decide(req, v, start)
}

func (p *Pipeline) run(ctx context.Context, req *domain.ClaimRequest) (*verdict, error) {
	for _, g := range chain {
		v, err := g(ctx, p, req)
		if err != nil {
			return nil, err
		}
		if v != nil {
			return v, nil
		}
	}
	return inReview(), nil
}

func (p *Pipeline) decide(req *domain.ClaimRequest, v *verdict, start time.Time) *domain.ClaimDecision {
	claimID := ""
	if req != nil {
		claimID = req.ClaimID
	}
	now := p.now()
	return &domain.ClaimDecision{
		ID:             uuid.New().String(),
		ClaimID:        claimID,
		Status:         v.status,
		ApprovedAmount: v.approved,
		Reasons:        v.reasons,
		Notes:          v.notes,
		NextSteps:      v.nextSteps,
		ProcessingTime: now.Sub(start).Seconds(),
		Timestamp:      now.UTC(),
	}
}

func (p *Pipeline) systemError(req *domain.ClaimRequest, start time.Time, err error) *domain.ClaimDecision {
	claimID := ""
	if req != nil {
		claimID = req.ClaimID
	}
	slog.Error("claim processing failed", "claim_id", claimID, "error", err)

	return p.decide(req, &verdict{
		status:    domain.ClaimError,
		approved:  decimal.Zero,
		notes:     "System error during processing",
		nextSteps: []string{"Claim flagged for manual review"},
	}, start)
}

func (p *Pipeline) record(req *domain.ClaimRequest, decision *domain.ClaimDecision, start time.Time) {
	if decision == nil {
		return
	}
	var amount float64
	if req != nil {
		amount = req.Amount.InexactFloat64()
	}
	p.recorder.RecordOutcome(domain.Outcome{
		Pipeline: domain.PipelineClaims,
		Status:   string(decision.Status),
		Amount:   amount,
		Duration: p.now().Sub(start),
	})
}
