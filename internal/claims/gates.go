package claims

import (
	"context"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Rejection reasons reported by the validation phase, in check order.
const (
	ReasonPolicyInactive        = "Policy not active"
	ReasonInvalidIncidentDate   = "Invalid incident date"
	ReasonInsufficientDocuments = "Insufficient supporting documents"
)

// verdict is a terminal outcome produced by a gate.
type verdict struct {
	status    domain.ClaimStatus
	approved  decimal.Decimal
	reasons   []string
	notes     string
	nextSteps []string
}

// gate inspects a claim and returns a verdict to stop the chain, or nil to continue.
type gate func(ctx context.Context, p *Pipeline, req *domain.ClaimRequest) (*verdict, error)

// chain is the fixed gate order. The first gate that returns a verdict wins.
var chain = []gate{
	validateGate,
	coverageGate,
	amountRangeGate,
	documentContentGate,
	autoApprovalGate,
}

// validateGate runs the three admissibility checks and collects every failure.
// Document sufficiency compares only the number of supplied ids with the
// number of required document names.
func validateGate(ctx context.Context, p *Pipeline, req *domain.ClaimRequest) (*verdict, error) {
	var reasons []string

	active, err := p.provider.IsActive(ctx, req.PolicyID)
	if err != nil {
		return nil, fmt.Errorf("check policy %s active: %w", req.PolicyID, err)
	}
	if !active {
		reasons = append(reasons, ReasonPolicyInactive)
	}

	if req.IncidentDate.After(p.now()) {
		reasons = append(reasons, ReasonInvalidIncidentDate)
	}

	if len(req.SupportingDocuments) < len(p.tables.RequiredDocuments(req.ClaimType)) {
		reasons = append(reasons, ReasonInsufficientDocuments)
	}

	if len(reasons) == 0 {
		return nil, nil
	}
	return &verdict{
		status:    domain.ClaimRejected,
		approved:  decimal.Zero,
		reasons:   reasons,
		nextSteps: []string{},
	}, nil
}

func coverageGate(ctx context.Context, p *Pipeline, req *domain.ClaimRequest) (*verdict, error) {
	coverage, err := p.provider.VerifyCoverage(ctx, req.PolicyID, req.Amount)
	if err != nil {
		return nil, fmt.Errorf("verify coverage for policy %s: %w", req.PolicyID, err)
	}
	if coverage == nil {
		return nil, fmt.Errorf("verify coverage for policy %s: empty result", req.PolicyID)
	}
	if coverage.Covered {
		return nil, nil
	}
	return &verdict{
		status:    domain.ClaimRejected,
		approved:  decimal.Zero,
		notes:     "Policy coverage insufficient: " + coverage.Reason,
		nextSteps: []string{"Contact customer service for coverage details"},
	}, nil
}

// amountRangeGate sends amounts outside the typical band to review, suggesting
// the nearest bound as the approved amount.
func amountRangeGate(_ context.Context, p *Pipeline, req *domain.ClaimRequest) (*verdict, error) {
	band := p.tables.AmountRange(req.ClaimType)

	var suggested decimal.Decimal
	var reason string
	switch {
	case req.Amount.LessThan(band.Min):
		suggested, reason = band.Min, "Amount below typical range"
	case !band.Unbounded && req.Amount.GreaterThan(band.Max):
		suggested, reason = band.Max, "Amount above typical range"
	default:
		return nil, nil
	}

	return &verdict{
		status:    domain.ClaimUnderReview,
		approved:  suggested,
		notes:     "Amount requires review: " + reason,
		nextSteps: []string{"Submit additional documentation", "Await adjuster review"},
	}, nil
}

// documentContentGate checks that every required document name was supplied.
func documentContentGate(_ context.Context, p *Pipeline, req *domain.ClaimRequest) (*verdict, error) {
	missing := MissingDocuments(p.tables.RequiredDocuments(req.ClaimType), req.SupportingDocuments)
	if len(missing) == 0 {
		return nil, nil
	}
	return &verdict{
		status:    domain.ClaimPending,
		approved:  decimal.Zero,
		notes:     "Missing required documentation",
		nextSteps: missing,
	}, nil
}

// autoApprovalGate runs after the document gate, so documents are complete here.
func autoApprovalGate(_ context.Context, p *Pipeline, req *domain.ClaimRequest) (*verdict, error) {
	if req.Amount.GreaterThan(p.tables.AutoApprovalLimit()) {
		return nil, nil
	}
	return &verdict{
		status:    domain.ClaimApproved,
		approved:  req.Amount,
		notes:     "Auto-approved based on amount and complete documentation",
		nextSteps: []string{"Process payment", "Send confirmation to customer"},
	}, nil
}

func inReview() *verdict {
	return &verdict{
		status:   domain.ClaimInReview,
		approved: decimal.Zero,
		notes:    "Claim under standard review process",
		nextSteps: []string{
			"Adjuster assignment",
			"Documentation review",
			"Customer contact if needed",
		},
	}
}

// MissingDocuments returns the required names absent from supplied, in required order.
func MissingDocuments(required, supplied []string) []string {
	missing := make([]string, 0, len(required))
	for _, doc := range required {
		if !slices.Contains(supplied, doc) {
			missing = append(missing, doc)
		}
	}
	return missing
}
