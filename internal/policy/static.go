// Package policy implements the policy data providers consulted by the claims pipeline.
package policy

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// StaticProvider answers every query from a simulated in-force policy: payments
// current, expiring in 180 days, unrestricted, last paid 15 days ago, with a
// fixed coverage ceiling.
type StaticProvider struct {
	ceiling decimal.Decimal
	now     func() time.Time
}

// NewStaticProvider creates a static provider. A non-positive ceiling uses the default.
func NewStaticProvider(ceiling decimal.Decimal) *StaticProvider {
	if !ceiling.IsPositive() {
		ceiling = decimal.NewFromInt(domain.DefaultCoverageCeiling)
	}
	return &StaticProvider{ceiling: ceiling, now: time.Now}
}

func (p *StaticProvider) record(policyID string) *domain.PolicyRecord {
	now := p.now().UTC()
	return &domain.PolicyRecord{
		ID:              policyID,
		PaymentStatus:   domain.PaymentCurrent,
		ExpiryDate:      now.AddDate(0, 0, 180),
		LastPaymentDate: now.AddDate(0, 0, -15),
		CoverageLimit:   p.ceiling,
	}
}

// IsActive implements domain.PolicyDataProvider.
func (p *StaticProvider) IsActive(_ context.Context, policyID string) (bool, error) {
	return p.record(policyID).Active(p.now()), nil
}

// VerifyCoverage implements domain.PolicyDataProvider.
func (p *StaticProvider) VerifyCoverage(_ context.Context, _ string, amount decimal.Decimal) (*domain.CoverageResult, error) {
	return domain.CoverageFor(amount, p.ceiling), nil
}

var _ domain.PolicyDataProvider = (*StaticProvider)(nil)
