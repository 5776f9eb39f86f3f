package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PolicyDataProvider supplies policy status and coverage facts to the claims pipeline.
// Implementations may be slow or fail; callers never retry.
type PolicyDataProvider interface {
	// IsActive reports whether the policy is in force.
	IsActive(ctx context.Context, policyID string) (bool, error)

	// VerifyCoverage reports whether the policy covers the claimed amount.
	VerifyCoverage(ctx context.Context, policyID string, amount decimal.Decimal) (*CoverageResult, error)
}

// CoverageResult is the answer to a coverage check.
type CoverageResult struct {
	Covered bool   `json:"covered"`
	Reason  string `json:"reason"`
}

// Payment statuses tracked on a policy record.
const (
	PaymentCurrent   = "current"
	PaymentOverdue   = "overdue"
	PaymentCancelled = "cancelled"
)

// MaxDaysSinceLastPayment is the payment recency a policy needs to stay active.
const MaxDaysSinceLastPayment = 30

// PolicyRecord is the stored view of a policy used to answer provider queries.
type PolicyRecord struct {
	ID              string          `json:"id"`
	PaymentStatus   string          `json:"payment_status"`
	ExpiryDate      time.Time       `json:"expiry_date"`
	LastPaymentDate time.Time       `json:"last_payment_date"`
	Restrictions    []string        `json:"restrictions,omitempty"`
	CoverageLimit   decimal.Decimal `json:"coverage_limit"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Active reports whether the policy is in force at now: payments current,
// not expired, unrestricted, and paid within the last 30 days.
func (p *PolicyRecord) Active(now time.Time) bool {
	if p.PaymentStatus != PaymentCurrent {
		return false
	}
	if !p.ExpiryDate.After(now) {
		return false
	}
	if len(p.Restrictions) > 0 {
		return false
	}
	daysSincePayment := int(now.Sub(p.LastPaymentDate) / (24 * time.Hour))
	return daysSincePayment < MaxDaysSinceLastPayment
}

// Covers checks amount against the record's limit, falling back to defaultLimit
// when the record carries none.
func (p *PolicyRecord) Covers(amount, defaultLimit decimal.Decimal) *CoverageResult {
	limit := p.CoverageLimit
	if limit.IsZero() {
		limit = defaultLimit
	}
	return CoverageFor(amount, limit)
}

// CoverageFor compares amount against a ceiling.
func CoverageFor(amount, limit decimal.Decimal) *CoverageResult {
	if amount.GreaterThan(limit) {
		return &CoverageResult{Covered: false, Reason: "Amount exceeds policy limit"}
	}
	return &CoverageResult{Covered: true, Reason: "Within policy limits"}
}
