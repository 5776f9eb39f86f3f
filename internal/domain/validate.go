package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidRequest marks a request that fails structural validation.
var ErrInvalidRequest = errors.New("invalid request")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// Validate checks the structural constraints of a claim request.
// A future incident date is a domain rejection, not a validation error.
func (r *ClaimRequest) Validate() error {
	switch {
	case r.ClaimID == "":
		return invalid("claim_id is required")
	case r.PolicyID == "":
		return invalid("policy_id is required")
	case r.Amount.IsNegative():
		return invalid("claim_amount must not be negative")
	case !r.ClaimType.Valid():
		return invalid("unknown claim_type %q", r.ClaimType)
	case r.IncidentDate.IsZero():
		return invalid("incident_date is required")
	}
	return nil
}

// Validate checks the structural constraints of a fraud check request.
func (r *FraudCheckRequest) Validate() error {
	switch {
	case r.ClaimID == "":
		return invalid("claim_id is required")
	case r.PolicyID == "":
		return invalid("policy_id is required")
	case r.Amount < 0:
		return invalid("claim_amount must not be negative")
	case !r.ClaimType.Valid():
		return invalid("unknown claim_type %q", r.ClaimType)
	case r.ClaimantAge < 0:
		return invalid("claimant_age must not be negative")
	case r.PreviousClaims < 0:
		return invalid("previous_claims must not be negative")
	case r.ClaimDate.IsZero():
		return invalid("claim_date is required")
	case r.PolicyStartDate.IsZero():
		return invalid("policy_start_date is required")
	}
	return nil
}

// Validate checks the structural constraints of an underwriting request.
func (r *UnderwritingRequest) Validate() error {
	switch {
	case r.PolicyID == "":
		return invalid("policy_id is required")
	case r.CustomerID == "":
		return invalid("customer_id is required")
	case !r.PolicyType.Valid():
		return invalid("unknown policy_type %q", r.PolicyType)
	case r.CoverageAmount < 0:
		return invalid("coverage_amount must not be negative")
	case r.CustomerAge < 0:
		return invalid("customer_age must not be negative")
	case r.CreditScore != nil && (*r.CreditScore < MinCreditScore || *r.CreditScore > MaxCreditScore):
		return invalid("credit_score must be between %d and %d", MinCreditScore, MaxCreditScore)
	}
	return nil
}
