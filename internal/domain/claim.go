package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ClaimType is the line of business a claim is filed under.
type ClaimType string

const (
	ClaimTypeAuto     ClaimType = "auto"
	ClaimTypeHealth   ClaimType = "health"
	ClaimTypeProperty ClaimType = "property"
	ClaimTypeLife     ClaimType = "life"
	ClaimTypeOther    ClaimType = "other"
)

// Valid reports whether t is one of the known claim types.
func (t ClaimType) Valid() bool {
	switch t {
	case ClaimTypeAuto, ClaimTypeHealth, ClaimTypeProperty, ClaimTypeLife, ClaimTypeOther:
		return true
	}
	return false
}

// ClaimRequest is a claim submitted for admissibility and approval.
type ClaimRequest struct {
	ClaimID             string            `json:"claim_id"`
	PolicyID            string            `json:"policy_id"`
	Amount              decimal.Decimal   `json:"claim_amount"`
	IncidentDate        time.Time         `json:"incident_date"`
	ClaimType           ClaimType         `json:"claim_type"`
	Description         string            `json:"description"`
	SupportingDocuments []string          `json:"supporting_documents"`
	ClaimantInfo        map[string]string `json:"claimant_info,omitempty"`
}

// ClaimStatus is the terminal status of the claims pipeline.
type ClaimStatus string

const (
	ClaimRejected    ClaimStatus = "rejected"
	ClaimUnderReview ClaimStatus = "under_review"
	ClaimPending     ClaimStatus = "pending"
	ClaimApproved    ClaimStatus = "approved"
	ClaimInReview    ClaimStatus = "in_review"
	ClaimError       ClaimStatus = "error"
)

// ClaimDecision is the outcome of processing a single claim.
type ClaimDecision struct {
	ID             string          `json:"decision_id"`
	ClaimID        string          `json:"claim_id"`
	Status         ClaimStatus     `json:"status"`
	ApprovedAmount decimal.Decimal `json:"approved_amount"`
	Reasons        []string        `json:"reasons,omitempty"`
	Notes          string          `json:"processing_notes,omitempty"`
	NextSteps      []string        `json:"next_steps"`
	ProcessingTime float64         `json:"processing_time"` // seconds
	Timestamp      time.Time       `json:"timestamp"`
}
