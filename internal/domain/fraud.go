package domain

import "time"

// FraudCheckRequest carries the claim attributes scored for fraud risk.
type FraudCheckRequest struct {
	ClaimID         string    `json:"claim_id"`
	PolicyID        string    `json:"policy_id"`
	Amount          float64   `json:"claim_amount"`
	ClaimType       ClaimType `json:"claim_type"`
	ClaimantAge     int       `json:"claimant_age"`
	ClaimDate       time.Time `json:"claim_date"`
	PolicyStartDate time.Time `json:"policy_start_date"`
	PreviousClaims  int       `json:"previous_claims"`
	Location        string    `json:"location"`
	DeviceIP        string    `json:"device_ip,omitempty"`
}

// DaysSincePolicyStart returns the whole days between policy start and claim date,
// floored so that a claim filed before the policy started counts as negative.
func (r *FraudCheckRequest) DaysSincePolicyStart() int64 {
	d := r.ClaimDate.Sub(r.PolicyStartDate)
	days := int64(d / (24 * time.Hour))
	if d < 0 && d%(24*time.Hour) != 0 {
		days--
	}
	return days
}

// FraudStatus is the fraud risk classification.
type FraudStatus string

const (
	FraudHighRisk   FraudStatus = "high_risk"
	FraudMediumRisk FraudStatus = "medium_risk"
	FraudLowRisk    FraudStatus = "low_risk"
)

// Confidence labels how many independent signals back a fraud classification.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// FraudDecision is the outcome of a fraud check.
type FraudDecision struct {
	ID          string       `json:"decision_id"`
	ClaimID     string       `json:"claim_id"`
	RiskScore   float64      `json:"risk_score"`
	RiskFactors []string     `json:"risk_factors"`
	Factors     []RiskFactor `json:"factors"`
	Status      FraudStatus  `json:"status"`
	Confidence  Confidence   `json:"confidence"`
	NextSteps   []string     `json:"next_steps"`
	Timestamp   time.Time    `json:"timestamp"`
}
