package domain

import "time"

// PolicyType is the product an underwriting request is priced for.
type PolicyType string

const (
	PolicyTypeLife     PolicyType = "life"
	PolicyTypeHealth   PolicyType = "health"
	PolicyTypeAuto     PolicyType = "auto"
	PolicyTypeProperty PolicyType = "property"
)

// Valid reports whether t is one of the known policy types.
func (t PolicyType) Valid() bool {
	switch t {
	case PolicyTypeLife, PolicyTypeHealth, PolicyTypeAuto, PolicyTypeProperty:
		return true
	}
	return false
}

// Credit score bounds accepted on underwriting requests.
const (
	MinCreditScore = 300
	MaxCreditScore = 850
)

// UnderwritingRequest describes an applicant and the cover requested.
type UnderwritingRequest struct {
	PolicyID       string     `json:"policy_id"`
	CustomerID     string     `json:"customer_id"`
	PolicyType     PolicyType `json:"policy_type"`
	CoverageAmount float64    `json:"coverage_amount"`
	CustomerAge    int        `json:"customer_age"`
	Occupation     string     `json:"occupation"`
	MedicalHistory []string   `json:"medical_history,omitempty"`
	CreditScore    *int       `json:"credit_score,omitempty"`
}

// RiskLevel is the underwriting risk tier.
type RiskLevel string

const (
	RiskCritical RiskLevel = "CRITICAL"
	RiskHigh     RiskLevel = "HIGH"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskLow      RiskLevel = "LOW"
	RiskMinimal  RiskLevel = "MINIMAL"
)

// RiskAssessment details the tier an underwriting score falls into.
type RiskAssessment struct {
	RiskLevel            RiskLevel `json:"risk_level"`
	RecommendedAction    string    `json:"recommended_action"`
	PremiumModifier      float64   `json:"premium_modifier"`
	NumericalScore       float64   `json:"numerical_score"`
	AssessmentConfidence string    `json:"assessment_confidence"`
}

// RiskDecision is the outcome of an underwriting assessment.
type RiskDecision struct {
	ID             string         `json:"decision_id"`
	PolicyID       string         `json:"policy_id"`
	RiskScore      float64        `json:"risk_score"`
	RiskFactors    []string       `json:"risk_factors"`
	Factors        []RiskFactor   `json:"factors"`
	RiskLevel      RiskAssessment `json:"risk_level"`
	NextSteps      []string       `json:"next_steps"`
	AssessmentDate time.Time      `json:"assessment_date"`
}
