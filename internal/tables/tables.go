// Package tables holds the static reference data the decision pipelines consult:
// document requirements, amount ranges, fraud factor rules, occupation and credit
// risk, age steps, category weights and classification thresholds.
//
// Tables are parsed once, validated, and never mutated afterwards, so a single
// *Tables may be shared by any number of concurrent evaluations.
package tables

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/opensource-finance/kestrel/internal/domain"
)

//go:embed default.yaml
var defaultYAML []byte

// ErrInvalidTables is returned when a tables file fails validation.
var ErrInvalidTables = errors.New("invalid reference tables")

// Tables is the root of the reference data.
type Tables struct {
	Version      string             `yaml:"version" json:"version"`
	Claims       ClaimTables        `yaml:"claims" json:"claims"`
	Fraud        FraudTables        `yaml:"fraud" json:"fraud"`
	Underwriting UnderwritingTables `yaml:"underwriting" json:"underwriting"`
}

// ClaimTables drive the claims gate chain.
type ClaimTables struct {
	AutoApprovalLimit float64                        `yaml:"auto_approval_limit" json:"autoApprovalLimit"`
	Documents         map[string]DocumentRequirement `yaml:"documents" json:"documents"`
	AmountRanges      map[string]AmountRange         `yaml:"amount_ranges" json:"amountRanges"`
}

// DocumentRequirement lists the documents expected for a claim type.
type DocumentRequirement struct {
	Required []string `yaml:"required" json:"required"`
	Optional []string `yaml:"optional" json:"optional"`
}

// AmountRange is the typical claim amount band for a claim type.
// A nil Max means the band is unbounded above.
type AmountRange struct {
	Min float64  `yaml:"min" json:"min"`
	Max *float64 `yaml:"max" json:"max,omitempty"`
}

// FraudTables drive the fraud factor rules and classifier.
type FraudTables struct {
	HighRiskLocations    []string                        `yaml:"high_risk_locations" json:"highRiskLocations"`
	PriorClaimMultiplier float64                         `yaml:"prior_claim_multiplier" json:"priorClaimMultiplier"`
	ScoreCap             float64                         `yaml:"score_cap" json:"scoreCap"`
	Factors              []FactorRule                    `yaml:"factors" json:"factors"`
	StatusThresholds     FraudStatusThresholds           `yaml:"status_thresholds" json:"statusThresholds"`
	ConfidenceThresholds ConfidenceThresholds            `yaml:"confidence_thresholds" json:"confidenceThresholds"`
	NextSteps            map[domain.FraudStatus][]string `yaml:"next_steps" json:"nextSteps"`
}

// FactorRule is a fraud factor: when Condition (a CEL expression) holds,
// Contribution is added to the base score under Label.
type FactorRule struct {
	ID           string  `yaml:"id" json:"id"`
	Label        string  `yaml:"label" json:"label"`
	Condition    string  `yaml:"condition" json:"condition"`
	Contribution float64 `yaml:"contribution" json:"contribution"`
}

// FraudStatusThresholds are exclusive lower bounds for each status.
type FraudStatusThresholds struct {
	HighRisk   float64 `yaml:"high_risk" json:"highRisk"`
	MediumRisk float64 `yaml:"medium_risk" json:"mediumRisk"`
}

// ConfidenceThresholds are exclusive lower bounds on the triggered factor count.
type ConfidenceThresholds struct {
	High   int `yaml:"high" json:"high"`
	Medium int `yaml:"medium" json:"medium"`
}

// UnderwritingTables drive the underwriting factors, aggregator and classifier.
type UnderwritingTables struct {
	ScoreCap              float64              `yaml:"score_cap" json:"scoreCap"`
	AgeRisk               map[string][]AgeStep `yaml:"age_risk" json:"ageRisk"`
	HighCoverage          HighCoverageRule     `yaml:"high_coverage" json:"highCoverage"`
	DefaultOccupationRisk float64              `yaml:"default_occupation_risk" json:"defaultOccupationRisk"`
	Occupations           map[string]float64   `yaml:"occupations" json:"occupations"`
	CreditBands           []CreditBand         `yaml:"credit_bands" json:"creditBands"`
	DefaultCreditRisk     float64              `yaml:"default_credit_risk" json:"defaultCreditRisk"`
	Weights               []CategoryWeight     `yaml:"weights" json:"weights"`
	RiskLevels            []RiskLevelBand      `yaml:"risk_levels" json:"riskLevels"`
	Confidence            AssessmentConfidence `yaml:"confidence" json:"confidence"`
}

// AgeStep adds Score when the customer is strictly older than Over.
type AgeStep struct {
	Over  int     `yaml:"over" json:"over"`
	Score float64 `yaml:"score" json:"score"`
}

// HighCoverageRule flags coverage strictly above Threshold.
type HighCoverageRule struct {
	Label     string  `yaml:"label" json:"label"`
	Threshold float64 `yaml:"threshold" json:"threshold"`
	Score     float64 `yaml:"score" json:"score"`
}

// CreditBand applies Score to credit scores of at least Min.
type CreditBand struct {
	Min   int     `yaml:"min" json:"min"`
	Score float64 `yaml:"score" json:"score"`
}

// CategoryWeight is one raw weight in the positional weight vector.
type CategoryWeight struct {
	Category string  `yaml:"category" json:"category"`
	Weight   float64 `yaml:"weight" json:"weight"`
}

// RiskLevelBand maps scores of at least MinScore to a risk level.
type RiskLevelBand struct {
	Level           domain.RiskLevel `yaml:"level" json:"level"`
	MinScore        float64          `yaml:"min_score" json:"minScore"`
	PremiumModifier float64          `yaml:"premium_modifier" json:"premiumModifier"`
	Action          string           `yaml:"action" json:"action"`
}

// AssessmentConfidence marks scores outside (HighBelow, HighAbove) as high confidence.
type AssessmentConfidence struct {
	HighAbove float64 `yaml:"high_above" json:"highAbove"`
	HighBelow float64 `yaml:"high_below" json:"highBelow"`
}

// Default returns the embedded reference tables.
func Default() (*Tables, error) {
	return Parse(defaultYAML)
}

// Load reads reference tables from a YAML file. An empty path loads the defaults.
func Load(path string) (*Tables, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tables: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates reference tables.
func Parse(data []byte) (*Tables, error) {
	var t Tables
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse tables: %w", err)
	}
	t.normalize()
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Marshal renders the tables back to YAML.
func (t *Tables) Marshal() ([]byte, error) {
	return yaml.Marshal(t)
}

// normalize lower-cases occupation keys and orders bands highest first.
func (t *Tables) normalize() {
	occupations := make(map[string]float64, len(t.Underwriting.Occupations))
	for k, v := range t.Underwriting.Occupations {
		occupations[strings.ToLower(strings.TrimSpace(k))] = v
	}
	t.Underwriting.Occupations = occupations

	sort.SliceStable(t.Underwriting.CreditBands, func(i, j int) bool {
		return t.Underwriting.CreditBands[i].Min > t.Underwriting.CreditBands[j].Min
	})
	sort.SliceStable(t.Underwriting.RiskLevels, func(i, j int) bool {
		return t.Underwriting.RiskLevels[i].MinScore > t.Underwriting.RiskLevels[j].MinScore
	})
	for policyType, steps := range t.Underwriting.AgeRisk {
		sort.SliceStable(steps, func(i, j int) bool { return steps[i].Over > steps[j].Over })
		t.Underwriting.AgeRisk[policyType] = steps
	}
}

// Validate checks the invariants the pipelines rely on.
func (t *Tables) Validate() error {
	var errs []error

	if t.Claims.AutoApprovalLimit < 0 {
		errs = append(errs, errors.New("claims.auto_approval_limit must not be negative"))
	}
	for claimType, r := range t.Claims.AmountRanges {
		if r.Max != nil && *r.Max < r.Min {
			errs = append(errs, fmt.Errorf("claims.amount_ranges.%s: max below min", claimType))
		}
	}

	if len(t.Fraud.Factors) == 0 {
		errs = append(errs, errors.New("fraud.factors must not be empty"))
	}
	seen := make(map[string]bool, len(t.Fraud.Factors))
	for i, f := range t.Fraud.Factors {
		if f.ID == "" || f.Label == "" || f.Condition == "" {
			errs = append(errs, fmt.Errorf("fraud.factors[%d]: id, label and condition are required", i))
		}
		if seen[f.ID] {
			errs = append(errs, fmt.Errorf("fraud.factors[%d]: duplicate id %q", i, f.ID))
		}
		seen[f.ID] = true
		if f.Contribution < 0 {
			errs = append(errs, fmt.Errorf("fraud.factors[%d]: contribution must not be negative", i))
		}
	}
	if t.Fraud.ScoreCap <= 0 {
		errs = append(errs, errors.New("fraud.score_cap must be positive"))
	}
	if t.Fraud.PriorClaimMultiplier < 0 {
		errs = append(errs, errors.New("fraud.prior_claim_multiplier must not be negative"))
	}
	if t.Fraud.StatusThresholds.HighRisk < t.Fraud.StatusThresholds.MediumRisk {
		errs = append(errs, errors.New("fraud.status_thresholds: high_risk below medium_risk"))
	}

	uw := t.Underwriting
	if uw.ScoreCap <= 0 {
		errs = append(errs, errors.New("underwriting.score_cap must be positive"))
	}
	var weightSum float64
	for i, w := range uw.Weights {
		if w.Weight < 0 {
			errs = append(errs, fmt.Errorf("underwriting.weights[%d]: weight must not be negative", i))
		}
		weightSum += w.Weight
	}
	if weightSum <= 0 {
		errs = append(errs, errors.New("underwriting.weights must sum to a positive value"))
	}
	if len(uw.RiskLevels) == 0 {
		errs = append(errs, errors.New("underwriting.risk_levels must not be empty"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidTables, errors.Join(errs...))
	}
	return nil
}

// RequiredDocuments returns the required document names for a claim type,
// in table order. Unknown claim types require no documents.
func (t *Tables) RequiredDocuments(claimType domain.ClaimType) []string {
	return t.Claims.Documents[string(claimType)].Required
}

// AmountBand is a resolved amount range in money terms.
type AmountBand struct {
	Min       decimal.Decimal
	Max       decimal.Decimal
	Unbounded bool
}

// AmountRange returns the typical amount band for a claim type.
// Unknown claim types get [0, +inf).
func (t *Tables) AmountRange(claimType domain.ClaimType) AmountBand {
	r, ok := t.Claims.AmountRanges[string(claimType)]
	if !ok {
		return AmountBand{Min: decimal.Zero, Unbounded: true}
	}
	band := AmountBand{Min: decimal.NewFromFloat(r.Min), Unbounded: r.Max == nil}
	if r.Max != nil {
		band.Max = decimal.NewFromFloat(*r.Max)
	}
	return band
}

// AutoApprovalLimit is the largest amount the claims pipeline approves unattended.
func (t *Tables) AutoApprovalLimit() decimal.Decimal {
	return decimal.NewFromFloat(t.Claims.AutoApprovalLimit)
}

// IsHighRiskLocation reports whether a location code is on the blocklist.
func (t *Tables) IsHighRiskLocation(code string) bool {
	for _, l := range t.Fraud.HighRiskLocations {
		if l == code {
			return true
		}
	}
	return false
}

// FraudNextSteps returns the recommended actions for a fraud status.
func (t *Tables) FraudNextSteps(status domain.FraudStatus) []string {
	steps := t.Fraud.NextSteps[status]
	out := make([]string, len(steps))
	copy(out, steps)
	return out
}

// AgeRisk returns the age step score for a policy type; types without steps score 0.
func (t *Tables) AgeRisk(age int, policyType domain.PolicyType) float64 {
	for _, step := range t.Underwriting.AgeRisk[string(policyType)] {
		if age > step.Over {
			return step.Score
		}
	}
	return 0
}

// OccupationRisk looks up an occupation case-insensitively, defaulting for unknown ones.
func (t *Tables) OccupationRisk(occupation string) float64 {
	if score, ok := t.Underwriting.Occupations[strings.ToLower(strings.TrimSpace(occupation))]; ok {
		return score
	}
	return t.Underwriting.DefaultOccupationRisk
}

// CreditRisk returns the band score for a credit score.
func (t *Tables) CreditRisk(creditScore int) float64 {
	for _, band := range t.Underwriting.CreditBands {
		if creditScore >= band.Min {
			return band.Score
		}
	}
	return t.Underwriting.DefaultCreditRisk
}

// NormalizedWeights returns the category weights scaled to sum to 1, in table order.
func (t *Tables) NormalizedWeights() []float64 {
	var sum float64
	for _, w := range t.Underwriting.Weights {
		sum += w.Weight
	}
	weights := make([]float64, len(t.Underwriting.Weights))
	if sum == 0 {
		return weights
	}
	for i, w := range t.Underwriting.Weights {
		weights[i] = w.Weight / sum
	}
	return weights
}

// RiskLevelFor returns the first band whose lower bound the score reaches,
// checking highest first. Scores below every band get the lowest band.
func (t *Tables) RiskLevelFor(score float64) RiskLevelBand {
	levels := t.Underwriting.RiskLevels
	for _, band := range levels {
		if score >= band.MinScore {
			return band
		}
	}
	return levels[len(levels)-1]
}

// AssessmentConfidence labels an underwriting score HIGH when it is far from the middle.
func (t *Tables) AssessmentConfidence(score float64) string {
	c := t.Underwriting.Confidence
	if score > c.HighAbove || score < c.HighBelow {
		return "HIGH"
	}
	return "MEDIUM"
}

// Cap bounds a score to [0, limit].
func Cap(score, limit float64) float64 {
	return math.Max(0, math.Min(limit, score))
}
