package underwriting

import (
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/tables"
)

// Classify maps a composite score to its risk level detail.
func Classify(score float64, t *tables.Tables) domain.RiskAssessment {
	band := t.RiskLevelFor(score)
	return domain.RiskAssessment{
		RiskLevel:            band.Level,
		RecommendedAction:    band.Action,
		PremiumModifier:      band.PremiumModifier,
		NumericalScore:       score,
		AssessmentConfidence: t.AssessmentConfidence(score),
	}
}
