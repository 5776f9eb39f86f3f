package fraud

import (
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/tables"
)

// Classify maps a composite score to a fraud status.
func Classify(score float64, th tables.FraudStatusThresholds) domain.FraudStatus {
	switch {
	case score > th.HighRisk:
		return domain.FraudHighRisk
	case score > th.MediumRisk:
		return domain.FraudMediumRisk
	default:
		return domain.FraudLowRisk
	}
}

// ConfidenceFor labels a classification by the number of triggered factors.
func ConfidenceFor(triggered int, th tables.ConfidenceThresholds) domain.Confidence {
	switch {
	case triggered > th.High:
		return domain.ConfidenceHigh
	case triggered > th.Medium:
		return domain.ConfidenceMedium
	default:
		return domain.ConfidenceLow
	}
}
