package underwriting

import (
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/tables"
)

// Factor labels for the scores that are always computed.
const (
	LabelAgeRisk        = "Age Risk"
	LabelOccupationRisk = "Occupation Risk"
	LabelCreditRisk     = "Credit Risk"
)

// Scores holds the computed factor scores in computation order, plus the
// labels of the factors that count as flagged risks.
type Scores struct {
	Factors []domain.RiskFactor
	Flagged []string
}

// Values returns the raw scores in computation order.
func (s *Scores) Values() []float64 {
	values := make([]float64, len(s.Factors))
	for i, f := range s.Factors {
		values[i] = f.Contribution
	}
	return values
}

// ComputeScores derives the underwriting factor scores in the canonical order:
// age, high coverage (only when flagged), occupation, credit (only when given).
func ComputeScores(req *domain.UnderwritingRequest, t *tables.Tables) *Scores {
	s := &Scores{Factors: make([]domain.RiskFactor, 0, 4)}

	s.Factors = append(s.Factors, domain.RiskFactor{
		Label:        LabelAgeRisk,
		Contribution: t.AgeRisk(req.CustomerAge, req.PolicyType),
	})

	hc := t.Underwriting.HighCoverage
	if req.CoverageAmount > hc.Threshold {
		s.Factors = append(s.Factors, domain.RiskFactor{Label: hc.Label, Contribution: hc.Score})
		s.Flagged = append(s.Flagged, hc.Label)
	}

	s.Factors = append(s.Factors, domain.RiskFactor{
		Label:        LabelOccupationRisk,
		Contribution: t.OccupationRisk(req.Occupation),
	})

	if req.CreditScore != nil {
		s.Factors = append(s.Factors, domain.RiskFactor{
			Label:        LabelCreditRisk,
			Contribution: t.CreditRisk(*req.CreditScore),
		})
	}

	return s
}
