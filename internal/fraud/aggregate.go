package fraud

import (
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/tables"
)

// AggregateResult holds the aggregated fraud score and its parts.
type AggregateResult struct {
	BaseScore  float64
	Multiplier float64
	Score      float64
	Triggered  int
}

// Aggregate sums the triggered contributions, scales the sum by the prior-claim
// multiplier and caps the result. The order sum, scale, cap is significant.
func Aggregate(factors []domain.RiskFactor, previousClaims int, multiplier, scoreCap float64) *AggregateResult {
	agg := &AggregateResult{
		Multiplier: 1 + multiplier*float64(previousClaims),
		Triggered:  len(factors),
	}

	for _, f := range factors {
		agg.BaseScore += f.Contribution
	}

	agg.Score = tables.Cap(agg.BaseScore*agg.Multiplier, scoreCap)
	return agg
}
