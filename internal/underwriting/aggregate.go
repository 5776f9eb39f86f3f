package underwriting

import (
	"errors"

	"github.com/opensource-finance/kestrel/internal/tables"
)

// ErrNoWeights is returned when the weight vector cannot be normalised.
var ErrNoWeights = errors.New("underwriting weights must sum to a positive value")

// Aggregate pairs scores with normalised weights by position and caps the sum.
//
// Pairing is positional, not by category: the i-th computed score takes the
// i-th weight, and trailing weights without a score are unused.
func Aggregate(scores, weights []float64, scoreCap float64) (float64, error) {
	var sum float64
	for _, w := range weights {
		sum += w
	}
	if sum <= 0 {
		return 0, ErrNoWeights
	}

	n := min(len(scores), len(weights))
	var total float64
	for i := 0; i < n; i++ {
		total += scores[i] * (weights[i] / sum)
	}

	return tables.Cap(total, scoreCap), nil
}
