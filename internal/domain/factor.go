package domain

// RiskFactor is a single named contribution to a composite risk score.
type RiskFactor struct {
	Label        string  `json:"label"`
	Contribution float64 `json:"contribution"`
}

// Labels returns the factor labels in order.
func Labels(factors []RiskFactor) []string {
	labels := make([]string, 0, len(factors))
	for _, f := range factors {
		labels = append(labels, f.Label)
	}
	return labels
}
