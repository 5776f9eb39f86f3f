package domain

import "time"

// Pipeline names used for metrics labels and bus topics.
const (
	PipelineClaims       = "claims"
	PipelineFraud        = "fraud"
	PipelineUnderwriting = "underwriting"
)

// Outcome summarises one pipeline invocation for observability.
type Outcome struct {
	Pipeline string
	Status   string
	Score    float64
	Scored   bool    // false for the claims pipeline, which has no composite score
	Amount   float64 // claimed amount, claims pipeline only
	Duration time.Duration
}

// OutcomeRecorder collects pipeline outcomes. Recording is fire-and-forget.
type OutcomeRecorder interface {
	RecordOutcome(o Outcome)
}

// NopRecorder discards outcomes.
type NopRecorder struct{}

// RecordOutcome implements OutcomeRecorder.
func (NopRecorder) RecordOutcome(Outcome) {}
