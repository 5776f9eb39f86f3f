// Package rules provides the CEL-Go based factor rule engine used by fraud scoring.
package rules

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/tables"
)

// Engine evaluates fraud factor rules compiled from the reference tables.
type Engine struct {
	mu         sync.RWMutex
	env        *cel.Env
	compiled   []*CompiledRule
	locations  []string
	maxWorkers int
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Rule    tables.FactorRule
	Program cel.Program
}

// NewEngine creates a factor rule engine.
func NewEngine(maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	env, err := cel.NewEnv(
		cel.Variable("days_since_policy_start", cel.IntType),
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("previous_claims", cel.IntType),
		cel.Variable("claimant_age", cel.IntType),
		cel.Variable("location", cel.StringType),
		cel.Variable("claim_type", cel.StringType),
		cel.Variable("device_ip", cel.StringType),
		cel.Variable("high_risk_locations", cel.ListType(cel.StringType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:        env,
		maxWorkers: maxWorkers,
	}, nil
}

// NewEngineFromTables creates an engine loaded with the fraud factors of t.
func NewEngineFromTables(t *tables.Tables, maxWorkers int) (*Engine, error) {
	e, err := NewEngine(maxWorkers)
	if err != nil {
		return nil, err
	}
	if err := e.Load(t.Fraud.Factors, t.Fraud.HighRiskLocations); err != nil {
		return nil, err
	}
	return e, nil
}

// Validate compiles a rule without loading it.
func (e *Engine) Validate(rule tables.FactorRule) error {
	_, err := e.compile(rule)
	return err
}

// Load replaces the loaded rules. Rules keep their table order.
func (e *Engine) Load(factorRules []tables.FactorRule, highRiskLocations []string) error {
	compiled := make([]*CompiledRule, 0, len(factorRules))
	for _, r := range factorRules {
		c, err := e.compile(r)
		if err != nil {
			return err
		}
		compiled = append(compiled, c)
	}

	locations := make([]string, len(highRiskLocations))
	copy(locations, highRiskLocations)

	e.mu.Lock()
	e.compiled = compiled
	e.locations = locations
	e.mu.Unlock()
	return nil
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiled)
}

// Result is the outcome of one factor rule.
type Result struct {
	RuleID    string
	Triggered bool
	Factor    domain.RiskFactor
}

// Evaluate runs every loaded rule against req in parallel and returns the
// results in rule order. Any evaluation failure fails the whole call.
func (e *Engine) Evaluate(ctx context.Context, req *domain.FraudCheckRequest) ([]Result, error) {
	e.mu.RLock()
	compiled := e.compiled
	locations := e.locations
	e.mu.RUnlock()

	if len(compiled) == 0 {
		return nil, nil
	}

	activation := map[string]any{
		"days_since_policy_start": req.DaysSincePolicyStart(),
		"amount":                  req.Amount,
		"previous_claims":         int64(req.PreviousClaims),
		"claimant_age":            int64(req.ClaimantAge),
		"location":                req.Location,
		"claim_type":              string(req.ClaimType),
		"device_ip":               req.DeviceIP,
		"high_risk_locations":     locations,
	}

	results := make([]Result, len(compiled))
	errs := make([]error, len(compiled))
	var wg sync.WaitGroup

	sem := make(chan struct{}, e.maxWorkers)

	for i, rule := range compiled {
		wg.Add(1)
		go func(idx int, r *CompiledRule) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				errs[idx] = ctx.Err()
				return
			}
			defer func() { <-sem }()

			results[idx], errs[idx] = evaluateRule(r, activation)
		}(i, rule)
	}

	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return results, nil
}

func evaluateRule(rule *CompiledRule, activation map[string]any) (Result, error) {
	result := Result{
		RuleID: rule.Rule.ID,
		Factor: domain.RiskFactor{Label: rule.Rule.Label, Contribution: rule.Rule.Contribution},
	}

	out, _, err := rule.Program.Eval(activation)
	if err != nil {
		return result, fmt.Errorf("rule %s: evaluation error: %w", rule.Rule.ID, err)
	}

	b, ok := out.(types.Bool)
	if !ok {
		return result, fmt.Errorf("rule %s: expected bool result, got %s", rule.Rule.ID, out.Type())
	}
	result.Triggered = bool(b)
	return result, nil
}

func (e *Engine) compile(rule tables.FactorRule) (*CompiledRule, error) {
	ast, issues := e.env.Compile(rule.Condition)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", rule.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", rule.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", rule.ID, err)
	}

	return &CompiledRule{Rule: rule, Program: program}, nil
}

// Triggered returns the factors of the triggered results, in order.
func Triggered(results []Result) []domain.RiskFactor {
	factors := make([]domain.RiskFactor, 0, len(results))
	for _, r := range results {
		if r.Triggered {
			factors = append(factors, r.Factor)
		}
	}
	return factors
}
