package rules

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/tables"
)

func baseRequest() *domain.FraudCheckRequest {
	claimDate := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	return &domain.FraudCheckRequest{
		ClaimID:         "CLM-001",
		PolicyID:        "POL-001",
		Amount:          1200,
		ClaimType:       domain.ClaimTypeAuto,
		ClaimantAge:     40,
		ClaimDate:       claimDate,
		PolicyStartDate: claimDate.AddDate(-2, 0, 0),
		PreviousClaims:  0,
		Location:        "US",
	}
}

func TestEngineCreation(t *testing.T) {
	engine, err := NewEngine(5)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	if engine.RulesCount() != 0 {
		t.Errorf("expected 0 rules, got %d", engine.RulesCount())
	}
}

func TestNewEngineFromTables(t *testing.T) {
	tbl, err := tables.Default()
	if err != nil {
		t.Fatalf("failed to load default tables: %v", err)
	}

	engine, err := NewEngineFromTables(tbl, 4)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	if engine.RulesCount() != len(tbl.Fraud.Factors) {
		t.Errorf("expected %d rules, got %d", len(tbl.Fraud.Factors), engine.RulesCount())
	}
}

func TestLoadInvalidRule(t *testing.T) {
	engine, _ := NewEngine(5)

	tests := []struct {
		name string
		rule tables.FactorRule
	}{
		{"syntax error", tables.FactorRule{ID: "bad", Label: "Bad", Condition: "this is not valid CEL !!!"}},
		{"non bool", tables.FactorRule{ID: "num", Label: "Num", Condition: "amount * 2.0"}},
		{"unknown variable", tables.FactorRule{ID: "unk", Label: "Unknown", Condition: "velocity_count > 1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := engine.Validate(tt.rule); err == nil {
				t.Error("expected compile error")
			}
			if err := engine.Load([]tables.FactorRule{tt.rule}, nil); err == nil {
				t.Error("expected load error")
			}
		})
	}
}

func TestEvaluateDefaultFactors(t *testing.T) {
	tbl, _ := tables.Default()
	engine, _ := NewEngineFromTables(tbl, 4)
	ctx := context.Background()

	t.Run("clean claim triggers nothing", func(t *testing.T) {
		results, err := engine.Evaluate(ctx, baseRequest())
		if err != nil {
			t.Fatalf("evaluation failed: %v", err)
		}
		if got := Triggered(results); len(got) != 0 {
			t.Errorf("expected no factors, got %v", got)
		}
	})

	t.Run("every factor triggers in table order", func(t *testing.T) {
		req := baseRequest()
		req.PolicyStartDate = req.ClaimDate.AddDate(0, 0, -10)
		req.Amount = 75000
		req.PreviousClaims = 5
		req.Location = "NK"
		req.ClaimantAge = 22

		results, err := engine.Evaluate(ctx, req)
		if err != nil {
			t.Fatalf("evaluation failed: %v", err)
		}

		got := domain.Labels(Triggered(results))
		want := []string{
			"Very Recent Policy",
			"High Claim Amount",
			"Multiple Previous Claims",
			"High Risk Location Detected",
			"High Risk Age Group",
		}
		if len(got) != len(want) {
			t.Fatalf("expected %d factors, got %v", len(want), got)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("factor %d: expected %q, got %q", i, want[i], got[i])
			}
		}
	})

	t.Run("thresholds are strict", func(t *testing.T) {
		req := baseRequest()
		req.PolicyStartDate = req.ClaimDate.AddDate(0, 0, -30)
		req.Amount = 50000
		req.PreviousClaims = 3
		req.ClaimantAge = 25

		results, err := engine.Evaluate(ctx, req)
		if err != nil {
			t.Fatalf("evaluation failed: %v", err)
		}
		if got := Triggered(results); len(got) != 0 {
			t.Errorf("expected no factors at the boundaries, got %v", got)
		}
	})

	t.Run("claim before policy start counts as recent", func(t *testing.T) {
		req := baseRequest()
		req.PolicyStartDate = req.ClaimDate.AddDate(0, 0, 5)

		results, _ := engine.Evaluate(ctx, req)
		got := Triggered(results)
		if len(got) != 1 || got[0].Label != "Very Recent Policy" {
			t.Errorf("expected only Very Recent Policy, got %v", got)
		}
	})
}

func TestEvaluateCustomRule(t *testing.T) {
	engine, _ := NewEngine(5)
	rule := tables.FactorRule{
		ID:           "health-young",
		Label:        "Young Health Claimant",
		Condition:    `claim_type == "health" && claimant_age < 30`,
		Contribution: 15,
	}
	if err := engine.Load([]tables.FactorRule{rule}, nil); err != nil {
		t.Fatalf("failed to load rule: %v", err)
	}

	req := baseRequest()
	req.ClaimType = domain.ClaimTypeHealth
	req.ClaimantAge = 28

	results, err := engine.Evaluate(context.Background(), req)
	if err != nil {
		t.Fatalf("evaluation failed: %v", err)
	}
	if !results[0].Triggered {
		t.Error("expected rule to trigger")
	}
	if results[0].Factor.Contribution != 15 {
		t.Errorf("expected contribution 15, got %.2f", results[0].Factor.Contribution)
	}
}

func TestParallelExecutionKeepsOrder(t *testing.T) {
	engine, _ := NewEngine(3)

	factorRules := make([]tables.FactorRule, 0, 10)
	for i := 0; i < 10; i++ {
		factorRules = append(factorRules, tables.FactorRule{
			ID:           fmt.Sprintf("rule-%d", i),
			Label:        fmt.Sprintf("Rule %d", i),
			Condition:    fmt.Sprintf("previous_claims > %d", i),
			Contribution: float64(i),
		})
	}
	if err := engine.Load(factorRules, nil); err != nil {
		t.Fatalf("failed to load rules: %v", err)
	}

	req := baseRequest()
	req.PreviousClaims = 5

	results, err := engine.Evaluate(context.Background(), req)
	if err != nil {
		t.Fatalf("evaluation failed: %v", err)
	}
	if len(results) != 10 {
		t.Fatalf("expected 10 results, got %d", len(results))
	}
	for i, r := range results {
		if r.RuleID != fmt.Sprintf("rule-%d", i) {
			t.Errorf("result %d out of order: %s", i, r.RuleID)
		}
		if want := i < 5; r.Triggered != want {
			t.Errorf("rule-%d: expected triggered=%v", i, want)
		}
	}
}
