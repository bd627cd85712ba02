package rules

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/opensource-finance/smartwallet/internal/domain"
)

func sampleRecommendation() *domain.Recommendation {
	return &domain.Recommendation{
		Input: domain.TransactionInput{
			Amount:   1200,
			Category: "travel",
			Location: "Lisbon",
			Platform: "apple",
		},
		TopChoice: &domain.ScoredCandidate{
			Card: &domain.Card{
				ID:               "voyager-travel-rewards",
				Name:             "Voyager Travel Rewards",
				Network:          "Visa",
				Limit:            4000,
				Utilization:      0.2,
				RequiresTapToPay: true,
				SupportedWallets: []string{"apple"},
			},
			Score:    3600,
			Metadata: domain.ScoreMetadata{Rate: 3},
		},
		Warnings: []string{},
	}
}

func TestEngineCreation(t *testing.T) {
	engine, err := NewEngine(5)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	defer engine.Close()

	if engine.RulesCount() != 0 {
		t.Errorf("expected 0 rules, got %d", engine.RulesCount())
	}
}

func TestLoadRule(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	rule := &domain.AdvisoryRule{
		ID:         "large-purchase",
		Name:       "Large purchase",
		Expression: "amount > 1000.0",
		Message:    "Large purchase.",
		Enabled:    true,
	}

	if err := engine.LoadRule(rule); err != nil {
		t.Fatalf("failed to load rule: %v", err)
	}
	if engine.RulesCount() != 1 {
		t.Errorf("expected 1 rule, got %d", engine.RulesCount())
	}

	rule.Enabled = false
	if err := engine.LoadRule(rule); err != nil {
		t.Fatalf("failed to unload rule: %v", err)
	}
	if engine.RulesCount() != 0 {
		t.Errorf("expected disabled rule to be removed, got %d", engine.RulesCount())
	}
}

func TestLoadInvalidRule(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	tests := []struct {
		name string
		rule *domain.AdvisoryRule
	}{
		{"syntax", &domain.AdvisoryRule{ID: "bad", Expression: "this is not valid CEL !!!", Enabled: true}},
		{"non-bool", &domain.AdvisoryRule{ID: "double", Expression: "amount * 2.0", Enabled: true}},
		{"unknown variable", &domain.AdvisoryRule{ID: "unknown", Expression: "velocity_count > 10", Enabled: true}},
		{"missing id", &domain.AdvisoryRule{Expression: "amount > 1.0", Enabled: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := engine.LoadRule(tt.rule)
			if !errors.Is(err, domain.ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
			if err := engine.ValidateRule(tt.rule); err == nil {
				t.Error("expected ValidateRule to fail")
			}
		})
	}

	if engine.RulesCount() != 0 {
		t.Errorf("invalid rules must not be loaded, got %d", engine.RulesCount())
	}
}

func TestEvaluate(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	err := engine.ReloadRules([]*domain.AdvisoryRule{
		{ID: "b-tap", Expression: "requires_tap_to_pay && !using_other_app", Message: "Tap to pay required.", Enabled: true},
		{ID: "a-limit", Expression: "card_limit > 0.0 && amount > card_limit * 0.25", Message: "Large share of limit.", Enabled: true},
		{ID: "c-quiet", Expression: "gps_unavailable", Message: "never", Enabled: true},
		{ID: "d-wallet", Expression: "platform in supported_wallets && card_rate >= 3.0", Message: "Wallet ready.", Enabled: true},
		{ID: "e-off", Expression: "true", Message: "disabled", Enabled: false},
	})
	if err != nil {
		t.Fatalf("ReloadRules failed: %v", err)
	}

	results := engine.Evaluate(context.Background(), sampleRecommendation())
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}

	wantOrder := []string{"a-limit", "b-tap", "c-quiet", "d-wallet"}
	for i, id := range wantOrder {
		if results[i].RuleID != id {
			t.Errorf("result %d: expected %s, got %s", i, id, results[i].RuleID)
		}
		if results[i].Error != "" {
			t.Errorf("rule %s: unexpected error %s", id, results[i].Error)
		}
	}

	warnings := Warnings(results)
	want := []string{"Large share of limit.", "Tap to pay required.", "Wallet ready."}
	if fmt.Sprint(warnings) != fmt.Sprint(want) {
		t.Errorf("expected warnings %v, got %v", want, warnings)
	}
}

func TestEvaluateWithoutTopChoice(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	_ = engine.LoadRule(&domain.AdvisoryRule{ID: "empty", Expression: "!has_top_choice", Message: "No cards on file.", Enabled: true})
	_ = engine.LoadRule(&domain.AdvisoryRule{ID: "limit", Expression: "amount > card_limit", Message: "Over limit.", Enabled: true})

	rec := &domain.Recommendation{Input: domain.TransactionInput{Amount: 10, Category: "gas"}}
	results := engine.Evaluate(context.Background(), rec)

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for _, r := range results {
		if r.Error != "" {
			t.Errorf("rule %s: unexpected error %s", r.RuleID, r.Error)
		}
		if !r.Triggered {
			t.Errorf("rule %s: expected trigger", r.RuleID)
		}
	}
}

func TestReloadRulesKeepsPreviousOnError(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	_ = engine.ReloadRules([]*domain.AdvisoryRule{
		{ID: "ok", Expression: "amount > 1.0", Enabled: true},
	})

	err := engine.ReloadRules([]*domain.AdvisoryRule{
		{ID: "new", Expression: "amount > 2.0", Enabled: true},
		{ID: "broken", Expression: "amount >", Enabled: true},
	})
	if err == nil {
		t.Fatal("expected reload error")
	}

	loaded := engine.GetLoadedRules()
	if len(loaded) != 1 || loaded[0].ID != "ok" {
		t.Errorf("expected previous rule set, got %v", loaded)
	}
}

func TestParallelExecution(t *testing.T) {
	engine, _ := NewEngine(3)
	defer engine.Close()

	for i := 0; i < 10; i++ {
		_ = engine.LoadRule(&domain.AdvisoryRule{
			ID:         fmt.Sprintf("rule-%02d", i),
			Expression: "amount > 0.0",
			Message:    fmt.Sprintf("rule %d", i),
			Enabled:    true,
		})
	}

	results := engine.Evaluate(context.Background(), sampleRecommendation())
	if len(results) != 10 {
		t.Fatalf("expected 10 results, got %d", len(results))
	}
	for i, r := range results {
		if !r.Triggered {
			t.Errorf("rule %d: expected trigger", i)
		}
	}
}

func TestEvaluateNoRules(t *testing.T) {
	engine, _ := NewEngine(0)
	defer engine.Close()

	if results := engine.Evaluate(context.Background(), sampleRecommendation()); results != nil {
		t.Errorf("expected nil results, got %v", results)
	}
}
