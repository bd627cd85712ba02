package domain

import (
	"errors"
	"testing"
)

func TestSlugify(t *testing.T) {
	tests := map[string]string{
		"Travel Rewards Plus": "travel-rewards-plus",
		"  Metro++ Card!! ":   "metro-card",
		"ALL CAPS 2024":       "all-caps-2024",
		"---":                 "",
	}
	for in, want := range tests {
		if got := Slugify(in); got != want {
			t.Errorf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCardRequestToCard(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		req := &CardRequest{Name: "Everyday Cash", Network: "Mastercard"}
		card := req.ToCard()

		if card.ID != "everyday-cash" {
			t.Errorf("expected slug id, got %q", card.ID)
		}
		if card.BaseRate == nil || *card.BaseRate != 1 {
			t.Errorf("expected base rate 1, got %v", card.BaseRate)
		}
		if card.PANLast4 != DefaultPANLast4 || card.Expiry != DefaultExpiry {
			t.Errorf("expected display defaults, got %q %q", card.PANLast4, card.Expiry)
		}
		if card.CategoryRates == nil || card.Offers == nil || card.SupportedWallets == nil {
			t.Error("expected empty collections, not nil")
		}
	})

	t.Run("ZeroBaseRateDefaults", func(t *testing.T) {
		zero := 0.0
		card := (&CardRequest{Name: "Zero", Network: "Visa", BaseRate: &zero}).ToCard()
		if *card.BaseRate != 1 {
			t.Errorf("expected zero base rate to default to 1, got %v", *card.BaseRate)
		}
	})

	t.Run("NormalizesCategoryKeys", func(t *testing.T) {
		card := (&CardRequest{
			Name:          "Dining Card",
			Network:       "Amex",
			CategoryRates: map[string]float64{" Dining ": 4, "TRAVEL": 2},
		}).ToCard()
		if card.CategoryRates["dining"] != 4 || card.CategoryRates["travel"] != 2 {
			t.Errorf("expected normalized keys, got %v", card.CategoryRates)
		}
	})
}

func TestCardSupportsWallet(t *testing.T) {
	card := &Card{SupportedWallets: []string{"apple", "android"}}
	if !card.SupportsWallet("apple") {
		t.Error("expected apple support")
	}
	if card.SupportsWallet("garmin") {
		t.Error("unexpected garmin support")
	}
}

func TestRuleSetValidate(t *testing.T) {
	if err := DefaultRuleSet().Validate(); err != nil {
		t.Fatalf("default rules invalid: %v", err)
	}

	rules := DefaultRuleSet()
	rules.AutofillBoost = 0
	err := rules.Validate()
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}

	rules = DefaultRuleSet()
	rules.MandatorySpend.WindowDays = -1
	if err := rules.Validate(); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for negative window, got %v", err)
	}
}
