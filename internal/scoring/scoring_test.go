package scoring

import (
	"math"
	"regexp"
	"testing"

	"github.com/opensource-finance/smartwallet/internal/domain"
)

func rate(v float64) *float64 { return &v }

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

var testApps = []*domain.App{
	{ID: "uber", Name: "Uber", Category: "travel"},
	{ID: "subway-turnstile", Name: "Subway Turnstile", Category: " Transit "},
	{ID: "blank", Name: "Blank", Category: ""},
}

func TestResolveCategory(t *testing.T) {
	tests := []struct {
		name  string
		input domain.TransactionInput
		want  string
	}{
		{"declared category normalized", domain.TransactionInput{Category: "  Dining "}, "dining"},
		{"empty falls back to other", domain.TransactionInput{Category: "   "}, "other"},
		{"app overrides declared category", domain.TransactionInput{Category: "dining", MerchantApp: "uber"}, "travel"},
		{"app category is normalized", domain.TransactionInput{Category: "other", MerchantApp: "subway-turnstile"}, "transit"},
		{"unknown app keeps declared", domain.TransactionInput{Category: "Gas", MerchantApp: "nope"}, "gas"},
		{"app without category keeps declared", domain.TransactionInput{Category: "online", MerchantApp: "blank"}, "online"},
		{"unknown app and empty category", domain.TransactionInput{MerchantApp: "nope"}, "other"},
		{"unlisted category accepted", domain.TransactionInput{Category: "Pharmacy"}, "pharmacy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := tt.input
			if got := ResolveCategory(&in, testApps); got != tt.want {
				t.Errorf("ResolveCategory() = %q, want %q", got, tt.want)
			}
		})
	}

	t.Run("NilInput", func(t *testing.T) {
		if got := ResolveCategory(nil, testApps); got != "other" {
			t.Errorf("expected other, got %q", got)
		}
	})
}

func TestScoreCard(t *testing.T) {
	rules := domain.DefaultRuleSet()
	base := ScoreInput{Amount: 100, Category: "dining", Location: "Seattle"}

	t.Run("RatePrecedence", func(t *testing.T) {
		card := &domain.Card{BaseRate: rate(2), CategoryRates: map[string]float64{"dining": 4}}
		score, meta := ScoreCard(card, base, rules)
		if meta.Rate != 4 || !approx(score, 400) {
			t.Errorf("expected category rate 4 and score 400, got rate=%v score=%v", meta.Rate, score)
		}

		in := base
		in.Category = "gas"
		score, meta = ScoreCard(card, in, rules)
		if meta.Rate != 2 || !approx(score, 200) {
			t.Errorf("expected base rate 2 and score 200, got rate=%v score=%v", meta.Rate, score)
		}

		score, meta = ScoreCard(&domain.Card{}, base, rules)
		if meta.Rate != 1 || !approx(score, 100) {
			t.Errorf("expected default rate 1 and score 100, got rate=%v score=%v", meta.Rate, score)
		}
	})

	t.Run("ZeroCategoryRateWins", func(t *testing.T) {
		card := &domain.Card{BaseRate: rate(2), CategoryRates: map[string]float64{"dining": 0}}
		score, meta := ScoreCard(card, base, rules)
		if meta.Rate != 0 || score != 0 {
			t.Errorf("expected explicit zero rate, got rate=%v score=%v", meta.Rate, score)
		}
	})

	t.Run("UtilizationPenalty", func(t *testing.T) {
		at := &domain.Card{Utilization: rules.UtilizationPenalty.Threshold}
		_, meta := ScoreCard(at, base, rules)
		if meta.UtilizationPenalty != 1 {
			t.Errorf("threshold is exclusive, got %v", meta.UtilizationPenalty)
		}

		over := &domain.Card{Utilization: 0.5}
		score, meta := ScoreCard(over, base, rules)
		if meta.UtilizationPenalty != rules.UtilizationPenalty.Multiplier {
			t.Errorf("expected %v, got %v", rules.UtilizationPenalty.Multiplier, meta.UtilizationPenalty)
		}
		if !approx(score, 100*rules.UtilizationPenalty.Multiplier) {
			t.Errorf("unexpected score %v", score)
		}
	})

	t.Run("APRPenaltyRequiresSensitivity", func(t *testing.T) {
		plain := &domain.Card{Utilization: 0.9}
		_, meta := ScoreCard(plain, base, rules)
		if meta.APRPenalty != 1 {
			t.Errorf("expected no APR penalty, got %v", meta.APRPenalty)
		}

		sensitive := &domain.Card{Utilization: 0.9, APRSensitive: true}
		_, meta = ScoreCard(sensitive, base, rules)
		if meta.APRPenalty != rules.APRSensitivePenalty.Multiplier {
			t.Errorf("expected APR penalty, got %v", meta.APRPenalty)
		}

		low := &domain.Card{Utilization: 0.2, APRSensitive: true}
		_, meta = ScoreCard(low, base, rules)
		if meta.APRPenalty != 1 {
			t.Errorf("expected no APR penalty under threshold, got %v", meta.APRPenalty)
		}
	})

	t.Run("LocationPenalty", func(t *testing.T) {
		card := &domain.Card{}
		withGPS, _ := ScoreCard(card, base, rules)

		in := base
		in.GPSUnavailable = true
		withoutGPS, meta := ScoreCard(card, in, rules)
		if meta.LocationPenalty != rules.GPSConfidence.GPSUnavailableMultiplier {
			t.Errorf("expected GPS penalty, got %v", meta.LocationPenalty)
		}
		if !approx(withoutGPS, withGPS*rules.GPSConfidence.GPSUnavailableMultiplier) {
			t.Errorf("expected exact factor, got %v vs %v", withoutGPS, withGPS)
		}
		if withoutGPS >= withGPS {
			t.Error("expected score to decrease when GPS is unavailable")
		}

		in = base
		in.Location = ""
		_, meta = ScoreCard(card, in, rules)
		if meta.LocationPenalty != rules.GPSConfidence.GPSUnavailableMultiplier {
			t.Errorf("expected penalty for empty location, got %v", meta.LocationPenalty)
		}
	})

	t.Run("ForeignFeeOnlyForTravel", func(t *testing.T) {
		card := &domain.Card{ForeignTxFee: true}
		_, meta := ScoreCard(card, base, rules)
		if meta.ForeignPenalty != 1 {
			t.Errorf("expected no foreign penalty for dining, got %v", meta.ForeignPenalty)
		}

		in := base
		in.Category = "travel"
		_, meta = ScoreCard(card, in, rules)
		if meta.ForeignPenalty != rules.ForeignTxFeePenalty {
			t.Errorf("expected foreign penalty for travel, got %v", meta.ForeignPenalty)
		}
	})

	t.Run("WalletPenalty", func(t *testing.T) {
		card := &domain.Card{SupportedWallets: []string{"apple"}}

		_, meta := ScoreCard(card, base, rules)
		if meta.WalletPenalty != 1 {
			t.Errorf("expected no wallet penalty without platform, got %v", meta.WalletPenalty)
		}

		in := base
		in.Platform = "apple"
		_, meta = ScoreCard(card, in, rules)
		if meta.WalletPenalty != 1 {
			t.Errorf("expected no wallet penalty for supported platform, got %v", meta.WalletPenalty)
		}

		in.Platform = "android"
		_, meta = ScoreCard(card, in, rules)
		if meta.WalletPenalty != rules.WalletSupportPenalty {
			t.Errorf("expected wallet penalty, got %v", meta.WalletPenalty)
		}
	})

	t.Run("AutofillBoost", func(t *testing.T) {
		in := base
		in.UsingOtherApp = true
		score, meta := ScoreCard(&domain.Card{}, in, rules)
		if meta.AutofillBoost != rules.AutofillBoost || !approx(score, 100*rules.AutofillBoost) {
			t.Errorf("expected autofill boost, got meta=%v score=%v", meta.AutofillBoost, score)
		}
	})

	t.Run("MonotonicInAmount", func(t *testing.T) {
		card := &domain.Card{BaseRate: rate(1.5), Utilization: 0.7, APRSensitive: true, ForeignTxFee: true}
		in := base
		in.Category = "travel"
		in.Platform = "android"
		prev := -1.0
		for _, amount := range []float64{1, 10, 55.5, 100, 1000} {
			in.Amount = amount
			score, _ := ScoreCard(card, in, rules)
			if score <= prev {
				t.Fatalf("score not increasing at amount %v: %v <= %v", amount, score, prev)
			}
			prev = score
		}
	})

	t.Run("DoesNotApplyMandatoryBoost", func(t *testing.T) {
		card := &domain.Card{MandatoryTransactionsLeft: 3}
		_, meta := ScoreCard(card, base, rules)
		if meta.MandatoryBoost != 1 {
			t.Errorf("expected neutral mandatory boost, got %v", meta.MandatoryBoost)
		}
	})
}

func TestBuildRecommendation(t *testing.T) {
	rules := domain.DefaultRuleSet()

	t.Run("EmptyCollection", func(t *testing.T) {
		rec := BuildRecommendation(nil, domain.TransactionInput{Amount: 10, Category: "gas", Location: "x"}, rules, nil)
		if rec.TopChoice != nil || rec.Fallback != nil || rec.Autofill != nil {
			t.Error("expected no choices for empty collection")
		}
		if rec.Warnings == nil || len(rec.Warnings) != 0 {
			t.Errorf("expected empty warnings, got %v", rec.Warnings)
		}
		if rec.Input.Category != "gas" {
			t.Errorf("expected resolved category, got %q", rec.Input.Category)
		}
	})

	t.Run("SingleCard", func(t *testing.T) {
		cards := []*domain.Card{{ID: "only", Name: "Only", Network: "Visa"}}
		rec := BuildRecommendation(cards, domain.TransactionInput{Amount: 10, Category: "gas", Location: "x"}, rules, nil)
		if rec.TopChoice == nil || rec.TopChoice.Card.ID != "only" {
			t.Fatal("expected top choice")
		}
		if rec.Fallback != nil {
			t.Error("expected no fallback with one card")
		}
		if rec.Autofill == nil || rec.Autofill.CardName != "Only" {
			t.Errorf("expected autofill for top card, got %+v", rec.Autofill)
		}
	})

	t.Run("MerchantAppScenario", func(t *testing.T) {
		cards := []*domain.Card{
			{ID: "card-b", Name: "Card B", BaseRate: rate(2), Utilization: 0.9},
			{ID: "card-a", Name: "Card A", BaseRate: rate(1), CategoryRates: map[string]float64{"travel": 3}, Utilization: 0.1},
		}
		input := domain.TransactionInput{
			Amount:        120,
			Category:      "other",
			MerchantApp:   "uber",
			Location:      "Downtown",
			UsingOtherApp: true,
			Platform:      "apple",
		}

		rec := BuildRecommendation(cards, input, rules, testApps)

		if rec.Input.Category != "travel" {
			t.Errorf("expected resolved category travel, got %q", rec.Input.Category)
		}
		if rec.TopChoice.Card.ID != "card-a" {
			t.Fatalf("expected card-a on top, got %s", rec.TopChoice.Card.ID)
		}
		if rec.TopChoice.Metadata.Rate != 3 {
			t.Errorf("expected rate 3, got %v", rec.TopChoice.Metadata.Rate)
		}
		wantA := 120 * 3 * rules.AutofillBoost * rules.WalletSupportPenalty
		if !approx(rec.TopChoice.Score, wantA) {
			t.Errorf("expected card-a score %v, got %v", wantA, rec.TopChoice.Score)
		}
		if rec.Fallback.Card.ID != "card-b" {
			t.Errorf("expected card-b as fallback, got %s", rec.Fallback.Card.ID)
		}
		if rec.Fallback.Metadata.UtilizationPenalty != rules.UtilizationPenalty.Multiplier {
			t.Errorf("expected utilization penalty on card-b, got %v", rec.Fallback.Metadata.UtilizationPenalty)
		}
		if len(rec.Warnings) != 0 {
			t.Errorf("expected no warnings, got %v", rec.Warnings)
		}
		if input.Category != "other" {
			t.Error("caller input must not be mutated")
		}
	})

	t.Run("StableTieBreak", func(t *testing.T) {
		cards := []*domain.Card{
			{ID: "first", BaseRate: rate(2)},
			{ID: "second", BaseRate: rate(2)},
			{ID: "third", BaseRate: rate(2)},
		}
		rec := BuildRecommendation(cards, domain.TransactionInput{Amount: 50, Category: "gas", Location: "x"}, rules, nil)
		if rec.TopChoice.Card.ID != "first" || rec.Fallback.Card.ID != "second" {
			t.Errorf("expected input order on ties, got %s, %s", rec.TopChoice.Card.ID, rec.Fallback.Card.ID)
		}
	})

	t.Run("MandatoryBoost", func(t *testing.T) {
		cards := []*domain.Card{
			{ID: "rich", BaseRate: rate(3)},
			{ID: "due", BaseRate: rate(2.5), MandatoryTransactionsLeft: 2, StatementDueInDays: 3},
		}
		rec := BuildRecommendation(cards, domain.TransactionInput{Amount: 80, Category: "dining", Location: "x"}, rules, nil)

		if !rec.PrioritizeMandatory {
			t.Fatal("expected prioritizeMandatory")
		}
		if rec.TopChoice.Card.ID != "due" {
			t.Errorf("expected boosted card on top, got %s", rec.TopChoice.Card.ID)
		}
		if rec.TopChoice.Metadata.MandatoryBoost != rules.MandatorySpend.Multiplier {
			t.Errorf("expected mandatory boost recorded, got %v", rec.TopChoice.Metadata.MandatoryBoost)
		}
		if !approx(rec.TopChoice.Score, 80*2.5*rules.MandatorySpend.Multiplier) {
			t.Errorf("unexpected boosted score %v", rec.TopChoice.Score)
		}
		if rec.Fallback.Metadata.MandatoryBoost != 1 {
			t.Errorf("expected no boost without outstanding spend, got %v", rec.Fallback.Metadata.MandatoryBoost)
		}
	})

	t.Run("MandatoryBoostAppliesOutsideWindow", func(t *testing.T) {
		// The flag is collection wide; once set, every card with
		// outstanding spend is boosted regardless of its own due date.
		cards := []*domain.Card{
			{ID: "due", BaseRate: rate(1), MandatoryTransactionsLeft: 1, StatementDueInDays: 2},
			{ID: "later", BaseRate: rate(1), MandatoryTransactionsLeft: 1, StatementDueInDays: 30},
		}
		rec := BuildRecommendation(cards, domain.TransactionInput{Amount: 80, Category: "dining", Location: "x"}, rules, nil)
		if rec.Fallback.Card.ID != "later" {
			t.Fatalf("expected later as fallback, got %s", rec.Fallback.Card.ID)
		}
		if rec.Fallback.Metadata.MandatoryBoost != rules.MandatorySpend.Multiplier {
			t.Errorf("expected boost on card outside window, got %v", rec.Fallback.Metadata.MandatoryBoost)
		}
	})

	t.Run("MandatoryOutsideWindow", func(t *testing.T) {
		cards := []*domain.Card{
			{ID: "a", BaseRate: rate(3)},
			{ID: "b", BaseRate: rate(2), MandatoryTransactionsLeft: 2, StatementDueInDays: rules.MandatorySpend.WindowDays + 1},
		}
		rec := BuildRecommendation(cards, domain.TransactionInput{Amount: 80, Category: "dining", Location: "x"}, rules, nil)
		if rec.PrioritizeMandatory {
			t.Error("expected no prioritization outside the window")
		}
		if rec.Fallback.Metadata.MandatoryBoost != 1 {
			t.Errorf("expected neutral boost, got %v", rec.Fallback.Metadata.MandatoryBoost)
		}
	})

	t.Run("WarningsInOrder", func(t *testing.T) {
		cards := []*domain.Card{{ID: "maxed", BaseRate: rate(5), Utilization: 0.95}}
		rec := BuildRecommendation(cards, domain.TransactionInput{Amount: 10, Category: "gas", GPSUnavailable: true}, rules, nil)
		want := []string{domain.WarningHighUtilization, domain.WarningGPSUnavailable, domain.WarningLocationMissing}
		if len(rec.Warnings) != len(want) {
			t.Fatalf("expected %d warnings, got %v", len(want), rec.Warnings)
		}
		for i := range want {
			if rec.Warnings[i] != want[i] {
				t.Errorf("warning %d: expected %q, got %q", i, want[i], rec.Warnings[i])
			}
		}
	})

	t.Run("EmptyLocationWithGPS", func(t *testing.T) {
		cards := []*domain.Card{{ID: "a"}}
		rec := BuildRecommendation(cards, domain.TransactionInput{Amount: 10, Category: "gas"}, rules, nil)
		if rec.TopChoice.Metadata.LocationPenalty != rules.GPSConfidence.GPSUnavailableMultiplier {
			t.Errorf("expected location penalty, got %v", rec.TopChoice.Metadata.LocationPenalty)
		}
		if len(rec.Warnings) != 1 || rec.Warnings[0] != domain.WarningLocationMissing {
			t.Errorf("expected only location warning, got %v", rec.Warnings)
		}
	})

	t.Run("DoesNotMutateCards", func(t *testing.T) {
		cards := []*domain.Card{
			{ID: "x", BaseRate: rate(1)},
			{ID: "y", BaseRate: rate(4)},
		}
		BuildRecommendation(cards, domain.TransactionInput{Amount: 10, Category: "gas", Location: "x"}, rules, nil)
		if cards[0].ID != "x" || cards[1].ID != "y" {
			t.Error("input slice order changed")
		}
	})
}

func TestBuildAutofillDetails(t *testing.T) {
	pattern := regexp.MustCompile(`^\*{4} \*{4} \*{4} (\d{4})$`)

	t.Run("UsesCardFields", func(t *testing.T) {
		details := BuildAutofillDetails(&domain.Card{Name: "Travel", Network: "Visa", PANLast4: "4242", Expiry: "09/28"})
		m := pattern.FindStringSubmatch(details.MaskedPAN)
		if m == nil || m[1] != "4242" {
			t.Errorf("unexpected masked PAN %q", details.MaskedPAN)
		}
		if details.CardName != "Travel" || details.Network != "Visa" || details.Expiry != "09/28" {
			t.Errorf("unexpected details %+v", details)
		}
	})

	t.Run("Defaults", func(t *testing.T) {
		details := BuildAutofillDetails(&domain.Card{Name: "Bare"})
		if details.MaskedPAN != "**** **** **** 0000" {
			t.Errorf("expected default PAN, got %q", details.MaskedPAN)
		}
		if details.Expiry != "01/30" {
			t.Errorf("expected default expiry, got %q", details.Expiry)
		}
	})
}
