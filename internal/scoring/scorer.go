package scoring

import "github.com/opensource-finance/smartwallet/internal/domain"

// ScoreInput is the per-card context the scorer needs. Category must already
// be resolved.
type ScoreInput struct {
	Amount         float64
	Category       string
	Location       string
	GPSUnavailable bool
	Platform       string
	UsingOtherApp  bool
}

// ScoreCard computes a card's score as amount × rate adjusted by six
// independent multiplicative factors. The mandatory boost is not applied
// here; it is a collection-wide decision made by BuildRecommendation.
func ScoreCard(card *domain.Card, in ScoreInput, rules *domain.RuleSet) (float64, domain.ScoreMetadata) {
	meta := domain.ScoreMetadata{
		Rate:               rateFor(card, in.Category),
		UtilizationPenalty: 1,
		APRPenalty:         1,
		LocationPenalty:    1,
		ForeignPenalty:     1,
		WalletPenalty:      1,
		AutofillBoost:      1,
		MandatoryBoost:     1,
	}

	if card.Utilization > rules.UtilizationPenalty.Threshold {
		meta.UtilizationPenalty = rules.UtilizationPenalty.Multiplier
	}
	if card.APRSensitive && card.Utilization > rules.APRSensitivePenalty.Threshold {
		meta.APRPenalty = rules.APRSensitivePenalty.Multiplier
	}
	if in.GPSUnavailable || in.Location == "" {
		meta.LocationPenalty = rules.GPSConfidence.GPSUnavailableMultiplier
	}
	if card.ForeignTxFee && in.Category == domain.CategoryTravel {
		meta.ForeignPenalty = rules.ForeignTxFeePenalty
	}
	if in.Platform != "" && !card.SupportsWallet(in.Platform) {
		meta.WalletPenalty = rules.WalletSupportPenalty
	}
	if in.UsingOtherApp {
		meta.AutofillBoost = rules.AutofillBoost
	}

	score := in.Amount * meta.Rate *
		meta.UtilizationPenalty *
		meta.APRPenalty *
		meta.LocationPenalty *
		meta.ForeignPenalty *
		meta.WalletPenalty *
		meta.AutofillBoost

	return score, meta
}

// rateFor looks up the category rate, then the base rate, then 1.
func rateFor(card *domain.Card, category string) float64 {
	if rate, ok := card.CategoryRates[category]; ok {
		return rate
	}
	if card.BaseRate != nil {
		return *card.BaseRate
	}
	return 1
}
