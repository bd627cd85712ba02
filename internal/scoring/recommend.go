package scoring

import (
	"sort"

	"github.com/opensource-finance/smartwallet/internal/domain"
)

// BuildRecommendation ranks cards for a transaction and picks a top choice
// and fallback.
//
// Mandatory spend is decided in two phases: first over the whole unscored
// collection, then applied per card after scoring. Equal scores keep input
// order, so the first-listed card wins a tie.
func BuildRecommendation(cards []*domain.Card, input domain.TransactionInput, rules *domain.RuleSet, apps []*domain.App) *domain.Recommendation {
	prioritizeMandatory := shouldPrioritizeMandatory(cards, rules)

	resolved := ResolveCategory(&input, apps)
	in := ScoreInput{
		Amount:         input.Amount,
		Category:       resolved,
		Location:       input.Location,
		GPSUnavailable: input.GPSUnavailable,
		Platform:       input.Platform,
		UsingOtherApp:  input.UsingOtherApp,
	}

	scored := make([]domain.ScoredCandidate, 0, len(cards))
	for _, card := range cards {
		if card == nil {
			continue
		}
		score, meta := ScoreCard(card, in, rules)
		scored = append(scored, domain.ScoredCandidate{Card: card, Score: score, Metadata: meta})
	}

	for i := range scored {
		if prioritizeMandatory && scored[i].Card.HasMandatorySpend() {
			scored[i].Metadata.MandatoryBoost = rules.MandatorySpend.Multiplier
			scored[i].Score *= rules.MandatorySpend.Multiplier
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	resolvedInput := input
	resolvedInput.Category = resolved

	rec := &domain.Recommendation{
		Input:               resolvedInput,
		PrioritizeMandatory: prioritizeMandatory,
		Warnings:            []string{},
	}
	if len(scored) > 0 {
		rec.TopChoice = &scored[0]
		rec.Autofill = BuildAutofillDetails(scored[0].Card)
	}
	if len(scored) > 1 {
		rec.Fallback = &scored[1]
	}

	if rec.TopChoice != nil && rec.TopChoice.Card.Utilization > rules.FallbackUtilizationThreshold {
		rec.Warnings = append(rec.Warnings, domain.WarningHighUtilization)
	}
	if input.GPSUnavailable {
		rec.Warnings = append(rec.Warnings, domain.WarningGPSUnavailable)
	}
	if input.Location == "" {
		rec.Warnings = append(rec.Warnings, domain.WarningLocationMissing)
	}

	return rec
}

func shouldPrioritizeMandatory(cards []*domain.Card, rules *domain.RuleSet) bool {
	for _, card := range cards {
		if card != nil && card.HasMandatorySpend() && card.StatementDueInDays <= rules.MandatorySpend.WindowDays {
			return true
		}
	}
	return false
}
