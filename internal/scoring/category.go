// Package scoring implements the card recommendation engine.
//
// Every function in this package is pure: cards, rules and apps are passed
// in as values and are never mutated, so concurrent callers with different
// rule versions never interfere.
package scoring

import "github.com/opensource-finance/smartwallet/internal/domain"

// ResolveCategory returns the effective spending category for a transaction.
// A merchant app present in apps overrides the declared category. The result
// is trimmed, lowercased and never empty.
func ResolveCategory(input *domain.TransactionInput, apps []*domain.App) string {
	if input == nil {
		return domain.CategoryOther
	}

	category := input.Category
	if input.MerchantApp != "" {
		for _, app := range apps {
			if app != nil && app.ID == input.MerchantApp && app.Category != "" {
				category = app.Category
				break
			}
		}
	}

	return normalize(category)
}

func normalize(category string) string {
	if c := domain.NormalizeCategory(category); c != "" {
		return c
	}
	return domain.CategoryOther
}
