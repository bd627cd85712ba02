package domain

import (
	"regexp"
	"slices"
	"strings"
)

// Defaults applied to display fields when a card omits them.
const (
	DefaultPANLast4 = "0000"
	DefaultExpiry   = "01/30"
)

// Card is a payment card in the user's collection.
type Card struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Network string `json:"network"`

	// Reward shape. CategoryRates keys are normalized category names and
	// take precedence over BaseRate. A nil BaseRate scores as 1.
	BaseRate      *float64           `json:"baseRate,omitempty"`
	CategoryRates map[string]float64 `json:"categoryRates"`

	Offers []string `json:"offers"`

	// Risk and statement state
	Utilization               float64 `json:"utilization"`
	Limit                     float64 `json:"limit"`
	MandatoryTransactionsLeft int     `json:"mandatoryTransactionsLeft"`
	StatementDueInDays        int     `json:"statementDueInDays"`
	APRSensitive              bool    `json:"aprSensitive"`
	ForeignTxFee              bool    `json:"foreignTxFee"`

	// Wallet compatibility
	SupportedWallets []string `json:"supportedWallets"`
	RequiresTapToPay bool     `json:"requiresTapToPay"`

	PANLast4 string `json:"panLast4"`
	Expiry   string `json:"expiry"`
}

// SupportsWallet reports whether the card can be provisioned on platform.
func (c *Card) SupportsWallet(platform string) bool {
	return slices.Contains(c.SupportedWallets, platform)
}

// HasMandatorySpend reports whether the card still needs qualifying transactions.
func (c *Card) HasMandatorySpend() bool {
	return c.MandatoryTransactionsLeft > 0
}

// CardRequest is the payload accepted when a card is added to the collection.
type CardRequest struct {
	Name                      string             `json:"name"`
	Network                   string             `json:"network"`
	BaseRate                  *float64           `json:"baseRate,omitempty"`
	CategoryRates             map[string]float64 `json:"categoryRates,omitempty"`
	Offers                    []string           `json:"offers,omitempty"`
	Utilization               float64            `json:"utilization,omitempty"`
	Limit                     float64            `json:"limit,omitempty"`
	MandatoryTransactionsLeft int                `json:"mandatoryTransactionsLeft,omitempty"`
	StatementDueInDays        int                `json:"statementDueInDays,omitempty"`
	APRSensitive              bool               `json:"aprSensitive,omitempty"`
	ForeignTxFee              bool               `json:"foreignTxFee,omitempty"`
	SupportedWallets          []string           `json:"supportedWallets,omitempty"`
	RequiresTapToPay          bool               `json:"requiresTapToPay,omitempty"`
	PANLast4                  string             `json:"panLast4,omitempty"`
	Expiry                    string             `json:"expiry,omitempty"`
}

// ToCard converts a request into a Card, filling in collection defaults.
// A missing or zero base rate becomes 1.
func (r *CardRequest) ToCard() *Card {
	baseRate := 1.0
	if r.BaseRate != nil && *r.BaseRate != 0 {
		baseRate = *r.BaseRate
	}

	rates := make(map[string]float64, len(r.CategoryRates))
	for category, rate := range r.CategoryRates {
		rates[NormalizeCategory(category)] = rate
	}

	card := &Card{
		ID:                        Slugify(r.Name),
		Name:                      r.Name,
		Network:                   r.Network,
		BaseRate:                  &baseRate,
		CategoryRates:             rates,
		Offers:                    nonNil(r.Offers),
		Utilization:               r.Utilization,
		Limit:                     r.Limit,
		MandatoryTransactionsLeft: r.MandatoryTransactionsLeft,
		StatementDueInDays:        r.StatementDueInDays,
		APRSensitive:              r.APRSensitive,
		ForeignTxFee:              r.ForeignTxFee,
		SupportedWallets:          nonNil(r.SupportedWallets),
		RequiresTapToPay:          r.RequiresTapToPay,
		PANLast4:                  r.PANLast4,
		Expiry:                    r.Expiry,
	}
	if card.ID == "" {
		card.ID = "card"
	}
	if card.PANLast4 == "" {
		card.PANLast4 = DefaultPANLast4
	}
	if card.Expiry == "" {
		card.Expiry = DefaultExpiry
	}
	return card
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify turns a display name into a stable card id.
func Slugify(value string) string {
	slug := slugPattern.ReplaceAllString(strings.ToLower(value), "-")
	return strings.Trim(slug, "-")
}

// NormalizeCategory trims and lowercases a category name. It does not apply
// the "other" fallback; see scoring.ResolveCategory.
func NormalizeCategory(category string) string {
	return strings.ToLower(strings.TrimSpace(category))
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

// App maps a merchant application to the spending category it implies.
type App struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

// Recognized UI categories. The engine accepts any string.
const (
	CategoryDining    = "dining"
	CategoryGroceries = "groceries"
	CategoryTravel    = "travel"
	CategoryGas       = "gas"
	CategoryOnline    = "online"
	CategoryTransit   = "transit"
	CategoryOther     = "other"
)

// Categories returns the categories offered by the UI.
func Categories() []string {
	return []string{
		CategoryDining,
		CategoryGroceries,
		CategoryTravel,
		CategoryGas,
		CategoryOnline,
		CategoryTransit,
		CategoryOther,
	}
}
