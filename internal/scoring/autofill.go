package scoring

import "github.com/opensource-finance/smartwallet/internal/domain"

// BuildAutofillDetails projects a card into the masked payload shown for
// manual entry into a third-party payment app.
func BuildAutofillDetails(card *domain.Card) *domain.AutofillDetails {
	last4 := card.PANLast4
	if last4 == "" {
		last4 = domain.DefaultPANLast4
	}
	expiry := card.Expiry
	if expiry == "" {
		expiry = domain.DefaultExpiry
	}

	return &domain.AutofillDetails{
		CardName:  card.Name,
		Network:   card.Network,
		MaskedPAN: "**** **** **** " + last4,
		Expiry:    expiry,
	}
}
