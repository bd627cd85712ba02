package domain

// TransactionInput describes the purchase a recommendation is requested for.
type TransactionInput struct {
	Amount   float64 `json:"amount"`
	Category string  `json:"category"`
	Merchant string  `json:"merchant,omitempty"`

	// MerchantApp is an App id; when it matches, the app's category wins.
	MerchantApp string `json:"merchantApp,omitempty"`

	// Location signals, taken as given.
	Location       string `json:"location"`
	GPSUnavailable bool   `json:"gpsUnavailable"`

	// UsingOtherApp is set when the user pays through a third-party app
	// and needs the card details for manual entry.
	UsingOtherApp bool `json:"usingOtherApp"`

	// Platform is the wallet platform identifier, e.g. "apple" or "android".
	Platform string `json:"platform,omitempty"`
}
