package domain

import "fmt"

// RuleSet holds the scoring penalties and boosts. It is supplied per call and
// never mutated during a scoring pass.
type RuleSet struct {
	UtilizationPenalty           ThresholdMultiplier `json:"utilizationPenalty" yaml:"utilizationPenalty"`
	APRSensitivePenalty          ThresholdMultiplier `json:"aprSensitivePenalty" yaml:"aprSensitivePenalty"`
	GPSConfidence                GPSConfidence       `json:"gpsConfidence" yaml:"gpsConfidence"`
	ForeignTxFeePenalty          float64             `json:"foreignTxFeePenalty" yaml:"foreignTxFeePenalty"`
	AutofillBoost                float64             `json:"autofillBoost" yaml:"autofillBoost"`
	MandatorySpend               MandatorySpend      `json:"mandatorySpend" yaml:"mandatorySpend"`
	FallbackUtilizationThreshold float64             `json:"fallbackUtilizationThreshold" yaml:"fallbackUtilizationThreshold"`
	WalletSupportPenalty         float64             `json:"walletSupportPenalty" yaml:"walletSupportPenalty"`
}

// ThresholdMultiplier applies Multiplier when a card field exceeds Threshold.
type ThresholdMultiplier struct {
	Threshold  float64 `json:"threshold" yaml:"threshold"`
	Multiplier float64 `json:"multiplier" yaml:"multiplier"`
}

// GPSConfidence scales scores when the purchase location is uncertain.
type GPSConfidence struct {
	GPSUnavailableMultiplier float64 `json:"gpsUnavailableMultiplier" yaml:"gpsUnavailableMultiplier"`
}

// MandatorySpend boosts cards with outstanding minimum-spend requirements
// whose statement closes within WindowDays.
type MandatorySpend struct {
	WindowDays int     `json:"windowDays" yaml:"windowDays"`
	Multiplier float64 `json:"multiplier" yaml:"multiplier"`
}

// DefaultRuleSet returns the rule set shipped with the seed data.
func DefaultRuleSet() *RuleSet {
	return &RuleSet{
		UtilizationPenalty:           ThresholdMultiplier{Threshold: 0.3, Multiplier: 0.85},
		APRSensitivePenalty:          ThresholdMultiplier{Threshold: 0.5, Multiplier: 0.7},
		GPSConfidence:                GPSConfidence{GPSUnavailableMultiplier: 0.9},
		ForeignTxFeePenalty:          0.75,
		AutofillBoost:                1.05,
		MandatorySpend:               MandatorySpend{WindowDays: 7, Multiplier: 1.5},
		FallbackUtilizationThreshold: 0.6,
		WalletSupportPenalty:         0.8,
	}
}

// Validate checks that every multiplier is positive and thresholds are sane.
func (r *RuleSet) Validate() error {
	multipliers := []struct {
		name  string
		value float64
	}{
		{"utilizationPenalty.multiplier", r.UtilizationPenalty.Multiplier},
		{"aprSensitivePenalty.multiplier", r.APRSensitivePenalty.Multiplier},
		{"gpsConfidence.gpsUnavailableMultiplier", r.GPSConfidence.GPSUnavailableMultiplier},
		{"foreignTxFeePenalty", r.ForeignTxFeePenalty},
		{"autofillBoost", r.AutofillBoost},
		{"mandatorySpend.multiplier", r.MandatorySpend.Multiplier},
		{"walletSupportPenalty", r.WalletSupportPenalty},
	}
	for _, m := range multipliers {
		if m.value <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %v", ErrInvalidInput, m.name, m.value)
		}
	}

	if r.MandatorySpend.WindowDays < 0 {
		return fmt.Errorf("%w: mandatorySpend.windowDays must not be negative", ErrInvalidInput)
	}
	return nil
}
