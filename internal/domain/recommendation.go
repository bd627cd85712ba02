package domain

import "time"

// ScoreMetadata records every factor applied to a card's score.
type ScoreMetadata struct {
	Rate               float64 `json:"rate"`
	UtilizationPenalty float64 `json:"utilizationPenalty"`
	APRPenalty         float64 `json:"aprPenalty"`
	LocationPenalty    float64 `json:"locationPenalty"`
	ForeignPenalty     float64 `json:"foreignPenalty"`
	WalletPenalty      float64 `json:"walletPenalty"`
	AutofillBoost      float64 `json:"autofillBoost"`
	MandatoryBoost     float64 `json:"mandatoryBoost"`
}

// ScoredCandidate is a card with its final score for one transaction.
type ScoredCandidate struct {
	Card     *Card         `json:"card"`
	Score    float64       `json:"score"`
	Metadata ScoreMetadata `json:"metadata"`
}

// AutofillDetails is the masked card payload shown for manual entry.
type AutofillDetails struct {
	CardName  string `json:"cardName"`
	Network   string `json:"network"`
	MaskedPAN string `json:"maskedPan"`
	Expiry    string `json:"expiry"`
}

// Recommendation is the outcome of one scoring pass.
// TopChoice, Fallback and Autofill are nil when there are not enough cards.
type Recommendation struct {
	Input               TransactionInput `json:"input"`
	PrioritizeMandatory bool             `json:"prioritizeMandatory"`
	TopChoice           *ScoredCandidate `json:"topChoice"`
	Fallback            *ScoredCandidate `json:"fallback"`
	Warnings            []string         `json:"warnings"`
	Autofill            *AutofillDetails `json:"autofill"`
}

// Warning messages emitted by the recommendation builder.
const (
	WarningHighUtilization = "Top card utilization is high; fallback may be preferred if balance increases."
	WarningGPSUnavailable  = "GPS unavailable; using network/location confidence fallback."
	WarningLocationMissing = "Location missing; merchant categorization relies on historical data."
)

// Recommendation record statuses.
const (
	RecommendationPending   = "pending"
	RecommendationCompleted = "completed"
	RecommendationFailed    = "failed"
)

// RecommendationRecord is the persisted history entry for a recommendation.
type RecommendationRecord struct {
	ID             string           `json:"id"`
	Status         string           `json:"status"`
	Input          TransactionInput `json:"input"`
	Recommendation *Recommendation  `json:"recommendation,omitempty"`
	Error          string           `json:"error,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
	CompletedAt    *time.Time       `json:"completedAt,omitempty"`
	Metadata       RecordMetadata   `json:"metadata"`
}

// RecordMetadata contains processing information for a recommendation.
type RecordMetadata struct {
	TraceID             string `json:"traceId,omitempty"`
	Cached              bool   `json:"cached"`
	CardsEvaluated      int    `json:"cardsEvaluated"`
	AdvisoriesEvaluated int    `json:"advisoriesEvaluated"`
	TotalMs             int64  `json:"totalMs"`
	EngineVersion       string `json:"engineVersion"`
}

// TopCardID returns the id of the recommended card, or "" when there is none.
func (r *RecommendationRecord) TopCardID() string {
	if r.Recommendation == nil || r.Recommendation.TopChoice == nil || r.Recommendation.TopChoice.Card == nil {
		return ""
	}
	return r.Recommendation.TopChoice.Card.ID
}
