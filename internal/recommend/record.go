package recommend

import (
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/smartwallet/internal/domain"
)

type recordStats struct {
	cached              bool
	cardsEvaluated      int
	advisoriesEvaluated int
	start               time.Time
}

// newRecord creates a pending history record.
func newRecord(input domain.TransactionInput, traceID string) *domain.RecommendationRecord {
	return &domain.RecommendationRecord{
		ID:        uuid.New().String(),
		Status:    domain.RecommendationPending,
		Input:     input,
		CreatedAt: time.Now().UTC(),
		Metadata: domain.RecordMetadata{
			TraceID:       traceID,
			EngineVersion: EngineVersion,
		},
	}
}

// completeRecord attaches a recommendation and its processing metadata.
func completeRecord(rec *domain.RecommendationRecord, recommendation *domain.Recommendation, stats recordStats) {
	now := time.Now().UTC()
	rec.Status = domain.RecommendationCompleted
	rec.Recommendation = recommendation
	rec.Error = ""
	rec.CompletedAt = &now
	rec.Metadata.Cached = stats.cached
	rec.Metadata.CardsEvaluated = stats.cardsEvaluated
	rec.Metadata.AdvisoriesEvaluated = stats.advisoriesEvaluated
	if !stats.start.IsZero() {
		rec.Metadata.TotalMs = time.Since(stats.start).Milliseconds()
	}
}

// failRecord marks a record failed with the error message.
func failRecord(rec *domain.RecommendationRecord, err error) {
	now := time.Now().UTC()
	rec.Status = domain.RecommendationFailed
	rec.Error = err.Error()
	rec.CompletedAt = &now
}
