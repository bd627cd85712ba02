// Package recommend orchestrates a recommendation request: catalog
// snapshot, memo cache, scoring, advisory rules, history and events.
package recommend

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/opensource-finance/smartwallet/internal/catalog"
	"github.com/opensource-finance/smartwallet/internal/domain"
	"github.com/opensource-finance/smartwallet/internal/metrics"
	"github.com/opensource-finance/smartwallet/internal/rules"
	"github.com/opensource-finance/smartwallet/internal/scoring"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// EngineVersion is stamped on every recommendation record.
const EngineVersion = "smartwallet-1.0"

var tracer = otel.Tracer("smartwallet-recommend")

// Options wires the service collaborators. Only Repository is required.
type Options struct {
	Repository domain.Repository
	Catalog    *catalog.Catalog
	Cache      domain.Cache
	Bus        domain.EventBus
	Advisories *rules.Engine
	Metrics    *metrics.Manager

	// MemoTTL bounds how long identical inputs share a result; 0 disables it.
	MemoTTL time.Duration

	// History persists every synchronous recommendation.
	History bool
}

// Service produces recommendations and manages the catalog around them.
type Service struct {
	repo       domain.Repository
	catalog    *catalog.Catalog
	cache      domain.Cache
	bus        domain.EventBus
	advisories *rules.Engine
	metrics    *metrics.Manager
	memoTTL    time.Duration
	history    bool
}

// Result is the outcome of a synchronous recommendation. Advisory rule
// messages are reported in Notices and never touch Recommendation.Warnings.
type Result struct {
	ID             string                  `json:"recommendationId"`
	Recommendation *domain.Recommendation  `json:"recommendation"`
	Cached         bool                    `json:"cached"`
	Advisories     []domain.AdvisoryResult `json:"advisories,omitempty"`
	Notices        []string                `json:"notices,omitempty"`
}

// NewService creates a recommendation service.
func NewService(opts Options) (*Service, error) {
	if opts.Repository == nil {
		return nil, fmt.Errorf("%w: repository is required", domain.ErrInvalidInput)
	}
	if opts.Catalog == nil {
		opts.Catalog = catalog.New(opts.Repository, 0)
	}

	return &Service{
		repo:       opts.Repository,
		catalog:    opts.Catalog,
		cache:      opts.Cache,
		bus:        opts.Bus,
		advisories: opts.Advisories,
		metrics:    opts.Metrics,
		memoTTL:    opts.MemoTTL,
		history:    opts.History,
	}, nil
}

// ValidateInput checks the fields a recommendation cannot be made without.
func ValidateInput(input domain.TransactionInput) error {
	if input.Amount == 0 || strings.TrimSpace(input.Category) == "" {
		return fmt.Errorf("%w: amount and category are required", domain.ErrInvalidInput)
	}
	if input.Amount < 0 {
		return fmt.Errorf("%w: amount must be positive", domain.ErrInvalidInput)
	}
	return nil
}

// MemoKey identifies identical transaction inputs.
func MemoKey(input domain.TransactionInput) string {
	raw, _ := json.Marshal(input)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// Recommend scores the catalog for one purchase. Identical inputs within
// the memo TTL are answered from the cache with Cached set.
func (s *Service) Recommend(ctx context.Context, input domain.TransactionInput, traceID string) (*Result, error) {
	start := time.Now()

	if err := ValidateInput(input); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "recommend",
		trace.WithAttributes(
			attribute.String("transaction.category", input.Category),
			attribute.String("transaction.merchant_app", input.MerchantApp),
		),
	)
	defer span.End()

	result := &Result{}
	var cards, advisoriesEvaluated int

	key := MemoKey(input)
	if cached := s.lookupMemo(ctx, key); cached != nil {
		result.Recommendation = cached
		result.Cached = true
		result.Advisories = s.runAdvisories(ctx, cached)
		advisoriesEvaluated = len(result.Advisories)
	} else {
		eval, err := s.evaluate(ctx, input)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.metrics.RecordRecommendation(false, err, 0, 0)
			return nil, err
		}
		result.Recommendation = eval.recommendation
		result.Advisories = eval.advisories
		cards = eval.cards
		advisoriesEvaluated = len(eval.advisories)
		s.storeMemo(ctx, key, eval.recommendation)
	}
	result.Notices = rules.Warnings(result.Advisories)

	record := newRecord(input, traceIDFor(ctx, traceID))
	completeRecord(record, result.Recommendation, recordStats{
		cached:              result.Cached,
		cardsEvaluated:      cards,
		advisoriesEvaluated: advisoriesEvaluated,
		start:               start,
	})
	result.ID = record.ID

	span.SetAttributes(
		attribute.String("recommendation.id", record.ID),
		attribute.Bool("recommendation.cached", result.Cached),
		attribute.String("recommendation.top_card", record.TopCardID()),
	)

	if s.history {
		if err := s.repo.SaveRecommendation(ctx, record); err != nil {
			slog.Error("failed to save recommendation",
				"recommendation_id", record.ID,
				"error", err,
			)
		}
	}

	s.publish(ctx, domain.TopicRecommendationGenerated, record)
	s.metrics.RecordRecommendation(result.Cached, nil, time.Since(start), cards)

	slog.Debug("recommendation served",
		"recommendation_id", record.ID,
		"trace_id", record.Metadata.TraceID,
		"top_card", record.TopCardID(),
		"cached", result.Cached,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return result, nil
}

// RequestedEvent is the payload published for async recommendations.
type RequestedEvent struct {
	ID      string                  `json:"id"`
	TraceID string                  `json:"traceId,omitempty"`
	Input   domain.TransactionInput `json:"input"`
}

// Submit stores a pending record and hands the input to the async worker.
func (s *Service) Submit(ctx context.Context, input domain.TransactionInput, traceID string) (*domain.RecommendationRecord, error) {
	if err := ValidateInput(input); err != nil {
		return nil, err
	}
	if s.bus == nil {
		return nil, errors.New("async recommendations require an event bus")
	}

	record := newRecord(input, traceIDFor(ctx, traceID))
	if err := s.repo.SaveRecommendation(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to save pending recommendation: %w", err)
	}

	payload, err := json.Marshal(RequestedEvent{ID: record.ID, TraceID: record.Metadata.TraceID, Input: input})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	if err := s.bus.Publish(ctx, domain.TopicRecommendationRequested, payload); err != nil {
		failRecord(record, err)
		if saveErr := s.repo.SaveRecommendation(ctx, record); saveErr != nil {
			slog.Error("failed to mark recommendation failed",
				"recommendation_id", record.ID,
				"error", saveErr,
			)
		}
		return nil, fmt.Errorf("failed to publish request: %w", err)
	}

	return record, nil
}

// Process completes a pending record. It is called by the async worker.
func (s *Service) Process(ctx context.Context, event RequestedEvent) (*domain.RecommendationRecord, error) {
	record, err := s.repo.GetRecommendation(ctx, event.ID)
	if err != nil {
		return nil, err
	}
	if record.Status != domain.RecommendationPending {
		return record, nil
	}

	start := time.Now()
	eval, err := s.evaluate(ctx, record.Input)
	if err != nil {
		failRecord(record, err)
	} else {
		completeRecord(record, eval.recommendation, recordStats{
			cardsEvaluated:      eval.cards,
			advisoriesEvaluated: len(eval.advisories),
			start:               start,
		})
	}

	if saveErr := s.repo.SaveRecommendation(ctx, record); saveErr != nil {
		return nil, fmt.Errorf("failed to save recommendation: %w", saveErr)
	}

	if record.Status == domain.RecommendationCompleted {
		s.publish(ctx, domain.TopicRecommendationGenerated, record)
	}
	s.metrics.RecordWorkerJob(record.Status)

	return record, err
}

// Get returns a stored recommendation record.
func (s *Service) Get(ctx context.Context, id string) (*domain.RecommendationRecord, error) {
	return s.repo.GetRecommendation(ctx, id)
}

type evaluation struct {
	recommendation *domain.Recommendation
	advisories     []domain.AdvisoryResult
	cards          int
}

// evaluate runs the scoring engine and advisory rules over the catalog.
func (s *Service) evaluate(ctx context.Context, input domain.TransactionInput) (*evaluation, error) {
	snap, hit, err := s.catalog.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordCatalogLoad(hit)

	rec := scoring.BuildRecommendation(snap.Cards, input, snap.Rules, snap.Apps)

	advisories := s.runAdvisories(ctx, rec)

	return &evaluation{
		recommendation: rec,
		advisories:     advisories,
		cards:          len(snap.Cards),
	}, nil
}

// runAdvisories evaluates the advisory rules against rec without changing it.
func (s *Service) runAdvisories(ctx context.Context, rec *domain.Recommendation) []domain.AdvisoryResult {
	if s.advisories == nil {
		return nil
	}
	advisories := s.advisories.Evaluate(ctx, rec)
	for _, r := range advisories {
		if r.Triggered {
			s.metrics.RecordAdvisoryTriggered(r.RuleID)
		}
		if r.Error != "" {
			slog.Warn("advisory rule failed",
				"rule_id", r.RuleID,
				"error", r.Error,
			)
		}
	}
	return advisories
}

func (s *Service) lookupMemo(ctx context.Context, key string) *domain.Recommendation {
	if s.cache == nil || s.memoTTL <= 0 {
		return nil
	}
	rec, err := s.cache.GetRecommendation(ctx, key)
	if err != nil {
		slog.Warn("memo cache lookup failed", "error", err)
		return nil
	}
	return rec
}

func (s *Service) storeMemo(ctx context.Context, key string, rec *domain.Recommendation) {
	if s.cache == nil || s.memoTTL <= 0 {
		return
	}
	if err := s.cache.SetRecommendation(ctx, key, rec, s.memoTTL); err != nil {
		slog.Warn("memo cache store failed", "error", err)
	}
}

// publish sends an event, logging instead of failing the caller.
func (s *Service) publish(ctx context.Context, topic string, v any) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to encode event", "topic", topic, "error", err)
		return
	}
	if err := s.bus.Publish(ctx, topic, payload); err != nil {
		slog.Error("failed to publish event", "topic", topic, "error", err)
	}
}

// traceIDFor prefers the active span's trace id over the caller's.
func traceIDFor(ctx context.Context, fallback string) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return fallback
}
