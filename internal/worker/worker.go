// Package worker completes async recommendation requests from the EventBus.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opensource-finance/smartwallet/internal/domain"
	"github.com/opensource-finance/smartwallet/internal/recommend"
)

// Processor completes a pending recommendation.
type Processor interface {
	Process(ctx context.Context, event recommend.RequestedEvent) (*domain.RecommendationRecord, error)
}

// Worker consumes recommendation requests and hands them to a pool of
// goroutines.
type Worker struct {
	bus       domain.EventBus
	processor Processor

	subscriptions []domain.Subscription
	jobs          chan *domain.Message
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc

	processed atomic.Int64
	failed    atomic.Int64
}

// Config holds worker configuration.
type Config struct {
	// Concurrency is the number of goroutines processing requests.
	Concurrency int

	// QueueSize bounds requests accepted but not yet processed.
	QueueSize int
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, processor Processor) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:       bus,
		processor: processor,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start subscribes to recommendation requests and starts the pool.
func (w *Worker) Start(cfg Config) error {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}

	w.jobs = make(chan *domain.Message, cfg.QueueSize)

	sub, err := w.bus.Subscribe(w.ctx, domain.TopicRecommendationRequested, w.enqueue)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	for i := 0; i < cfg.Concurrency; i++ {
		w.wg.Add(1)
		go w.run()
	}

	slog.Info("worker started",
		"topic", domain.TopicRecommendationRequested,
		"concurrency", cfg.Concurrency,
	)

	return nil
}

// enqueue blocks the subscription until a slot frees up or the worker stops.
func (w *Worker) enqueue(ctx context.Context, msg *domain.Message) error {
	select {
	case w.jobs <- msg:
		return nil
	case <-w.ctx.Done():
		return w.ctx.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) run() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case msg := <-w.jobs:
			w.handle(msg)
		}
	}
}

// handle decodes one request and completes it.
func (w *Worker) handle(msg *domain.Message) {
	start := time.Now()

	var event recommend.RequestedEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		w.failed.Add(1)
		slog.Error("failed to parse recommendation request",
			"message_id", msg.ID,
			"error", err,
		)
		return
	}

	traceID := event.TraceID
	if traceID == "" {
		traceID = msg.Metadata["trace_id"]
	}

	record, err := w.processor.Process(w.ctx, event)
	if err != nil {
		w.failed.Add(1)
		slog.Error("recommendation request failed",
			"recommendation_id", event.ID,
			"trace_id", traceID,
			"error", err,
		)
		return
	}

	w.processed.Add(1)
	slog.Info("recommendation processed",
		"recommendation_id", record.ID,
		"trace_id", traceID,
		"status", record.Status,
		"top_card", record.TopCardID(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// Stop gracefully stops the pool. Requests still queued stay pending.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
	Processed         int64    `json:"processed"`
	Failed            int64    `json:"failed"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
		Processed:         w.processed.Load(),
		Failed:            w.failed.Load(),
	}
}
