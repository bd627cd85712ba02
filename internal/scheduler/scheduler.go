// Package scheduler runs periodic maintenance jobs.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/smartwallet/internal/metrics"
	"github.com/robfig/cron/v3"
)

// Purger removes recommendation history created before a cutoff.
type Purger interface {
	PurgeRecommendations(ctx context.Context, before time.Time) (int64, error)
}

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron    *cron.Cron
	purger  Purger
	maxAge  time.Duration
	metrics *metrics.Manager
	ctx     context.Context
	now     func() time.Time
}

// NewScheduler creates a scheduler. Cron specs include a seconds field.
func NewScheduler(ctx context.Context, purger Purger, maxAge time.Duration, m *metrics.Manager) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds()),
		purger:  purger,
		maxAge:  maxAge,
		metrics: m,
		ctx:     ctx,
		now:     time.Now,
	}
}

// RegisterRetention registers the history retention job.
func (s *Scheduler) RegisterRetention(spec string) error {
	if s.maxAge <= 0 {
		return fmt.Errorf("retention max age must be positive, got %s", s.maxAge)
	}
	if _, err := s.cron.AddFunc(spec, func() {
		if _, err := s.PurgeNow(); err != nil {
			slog.Error("retention purge failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("register retention task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	slog.Info("scheduler started", "jobs", len(s.cron.Entries()))
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	slog.Info("scheduler stopped")
}

// PurgeNow removes history older than the retention window.
func (s *Scheduler) PurgeNow() (int64, error) {
	cutoff := s.now().UTC().Add(-s.maxAge)

	purged, err := s.purger.PurgeRecommendations(s.ctx, cutoff)
	if err != nil {
		return 0, err
	}
	s.metrics.RecordPurged(purged)

	slog.Info("recommendation history purged",
		"purged", purged,
		"cutoff", cutoff.Format(time.RFC3339),
	)
	return purged, nil
}
