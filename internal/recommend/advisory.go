package recommend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/opensource-finance/smartwallet/internal/domain"
)

// ErrAdvisoriesDisabled is returned when the service runs without an advisory engine.
var ErrAdvisoriesDisabled = errors.New("advisory rules are disabled")

// Advisories lists the stored advisory rules.
func (s *Service) Advisories(ctx context.Context) ([]*domain.AdvisoryRule, error) {
	return s.repo.ListAdvisoryRules(ctx)
}

// SaveAdvisory validates, stores and activates an advisory rule.
func (s *Service) SaveAdvisory(ctx context.Context, rule *domain.AdvisoryRule) error {
	if s.advisories == nil {
		return ErrAdvisoriesDisabled
	}
	if rule == nil || rule.ID == "" || rule.Expression == "" {
		return fmt.Errorf("%w: id and expression are required", domain.ErrInvalidInput)
	}
	if err := s.advisories.ValidateRule(rule); err != nil {
		return err
	}
	if err := s.repo.SaveAdvisoryRule(ctx, rule); err != nil {
		return err
	}
	if err := s.advisories.LoadRule(rule); err != nil {
		return err
	}

	slog.Info("advisory rule saved",
		"rule_id", rule.ID,
		"enabled", rule.Enabled,
	)
	return nil
}

// ReloadAdvisories recompiles every stored rule and returns how many are active.
// The previous set stays active when any rule fails to compile.
func (s *Service) ReloadAdvisories(ctx context.Context) (int, error) {
	if s.advisories == nil {
		return 0, ErrAdvisoriesDisabled
	}

	stored, err := s.repo.ListAdvisoryRules(ctx)
	if err != nil {
		return 0, err
	}
	if err := s.advisories.ReloadRules(stored); err != nil {
		return 0, fmt.Errorf("failed to reload advisory rules: %w", err)
	}

	count := s.advisories.RulesCount()
	slog.Info("advisory rules reloaded", "count", count)
	return count, nil
}
