package recommend

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/opensource-finance/smartwallet/internal/domain"
)

// Cards returns the card collection in insertion order.
func (s *Service) Cards(ctx context.Context) ([]*domain.Card, error) {
	snap, hit, err := s.catalog.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordCatalogLoad(hit)
	return snap.Cards, nil
}

// AddCard validates a card request, stores the card and announces it.
func (s *Service) AddCard(ctx context.Context, req *domain.CardRequest) (*domain.Card, error) {
	if req == nil || strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Network) == "" {
		return nil, fmt.Errorf("%w: name and network are required", domain.ErrInvalidInput)
	}

	card := req.ToCard()
	if err := s.catalog.AppendCard(ctx, card); err != nil {
		return nil, err
	}

	s.metrics.RecordCardAdded()
	s.publish(ctx, domain.TopicCardAdded, card)

	slog.Info("card added",
		"card_id", card.ID,
		"network", card.Network,
	)
	return card, nil
}

// Rules returns the active rule set.
func (s *Service) Rules(ctx context.Context) (*domain.RuleSet, error) {
	snap, hit, err := s.catalog.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordCatalogLoad(hit)
	return snap.Rules, nil
}

// SaveRules replaces the active rule set.
func (s *Service) SaveRules(ctx context.Context, rules *domain.RuleSet) error {
	if rules == nil {
		return fmt.Errorf("%w: rule set is required", domain.ErrInvalidInput)
	}
	if err := s.repo.SaveRules(ctx, rules); err != nil {
		return err
	}
	s.catalog.Invalidate()

	slog.Info("rule set replaced")
	return nil
}

// Apps returns the merchant app mappings.
func (s *Service) Apps(ctx context.Context) ([]*domain.App, error) {
	snap, hit, err := s.catalog.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordCatalogLoad(hit)
	return snap.Apps, nil
}

// SaveApp inserts or replaces a merchant app mapping.
func (s *Service) SaveApp(ctx context.Context, app *domain.App) error {
	if app == nil || strings.TrimSpace(app.ID) == "" || strings.TrimSpace(app.Category) == "" {
		return fmt.Errorf("%w: app id and category are required", domain.ErrInvalidInput)
	}
	app.ID = strings.TrimSpace(app.ID)
	app.Category = domain.NormalizeCategory(app.Category)
	if err := s.repo.SaveApp(ctx, app); err != nil {
		return err
	}
	s.catalog.Invalidate()
	return nil
}
