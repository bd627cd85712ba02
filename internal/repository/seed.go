package repository

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"

	"github.com/opensource-finance/smartwallet/internal/domain"
)

//go:embed seed/*.json
var seedFS embed.FS

// SeedData is the bundled starter catalog.
type SeedData struct {
	Cards      []*domain.Card
	Rules      *domain.RuleSet
	Apps       []*domain.App
	Advisories []*domain.AdvisoryRule
}

// LoadSeedData decodes the embedded seed files.
func LoadSeedData() (*SeedData, error) {
	data := &SeedData{}
	files := []struct {
		name string
		dst  any
	}{
		{"seed/cards.json", &data.Cards},
		{"seed/rules.json", &data.Rules},
		{"seed/apps.json", &data.Apps},
		{"seed/advisories.json", &data.Advisories},
	}
	for _, f := range files {
		raw, err := seedFS.ReadFile(f.name)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", f.name, err)
		}
		if err := json.Unmarshal(raw, f.dst); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", f.name, err)
		}
	}
	return data, nil
}

// Seed fills an empty store with the bundled catalog. Collections that
// already hold data are left untouched.
func Seed(ctx context.Context, repo domain.Repository) error {
	data, err := LoadSeedData()
	if err != nil {
		return err
	}

	cards, err := repo.LoadCards(ctx)
	if err != nil {
		return err
	}
	if len(cards) == 0 {
		if err := repo.SaveRules(ctx, data.Rules); err != nil {
			return fmt.Errorf("failed to seed rules: %w", err)
		}
		for _, card := range data.Cards {
			if err := repo.AppendCard(ctx, card); err != nil {
				return fmt.Errorf("failed to seed card %s: %w", card.ID, err)
			}
		}
	}

	apps, err := repo.LoadApps(ctx)
	if err != nil {
		return err
	}
	if len(apps) == 0 {
		for _, app := range data.Apps {
			if err := repo.SaveApp(ctx, app); err != nil {
				return fmt.Errorf("failed to seed app %s: %w", app.ID, err)
			}
		}
	}

	advisories, err := repo.ListAdvisoryRules(ctx)
	if err != nil {
		return err
	}
	if len(advisories) == 0 {
		for _, rule := range data.Advisories {
			if err := repo.SaveAdvisoryRule(ctx, rule); err != nil {
				return fmt.Errorf("failed to seed advisory %s: %w", rule.ID, err)
			}
		}
	}

	return nil
}
