package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/opensource-finance/smartwallet/internal/domain"
	"gopkg.in/yaml.v3"
)

// File names inside the data directory.
const (
	cardsFile           = "cards.json"
	rulesFile           = "rules.json"
	rulesYAMLFile       = "rules.yaml"
	appsFile            = "apps.json"
	appsYAMLFile        = "apps.yaml"
	advisoriesFile      = "advisories.json"
	recommendationsFile = "recommendations.json"
)

// FileRepository implements domain.Repository on a directory of JSON
// documents. Rules and apps may also be hand-edited as YAML; a YAML file
// takes precedence over its JSON sibling when both exist.
type FileRepository struct {
	mu  sync.RWMutex
	dir string
}

// NewFileRepository opens (and creates if needed) a file-backed store.
func NewFileRepository(dir string, seed bool) (*FileRepository, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: data directory is required", domain.ErrInvalidInput)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	repo := &FileRepository{dir: dir}
	if seed {
		if err := Seed(context.Background(), repo); err != nil {
			return nil, fmt.Errorf("failed to seed data directory: %w", err)
		}
	}
	return repo, nil
}

// LoadCards returns the cards in file order.
func (r *FileRepository) LoadCards(_ context.Context) ([]*domain.Card, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cards := []*domain.Card{}
	if err := r.readJSON(cardsFile, &cards); err != nil {
		return nil, err
	}
	return cards, nil
}

// AppendCard appends a card to cards.json.
func (r *FileRepository) AppendCard(_ context.Context, card *domain.Card) error {
	if card == nil || card.ID == "" {
		return fmt.Errorf("%w: card id is required", domain.ErrInvalidInput)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cards := []*domain.Card{}
	if err := r.readJSON(cardsFile, &cards); err != nil {
		return err
	}
	for _, c := range cards {
		if c.ID == card.ID {
			return fmt.Errorf("%w: card %s", domain.ErrConflict, card.ID)
		}
	}

	return r.writeJSON(cardsFile, append(cards, card))
}

// LoadRules reads rules.yaml or rules.json, falling back to the default
// rule set when neither exists.
func (r *FileRepository) LoadRules(_ context.Context) (*domain.RuleSet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rules := &domain.RuleSet{}
	found, err := r.readDocument(rulesYAMLFile, rulesFile, rules)
	if err != nil {
		return nil, err
	}
	if !found {
		return domain.DefaultRuleSet(), nil
	}
	return rules, nil
}

// SaveRules writes rules.json and removes a stale rules.yaml.
func (r *FileRepository) SaveRules(_ context.Context, rules *domain.RuleSet) error {
	if err := rules.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.Remove(r.path(rulesYAMLFile)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return r.writeJSON(rulesFile, rules)
}

// LoadApps reads apps.yaml or apps.json.
func (r *FileRepository) LoadApps(_ context.Context) ([]*domain.App, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	apps := []*domain.App{}
	if _, err := r.readDocument(appsYAMLFile, appsFile, &apps); err != nil {
		return nil, err
	}
	return apps, nil
}

// SaveApp inserts or replaces an app mapping.
func (r *FileRepository) SaveApp(_ context.Context, app *domain.App) error {
	if app == nil || app.ID == "" || app.Category == "" {
		return fmt.Errorf("%w: app id and category are required", domain.ErrInvalidInput)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	apps := []*domain.App{}
	if _, err := r.readDocument(appsYAMLFile, appsFile, &apps); err != nil {
		return err
	}

	saved := *app
	saved.Category = domain.NormalizeCategory(app.Category)

	replaced := false
	for i, a := range apps {
		if a.ID == saved.ID {
			apps[i] = &saved
			replaced = true
			break
		}
	}
	if !replaced {
		apps = append(apps, &saved)
	}

	if err := os.Remove(r.path(appsYAMLFile)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return r.writeJSON(appsFile, apps)
}

// SaveAdvisoryRule inserts or replaces an advisory rule.
func (r *FileRepository) SaveAdvisoryRule(_ context.Context, rule *domain.AdvisoryRule) error {
	if rule == nil || rule.ID == "" || rule.Expression == "" {
		return fmt.Errorf("%w: advisory rule id and expression are required", domain.ErrInvalidInput)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rules := []*domain.AdvisoryRule{}
	if err := r.readJSON(advisoriesFile, &rules); err != nil {
		return err
	}

	replaced := false
	for i, existing := range rules {
		if existing.ID == rule.ID {
			rules[i] = rule
			replaced = true
			break
		}
	}
	if !replaced {
		rules = append(rules, rule)
	}

	return r.writeJSON(advisoriesFile, rules)
}

// ListAdvisoryRules returns all advisory rules ordered by name.
func (r *FileRepository) ListAdvisoryRules(_ context.Context) ([]*domain.AdvisoryRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rules := []*domain.AdvisoryRule{}
	if err := r.readJSON(advisoriesFile, &rules); err != nil {
		return nil, err
	}
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Name < rules[j].Name
	})
	return rules, nil
}

// SaveRecommendation inserts or replaces a recommendation record.
func (r *FileRepository) SaveRecommendation(_ context.Context, rec *domain.RecommendationRecord) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("%w: recommendation id is required", domain.ErrInvalidInput)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	records := []*domain.RecommendationRecord{}
	if err := r.readJSON(recommendationsFile, &records); err != nil {
		return err
	}

	replaced := false
	for i, existing := range records {
		if existing.ID == rec.ID {
			records[i] = rec
			replaced = true
			break
		}
	}
	if !replaced {
		records = append(records, rec)
	}

	return r.writeJSON(recommendationsFile, records)
}

// GetRecommendation retrieves a recommendation record by id.
func (r *FileRepository) GetRecommendation(_ context.Context, id string) (*domain.RecommendationRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	records := []*domain.RecommendationRecord{}
	if err := r.readJSON(recommendationsFile, &records); err != nil {
		return nil, err
	}
	for _, rec := range records {
		if rec.ID == id {
			return rec, nil
		}
	}
	return nil, fmt.Errorf("%w: recommendation %s", domain.ErrNotFound, id)
}

// PurgeRecommendations drops records created before the cutoff.
func (r *FileRepository) PurgeRecommendations(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	records := []*domain.RecommendationRecord{}
	if err := r.readJSON(recommendationsFile, &records); err != nil {
		return 0, err
	}

	kept := records[:0]
	for _, rec := range records {
		if !rec.CreatedAt.Before(before) {
			kept = append(kept, rec)
		}
	}
	purged := int64(len(records) - len(kept))
	if purged == 0 {
		return 0, nil
	}

	return purged, r.writeJSON(recommendationsFile, kept)
}

// Ping checks that the data directory is reachable.
func (r *FileRepository) Ping(_ context.Context) error {
	info, err := os.Stat(r.dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", r.dir)
	}
	return nil
}

// Close is a no-op; every write is flushed immediately.
func (r *FileRepository) Close() error {
	return nil
}

func (r *FileRepository) path(name string) string {
	return filepath.Join(r.dir, name)
}

// readJSON decodes a JSON file into dst. A missing file leaves dst untouched.
func (r *FileRepository) readJSON(name string, dst any) error {
	raw, err := os.ReadFile(r.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return nil
}

// readDocument decodes the YAML file if present, else the JSON file.
// It reports whether either file existed.
func (r *FileRepository) readDocument(yamlName, jsonName string, dst any) (bool, error) {
	raw, err := os.ReadFile(r.path(yamlName))
	switch {
	case err == nil:
		if err := yaml.Unmarshal(raw, dst); err != nil {
			return false, fmt.Errorf("failed to parse %s: %w", yamlName, err)
		}
		return true, nil
	case !errors.Is(err, fs.ErrNotExist):
		return false, err
	}

	raw, err = os.ReadFile(r.path(jsonName))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("failed to parse %s: %w", jsonName, err)
	}
	return true, nil
}

// writeJSON writes through a temp file so readers never see a partial document.
func (r *FileRepository) writeJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}

	tmp, err := os.CreateTemp(r.dir, name+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), r.path(name))
}
