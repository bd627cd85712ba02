// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/opensource-finance/smartwallet/internal/domain"
)

// activeRuleSetID is the single row the rule set is stored under.
const activeRuleSetID = "active"

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(ctx context.Context, cfg domain.RepositoryConfig) (domain.Repository, error) {
	if cfg.Driver == "file" {
		return NewFileRepository(cfg.DataDir, cfg.Seed)
	}

	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(ctx, cfg)
	case "postgres":
		db, err = openPostgres(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	if err := repo.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if cfg.Seed {
		if err := Seed(ctx, repo); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to seed database: %w", err)
		}
	}

	return repo, nil
}

func (r *SQLRepository) migrate(ctx context.Context) error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.ExecContext(ctx, schema); err != nil {
			return err
		}
	}
	return nil
}

// LoadCards returns the card collection in insertion order.
func (r *SQLRepository) LoadCards(ctx context.Context) ([]*domain.Card, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT data FROM cards ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cards := []*domain.Card{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}

		var card domain.Card
		if err := json.Unmarshal([]byte(data), &card); err != nil {
			return nil, fmt.Errorf("failed to parse card: %w", err)
		}
		cards = append(cards, &card)
	}

	return cards, rows.Err()
}

// AppendCard stores a card after the existing ones.
// Returns domain.ErrConflict if a card with the same id exists.
func (r *SQLRepository) AppendCard(ctx context.Context, card *domain.Card) error {
	if card == nil || card.ID == "" {
		return fmt.Errorf("%w: card id is required", domain.ErrInvalidInput)
	}

	data, err := json.Marshal(card)
	if err != nil {
		return fmt.Errorf("failed to encode card: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, r.rebind(`SELECT COUNT(1) FROM cards WHERE id = ?`), card.ID).Scan(&exists)
	if err != nil {
		return err
	}
	if exists > 0 {
		return fmt.Errorf("%w: card %s", domain.ErrConflict, card.ID)
	}

	var position int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(position), 0) + 1 FROM cards`).Scan(&position); err != nil {
		return err
	}

	query := `
		INSERT INTO cards (id, position, name, network, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	if _, err := tx.ExecContext(ctx, r.rebind(query),
		card.ID, position, card.Name, card.Network, string(data), time.Now().UTC(),
	); err != nil {
		return err
	}

	return tx.Commit()
}

// LoadRules returns the active rule set, or the default rule set if none
// has been stored.
func (r *SQLRepository) LoadRules(ctx context.Context) (*domain.RuleSet, error) {
	var data string
	err := r.db.QueryRowContext(ctx, r.rebind(`SELECT data FROM rule_sets WHERE id = ?`), activeRuleSetID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DefaultRuleSet(), nil
	}
	if err != nil {
		return nil, err
	}

	var rules domain.RuleSet
	if err := json.Unmarshal([]byte(data), &rules); err != nil {
		return nil, fmt.Errorf("failed to parse rule set: %w", err)
	}
	return &rules, nil
}

// SaveRules replaces the active rule set.
func (r *SQLRepository) SaveRules(ctx context.Context, rules *domain.RuleSet) error {
	if err := rules.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(rules)
	if err != nil {
		return fmt.Errorf("failed to encode rule set: %w", err)
	}

	query := `
		INSERT INTO rule_sets (id, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			data = excluded.data,
			updated_at = excluded.updated_at
	`
	_, err = r.db.ExecContext(ctx, r.rebind(query), activeRuleSetID, string(data), time.Now().UTC())
	return err
}

// LoadApps returns the merchant app mapping in insertion order.
func (r *SQLRepository) LoadApps(ctx context.Context) ([]*domain.App, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, category FROM apps ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	apps := []*domain.App{}
	for rows.Next() {
		var app domain.App
		if err := rows.Scan(&app.ID, &app.Name, &app.Category); err != nil {
			return nil, err
		}
		apps = append(apps, &app)
	}

	return apps, rows.Err()
}

// SaveApp inserts or updates a merchant app mapping.
func (r *SQLRepository) SaveApp(ctx context.Context, app *domain.App) error {
	if app == nil || app.ID == "" || app.Category == "" {
		return fmt.Errorf("%w: app id and category are required", domain.ErrInvalidInput)
	}

	query := `
		INSERT INTO apps (id, position, name, category)
		VALUES (?, (SELECT COALESCE(MAX(position), 0) + 1 FROM apps), ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			category = excluded.category
	`
	_, err := r.db.ExecContext(ctx, r.rebind(query), app.ID, app.Name, domain.NormalizeCategory(app.Category))
	return err
}

// SaveAdvisoryRule stores an advisory rule, replacing any rule with the same id.
func (r *SQLRepository) SaveAdvisoryRule(ctx context.Context, rule *domain.AdvisoryRule) error {
	if rule == nil || rule.ID == "" || rule.Expression == "" {
		return fmt.Errorf("%w: advisory rule id and expression are required", domain.ErrInvalidInput)
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO advisory_rules (
			id, name, description, version, expression, message, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			version = excluded.version,
			expression = excluded.expression,
			message = excluded.message,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, rule.Name, rule.Description, rule.Version,
		rule.Expression, rule.Message, enabled,
		now, now,
	)
	return err
}

// ListAdvisoryRules returns all advisory rules, enabled or not, ordered by name.
func (r *SQLRepository) ListAdvisoryRules(ctx context.Context) ([]*domain.AdvisoryRule, error) {
	query := `
		SELECT id, name, description, version, expression, message, enabled
		FROM advisory_rules
		ORDER BY name, id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rules := []*domain.AdvisoryRule{}
	for rows.Next() {
		var rule domain.AdvisoryRule
		var description sql.NullString
		var enabled int

		if err := rows.Scan(
			&rule.ID, &rule.Name, &description, &rule.Version,
			&rule.Expression, &rule.Message, &enabled,
		); err != nil {
			return nil, err
		}

		rule.Description = description.String
		rule.Enabled = enabled == 1
		rules = append(rules, &rule)
	}

	return rules, rows.Err()
}

// SaveRecommendation inserts or updates a recommendation record.
func (r *SQLRepository) SaveRecommendation(ctx context.Context, rec *domain.RecommendationRecord) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("%w: recommendation id is required", domain.ErrInvalidInput)
	}

	input, _ := json.Marshal(rec.Input)
	metadata, _ := json.Marshal(rec.Metadata)

	var result sql.NullString
	if rec.Recommendation != nil {
		data, err := json.Marshal(rec.Recommendation)
		if err != nil {
			return fmt.Errorf("failed to encode recommendation: %w", err)
		}
		result = sql.NullString{String: string(data), Valid: true}
	}

	var completedAt sql.NullTime
	if rec.CompletedAt != nil {
		completedAt = sql.NullTime{Time: rec.CompletedAt.UTC(), Valid: true}
	}

	query := `
		INSERT INTO recommendations (
			id, status, input, recommendation, error, metadata, created_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			recommendation = excluded.recommendation,
			error = excluded.error,
			metadata = excluded.metadata,
			completed_at = excluded.completed_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rec.ID, rec.Status, string(input), result, rec.Error, string(metadata),
		rec.CreatedAt.UTC(), completedAt,
	)
	return err
}

// GetRecommendation retrieves a recommendation record by id.
func (r *SQLRepository) GetRecommendation(ctx context.Context, id string) (*domain.RecommendationRecord, error) {
	query := `
		SELECT id, status, input, recommendation, error, metadata, created_at, completed_at
		FROM recommendations
		WHERE id = ?
	`

	var rec domain.RecommendationRecord
	var input, metadata string
	var result, errMsg sql.NullString
	var completedAt sql.NullTime

	err := r.db.QueryRowContext(ctx, r.rebind(query), id).Scan(
		&rec.ID, &rec.Status, &input, &result, &errMsg, &metadata,
		&rec.CreatedAt, &completedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: recommendation %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(input), &rec.Input); err != nil {
		return nil, fmt.Errorf("failed to parse recommendation input: %w", err)
	}
	if err := json.Unmarshal([]byte(metadata), &rec.Metadata); err != nil {
		return nil, fmt.Errorf("failed to parse recommendation metadata: %w", err)
	}
	if result.Valid && result.String != "" {
		rec.Recommendation = &domain.Recommendation{}
		if err := json.Unmarshal([]byte(result.String), rec.Recommendation); err != nil {
			return nil, fmt.Errorf("failed to parse recommendation: %w", err)
		}
	}
	rec.Error = errMsg.String
	if completedAt.Valid {
		t := completedAt.Time
		rec.CompletedAt = &t
	}

	return &rec, nil
}

// PurgeRecommendations deletes records created before the cutoff.
func (r *SQLRepository) PurgeRecommendations(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, r.rebind(`DELETE FROM recommendations WHERE created_at < ?`), before.UTC())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = strconv.AppendInt(result, int64(n), 10)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
