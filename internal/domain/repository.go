// Package domain defines the core interfaces and types for SmartWallet.
package domain

import (
	"context"
	"time"
)

// Store is the collaborator the recommendation engine reads its inputs from.
// Cards, rules and apps are returned as plain values; callers must not
// mutate them.
type Store interface {
	LoadCards(ctx context.Context) ([]*Card, error)
	LoadRules(ctx context.Context) (*RuleSet, error)
	LoadApps(ctx context.Context) ([]*App, error)

	// AppendCard adds a card. Returns ErrConflict if the id is taken.
	AppendCard(ctx context.Context, card *Card) error
}

// Repository is the full persistence interface used by the service.
type Repository interface {
	Store

	// Configuration documents
	SaveRules(ctx context.Context, rules *RuleSet) error
	SaveApp(ctx context.Context, app *App) error

	// Advisory rule operations
	SaveAdvisoryRule(ctx context.Context, rule *AdvisoryRule) error
	ListAdvisoryRules(ctx context.Context) ([]*AdvisoryRule, error)

	// Recommendation history
	SaveRecommendation(ctx context.Context, rec *RecommendationRecord) error
	GetRecommendation(ctx context.Context, id string) (*RecommendationRecord, error)
	PurgeRecommendations(ctx context.Context, before time.Time) (int64, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the storage driver: "sqlite", "postgres" or "file"
	Driver string `json:"driver" koanf:"driver"`

	// SQLite specific
	SQLitePath string `json:"sqlitePath" koanf:"sqlite_path"`

	// PostgreSQL specific
	PostgresHost     string `json:"postgresHost" koanf:"postgres_host"`
	PostgresPort     int    `json:"postgresPort" koanf:"postgres_port"`
	PostgresUser     string `json:"postgresUser" koanf:"postgres_user"`
	PostgresPassword string `json:"-" koanf:"postgres_password"`
	PostgresDB       string `json:"postgresDb" koanf:"postgres_db"`
	PostgresSSLMode  string `json:"postgresSslMode" koanf:"postgres_ssl_mode"`

	// File driver: directory holding cards.json, rules.json|yaml, apps.json
	DataDir string `json:"dataDir" koanf:"data_dir"`

	// Seed empty stores with the bundled cards, rules and apps.
	Seed bool `json:"seed" koanf:"seed"`

	// Connection pool settings
	MaxOpenConns    int           `json:"maxOpenConns" koanf:"max_open_conns"`
	MaxIdleConns    int           `json:"maxIdleConns" koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime" koanf:"conn_max_lifetime"`
}
