package repository

// Schema definitions for the SmartWallet database.
// Compatible with both SQLite and PostgreSQL.

// Cards keep their insertion position so ranking ties resolve the same way
// on every load.
const schemaCards = `
CREATE TABLE IF NOT EXISTS cards (
    id TEXT PRIMARY KEY,
    position INTEGER NOT NULL,
    name TEXT NOT NULL,
    network TEXT NOT NULL,
    data TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cards_position ON cards(position);
`

const schemaRuleSets = `
CREATE TABLE IF NOT EXISTS rule_sets (
    id TEXT PRIMARY KEY,
    data TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

const schemaApps = `
CREATE TABLE IF NOT EXISTS apps (
    id TEXT PRIMARY KEY,
    position INTEGER NOT NULL,
    name TEXT NOT NULL,
    category TEXT NOT NULL
);
`

const schemaAdvisoryRules = `
CREATE TABLE IF NOT EXISTS advisory_rules (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    expression TEXT NOT NULL,
    message TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_advisory_rules_enabled ON advisory_rules(enabled);
`

const schemaRecommendations = `
CREATE TABLE IF NOT EXISTS recommendations (
    id TEXT PRIMARY KEY,
    status TEXT NOT NULL,
    input TEXT NOT NULL,
    recommendation TEXT,
    error TEXT,
    metadata TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    completed_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_recommendations_created ON recommendations(created_at);
CREATE INDEX IF NOT EXISTS idx_recommendations_status ON recommendations(status);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaCards,
		schemaRuleSets,
		schemaApps,
		schemaAdvisoryRules,
		schemaRecommendations,
	}
}
