package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS brand_identities (
    project_id TEXT PRIMARY KEY,
    identity_json TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS competitors (
    project_id TEXT NOT NULL,
    name TEXT NOT NULL,
    platforms TEXT,
    total_ads_known INTEGER DEFAULT 0,
    updated_at TEXT NOT NULL,
    PRIMARY KEY (project_id, name)
);

CREATE TABLE IF NOT EXISTS competitor_ads (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    project_id TEXT NOT NULL,
    competitor TEXT NOT NULL,
    external_id TEXT NOT NULL,
    headline TEXT,
    body TEXT,
    cta TEXT,
    snapshot_url TEXT,
    landing_url TEXT,
    landing_text TEXT,
    landing_fetched INTEGER DEFAULT 0,
    longevity_days REAL,
    platforms TEXT,
    collected_at TEXT NOT NULL,
    UNIQUE (project_id, competitor, external_id)
);

CREATE TABLE IF NOT EXISTS visual_guidelines (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    project_id TEXT NOT NULL,
    category TEXT NOT NULL,
    market_patterns TEXT NOT NULL,
    performance_signals TEXT NOT NULL,
    brand_alignment TEXT NOT NULL,
    created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS ad_templates (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    platforms TEXT,
    layout_json TEXT NOT NULL,
    style_rules_json TEXT NOT NULL,
    guideline_id INTEGER REFERENCES visual_guidelines(id),
    created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS generated_ads (
    id TEXT PRIMARY KEY,
    project_id TEXT NOT NULL,
    template_id TEXT NOT NULL REFERENCES ad_templates(id),
    assets_json TEXT NOT NULL,
    metadata_json TEXT NOT NULL,
    created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS image_layouts (
    image_ref TEXT PRIMARY KEY,
    layout_json TEXT NOT NULL,
    analyzed_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_competitor_ads_project ON competitor_ads(project_id, competitor);
CREATE INDEX IF NOT EXISTS idx_visual_guidelines_project ON visual_guidelines(project_id, id);
CREATE INDEX IF NOT EXISTS idx_generated_ads_project ON generated_ads(project_id, created_at);
`)
			return err
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
