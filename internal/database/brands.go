package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/TobiSchelling/adcraft/internal/creative"
)

// UpsertBrandIdentity stores the brand identity for a project, replacing any
// previous one.
func (db *DB) UpsertBrandIdentity(ctx context.Context, b creative.BrandIdentity) error {
	if b.ProjectID == "" {
		return &creative.InvalidInputError{Field: "project_id", Reason: "required"}
	}
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encoding brand identity: %w", err)
	}
	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO brand_identities (project_id, identity_json, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(project_id) DO UPDATE SET identity_json = excluded.identity_json,
			updated_at = excluded.updated_at`,
		b.ProjectID, string(data), now(),
	)
	return err
}

// GetBrandIdentity returns the brand identity of a project, or
// creative.ErrNotFound.
func (db *DB) GetBrandIdentity(ctx context.Context, projectID string) (*creative.BrandIdentity, error) {
	var raw string
	err := db.conn.QueryRowContext(ctx,
		"SELECT identity_json FROM brand_identities WHERE project_id = ?", projectID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, creative.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var b creative.BrandIdentity
	if err := json.Unmarshal([]byte(raw), &b); err != nil {
		return nil, fmt.Errorf("decoding brand identity: %w", err)
	}
	return &b, nil
}

// ListProjects returns every project id known to the store.
func (db *DB) ListProjects(ctx context.Context) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT project_id FROM brand_identities
		UNION SELECT project_id FROM competitors
		UNION SELECT project_id FROM visual_guidelines
		ORDER BY 1`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}
