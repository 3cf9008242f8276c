package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/TobiSchelling/adcraft/internal/creative"
)

const templateColumns = "id, name, platforms, layout_json, style_rules_json, guideline_id, created_at"

// InsertTemplate appends a template. An existing id yields ErrDuplicate; stored
// templates are never overwritten. CreatedAt is filled in when zero.
func (db *DB) InsertTemplate(ctx context.Context, t *creative.AdTemplate) error {
	platforms, err := encodeStrings(t.Platforms)
	if err != nil {
		return err
	}
	layout, err := json.Marshal(t.Layout)
	if err != nil {
		return fmt.Errorf("encoding layout: %w", err)
	}
	styles, err := json.Marshal(t.StyleRules)
	if err != nil {
		return fmt.Errorf("encoding style rules: %w", err)
	}

	ts := now()
	if !t.CreatedAt.IsZero() {
		ts = t.CreatedAt.UTC().Format(timeLayout)
	}
	result, err := db.conn.ExecContext(ctx,
		`INSERT INTO ad_templates (id, name, platforms, layout_json, style_rules_json, guideline_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		t.ID, t.Name, platforms, string(layout), string(styles), t.GuidelineID, ts,
	)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("template %s: %w", t.ID, ErrDuplicate)
	}
	t.CreatedAt = parseTime(ts)
	return nil
}

// GetTemplate returns a template by id, or creative.ErrNotFound.
func (db *DB) GetTemplate(ctx context.Context, id string) (*creative.AdTemplate, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+templateColumns+" FROM ad_templates WHERE id = ?", id,
	)
	return scanTemplate(row)
}

// TemplateForGuideline returns the latest template derived from a guideline,
// or creative.ErrNotFound.
func (db *DB) TemplateForGuideline(ctx context.Context, guidelineID int64) (*creative.AdTemplate, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+templateColumns+" FROM ad_templates WHERE guideline_id = ? ORDER BY rowid DESC LIMIT 1",
		guidelineID,
	)
	return scanTemplate(row)
}

// ListTemplates returns every stored template in insertion order.
func (db *DB) ListTemplates(ctx context.Context) ([]creative.AdTemplate, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+templateColumns+" FROM ad_templates ORDER BY rowid",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []creative.AdTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func scanTemplate(s scanner) (*creative.AdTemplate, error) {
	var t creative.AdTemplate
	var platforms sql.NullString
	var layout, styles, created string
	var guidelineID sql.NullInt64
	err := s.Scan(&t.ID, &t.Name, &platforms, &layout, &styles, &guidelineID, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, creative.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	t.Platforms = decodeStrings(platforms)
	if err := json.Unmarshal([]byte(layout), &t.Layout); err != nil {
		return nil, fmt.Errorf("decoding layout of template %s: %w", t.ID, err)
	}
	if err := json.Unmarshal([]byte(styles), &t.StyleRules); err != nil {
		return nil, fmt.Errorf("decoding style rules of template %s: %w", t.ID, err)
	}
	if guidelineID.Valid {
		id := guidelineID.Int64
		t.GuidelineID = &id
	}
	t.CreatedAt = parseTime(created)
	return &t, nil
}
