package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/TobiSchelling/adcraft/internal/creative"
)

const guidelineColumns = `id, project_id, category, market_patterns, performance_signals,
	brand_alignment, created_at`

// InsertGuideline appends a guideline to the project's history and fills in
// its ID and CreatedAt. Guidelines are never updated.
func (db *DB) InsertGuideline(ctx context.Context, g *creative.VisualGuideline) error {
	patterns, err := json.Marshal(g.MarketPatterns)
	if err != nil {
		return fmt.Errorf("encoding market patterns: %w", err)
	}
	signals, err := json.Marshal(g.PerformanceSignals)
	if err != nil {
		return fmt.Errorf("encoding performance signals: %w", err)
	}
	alignment, err := json.Marshal(g.BrandAlignment)
	if err != nil {
		return fmt.Errorf("encoding brand alignment: %w", err)
	}

	ts := now()
	result, err := db.conn.ExecContext(ctx,
		`INSERT INTO visual_guidelines
		(project_id, category, market_patterns, performance_signals, brand_alignment, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		g.ProjectID, g.Category, string(patterns), string(signals), string(alignment), ts,
	)
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	g.ID = id
	g.CreatedAt = parseTime(ts)
	return nil
}

// LatestGuideline returns the most recently inserted guideline of a project.
func (db *DB) LatestGuideline(ctx context.Context, projectID string) (*creative.VisualGuideline, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+guidelineColumns+` FROM visual_guidelines
		WHERE project_id = ? ORDER BY id DESC LIMIT 1`, projectID,
	)
	return scanGuideline(row)
}

// GetGuideline returns a guideline by id.
func (db *DB) GetGuideline(ctx context.Context, id int64) (*creative.VisualGuideline, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+guidelineColumns+" FROM visual_guidelines WHERE id = ?", id,
	)
	return scanGuideline(row)
}

// ListGuidelines returns a project's guideline history, newest first.
// A limit <= 0 returns everything.
func (db *DB) ListGuidelines(ctx context.Context, projectID string, limit int) ([]creative.VisualGuideline, error) {
	query := "SELECT " + guidelineColumns + ` FROM visual_guidelines
		WHERE project_id = ? ORDER BY id DESC`
	args := []any{projectID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []creative.VisualGuideline
	for rows.Next() {
		g, err := scanGuideline(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *g)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanGuideline(s scanner) (*creative.VisualGuideline, error) {
	var g creative.VisualGuideline
	var patterns, signals, alignment, created string
	err := s.Scan(&g.ID, &g.ProjectID, &g.Category, &patterns, &signals, &alignment, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, creative.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(patterns), &g.MarketPatterns); err != nil {
		return nil, fmt.Errorf("decoding market patterns of guideline %d: %w", g.ID, err)
	}
	if err := json.Unmarshal([]byte(signals), &g.PerformanceSignals); err != nil {
		return nil, fmt.Errorf("decoding performance signals of guideline %d: %w", g.ID, err)
	}
	if err := json.Unmarshal([]byte(alignment), &g.BrandAlignment); err != nil {
		return nil, fmt.Errorf("decoding brand alignment of guideline %d: %w", g.ID, err)
	}
	g.CreatedAt = parseTime(created)
	return &g, nil
}
