package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/TobiSchelling/adcraft/internal/creative"
)

const adColumns = "id, project_id, template_id, assets_json, metadata_json, created_at"

// InsertGeneratedAd records a successfully rendered ad.
func (db *DB) InsertGeneratedAd(ctx context.Context, ad *creative.GeneratedAd) error {
	assets, err := json.Marshal(ad.Assets)
	if err != nil {
		return fmt.Errorf("encoding assets: %w", err)
	}
	meta, err := json.Marshal(ad.Metadata)
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}

	ts := now()
	result, err := db.conn.ExecContext(ctx,
		`INSERT INTO generated_ads (id, project_id, template_id, assets_json, metadata_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		ad.ID, ad.ProjectID, ad.TemplateID, string(assets), string(meta), ts,
	)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("generated ad %s: %w", ad.ID, ErrDuplicate)
	}
	ad.CreatedAt = parseTime(ts)
	return nil
}

// GetGeneratedAd returns a generated ad by id.
func (db *DB) GetGeneratedAd(ctx context.Context, id string) (*creative.GeneratedAd, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+adColumns+" FROM generated_ads WHERE id = ?", id,
	)
	return scanGeneratedAd(row)
}

// ListGeneratedAds returns a project's ads, most recently inserted first. A
// limit <= 0 returns everything.
func (db *DB) ListGeneratedAds(ctx context.Context, projectID string, limit int) ([]creative.GeneratedAd, error) {
	query := "SELECT " + adColumns + " FROM generated_ads WHERE project_id = ? ORDER BY rowid DESC"
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

	var out []creative.GeneratedAd
	for rows.Next() {
		ad, err := scanGeneratedAd(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ad)
	}
	return out, rows.Err()
}

func scanGeneratedAd(s scanner) (*creative.GeneratedAd, error) {
	var ad creative.GeneratedAd
	var assets, meta, created string
	err := s.Scan(&ad.ID, &ad.ProjectID, &ad.TemplateID, &assets, &meta, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, creative.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(assets), &ad.Assets); err != nil {
		return nil, fmt.Errorf("decoding assets of ad %s: %w", ad.ID, err)
	}
	if err := json.Unmarshal([]byte(meta), &ad.Metadata); err != nil {
		return nil, fmt.Errorf("decoding metadata of ad %s: %w", ad.ID, err)
	}
	ad.CreatedAt = parseTime(created)
	return &ad, nil
}
