package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/TobiSchelling/adcraft/internal/creative"
)

// PutImageLayout caches the perceptual analysis of an image. A newer analysis
// of the same image replaces the old one.
func (db *DB) PutImageLayout(ctx context.Context, m creative.ImageLayoutMap) error {
	if m.ImageRef == "" {
		return &creative.InvalidInputError{Field: "image_ref", Reason: "required"}
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encoding layout map: %w", err)
	}
	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO image_layouts (image_ref, layout_json, analyzed_at) VALUES (?, ?, ?)
		ON CONFLICT(image_ref) DO UPDATE SET layout_json = excluded.layout_json,
			analyzed_at = excluded.analyzed_at`,
		m.ImageRef, string(data), now(),
	)
	return err
}

// GetImageLayout returns the cached analysis of an image, or creative.ErrNotFound.
func (db *DB) GetImageLayout(ctx context.Context, imageRef string) (*creative.ImageLayoutMap, error) {
	var raw string
	err := db.conn.QueryRowContext(ctx,
		"SELECT layout_json FROM image_layouts WHERE image_ref = ?", imageRef,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, creative.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var m creative.ImageLayoutMap
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("decoding layout map: %w", err)
	}
	return &m, nil
}
