package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/TobiSchelling/adcraft/internal/creative"
)

// PendingLanding is a competitor ad whose landing page has not been fetched.
type PendingLanding struct {
	RowID      int64
	Competitor string
	URL        string
}

// ImportBatch upserts the competitor record and inserts its ads. Ads already
// stored under the same (project, competitor, id) are skipped. Returns the
// number of new ads.
func (db *DB) ImportBatch(ctx context.Context, projectID string, b creative.CompetitorBatch) (int, error) {
	name := strings.TrimSpace(b.Competitor)
	if projectID == "" {
		return 0, &creative.InvalidInputError{Field: "project_id", Reason: "required"}
	}
	if name == "" {
		return 0, &creative.InvalidInputError{Field: "competitor", Reason: "required"}
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	platforms, err := encodeStrings(b.PlatformsObserved)
	if err != nil {
		return 0, err
	}
	ts := now()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO competitors (project_id, name, platforms, total_ads_known, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(project_id, name) DO UPDATE SET
			platforms = excluded.platforms,
			total_ads_known = MAX(competitors.total_ads_known, excluded.total_ads_known),
			updated_at = excluded.updated_at`,
		projectID, name, platforms, b.TotalAdsKnown, ts,
	); err != nil {
		return 0, fmt.Errorf("upserting competitor %s: %w", name, err)
	}

	inserted := 0
	for i, ad := range b.Ads {
		externalID := strings.TrimSpace(ad.ID)
		if externalID == "" {
			externalID = fmt.Sprintf("%s-%d", name, i)
		}
		adPlatforms, err := encodeStrings(ad.Platforms)
		if err != nil {
			return 0, err
		}
		var longevity *float64
		if ad.LongevityDays != nil && *ad.LongevityDays >= 0 {
			longevity = ad.LongevityDays
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO competitor_ads
			(project_id, competitor, external_id, headline, body, cta, snapshot_url,
			 landing_url, landing_text, landing_fetched, longevity_days, platforms, collected_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(project_id, competitor, external_id) DO NOTHING`,
			projectID, name, externalID, ad.Headline, ad.Body, ad.CTA, ad.SnapshotURL,
			ad.LandingURL, ad.LandingText, boolInt(ad.LandingText != ""), longevity, adPlatforms, ts,
		)
		if err != nil {
			return 0, fmt.Errorf("inserting ad %s: %w", externalID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

// ListBatches reassembles every competitor of a project with its stored ads,
// ordered by competitor name.
func (db *DB) ListBatches(ctx context.Context, projectID string) ([]creative.CompetitorBatch, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT name, platforms, total_ads_known FROM competitors
		WHERE project_id = ? ORDER BY name`, projectID,
	)
	if err != nil {
		return nil, err
	}

	var batches []creative.CompetitorBatch
	index := make(map[string]int)
	for rows.Next() {
		var b creative.CompetitorBatch
		var platforms sql.NullString
		if err := rows.Scan(&b.Competitor, &platforms, &b.TotalAdsKnown); err != nil {
			rows.Close()
			return nil, err
		}
		b.PlatformsObserved = decodeStrings(platforms)
		index[b.Competitor] = len(batches)
		batches = append(batches, b)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	adRows, err := db.conn.QueryContext(ctx,
		`SELECT competitor, external_id, headline, body, cta, snapshot_url, landing_url,
		landing_text, longevity_days, platforms
		FROM competitor_ads WHERE project_id = ? ORDER BY competitor, id`, projectID,
	)
	if err != nil {
		return nil, err
	}
	defer adRows.Close()

	for adRows.Next() {
		var competitor string
		var ad creative.AdSample
		var headline, body, cta, snapshot, landing, landingText, platforms sql.NullString
		var longevity sql.NullFloat64
		if err := adRows.Scan(&competitor, &ad.ID, &headline, &body, &cta, &snapshot,
			&landing, &landingText, &longevity, &platforms); err != nil {
			return nil, err
		}
		ad.Headline = headline.String
		ad.Body = body.String
		ad.CTA = cta.String
		ad.SnapshotURL = snapshot.String
		ad.LandingURL = landing.String
		ad.LandingText = landingText.String
		if longevity.Valid {
			v := longevity.Float64
			ad.LongevityDays = &v
		}
		ad.Platforms = decodeStrings(platforms)

		i, ok := index[competitor]
		if !ok {
			continue
		}
		batches[i].Ads = append(batches[i].Ads, ad)
	}
	return batches, adRows.Err()
}

// AdsNeedingLanding returns ads with a landing URL that have not been fetched.
func (db *DB) AdsNeedingLanding(ctx context.Context, projectID string) ([]PendingLanding, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, competitor, landing_url FROM competitor_ads
		WHERE project_id = ? AND landing_url IS NOT NULL AND landing_url != ''
		AND landing_fetched = 0
		ORDER BY id`, projectID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pending []PendingLanding
	for rows.Next() {
		var p PendingLanding
		if err := rows.Scan(&p.RowID, &p.Competitor, &p.URL); err != nil {
			return nil, err
		}
		pending = append(pending, p)
	}
	return pending, rows.Err()
}

// UpdateLandingText records fetched landing text. A nil text marks the fetch
// as attempted so it is not retried.
func (db *DB) UpdateLandingText(ctx context.Context, rowID int64, text *string) error {
	_, err := db.conn.ExecContext(ctx,
		"UPDATE competitor_ads SET landing_text = COALESCE(?, landing_text), landing_fetched = 1 WHERE id = ?",
		text, rowID,
	)
	return err
}

func encodeStrings(v []string) (*string, error) {
	if len(v) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	s := string(data)
	return &s, nil
}

func decodeStrings(s sql.NullString) []string {
	if !s.Valid || s.String == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s.String), &out); err != nil {
		return nil
	}
	return out
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
