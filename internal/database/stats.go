package database

import "context"

// Stats contains aggregate database statistics.
type Stats struct {
	Projects      int
	Competitors   int
	CompetitorAds int
	Guidelines    int
	Templates     int
	GeneratedAds  int
	ImageLayouts  int
	LastGenerated string
}

// GetStats returns aggregate counts across all tables.
func (db *DB) GetStats(ctx context.Context) (*Stats, error) {
	var s Stats
	counts := []struct {
		query string
		dest  *int
	}{
		{`SELECT COUNT(*) FROM (
			SELECT project_id FROM brand_identities
			UNION SELECT project_id FROM competitors
			UNION SELECT project_id FROM visual_guidelines)`, &s.Projects},
		{"SELECT COUNT(*) FROM competitors", &s.Competitors},
		{"SELECT COUNT(*) FROM competitor_ads", &s.CompetitorAds},
		{"SELECT COUNT(*) FROM visual_guidelines", &s.Guidelines},
		{"SELECT COUNT(*) FROM ad_templates", &s.Templates},
		{"SELECT COUNT(*) FROM generated_ads", &s.GeneratedAds},
		{"SELECT COUNT(*) FROM image_layouts", &s.ImageLayouts},
	}
	for _, c := range counts {
		if err := db.conn.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return nil, err
		}
	}

	var last *string
	if err := db.conn.QueryRowContext(ctx, "SELECT MAX(created_at) FROM generated_ads").Scan(&last); err != nil {
		return nil, err
	}
	if last != nil {
		s.LastGenerated = *last
	}
	return &s, nil
}
