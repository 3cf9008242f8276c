package creative

import (
	"strings"
	"time"
)

// GeneratedAd is one successful rendering of a template with bound content.
type GeneratedAd struct {
	ID         string    `json:"id"`
	ProjectID  string    `json:"project_id"`
	TemplateID string    `json:"template_id"`
	Assets     Assets    `json:"assets_json"`
	Metadata   Metadata  `json:"metadata_json"`
	CreatedAt  time.Time `json:"created_at,omitempty"`
}

// Assets is the content bound into a template.
type Assets struct {
	ImageURL string `json:"image_url"`
	Headline string `json:"headline"`
	BodyCopy string `json:"body_copy"`
	CTA      string `json:"cta"`
}

// Metadata describes the rendered raster.
type Metadata struct {
	Dimensions string `json:"dimensions"`
	Format     string `json:"format,omitempty"`
	ImagePath  string `json:"image_path,omitempty"`
}

// Validate checks the content required for rendering. Body copy is optional
// because minimal templates carry no body zone.
func (a Assets) Validate() error {
	if strings.TrimSpace(a.ImageURL) == "" {
		return invalid("assets_json.image_url", "required")
	}
	if strings.TrimSpace(a.Headline) == "" {
		return invalid("assets_json.headline", "required")
	}
	if strings.TrimSpace(a.CTA) == "" {
		return invalid("assets_json.cta", "required")
	}
	return nil
}

// BrandIdentity holds the visual constraints a project's brand imposes.
type BrandIdentity struct {
	ProjectID      string      `json:"project_id" yaml:"project_id"`
	Category       string      `json:"category,omitempty" yaml:"category"`
	Colors         BrandColors `json:"colors" yaml:"colors"`
	Typography     Typography  `json:"typography" yaml:"typography"`
	ImageStyle     string      `json:"image_style,omitempty" yaml:"image_style"`
	Mood           string      `json:"mood,omitempty" yaml:"mood"`
	ForbiddenRules []string    `json:"forbidden_rules,omitempty" yaml:"forbidden_rules"`
}

type BrandColors struct {
	Primary   string   `json:"primary,omitempty" yaml:"primary"`
	Secondary string   `json:"secondary,omitempty" yaml:"secondary"`
	Accent    string   `json:"accent,omitempty" yaml:"accent"`
	Palette   []string `json:"palette,omitempty" yaml:"palette"`
}

type Typography struct {
	Heading string `json:"heading,omitempty" yaml:"heading"`
	Body    string `json:"body,omitempty" yaml:"body"`
}

// CompetitorBatch is everything known about one competitor's ads.
type CompetitorBatch struct {
	Competitor        string     `json:"competitor"`
	PlatformsObserved []string   `json:"platforms_observed"`
	TotalAdsKnown     int        `json:"total_ads_known"`
	Ads               []AdSample `json:"ads"`
}

// AdSample is one competitor advertisement. A nil LongevityDays means the
// running time is unknown.
type AdSample struct {
	ID            string   `json:"id"`
	Headline      string   `json:"headline,omitempty"`
	Body          string   `json:"body,omitempty"`
	CTA           string   `json:"cta,omitempty"`
	SnapshotURL   string   `json:"snapshot_url,omitempty"`
	LandingURL    string   `json:"landing_url,omitempty"`
	LandingText   string   `json:"landing_text,omitempty"`
	LongevityDays *float64 `json:"longevity_days,omitempty"`
	Platforms     []string `json:"platforms,omitempty"`
}

// Text concatenates the copy of the sample.
func (s AdSample) Text() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{s.Headline, s.Body, s.CTA} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}
