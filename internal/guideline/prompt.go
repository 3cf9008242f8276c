package guideline

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/TobiSchelling/adcraft/internal/creative"
)

const extractPrompt = `You are a senior performance-marketing art director. Study the competitor ads and the brand identity below and describe the visual layout patterns that dominate this market, then reconcile them with the brand's rules.

Context (JSON):
%s

Respond with ONLY this JSON:
{
    "market_patterns": {
        "image_placement": "center" | "left" | "right",
        "text_hierarchy": "headline_first" | "support_first",
        "cta_position": "bottom" | "center" | "overlay",
        "visual_density": "minimal" | "moderate" | "busy",
        "background_style": "clean" | "lifestyle" | "gradient",
        "dominant_colors": ["#rrggbb or a color name", "..."],
        "composition_rules": ["short imperative rule", "..."]
    },
    "performance_signals": {
        "longevity_days": average days the ads stayed live,
        "platform_coverage": ["platform", "..."],
        "frequency_score": 0-10
    },
    "brand_alignment": {
        "overrides": {"<market_patterns key>": "why the brand rule replaces the market pattern"},
        "adaptations": {"<market_patterns key>": "how the market pattern is blended with the brand"}
    }
}

Never suggest anything listed in the brand's forbidden_rules. Use only the enumerated values shown.`

// ContextOptions bounds the size of the prompt context.
type ContextOptions struct {
	MaxSamplesPerCompetitor int
	LandingPreviewChars     int
}

func (o ContextOptions) withDefaults() ContextOptions {
	if o.MaxSamplesPerCompetitor <= 0 {
		o.MaxSamplesPerCompetitor = 10
	}
	if o.LandingPreviewChars <= 0 {
		o.LandingPreviewChars = 300
	}
	return o
}

type promptContext struct {
	Brand       *brandSnapshot      `json:"brand_identity,omitempty"`
	Competitors []competitorContext `json:"competitors"`
}

type brandSnapshot struct {
	Colors         creative.BrandColors `json:"colors"`
	Typography     creative.Typography  `json:"typography"`
	ImageStyle     string               `json:"image_style,omitempty"`
	Mood           string               `json:"mood,omitempty"`
	ForbiddenRules []string             `json:"forbidden_rules,omitempty"`
}

type competitorContext struct {
	Name              string          `json:"name"`
	PlatformsObserved []string        `json:"platforms_observed,omitempty"`
	TotalAdsKnown     int             `json:"total_ads_known"`
	SamplesShown      int             `json:"samples_shown"`
	Samples           []sampleContext `json:"samples"`
}

type sampleContext struct {
	Headline       string   `json:"headline,omitempty"`
	Body           string   `json:"body,omitempty"`
	CTA            string   `json:"cta,omitempty"`
	SnapshotURL    string   `json:"snapshot_url,omitempty"`
	LandingPreview string   `json:"landing_preview,omitempty"`
	LongevityDays  *float64 `json:"longevity_days,omitempty"`
	Platforms      []string `json:"platforms,omitempty"`
}

// BuildContext assembles the JSON context handed to the oracle. Each
// competitor contributes at most MaxSamplesPerCompetitor ads, longest-running
// first; competitors without ads are left out.
func BuildContext(batches []creative.CompetitorBatch, brand *creative.BrandIdentity, opts ContextOptions) ([]byte, error) {
	opts = opts.withDefaults()

	pc := promptContext{Competitors: []competitorContext{}}
	if brand != nil {
		pc.Brand = &brandSnapshot{
			Colors:         brand.Colors,
			Typography:     brand.Typography,
			ImageStyle:     brand.ImageStyle,
			Mood:           brand.Mood,
			ForbiddenRules: brand.ForbiddenRules,
		}
	}

	for _, b := range usableBatches(batches) {
		ads := selectSamples(b.Ads, opts.MaxSamplesPerCompetitor)
		cc := competitorContext{
			Name:              b.Competitor,
			PlatformsObserved: b.PlatformsObserved,
			TotalAdsKnown:     max(b.TotalAdsKnown, len(b.Ads)),
			SamplesShown:      len(ads),
		}
		for _, ad := range ads {
			cc.Samples = append(cc.Samples, sampleContext{
				Headline:       ad.Headline,
				Body:           ad.Body,
				CTA:            ad.CTA,
				SnapshotURL:    ad.SnapshotURL,
				LandingPreview: truncate(ad.LandingText, opts.LandingPreviewChars),
				LongevityDays:  knownLongevity(ad),
				Platforms:      ad.Platforms,
			})
		}
		pc.Competitors = append(pc.Competitors, cc)
	}

	data, err := json.MarshalIndent(pc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding prompt context: %w", err)
	}
	return data, nil
}

// BuildPrompt renders the full oracle prompt around a context document.
func BuildPrompt(contextJSON []byte) string {
	return fmt.Sprintf(extractPrompt, string(contextJSON))
}

func selectSamples(ads []creative.AdSample, limit int) []creative.AdSample {
	sorted := make([]creative.AdSample, len(ads))
	copy(sorted, ads)
	sort.SliceStable(sorted, func(i, j int) bool {
		li, lj := knownLongevity(sorted[i]), knownLongevity(sorted[j])
		switch {
		case li == nil:
			return false
		case lj == nil:
			return true
		}
		return *li > *lj
	})
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted
}

func knownLongevity(ad creative.AdSample) *float64 {
	if ad.LongevityDays == nil || *ad.LongevityDays < 0 {
		return nil
	}
	return ad.LongevityDays
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
