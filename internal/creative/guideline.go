package creative

import (
	"regexp"
	"strings"
	"time"
)

// DefaultCategory is used when no product vertical can be inferred.
const DefaultCategory = "general"

// VisualGuideline is the structured rule set distilled from competitor ads and
// a brand's identity. Guidelines are never mutated; a newer one supersedes.
type VisualGuideline struct {
	ID                 int64              `json:"id,omitempty"`
	ProjectID          string             `json:"project_id"`
	Category           string             `json:"category"`
	MarketPatterns     MarketPatterns     `json:"market_patterns"`
	PerformanceSignals PerformanceSignals `json:"performance_signals"`
	BrandAlignment     BrandAlignment     `json:"brand_alignment"`
	CreatedAt          time.Time          `json:"created_at,omitempty"`
}

// MarketPatterns are the categorical layout observations.
type MarketPatterns struct {
	ImagePlacement   ImagePlacement  `json:"image_placement"`
	TextHierarchy    TextHierarchy   `json:"text_hierarchy"`
	CTAPosition      CTAPosition     `json:"cta_position"`
	VisualDensity    VisualDensity   `json:"visual_density"`
	BackgroundStyle  BackgroundStyle `json:"background_style"`
	DominantColors   []string        `json:"dominant_colors"`
	CompositionRules []string        `json:"composition_rules"`
}

// PerformanceSignals are computed from the raw corpus only.
type PerformanceSignals struct {
	LongevityDays    float64  `json:"longevity_days"`
	PlatformCoverage []string `json:"platform_coverage"`
	FrequencyScore   int      `json:"frequency_score"`
}

// BrandAlignment maps a market-pattern key to the justification for
// overriding or blending it with brand rules.
type BrandAlignment struct {
	Overrides   map[string]string `json:"overrides"`
	Adaptations map[string]string `json:"adaptations"`
}

var (
	hexColorRe   = regexp.MustCompile(`^#([0-9a-f]{3}|[0-9a-f]{6})$`)
	namedColorRe = regexp.MustCompile(`^[a-z]+( [a-z]+)*$`)
)

// Normalize canonicalizes enum casing and color spelling in place.
func (p *MarketPatterns) Normalize() {
	p.ImagePlacement = ImagePlacement(normalizeEnum(string(p.ImagePlacement)))
	p.TextHierarchy = TextHierarchy(normalizeEnum(string(p.TextHierarchy)))
	p.CTAPosition = CTAPosition(normalizeEnum(string(p.CTAPosition)))
	p.VisualDensity = VisualDensity(normalizeEnum(string(p.VisualDensity)))
	p.BackgroundStyle = BackgroundStyle(normalizeEnum(string(p.BackgroundStyle)))
	for i, c := range p.DominantColors {
		p.DominantColors[i] = strings.ToLower(strings.TrimSpace(c))
	}
	rules := p.CompositionRules[:0]
	for _, r := range p.CompositionRules {
		if r = strings.TrimSpace(r); r != "" {
			rules = append(rules, r)
		}
	}
	p.CompositionRules = rules
}

// Validate checks every enumerated field and color value.
func (p MarketPatterns) Validate() error {
	if !p.ImagePlacement.Valid() {
		return invalid("market_patterns.image_placement", "unknown value %q", p.ImagePlacement)
	}
	if !p.TextHierarchy.Valid() {
		return invalid("market_patterns.text_hierarchy", "unknown value %q", p.TextHierarchy)
	}
	if !p.CTAPosition.Valid() {
		return invalid("market_patterns.cta_position", "unknown value %q", p.CTAPosition)
	}
	if !p.VisualDensity.Valid() {
		return invalid("market_patterns.visual_density", "unknown value %q", p.VisualDensity)
	}
	if !p.BackgroundStyle.Valid() {
		return invalid("market_patterns.background_style", "unknown value %q", p.BackgroundStyle)
	}
	for _, c := range p.DominantColors {
		if !hexColorRe.MatchString(c) && !namedColorRe.MatchString(c) {
			return invalid("market_patterns.dominant_colors", "%q is not a color", c)
		}
	}
	return nil
}

// Validate checks a complete guideline record.
func (g *VisualGuideline) Validate() error {
	if strings.TrimSpace(g.ProjectID) == "" {
		return invalid("project_id", "required")
	}
	if g.Category == "" {
		return invalid("category", "required")
	}
	if err := g.MarketPatterns.Validate(); err != nil {
		return err
	}
	s := g.PerformanceSignals
	if s.LongevityDays < 0 {
		return invalid("performance_signals.longevity_days", "negative")
	}
	if s.FrequencyScore < 0 || s.FrequencyScore > 10 {
		return invalid("performance_signals.frequency_score", "%d outside 0..10", s.FrequencyScore)
	}
	return nil
}
