// Package compat scores how well a template's structural requirements fit
// one analyzed image. Scoring is pure: it starts at 100 and every rule can
// only subtract.
package compat

import (
	"fmt"
	"sort"

	"github.com/TobiSchelling/adcraft/internal/creative"
)

// Threshold is the score a template must exceed to be compatible.
const Threshold = 60

const (
	penaltyHighContrast   = 50
	penaltyMediumContrast = 20
	penaltyTextDensity    = 30
	penaltySafetyZone     = 10
	maxSafetyZonePenalty  = 20

	heavyZoneCount   = 2
	heavyMaxChars    = 100
	overlapTolerance = 0.05
)

// rule inspects a template against an image and returns the penalty it
// charges (never negative) with the issues that justify it.
type rule func(t *creative.AdTemplate, m *creative.ImageLayoutMap) (int, []string)

var rules = []rule{
	contrastRule,
	textDensityRule,
	safetyZoneRule,
}

// Validate checks template against layout. Malformed input is rejected with
// an InvalidInputError before any rule runs.
func Validate(t *creative.AdTemplate, layout *creative.ImageLayoutMap) (creative.CompatibilityResult, error) {
	if t == nil {
		return creative.CompatibilityResult{}, &creative.InvalidInputError{Field: "template", Reason: "required"}
	}
	if layout == nil {
		return creative.CompatibilityResult{}, &creative.InvalidInputError{Field: "image_layout", Reason: "required"}
	}
	if err := t.Validate(); err != nil {
		return creative.CompatibilityResult{}, err
	}
	if err := layout.Validate(); err != nil {
		return creative.CompatibilityResult{}, err
	}

	score, issues := 100, []string{}
	for _, r := range rules {
		penalty, found := r(t, layout)
		score -= max(0, penalty)
		issues = append(issues, found...)
	}
	score = max(0, score)

	return creative.CompatibilityResult{
		TemplateID: t.ID,
		Compatible: score > Threshold,
		Score:      score,
		Issues:     issues,
	}, nil
}

func contrastRule(t *creative.AdTemplate, m *creative.ImageLayoutMap) (int, []string) {
	if m.ContrastLevel != creative.LevelLow {
		return 0, nil
	}
	switch t.Layout.RequiredContrast {
	case creative.LevelHigh:
		return penaltyHighContrast, []string{"template requires high contrast but the image contrast is low; text will not stand out"}
	case creative.LevelMedium:
		return penaltyMediumContrast, []string{"template requires medium contrast but the image contrast is low; consider a stronger overlay"}
	}
	return 0, nil
}

// TextHeavy reports whether a template carries more copy than a busy image
// can support.
func TextHeavy(t *creative.AdTemplate) bool {
	if len(t.Layout.TextZones) > heavyZoneCount {
		return true
	}
	for _, z := range t.Layout.TextZones {
		if z.MaxChars > heavyMaxChars {
			return true
		}
	}
	return false
}

func textDensityRule(t *creative.AdTemplate, m *creative.ImageLayoutMap) (int, []string) {
	if m.VisualNoise != creative.LevelHigh || !TextHeavy(t) {
		return 0, nil
	}
	return penaltyTextDensity, []string{"text-heavy template over a visually noisy image; legibility will suffer"}
}

// safetyZoneRule only runs when both sides share normalized coordinates;
// otherwise it cannot tell overlap from a unit mismatch and stays silent.
func safetyZoneRule(t *creative.AdTemplate, m *creative.ImageLayoutMap) (int, []string) {
	if len(m.AvoidZones) == 0 || !m.NormalizedCoordinates() {
		return 0, nil
	}

	penalty := 0
	var issues []string
	for _, z := range t.Layout.TextZones {
		if z.Position == nil || !z.Position.Normalized() {
			continue
		}
		area := z.Position.Area()
		var covered float64
		for _, a := range m.AvoidZones {
			covered += z.Position.Intersection(a)
		}
		if covered/area <= overlapTolerance {
			continue
		}
		issues = append(issues, fmt.Sprintf("text zone %q overlaps an avoid zone (%.0f%% of its area)", z.ID, min(1, covered/area)*100))
		penalty += penaltySafetyZone
	}
	return min(penalty, maxSafetyZonePenalty), issues
}

// Rank validates every template against layout and orders the results by
// score, best first; equal scores are ordered by template id.
func Rank(templates []creative.AdTemplate, layout *creative.ImageLayoutMap) ([]creative.CompatibilityResult, error) {
	results := make([]creative.CompatibilityResult, 0, len(templates))
	for i := range templates {
		r, err := Validate(&templates[i], layout)
		if err != nil {
			return nil, fmt.Errorf("template %s: %w", templates[i].ID, err)
		}
		results = append(results, r)
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].TemplateID < results[j].TemplateID
	})
	return results, nil
}
