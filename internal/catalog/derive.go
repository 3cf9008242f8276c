package catalog

import (
	"fmt"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/TobiSchelling/adcraft/internal/creative"
)

// column is the normalized area the text stack is laid out in.
type column struct {
	x, width    float64
	top, bottom float64
}

const stackGap = 0.03

var zoneHeights = map[creative.TextRole]float64{
	creative.RoleHook:     0.08,
	creative.RoleHeadline: 0.14,
	creative.RoleBody:     0.16,
	creative.RoleCTA:      0.10,
}

// DeriveFromGuideline maps a guideline's market patterns onto a template
// skeleton. The result always passes AdTemplate.Validate and carries a
// normalized position for every text zone.
func DeriveFromGuideline(g *creative.VisualGuideline) (*creative.AdTemplate, error) {
	if g == nil {
		return nil, &creative.InvalidInputError{Field: "guideline", Reason: "required"}
	}
	p := g.MarketPatterns
	if err := p.Validate(); err != nil {
		return nil, err
	}

	t := &creative.AdTemplate{
		ID:         uuid.NewString(),
		Name:       templateName(g),
		Platforms:  append([]string(nil), g.PerformanceSignals.PlatformCoverage...),
		StyleRules: styleRules(p.VisualDensity),
	}
	if g.ID != 0 {
		id := g.ID
		t.GuidelineID = &id
	}

	t.Layout.RequiredContrast = creative.LevelMedium
	if p.BackgroundStyle == creative.BackgroundLifestyle || p.VisualDensity == creative.DensityBusy {
		t.Layout.RequiredContrast = creative.LevelHigh
	}

	var col column
	switch p.ImagePlacement {
	case creative.PlacementLeft:
		t.Layout.ImageZones = []creative.ImageZone{{ID: "image", Placement: creative.ZoneLeft, Width: creative.Percent(50), Height: creative.Percent(100)}}
		col = column{x: 0.54, width: 0.42, top: 0.08, bottom: 0.92}
	case creative.PlacementRight:
		t.Layout.ImageZones = []creative.ImageZone{{ID: "image", Placement: creative.ZoneRight, Width: creative.Percent(50), Height: creative.Percent(100)}}
		col = column{x: 0.04, width: 0.42, top: 0.08, bottom: 0.92}
	default:
		t.Layout.ImageZones = []creative.ImageZone{{ID: "image", Placement: creative.ZoneFull, Width: creative.Percent(100), Height: creative.Percent(100)}}
		col = column{x: 0.08, width: 0.84, top: 0.08, bottom: 0.92}
	}

	stack := textStack(p)
	if p.CTAPosition == creative.CTAOverlay {
		col.bottom = 0.78
	} else {
		stack = append(stack, creative.RoleCTA)
	}

	total := stackGap * float64(len(stack)-1)
	for _, role := range stack {
		total += zoneHeights[role]
	}
	y := col.bottom - total
	if p.ImagePlacement != creative.PlacementCenter {
		// Side columns center the stack vertically.
		y = col.top + (col.bottom-col.top-total)/2
	}

	for _, role := range stack {
		h := zoneHeights[role]
		rect := creative.Rect{X: col.x, Y: round(y), Width: col.width, Height: h}
		if role == creative.RoleCTA && p.CTAPosition == creative.CTACenter {
			w := col.width / 2
			rect.X = round(col.x + (col.width-w)/2)
			rect.Width = round(w)
		}
		t.Layout.TextZones = append(t.Layout.TextZones, textZone(role, p.VisualDensity, rect))
		y += h + stackGap
	}

	if p.CTAPosition == creative.CTAOverlay {
		badge := creative.Rect{X: 0.72, Y: 0.82, Width: 0.24, Height: 0.12}
		t.Layout.TextZones = append(t.Layout.TextZones, textZone(creative.RoleCTA, p.VisualDensity, badge))
	}

	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("derived template is invalid: %w", err)
	}
	return t, nil
}

// textStack orders the non-cta zones for a density and hierarchy.
func textStack(p creative.MarketPatterns) []creative.TextRole {
	var support []creative.TextRole
	switch p.VisualDensity {
	case creative.DensityModerate:
		support = []creative.TextRole{creative.RoleBody}
	case creative.DensityBusy:
		support = []creative.TextRole{creative.RoleHook, creative.RoleBody}
	}
	if p.TextHierarchy == creative.SupportFirst {
		return append(support, creative.RoleHeadline)
	}
	return append([]creative.TextRole{creative.RoleHeadline}, support...)
}

func textZone(role creative.TextRole, density creative.VisualDensity, pos creative.Rect) creative.TextZone {
	return creative.TextZone{
		ID:       string(role),
		Role:     role,
		MaxChars: maxChars(role, density),
		Position: &pos,
	}
}

func maxChars(role creative.TextRole, density creative.VisualDensity) int {
	switch role {
	case creative.RoleHeadline:
		if density == creative.DensityMinimal {
			return 60
		}
		return 40
	case creative.RoleBody:
		if density == creative.DensityBusy {
			return 125
		}
		return 90
	case creative.RoleHook:
		return 40
	default:
		return 20
	}
}

func styleRules(density creative.VisualDensity) map[creative.TextRole]creative.FontSpec {
	rules := map[creative.TextRole]creative.FontSpec{
		creative.RoleHeadline: {Size: 56, Weight: 800},
		creative.RoleCTA:      {Size: 30, Weight: 700},
	}
	switch density {
	case creative.DensityMinimal:
		rules[creative.RoleHeadline] = creative.FontSpec{Size: 64, Weight: 800}
	case creative.DensityBusy:
		rules[creative.RoleHook] = creative.FontSpec{Size: 24, Weight: 600}
		rules[creative.RoleBody] = creative.FontSpec{Size: 26, Weight: 400}
	default:
		rules[creative.RoleBody] = creative.FontSpec{Size: 28, Weight: 400}
	}
	return rules
}

func templateName(g *creative.VisualGuideline) string {
	category := g.Category
	if category == "" {
		category = creative.DefaultCategory
	}
	first, size := utf8.DecodeRuneInString(category)
	category = string(unicode.ToUpper(first)) + category[size:]
	return fmt.Sprintf("%s %s %s", category, g.MarketPatterns.VisualDensity, g.MarketPatterns.ImagePlacement)
}

func round(v float64) float64 {
	return float64(int(v*1000+0.5)) / 1000
}
