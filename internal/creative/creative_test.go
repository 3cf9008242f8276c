package creative

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func validTemplate() *AdTemplate {
	return &AdTemplate{
		ID:   "t1",
		Name: "Test",
		Layout: Layout{
			ImageZones: []ImageZone{{ID: "hero", Placement: ZoneFull, Width: Percent(100), Height: Percent(100)}},
			TextZones: []TextZone{
				{ID: "headline", Role: RoleHeadline, MaxChars: 40},
				{ID: "cta", Role: RoleCTA, MaxChars: 20},
			},
			RequiredContrast: LevelMedium,
		},
		StyleRules: map[TextRole]FontSpec{RoleHeadline: {Size: 48, Weight: 700}},
	}
}

func TestTemplateValidate(t *testing.T) {
	require.NoError(t, validTemplate().Validate())
}

func TestTemplateValidateRejects(t *testing.T) {
	cases := map[string]func(*AdTemplate){
		"missing contrast": func(t *AdTemplate) { t.Layout.RequiredContrast = "" },
		"unknown contrast": func(t *AdTemplate) { t.Layout.RequiredContrast = "extreme" },
		"duplicate zone":   func(t *AdTemplate) { t.Layout.TextZones[1].ID = "headline" },
		"empty zone id":    func(t *AdTemplate) { t.Layout.TextZones[0].ID = " " },
		"unknown role":     func(t *AdTemplate) { t.Layout.TextZones[0].Role = "footer" },
		"zero max chars":   func(t *AdTemplate) { t.Layout.TextZones[0].MaxChars = 0 },
		"bad image zone":   func(t *AdTemplate) { t.Layout.ImageZones[0].Width = Percent(0) },
		"bad weight":       func(t *AdTemplate) { t.StyleRules[RoleHeadline] = FontSpec{Size: 10, Weight: 1000} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			tmpl := validTemplate()
			mutate(tmpl)
			err := tmpl.Validate()
			var invalidErr *InvalidInputError
			require.ErrorAs(t, err, &invalidErr)
		})
	}
}

func TestLengthText(t *testing.T) {
	var l Length
	require.NoError(t, l.UnmarshalText([]byte("60%")))
	assert.Equal(t, Percent(60), l)

	require.NoError(t, l.UnmarshalText([]byte(" 600px ")))
	assert.Equal(t, Pixels(600), l)

	assert.Error(t, l.UnmarshalText([]byte("600")))
	assert.Error(t, l.UnmarshalText([]byte("abc%")))
	assert.Equal(t, "12.5%", Percent(12.5).String())
}

func TestLengthInJSONAndYAML(t *testing.T) {
	z := ImageZone{ID: "hero", Placement: ZoneLeft, Width: Percent(50), Height: Pixels(628)}
	data, err := json.Marshal(z)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"hero","placement":"left","width":"50%","height":"628px"}`, string(data))

	var fromYAML ImageZone
	require.NoError(t, yaml.Unmarshal([]byte("id: hero\nplacement: left\nwidth: 50%\nheight: 628px\n"), &fromYAML))
	assert.Equal(t, z, fromYAML)
}

func TestMarketPatternsNormalize(t *testing.T) {
	p := MarketPatterns{
		ImagePlacement:   "Center",
		TextHierarchy:    "Headline First",
		CTAPosition:      " bottom ",
		VisualDensity:    "MINIMAL",
		BackgroundStyle:  "clean",
		DominantColors:   []string{"#FFAA00", " Navy Blue "},
		CompositionRules: []string{"rule", "  "},
	}
	p.Normalize()
	require.NoError(t, p.Validate())
	assert.Equal(t, HeadlineFirst, p.TextHierarchy)
	assert.Equal(t, []string{"#ffaa00", "navy blue"}, p.DominantColors)
	assert.Equal(t, []string{"rule"}, p.CompositionRules)
}

func TestMarketPatternsRejectsBadColor(t *testing.T) {
	p := MarketPatterns{
		ImagePlacement:  PlacementLeft,
		TextHierarchy:   SupportFirst,
		CTAPosition:     CTAOverlay,
		VisualDensity:   DensityBusy,
		BackgroundStyle: BackgroundGradient,
		DominantColors:  []string{"#12345g"},
	}
	assert.Error(t, p.Validate())
}

func TestLayoutMapValidate(t *testing.T) {
	m := &ImageLayoutMap{ContrastLevel: LevelHigh, VisualNoise: LevelLow}
	require.NoError(t, m.Validate())

	m.VisualNoise = ""
	assert.Error(t, m.Validate())

	m = &ImageLayoutMap{ContrastLevel: LevelHigh, VisualNoise: LevelLow, AvoidZones: []Rect{{X: 0.1, Y: 0.1}}}
	assert.Error(t, m.Validate())
}

func TestNormalizedCoordinates(t *testing.T) {
	m := &ImageLayoutMap{AvoidZones: []Rect{{X: 0.2, Y: 0.2, Width: 0.5, Height: 0.5}}}
	assert.True(t, m.NormalizedCoordinates())

	m.AvoidZones = append(m.AvoidZones, Rect{X: 100, Y: 40, Width: 300, Height: 200})
	assert.False(t, m.NormalizedCoordinates())

	m = &ImageLayoutMap{CoordinateSpace: SpacePixel}
	assert.False(t, m.NormalizedCoordinates())
}

func TestRectIntersection(t *testing.T) {
	a := Rect{X: 0, Y: 0, Width: 0.5, Height: 0.5}
	b := Rect{X: 0.25, Y: 0.25, Width: 0.5, Height: 0.5}
	assert.InDelta(t, 0.0625, a.Intersection(b), 1e-9)
	assert.Zero(t, a.Intersection(Rect{X: 0.6, Y: 0.6, Width: 0.1, Height: 0.1}))
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(fmt.Errorf("wrapped: %w", &OracleUnavailableError{Err: errors.New("timeout")})))
	assert.True(t, Retryable(&RenderError{Stage: "launch", Err: errors.New("no chrome")}))
	assert.False(t, Retryable(&OracleContractError{Err: errors.New("bad json")}))
	assert.False(t, Retryable(&InsufficientDataError{Reason: "empty"}))
}

func TestAssetsValidate(t *testing.T) {
	a := Assets{ImageURL: "https://example.com/a.jpg", Headline: "Hi", CTA: "Buy"}
	require.NoError(t, a.Validate())
	a.CTA = ""
	assert.Error(t, a.Validate())
}
