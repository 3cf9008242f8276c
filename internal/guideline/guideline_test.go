package guideline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/adcraft/internal/creative"
)

const validResponse = `{
  "market_patterns": {
    "image_placement": "Center",
    "text_hierarchy": "headline first",
    "cta_position": "bottom",
    "visual_density": "moderate",
    "background_style": "lifestyle",
    "dominant_colors": ["#FF6600", "Navy Blue"],
    "composition_rules": ["Keep the product in the left third", "  "]
  },
  "performance_signals": {"longevity_days": 99, "platform_coverage": ["tiktok"], "frequency_score": 9},
  "brand_alignment": {
    "overrides": {"background_style": "Brand requires clean backgrounds"},
    "adaptations": {"dominant_colors": "Blend orange with the brand navy"}
  }
}`

type mockProvider struct {
	mu       sync.Mutex
	response string
	err      error
	calls    int
	prompts  []string
	started  chan struct{}
	release  chan struct{}
}

func (m *mockProvider) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	m.mu.Lock()
	m.calls++
	m.prompts = append(m.prompts, prompt)
	started, release := m.started, m.release
	m.mu.Unlock()

	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return m.response, m.err
}

func (m *mockProvider) IsConfigured() bool { return true }

func (m *mockProvider) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func days(v float64) *float64 { return &v }

func scenarioD() []creative.CompetitorBatch {
	return []creative.CompetitorBatch{
		{
			Competitor:        "Acme",
			PlatformsObserved: []string{"Facebook", "instagram"},
			TotalAdsKnown:     40,
			Ads: []creative.AdSample{
				{ID: "a1", Headline: "Run further with every workout", LongevityDays: days(10)},
				{ID: "a2", Headline: "Gym gear for training days", LongevityDays: days(20)},
				{ID: "a3", Headline: "New protein blend"},
			},
		},
		{
			Competitor:        "Bolt",
			PlatformsObserved: []string{"tiktok"},
			TotalAdsKnown:     5,
			Ads: []creative.AdSample{
				{ID: "b1", Headline: "Yoga for everyone", LongevityDays: days(30)},
				{ID: "b2", Headline: "Join the running club"},
			},
		},
	}
}

func TestFrequencyScore(t *testing.T) {
	cases := map[int]int{-1: 0, 0: 0, 1: 2, 2: 4, 3: 6, 5: 10, 6: 10, 100: 10}
	for n, want := range cases {
		assert.Equal(t, want, FrequencyScore(n), "competitors=%d", n)
	}
}

func TestComputeSignalsMeanOfKnownValues(t *testing.T) {
	s := ComputeSignals(scenarioD())
	assert.InDelta(t, 20.0, s.LongevityDays, 1e-9)
	assert.Equal(t, 4, s.FrequencyScore)
	assert.Equal(t, []string{"facebook", "instagram", "tiktok"}, s.PlatformCoverage)
}

func TestComputeSignalsAllUnknown(t *testing.T) {
	s := ComputeSignals([]creative.CompetitorBatch{
		{Competitor: "Acme", Ads: []creative.AdSample{{ID: "1"}, {ID: "2", LongevityDays: days(-4)}}},
	})
	assert.False(t, math.IsNaN(s.LongevityDays))
	assert.Equal(t, 0.0, s.LongevityDays)
	assert.Equal(t, 2, s.FrequencyScore)
}

func TestComputeSignalsSkipsEmptyBatches(t *testing.T) {
	s := ComputeSignals([]creative.CompetitorBatch{
		{Competitor: "Acme", PlatformsObserved: []string{"facebook"}, Ads: []creative.AdSample{{ID: "1"}}},
		{Competitor: "acme ", Ads: []creative.AdSample{{ID: "2"}}},
		{Competitor: "Ghost", PlatformsObserved: []string{"snapchat"}},
	})
	assert.Equal(t, 2, s.FrequencyScore, "same competitor in different casing counts once")
	assert.Equal(t, []string{"facebook"}, s.PlatformCoverage)
}

func TestComputeSignalsCoverageFromObservedPlatforms(t *testing.T) {
	s := ComputeSignals([]creative.CompetitorBatch{
		{
			Competitor:        "Acme",
			PlatformsObserved: []string{"facebook"},
			Ads:               []creative.AdSample{{ID: "1", Platforms: []string{"youtube", "facebook"}}},
		},
	})
	assert.Equal(t, []string{"facebook"}, s.PlatformCoverage)
}

func TestInferCategory(t *testing.T) {
	assert.Equal(t, "pets", InferCategory(&creative.BrandIdentity{Category: " Pets "}, []string{"gym workout"}))
	assert.Equal(t, "fitness", InferCategory(nil, []string{"Gym workout", "hotel deals"}))
	assert.Equal(t, "fitness", InferCategory(&creative.BrandIdentity{}, []string{"gym", "hotel"}), "ties go alphabetically")
	assert.Equal(t, "technology", InferCategory(nil, []string{"Our AI app"}))
	assert.Equal(t, creative.DefaultCategory, InferCategory(nil, []string{"said nothing useful"}))
	assert.Equal(t, creative.DefaultCategory, InferCategory(nil, nil))
}

func TestBuildContextCapsSamples(t *testing.T) {
	var ads []creative.AdSample
	for i := 0; i < 15; i++ {
		ads = append(ads, creative.AdSample{
			ID:          fmt.Sprint(i),
			Headline:    fmt.Sprintf("ad %d", i),
			LandingText: strings.Repeat("x", 50),
			LongevityDays: func() *float64 {
				if i%5 == 0 {
					return nil
				}
				return days(float64(i))
			}(),
		})
	}
	batches := []creative.CompetitorBatch{
		{Competitor: "Acme", Ads: ads},
		{Competitor: "Empty"},
	}
	brand := &creative.BrandIdentity{Mood: "bold", ForbiddenRules: []string{"no neon"}}

	data, err := BuildContext(batches, brand, ContextOptions{MaxSamplesPerCompetitor: 10, LandingPreviewChars: 20})
	require.NoError(t, err)

	var pc promptContext
	require.NoError(t, json.Unmarshal(data, &pc))
	require.Len(t, pc.Competitors, 1)
	c := pc.Competitors[0]
	assert.Equal(t, 10, c.SamplesShown)
	assert.Equal(t, 15, c.TotalAdsKnown)
	require.Len(t, c.Samples, 10)
	assert.Equal(t, 14.0, *c.Samples[0].LongevityDays)
	assert.Equal(t, strings.Repeat("x", 20)+"...", c.Samples[0].LandingPreview)
	require.NotNil(t, pc.Brand)
	assert.Equal(t, []string{"no neon"}, pc.Brand.ForbiddenRules)

	assert.Contains(t, BuildPrompt(data), `"samples_shown": 10`)
}

func TestParseOracleResponseFenced(t *testing.T) {
	answer, err := ParseOracleResponse("```json\n" + validResponse + "\n```")
	require.NoError(t, err)
	p := answer.MarketPatterns
	assert.Equal(t, creative.PlacementCenter, p.ImagePlacement)
	assert.Equal(t, creative.HeadlineFirst, p.TextHierarchy)
	assert.Equal(t, []string{"#ff6600", "navy blue"}, p.DominantColors)
	assert.Equal(t, []string{"Keep the product in the left third"}, p.CompositionRules)
	assert.Equal(t, "Brand requires clean backgrounds", answer.BrandAlignment.Overrides["background_style"])
}

func TestParseOracleResponseRejects(t *testing.T) {
	cases := map[string]string{
		"no json":         "I cannot help with that.",
		"broken json":     `{"market_patterns": {`,
		"missing section": `{"brand_alignment": {}}`,
		"unknown enum":    strings.Replace(validResponse, `"moderate"`, `"cluttered"`, 1),
		"bad color":       strings.Replace(validResponse, `"#FF6600"`, `"#GG0000"`, 1),
		"wrong type":      strings.Replace(validResponse, `"dominant_colors": ["#FF6600", "Navy Blue"]`, `"dominant_colors": "orange"`, 1),
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseOracleResponse(raw)
			var contract *creative.OracleContractError
			require.ErrorAs(t, err, &contract)
			assert.Equal(t, raw, contract.Raw)
			assert.False(t, creative.Retryable(err))
		})
	}
}

func TestExtractScenarioD(t *testing.T) {
	provider := &mockProvider{response: validResponse}
	e := NewExtractor(provider, Options{}, nil)

	g, err := e.Extract(context.Background(), "p1", scenarioD(), nil)
	require.NoError(t, err)
	assert.Equal(t, "p1", g.ProjectID)
	assert.InDelta(t, 20.0, g.PerformanceSignals.LongevityDays, 1e-9)
	assert.Equal(t, 4, g.PerformanceSignals.FrequencyScore, "oracle's value is replaced")
	assert.Equal(t, []string{"facebook", "instagram", "tiktok"}, g.PerformanceSignals.PlatformCoverage)
	assert.Equal(t, "fitness", g.Category)
	assert.Equal(t, creative.BackgroundLifestyle, g.MarketPatterns.BackgroundStyle)
	assert.Equal(t, 1, provider.callCount())
}

func TestExtractScenarioEFencedResponse(t *testing.T) {
	provider := &mockProvider{response: "Here you go:\n```json\n" + validResponse + "\n```\nAnything else?"}
	e := NewExtractor(provider, Options{}, nil)

	g, err := e.Extract(context.Background(), "p1", scenarioD(), &creative.BrandIdentity{Category: "sportswear"})
	require.NoError(t, err)
	assert.Equal(t, "sportswear", g.Category)
	assert.Equal(t, creative.CTABottom, g.MarketPatterns.CTAPosition)
}

func TestExtractInsufficientData(t *testing.T) {
	provider := &mockProvider{response: validResponse}
	e := NewExtractor(provider, Options{}, nil)

	for name, batches := range map[string][]creative.CompetitorBatch{
		"nil":       nil,
		"all empty": {{Competitor: "Acme"}, {Competitor: "Bolt", PlatformsObserved: []string{"x"}}},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := e.Extract(context.Background(), "p1", batches, nil)
			var insufficient *creative.InsufficientDataError
			assert.ErrorAs(t, err, &insufficient)
		})
	}
	assert.Equal(t, 0, provider.callCount(), "oracle is not called without data")
}

func TestExtractOracleUnavailable(t *testing.T) {
	t.Run("transport error", func(t *testing.T) {
		e := NewExtractor(&mockProvider{err: errors.New("connection refused")}, Options{}, nil)
		_, err := e.Extract(context.Background(), "p1", scenarioD(), nil)
		var unavailable *creative.OracleUnavailableError
		require.ErrorAs(t, err, &unavailable)
		assert.True(t, creative.Retryable(err))
	})

	t.Run("no provider", func(t *testing.T) {
		e := NewExtractor(nil, Options{}, nil)
		_, err := e.Extract(context.Background(), "p1", scenarioD(), nil)
		var unavailable *creative.OracleUnavailableError
		assert.ErrorAs(t, err, &unavailable)
	})

	t.Run("timeout", func(t *testing.T) {
		provider := &mockProvider{response: validResponse, release: make(chan struct{})}
		e := NewExtractor(provider, Options{Timeout: 20 * time.Millisecond}, nil)
		_, err := e.Extract(context.Background(), "p1", scenarioD(), nil)
		var unavailable *creative.OracleUnavailableError
		require.ErrorAs(t, err, &unavailable)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestExtractContractError(t *testing.T) {
	e := NewExtractor(&mockProvider{response: `{"market_patterns": {"image_placement": "diagonal"}}`}, Options{}, nil)
	_, err := e.Extract(context.Background(), "p1", scenarioD(), nil)
	var contract *creative.OracleContractError
	assert.ErrorAs(t, err, &contract)
}

func TestExtractRequiresProject(t *testing.T) {
	e := NewExtractor(&mockProvider{response: validResponse}, Options{}, nil)
	_, err := e.Extract(context.Background(), " ", scenarioD(), nil)
	var invalid *creative.InvalidInputError
	assert.ErrorAs(t, err, &invalid)
}

func TestExtractPromptIncludesBrand(t *testing.T) {
	provider := &mockProvider{response: validResponse}
	e := NewExtractor(provider, Options{}, nil)
	brand := &creative.BrandIdentity{Mood: "playful", ForbiddenRules: []string{"no stock photos"}}

	_, err := e.Extract(context.Background(), "p1", scenarioD(), brand)
	require.NoError(t, err)
	require.Len(t, provider.prompts, 1)
	assert.Contains(t, provider.prompts[0], "no stock photos")
	assert.Contains(t, provider.prompts[0], `"name": "Acme"`)
}
