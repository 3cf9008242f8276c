package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/adcraft/internal/catalog"
	"github.com/TobiSchelling/adcraft/internal/creative"
	"github.com/TobiSchelling/adcraft/internal/database"
	"github.com/TobiSchelling/adcraft/internal/imageconv"
	"github.com/TobiSchelling/adcraft/internal/render"
)

type fakeGuidelines struct {
	active    *creative.VisualGuideline
	generated int
	err       error
}

func (f *fakeGuidelines) Active(ctx context.Context, projectID string) (*creative.VisualGuideline, error) {
	if f.active == nil {
		return nil, creative.ErrNotFound
	}
	return f.active, nil
}

func (f *fakeGuidelines) Generate(ctx context.Context, projectID string) (*creative.VisualGuideline, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.generated++
	g := sampleGuideline()
	g.ID = int64(10 + f.generated)
	f.active = g
	return g, nil
}

type fakeTemplates struct {
	byID    map[string]*creative.AdTemplate
	derived int
}

func (f *fakeTemplates) Get(ctx context.Context, id string) (*creative.AdTemplate, error) {
	t, ok := f.byID[id]
	if !ok {
		return nil, creative.ErrNotFound
	}
	return t, nil
}

func (f *fakeTemplates) Derive(ctx context.Context, g *creative.VisualGuideline) (*creative.AdTemplate, error) {
	f.derived++
	return catalog.DeriveFromGuideline(g)
}

type fakeAnalyzer struct {
	layout *creative.ImageLayoutMap
	err    error
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, imageRef string) (*creative.ImageLayoutMap, error) {
	if f.err != nil {
		return nil, f.err
	}
	m := *f.layout
	m.ImageRef = imageRef
	return &m, nil
}

type fakeRenderer struct {
	mu       sync.Mutex
	calls    int
	active   atomic.Int32
	peak     atomic.Int32
	delay    time.Duration
	err      error
	lastDims string
}

func (f *fakeRenderer) Render(ctx context.Context, ad *creative.GeneratedAd, tmpl *creative.AdTemplate) ([]byte, error) {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		peak := f.peak.Load()
		if n <= peak || f.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	f.mu.Lock()
	f.calls++
	f.lastDims = ad.Metadata.Dimensions
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	return []byte("image-bytes"), nil
}

func (f *fakeRenderer) Format() imageconv.Format { return imageconv.JPEG }

type fakeAds struct {
	mu  sync.Mutex
	ads []*creative.GeneratedAd
	err error
}

func (f *fakeAds) InsertGeneratedAd(ctx context.Context, ad *creative.GeneratedAd) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.ads = append(f.ads, ad)
	return nil
}

func sampleGuideline() *creative.VisualGuideline {
	return &creative.VisualGuideline{
		ID:        1,
		ProjectID: "spring",
		Category:  "fitness",
		MarketPatterns: creative.MarketPatterns{
			ImagePlacement:  creative.PlacementCenter,
			TextHierarchy:   creative.HeadlineFirst,
			CTAPosition:     creative.CTABottom,
			VisualDensity:   creative.DensityMinimal,
			BackgroundStyle: creative.BackgroundClean,
		},
		PerformanceSignals: creative.PerformanceSignals{
			FrequencyScore:   2,
			PlatformCoverage: []string{"meta"},
		},
	}
}

// busyTemplate has three text zones and demands high contrast.
func busyTemplate() *creative.AdTemplate {
	return &creative.AdTemplate{
		ID:   "busy",
		Name: "Busy",
		Layout: creative.Layout{
			RequiredContrast: creative.LevelHigh,
			TextZones: []creative.TextZone{
				{ID: "h", Role: creative.RoleHeadline, MaxChars: 40},
				{ID: "b", Role: creative.RoleBody, MaxChars: 90},
				{ID: "c", Role: creative.RoleCTA, MaxChars: 20},
			},
		},
	}
}

type fixture struct {
	guidelines *fakeGuidelines
	templates  *fakeTemplates
	analyzer   *fakeAnalyzer
	renderer   *fakeRenderer
	ads        *fakeAds
}

func newFixture() *fixture {
	return &fixture{
		guidelines: &fakeGuidelines{active: sampleGuideline()},
		templates:  &fakeTemplates{byID: map[string]*creative.AdTemplate{"busy": busyTemplate()}},
		analyzer: &fakeAnalyzer{layout: &creative.ImageLayoutMap{
			ContrastLevel: creative.LevelHigh,
			VisualNoise:   creative.LevelLow,
		}},
		renderer: &fakeRenderer{},
		ads:      &fakeAds{},
	}
}

func (f *fixture) pipeline(opts Options) *Pipeline {
	return New(Deps{
		Guidelines: f.guidelines,
		Templates:  f.templates,
		Analyzer:   f.analyzer,
		Renderer:   f.renderer,
		Ads:        f.ads,
	}, opts, nil)
}

func sampleRequest() Request {
	return Request{
		ProjectID:  "spring",
		ImageRef:   "https://cdn.example.com/hero.jpg",
		Content:    Content{Headline: "Run further", CTA: "Shop now"},
		Dimensions: "1080x1080",
	}
}

func stepNames(r *Result) []string {
	names := make([]string, len(r.Steps))
	for i, s := range r.Steps {
		names[i] = s.Name
	}
	return names
}

func TestRunHappyPath(t *testing.T) {
	f := newFixture()
	r := f.pipeline(Options{}).Run(context.Background(), sampleRequest())

	require.NoError(t, r.Err)
	assert.Equal(t, []string{"Guideline", "Template", "Analyze", "Validate", "Render", "Persist"}, stepNames(r))
	assert.Zero(t, f.guidelines.generated)
	assert.Equal(t, 1, f.templates.derived)
	require.NotNil(t, r.Compatibility)
	assert.True(t, r.Compatibility.Compatible)

	require.Len(t, f.ads.ads, 1)
	ad := f.ads.ads[0]
	assert.Equal(t, r.Template.ID, ad.TemplateID)
	assert.Equal(t, "1080x1080", ad.Metadata.Dimensions)
	assert.Equal(t, "jpeg", ad.Metadata.Format)
	assert.Equal(t, "https://cdn.example.com/hero.jpg", ad.Assets.ImageURL)
	assert.Equal(t, []byte("image-bytes"), r.Image)
}

func TestRunGeneratesGuidelineWhenNoneActive(t *testing.T) {
	f := newFixture()
	f.guidelines.active = nil

	r := f.pipeline(Options{}).Run(context.Background(), sampleRequest())
	require.NoError(t, r.Err)
	assert.Equal(t, 1, f.guidelines.generated)
	assert.Equal(t, int64(11), r.Guideline.ID)
}

func TestRunRegenerate(t *testing.T) {
	f := newFixture()
	req := sampleRequest()
	req.Regenerate = true

	r := f.pipeline(Options{}).Run(context.Background(), req)
	require.NoError(t, r.Err)
	assert.Equal(t, 1, f.guidelines.generated)
}

func TestRunStopsOnOracleFailure(t *testing.T) {
	f := newFixture()
	f.guidelines.active = nil
	f.guidelines.err = &creative.OracleUnavailableError{Err: errors.New("connection refused")}

	r := f.pipeline(Options{}).Run(context.Background(), sampleRequest())

	var unavailable *creative.OracleUnavailableError
	require.ErrorAs(t, r.Err, &unavailable)
	assert.Equal(t, []string{"Guideline"}, stepNames(r))
	assert.Zero(t, f.renderer.calls)
	assert.Empty(t, f.ads.ads)
}

func TestRunExplicitTemplateSkipsGuideline(t *testing.T) {
	f := newFixture()
	f.guidelines.active = nil
	req := sampleRequest()
	req.TemplateID = "busy"

	r := f.pipeline(Options{}).Run(context.Background(), req)
	require.NoError(t, r.Err)
	assert.Nil(t, r.Guideline)
	assert.Zero(t, f.guidelines.generated)
	assert.Zero(t, f.templates.derived)
	assert.Equal(t, "busy", r.Template.ID)
}

func TestRunUnknownTemplate(t *testing.T) {
	f := newFixture()
	req := sampleRequest()
	req.TemplateID = "nope"

	r := f.pipeline(Options{}).Run(context.Background(), req)
	assert.ErrorIs(t, r.Err, creative.ErrNotFound)
}

func TestRunIncompatibleStopsBeforeRender(t *testing.T) {
	f := newFixture()
	f.analyzer.layout = &creative.ImageLayoutMap{ContrastLevel: creative.LevelLow, VisualNoise: creative.LevelHigh}
	req := sampleRequest()
	req.TemplateID = "busy"

	r := f.pipeline(Options{}).Run(context.Background(), req)

	var incompatible *IncompatibleError
	require.ErrorAs(t, r.Err, &incompatible)
	assert.Equal(t, 20, incompatible.Result.Score)
	assert.Len(t, incompatible.Result.Issues, 2)
	assert.Equal(t, "Validate", r.Steps[len(r.Steps)-1].Name)
	assert.Zero(t, f.renderer.calls)
	assert.Empty(t, f.ads.ads)
}

func TestRunOverrideRendersAnyway(t *testing.T) {
	f := newFixture()
	f.analyzer.layout = &creative.ImageLayoutMap{ContrastLevel: creative.LevelLow, VisualNoise: creative.LevelHigh}
	req := sampleRequest()
	req.TemplateID = "busy"
	req.Override = true

	r := f.pipeline(Options{}).Run(context.Background(), req)
	require.NoError(t, r.Err)
	assert.False(t, r.Compatibility.Compatible)
	assert.Len(t, r.Compatibility.Issues, 2)
	assert.Len(t, f.ads.ads, 1)
}

func TestRunRenderFailureNeverPersists(t *testing.T) {
	f := newFixture()
	f.renderer.err = &creative.RenderError{Stage: "launch", Err: errors.New("no chrome")}

	r := f.pipeline(Options{}).Run(context.Background(), sampleRequest())

	var renderErr *creative.RenderError
	require.ErrorAs(t, r.Err, &renderErr)
	assert.Empty(t, f.ads.ads)
	assert.Nil(t, r.Ad)
}

func TestRunAnalyzeFailure(t *testing.T) {
	f := newFixture()
	f.analyzer.err = errors.New("perception down")

	r := f.pipeline(Options{}).Run(context.Background(), sampleRequest())
	assert.EqualError(t, r.Err, "perception down")
	assert.Zero(t, f.renderer.calls)
}

func TestRunRejectsIncompleteRequest(t *testing.T) {
	f := newFixture()
	req := sampleRequest()
	req.ImageRef = ""

	r := f.pipeline(Options{}).Run(context.Background(), req)
	var invalid *creative.InvalidInputError
	require.ErrorAs(t, r.Err, &invalid)
	assert.Equal(t, "image_ref", invalid.Field)
}

func TestRunDefaultDimensions(t *testing.T) {
	f := newFixture()
	req := sampleRequest()
	req.Dimensions = "bogus"

	r := f.pipeline(Options{DefaultDimensions: render.Dimensions{Width: 1080, Height: 1920}}).Run(context.Background(), req)
	require.NoError(t, r.Err)
	assert.Equal(t, "1080x1920", f.renderer.lastDims)
}

func TestRunWritesImage(t *testing.T) {
	f := newFixture()
	dir := t.TempDir()

	r := f.pipeline(Options{OutputDir: dir}).Run(context.Background(), sampleRequest())
	require.NoError(t, r.Err)

	path := r.Ad.Metadata.ImagePath
	assert.Contains(t, path, dir)
	assert.Contains(t, path, ".jpg")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("image-bytes"), data)
}

func TestRunPersistFailureRemovesImage(t *testing.T) {
	f := newFixture()
	f.ads.err = errors.New("disk full")
	dir := t.TempDir()

	r := f.pipeline(Options{OutputDir: dir}).Run(context.Background(), sampleRequest())
	require.EqualError(t, r.Err, "storing generated ad: disk full")
	assert.Equal(t, "Persist", r.Steps[len(r.Steps)-1].Name)
	assert.Empty(t, r.Ad.Metadata.ImagePath)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "no image left behind for an unstored ad")
}

func TestRunTwiceReusesDerivedTemplate(t *testing.T) {
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	ctx := context.Background()

	g := sampleGuideline()
	g.ID = 0
	g.MarketPatterns.DominantColors = []string{}
	require.NoError(t, db.InsertGuideline(ctx, g))

	f := newFixture()
	f.guidelines.active = g
	p := New(Deps{
		Guidelines: f.guidelines,
		Templates:  catalog.New(db, nil),
		Analyzer:   f.analyzer,
		Renderer:   f.renderer,
		Ads:        f.ads,
	}, Options{}, nil)

	first := p.Run(ctx, sampleRequest())
	require.NoError(t, first.Err)
	second := p.Run(ctx, sampleRequest())
	require.NoError(t, second.Err)
	assert.Equal(t, first.Template.ID, second.Template.ID)

	all, err := db.ListTemplates(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestRenderBatchBoundsConcurrency(t *testing.T) {
	f := newFixture()
	f.renderer.delay = 30 * time.Millisecond
	p := f.pipeline(Options{Concurrency: 2})

	reqs := make([]Request, 6)
	for i := range reqs {
		reqs[i] = sampleRequest()
		reqs[i].TemplateID = "busy"
	}
	reqs[3].ImageRef = ""

	results := p.RenderBatch(context.Background(), reqs)
	require.Len(t, results, 6)
	for i, r := range results {
		if i == 3 {
			assert.Error(t, r.Err)
			continue
		}
		assert.NoError(t, r.Err, i)
	}
	assert.LessOrEqual(t, f.renderer.peak.Load(), int32(2))
	assert.Len(t, f.ads.ads, 5)
}
