package render

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/adcraft/internal/creative"
	"github.com/TobiSchelling/adcraft/internal/imageconv"
)

// fakeSurface returns a solid PNG of the requested size.
type fakeSurface struct {
	mu    sync.Mutex
	calls int
	html  []string
	sizes []Dimensions
	err   error
	raw   []byte
	delay time.Duration
}

func (f *fakeSurface) Capture(ctx context.Context, html string, width, height int) ([]byte, error) {
	f.mu.Lock()
	f.calls++
	f.html = append(f.html, html)
	f.sizes = append(f.sizes, Dimensions{Width: width, Height: height})
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.raw != nil {
		return f.raw, nil
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: 40, G: 90, B: 160, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func sampleAd(dims string) *creative.GeneratedAd {
	return &creative.GeneratedAd{
		ID:         "ad-1",
		ProjectID:  "acme",
		TemplateID: "seed-hero-bottom",
		Assets: creative.Assets{
			ImageURL: "https://cdn.example.com/hero.jpg",
			Headline: "Run further",
			BodyCopy: "Cushioned for every mile.",
			CTA:      "Shop now",
		},
		Metadata: creative.Metadata{Dimensions: dims},
	}
}

func TestParseDimensions(t *testing.T) {
	d, ok := ParseDimensions("1080x1920")
	assert.True(t, ok)
	assert.Equal(t, Dimensions{Width: 1080, Height: 1920}, d)

	d, ok = ParseDimensions(" 300 X 250 ")
	assert.True(t, ok)
	assert.Equal(t, "300x250", d.String())

	for _, bad := range []string{"", "wide", "0x100", "-5x10", "100x", "5000x100", "12.5x10"} {
		d, ok := ParseDimensions(bad)
		assert.False(t, ok, bad)
		assert.Equal(t, DefaultDimensions, d, bad)
	}
}

func TestRenderHonorsDimensions(t *testing.T) {
	surface := &fakeSurface{}
	r := New(surface, Options{Format: imageconv.JPEG}, nil)

	out, err := r.Render(context.Background(), sampleAd("320x180"), nil)
	require.NoError(t, err)

	w, h, err := imageconv.Dimensions(out)
	require.NoError(t, err)
	assert.Equal(t, 320, w)
	assert.Equal(t, 180, h)
	assert.Equal(t, []byte{0xff, 0xd8}, out[:2])
}

func TestRenderIsIdempotentInDimensions(t *testing.T) {
	r := New(&fakeSurface{}, Options{Format: imageconv.PNG}, nil)
	ad := sampleAd("200x100")

	for i := 0; i < 2; i++ {
		out, err := r.Render(context.Background(), ad, nil)
		require.NoError(t, err)
		w, h, err := imageconv.Dimensions(out)
		require.NoError(t, err)
		assert.Equal(t, 200, w)
		assert.Equal(t, 100, h)
	}
}

func TestRenderFallsBackToDefaultDimensions(t *testing.T) {
	surface := &fakeSurface{}
	r := New(surface, Options{Format: imageconv.PNG}, nil)

	_, err := r.Render(context.Background(), sampleAd("huge"), nil)
	require.NoError(t, err)
	require.Len(t, surface.sizes, 1)
	assert.Equal(t, DefaultDimensions, surface.sizes[0])
}

func TestRenderWithoutBodyCopy(t *testing.T) {
	surface := &fakeSurface{}
	r := New(surface, Options{Format: imageconv.PNG}, nil)

	ad := sampleAd("120x60")
	ad.Assets.BodyCopy = "  "
	_, err := r.Render(context.Background(), ad, nil)
	require.NoError(t, err)
	assert.NotContains(t, surface.html[0], `class="body"`)
}

func TestRenderRejectsMissingHeadline(t *testing.T) {
	surface := &fakeSurface{}
	r := New(surface, Options{}, nil)

	ad := sampleAd("120x60")
	ad.Assets.Headline = ""
	_, err := r.Render(context.Background(), ad, nil)

	var invalid *creative.InvalidInputError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "assets_json.headline", invalid.Field)
	assert.Zero(t, surface.calls)
	assert.False(t, creative.Retryable(err))
}

func TestRenderRejectsUnsupportedScheme(t *testing.T) {
	surface := &fakeSurface{}
	r := New(surface, Options{}, nil)

	// The page is loaded from about:blank, where Chrome refuses file:// images.
	for _, u := range []string{"javascript:alert(1)", "ftp://example.com/a.png", "https://", "file:///tmp/hero.png"} {
		ad := sampleAd("120x60")
		ad.Assets.ImageURL = u
		_, err := r.Render(context.Background(), ad, nil)
		var invalid *creative.InvalidInputError
		assert.ErrorAs(t, err, &invalid, u)
	}
	assert.Zero(t, surface.calls)
}

func TestRenderAcceptsRemoteAndInlineImages(t *testing.T) {
	r := New(&fakeSurface{}, Options{Format: imageconv.PNG}, nil)
	for _, u := range []string{"https://cdn.example.com/hero.png", "data:image/png;base64,iVBORw0KGgo="} {
		ad := sampleAd("60x60")
		ad.Assets.ImageURL = u
		_, err := r.Render(context.Background(), ad, nil)
		assert.NoError(t, err, u)
	}
}

func TestRenderSurfaceFailureIsRetryable(t *testing.T) {
	boom := errors.New("chrome crashed")
	r := New(&fakeSurface{err: boom}, Options{}, nil)

	_, err := r.Render(context.Background(), sampleAd("120x60"), nil)

	var renderErr *creative.RenderError
	require.ErrorAs(t, err, &renderErr)
	assert.Equal(t, "capture", renderErr.Stage)
	assert.ErrorIs(t, err, boom)
	assert.True(t, creative.Retryable(err))
}

func TestRenderKeepsSurfaceStage(t *testing.T) {
	launchErr := &creative.RenderError{Stage: "launch", Err: errors.New("no browser")}
	r := New(&fakeSurface{err: launchErr}, Options{}, nil)

	_, err := r.Render(context.Background(), sampleAd("120x60"), nil)

	var renderErr *creative.RenderError
	require.ErrorAs(t, err, &renderErr)
	assert.Equal(t, "launch", renderErr.Stage)
}

func TestRenderRejectsWrongSize(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 10, 10))))
	r := New(&fakeSurface{raw: buf.Bytes()}, Options{Format: imageconv.PNG}, nil)

	_, err := r.Render(context.Background(), sampleAd("120x60"), nil)

	var renderErr *creative.RenderError
	require.ErrorAs(t, err, &renderErr)
	assert.Contains(t, renderErr.Error(), "10x10")
}

func TestRenderEncodeFailure(t *testing.T) {
	r := New(&fakeSurface{raw: []byte("not a png")}, Options{}, nil)

	_, err := r.Render(context.Background(), sampleAd("120x60"), nil)

	var renderErr *creative.RenderError
	require.ErrorAs(t, err, &renderErr)
	assert.Equal(t, "encode", renderErr.Stage)
}

func TestRenderTimeout(t *testing.T) {
	r := New(&fakeSurface{delay: time.Second}, Options{Timeout: 20 * time.Millisecond}, nil)

	_, err := r.Render(context.Background(), sampleAd("120x60"), nil)

	var renderErr *creative.RenderError
	require.ErrorAs(t, err, &renderErr)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDocumentEscapesContent(t *testing.T) {
	assets := sampleAd("").Assets
	assets.Headline = `<script>alert("x")</script>`

	doc, err := Document(assets, nil, DefaultDimensions)
	require.NoError(t, err)
	assert.NotContains(t, doc, "<script>")
	assert.Contains(t, doc, "&lt;script&gt;")
	assert.Contains(t, doc, `src="https://cdn.example.com/hero.jpg"`)
}

func TestDocumentKeepsInlineImage(t *testing.T) {
	assets := sampleAd("").Assets
	assets.ImageURL = "data:image/png;base64,iVBORw0KGgo="

	doc, err := Document(assets, nil, DefaultDimensions)
	require.NoError(t, err)
	assert.Contains(t, doc, `src="data:image/png;base64,iVBORw0KGgo="`)
}

func TestDocumentAppliesStyleRules(t *testing.T) {
	tmpl := &creative.AdTemplate{
		StyleRules: map[creative.TextRole]creative.FontSpec{
			creative.RoleHeadline: {Size: 72, Weight: 900},
		},
	}

	doc, err := Document(sampleAd("").Assets, tmpl, DefaultDimensions)
	require.NoError(t, err)
	assert.Contains(t, doc, "font-size: 72px; font-weight: 900")
	// body keeps its default
	assert.Contains(t, doc, "font-size: 28px; font-weight: 400")

	half, err := Document(sampleAd("").Assets, tmpl, Dimensions{Width: 600, Height: 314})
	require.NoError(t, err)
	assert.Contains(t, half, "font-size: 36px; font-weight: 900")
	assert.True(t, strings.Contains(half, "width: 600px; height: 314px"))
}
