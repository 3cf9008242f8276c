// Package render composites a content-bound ad into a raster image through
// a headless browser surface.
package render

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/TobiSchelling/adcraft/internal/creative"
	"github.com/TobiSchelling/adcraft/internal/imageconv"
)

// Surface captures a markup document at an exact viewport size and returns
// PNG bytes. Implementations own their session for the duration of one call.
type Surface interface {
	Capture(ctx context.Context, html string, width, height int) ([]byte, error)
}

// Options configures a Renderer.
type Options struct {
	Format  imageconv.Format
	Quality int
	Timeout time.Duration
}

// Renderer turns GeneratedAd content into encoded images.
type Renderer struct {
	surface Surface
	opts    Options
	logger  *zap.Logger
}

// New creates a renderer.
func New(surface Surface, opts Options, logger *zap.Logger) *Renderer {
	if opts.Format == "" {
		opts.Format = imageconv.JPEG
	}
	if opts.Quality <= 0 {
		opts.Quality = imageconv.DefaultQuality
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 45 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Renderer{surface: surface, opts: opts, logger: logger}
}

// Format returns the encoding of rendered images.
func (r *Renderer) Format() imageconv.Format {
	return r.opts.Format
}

// Render produces the encoded image for ad. tmpl supplies style rules and
// may be nil. Input problems are InvalidInputErrors; everything that fails
// after validation is a RenderError.
func (r *Renderer) Render(ctx context.Context, ad *creative.GeneratedAd, tmpl *creative.AdTemplate) ([]byte, error) {
	if ad == nil {
		return nil, &creative.InvalidInputError{Field: "ad", Reason: "required"}
	}

	dims, ok := ParseDimensions(ad.Metadata.Dimensions)
	if !ok {
		r.logger.Debug("using default dimensions",
			zap.String("requested", ad.Metadata.Dimensions),
			zap.Stringer("dimensions", dims),
		)
	}

	doc, err := Document(ad.Assets, tmpl, dims)
	if err != nil {
		var invalid *creative.InvalidInputError
		if errors.As(err, &invalid) {
			return nil, err
		}
		return nil, &creative.RenderError{Stage: "layout", Err: err}
	}

	renderCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	start := time.Now()
	shot, err := r.surface.Capture(renderCtx, doc, dims.Width, dims.Height)
	if err != nil {
		if renderCtx.Err() != nil {
			err = fmt.Errorf("%w: %w", renderCtx.Err(), err)
		}
		var renderErr *creative.RenderError
		if errors.As(err, &renderErr) {
			return nil, err
		}
		return nil, &creative.RenderError{Stage: "capture", Err: err}
	}

	out, err := imageconv.Encode(shot, r.opts.Format, r.opts.Quality)
	if err != nil {
		return nil, &creative.RenderError{Stage: "encode", Err: err}
	}
	if w, h, err := imageconv.Dimensions(out); err != nil || w != dims.Width || h != dims.Height {
		if err == nil {
			err = fmt.Errorf("surface produced %dx%d, want %s", w, h, dims)
		}
		return nil, &creative.RenderError{Stage: "encode", Err: err}
	}

	r.logger.Debug("ad rendered",
		zap.String("id", ad.ID),
		zap.Stringer("dimensions", dims),
		zap.String("format", string(r.opts.Format)),
		zap.Int("bytes", len(out)),
		zap.Duration("took", time.Since(start)),
	)
	return out, nil
}
