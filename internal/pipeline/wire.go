package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/TobiSchelling/adcraft/internal/catalog"
	"github.com/TobiSchelling/adcraft/internal/config"
	"github.com/TobiSchelling/adcraft/internal/database"
	"github.com/TobiSchelling/adcraft/internal/guideline"
	"github.com/TobiSchelling/adcraft/internal/imageconv"
	"github.com/TobiSchelling/adcraft/internal/llm"
	"github.com/TobiSchelling/adcraft/internal/perception"
	"github.com/TobiSchelling/adcraft/internal/render"
)

// Components are the concrete services behind a pipeline, built from config.
type Components struct {
	Guidelines *guideline.Service
	Catalog    *catalog.Catalog
	Perception *perception.Client
	Renderer   *render.Renderer
}

// Build wires the real components for cfg on top of db.
func Build(ctx context.Context, cfg *config.Config, db *database.DB, logger *zap.Logger) (*Components, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	provider := llm.CreateProvider(ctx, cfg.Oracle, logger)
	extractor := guideline.NewExtractor(provider, guideline.Options{
		ContextOptions: guideline.ContextOptions{
			MaxSamplesPerCompetitor: cfg.Extraction.MaxSamplesPerCompetitor,
			LandingPreviewChars:     cfg.Extraction.LandingPreviewChars,
		},
		MaxTokens: cfg.Oracle.MaxTokens,
		Timeout:   cfg.Oracle.Timeout,
	}, logger.Named("guideline"))

	format, err := imageconv.ParseFormat(cfg.Renderer.Format)
	if err != nil {
		return nil, err
	}

	cat := catalog.New(db, logger.Named("catalog"))
	if _, err := cat.Seed(ctx); err != nil {
		return nil, err
	}

	return &Components{
		Guidelines: guideline.NewService(db, extractor, logger.Named("guideline")),
		Catalog:    cat,
		Perception: perception.NewClient(cfg.Perception.URL, cfg.Perception.Timeout, db, logger.Named("perception")),
		Renderer: render.New(&render.RodSurface{BrowserBin: cfg.Renderer.BrowserBin}, render.Options{
			Format:  format,
			Quality: cfg.Renderer.Quality,
			Timeout: cfg.Renderer.Timeout,
		}, logger.Named("render")),
	}, nil
}

// NewFromConfig builds a pipeline with the real components.
func NewFromConfig(ctx context.Context, cfg *config.Config, db *database.DB, logger *zap.Logger) (*Pipeline, *Components, error) {
	c, err := Build(ctx, cfg, db, logger)
	if err != nil {
		return nil, nil, err
	}
	dims, _ := render.ParseDimensions(cfg.Renderer.DefaultDimensions)
	p := New(Deps{
		Guidelines: c.Guidelines,
		Templates:  c.Catalog,
		Analyzer:   c.Perception,
		Renderer:   c.Renderer,
		Ads:        db,
	}, Options{
		OutputDir:         cfg.RenderDir(),
		DefaultDimensions: dims,
		Concurrency:       cfg.Renderer.Concurrency,
	}, logger)
	return p, c, nil
}
