// Package pipeline runs the creative workflow end to end: guideline,
// template, image analysis, compatibility check, rendering and persistence.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/TobiSchelling/adcraft/internal/compat"
	"github.com/TobiSchelling/adcraft/internal/creative"
	"github.com/TobiSchelling/adcraft/internal/imageconv"
	"github.com/TobiSchelling/adcraft/internal/render"
)

// Guidelines produces and returns project guidelines.
type Guidelines interface {
	Generate(ctx context.Context, projectID string) (*creative.VisualGuideline, error)
	Active(ctx context.Context, projectID string) (*creative.VisualGuideline, error)
}

// Templates looks up and derives templates.
type Templates interface {
	Get(ctx context.Context, id string) (*creative.AdTemplate, error)
	Derive(ctx context.Context, g *creative.VisualGuideline) (*creative.AdTemplate, error)
}

// Analyzer returns the perceptual layout of an image.
type Analyzer interface {
	Analyze(ctx context.Context, imageRef string) (*creative.ImageLayoutMap, error)
}

// Renderer produces encoded rasters.
type Renderer interface {
	Render(ctx context.Context, ad *creative.GeneratedAd, tmpl *creative.AdTemplate) ([]byte, error)
	Format() imageconv.Format
}

// AdStore persists generated ads.
type AdStore interface {
	InsertGeneratedAd(ctx context.Context, ad *creative.GeneratedAd) error
}

// Deps are the components a pipeline drives.
type Deps struct {
	Guidelines Guidelines
	Templates  Templates
	Analyzer   Analyzer
	Renderer   Renderer
	Ads        AdStore
}

// Options configures a Pipeline.
type Options struct {
	// OutputDir receives rendered images. Empty keeps them in memory only.
	OutputDir         string
	DefaultDimensions render.Dimensions
	Concurrency       int
}

// Content is the copy bound into the template.
type Content struct {
	Headline string `json:"headline"`
	BodyCopy string `json:"body_copy"`
	CTA      string `json:"cta"`
}

// Request describes one ad to produce. ImageRef is both the analysis key and
// the image URL placed in the creative.
type Request struct {
	ProjectID  string  `json:"project_id"`
	ImageRef   string  `json:"image_ref"`
	Content    Content `json:"content"`
	Dimensions string  `json:"dimensions"`
	TemplateID string  `json:"template_id,omitempty"`
	Override   bool    `json:"override,omitempty"`
	Regenerate bool    `json:"regenerate,omitempty"`
}

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string `json:"name"`
	Summary string `json:"summary,omitempty"`
	Err     error  `json:"-"`
}

// Result holds the results of one pipeline run. Err is the error that
// stopped the run, if any.
type Result struct {
	ProjectID     string                        `json:"project_id"`
	Steps         []StepResult                  `json:"steps"`
	Guideline     *creative.VisualGuideline     `json:"guideline,omitempty"`
	Template      *creative.AdTemplate          `json:"template,omitempty"`
	Layout        *creative.ImageLayoutMap      `json:"layout,omitempty"`
	Compatibility *creative.CompatibilityResult `json:"compatibility,omitempty"`
	Ad            *creative.GeneratedAd         `json:"ad,omitempty"`
	Image         []byte                        `json:"-"`
	Err           error                         `json:"-"`
}

func (r *Result) add(step StepResult) bool {
	r.Steps = append(r.Steps, step)
	if step.Err != nil {
		r.Err = step.Err
		return false
	}
	return true
}

// IncompatibleError stops a run whose template and image failed the
// compatibility check.
type IncompatibleError struct {
	Result creative.CompatibilityResult
}

func (e *IncompatibleError) Error() string {
	return fmt.Sprintf("template %s incompatible with image (score %d): %s",
		e.Result.TemplateID, e.Result.Score, strings.Join(e.Result.Issues, "; "))
}

// Pipeline orchestrates the creative steps.
type Pipeline struct {
	deps   Deps
	opts   Options
	logger *zap.Logger
}

// New creates a new pipeline.
func New(deps Deps, opts Options, logger *zap.Logger) *Pipeline {
	if opts.DefaultDimensions.Width <= 0 || opts.DefaultDimensions.Height <= 0 {
		opts.DefaultDimensions = render.DefaultDimensions
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 2
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{deps: deps, opts: opts, logger: logger}
}

// Run executes the steps strictly in order and stops at the first failure.
// A failed compatibility check stops the run unless req.Override is set.
func (p *Pipeline) Run(ctx context.Context, req Request) *Result {
	r := &Result{ProjectID: req.ProjectID}
	log := p.logger.With(zap.String("project", req.ProjectID))

	if err := validateRequest(req); err != nil {
		r.add(StepResult{Name: "Request", Err: err})
		return r
	}

	// Step 1: Guideline
	if req.TemplateID == "" {
		log.Info("step 1/6: resolving guideline")
		if !r.add(p.runGuideline(ctx, req, r)) {
			return r
		}
	} else {
		r.add(StepResult{Name: "Guideline", Summary: "skipped: explicit template"})
	}

	// Step 2: Template
	log.Info("step 2/6: resolving template")
	if !r.add(p.runTemplate(ctx, req, r)) {
		return r
	}

	// Step 3: Analyze
	log.Info("step 3/6: analyzing image", zap.String("image", req.ImageRef))
	if !r.add(p.runAnalyze(ctx, req, r)) {
		return r
	}

	// Step 4: Validate
	log.Info("step 4/6: validating compatibility")
	if !r.add(p.runValidate(req, r)) {
		return r
	}

	// Step 5: Render
	log.Info("step 5/6: rendering")
	if !r.add(p.runRender(ctx, req, r)) {
		return r
	}

	// Step 6: Persist
	log.Info("step 6/6: persisting")
	r.add(p.runPersist(ctx, r))
	return r
}

// RenderBatch runs several requests with bounded concurrency. Results keep
// the order of reqs; one failure does not cancel the others.
func (p *Pipeline) RenderBatch(ctx context.Context, reqs []Request) []*Result {
	results := make([]*Result, len(reqs))
	var g errgroup.Group
	g.SetLimit(p.opts.Concurrency)
	for i, req := range reqs {
		g.Go(func() error {
			results[i] = p.Run(ctx, req)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func validateRequest(req Request) error {
	if strings.TrimSpace(req.ProjectID) == "" {
		return &creative.InvalidInputError{Field: "project_id", Reason: "required"}
	}
	if strings.TrimSpace(req.ImageRef) == "" {
		return &creative.InvalidInputError{Field: "image_ref", Reason: "required"}
	}
	return nil
}

func (p *Pipeline) runGuideline(ctx context.Context, req Request, r *Result) StepResult {
	if !req.Regenerate {
		g, err := p.deps.Guidelines.Active(ctx, req.ProjectID)
		if err == nil {
			r.Guideline = g
			return StepResult{
				Name:    "Guideline",
				Summary: fmt.Sprintf("Reused guideline %d (%s)", g.ID, g.Category),
			}
		}
		if !errors.Is(err, creative.ErrNotFound) {
			return StepResult{Name: "Guideline", Err: err}
		}
	}

	g, err := p.deps.Guidelines.Generate(ctx, req.ProjectID)
	if err != nil {
		return StepResult{Name: "Guideline", Err: err}
	}
	r.Guideline = g
	return StepResult{
		Name:    "Guideline",
		Summary: fmt.Sprintf("Generated guideline %d (%s, frequency %d)", g.ID, g.Category, g.PerformanceSignals.FrequencyScore),
	}
}

func (p *Pipeline) runTemplate(ctx context.Context, req Request, r *Result) StepResult {
	if req.TemplateID != "" {
		t, err := p.deps.Templates.Get(ctx, req.TemplateID)
		if err != nil {
			return StepResult{Name: "Template", Err: fmt.Errorf("template %s: %w", req.TemplateID, err)}
		}
		r.Template = t
		return StepResult{Name: "Template", Summary: fmt.Sprintf("Using template %s (%s)", t.ID, t.Name)}
	}

	t, err := p.deps.Templates.Derive(ctx, r.Guideline)
	if err != nil {
		return StepResult{Name: "Template", Err: err}
	}
	r.Template = t
	return StepResult{Name: "Template", Summary: fmt.Sprintf("Derived template %s (%s)", t.ID, t.Name)}
}

func (p *Pipeline) runAnalyze(ctx context.Context, req Request, r *Result) StepResult {
	m, err := p.deps.Analyzer.Analyze(ctx, req.ImageRef)
	if err != nil {
		return StepResult{Name: "Analyze", Err: err}
	}
	r.Layout = m
	return StepResult{
		Name: "Analyze",
		Summary: fmt.Sprintf("Contrast %s, noise %s, %d avoid zones",
			m.ContrastLevel, m.VisualNoise, len(m.AvoidZones)),
	}
}

func (p *Pipeline) runValidate(req Request, r *Result) StepResult {
	res, err := compat.Validate(r.Template, r.Layout)
	if err != nil {
		return StepResult{Name: "Validate", Err: err}
	}
	r.Compatibility = &res
	summary := fmt.Sprintf("Score %d, %d issues", res.Score, len(res.Issues))
	if res.Compatible {
		return StepResult{Name: "Validate", Summary: summary}
	}
	if req.Override {
		p.logger.Warn("rendering despite failed compatibility check",
			zap.String("template", res.TemplateID),
			zap.Int("score", res.Score),
			zap.Strings("issues", res.Issues),
		)
		return StepResult{Name: "Validate", Summary: summary + " (overridden)"}
	}
	return StepResult{Name: "Validate", Summary: summary, Err: &IncompatibleError{Result: res}}
}

func (p *Pipeline) runRender(ctx context.Context, req Request, r *Result) StepResult {
	dims, ok := render.ParseDimensions(req.Dimensions)
	if !ok {
		dims = p.opts.DefaultDimensions
	}
	format := p.deps.Renderer.Format()

	ad := &creative.GeneratedAd{
		ID:         uuid.NewString(),
		ProjectID:  req.ProjectID,
		TemplateID: r.Template.ID,
		Assets: creative.Assets{
			ImageURL: req.ImageRef,
			Headline: req.Content.Headline,
			BodyCopy: req.Content.BodyCopy,
			CTA:      req.Content.CTA,
		},
		Metadata: creative.Metadata{
			Dimensions: dims.String(),
			Format:     string(format),
		},
	}

	img, err := p.deps.Renderer.Render(ctx, ad, r.Template)
	if err != nil {
		return StepResult{Name: "Render", Err: err}
	}

	if p.opts.OutputDir != "" {
		path := filepath.Join(p.opts.OutputDir, ad.ID+"."+format.Extension())
		if err := writeImage(path, img); err != nil {
			return StepResult{Name: "Render", Err: err}
		}
		ad.Metadata.ImagePath = path
	}

	r.Ad = ad
	r.Image = img
	return StepResult{Name: "Render", Summary: fmt.Sprintf("Rendered %s %s (%d bytes)", dims, format, len(img))}
}

func (p *Pipeline) runPersist(ctx context.Context, r *Result) StepResult {
	if err := p.deps.Ads.InsertGeneratedAd(ctx, r.Ad); err != nil {
		if path := r.Ad.Metadata.ImagePath; path != "" {
			if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
				p.logger.Warn("failed to remove unpersisted image", zap.String("path", path), zap.Error(rmErr))
			}
			r.Ad.Metadata.ImagePath = ""
		}
		return StepResult{Name: "Persist", Err: fmt.Errorf("storing generated ad: %w", err)}
	}
	return StepResult{Name: "Persist", Summary: fmt.Sprintf("Stored ad %s", r.Ad.ID)}
}

func writeImage(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating render dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing image: %w", err)
	}
	return nil
}
