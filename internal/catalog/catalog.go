// Package catalog owns the append-only set of ad templates.
package catalog

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/TobiSchelling/adcraft/internal/creative"
	"github.com/TobiSchelling/adcraft/internal/database"
)

//go:embed templates.yaml
var seedYAML []byte

// Store is the persistence the catalog needs.
type Store interface {
	InsertTemplate(ctx context.Context, t *creative.AdTemplate) error
	GetTemplate(ctx context.Context, id string) (*creative.AdTemplate, error)
	ListTemplates(ctx context.Context) ([]creative.AdTemplate, error)
	TemplateForGuideline(ctx context.Context, guidelineID int64) (*creative.AdTemplate, error)
}

// Catalog reads and appends templates. Stored templates are never changed.
type Catalog struct {
	store  Store
	logger *zap.Logger

	deriveMu sync.Mutex
}

// New creates a catalog over store.
func New(store Store, logger *zap.Logger) *Catalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Catalog{store: store, logger: logger}
}

// Get returns a template by id, or creative.ErrNotFound.
func (c *Catalog) Get(ctx context.Context, id string) (*creative.AdTemplate, error) {
	return c.store.GetTemplate(ctx, id)
}

// ListForPlatform returns the templates usable on platform. An empty platform
// returns every template.
func (c *Catalog) ListForPlatform(ctx context.Context, platform string) ([]creative.AdTemplate, error) {
	all, err := c.store.ListTemplates(ctx)
	if err != nil {
		return nil, err
	}
	if platform == "" {
		return all, nil
	}
	var out []creative.AdTemplate
	for _, t := range all {
		if t.SupportsPlatform(platform) {
			out = append(out, t)
		}
	}
	return out, nil
}

// Add validates t and appends it. A missing id is generated; an id already in
// the catalog is rejected.
func (c *Catalog) Add(ctx context.Context, t *creative.AdTemplate) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if err := t.Validate(); err != nil {
		return err
	}
	if err := c.store.InsertTemplate(ctx, t); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return &creative.InvalidInputError{Field: "id", Reason: fmt.Sprintf("template %s already exists", t.ID)}
		}
		return fmt.Errorf("storing template: %w", err)
	}
	c.logger.Info("template added", zap.String("id", t.ID), zap.String("name", t.Name))
	return nil
}

// Derive returns the template already derived from a stored guideline, or
// builds one and appends it. Guidelines without an id always derive afresh.
func (c *Catalog) Derive(ctx context.Context, g *creative.VisualGuideline) (*creative.AdTemplate, error) {
	c.deriveMu.Lock()
	defer c.deriveMu.Unlock()

	if g != nil && g.ID != 0 {
		existing, err := c.store.TemplateForGuideline(ctx, g.ID)
		if err == nil {
			c.logger.Debug("reusing derived template", zap.String("id", existing.ID), zap.Int64("guideline_id", g.ID))
			return existing, nil
		}
		if !errors.Is(err, creative.ErrNotFound) {
			return nil, fmt.Errorf("looking up derived template: %w", err)
		}
	}

	t, err := DeriveFromGuideline(g)
	if err != nil {
		return nil, err
	}
	if err := c.Add(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Seed loads the built-in templates. Templates already present are left
// alone, so seeding twice is harmless. Returns the number added.
func (c *Catalog) Seed(ctx context.Context) (int, error) {
	seeds, err := SeedTemplates()
	if err != nil {
		return 0, err
	}
	added := 0
	for i := range seeds {
		err := c.store.InsertTemplate(ctx, &seeds[i])
		if errors.Is(err, database.ErrDuplicate) {
			continue
		}
		if err != nil {
			return added, fmt.Errorf("seeding template %s: %w", seeds[i].ID, err)
		}
		added++
	}
	if added > 0 {
		c.logger.Info("seeded template catalog", zap.Int("added", added))
	}
	return added, nil
}

// SeedTemplates parses and validates the embedded template catalog.
func SeedTemplates() ([]creative.AdTemplate, error) {
	var doc struct {
		Templates []creative.AdTemplate `yaml:"templates"`
	}
	if err := yaml.Unmarshal(seedYAML, &doc); err != nil {
		return nil, fmt.Errorf("parsing seed templates: %w", err)
	}
	for i := range doc.Templates {
		if err := doc.Templates[i].Validate(); err != nil {
			return nil, fmt.Errorf("seed template %s: %w", doc.Templates[i].ID, err)
		}
	}
	return doc.Templates, nil
}
