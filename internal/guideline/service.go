package guideline

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/TobiSchelling/adcraft/internal/creative"
)

// Store is the persistence the guideline service needs.
type Store interface {
	ListBatches(ctx context.Context, projectID string) ([]creative.CompetitorBatch, error)
	GetBrandIdentity(ctx context.Context, projectID string) (*creative.BrandIdentity, error)
	InsertGuideline(ctx context.Context, g *creative.VisualGuideline) error
	LatestGuideline(ctx context.Context, projectID string) (*creative.VisualGuideline, error)
}

// Service generates and persists guidelines. At most one generation per
// project is in flight; concurrent callers for the same project share its
// result.
type Service struct {
	store     Store
	extractor *Extractor
	group     singleflight.Group
	logger    *zap.Logger
}

// NewService creates a guideline service.
func NewService(store Store, extractor *Extractor, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, extractor: extractor, logger: logger}
}

// Generate extracts a new guideline for the project from its stored
// competitor batches and brand identity, and appends it to the history.
// On failure nothing is stored and the previous guideline stays active.
func (s *Service) Generate(ctx context.Context, projectID string) (*creative.VisualGuideline, error) {
	v, err, shared := s.group.Do(projectID, func() (any, error) {
		return s.generate(ctx, projectID)
	})
	if shared {
		s.logger.Debug("joined in-flight guideline generation", zap.String("project", projectID))
	}
	if err != nil {
		return nil, err
	}
	g := *v.(*creative.VisualGuideline)
	return &g, nil
}

func (s *Service) generate(ctx context.Context, projectID string) (*creative.VisualGuideline, error) {
	batches, err := s.store.ListBatches(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("loading competitor batches: %w", err)
	}

	brand, err := s.store.GetBrandIdentity(ctx, projectID)
	if errors.Is(err, creative.ErrNotFound) {
		brand = nil
	} else if err != nil {
		return nil, fmt.Errorf("loading brand identity: %w", err)
	}

	g, err := s.extractor.Extract(ctx, projectID, batches, brand)
	if err != nil {
		return nil, err
	}

	if err := s.store.InsertGuideline(ctx, g); err != nil {
		return nil, fmt.Errorf("storing guideline: %w", err)
	}

	s.logger.Info("guideline generated",
		zap.String("project", projectID),
		zap.Int64("id", g.ID),
		zap.String("category", g.Category),
		zap.Int("frequency_score", g.PerformanceSignals.FrequencyScore),
	)
	return g, nil
}

// Active returns the most recent guideline of a project, or
// creative.ErrNotFound.
func (s *Service) Active(ctx context.Context, projectID string) (*creative.VisualGuideline, error) {
	return s.store.LatestGuideline(ctx, projectID)
}
