package server

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/TobiSchelling/adcraft/internal/creative"
)

type competitorRow struct {
	Name      string
	Ads       int
	Known     int
	Platforms []string
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	projects, err := s.db.ListProjects(ctx)
	if err != nil {
		s.logger.Error("listing projects", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	stats, err := s.db.GetStats(ctx)
	if err != nil {
		s.logger.Error("reading stats", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	s.render(w, "index.html", map[string]any{
		"Projects": projects,
		"Stats":    stats,
	})
}

func (s *Server) handleProject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	projectID := chi.URLParam(r, "project")

	brand, err := s.db.GetBrandIdentity(ctx, projectID)
	if err != nil && !errors.Is(err, creative.ErrNotFound) {
		s.logger.Error("loading brand", zap.String("project", projectID), zap.Error(err))
	}

	active, err := s.guidelines.Active(ctx, projectID)
	if err != nil && !errors.Is(err, creative.ErrNotFound) {
		s.logger.Error("loading guideline", zap.String("project", projectID), zap.Error(err))
	}

	history, _ := s.db.ListGuidelines(ctx, projectID, 20)
	ads, _ := s.db.ListGeneratedAds(ctx, projectID, 50)

	batches, _ := s.db.ListBatches(ctx, projectID)
	competitors := make([]competitorRow, 0, len(batches))
	for _, b := range batches {
		competitors = append(competitors, competitorRow{
			Name:      b.Competitor,
			Ads:       len(b.Ads),
			Known:     b.TotalAdsKnown,
			Platforms: b.PlatformsObserved,
		})
	}

	s.render(w, "project.html", map[string]any{
		"ProjectID":   projectID,
		"Brand":       brand,
		"Guideline":   active,
		"History":     history,
		"Competitors": competitors,
		"Ads":         ads,
	})
}

func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	platform := r.URL.Query().Get("platform")
	templates, err := s.catalog.ListForPlatform(r.Context(), platform)
	if err != nil {
		s.logger.Error("listing templates", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	s.render(w, "templates.html", map[string]any{
		"Templates": templates,
		"Platform":  platform,
	})
}
