package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/TobiSchelling/adcraft/internal/compat"
	"github.com/TobiSchelling/adcraft/internal/creative"
	"github.com/TobiSchelling/adcraft/internal/imageconv"
	"github.com/TobiSchelling/adcraft/internal/pipeline"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error         string                        `json:"error"`
	Kind          string                        `json:"kind"`
	Retryable     bool                          `json:"retryable"`
	Compatibility *creative.CompatibilityResult `json:"compatibility,omitempty"`
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) (int, string) {
	var (
		invalid      *creative.InvalidInputError
		insufficient *creative.InsufficientDataError
		unavailable  *creative.OracleUnavailableError
		contract     *creative.OracleContractError
		renderErr    *creative.RenderError
		incompatible *pipeline.IncompatibleError
	)
	switch {
	case errors.As(err, &invalid):
		return http.StatusBadRequest, "invalid_input"
	case errors.As(err, &insufficient):
		return http.StatusUnprocessableEntity, "insufficient_data"
	case errors.Is(err, creative.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.As(err, &incompatible):
		return http.StatusConflict, "incompatible"
	case errors.As(err, &unavailable):
		return http.StatusServiceUnavailable, "oracle_unavailable"
	case errors.As(err, &contract):
		return http.StatusBadGateway, "oracle_contract"
	case errors.As(err, &renderErr):
		return http.StatusInternalServerError, "render_failed"
	}
	return http.StatusInternalServerError, "internal"
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("encoding response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status, kind := statusFor(err)
	resp := errorResponse{Error: err.Error(), Kind: kind, Retryable: creative.Retryable(err)}
	var incompatible *pipeline.IncompatibleError
	if errors.As(err, &incompatible) {
		resp.Compatibility = &incompatible.Result
	}
	if status >= 500 {
		s.logger.Error("request failed", zap.String("kind", kind), zap.Error(err))
	}
	s.writeJSON(w, status, resp)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		s.writeError(w, &creative.InvalidInputError{Field: "body", Reason: err.Error()})
		return false
	}
	return true
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.db.GetStats(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.db.ListProjects(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if projects == nil {
		projects = []string{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"projects": projects})
}

func (s *Server) handleActiveGuideline(w http.ResponseWriter, r *http.Request) {
	g, err := s.guidelines.Active(r.Context(), chi.URLParam(r, "project"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleGenerateGuideline(w http.ResponseWriter, r *http.Request) {
	g, err := s.guidelines.Generate(r.Context(), chi.URLParam(r, "project"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, g)
}

func (s *Server) handleGuidelineHistory(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	history, err := s.db.ListGuidelines(r.Context(), chi.URLParam(r, "project"), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if history == nil {
		history = []creative.VisualGuideline{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"guidelines": history})
}

func (s *Server) handleListAds(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	ads, err := s.db.ListGeneratedAds(r.Context(), chi.URLParam(r, "project"), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if ads == nil {
		ads = []creative.GeneratedAd{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"ads": ads})
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := s.catalog.ListForPlatform(r.Context(), r.URL.Query().Get("platform"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if templates == nil {
		templates = []creative.AdTemplate{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"templates": templates})
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := s.catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleAddTemplate(w http.ResponseWriter, r *http.Request) {
	var t creative.AdTemplate
	if !s.decode(w, r, &t) {
		return
	}
	if err := s.catalog.Add(r.Context(), &t); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, t)
}

func (s *Server) handleDeriveTemplate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProjectID string `json:"project_id"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if req.ProjectID == "" {
		s.writeError(w, &creative.InvalidInputError{Field: "project_id", Reason: "required"})
		return
	}
	g, err := s.guidelines.Active(r.Context(), req.ProjectID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	t, err := s.catalog.Derive(r.Context(), g)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, t)
}

type validateRequest struct {
	TemplateID string                   `json:"template_id"`
	Template   *creative.AdTemplate     `json:"template"`
	ImageRef   string                   `json:"image_ref"`
	Layout     *creative.ImageLayoutMap `json:"layout"`
}

// handleValidate scores one template against one image. Both sides may be
// given inline or by reference (catalog id, cached analysis).
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if !s.decode(w, r, &req) {
		return
	}
	ctx := r.Context()

	tmpl := req.Template
	if tmpl == nil && req.TemplateID != "" {
		t, err := s.catalog.Get(ctx, req.TemplateID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		tmpl = t
	}

	layout := req.Layout
	if layout == nil && req.ImageRef != "" {
		m, err := s.db.GetImageLayout(ctx, req.ImageRef)
		if err != nil {
			s.writeError(w, err)
			return
		}
		layout = m
	}
	if layout != nil {
		layout.Normalize()
	}

	res, err := compat.Validate(tmpl, layout)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCreateAd(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "rendering disabled", Kind: "unavailable"})
		return
	}
	var req pipeline.Request
	if !s.decode(w, r, &req) {
		return
	}

	result := s.runner.Run(r.Context(), req)
	if result.Err != nil {
		s.writeError(w, result.Err)
		return
	}
	s.writeJSON(w, http.StatusCreated, result)
}

func (s *Server) handleGetAd(w http.ResponseWriter, r *http.Request) {
	ad, err := s.db.GetGeneratedAd(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ad)
}

func (s *Server) handleAdImage(w http.ResponseWriter, r *http.Request) {
	ad, err := s.db.GetGeneratedAd(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if ad.Metadata.ImagePath == "" {
		s.writeError(w, creative.ErrNotFound)
		return
	}
	data, err := os.ReadFile(ad.Metadata.ImagePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.writeError(w, creative.ErrNotFound)
			return
		}
		s.writeError(w, err)
		return
	}
	contentType := "application/octet-stream"
	if f, err := imageconv.ParseFormat(ad.Metadata.Format); err == nil {
		contentType = f.ContentType()
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}
