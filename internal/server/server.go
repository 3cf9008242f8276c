// Package server serves the adcraft dashboard and its JSON API.
package server

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/yuin/goldmark"
	"go.uber.org/zap"

	"github.com/TobiSchelling/adcraft/internal/catalog"
	"github.com/TobiSchelling/adcraft/internal/creative"
	"github.com/TobiSchelling/adcraft/internal/database"
	"github.com/TobiSchelling/adcraft/internal/pipeline"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

var md = goldmark.New()

// Guidelines generates and reads project guidelines.
type Guidelines interface {
	Generate(ctx context.Context, projectID string) (*creative.VisualGuideline, error)
	Active(ctx context.Context, projectID string) (*creative.VisualGuideline, error)
}

// Runner runs the creative pipeline for one request.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) *pipeline.Result
}

// Server is the HTTP server for the dashboard and API.
type Server struct {
	db         *database.DB
	guidelines Guidelines
	catalog    *catalog.Catalog
	runner     Runner
	pages      map[string]*template.Template
	router     chi.Router
	logger     *zap.Logger
}

// New creates a new Server. runner may be nil, which disables ad creation.
func New(db *database.DB, guidelines Guidelines, cat *catalog.Catalog, runner Runner, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	funcMap := template.FuncMap{
		"markdown": renderMarkdown,
		"bullets":  bulletList,
		"join":     strings.Join,
		"date": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Local().Format("2006-01-02 15:04")
		},
	}

	// Parse base template first
	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// Each page gets its own clone of the base with its own "content" block.
	pageNames := []string{"index.html", "project.html", "templates.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		if _, err := clone.ParseFS(templateFS, "templates/"+name); err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	s := &Server{
		db:         db,
		guidelines: guidelines,
		catalog:    cat,
		runner:     runner,
		pages:      pages,
		logger:     logger,
	}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)

	staticSub, _ := fs.Sub(staticFS, "static")
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	r.Get("/", s.handleIndex)
	r.Get("/projects/{project}", s.handleProject)
	r.Get("/templates", s.handleTemplates)

	r.Route("/api", func(r chi.Router) {
		r.Get("/healthz", s.handleHealthz)
		r.Get("/stats", s.handleStats)
		r.Get("/projects", s.handleListProjects)
		r.Route("/projects/{project}", func(r chi.Router) {
			r.Get("/guideline", s.handleActiveGuideline)
			r.Post("/guideline", s.handleGenerateGuideline)
			r.Get("/guidelines", s.handleGuidelineHistory)
			r.Get("/ads", s.handleListAds)
		})
		r.Get("/templates", s.handleListTemplates)
		r.Post("/templates", s.handleAddTemplate)
		r.Post("/templates/derive", s.handleDeriveTemplate)
		r.Get("/templates/{id}", s.handleGetTemplate)
		r.Post("/validate", s.handleValidate)
		r.Post("/ads", s.handleCreateAd)
		r.Get("/ads/{id}", s.handleGetAd)
		r.Get("/ads/{id}/image", s.handleAdImage)
	})

	s.router = r
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		s.logger.Error("template not found", zap.String("template", name))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		s.logger.Error("rendering template", zap.String("template", name), zap.Error(err))
	}
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

// bulletList turns rule strings into a markdown list.
func bulletList(items []string) string {
	var b strings.Builder
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			b.WriteString("- ")
			b.WriteString(it)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// Serve listens on 127.0.0.1:port until ctx is cancelled.
func Serve(ctx context.Context, srv *Server, port int) error {
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	hs := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- hs.ListenAndServe() }()
	srv.logger.Info("server listening", zap.String("url", "http://"+addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.logger.Info("shutting down")
		return hs.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	}
}
