package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dgallion1/synapse/internal/config"
	"github.com/dgallion1/synapse/internal/connections"
	"github.com/dgallion1/synapse/internal/library"
	"github.com/dgallion1/synapse/internal/session"
	"github.com/dgallion1/synapse/internal/stream"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Backend is the part of the connections client the API exposes directly.
type Backend interface {
	ViewerConfig(ctx context.Context) (connections.ViewerConfig, error)
	Stats() map[string]connections.LatencySnapshot
}

// Server is the HTTP API server for synapse.
type Server struct {
	router   chi.Router
	library  *library.Library
	sessions *session.Registry
	hub      *stream.Hub
	backend  Backend
	log      *slog.Logger
	cfg      config.Config
}

// NewServer creates and configures the HTTP server. backend may be nil.
func NewServer(lib *library.Library, sessions *session.Registry, hub *stream.Hub, backend Backend, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		library:  lib,
		sessions: sessions,
		hub:      hub,
		backend:  backend,
		log:      log,
		cfg:      cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	r.Get("/health", s.handleHealth)
	r.Get("/api/config", s.handleViewerConfig)
	r.Get("/api/stats/connections", s.handleConnectionStats)

	r.Route("/api/documents", func(r chi.Router) {
		r.Post("/", s.handleUpload)
		r.Post("/batch", s.handleBatchUpload)
		r.Get("/", s.handleListDocuments)
		r.Get("/{docID}", s.handleGetDocument)
		r.Get("/{docID}/pages/{page}", s.handleGetPage)
		r.Delete("/{docID}", s.handleDeleteDocument)
	})

	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", s.handleCreateSession)
		r.Get("/", s.handleListSessions)
		r.Get("/{sessionID}", s.handleGetSession)
		r.Delete("/{sessionID}", s.handleDeleteSession)
		r.Post("/{sessionID}/events", s.handleSessionEvents)
		r.Post("/{sessionID}/exit-selection", s.handleExitSelection)
		r.Post("/{sessionID}/goto", s.handleGoto)
		r.Get("/{sessionID}/stream", s.handleStream)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
