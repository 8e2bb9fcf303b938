package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/xaenox/readfeed/internal/feed"
)

// Server exposes the feed manager over HTTP. Authentication happens upstream;
// requests arrive with an already-authenticated opaque user id.
type Server struct {
	manager *feed.Manager
	logger  *zap.Logger
}

func NewServer(manager *feed.Manager, logger *zap.Logger) *Server {
	return &Server{
		manager: manager,
		logger:  logger,
	}
}

func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/content/next", s.handleNextContent)
		r.Post("/feeds/generate", s.handleGenerateFeed)
		r.Get("/feeds/status", s.handleFeedStatus)
		r.Post("/feedback", s.handleFeedback)
		r.Route("/admin", func(r chi.Router) {
			r.Get("/stats", s.handleStats)
			r.Post("/refresh", s.handleRefreshAll)
		})
	})
	return r
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
