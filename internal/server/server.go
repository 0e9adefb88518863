// Package server exposes the capture, fix and recent-feed flows over HTTP.
// Handlers translate between wire DTOs and pipeline outcomes; all policy
// lives in the pipeline.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/inbox-api/internal/config"
	"github.com/sells-group/inbox-api/internal/model"
	"github.com/sells-group/inbox-api/internal/pipeline"
)

// Service is the part of the pipeline the HTTP layer needs. *pipeline.Pipeline
// satisfies it; tests substitute a mock.
type Service interface {
	Capture(ctx context.Context, in pipeline.CaptureInput) (pipeline.Outcome, error)
	Fix(ctx context.Context, in pipeline.FixInput) (pipeline.Outcome, error)
	Recent(ctx context.Context, limit int, cursor *int64) ([]model.FeedItem, error)
}

// Server is the HTTP front end.
type Server struct {
	svc Service
	cfg config.ServerConfig
}

// New builds a Server around the given service.
func New(svc Service, cfg config.ServerConfig) *Server {
	return &Server{svc: svc, cfg: cfg}
}

// Router assembles the chi router with CORS and request logging.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	if len(s.cfg.AllowedOrigins) > 0 {
		r.Use(s.rejectUnknownOrigin)
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.cfg.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Content-Type"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	r.Post("/capture", s.handleCapture)
	r.Post("/fix", s.handleFix)
	r.Get("/recent", s.handleRecent)
	r.Get("/health", s.handleHealth)

	return r
}

// rejectUnknownOrigin returns 403 for requests whose Origin is outside the
// allowlist. The cors middleware alone would only strip the CORS headers.
func (s *Server) rejectUnknownOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && !s.originAllowed(origin) {
			writeError(w, http.StatusForbidden, "forbidden", "origin not allowed")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("server: encode response", zap.Error(err))
	}
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: code, Message: message})
}
