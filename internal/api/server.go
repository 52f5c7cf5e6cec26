// Package api exposes the consensus engine over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/quorum-ai/quorumd/internal/backend"
	"github.com/quorum-ai/quorumd/internal/cohort"
	"github.com/quorum-ai/quorumd/internal/engine"
	"github.com/quorum-ai/quorumd/internal/synthesis"
)

// Version is reported in every successful response envelope.
const Version = "1.0.0"

// Error codes returned in the error envelope.
const (
	codeInvalidPrompt   = "INVALID_PROMPT"
	codePromptTooLong   = "PROMPT_TOO_LONG"
	codeProcessingError = "PROCESSING_ERROR"
	codeUnauthorized    = "UNAUTHORIZED"
	codeNotFound        = "NOT_FOUND"
)

type Server struct {
	router   *chi.Mux
	port     int
	apiToken string
	engine   *engine.Engine
	table    *cohort.Table
	logger   *slog.Logger
}

func NewServer(port int, apiToken string, eng *engine.Engine, table *cohort.Table, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router:   router,
		port:     port,
		apiToken: apiToken,
		engine:   eng,
		table:    table,
		logger:   logger,
	}

	if apiToken == "" {
		logger.Warn("API token not configured — conversation routes are unauthenticated")
	}

	router.Get("/health", s.health)
	router.Post("/api/discuss", s.discuss)
	router.Post("/api/quick", s.quick)
	router.Post("/api/stream", s.stream)
	router.Get("/api/models", s.models)

	router.Route("/api/conversations", func(r chi.Router) {
		r.Use(BearerAuthMiddleware(apiToken))
		r.Post("/", s.createConversation)
		r.Get("/", s.listConversations)
		r.Get("/{id}", s.getConversation)
		r.Delete("/{id}", s.deleteConversation)
	})

	return s
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("API server starting", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

// BearerAuthMiddleware rejects requests whose Authorization header does not
// carry the configured token. An empty token disables the check.
func BearerAuthMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token != "" && r.Header.Get("Authorization") != "Bearer "+token {
				writeError(w, http.StatusUnauthorized, codeUnauthorized, "invalid or missing bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// userID returns the caller identity forwarded by the edge gateway. Empty
// means anonymous: the discussion still runs, it just skips the remote store.
func userID(r *http.Request) string {
	return r.Header.Get("X-User-ID")
}

type discussRequest struct {
	Prompt string `json:"prompt"`
}

type discussResponse struct {
	Success    bool                 `json:"success"`
	Discussion synthesis.Discussion `json:"discussion"`
	Timestamp  time.Time            `json:"timestamp"`
	Version    string               `json:"version"`
}

func (s *Server) discuss(w http.ResponseWriter, r *http.Request) {
	var req discussRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidPrompt, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	d, err := s.engine.Discuss(r.Context(), userID(r), req.Prompt)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, discussResponse{
		Success:    true,
		Discussion: d,
		Timestamp:  time.Now().UTC(),
		Version:    Version,
	})
}

type quickRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type quickResponse struct {
	Success   bool           `json:"success"`
	Result    backend.Result `json:"result"`
	Timestamp time.Time      `json:"timestamp"`
	Version   string         `json:"version"`
}

// quick queries one backend directly, no synthesis and no persistence.
func (s *Server) quick(w http.ResponseWriter, r *http.Request) {
	var req quickRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidPrompt, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	res, err := s.engine.Quick(r.Context(), req.Model, req.Prompt)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, quickResponse{
		Success:   true,
		Result:    res,
		Timestamp: time.Now().UTC(),
		Version:   Version,
	})
}

type modelsResponse struct {
	Success bool                     `json:"success"`
	Models  []string                 `json:"models"`
	Groups  map[string]cohort.Cohort `json:"groups"`
}

func (s *Server) models(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, modelsResponse{
		Success: true,
		Models:  s.engine.Backends(),
		Groups:  s.table.Groups,
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"version":  Version,
		"backends": len(s.engine.Backends()),
	})
}

func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrEmptyPrompt):
		writeError(w, http.StatusBadRequest, codeInvalidPrompt, "prompt is required")
	case errors.Is(err, engine.ErrPromptTooLong):
		writeError(w, http.StatusBadRequest, codePromptTooLong, err.Error())
	default:
		s.logger.Error("request processing failed", "error", err)
		writeError(w, http.StatusInternalServerError, codeProcessingError, "failed to process discussion")
	}
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Success bool      `json:"success"`
	Error   errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		Success: false,
		Error:   errorBody{Code: code, Message: message},
	})
}
