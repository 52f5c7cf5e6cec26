package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/quorum-ai/quorumd/internal/history"
	"github.com/quorum-ai/quorumd/internal/synthesis"
)

type saveConversationRequest struct {
	Discussion synthesis.Discussion `json:"discussion"`
}

type conversationResponse struct {
	Success      bool                       `json:"success"`
	Conversation history.StoredConversation `json:"conversation"`
}

type conversationListResponse struct {
	Success       bool                         `json:"success"`
	Conversations []history.StoredConversation `json:"conversations"`
	Count         int                          `json:"count"`
}

// createConversation stores a client-held discussion, for callers that ran
// /api/stream and assembled the artifact themselves.
func (s *Server) createConversation(w http.ResponseWriter, r *http.Request) {
	var req saveConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidPrompt, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if strings.TrimSpace(req.Discussion.UserQuery) == "" {
		writeError(w, http.StatusBadRequest, codeInvalidPrompt, "discussion has no user query")
		return
	}

	conv, err := s.engine.History().Record(r.Context(), userID(r), req.Discussion)
	if err != nil {
		s.logger.Error("failed to store conversation", "error", err)
		writeError(w, http.StatusInternalServerError, codeProcessingError, "failed to store conversation")
		return
	}

	writeJSON(w, http.StatusCreated, conversationResponse{Success: true, Conversation: conv})
}

func (s *Server) listConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := s.engine.History().List(r.Context(), userID(r))
	if err != nil {
		s.logger.Error("failed to list conversations", "error", err)
		writeError(w, http.StatusInternalServerError, codeProcessingError, "failed to list conversations")
		return
	}

	writeJSON(w, http.StatusOK, conversationListResponse{
		Success:       true,
		Conversations: convs,
		Count:         len(convs),
	})
}

func (s *Server) getConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	conv, err := s.engine.History().Get(r.Context(), userID(r), id)
	if err != nil {
		if errors.Is(err, history.ErrNotFound) {
			writeError(w, http.StatusNotFound, codeNotFound, fmt.Sprintf("conversation %s not found", id))
			return
		}
		s.logger.Error("failed to fetch conversation", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, codeProcessingError, "failed to fetch conversation")
		return
	}

	writeJSON(w, http.StatusOK, conversationResponse{Success: true, Conversation: conv})
}

func (s *Server) deleteConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.engine.History().Remove(r.Context(), userID(r), id); err != nil {
		s.logger.Error("failed to delete conversation", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, codeProcessingError, "failed to delete conversation")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
