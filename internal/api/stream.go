package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/quorum-ai/quorumd/internal/backend"
	"github.com/quorum-ai/quorumd/internal/engine"
	"github.com/quorum-ai/quorumd/internal/synthesis"
)

// streamEvent is one SSE frame. Type is "start", "response", "error",
// "consensus" or "end"; the other fields are populated per type.
type streamEvent struct {
	Type       string                `json:"type"`
	PromptType string                `json:"prompt_type,omitempty"`
	Models     []string              `json:"models,omitempty"`
	Result     *backend.Result       `json:"result,omitempty"`
	Discussion *synthesis.Discussion `json:"discussion,omitempty"`
}

// stream runs the discussion with backends settled one at a time, pushing
// each result to the client as it lands. The synthesized artifact is still
// recorded server-side, same as /api/discuss.
func (s *Server) stream(w http.ResponseWriter, r *http.Request) {
	var req discussRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidPrompt, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if err := engine.ValidatePrompt(req.Prompt); err != nil {
		s.writeEngineError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, codeProcessingError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	send := func(ev streamEvent) {
		data, err := json.Marshal(ev)
		if err != nil {
			s.logger.Error("marshal stream event", "type", ev.Type, "error", err)
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}

	category, group := s.engine.Plan(req.Prompt)
	send(streamEvent{Type: "start", PromptType: string(category), Models: group.Backends})

	results := make([]backend.Result, 0, len(group.Backends))
	for _, id := range group.Backends {
		if r.Context().Err() != nil {
			s.logger.Info("stream client disconnected", "after", len(results))
			return
		}

		res := s.engine.QueryBackend(r.Context(), id, req.Prompt)
		results = append(results, res)

		kind := "response"
		if !res.OK() {
			kind = "error"
		}
		send(streamEvent{Type: kind, Result: &res})
	}

	d := s.engine.Finish(r.Context(), userID(r), req.Prompt, category, group, results)
	send(streamEvent{Type: "consensus", Discussion: &d})
	send(streamEvent{Type: "end"})
}
