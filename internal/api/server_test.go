package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/quorum-ai/quorumd/internal/backend"
	"github.com/quorum-ai/quorumd/internal/cohort"
	"github.com/quorum-ai/quorumd/internal/dispatch"
	"github.com/quorum-ai/quorumd/internal/engine"
	"github.com/quorum-ai/quorumd/internal/history"
)

type fakeAdapter struct {
	id   string
	text string
	err  error
}

func (f fakeAdapter) ID() string { return f.id }

func (f fakeAdapter) Query(_ context.Context, _ string) (string, error) {
	return f.text, f.err
}

type fakeLocal struct {
	seq   int
	convs []history.StoredConversation
}

func (l *fakeLocal) Put(_ context.Context, conv history.StoredConversation) (history.StoredConversation, error) {
	if conv.ID == "" {
		l.seq++
		conv.ID = strconv.Itoa(l.seq)
	}
	l.convs = append(l.convs, conv)
	return conv, nil
}

func (l *fakeLocal) List(_ context.Context, userID string) ([]history.StoredConversation, error) {
	var out []history.StoredConversation
	for i := len(l.convs) - 1; i >= 0; i-- {
		if l.convs[i].UserID == userID {
			out = append(out, l.convs[i])
		}
	}
	return out, nil
}

func (l *fakeLocal) Get(_ context.Context, userID, id string) (history.StoredConversation, error) {
	for _, c := range l.convs {
		if c.UserID == userID && c.ID == id {
			return c, nil
		}
	}
	return history.StoredConversation{}, history.ErrNotFound
}

func (l *fakeLocal) Delete(_ context.Context, userID, id string) error {
	for i, c := range l.convs {
		if c.UserID == userID && c.ID == id {
			l.convs = append(l.convs[:i], l.convs[i+1:]...)
			return nil
		}
	}
	return history.ErrNotFound
}

func newTestServer(apiToken string, adapters ...backend.Adapter) (*Server, *fakeLocal) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := backend.NewRegistry(adapters...)

	var backends []string
	for _, a := range adapters {
		backends = append(backends, a.ID())
	}
	table := &cohort.Table{
		Groups: map[string]cohort.Cohort{
			"chat": {Backends: backends, Description: "General conversation"},
		},
	}

	local := &fakeLocal{}
	gateway := history.NewGateway(nil, local, logger)
	eng := engine.New(table, reg, dispatch.New(reg, logger), gateway, nil, logger)
	return NewServer(8700, apiToken, eng, table, logger), local
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer("")

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %v", body["status"])
	}
	if body["version"] != Version {
		t.Errorf("expected version %s, got %v", Version, body["version"])
	}
}

func TestDiscussEndpoint(t *testing.T) {
	srv, local := newTestServer("",
		fakeAdapter{id: "m1", text: "A thorough answer from the first model."},
		fakeAdapter{id: "m2", text: "A thorough answer from the second model."},
	)

	req := httptest.NewRequest("POST", "/api/discuss", strings.NewReader(`{"prompt":"hello, how does this work?"}`))
	req.Header.Set("X-User-ID", "user-1")
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp discussResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Success {
		t.Error("expected success true")
	}
	if resp.Version != Version {
		t.Errorf("expected version %s, got %q", Version, resp.Version)
	}
	if !strings.HasPrefix(resp.Discussion.FinalConsensus, "CHAT CONSENSUS:") {
		t.Errorf("unexpected consensus: %q", resp.Discussion.FinalConsensus)
	}
	if resp.Discussion.Confidence != 1.0 {
		t.Errorf("expected confidence 1.0, got %v", resp.Discussion.Confidence)
	}

	if len(local.convs) != 1 {
		t.Fatalf("expected 1 recorded conversation, got %d", len(local.convs))
	}
	if local.convs[0].UserID != "user-1" {
		t.Errorf("expected recorded user user-1, got %q", local.convs[0].UserID)
	}
}

func TestDiscussRejectsEmptyPrompt(t *testing.T) {
	srv, _ := newTestServer("", fakeAdapter{id: "m1", text: "unused"})

	req := httptest.NewRequest("POST", "/api/discuss", strings.NewReader(`{"prompt":"  "}`))
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	var resp errorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Success {
		t.Error("expected success false")
	}
	if resp.Error.Code != "INVALID_PROMPT" {
		t.Errorf("expected INVALID_PROMPT, got %q", resp.Error.Code)
	}
}

func TestDiscussRejectsOverlongPrompt(t *testing.T) {
	srv, _ := newTestServer("", fakeAdapter{id: "m1", text: "unused"})

	body, _ := json.Marshal(discussRequest{Prompt: strings.Repeat("x", 4001)})
	req := httptest.NewRequest("POST", "/api/discuss", strings.NewReader(string(body)))
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	var resp errorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Error.Code != "PROMPT_TOO_LONG" {
		t.Errorf("expected PROMPT_TOO_LONG, got %q", resp.Error.Code)
	}
}

func TestDiscussRejectsInvalidJSON(t *testing.T) {
	srv, _ := newTestServer("", fakeAdapter{id: "m1", text: "unused"})

	req := httptest.NewRequest("POST", "/api/discuss", strings.NewReader(`{"prompt":`))
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestQuickEndpoint(t *testing.T) {
	srv, _ := newTestServer("", fakeAdapter{id: "m1", text: "A single-model answer, no consensus."})

	req := httptest.NewRequest("POST", "/api/quick", strings.NewReader(`{"model":"m1","prompt":"just one please"}`))
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp quickResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Result.OK() {
		t.Errorf("expected OK result, got error %q", resp.Result.Err)
	}
	if resp.Result.Text != "A single-model answer, no consensus." {
		t.Errorf("unexpected text: %q", resp.Result.Text)
	}
}

func TestQuickUnknownModelStillResponds(t *testing.T) {
	srv, _ := newTestServer("", fakeAdapter{id: "m1", text: "unused"})

	req := httptest.NewRequest("POST", "/api/quick", strings.NewReader(`{"model":"ghost","prompt":"anyone?"}`))
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp quickResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Result.OK() {
		t.Error("expected errored result for unknown model")
	}
}

func TestModelsEndpoint(t *testing.T) {
	srv, _ := newTestServer("",
		fakeAdapter{id: "m1", text: ""},
		fakeAdapter{id: "m2", text: ""},
	)

	req := httptest.NewRequest("GET", "/api/models", nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp modelsResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Models) != 2 {
		t.Errorf("expected 2 models, got %v", resp.Models)
	}
	if g, ok := resp.Groups["chat"]; !ok || len(g.Backends) != 2 {
		t.Errorf("expected chat group with 2 backends, got %+v", resp.Groups)
	}
}

func TestNotFoundEndpoint(t *testing.T) {
	srv, _ := newTestServer("")

	req := httptest.NewRequest("GET", "/nonexistent", nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}
