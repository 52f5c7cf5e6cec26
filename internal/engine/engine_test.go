package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/quorum-ai/quorumd/internal/backend"
	"github.com/quorum-ai/quorumd/internal/cohort"
	"github.com/quorum-ai/quorumd/internal/dispatch"
	"github.com/quorum-ai/quorumd/internal/history"
)

type fakeAdapter struct {
	id    string
	text  string
	err   error
	calls atomic.Int64
}

func (f *fakeAdapter) ID() string { return f.id }

func (f *fakeAdapter) Query(_ context.Context, _ string) (string, error) {
	f.calls.Add(1)
	return f.text, f.err
}

type fakeLocal struct {
	seq   int
	convs []history.StoredConversation
	fail  bool
}

func (l *fakeLocal) Put(_ context.Context, conv history.StoredConversation) (history.StoredConversation, error) {
	if l.fail {
		return history.StoredConversation{}, errors.New("disk full")
	}
	if conv.ID == "" {
		l.seq++
		conv.ID = strconv.Itoa(l.seq)
	}
	l.convs = append(l.convs, conv)
	return conv, nil
}

func (l *fakeLocal) List(_ context.Context, userID string) ([]history.StoredConversation, error) {
	var out []history.StoredConversation
	for _, c := range l.convs {
		if c.UserID == userID {
			out = append(out, c)
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

func newTestEngine(local *fakeLocal, adapters ...backend.Adapter) *Engine {
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

	gateway := history.NewGateway(nil, local, logger)
	return New(table, reg, dispatch.New(reg, logger), gateway, nil, logger)
}

func TestValidatePrompt(t *testing.T) {
	tests := []struct {
		name   string
		prompt string
		want   error
	}{
		{"empty", "", ErrEmptyPrompt},
		{"whitespace only", "   \n\t", ErrEmptyPrompt},
		{"normal", "explain goroutines", nil},
		{"at limit", strings.Repeat("a", 4000), nil},
		{"over limit", strings.Repeat("a", 4001), ErrPromptTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidatePrompt(tt.prompt); !errors.Is(got, tt.want) {
				t.Errorf("ValidatePrompt() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDiscussProducesConsensusAndRecords(t *testing.T) {
	local := &fakeLocal{}
	e := newTestEngine(local,
		&fakeAdapter{id: "m1", text: "The first considered answer to the question."},
		&fakeAdapter{id: "m2", text: "The second considered answer to the question."},
	)

	d, err := e.Discuss(context.Background(), "user-1", "hello there, how are you today?")
	if err != nil {
		t.Fatalf("Discuss() error = %v", err)
	}
	if d.PromptType != "chat" {
		t.Errorf("PromptType = %q, want %q", d.PromptType, "chat")
	}
	if d.Confidence != 1.0 {
		t.Errorf("Confidence = %v, want 1.0", d.Confidence)
	}
	if !strings.HasPrefix(d.FinalConsensus, "CHAT CONSENSUS:") {
		t.Errorf("FinalConsensus = %q, want CHAT CONSENSUS header", d.FinalConsensus)
	}

	if len(local.convs) != 1 {
		t.Fatalf("recorded %d conversations, want 1", len(local.convs))
	}
	if local.convs[0].UserID != "user-1" {
		t.Errorf("recorded UserID = %q, want %q", local.convs[0].UserID, "user-1")
	}
}

func TestDiscussRejectsBeforeDispatch(t *testing.T) {
	a := &fakeAdapter{id: "m1", text: "A perfectly good answer here."}
	local := &fakeLocal{}
	e := newTestEngine(local, a)

	if _, err := e.Discuss(context.Background(), "", strings.Repeat("x", 4001)); !errors.Is(err, ErrPromptTooLong) {
		t.Fatalf("Discuss() error = %v, want ErrPromptTooLong", err)
	}
	if _, err := e.Discuss(context.Background(), "", "  "); !errors.Is(err, ErrEmptyPrompt) {
		t.Fatalf("Discuss() error = %v, want ErrEmptyPrompt", err)
	}

	if n := a.calls.Load(); n != 0 {
		t.Errorf("adapter called %d times for rejected prompts, want 0", n)
	}
	if len(local.convs) != 0 {
		t.Errorf("recorded %d conversations for rejected prompts, want 0", len(local.convs))
	}
}

func TestDiscussSwallowsRecordFailure(t *testing.T) {
	e := newTestEngine(&fakeLocal{fail: true},
		&fakeAdapter{id: "m1", text: "An answer that survives a dead cache."},
	)

	d, err := e.Discuss(context.Background(), "user-1", "still works?")
	if err != nil {
		t.Fatalf("Discuss() error = %v, want nil when only persistence fails", err)
	}
	if d.FinalConsensus == "" {
		t.Error("FinalConsensus empty, want synthesized artifact")
	}
}

func TestQuick(t *testing.T) {
	e := newTestEngine(&fakeLocal{},
		&fakeAdapter{id: "m1", text: "A direct single-model answer."},
	)

	r, err := e.Quick(context.Background(), "m1", "just ask one model")
	if err != nil {
		t.Fatalf("Quick() error = %v", err)
	}
	if !r.OK() {
		t.Fatalf("Quick() result errored: %q", r.Err)
	}
	if r.Text != "A direct single-model answer." {
		t.Errorf("Text = %q", r.Text)
	}
}

func TestQuickUnknownBackendSettlesAsError(t *testing.T) {
	e := newTestEngine(&fakeLocal{})

	r, err := e.Quick(context.Background(), "nope", "anyone home?")
	if err != nil {
		t.Fatalf("Quick() error = %v", err)
	}
	if r.OK() {
		t.Fatal("unknown backend settled OK, want error result")
	}
	if r.Err != "Model nope not available" {
		t.Errorf("Err = %q", r.Err)
	}
}

func TestQuickValidates(t *testing.T) {
	e := newTestEngine(&fakeLocal{}, &fakeAdapter{id: "m1", text: "irrelevant"})

	if _, err := e.Quick(context.Background(), "m1", ""); !errors.Is(err, ErrEmptyPrompt) {
		t.Fatalf("Quick() error = %v, want ErrEmptyPrompt", err)
	}
}

func TestBackends(t *testing.T) {
	e := newTestEngine(&fakeLocal{},
		&fakeAdapter{id: "m1"},
		&fakeAdapter{id: "m2"},
	)

	ids := e.Backends()
	if len(ids) != 2 {
		t.Fatalf("Backends() = %v, want 2 ids", ids)
	}
}
