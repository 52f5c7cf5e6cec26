// Package engine ties the consensus pipeline together: classify, select the
// cohort, dispatch, synthesize, record, publish.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/quorum-ai/quorumd/internal/backend"
	"github.com/quorum-ai/quorumd/internal/classifier"
	"github.com/quorum-ai/quorumd/internal/cohort"
	"github.com/quorum-ai/quorumd/internal/dispatch"
	"github.com/quorum-ai/quorumd/internal/events"
	"github.com/quorum-ai/quorumd/internal/history"
	"github.com/quorum-ai/quorumd/internal/synthesis"
)

// maxPromptLen bounds accepted prompts, in characters.
const maxPromptLen = 4000

var (
	ErrEmptyPrompt   = errors.New("prompt is empty")
	ErrPromptTooLong = fmt.Errorf("prompt exceeds %d characters", maxPromptLen)
)

type Engine struct {
	table      *cohort.Table
	registry   *backend.Registry
	dispatcher *dispatch.Dispatcher
	gateway    *history.Gateway
	events     *events.Publisher
	logger     *slog.Logger
}

func New(table *cohort.Table, registry *backend.Registry, dispatcher *dispatch.Dispatcher, gateway *history.Gateway, publisher *events.Publisher, logger *slog.Logger) *Engine {
	return &Engine{
		table:      table,
		registry:   registry,
		dispatcher: dispatcher,
		gateway:    gateway,
		events:     publisher,
		logger:     logger,
	}
}

// ValidatePrompt rejects empty and over-long prompts before any backend is
// touched.
func ValidatePrompt(prompt string) error {
	if strings.TrimSpace(prompt) == "" {
		return ErrEmptyPrompt
	}
	if utf8.RuneCountInString(prompt) > maxPromptLen {
		return ErrPromptTooLong
	}
	return nil
}

// Plan classifies a prompt and selects its cohort without dispatching.
func (e *Engine) Plan(prompt string) (classifier.Category, cohort.Cohort) {
	category := classifier.Classify(prompt)
	return category, e.table.Select(category)
}

// Discuss runs the full consensus pipeline and records the artifact. Backend
// and persistence failures degrade the result; only validation errors and
// contained internal panics surface.
func (e *Engine) Discuss(ctx context.Context, userID, prompt string) (d synthesis.Discussion, err error) {
	if err := ValidatePrompt(prompt); err != nil {
		return synthesis.Discussion{}, err
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("discussion pipeline panicked", "panic", r)
			err = fmt.Errorf("process discussion: %v", r)
		}
	}()

	category, group := e.Plan(prompt)
	e.logger.Info("dispatching prompt",
		"category", category,
		"backends", group.Backends,
	)

	results := e.dispatcher.Dispatch(ctx, group.Backends, prompt)
	return e.Finish(ctx, userID, prompt, category, group, results), nil
}

// Finish synthesizes settled results into a Discussion, then records and
// announces it. Split from Discuss so the streaming path, which settles
// backends one at a time, shares the same tail.
func (e *Engine) Finish(ctx context.Context, userID, prompt string, category classifier.Category, group cohort.Cohort, results []backend.Result) synthesis.Discussion {
	d := synthesis.Synthesize(prompt, category, group, results)

	succeeded := 0
	for _, r := range results {
		if r.OK() {
			succeeded++
		}
	}
	e.events.Publish(events.SubjectDiscussionCompleted, events.DiscussionCompleted{
		PromptType: string(category),
		ModelGroup: group.Description,
		Backends:   group.Backends,
		Succeeded:  succeeded,
		Confidence: d.Confidence,
		Timestamp:  d.Timestamp,
	})

	conv, recErr := e.gateway.Record(ctx, userID, d)
	if recErr != nil {
		e.logger.Warn("failed to record discussion", "error", recErr)
	} else {
		e.events.Publish(events.SubjectConversationStored, events.ConversationStored{
			ConversationID: conv.ID,
			UserID:         userID,
			PromptType:     string(category),
			Timestamp:      conv.CreatedAt,
		})
	}

	return d
}

// Quick queries a single backend, bypassing synthesis.
func (e *Engine) Quick(ctx context.Context, backendID, prompt string) (backend.Result, error) {
	if err := ValidatePrompt(prompt); err != nil {
		return backend.Result{}, err
	}
	return e.QueryBackend(ctx, backendID, prompt), nil
}

// QueryBackend settles one backend call. Unknown backends settle as errors,
// the same as transport failures.
func (e *Engine) QueryBackend(ctx context.Context, backendID, prompt string) backend.Result {
	a, ok := e.registry.Lookup(backendID)
	if !ok {
		return backend.Result{
			Backend: backendID,
			Text:    fmt.Sprintf("%s is temporarily unavailable. Please try again.", backendID),
			Err:     fmt.Sprintf("Model %s not available", backendID),
			Quality: "error",
		}
	}
	return backend.Settle(ctx, a, prompt)
}

// History exposes the persistence gateway for the conversation API.
func (e *Engine) History() *history.Gateway {
	return e.gateway
}

// Backends returns the registered backend ids for the catalog endpoint.
func (e *Engine) Backends() []string {
	return e.registry.IDs()
}
