// Package backend normalizes calls to external model providers.
//
// Each provider is an Adapter returning raw text or an error; Settle wraps a
// call into a Result that never escapes as an error: transport failures,
// timeouts and junk output all become a Result with Err set.
package backend

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Result is the settled outcome of one backend call. JSON field names match
// the stored conversation format.
type Result struct {
	Backend    string  `json:"model"`
	Text       string  `json:"text"`
	Latency    float64 `json:"latency"`
	Err        string  `json:"error,omitempty"`
	TokensUsed int     `json:"tokensUsed"`
	Quality    string  `json:"quality"`
}

// OK reports whether the call produced usable text.
func (r Result) OK() bool {
	return r.Err == "" && r.Text != ""
}

// Adapter is one external model provider endpoint.
type Adapter interface {
	ID() string
	Query(ctx context.Context, prompt string) (string, error)
}

// ErrTimeout is the canonical per-call timeout error.
var ErrTimeout = errors.New("Request timeout")

const minResponseLen = 10

// Settle runs one adapter call and converts the outcome into a Result.
// Latency is wall-clock, rounded to two decimals. Responses shorter than
// minResponseLen after formatting count as failures.
func Settle(ctx context.Context, a Adapter, prompt string) Result {
	start := time.Now()

	text, err := a.Query(ctx, prompt)
	latency := roundLatency(time.Since(start))

	if err == nil {
		if len(strings.TrimSpace(text)) < minResponseLen {
			err = errors.New("Response too short or invalid")
		} else {
			formatted := Format(text, a.ID())
			return Result{
				Backend:    a.ID(),
				Text:       formatted,
				Latency:    latency,
				TokensUsed: int(math.Ceil(float64(len(formatted)) / 4)),
				Quality:    quality(formatted),
			}
		}
	}

	return Result{
		Backend: a.ID(),
		Text:    fmt.Sprintf("%s is temporarily unavailable. Please try again.", a.ID()),
		Latency: latency,
		Err:     err.Error(),
		Quality: "error",
	}
}

func quality(text string) string {
	if len(text) > 100 {
		return "high"
	}
	return "medium"
}

func roundLatency(d time.Duration) float64 {
	return math.Round(d.Seconds()*100) / 100
}

// timeoutErr maps a provider-call error to ErrTimeout when the per-call
// deadline was the cause.
func timeoutErr(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
		return ErrTimeout
	}
	return err
}

// Registry resolves backend ids to adapters.
type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	m := make(map[string]Adapter, len(adapters))
	for _, a := range adapters {
		m[a.ID()] = a
	}
	return &Registry{adapters: m}
}

// Lookup returns the adapter for a backend id.
func (r *Registry) Lookup(id string) (Adapter, bool) {
	a, ok := r.adapters[id]
	return a, ok
}

// IDs returns all registered backend ids, sorted.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// GeminiID is the backend id of the primary provider. Every id with a
// provider mapping is served by OpenRouter; this one is served directly.
const GeminiID = "gemini-flash"

// BuildRegistry assembles the adapter set for a provider table.
func BuildRegistry(providers map[string]string, geminiKey, openRouterKey string) *Registry {
	adapters := []Adapter{NewGemini(GeminiID, geminiKey)}
	for id, model := range providers {
		adapters = append(adapters, NewOpenRouter(id, model, openRouterKey))
	}
	return NewRegistry(adapters...)
}
