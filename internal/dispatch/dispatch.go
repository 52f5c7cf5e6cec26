// Package dispatch fans a prompt out to a cohort of backends concurrently.
//
// The join is all-settle: every cohort member yields exactly one Result, in
// cohort order, and no member's failure aborts or delays the others beyond
// their own timeouts. Nothing escapes Dispatch as an error or panic.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/quorum-ai/quorumd/internal/backend"
)

// guardTimeout is the outer safety net per call, independent of each
// adapter's own timeout. A call that has not settled by then is written off
// as "Model timeout".
const guardTimeout = 20 * time.Second

// Registry resolves backend ids to adapters.
type Registry interface {
	Lookup(id string) (backend.Adapter, bool)
}

type Dispatcher struct {
	registry Registry
	guard    time.Duration
	logger   *slog.Logger
}

func New(registry Registry, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		guard:    guardTimeout,
		logger:   logger,
	}
}

// SetGuard overrides the outer timeout, for tests.
func (d *Dispatcher) SetGuard(guard time.Duration) {
	d.guard = guard
}

// Dispatch queries every backend in the cohort concurrently and returns one
// settled Result per member, preserving cohort order.
func (d *Dispatcher) Dispatch(ctx context.Context, backends []string, prompt string) []backend.Result {
	results := make([]backend.Result, len(backends))

	var wg sync.WaitGroup
	for i, id := range backends {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			results[i] = d.settle(ctx, id, prompt)
		}(i, id)
	}
	wg.Wait()

	return results
}

// settle runs one guarded adapter call. The guard fires even if the adapter
// ignores its own deadline; an abandoned call finishes (or leaks its slot)
// without affecting the batch.
func (d *Dispatcher) settle(ctx context.Context, id, prompt string) backend.Result {
	a, ok := d.registry.Lookup(id)
	if !ok {
		return failed(id, fmt.Sprintf("Model %s not available", id), 0)
	}

	start := time.Now()
	ch := make(chan backend.Result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("backend adapter panicked", "backend", id, "panic", r)
				ch <- failed(id, fmt.Sprintf("adapter panic: %v", r), elapsed(start))
			}
		}()
		ch <- backend.Settle(ctx, a, prompt)
	}()

	select {
	case r := <-ch:
		return r
	case <-time.After(d.guard):
		d.logger.Warn("backend exceeded dispatch guard", "backend", id, "guard", d.guard)
		return failed(id, "Model timeout", elapsed(start))
	}
}

func failed(id, errMsg string, latency float64) backend.Result {
	return backend.Result{
		Backend: id,
		Text:    fmt.Sprintf("%s: Analysis unavailable", id),
		Latency: latency,
		Err:     errMsg,
		Quality: "error",
	}
}

func elapsed(start time.Time) float64 {
	return math.Round(time.Since(start).Seconds()*100) / 100
}
