// Package llmprovider implements the LLM Provider component: a single
// Generate operation that emits LLM_LOADING_MODEL, LLM_GENERATING, periodic
// LLM_HEARTBEAT, and a terminal LLM_DONE (or an error event) while honoring
// context cancellation at suspension points.
package llmprovider

import (
	"context"
	"time"

	"github.com/codeready-toolchain/agent-runner/pkg/models"
)

// EventEmitter is called by a Provider for every lifecycle event during a
// Generate call. Implementations typically forward to store.AppendEvent.
type EventEmitter func(eventType models.EventType, payload map[string]any)

// Provider is implemented by each LLM backend. A single call to Generate
// drives exactly one model invocation for one Workflow step or simple-path
// iteration.
type Provider interface {
	// Name identifies the backend for logging and event payloads.
	Name() string
	// Generate produces a completion for prompt using model, emitting
	// lifecycle events via emit. It must respect ctx cancellation/deadline
	// and return promptly once ctx is done.
	Generate(ctx context.Context, prompt, model string, emit EventEmitter) (string, error)
}

// DefaultHeartbeatInterval is how often a long-running Generate call emits
// LLM_HEARTBEAT while waiting on the backend.
const DefaultHeartbeatInterval = 15 * time.Second

// heartbeat starts a ticker that emits LLM_HEARTBEAT with elapsed seconds
// until ctx is done or stop is closed. Call the returned stop func exactly
// once when the generation completes.
func heartbeat(ctx context.Context, emit EventEmitter, interval time.Duration) (stop func()) {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	done := make(chan struct{})
	start := time.Now()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				emit(models.EventLLMHeartbeat, map[string]any{
					"elapsed_seconds": int(time.Since(start).Seconds()),
				})
			}
		}
	}()

	closed := false
	return func() {
		if !closed {
			closed = true
			close(done)
		}
	}
}

// emitLLMError reports a failed Generate call via LLM_ERROR, including how
// long the call ran before it failed. Every Provider implementation calls
// this on each of its error returns so a cancellation or backend failure is
// as observable as a normal LLM_DONE completion.
func emitLLMError(emit EventEmitter, provider, model string, start time.Time, err error) {
	emit(models.EventLLMError, map[string]any{
		"provider":        provider,
		"model":           model,
		"error":           err.Error(),
		"elapsed_seconds": int(time.Since(start).Seconds()),
	})
}
