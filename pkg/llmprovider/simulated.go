package llmprovider

import (
	"context"
	"fmt"
	"time"

	"github.com/codeready-toolchain/agent-runner/pkg/models"
)

// SimulatedProvider produces a deterministic canned completion without
// calling out to a real backend. Used for options.dry_run and for the
// simple Agent Executor path.
type SimulatedProvider struct {
	heartbeatInterval time.Duration
	thinkTime         time.Duration
}

// NewSimulatedProvider creates a SimulatedProvider. thinkTime is how long
// Generate pretends to work before returning, so callers that depend on
// observing LLM_GENERATING/LLM_HEARTBEAT in sequence have something to see.
func NewSimulatedProvider(thinkTime, heartbeatInterval time.Duration) *SimulatedProvider {
	return &SimulatedProvider{thinkTime: thinkTime, heartbeatInterval: heartbeatInterval}
}

func (p *SimulatedProvider) Name() string { return "simulated" }

func (p *SimulatedProvider) Generate(ctx context.Context, prompt, model string, emit EventEmitter) (string, error) {
	start := time.Now()
	fail := func(err error) (string, error) {
		emitLLMError(emit, p.Name(), model, start, err)
		return "", err
	}

	emit(models.EventLLMLoadingModel, map[string]any{"provider": p.Name(), "model": model})

	select {
	case <-ctx.Done():
		return fail(ctx.Err())
	case <-time.After(50 * time.Millisecond):
	}

	emit(models.EventLLMGenerating, map[string]any{"provider": p.Name(), "model": model})

	stopHeartbeat := heartbeat(ctx, emit, p.heartbeatInterval)
	defer stopHeartbeat()

	select {
	case <-ctx.Done():
		return fail(ctx.Err())
	case <-time.After(p.thinkTime):
	}

	result := fmt.Sprintf("simulated response for model %q to prompt of length %d", model, len(prompt))
	emit(models.EventLLMDone, map[string]any{"provider": p.Name(), "model": model, "length": len(result)})
	return result, nil
}
