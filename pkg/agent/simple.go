package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/codeready-toolchain/agent-runner/pkg/llmprovider"
	"github.com/codeready-toolchain/agent-runner/pkg/models"
	"github.com/codeready-toolchain/agent-runner/pkg/workflow"
)

// runSimple drives the simple single-agent path: AGENT_THINKING, a simulated
// plan via the Simulated Provider, EXECUTING, and completion. It has no
// Steps or conditions — a minimal, always-terminating path used when a Run
// does not name a registered workflow.
func (e *Executor) runSimple(ctx context.Context, run *models.Run, emit func(models.EventType, map[string]any), checkpoint workflow.Checkpoint) error {
	if err := checkpoint(ctx); err != nil {
		return err
	}

	emit(models.EventAgentThinking, map[string]any{"goal": run.Goal})

	provider := e.Simulated
	if provider == nil {
		provider = llmprovider.NewSimulatedProvider(50*time.Millisecond, llmprovider.DefaultHeartbeatInterval)
	}

	plan, err := provider.Generate(ctx, run.Goal, "planner", emit)
	if err != nil {
		return fmt.Errorf("generate plan: %w", err)
	}
	emit(models.EventPlanGenerated, map[string]any{"plan": plan})

	if err := checkpoint(ctx); err != nil {
		return err
	}

	emit(models.EventExecuting, map[string]any{"goal": run.Goal})

	if err := e.Store.BumpIteration(ctx, run.ID); err != nil {
		return fmt.Errorf("bump iteration: %w", err)
	}

	return nil
}
