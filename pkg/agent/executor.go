// Package agent implements the Agent Executor component: for a claimed Run,
// it drives either the Workflow Engine or the simple simulated path,
// appending events and making the terminal state transition.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/codeready-toolchain/agent-runner/pkg/config"
	"github.com/codeready-toolchain/agent-runner/pkg/llmprovider"
	"github.com/codeready-toolchain/agent-runner/pkg/metrics"
	"github.com/codeready-toolchain/agent-runner/pkg/models"
	"github.com/codeready-toolchain/agent-runner/pkg/store"
	"github.com/codeready-toolchain/agent-runner/pkg/tracing"
	"github.com/codeready-toolchain/agent-runner/pkg/workflow"
)

// checkpointPollInterval is how often a paused Run's checkpoint re-checks
// status while waiting for a resume, stop, or failure.
const checkpointPollInterval = time.Second

// RunStatusFunc reports a Run's current status, used between steps to honor
// pause/stop cooperatively.
type RunStatusFunc func(ctx context.Context, runID string) (models.RunStatus, error)

// Executor dispatches a claimed Run to the Workflow Engine or the simple
// path and converts any failure into a committed RUN_FAILED transition.
type Executor struct {
	Store     *store.Client
	Registry  *workflow.Registry
	Provider  llmprovider.Provider
	Simulated llmprovider.Provider
	LLMConfig *config.LLMConfig
	Log       *slog.Logger
	Metrics   *metrics.Registry
}

// Run drives run to completion (or failure), given the absolute workspace
// path of its Project. It never returns an error to its caller: every
// failure is reported by transitioning the Run to FAILED and appending
// RUN_FAILED instead.
func (e *Executor) Run(ctx context.Context, run *models.Run, workspacePath string) {
	log := e.Log
	if log == nil {
		log = slog.Default()
	}

	emit := func(eventType models.EventType, payload map[string]any) {
		if _, err := e.Store.AppendEvent(ctx, run.ID, eventType, payload); err != nil {
			log.Warn("failed to append event", "run_id", run.ID, "event_type", eventType, "error", err)
		}
	}

	checkpoint := func(ctx context.Context) error {
		for {
			status, err := e.statusOf(ctx, run.ID)
			if err != nil {
				return err
			}
			switch status {
			case models.StatusStopped, models.StatusFailed, models.StatusCompleted:
				return workflow.ErrCancelled
			case models.StatusPaused:
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(checkpointPollInterval):
				}
			default:
				return nil
			}
		}
	}

	opts := run.ParsedOptions()

	spanCtx, span := tracing.StartRun(ctx, run.ID, string(run.RunType), run.ProjectID)
	ctx = spanCtx

	var runErr error
	useWorkflow := false
	if run.RunType == models.RunTypeWorkflow && opts.WorkflowName != "" && e.Registry != nil {
		_, useWorkflow = e.Registry.Get(opts.WorkflowName)
	}
	if useWorkflow {
		runErr = e.runWorkflow(ctx, run, workspacePath, opts, emit, checkpoint)
	} else {
		runErr = e.runSimple(ctx, run, emit, checkpoint)
	}
	tracing.End(span, runErr)

	if runErr != nil {
		where := "agent"
		if run.RunType == models.RunTypeWorkflow {
			where = "workflow"
		}
		ok, _, err := e.Store.TransitionWithEvent(ctx, run.ID, models.StatusRunning, models.StatusFailed,
			models.EventRunFailed, map[string]any{"error": runErr.Error(), "where": where})
		if err != nil {
			log.Error("failed to commit RUN_FAILED transition", "run_id", run.ID, "error", err)
		} else if !ok {
			log.Info("run left RUNNING expectedly absent during failure transition, likely already terminal", "run_id", run.ID)
		}
		return
	}

	ok, _, err := e.Store.TransitionWithEvent(ctx, run.ID, models.StatusRunning, models.StatusCompleted, models.EventRunCompleted, nil)
	if err != nil {
		log.Error("failed to commit RUN_COMPLETED transition", "run_id", run.ID, "error", err)
	} else if !ok {
		log.Info("run no longer RUNNING at completion, leaving its terminal status as-is", "run_id", run.ID)
	}
}

func (e *Executor) statusOf(ctx context.Context, runID string) (models.RunStatus, error) {
	run, err := e.Store.GetRun(ctx, runID)
	if err != nil {
		return "", fmt.Errorf("load run status: %w", err)
	}
	return run.Status, nil
}

func (e *Executor) runWorkflow(ctx context.Context, run *models.Run, workspacePath string, opts models.RunOptions, emit func(models.EventType, map[string]any), checkpoint workflow.Checkpoint) error {
	wf, ok := e.Registry.Get(opts.WorkflowName)
	if !ok {
		return fmt.Errorf("workflow %q not registered", opts.WorkflowName)
	}

	provider := e.Provider
	if opts.DryRun {
		provider = e.Simulated
	}

	engine := &workflow.Engine{
		Provider:   provider,
		LLMConfig:  e.LLMConfig,
		Emit:       emit,
		Checkpoint: checkpoint,
		Metrics:    e.Metrics,
	}
	return engine.Execute(ctx, run.ID, wf, workspacePath, run.Options)
}
