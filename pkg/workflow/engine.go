package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/codeready-toolchain/agent-runner/pkg/config"
	"github.com/codeready-toolchain/agent-runner/pkg/llmprovider"
	"github.com/codeready-toolchain/agent-runner/pkg/metrics"
	"github.com/codeready-toolchain/agent-runner/pkg/models"
	"github.com/codeready-toolchain/agent-runner/pkg/tracing"
	"github.com/expr-lang/expr"
)

// ErrCancelled is returned by Execute when ctx is cancelled between steps or
// the Checkpoint callback reports a stop request.
var ErrCancelled = errors.New("workflow cancelled")

// ErrBadPath is returned when a step's output path resolves outside the
// workspace directory.
var ErrBadPath = errors.New("BAD_PATH")

// Checkpoint is invoked between steps so the caller can enforce pause/stop
// semantics that span the whole Run, not just the Workflow Engine. Returning
// a non-nil error aborts the Workflow with that error; returning
// ErrCancelled specifically is treated as a stop/shutdown request.
type Checkpoint func(ctx context.Context) error

// Engine executes Workflows against a workspace directory.
type Engine struct {
	Provider       llmprovider.Provider
	LLMConfig      *config.LLMConfig
	DefaultTimeout time.Duration
	Emit           func(eventType models.EventType, payload map[string]any)
	Checkpoint     Checkpoint
	Metrics        *metrics.Registry
}

// Execute runs wf against workspace in order, emitting lifecycle events for
// the workflow and each step. runOptions is the owning Run's parsed Options
// map (used for the model override chain and per-run timeout_seconds).
func (e *Engine) Execute(ctx context.Context, runID string, wf *Workflow, workspace string, runOptions map[string]any) error {
	e.Emit(models.EventWorkflowStarted, map[string]any{"workflow_name": wf.Name, "version": wf.Version})

	ectx := newExecContext(runID, workspace, runOptions)

	for _, step := range wf.Steps {
		if ctx.Err() != nil {
			e.Emit(models.EventWorkflowFailed, map[string]any{"reason": "CANCELLED"})
			return ErrCancelled
		}
		if e.Checkpoint != nil {
			if err := e.Checkpoint(ctx); err != nil {
				reason := "Internal"
				if errors.Is(err, ErrCancelled) || ctx.Err() != nil {
					reason = "CANCELLED"
				}
				e.Emit(models.EventWorkflowFailed, map[string]any{"reason": reason})
				return err
			}
		}

		skip, err := e.shouldSkip(step, ectx)
		if err != nil {
			e.Emit(models.EventWorkflowFailed, map[string]any{"reason": "Internal", "error": err.Error()})
			return fmt.Errorf("evaluate condition for step %q: %w", step.Name, err)
		}
		if skip {
			continue
		}

		model := resolveModel(step, runOptions, e.LLMConfig, "")
		e.Emit(models.EventStepStarted, map[string]any{"name": step.Name, "type": string(step.Type), "model": model})

		timeout := e.stepTimeout(step, runOptions)
		stepCtx, cancel := context.WithTimeout(ctx, timeout)
		spanCtx, span := tracing.StartStep(stepCtx, step.Name, string(step.Type), model)
		start := time.Now()

		result, extra, stepErr := e.runStep(spanCtx, step, ectx, model)
		tracing.End(span, stepErr)
		cancel()
		duration := time.Since(start)

		if stepErr != nil {
			kind := classifyError(stepCtx, stepErr)
			failedPayload := map[string]any{
				"name":        step.Name,
				"error":       stepErr.Error(),
				"kind":        kind,
				"duration_ms": duration.Milliseconds(),
			}
			for k, v := range extra {
				failedPayload[k] = v
			}
			e.Emit(models.EventStepFailed, failedPayload)
			ectx.steps[step.Name] = StepResult{Error: stepErr.Error(), Duration: duration}
			e.Metrics.StepDuration(string(step.Type), "error", duration)
			e.Emit(models.EventWorkflowFailed, map[string]any{"reason": kind})
			return stepErr
		}

		ectx.steps[step.Name] = StepResult{Output: result, Duration: duration}
		e.Metrics.StepDuration(string(step.Type), "success", duration)
		completedPayload := map[string]any{"name": step.Name, "duration_ms": duration.Milliseconds()}
		for k, v := range extra {
			completedPayload[k] = v
		}
		e.Emit(models.EventStepCompleted, completedPayload)
	}

	e.Emit(models.EventWorkflowCompleted, map[string]any{"workflow_name": wf.Name})
	return nil
}

func (e *Engine) shouldSkip(step Step, ectx *execContext) (bool, error) {
	if step.Condition == "" {
		return false, nil
	}
	program, err := expr.Compile(step.Condition, expr.Env(ectx.toEvalEnv()), expr.AllowUndefinedVariables(), expr.AsBool())
	if err != nil {
		return false, fmt.Errorf("compile condition: %w", err)
	}
	result, err := expr.Run(program, ectx.toEvalEnv())
	if err != nil {
		return false, fmt.Errorf("run condition: %w", err)
	}
	ok, _ := result.(bool)
	return !ok, nil
}

func (e *Engine) stepTimeout(step Step, runOptions map[string]any) time.Duration {
	if step.TimeoutSeconds > 0 {
		return time.Duration(step.TimeoutSeconds) * time.Second
	}
	if secs, ok := runOptions["timeout_seconds"]; ok {
		switch v := secs.(type) {
		case float64:
			if v > 0 {
				return time.Duration(v) * time.Second
			}
		case int:
			if v > 0 {
				return time.Duration(v) * time.Second
			}
		}
	}
	if e.DefaultTimeout > 0 {
		return e.DefaultTimeout
	}
	return 60 * time.Second
}

// runStep dispatches step to its type-specific implementation. The returned
// map carries step-type-specific fields the caller should merge into
// STEP_COMPLETED's payload (nil if the step type has none of its own).
func (e *Engine) runStep(ctx context.Context, step Step, ectx *execContext, model string) (string, map[string]any, error) {
	switch step.Type {
	case StepLLMGenerate:
		result, err := e.runLLMGenerate(ctx, step, ectx, model)
		return result, nil, err
	case StepShell:
		return e.runShellStep(ctx, step, ectx)
	case StepFileWrite:
		result, err := e.runFileWrite(step, ectx)
		return result, nil, err
	default:
		return "", nil, fmt.Errorf("unknown step type %q", step.Type)
	}
}

func (e *Engine) runLLMGenerate(ctx context.Context, step Step, ectx *execContext, model string) (string, error) {
	emit := func(eventType models.EventType, payload map[string]any) { e.Emit(eventType, payload) }
	text, err := e.Provider.Generate(ctx, step.Prompt, model, emit)
	if err != nil {
		return "", err
	}

	if step.OutputFile != "" {
		path, perr := resolveWorkspacePath(ectx.workspace, step.OutputFile)
		if perr != nil {
			return "", perr
		}
		if err := writeFileAtomic(path, []byte(text)); err != nil {
			return "", fmt.Errorf("write output_file: %w", err)
		}
		if step.SaveArtifact {
			e.Emit(models.EventArtifactCreated, map[string]any{"path": step.OutputFile, "bytes": len(text)})
		}
	}
	return text, nil
}

func (e *Engine) runShellStep(ctx context.Context, step Step, ectx *execContext) (string, map[string]any, error) {
	e.Emit(models.EventShellExecuting, map[string]any{"name": step.Name, "command": step.Command})

	output, exitCode, truncated, err := runShell(ctx, step.Command, ectx.workspace)
	extra := map[string]any{"exit_code": exitCode, "output": output, "truncated": truncated}
	if err != nil {
		return "", extra, err
	}
	if exitCode != 0 {
		return "", extra, fmt.Errorf("shell step exited %d: %s", exitCode, output)
	}
	return output, extra, nil
}

func (e *Engine) runFileWrite(step Step, ectx *execContext) (string, error) {
	path, err := resolveWorkspacePath(ectx.workspace, step.OutputFile)
	if err != nil {
		return "", err
	}
	if err := writeFileAtomic(path, []byte(step.Content)); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	e.Emit(models.EventArtifactCreated, map[string]any{"path": step.OutputFile, "bytes": len(step.Content)})
	return step.Content, nil
}

// resolveWorkspacePath enforces the BAD_PATH rule: rel must be relative and
// resolve to a location under workspace.
func resolveWorkspacePath(workspace, rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("%w: empty output_file", ErrBadPath)
	}
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: absolute path %q", ErrBadPath, rel)
	}
	joined := filepath.Join(workspace, rel)
	absWorkspace, err := filepath.Abs(workspace)
	if err != nil {
		return "", fmt.Errorf("resolve workspace: %w", err)
	}
	absJoined, err := filepath.Abs(joined)
	if err != nil {
		return "", fmt.Errorf("resolve output path: %w", err)
	}
	if absJoined != absWorkspace && !strings.HasPrefix(absJoined, absWorkspace+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q escapes workspace", ErrBadPath, rel)
	}
	return absJoined, nil
}

func writeFileAtomic(path string, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// classifyError maps a step error to its error taxonomy kind.
func classifyError(ctx context.Context, err error) string {
	switch {
	case ctx.Err() == context.DeadlineExceeded:
		return "TIMEOUT"
	case errors.Is(err, context.Canceled) || errors.Is(err, ErrCancelled):
		return "Cancelled"
	case errors.Is(err, ErrBadPath):
		return "BadPath"
	default:
		return "ShellError"
	}
}
