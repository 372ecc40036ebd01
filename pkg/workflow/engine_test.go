package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/codeready-toolchain/agent-runner/pkg/models"
)

func TestResolveWorkspacePath_RejectsAbsolute(t *testing.T) {
	_, err := resolveWorkspacePath(t.TempDir(), "/etc/passwd")
	if !errors.Is(err, ErrBadPath) {
		t.Errorf("err = %v, want ErrBadPath", err)
	}
}

func TestResolveWorkspacePath_RejectsEscape(t *testing.T) {
	_, err := resolveWorkspacePath(t.TempDir(), "../../etc/passwd")
	if !errors.Is(err, ErrBadPath) {
		t.Errorf("err = %v, want ErrBadPath", err)
	}
}

func TestResolveWorkspacePath_AllowsRelative(t *testing.T) {
	ws := t.TempDir()
	path, err := resolveWorkspacePath(ws, "out/report.md")
	if err != nil {
		t.Fatalf("resolveWorkspacePath: %v", err)
	}
	if path == "" {
		t.Error("expected non-empty resolved path")
	}
}

func TestClassifyError_Timeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	<-ctx.Done()
	if got := classifyError(ctx, context.DeadlineExceeded); got != "TIMEOUT" {
		t.Errorf("classifyError = %q, want TIMEOUT", got)
	}
}

func TestClassifyError_BadPath(t *testing.T) {
	if got := classifyError(context.Background(), ErrBadPath); got != "BadPath" {
		t.Errorf("classifyError = %q, want BadPath", got)
	}
}

func TestClassifyError_Default(t *testing.T) {
	if got := classifyError(context.Background(), errors.New("boom")); got != "ShellError" {
		t.Errorf("classifyError = %q, want ShellError", got)
	}
}

func TestEngine_Execute_SkipsStepOnFalseCondition(t *testing.T) {
	var completed []string
	e := &Engine{
		Emit: func(eventType models.EventType, payload map[string]any) {
			if eventType == models.EventStepCompleted {
				completed = append(completed, payload["name"].(string))
			}
		},
	}
	wf := &Workflow{
		Name: "conditional",
		Steps: []Step{
			{Name: "write", Type: StepFileWrite, OutputFile: "out.txt", Content: "hi"},
			{Name: "skip_me", Type: StepFileWrite, OutputFile: "never.txt", Content: "x", Condition: "1 == 2"},
		},
	}
	if err := e.Execute(context.Background(), "run-1", wf, t.TempDir(), nil); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(completed) != 1 || completed[0] != "write" {
		t.Errorf("completed = %v, want only [write]", completed)
	}
}

func TestEngine_Execute_BadPathFailsWorkflow(t *testing.T) {
	var failed bool
	e := &Engine{
		Emit: func(eventType models.EventType, payload map[string]any) {
			if eventType == models.EventWorkflowFailed {
				failed = true
			}
		},
	}
	wf := &Workflow{
		Name: "bad-path",
		Steps: []Step{
			{Name: "escape", Type: StepFileWrite, OutputFile: "../escape.txt", Content: "x"},
		},
	}
	err := e.Execute(context.Background(), "run-1", wf, t.TempDir(), nil)
	if !errors.Is(err, ErrBadPath) {
		t.Fatalf("Execute err = %v, want ErrBadPath", err)
	}
	if !failed {
		t.Error("expected WORKFLOW_FAILED to be emitted")
	}
}
