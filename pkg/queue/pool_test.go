package queue

import (
	"context"
	"testing"
	"time"

	"github.com/codeready-toolchain/agent-runner/pkg/config"
)

func TestWorkerPool_ShutdownTimeout_DefaultsWhenUnset(t *testing.T) {
	p := NewWorkerPool("pool", nil, nil, &config.QueueConfig{}, nil, nil)
	if got := p.shutdownTimeout(); got != 2*time.Minute {
		t.Errorf("shutdownTimeout() = %v, want 2m default", got)
	}
}

func TestWorkerPool_ShutdownTimeout_UsesConfigured(t *testing.T) {
	p := NewWorkerPool("pool", nil, nil, &config.QueueConfig{GracefulShutdownTimeout: 30 * time.Second}, nil, nil)
	if got := p.shutdownTimeout(); got != 30*time.Second {
		t.Errorf("shutdownTimeout() = %v, want 30s", got)
	}
}

func TestWorkerPool_CancelRun_FoundAndNotFound(t *testing.T) {
	p := NewWorkerPool("pool", nil, nil, &config.QueueConfig{}, nil, nil)

	var cancelled bool
	_, cancel := context.WithCancel(context.Background())
	p.RegisterRun("run-1", func() { cancelled = true; cancel() })

	if !p.CancelRun("run-1") {
		t.Error("CancelRun(run-1) = false, want true")
	}
	if !cancelled {
		t.Error("expected the registered cancel func to have been called")
	}
	if p.CancelRun("run-unknown") {
		t.Error("CancelRun(run-unknown) = true, want false")
	}
}

func TestWorkerPool_UnregisterRun_RemovesCancelFunc(t *testing.T) {
	p := NewWorkerPool("pool", nil, nil, &config.QueueConfig{}, nil, nil)
	p.RegisterRun("run-1", func() {})
	p.UnregisterRun("run-1")
	if p.CancelRun("run-1") {
		t.Error("CancelRun should report false after UnregisterRun")
	}
}

func TestWorkerPool_GetActiveRunIDs(t *testing.T) {
	p := NewWorkerPool("pool", nil, nil, &config.QueueConfig{}, nil, nil)
	p.RegisterRun("a", func() {})
	p.RegisterRun("b", func() {})

	ids := p.getActiveRunIDs()
	if len(ids) != 2 {
		t.Errorf("getActiveRunIDs() = %v, want 2 entries", ids)
	}
}
