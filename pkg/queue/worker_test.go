package queue

import (
	"testing"
	"time"

	"github.com/codeready-toolchain/agent-runner/pkg/config"
)

func TestWorker_PollInterval_WithinJitterBounds(t *testing.T) {
	cfg := &config.QueueConfig{CheckInterval: 5 * time.Second, CheckIntervalJitter: 1 * time.Second}
	w := NewWorker("w1", nil, nil, cfg, nil, nil, nil)

	for i := 0; i < 50; i++ {
		d := w.pollInterval()
		if d < 4*time.Second || d > 6*time.Second {
			t.Fatalf("pollInterval() = %v, want within [4s, 6s]", d)
		}
	}
}

func TestWorker_PollInterval_NoJitterReturnsBase(t *testing.T) {
	cfg := &config.QueueConfig{CheckInterval: 5 * time.Second}
	w := NewWorker("w1", nil, nil, cfg, nil, nil, nil)
	if got := w.pollInterval(); got != 5*time.Second {
		t.Errorf("pollInterval() = %v, want 5s", got)
	}
}

func TestWorker_SetStatus_ReflectedInHealth(t *testing.T) {
	w := NewWorker("w1", nil, nil, &config.QueueConfig{}, nil, nil, nil)

	w.setStatus(WorkerStatusWorking, "run-123")
	h := w.Health()
	if h.Status != WorkerStatusWorking || h.CurrentRunID != "run-123" {
		t.Errorf("Health() = %+v, want Status=working CurrentRunID=run-123", h)
	}

	w.setStatus(WorkerStatusIdle, "")
	h = w.Health()
	if h.Status != WorkerStatusIdle || h.CurrentRunID != "" {
		t.Errorf("Health() = %+v, want Status=idle CurrentRunID=empty", h)
	}
}
