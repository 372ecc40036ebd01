package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewRegistry_RecordsAgainstSuppliedRegisterer(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRegistry(reg)

	r.RunClaimed("worker-1")
	r.RunCompleted("COMPLETED")
	r.StepDuration("SHELL", "success", 250*time.Millisecond)
	r.Heartbeat(true)
	r.Heartbeat(false)
	r.SetQueueDepth(3)
	r.OrphansRecovered(2)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(families) == 0 {
		t.Fatal("expected at least one registered metric family")
	}
}

func TestRegistry_NilReceiverIsSafe(t *testing.T) {
	var r *Registry
	r.RunClaimed("worker-1")
	r.RunCompleted("FAILED")
	r.StepDuration("LLM_GENERATE", "error", time.Second)
	r.Heartbeat(true)
	r.SetQueueDepth(5)
	r.OrphansRecovered(1)
	r.OrphansRecovered(0)
}
