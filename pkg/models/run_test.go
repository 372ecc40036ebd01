package models

import "testing"

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to RunStatus
		want     bool
	}{
		{StatusQueued, StatusRunning, true},
		{StatusQueued, StatusStopped, true},
		{StatusQueued, StatusPaused, false},
		{StatusQueued, StatusCompleted, false},
		{StatusRunning, StatusPaused, true},
		{StatusRunning, StatusCompleted, true},
		{StatusRunning, StatusFailed, true},
		{StatusRunning, StatusQueued, false},
		{StatusPaused, StatusRunning, true},
		{StatusPaused, StatusStopped, true},
		{StatusPaused, StatusCompleted, false},
		{StatusCompleted, StatusRunning, false},
		{StatusStopped, StatusQueued, false},
	}
	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	terminal := []RunStatus{StatusStopped, StatusCompleted, StatusFailed}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	nonTerminal := []RunStatus{StatusQueued, StatusRunning, StatusPaused}
	for _, s := range nonTerminal {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestParsedOptions(t *testing.T) {
	r := &Run{Options: map[string]any{
		"workflow_name": "deploy",
		"dry_run":       true,
		"max_steps":     5,
	}}
	opts := r.ParsedOptions()
	if opts.WorkflowName != "deploy" {
		t.Errorf("WorkflowName = %q, want deploy", opts.WorkflowName)
	}
	if !opts.DryRun {
		t.Error("DryRun = false, want true")
	}
	if opts.MaxSteps != 5 {
		t.Errorf("MaxSteps = %d, want 5", opts.MaxSteps)
	}
}

func TestParsedOptions_Nil(t *testing.T) {
	r := &Run{}
	opts := r.ParsedOptions()
	if opts.WorkflowName != "" || opts.DryRun {
		t.Errorf("expected zero-value RunOptions for nil Options, got %+v", opts)
	}
}
