package models

import (
	"encoding/json"
	"time"
)

// RunType selects which path the Agent Executor uses to drive a Run.
type RunType string

const (
	RunTypeAgent    RunType = "agent"
	RunTypeWorkflow RunType = "workflow"
	RunTypePipeline RunType = "pipeline"
	RunTypeTask     RunType = "task"
)

// RunStatus is a Run's position in the state machine.
type RunStatus string

const (
	StatusQueued    RunStatus = "QUEUED"
	StatusRunning   RunStatus = "RUNNING"
	StatusPaused    RunStatus = "PAUSED"
	StatusStopped   RunStatus = "STOPPED"
	StatusCompleted RunStatus = "COMPLETED"
	StatusFailed    RunStatus = "FAILED"
)

// IsTerminal reports whether status is one of the absorbing terminal states.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case StatusStopped, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// legalTransitions encodes the Run state machine. The one transition this
// codebase makes outside it is orphan recovery returning a RUNNING Run to
// QUEUED (store.RequeueOrphans).
var legalTransitions = map[RunStatus]map[RunStatus]bool{
	StatusQueued: {
		StatusRunning: true,
		StatusStopped: true,
	},
	StatusRunning: {
		StatusPaused:    true,
		StatusStopped:   true,
		StatusCompleted: true,
		StatusFailed:    true,
	},
	StatusPaused: {
		StatusRunning: true,
		StatusStopped: true,
	},
}

// CanTransition reports whether from→to is a legal edge in the state machine.
func CanTransition(from, to RunStatus) bool {
	return legalTransitions[from][to]
}

// RunOptions holds the recognized keys under Run.Options.
type RunOptions struct {
	WorkflowName     string            `json:"workflow_name,omitempty"`
	Models           map[string]string `json:"models,omitempty"`
	TimeoutSeconds   int               `json:"timeout_seconds,omitempty"`
	HeartbeatSeconds int               `json:"heartbeat_interval,omitempty"`
	DryRun           bool              `json:"dry_run,omitempty"`
	Verbose          bool              `json:"verbose,omitempty"`
	MaxSteps         int               `json:"max_steps,omitempty"`
}

// Run is a unit of work against a Project.
type Run struct {
	ID               string         `json:"id"`
	ProjectID        string         `json:"project_id"`
	Name             string         `json:"name,omitempty"`
	Goal             string         `json:"goal"`
	RunType          RunType        `json:"run_type"`
	Status           RunStatus      `json:"status"`
	CurrentIteration int            `json:"current_iteration"`
	Options          map[string]any `json:"options"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	ClaimedBy        string         `json:"-"`
	CreatedAt        time.Time      `json:"created_at"`
}

// ParsedOptions decodes Run.Options into the recognized RunOptions shape.
// Unrecognized keys are ignored rather than rejected.
func (r *Run) ParsedOptions() RunOptions {
	var opts RunOptions
	if r.Options == nil {
		return opts
	}
	raw, err := json.Marshal(r.Options)
	if err != nil {
		return opts
	}
	_ = json.Unmarshal(raw, &opts)
	return opts
}

// CreateRunRequest is the body of POST /runs.
type CreateRunRequest struct {
	ProjectID string         `json:"project_id"`
	Name      string         `json:"name,omitempty"`
	Goal      string         `json:"goal"`
	RunType   RunType        `json:"run_type,omitempty"`
	Options   map[string]any `json:"options,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// DirectiveRequest is the body of POST /runs/{id}/directive.
type DirectiveRequest struct {
	Text string `json:"text"`
}
