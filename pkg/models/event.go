package models

import "time"

// EventType is the symbolic wire vocabulary clients depend on. These are
// the exact string values seen in Event.Type over the API and SSE stream.
type EventType string

const (
	EventRunCreated   EventType = "RUN_CREATED"
	EventRunStarted   EventType = "RUN_STARTED"
	EventRunPause     EventType = "RUN_PAUSE"
	EventRunResume    EventType = "RUN_RESUME"
	EventRunStop      EventType = "RUN_STOP"
	EventRunCompleted EventType = "RUN_COMPLETED"
	EventRunFailed    EventType = "RUN_FAILED"
	EventRunStopped   EventType = "RUN_STOPPED"

	EventAgentThinking EventType = "AGENT_THINKING"
	EventPlanGenerated EventType = "PLAN_GENERATED"
	EventExecuting     EventType = "EXECUTING"
	EventDirective     EventType = "DIRECTIVE"

	EventWorkflowStarted   EventType = "WORKFLOW_STARTED"
	EventWorkflowCompleted EventType = "WORKFLOW_COMPLETED"
	EventWorkflowFailed    EventType = "WORKFLOW_FAILED"

	EventStepStarted   EventType = "STEP_STARTED"
	EventStepCompleted EventType = "STEP_COMPLETED"
	EventStepFailed    EventType = "STEP_FAILED"

	EventLLMLoadingModel EventType = "LLM_LOADING_MODEL"
	EventLLMGenerating   EventType = "LLM_GENERATING"
	EventLLMHeartbeat    EventType = "LLM_HEARTBEAT"
	EventLLMDone         EventType = "LLM_DONE"
	EventLLMError        EventType = "LLM_ERROR"

	EventShellExecuting  EventType = "SHELL_EXECUTING"
	EventArtifactCreated EventType = "ARTIFACT_CREATED"
)

// TerminalRunEvents are the event types that may close a Run's timeline.
var TerminalRunEvents = map[EventType]bool{
	EventRunCompleted: true,
	EventRunFailed:    true,
	EventRunStopped:   true,
}

// Event is one immutable record in a Run's timeline.
type Event struct {
	ID        int64          `json:"id"`
	RunID     string         `json:"run_id"`
	Type      EventType      `json:"type"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
