// Package queue implements the Background Worker component: a pool of
// workers that poll the Data Store for QUEUED Runs, claim them atomically,
// and hand them to the Agent Executor.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/codeready-toolchain/agent-runner/pkg/models"
)

// ErrNoRunsAvailable indicates no QUEUED Run was available to claim.
var ErrNoRunsAvailable = errors.New("no runs available")

// Executor drives a claimed Run to a terminal state. It owns the entire Run
// lifecycle once handed the claim: the worker only handles claiming,
// heartbeat, and orphan recovery.
type Executor interface {
	Run(ctx context.Context, run *models.Run, workspacePath string)
}

// ProjectResolver resolves a Run's Project to its local workspace path.
type ProjectResolver interface {
	GetProject(ctx context.Context, id string) (*models.Project, error)
}

// SessionRegistry is the subset of WorkerPool a Worker uses to register its
// in-flight Run's cancel function for API-triggered stop/cancellation.
type SessionRegistry interface {
	RegisterRun(runID string, cancel context.CancelFunc)
	UnregisterRun(runID string)
}

// WorkerStatus is a worker's current activity state, surfaced by Health.
type WorkerStatus string

const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusWorking WorkerStatus = "working"
)

// WorkerHealth reports one worker's current state (GET /worker/status).
type WorkerHealth struct {
	ID            string       `json:"id"`
	Status        WorkerStatus `json:"status"`
	CurrentRunID  string       `json:"current_run_id,omitempty"`
	RunsProcessed int          `json:"runs_processed"`
	LastActivity  time.Time    `json:"last_activity"`
}

// PoolHealth aggregates the whole worker pool's state (GET /worker/status).
type PoolHealth struct {
	IsHealthy        bool           `json:"is_healthy"`
	WorkerID         string         `json:"worker_id"`
	ActiveWorkers    int            `json:"active_workers"`
	TotalWorkers     int            `json:"total_workers"`
	QueueDepth       int            `json:"queue_depth"`
	WorkerStats      []WorkerHealth `json:"worker_stats"`
	LastOrphanScan   time.Time      `json:"last_orphan_scan"`
	OrphansRecovered int            `json:"orphans_recovered"`
	DisableWorker    bool           `json:"disable_worker"`
}
