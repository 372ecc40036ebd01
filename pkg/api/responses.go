package api

import (
	"github.com/codeready-toolchain/agent-runner/pkg/queue"
	"github.com/codeready-toolchain/agent-runner/pkg/store"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status     string              `json:"status"`
	Database   *store.HealthStatus `json:"database,omitempty"`
	WorkerPool *queue.PoolHealth   `json:"worker_pool,omitempty"`
}
