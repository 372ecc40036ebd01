package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/codeready-toolchain/agent-runner/pkg/config"
	"github.com/codeready-toolchain/agent-runner/pkg/metrics"
	"github.com/codeready-toolchain/agent-runner/pkg/models"
	"github.com/codeready-toolchain/agent-runner/pkg/store"
)

// WorkerPool manages a set of Workers sharing one Data Store connection.
type WorkerPool struct {
	id       string
	store    *store.Client
	projects ProjectResolver
	cfg      *config.QueueConfig
	executor Executor
	metrics  *metrics.Registry
	workers  []*Worker
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	activeRuns map[string]context.CancelFunc
	mu         sync.RWMutex
	started    bool

	orphans orphanState
}

// NewWorkerPool creates a pool that will spawn cfg.WorkerCount workers on
// Start. m may be nil to disable metrics recording.
func NewWorkerPool(id string, st *store.Client, projects ProjectResolver, cfg *config.QueueConfig, executor Executor, m *metrics.Registry) *WorkerPool {
	return &WorkerPool{
		id:         id,
		store:      st,
		projects:   projects,
		cfg:        cfg,
		executor:   executor,
		metrics:    m,
		workers:    make([]*Worker, 0, cfg.WorkerCount),
		stopCh:     make(chan struct{}),
		activeRuns: make(map[string]context.CancelFunc),
	}
}

// Start spawns the configured number of worker goroutines plus the orphan
// recovery loop. A no-op if DisableWorker is set or Start was already
// called. Safe to call multiple times; subsequent calls are no-ops.
func (p *WorkerPool) Start(ctx context.Context) {
	if p.started {
		slog.Warn("worker pool already started, ignoring duplicate Start call", "pool_id", p.id)
		return
	}
	p.started = true

	if p.cfg.DisableWorker {
		slog.Info("background worker disabled via configuration", "pool_id", p.id)
		return
	}

	slog.Info("starting worker pool", "pool_id", p.id, "worker_count", p.cfg.WorkerCount)

	for i := 0; i < p.cfg.WorkerCount; i++ {
		workerID := fmt.Sprintf("%s-worker-%d", p.id, i)
		worker := NewWorker(workerID, p.store, p.projects, p.cfg, p.executor, p, p.metrics)
		p.workers = append(p.workers, worker)
		worker.Start(ctx)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.runOrphanDetection(ctx)
	}()

	slog.Info("worker pool started")
}

// Stop signals every worker and the orphan loop to stop, then waits for
// in-flight Runs to reach a terminal state or be cancelled, up to
// cfg.GracefulShutdownTimeout.
func (p *WorkerPool) Stop() {
	slog.Info("stopping worker pool gracefully")

	done := make(chan struct{})
	go func() {
		for _, worker := range p.workers {
			worker.Stop()
		}
		p.stopOnce.Do(func() { close(p.stopCh) })
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("worker pool stopped gracefully")
	case <-time.After(p.shutdownTimeout()):
		slog.Warn("worker pool graceful shutdown timed out, cancelling active runs", "active", p.getActiveRunIDs())
		p.cancelAllRuns()
		<-done
	}
}

func (p *WorkerPool) shutdownTimeout() time.Duration {
	if p.cfg.GracefulShutdownTimeout > 0 {
		return p.cfg.GracefulShutdownTimeout
	}
	return 2 * time.Minute
}

// RegisterRun stores a cancel function for API-triggered stop/cancellation.
func (p *WorkerPool) RegisterRun(runID string, cancel context.CancelFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.activeRuns[runID] = cancel
}

// UnregisterRun removes the cancel function once a Run finishes processing.
func (p *WorkerPool) UnregisterRun(runID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.activeRuns, runID)
}

// CancelRun triggers context cancellation for a Run claimed by this pool.
// Returns true if the Run was found here.
func (p *WorkerPool) CancelRun(runID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if cancel, ok := p.activeRuns[runID]; ok {
		cancel()
		return true
	}
	return false
}

func (p *WorkerPool) cancelAllRuns() {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, cancel := range p.activeRuns {
		cancel()
	}
}

func (p *WorkerPool) getActiveRunIDs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]string, 0, len(p.activeRuns))
	for id := range p.activeRuns {
		ids = append(ids, id)
	}
	return ids
}

// ProcessOnce performs a single claim-and-execute cycle outside the normal
// poll loop, used by POST /worker/process to force a tick without waiting
// for the background interval. The Run (if any) is driven to a terminal
// state synchronously before returning.
func (p *WorkerPool) ProcessOnce(ctx context.Context) (claimed bool, runID string, err error) {
	worker := NewWorker(p.id+"-manual", p.store, p.projects, p.cfg, p.executor, p, p.metrics)
	claimedID, pollErr := worker.pollAndProcess(ctx)
	if pollErr != nil {
		if pollErr == ErrNoRunsAvailable {
			return false, "", nil
		}
		return false, "", pollErr
	}
	return true, claimedID, nil
}

// Health reports the pool's current state for GET /worker/status.
func (p *WorkerPool) Health(ctx context.Context) *PoolHealth {
	workerStats := make([]WorkerHealth, len(p.workers))
	activeWorkers := 0
	for i, worker := range p.workers {
		stats := worker.Health()
		workerStats[i] = stats
		if stats.Status == WorkerStatusWorking {
			activeWorkers++
		}
	}

	queueDepth := 0
	if runs, err := p.store.ListRuns(ctx); err != nil {
		slog.Error("failed to query queue depth for health check", "pool_id", p.id, "error", err)
	} else {
		for _, r := range runs {
			if r.Status == models.StatusQueued {
				queueDepth++
			}
		}
	}

	p.metrics.SetQueueDepth(queueDepth)

	p.orphans.mu.Lock()
	lastScan := p.orphans.lastOrphanScan
	recovered := p.orphans.orphansRecovered
	p.orphans.mu.Unlock()

	return &PoolHealth{
		IsHealthy:        p.cfg.DisableWorker || len(p.workers) > 0,
		WorkerID:         p.id,
		ActiveWorkers:    activeWorkers,
		TotalWorkers:     len(p.workers),
		QueueDepth:       queueDepth,
		WorkerStats:      workerStats,
		LastOrphanScan:   lastScan,
		OrphansRecovered: recovered,
		DisableWorker:    p.cfg.DisableWorker,
	}
}
