package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/codeready-toolchain/agent-runner/pkg/config"
	"github.com/codeready-toolchain/agent-runner/pkg/metrics"
	"github.com/codeready-toolchain/agent-runner/pkg/models"
	"github.com/codeready-toolchain/agent-runner/pkg/store"
)

// Worker polls the Data Store for QUEUED Runs, claims one at a time, and
// drives it through Executor to a terminal state.
type Worker struct {
	id       string
	store    *store.Client
	projects ProjectResolver
	cfg      *config.QueueConfig
	executor Executor
	pool     SessionRegistry
	metrics  *metrics.Registry
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu            sync.RWMutex
	status        WorkerStatus
	currentRunID  string
	runsProcessed int
	lastActivity  time.Time
}

// NewWorker creates a Worker bound to cfg's polling parameters. m may be nil.
func NewWorker(id string, st *store.Client, projects ProjectResolver, cfg *config.QueueConfig, executor Executor, pool SessionRegistry, m *metrics.Registry) *Worker {
	return &Worker{
		id:           id,
		store:        st,
		projects:     projects,
		cfg:          cfg,
		executor:     executor,
		pool:         pool,
		metrics:      m,
		stopCh:       make(chan struct{}),
		status:       WorkerStatusIdle,
		lastActivity: time.Now(),
	}
}

// Start begins the worker's poll loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker to stop after its current Run finishes and waits
// for it to exit. Safe to call multiple times.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// Health reports the worker's current activity.
func (w *Worker) Health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerHealth{
		ID:            w.id,
		Status:        w.status,
		CurrentRunID:  w.currentRunID,
		RunsProcessed: w.runsProcessed,
		LastActivity:  w.lastActivity,
	}
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()
	log := slog.With("worker_id", w.id)
	log.Info("worker started")

	for {
		select {
		case <-w.stopCh:
			log.Info("worker shutting down")
			return
		case <-ctx.Done():
			log.Info("context cancelled, worker shutting down")
			return
		default:
			if _, err := w.pollAndProcess(ctx); err != nil {
				if errors.Is(err, ErrNoRunsAvailable) {
					w.sleep(w.pollInterval())
					continue
				}
				log.Error("error processing run", "error", err)
				w.sleep(time.Second)
			}
		}
	}
}

func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

// pollAndProcess claims the next QUEUED Run, if any, drives it to a terminal
// state via Executor, and returns the claimed Run's id.
func (w *Worker) pollAndProcess(ctx context.Context) (string, error) {
	run, err := w.store.ClaimNextQueued(ctx, w.id)
	if err != nil {
		return "", fmt.Errorf("claim next queued run: %w", err)
	}
	if run == nil {
		return "", ErrNoRunsAvailable
	}

	log := slog.With("run_id", run.ID, "worker_id", w.id)
	log.Info("run claimed")
	w.metrics.RunClaimed(w.id)

	workspacePath, err := w.resolveWorkspace(ctx, run)
	if err != nil {
		log.Error("failed to resolve workspace, failing run", "error", err)
		if _, _, txErr := w.store.TransitionWithEvent(ctx, run.ID, models.StatusRunning, models.StatusFailed,
			models.EventRunFailed, map[string]any{"error": err.Error(), "where": "workspace"}); txErr != nil {
			log.Error("failed to commit RUN_FAILED after workspace resolution error", "error", txErr)
		}
		return run.ID, nil
	}

	w.setStatus(WorkerStatusWorking, run.ID)
	defer w.setStatus(WorkerStatusIdle, "")

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	w.pool.RegisterRun(run.ID, cancelRun)
	defer w.pool.UnregisterRun(run.ID)

	heartbeatCtx, cancelHeartbeat := context.WithCancel(runCtx)
	go w.runHeartbeat(heartbeatCtx, run.ID)

	w.executor.Run(runCtx, run, workspacePath)
	cancelHeartbeat()

	if final, err := w.store.GetRun(ctx, run.ID); err == nil {
		w.metrics.RunCompleted(string(final.Status))
	}

	w.mu.Lock()
	w.runsProcessed++
	w.mu.Unlock()

	log.Info("run processing complete")
	return run.ID, nil
}

func (w *Worker) resolveWorkspace(ctx context.Context, run *models.Run) (string, error) {
	project, err := w.projects.GetProject(ctx, run.ProjectID)
	if err != nil {
		return "", fmt.Errorf("load project %q: %w", run.ProjectID, err)
	}
	return project.LocalPath, nil
}

// runHeartbeat periodically refreshes last_heartbeat_at for orphan detection.
func (w *Worker) runHeartbeat(ctx context.Context, runID string) {
	interval := w.cfg.HeartbeatInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := w.store.Heartbeat(ctx, runID)
			w.metrics.Heartbeat(err == nil)
			if err != nil {
				slog.Warn("heartbeat update failed", "run_id", runID, "error", err)
			}
		}
	}
}

// pollInterval returns the configured check interval with symmetric jitter,
// spreading concurrent worker processes' polls apart.
func (w *Worker) pollInterval() time.Duration {
	base := w.cfg.CheckInterval
	jitter := w.cfg.CheckIntervalJitter
	if jitter <= 0 {
		return base
	}
	offset := time.Duration(rand.Int64N(int64(2 * jitter)))
	return base - jitter + offset
}

func (w *Worker) setStatus(status WorkerStatus, runID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	w.currentRunID = runID
	w.lastActivity = time.Now()
}
