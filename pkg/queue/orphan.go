package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// orphanState tracks orphan-recovery metrics, guarded by its own mutex so
// Health() can read it without taking the pool's main lock.
type orphanState struct {
	mu               sync.Mutex
	lastOrphanScan   time.Time
	orphansRecovered int
}

// runOrphanDetection periodically returns RUNNING Runs whose worker has gone
// silent back to QUEUED. Every process running a pool does this
// independently; RequeueOrphans is a single conditional UPDATE so concurrent
// scans never double-requeue a Run.
func (p *WorkerPool) runOrphanDetection(ctx context.Context) {
	interval := p.cfg.OrphanRecoveryInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.detectAndRecoverOrphans(ctx)
		}
	}
}

func (p *WorkerPool) detectAndRecoverOrphans(ctx context.Context) {
	threshold := p.cfg.OrphanThreshold
	if threshold <= 0 {
		threshold = 5 * time.Minute
	}

	ids, err := p.store.RequeueOrphans(ctx, threshold)
	if err != nil {
		slog.Error("orphan detection failed", "pool_id", p.id, "error", err)
		return
	}

	p.orphans.mu.Lock()
	p.orphans.lastOrphanScan = time.Now()
	p.orphans.orphansRecovered += len(ids)
	p.orphans.mu.Unlock()
	p.metrics.OrphansRecovered(len(ids))

	if len(ids) > 0 {
		slog.Warn("requeued orphaned runs", "pool_id", p.id, "count", len(ids), "run_ids", ids)
	}
}
