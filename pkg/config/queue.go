package config

import "time"

// QueueConfig controls how the Background Worker polls, claims, and runs Runs.
type QueueConfig struct {
	// WorkerCount is the number of worker goroutines in this process.
	// Each worker independently polls and claims Runs.
	WorkerCount int

	// BatchSize is loaded from WORKER_BATCH_SIZE. Workers do not read it:
	// each poll claims at most one Run.
	BatchSize int

	// CheckInterval is the base interval between claim attempts (WORKER_CHECK_INTERVAL).
	CheckInterval time.Duration

	// CheckIntervalJitter adds random jitter to CheckInterval to avoid a
	// thundering herd across multiple worker processes polling one store.
	CheckIntervalJitter time.Duration

	// HeartbeatInterval is how often a Worker refreshes last_heartbeat_at on
	// its claimed Run for orphan detection (read from OLLAMA_HEARTBEAT_INTERVAL).
	HeartbeatInterval time.Duration

	// StepTimeout holds a default per-step timeout. The Workflow Engine does
	// not read it: agent.Executor leaves Engine.DefaultTimeout unset, so a step
	// without its own or a per-Run timeout_seconds gets the engine's 60s fallback.
	StepTimeout time.Duration

	// GracefulShutdownTimeout bounds how long Stop waits for an in-flight
	// Executor invocation to reach a terminal state before forcing exit.
	GracefulShutdownTimeout time.Duration

	// OrphanRecoveryInterval is how often the pool scans for RUNNING Runs
	// whose claiming worker has gone silent.
	OrphanRecoveryInterval time.Duration

	// OrphanThreshold is how long a RUNNING Run may go without a heartbeat
	// before it is returned to QUEUED.
	OrphanThreshold time.Duration

	// DisableWorker disables the background claim loop entirely (DISABLE_WORKER).
	DisableWorker bool
}

// DefaultQueueConfig returns the process's built-in defaults.
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		WorkerCount:             1,
		BatchSize:               1,
		CheckInterval:           5 * time.Second,
		CheckIntervalJitter:     1 * time.Second,
		HeartbeatInterval:       15 * time.Second,
		StepTimeout:             5 * time.Minute,
		GracefulShutdownTimeout: 2 * time.Minute,
		OrphanRecoveryInterval:  1 * time.Minute,
		OrphanThreshold:         5 * time.Minute,
		DisableWorker:           false,
	}
}

// QueueConfigFromEnv loads queue configuration from the environment, falling
// back to DefaultQueueConfig for anything unset.
func QueueConfigFromEnv() *QueueConfig {
	d := DefaultQueueConfig()
	return &QueueConfig{
		WorkerCount:             getEnvInt("WORKER_COUNT", d.WorkerCount),
		BatchSize:               getEnvInt("WORKER_BATCH_SIZE", d.BatchSize),
		CheckInterval:           getEnvDuration("WORKER_CHECK_INTERVAL", d.CheckInterval),
		CheckIntervalJitter:     d.CheckIntervalJitter,
		HeartbeatInterval:       getEnvDuration("OLLAMA_HEARTBEAT_INTERVAL", d.HeartbeatInterval),
		StepTimeout:             d.StepTimeout,
		GracefulShutdownTimeout: d.GracefulShutdownTimeout,
		OrphanRecoveryInterval:  d.OrphanRecoveryInterval,
		OrphanThreshold:         d.OrphanThreshold,
		DisableWorker:           getEnvBool("DISABLE_WORKER", d.DisableWorker),
	}
}
