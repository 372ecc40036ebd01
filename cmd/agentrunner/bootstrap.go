package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/codeready-toolchain/agent-runner/pkg/agent"
	"github.com/codeready-toolchain/agent-runner/pkg/config"
	"github.com/codeready-toolchain/agent-runner/pkg/eventstream"
	"github.com/codeready-toolchain/agent-runner/pkg/llmprovider"
	"github.com/codeready-toolchain/agent-runner/pkg/metrics"
	"github.com/codeready-toolchain/agent-runner/pkg/queue"
	"github.com/codeready-toolchain/agent-runner/pkg/store"
	"github.com/codeready-toolchain/agent-runner/pkg/tracing"
	"github.com/codeready-toolchain/agent-runner/pkg/workflow"
	"github.com/prometheus/client_golang/prometheus"
)

// app bundles the components a serve/worker process wires together.
type app struct {
	cfg       *config.Config
	store     *store.Client
	broker    *eventstream.Broker
	listener  *eventstream.NotifyListener
	registry  *workflow.Registry
	executor  *agent.Executor
	pool      *queue.WorkerPool
	metrics   *metrics.Registry
	tracer    *tracing.Provider
}

// newApp loads configuration, connects the Data Store (applying migrations),
// and wires every component an agentrunner process may need. Callers start
// only the pieces relevant to their subcommand (serve starts pool+API,
// worker starts pool only).
func newApp(ctx context.Context) (*app, error) {
	cfg := config.Load()

	dbCfg, err := store.LoadConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("load database config: %w", err)
	}
	st, err := store.NewClient(ctx, dbCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	tracer, err := tracing.NewProvider(ctx, version, getOTLPEndpoint())
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("start tracing: %w", err)
	}

	metricsRegistry := metrics.NewRegistry(prometheus.DefaultRegisterer)

	broker := eventstream.NewBroker()
	listener := eventstream.NewNotifyListener(dbCfg.DatabaseURL, broker)
	broker.SetListener(listener)

	registry, err := workflow.NewRegistry(cfg.Workflow.Dir, slog.Default())
	if err != nil {
		slog.Warn("workflow registry unavailable, workflow-type runs will use the simple path", "dir", cfg.Workflow.Dir, "error", err)
		registry = nil
	}

	provider := llmprovider.NewOllamaProvider(cfg.LLM.BaseURL, cfg.LLM.HeartbeatInterval)
	simulated := llmprovider.NewSimulatedProvider(0, cfg.LLM.HeartbeatInterval)

	executor := &agent.Executor{
		Store:     st,
		Registry:  registry,
		Provider:  provider,
		Simulated: simulated,
		LLMConfig: cfg.LLM,
		Metrics:   metricsRegistry,
	}

	pool := queue.NewWorkerPool("agentrunner", st, st, cfg.Queue, executor, metricsRegistry)

	return &app{
		cfg:      cfg,
		store:    st,
		broker:   broker,
		listener: listener,
		registry: registry,
		executor: executor,
		pool:     pool,
		metrics:  metricsRegistry,
		tracer:   tracer,
	}, nil
}

func (a *app) close(ctx context.Context) {
	if a.registry != nil {
		a.registry.Close()
	}
	if a.listener != nil {
		a.listener.Stop(ctx)
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			slog.Warn("tracer shutdown failed", "error", err)
		}
	}
	if err := a.store.Close(); err != nil {
		slog.Warn("database close failed", "error", err)
	}
}

func getOTLPEndpoint() string {
	return getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
}
