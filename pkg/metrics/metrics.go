// Package metrics exposes Prometheus counters and histograms for run claims,
// step durations, and heartbeats.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry bundles the metrics recorded by the Background Worker, Agent
// Executor, and Workflow Engine.
type Registry struct {
	runsClaimed   *prometheus.CounterVec
	runsCompleted *prometheus.CounterVec
	stepDuration  *prometheus.HistogramVec
	heartbeats    *prometheus.CounterVec
	queueDepth    prometheus.Gauge
	orphansFound  prometheus.Counter
}

// NewRegistry registers all agent-runner metrics with reg. Pass
// prometheus.DefaultRegisterer for the process-wide registry.
func NewRegistry(reg prometheus.Registerer) *Registry {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Registry{
		runsClaimed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentrunner",
			Name:      "runs_claimed_total",
			Help:      "Runs claimed from the queue by a worker, labeled by worker id",
		}, []string{"worker_id"}),

		runsCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentrunner",
			Name:      "runs_completed_total",
			Help:      "Runs that reached a terminal status, labeled by that status",
		}, []string{"status"}),

		stepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agentrunner",
			Name:      "step_duration_seconds",
			Help:      "Workflow step execution duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"step_type", "status"}),

		heartbeats: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentrunner",
			Name:      "heartbeats_total",
			Help:      "Heartbeat updates written for in-flight runs",
		}, []string{"result"}),

		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "agentrunner",
			Name:      "queue_depth",
			Help:      "QUEUED runs observed at the last worker health check",
		}),

		orphansFound: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "agentrunner",
			Name:      "orphans_recovered_total",
			Help:      "Runs requeued after their claiming worker missed its heartbeat threshold",
		}),
	}
}

func (r *Registry) RunClaimed(workerID string) {
	if r == nil {
		return
	}
	r.runsClaimed.WithLabelValues(workerID).Inc()
}

func (r *Registry) RunCompleted(status string) {
	if r == nil {
		return
	}
	r.runsCompleted.WithLabelValues(status).Inc()
}

func (r *Registry) StepDuration(stepType, status string, d time.Duration) {
	if r == nil {
		return
	}
	r.stepDuration.WithLabelValues(stepType, status).Observe(d.Seconds())
}

func (r *Registry) Heartbeat(ok bool) {
	if r == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	r.heartbeats.WithLabelValues(result).Inc()
}

func (r *Registry) SetQueueDepth(depth int) {
	if r == nil {
		return
	}
	r.queueDepth.Set(float64(depth))
}

func (r *Registry) OrphansRecovered(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.orphansFound.Add(float64(n))
}
