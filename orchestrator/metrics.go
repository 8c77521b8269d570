package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Run kinds used as metric label values.
const (
	runKindGeneration = "generation"
	runKindTestFix    = "test_fix"
	runKindDeploy     = "deploy"
)

var (
	runsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentai_runs_started_total",
		Help: "Orchestration runs started, by kind.",
	}, []string{"kind"})

	runsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentai_runs_completed_total",
		Help: "Orchestration runs completed, by kind and final phase.",
	}, []string{"kind", "phase"})

	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agentai_run_duration_seconds",
		Help:    "Wall-clock duration of orchestration runs.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"kind"})

	modelCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentai_model_calls_total",
		Help: "Model completions issued, by agent and outcome.",
	}, []string{"agent", "outcome"})

	rejectedTriggers = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agentai_rejected_triggers_total",
		Help: "Run triggers rejected because a run was already in flight.",
	})
)

func observeModelCall(agent string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	modelCalls.WithLabelValues(agent, outcome).Inc()
}
