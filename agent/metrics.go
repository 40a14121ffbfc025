package agent

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StageInvocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paiask_stage_invocations_total", Help: "Completion calls made by each pipeline stage.",
	}, []string{"stage"})
	StageDegraded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paiask_stage_degraded_total", Help: "Stage outputs replaced by their deterministic fallback.",
	}, []string{"stage"})

	ExecutionAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paiask_execution_attempts_total", Help: "Query execution attempts by outcome.",
	}, []string{"outcome"})
	Refinements = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paiask_intent_refinements_total", Help: "Intent refinements triggered by plan validation failures.",
	})

	PipelineDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "paiask_pipeline_duration_seconds",
		Help:    "Wall time to answer one question.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	}, []string{"outcome"})
)
