// Package metrics exposes Prometheus collectors for pipeline and adapter
// observability. Degraded persistence is deliberately surfaced here: the
// pipeline's functional contract swallows store failures, so dropped and
// failed writes must stay visible to operators out-of-band.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Pipeline metrics
	PipelineRunsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "researchmesh_pipeline_runs_started_total",
			Help: "Total number of pipeline runs started",
		},
		[]string{"mode"},
	)

	PipelineRunsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "researchmesh_pipeline_runs_completed_total",
			Help: "Total number of pipeline runs completed",
		},
		[]string{"mode", "status"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "researchmesh_stage_duration_seconds",
			Help:    "Pipeline stage execution duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	// External call metrics
	ModelCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "researchmesh_model_calls_total",
			Help: "Total number of language model calls",
		},
		[]string{"provider", "status"},
	)

	SearchCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "researchmesh_search_calls_total",
			Help: "Total number of web search calls",
		},
		[]string{"status"},
	)

	// Store metrics
	StoreWriteFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "researchmesh_store_write_failures_total",
			Help: "Total number of store writes that failed against a connected store",
		},
		[]string{"operation"},
	)

	StoreWritesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "researchmesh_store_writes_dropped_total",
			Help: "Total number of store writes dropped because the store is disconnected",
		},
		[]string{"operation"},
	)
)
