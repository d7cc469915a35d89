// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edl_indexer_runs_total",
		Help: "Total number of pipeline runs, by final status",
	}, []string{"status"})

	ClipsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edl_indexer_clips_total",
		Help: "Clips processed, by outcome",
	}, []string{"outcome"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "edl_indexer_stage_duration_seconds",
		Help:    "Duration of pipeline stages",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 300},
	}, []string{"stage"})

	ActiveRuns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "edl_indexer_active_runs",
		Help: "Number of pipeline runs currently executing",
	})

	PublishFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edl_indexer_publish_failures_total",
		Help: "Failed publish or link calls, by backend and retryability",
	}, []string{"backend", "retryable"})

	FrameMissesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edl_indexer_frame_misses_total",
		Help: "Clips without a frame, by kind (no_frame or error)",
	}, []string{"kind"})

	TableFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edl_indexer_table_failures_total",
		Help: "Failed table writes, by step and HTTP status (0 when not an API error)",
	}, []string{"step", "status"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
