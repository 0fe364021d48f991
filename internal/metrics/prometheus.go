package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "render_worker_jobs_processed_total",
		Help: "Total number of render jobs finalized, by status",
	}, []string{"status"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "render_worker_stage_duration_seconds",
		Help:    "Duration of render pipeline stages",
		Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300, 600, 1500},
	}, []string{"stage"})

	ClaimErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "render_worker_claim_errors_total",
		Help: "Total number of failed claim attempts",
	})

	CaptionFallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "render_worker_caption_fallbacks_total",
		Help: "Renders exported without burned captions",
	})

	ActiveJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "render_worker_active_jobs",
		Help: "Number of jobs currently being rendered by this worker",
	})

	BackoffSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "render_worker_backoff_seconds",
		Help: "Current loop backoff after errors",
	})
)
