package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsDequeuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "prophet_jobs_dequeued_total",
			Help: "Total number of jobs dequeued by workers.",
		},
	)

	jobsCompletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prophet_jobs_completed_total",
			Help: "Total number of jobs finished by workers.",
		},
		[]string{"backend", "success"}, // success: "true" or "false"
	)

	jobDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "prophet_job_duration_seconds",
			Help:    "Wall-clock training job duration in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2.5, 12),
		},
		[]string{"backend"},
	)

	progressWritesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "prophet_progress_writes_total",
			Help: "Total number of progress snapshots written to the broker.",
		},
	)
)
