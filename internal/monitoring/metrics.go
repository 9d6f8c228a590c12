// Package monitoring defines the Prometheus metrics exposed on /metrics by
// both the API server and the worker.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsProcessed counts job executions by type and outcome
	// (completed, retried, failed).
	JobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boxoffice_jobs_processed_total",
			Help: "Job executions by type and outcome",
		},
		[]string{"type", "outcome"},
	)

	// JobsInFlight tracks jobs currently leased by this worker.
	JobsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "boxoffice_jobs_in_flight",
			Help: "Jobs currently being processed by this worker",
		},
	)

	// JobDuration observes handler run time per job type.
	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "boxoffice_job_duration_seconds",
			Help:    "Job handler duration",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"type"},
	)

	// Checkouts counts checkout attempts by outcome (paid_redirect,
	// deferred, rejected, error).
	Checkouts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boxoffice_checkouts_total",
			Help: "Checkout attempts by outcome",
		},
		[]string{"outcome"},
	)

	// Webhooks counts webhook deliveries by outcome (enqueued, unknown).
	Webhooks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boxoffice_webhooks_total",
			Help: "Webhook deliveries by outcome",
		},
		[]string{"outcome"},
	)
)
