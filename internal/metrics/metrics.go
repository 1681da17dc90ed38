// Package metrics holds the Prometheus collectors of mykrok.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Remote API collectors.
var (
	// RemoteRequests counts remote API calls by endpoint and outcome
	// (ok, rate_limited, not_found, unauthorized, error, rejected).
	RemoteRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mykrok_remote_requests_total",
		Help: "Total number of remote API requests",
	}, []string{"endpoint", "outcome"})

	// RemoteRequestDuration measures remote API latency.
	RemoteRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mykrok_remote_request_duration_seconds",
		Help:    "Remote API request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	// CircuitBreakerState is 0 closed, 1 half-open, 2 open.
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mykrok_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
	}, []string{"name"})
)

// Sync collectors.
var (
	// SyncRuns counts orchestrator runs by outcome (ok, dry_run, error).
	SyncRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mykrok_sync_runs_total",
		Help: "Total number of sync runs",
	}, []string{"outcome"})

	// RecordsProcessed counts records by status (new, update, failed).
	RecordsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mykrok_records_processed_total",
		Help: "Total number of records processed by sync",
	}, []string{"status"})

	// StepsDegraded counts optional pipeline steps that failed without
	// failing their record.
	StepsDegraded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mykrok_steps_degraded_total",
		Help: "Total number of optional sync steps that failed",
	}, []string{"step"})

	// PhotosDownloaded counts photo files written.
	PhotosDownloaded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mykrok_photos_downloaded_total",
		Help: "Total number of photos downloaded",
	})

	// RetryQueuePending is the number of retry entries that are not
	// permanently failed, per athlete.
	RetryQueuePending = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mykrok_retry_queue_pending",
		Help: "Retry queue entries awaiting retry",
	}, []string{"athlete"})

	// LastSyncTimestamp is the unix time of the last committed sync.
	LastSyncTimestamp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mykrok_last_sync_timestamp_seconds",
		Help: "Unix timestamp of the last committed sync",
	}, []string{"athlete"})

	// MirrorUploads counts mirror uploads by outcome (ok, error).
	MirrorUploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mykrok_mirror_uploads_total",
		Help: "Total number of files uploaded to the mirror",
	}, []string{"outcome"})
)

// HTTP collectors.
var (
	// HTTPRequests counts browse API requests by route pattern and status class.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mykrok_http_requests_total",
		Help: "Total number of browse API requests",
	}, []string{"route", "status"})
)
