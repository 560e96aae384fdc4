package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label value constants to prevent typos
const (
	// Queue results
	ResultSuccess = "success"
	ResultRetry   = "retry"
	ResultDropped = "dropped"
	ResultFailure = "failure"

	// Worker outcomes
	OutcomeSyncJobFound = "sync_job_found"
	OutcomeIdle         = "idle"

	// HTTP endpoints
	EndpointOAuthStart    = "oauth_start"
	EndpointOAuthCallback = "oauth_callback"
	EndpointSyncTrigger   = "sync_trigger"
	EndpointSyncStatus    = "sync_status"
	EndpointHealth        = "health"

	// WHOOP API operations
	OpExchangeCode       = "exchange_code"
	OpRefreshToken       = "refresh_token"
	OpGetProfile         = "get_profile"
	OpGetBodyMeasurement = "get_body_measurement"
	OpListCycles         = "list_cycles"
	OpListRecoveries     = "list_recoveries"
	OpListSleeps         = "list_sleeps"
	OpListWorkouts       = "list_workouts"

	// Database operations
	DBOpEnqueueSyncJob    = "enqueue_sync_job"
	DBOpClaimSyncJob      = "claim_sync_job"
	DBOpDeleteSyncJob     = "delete_sync_job"
	DBOpReleaseSyncJob    = "release_sync_job"
	DBOpMaxUpdatedAt      = "max_updated_at"
	DBOpInsertRecord      = "insert_record"
	DBOpUpsertSubject     = "upsert_subject"
	DBOpGetConnection     = "get_connection"
	DBOpUpsertConnection  = "upsert_connection"
	DBOpUpdateTokens      = "update_tokens"
	DBOpInsertSyncHistory = "insert_sync_history"
)

// HTTP Metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"endpoint", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"endpoint", "status_code"},
	)
)

// Queue Metrics
var (
	QueueDepthTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sync_queue_depth_total",
			Help: "Total number of sync jobs in the queue (all states)",
		},
	)

	QueueDepthReady = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sync_queue_depth_ready",
			Help: "Number of sync jobs ready for processing",
		},
	)

	QueueDepthProcessing = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sync_queue_depth_processing",
			Help: "Number of sync jobs currently being processed",
		},
	)

	QueueEnqueueTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_queue_enqueue_total",
			Help: "Total number of sync jobs enqueued",
		},
		[]string{"job_type"},
	)

	QueueDequeueTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_queue_dequeue_total",
			Help: "Total number of sync jobs dequeued with outcome",
		},
		[]string{"job_type", "result"},
	)

	QueueProcessingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sync_queue_processing_duration_seconds",
			Help:    "Time spent processing sync jobs",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"job_type", "result"},
	)

	QueueRetryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_queue_retry_total",
			Help: "Total number of sync job retry attempts",
		},
		[]string{"job_type", "retry_count"},
	)
)

// Worker Metrics
var (
	WorkerPollCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_poll_cycles_total",
			Help: "Total number of worker poll cycles by outcome",
		},
		[]string{"outcome"},
	)

	WorkerActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "worker_active",
			Help: "Whether the worker is currently active (1) or not (0)",
		},
	)
)

// WHOOP API Metrics
var (
	WhoopAPIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whoop_api_requests_total",
			Help: "Total number of WHOOP API requests",
		},
		[]string{"operation", "status_code"},
	)

	WhoopAPIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "whoop_api_request_duration_seconds",
			Help:    "WHOOP API request latency in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"operation", "status_code"},
	)

	TokenRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whoop_token_refreshes_total",
			Help: "Total number of OAuth token refreshes",
		},
		[]string{"result"},
	)
)

// Database Metrics
var (
	DBOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_operation_duration_seconds",
			Help:    "Database operation latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"operation"},
	)

	DBOperationErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_operation_errors_total",
			Help: "Total number of database operation errors",
		},
		[]string{"operation"},
	)
)

// Business Metrics
var (
	SyncPassesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_passes_total",
			Help: "Total number of entity sync passes by outcome",
		},
		[]string{"kind", "result"},
	)

	SyncRecordsInsertedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_records_inserted_total",
			Help: "Total number of records inserted by sync passes",
		},
		[]string{"kind"},
	)

	SyncPassInsertedCount = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sync_pass_inserted_count",
			Help:    "Number of records inserted per sync pass",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"kind"},
	)
)
