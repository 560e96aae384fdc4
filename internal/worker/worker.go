package worker

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"fitness-whoop-sync/internal/database"
	"fitness-whoop-sync/internal/metrics"
	syncer "fitness-whoop-sync/internal/sync"
	"fitness-whoop-sync/internal/whoop"
)

// Worker processes sync jobs from the durable queue
type Worker struct {
	db           *database.DB
	syncer       *syncer.Syncer
	logger       *slog.Logger
	pollInterval time.Duration
}

// NewWorker creates a new sync job worker
func NewWorker(db *database.DB, s *syncer.Syncer) *Worker {
	return &Worker{
		db:           db,
		syncer:       s,
		logger:       slog.Default(),
		pollInterval: 500 * time.Millisecond,
	}
}

// Start begins processing sync jobs from the queue until the context is
// cancelled
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker")
	metrics.WorkerActive.Set(1)
	defer metrics.WorkerActive.Set(0)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Stopping worker")
			return ctx.Err()
		default:
			job, err := w.db.ClaimSyncJob()
			if err != nil {
				w.logger.Error("Failed to claim sync job", "error", err)
				time.Sleep(w.pollInterval)
				continue
			}

			if job == nil {
				metrics.WorkerPollCyclesTotal.WithLabelValues(metrics.OutcomeIdle).Inc()
				time.Sleep(w.pollInterval)
				continue
			}

			metrics.WorkerPollCyclesTotal.WithLabelValues(metrics.OutcomeSyncJobFound).Inc()
			w.processSyncJob(ctx, job)
		}
	}
}

// jobKinds maps single-kind job types to the sync kind they run
var jobKinds = map[string]syncer.Kind{
	"sync_profile":  syncer.KindProfile,
	"sync_cycle":    syncer.KindCycle,
	"sync_sleep":    syncer.KindSleep,
	"sync_recovery": syncer.KindRecovery,
	"sync_workout":  syncer.KindWorkout,
}

// processSyncJob handles a single claimed job. Success deletes the job;
// credential failures drop it, since retrying without a working token set is
// pointless; everything else releases it for retry with backoff.
func (w *Worker) processSyncJob(ctx context.Context, job *database.SyncJob) {
	start := time.Now()
	w.logger.Info("Processing sync job",
		"id", job.ID,
		"user_id", job.UserID,
		"job_type", job.JobType,
		"retry_count", job.RetryCount)

	var err error
	switch {
	case job.JobType == "sync_all":
		_, err = w.syncer.SyncAll(ctx, job.UserID)
	default:
		kind, ok := jobKinds[job.JobType]
		if !ok {
			w.logger.Warn("Unknown sync job type", "id", job.ID, "job_type", job.JobType)
			// Unknown types are not retryable - complete them
			if err := w.db.DeleteSyncJob(job.ID); err != nil {
				w.logger.Error("Failed to delete unknown sync job", "id", job.ID, "error", err)
			}
			w.recordOutcome(job.JobType, metrics.ResultDropped, start)
			return
		}
		_, err = w.syncer.SyncKind(ctx, job.UserID, kind, nil)
	}

	if err != nil {
		if whoop.IsCredentialError(err) {
			w.logger.Warn("Dropping sync job: credentials unusable",
				"id", job.ID,
				"user_id", job.UserID,
				"error", err)
			if err := w.db.DeleteSyncJob(job.ID); err != nil {
				w.logger.Error("Failed to delete unauthorized sync job", "id", job.ID, "error", err)
			}
			w.recordOutcome(job.JobType, metrics.ResultDropped, start)
			return
		}

		if errors.Is(err, syncer.ErrSyncInProgress) {
			w.logger.Info("Sync already running for user, releasing job",
				"id", job.ID,
				"user_id", job.UserID)
		} else {
			w.logger.Error("Failed to process sync job", "id", job.ID, "error", err)
		}
		w.recordOutcome(job.JobType, metrics.ResultRetry, start)
		metrics.QueueRetryTotal.WithLabelValues(job.JobType, strconv.Itoa(job.RetryCount+1)).Inc()
		w.releaseSyncJob(job.ID, job.RetryCount, err.Error())
		return
	}

	// Success - delete sync job from queue
	if err := w.db.DeleteSyncJob(job.ID); err != nil {
		w.logger.Error("Failed to delete completed sync job", "id", job.ID, "error", err)
	} else {
		w.recordOutcome(job.JobType, metrics.ResultSuccess, start)
		w.logger.Info("Sync job processed successfully",
			"id", job.ID,
			"user_id", job.UserID,
			"duration_ms", time.Since(start).Milliseconds())
	}
}

func (w *Worker) recordOutcome(jobType, result string, start time.Time) {
	metrics.QueueProcessingDuration.WithLabelValues(jobType, result).Observe(time.Since(start).Seconds())
	metrics.QueueDequeueTotal.WithLabelValues(jobType, result).Inc()
}

// releaseSyncJob releases a sync job back to the queue with exponential backoff
func (w *Worker) releaseSyncJob(jobID int64, currentRetryCount int, errorMsg string) {
	shouldRetry, err := w.db.ReleaseSyncJob(jobID, currentRetryCount, errorMsg)
	if err != nil {
		w.logger.Error("Failed to release sync job", "id", jobID, "error", err)
		return
	}

	if !shouldRetry {
		w.logger.Warn("Sync job exceeded max retries, dropped",
			"id", jobID,
			"retry_count", currentRetryCount)
	} else {
		w.logger.Info("Sync job released for retry",
			"id", jobID,
			"retry_count", currentRetryCount+1)
	}
}
