package metrics

import (
	"context"
	"log/slog"
	"time"
)

// QueueLengthSource provides sync job queue depth readings.
// Implemented by *database.DB.
type QueueLengthSource interface {
	GetSyncJobQueueLength() (int, error)
	GetReadySyncJobQueueLength() (int, error)
	GetProcessingSyncJobQueueLength() (int, error)
}

// StartQueueDepthCollector periodically samples queue depths and updates gauges.
// Blocks until the context is cancelled.
func StartQueueDepthCollector(ctx context.Context, db QueueLengthSource, interval time.Duration) {
	logger := slog.Default()

	collect(db, logger)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			collect(db, logger)
		}
	}
}

func collect(db QueueLengthSource, logger *slog.Logger) {
	if total, err := db.GetSyncJobQueueLength(); err != nil {
		logger.Error("Failed to get sync job queue length", "error", err)
	} else {
		QueueDepthTotal.Set(float64(total))
	}

	if ready, err := db.GetReadySyncJobQueueLength(); err != nil {
		logger.Error("Failed to get ready sync job queue length", "error", err)
	} else {
		QueueDepthReady.Set(float64(ready))
	}

	if processing, err := db.GetProcessingSyncJobQueueLength(); err != nil {
		logger.Error("Failed to get processing sync job queue length", "error", err)
	} else {
		QueueDepthProcessing.Set(float64(processing))
	}
}
