package database

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"fitness-whoop-sync/internal/metrics"
)

// SyncHistoryEntry records the outcome of one sync pass
type SyncHistoryEntry struct {
	ID         int64
	PassID     string
	UserID     int64
	Kind       string
	Inserted   int
	Error      *string
	StartedAt  time.Time
	DurationMs int64
}

// InsertSyncHistory appends a sync pass outcome
func (d *DB) InsertSyncHistory(e *SyncHistoryEntry) error {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpInsertSyncHistory))
	defer timer.ObserveDuration()

	_, err := d.conn.Exec(`
		INSERT INTO sync_history (pass_id, user_id, kind, inserted, error, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.PassID, e.UserID, e.Kind, e.Inserted, e.Error, e.StartedAt.Unix(), e.DurationMs)

	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpInsertSyncHistory).Inc()
		return fmt.Errorf("failed to insert sync history: %w", err)
	}
	return nil
}

// ListSyncHistory returns the most recent sync passes for a user, newest first
func (d *DB) ListSyncHistory(userID int64, limit int) ([]*SyncHistoryEntry, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := d.conn.Query(`
		SELECT id, pass_id, user_id, kind, inserted, error, started_at, duration_ms
		FROM sync_history
		WHERE user_id = ?
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync history: %w", err)
	}
	defer rows.Close()

	var entries []*SyncHistoryEntry
	for rows.Next() {
		var e SyncHistoryEntry
		var startedAt int64
		if err := rows.Scan(&e.ID, &e.PassID, &e.UserID, &e.Kind, &e.Inserted, &e.Error, &startedAt, &e.DurationMs); err != nil {
			return nil, fmt.Errorf("failed to scan sync history: %w", err)
		}
		e.StartedAt = time.Unix(startedAt, 0)
		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync history: %w", err)
	}

	return entries, nil
}
