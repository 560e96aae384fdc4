package database

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"fitness-whoop-sync/internal/metrics"
)

// watermarkTables maps an entity kind to its table. Kinds outside this map
// have no watermark and are rejected.
var watermarkTables = map[string]string{
	"cycle":    "cycles",
	"sleep":    "sleeps",
	"recovery": "recoveries",
	"workout":  "workouts",
}

// MaxUpdatedAt returns the maximum provider updated_at (Unix milliseconds)
// over all rows of the given kind for the subject, or nil if the subject has
// no rows of that kind. This is the sole watermark signal for incremental sync.
func (d *DB) MaxUpdatedAt(kind string, userID int64) (*int64, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpMaxUpdatedAt))
	defer timer.ObserveDuration()

	table, ok := watermarkTables[kind]
	if !ok {
		return nil, fmt.Errorf("unknown entity kind %q", kind)
	}

	query := fmt.Sprintf(`SELECT MAX(updated_at) FROM %s WHERE user_id = ?`, table)

	var max *int64
	if err := d.conn.QueryRow(query, userID).Scan(&max); err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpMaxUpdatedAt).Inc()
		return nil, fmt.Errorf("failed to get max updated_at for %s: %w", kind, err)
	}

	return max, nil
}
