package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"fitness-whoop-sync/internal/metrics"
)

// Subject represents the WHOOP-side identity a user's data is attributed to
type Subject struct {
	UserID    int64
	Email     string
	FirstName string
	LastName  string

	HeightMeter    *float64
	WeightKilogram *float64
	MaxHeartRate   *int64

	CreatedAt int64
	UpdatedAt int64
}

// UpsertSubject creates the subject on first profile sync and updates the
// profile and body measurement fields on every subsequent sync. Subjects are
// never deleted by the sync engine.
func (d *DB) UpsertSubject(s *Subject) error {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpUpsertSubject))
	defer timer.ObserveDuration()

	now := time.Now().Unix()

	_, err := d.conn.Exec(`
		INSERT INTO subjects (
			user_id, email, first_name, last_name,
			height_meter, weight_kilogram, max_heart_rate,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			email = excluded.email,
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			height_meter = excluded.height_meter,
			weight_kilogram = excluded.weight_kilogram,
			max_heart_rate = excluded.max_heart_rate,
			updated_at = excluded.updated_at
	`, s.UserID, s.Email, s.FirstName, s.LastName,
		s.HeightMeter, s.WeightKilogram, s.MaxHeartRate,
		now, now)

	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpUpsertSubject).Inc()
		return fmt.Errorf("failed to upsert subject: %w", err)
	}
	return nil
}

// GetSubject retrieves a subject by WHOOP user ID. Returns nil if not found.
func (d *DB) GetSubject(userID int64) (*Subject, error) {
	var s Subject
	err := d.conn.QueryRow(`
		SELECT user_id, email, first_name, last_name,
		       height_meter, weight_kilogram, max_heart_rate,
		       created_at, updated_at
		FROM subjects WHERE user_id = ?
	`, userID).Scan(
		&s.UserID, &s.Email, &s.FirstName, &s.LastName,
		&s.HeightMeter, &s.WeightKilogram, &s.MaxHeartRate,
		&s.CreatedAt, &s.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subject: %w", err)
	}
	return &s, nil
}
