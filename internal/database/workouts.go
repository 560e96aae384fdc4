package database

import (
	"database/sql"
	"fmt"
	"time"
)

// Workout represents a discrete exercise session
type Workout struct {
	ID      int64
	UserID  int64
	SportID int64

	Start          int64 // Unix milliseconds
	End            int64
	TimezoneOffset string
	ScoreState     string
	RawJSON        string

	Strain              *float64
	AverageHeartRate    *int64
	MaxHeartRate        *int64
	Kilojoule           *float64
	PercentRecorded     *float64
	DistanceMeter       *float64
	AltitudeGainMeter   *float64
	AltitudeChangeMeter *float64

	// Heart rate zone durations (milliseconds)
	ZoneZeroMilli  *int64
	ZoneOneMilli   *int64
	ZoneTwoMilli   *int64
	ZoneThreeMilli *int64
	ZoneFourMilli  *int64
	ZoneFiveMilli  *int64

	ProviderCreatedAt int64
	UpdatedAt         int64
	SyncedAt          int64
}

// WorkoutExistsTx reports whether a workout with the given id exists
func (d *DB) WorkoutExistsTx(tx *sql.Tx, id int64) (bool, error) {
	var one int
	err := tx.QueryRow(`SELECT 1 FROM workouts WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check workout existence: %w", err)
	}
	return true, nil
}

// InsertWorkoutTx inserts a workout, leaving any existing row with the same id
// untouched. Returns true if a row was inserted.
func (d *DB) InsertWorkoutTx(tx *sql.Tx, w *Workout) (bool, error) {
	w.SyncedAt = time.Now().Unix()

	result, err := tx.Exec(`
		INSERT INTO workouts (
			id, user_id, sport_id, start, end, timezone_offset, score_state, raw_json,
			strain, average_heart_rate, max_heart_rate, kilojoule, percent_recorded,
			distance_meter, altitude_gain_meter, altitude_change_meter,
			zone_zero_milli, zone_one_milli, zone_two_milli,
			zone_three_milli, zone_four_milli, zone_five_milli,
			provider_created_at, updated_at, synced_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, w.ID, w.UserID, w.SportID, w.Start, w.End, w.TimezoneOffset, w.ScoreState, w.RawJSON,
		w.Strain, w.AverageHeartRate, w.MaxHeartRate, w.Kilojoule, w.PercentRecorded,
		w.DistanceMeter, w.AltitudeGainMeter, w.AltitudeChangeMeter,
		w.ZoneZeroMilli, w.ZoneOneMilli, w.ZoneTwoMilli,
		w.ZoneThreeMilli, w.ZoneFourMilli, w.ZoneFiveMilli,
		w.ProviderCreatedAt, w.UpdatedAt, w.SyncedAt)

	if err != nil {
		return false, fmt.Errorf("failed to insert workout: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

// GetWorkout retrieves a workout by id. Returns nil if not found.
func (d *DB) GetWorkout(id int64) (*Workout, error) {
	var w Workout
	err := d.conn.QueryRow(`
		SELECT id, user_id, sport_id, start, end, timezone_offset, score_state, raw_json,
		       strain, average_heart_rate, max_heart_rate, kilojoule, percent_recorded,
		       distance_meter, altitude_gain_meter, altitude_change_meter,
		       zone_zero_milli, zone_one_milli, zone_two_milli,
		       zone_three_milli, zone_four_milli, zone_five_milli,
		       provider_created_at, updated_at, synced_at
		FROM workouts WHERE id = ?
	`, id).Scan(
		&w.ID, &w.UserID, &w.SportID, &w.Start, &w.End, &w.TimezoneOffset, &w.ScoreState, &w.RawJSON,
		&w.Strain, &w.AverageHeartRate, &w.MaxHeartRate, &w.Kilojoule, &w.PercentRecorded,
		&w.DistanceMeter, &w.AltitudeGainMeter, &w.AltitudeChangeMeter,
		&w.ZoneZeroMilli, &w.ZoneOneMilli, &w.ZoneTwoMilli,
		&w.ZoneThreeMilli, &w.ZoneFourMilli, &w.ZoneFiveMilli,
		&w.ProviderCreatedAt, &w.UpdatedAt, &w.SyncedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workout: %w", err)
	}
	return &w, nil
}

// CountWorkouts returns the number of workout rows for a user
func (d *DB) CountWorkouts(userID int64) (int, error) {
	var count int
	err := d.conn.QueryRow(`SELECT COUNT(*) FROM workouts WHERE user_id = ?`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count workouts: %w", err)
	}
	return count, nil
}
