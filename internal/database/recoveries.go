package database

import (
	"database/sql"
	"fmt"
	"time"
)

// Recovery is keyed by its owning cycle rather than an independent id.
// Both the cycle and sleep rows it references must already exist.
type Recovery struct {
	CycleID int64
	SleepID int64
	UserID  int64

	ScoreState string
	RawJSON    string

	UserCalibrating  *bool
	RecoveryScore    *float64
	RestingHeartRate *float64
	HrvRmssdMilli    *float64
	Spo2Percentage   *float64
	SkinTempCelsius  *float64

	ProviderCreatedAt int64
	UpdatedAt         int64
	SyncedAt          int64
}

// RecoveryExistsTx reports whether a recovery for the given cycle exists
func (d *DB) RecoveryExistsTx(tx *sql.Tx, cycleID int64) (bool, error) {
	var one int
	err := tx.QueryRow(`SELECT 1 FROM recoveries WHERE cycle_id = ?`, cycleID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check recovery existence: %w", err)
	}
	return true, nil
}

// InsertRecoveryTx inserts a recovery, leaving any existing row for the same
// cycle untouched. Returns true if a row was inserted. Fails if the referenced
// cycle or sleep row does not exist.
func (d *DB) InsertRecoveryTx(tx *sql.Tx, r *Recovery) (bool, error) {
	r.SyncedAt = time.Now().Unix()

	result, err := tx.Exec(`
		INSERT INTO recoveries (
			cycle_id, sleep_id, user_id, score_state, raw_json,
			user_calibrating, recovery_score, resting_heart_rate,
			hrv_rmssd_milli, spo2_percentage, skin_temp_celsius,
			provider_created_at, updated_at, synced_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(cycle_id) DO NOTHING
	`, r.CycleID, r.SleepID, r.UserID, r.ScoreState, r.RawJSON,
		r.UserCalibrating, r.RecoveryScore, r.RestingHeartRate,
		r.HrvRmssdMilli, r.Spo2Percentage, r.SkinTempCelsius,
		r.ProviderCreatedAt, r.UpdatedAt, r.SyncedAt)

	if err != nil {
		return false, fmt.Errorf("failed to insert recovery: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

// GetRecovery retrieves a recovery by its owning cycle id. Returns nil if not found.
func (d *DB) GetRecovery(cycleID int64) (*Recovery, error) {
	var r Recovery
	err := d.conn.QueryRow(`
		SELECT cycle_id, sleep_id, user_id, score_state, raw_json,
		       user_calibrating, recovery_score, resting_heart_rate,
		       hrv_rmssd_milli, spo2_percentage, skin_temp_celsius,
		       provider_created_at, updated_at, synced_at
		FROM recoveries WHERE cycle_id = ?
	`, cycleID).Scan(
		&r.CycleID, &r.SleepID, &r.UserID, &r.ScoreState, &r.RawJSON,
		&r.UserCalibrating, &r.RecoveryScore, &r.RestingHeartRate,
		&r.HrvRmssdMilli, &r.Spo2Percentage, &r.SkinTempCelsius,
		&r.ProviderCreatedAt, &r.UpdatedAt, &r.SyncedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get recovery: %w", err)
	}
	return &r, nil
}
