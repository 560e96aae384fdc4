package database

import (
	"database/sql"
	"fmt"
	"time"
)

// Sleep represents a sleep episode
type Sleep struct {
	ID     int64
	UserID int64

	Start          int64 // Unix milliseconds
	End            int64
	TimezoneOffset string
	Nap            bool
	ScoreState     string
	RawJSON        string

	// Stage summary (milliseconds)
	TotalInBedTimeMilli         *int64
	TotalAwakeTimeMilli         *int64
	TotalNoDataTimeMilli        *int64
	TotalLightSleepTimeMilli    *int64
	TotalSlowWaveSleepTimeMilli *int64
	TotalRemSleepTimeMilli      *int64
	SleepCycleCount             *int64
	DisturbanceCount            *int64

	// Sleep needed (milliseconds)
	BaselineMilli             *int64
	NeedFromSleepDebtMilli    *int64
	NeedFromRecentStrainMilli *int64
	NeedFromRecentNapMilli    *int64

	RespiratoryRate            *float64
	SleepPerformancePercentage *float64
	SleepConsistencyPercentage *float64
	SleepEfficiencyPercentage  *float64

	ProviderCreatedAt int64
	UpdatedAt         int64
	SyncedAt          int64
}

// SleepExistsTx reports whether a sleep with the given id exists
func (d *DB) SleepExistsTx(tx *sql.Tx, id int64) (bool, error) {
	var one int
	err := tx.QueryRow(`SELECT 1 FROM sleeps WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check sleep existence: %w", err)
	}
	return true, nil
}

// InsertSleepTx inserts a sleep, leaving any existing row with the same id
// untouched. Returns true if a row was inserted.
func (d *DB) InsertSleepTx(tx *sql.Tx, s *Sleep) (bool, error) {
	s.SyncedAt = time.Now().Unix()

	result, err := tx.Exec(`
		INSERT INTO sleeps (
			id, user_id, start, end, timezone_offset, nap, score_state, raw_json,
			total_in_bed_time_milli, total_awake_time_milli, total_no_data_time_milli,
			total_light_sleep_time_milli, total_slow_wave_sleep_time_milli,
			total_rem_sleep_time_milli, sleep_cycle_count, disturbance_count,
			baseline_milli, need_from_sleep_debt_milli,
			need_from_recent_strain_milli, need_from_recent_nap_milli,
			respiratory_rate, sleep_performance_percentage,
			sleep_consistency_percentage, sleep_efficiency_percentage,
			provider_created_at, updated_at, synced_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, s.ID, s.UserID, s.Start, s.End, s.TimezoneOffset, s.Nap, s.ScoreState, s.RawJSON,
		s.TotalInBedTimeMilli, s.TotalAwakeTimeMilli, s.TotalNoDataTimeMilli,
		s.TotalLightSleepTimeMilli, s.TotalSlowWaveSleepTimeMilli,
		s.TotalRemSleepTimeMilli, s.SleepCycleCount, s.DisturbanceCount,
		s.BaselineMilli, s.NeedFromSleepDebtMilli,
		s.NeedFromRecentStrainMilli, s.NeedFromRecentNapMilli,
		s.RespiratoryRate, s.SleepPerformancePercentage,
		s.SleepConsistencyPercentage, s.SleepEfficiencyPercentage,
		s.ProviderCreatedAt, s.UpdatedAt, s.SyncedAt)

	if err != nil {
		return false, fmt.Errorf("failed to insert sleep: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

// GetSleep retrieves a sleep by id. Returns nil if not found.
func (d *DB) GetSleep(id int64) (*Sleep, error) {
	var s Sleep
	err := d.conn.QueryRow(`
		SELECT id, user_id, start, end, timezone_offset, nap, score_state, raw_json,
		       total_in_bed_time_milli, total_awake_time_milli, total_no_data_time_milli,
		       total_light_sleep_time_milli, total_slow_wave_sleep_time_milli,
		       total_rem_sleep_time_milli, sleep_cycle_count, disturbance_count,
		       baseline_milli, need_from_sleep_debt_milli,
		       need_from_recent_strain_milli, need_from_recent_nap_milli,
		       respiratory_rate, sleep_performance_percentage,
		       sleep_consistency_percentage, sleep_efficiency_percentage,
		       provider_created_at, updated_at, synced_at
		FROM sleeps WHERE id = ?
	`, id).Scan(
		&s.ID, &s.UserID, &s.Start, &s.End, &s.TimezoneOffset, &s.Nap, &s.ScoreState, &s.RawJSON,
		&s.TotalInBedTimeMilli, &s.TotalAwakeTimeMilli, &s.TotalNoDataTimeMilli,
		&s.TotalLightSleepTimeMilli, &s.TotalSlowWaveSleepTimeMilli,
		&s.TotalRemSleepTimeMilli, &s.SleepCycleCount, &s.DisturbanceCount,
		&s.BaselineMilli, &s.NeedFromSleepDebtMilli,
		&s.NeedFromRecentStrainMilli, &s.NeedFromRecentNapMilli,
		&s.RespiratoryRate, &s.SleepPerformancePercentage,
		&s.SleepConsistencyPercentage, &s.SleepEfficiencyPercentage,
		&s.ProviderCreatedAt, &s.UpdatedAt, &s.SyncedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sleep: %w", err)
	}
	return &s, nil
}
