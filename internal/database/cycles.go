package database

import (
	"database/sql"
	"fmt"
	"time"
)

// Cycle represents one physiological day
type Cycle struct {
	ID     int64
	UserID int64

	Start          int64  // Unix milliseconds
	End            *int64 // NULL while the cycle is ongoing
	TimezoneOffset string
	ScoreState     string
	RawJSON        string

	Strain           *float64
	Kilojoule        *float64
	AverageHeartRate *int64
	MaxHeartRate     *int64

	ProviderCreatedAt int64
	UpdatedAt         int64 // Unix milliseconds, provider watermark signal
	SyncedAt          int64
}

// CycleExistsTx reports whether a cycle with the given id exists
func (d *DB) CycleExistsTx(tx *sql.Tx, id int64) (bool, error) {
	var one int
	err := tx.QueryRow(`SELECT 1 FROM cycles WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check cycle existence: %w", err)
	}
	return true, nil
}

// InsertCycleTx inserts a cycle, leaving any existing row with the same id
// untouched. Returns true if a row was inserted.
func (d *DB) InsertCycleTx(tx *sql.Tx, c *Cycle) (bool, error) {
	c.SyncedAt = time.Now().Unix()

	result, err := tx.Exec(`
		INSERT INTO cycles (
			id, user_id, start, end, timezone_offset, score_state, raw_json,
			strain, kilojoule, average_heart_rate, max_heart_rate,
			provider_created_at, updated_at, synced_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, c.ID, c.UserID, c.Start, c.End, c.TimezoneOffset, c.ScoreState, c.RawJSON,
		c.Strain, c.Kilojoule, c.AverageHeartRate, c.MaxHeartRate,
		c.ProviderCreatedAt, c.UpdatedAt, c.SyncedAt)

	if err != nil {
		return false, fmt.Errorf("failed to insert cycle: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

// GetCycle retrieves a cycle by id. Returns nil if not found.
func (d *DB) GetCycle(id int64) (*Cycle, error) {
	var c Cycle
	err := d.conn.QueryRow(`
		SELECT id, user_id, start, end, timezone_offset, score_state, raw_json,
		       strain, kilojoule, average_heart_rate, max_heart_rate,
		       provider_created_at, updated_at, synced_at
		FROM cycles WHERE id = ?
	`, id).Scan(
		&c.ID, &c.UserID, &c.Start, &c.End, &c.TimezoneOffset, &c.ScoreState, &c.RawJSON,
		&c.Strain, &c.Kilojoule, &c.AverageHeartRate, &c.MaxHeartRate,
		&c.ProviderCreatedAt, &c.UpdatedAt, &c.SyncedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cycle: %w", err)
	}
	return &c, nil
}
