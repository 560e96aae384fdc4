package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"fitness-whoop-sync/internal/metrics"
)

// ProviderWhoop is the provider discriminator for WHOOP connections
const ProviderWhoop = "whoop"

// OAuthConnection holds the stored credential set for one (user, provider) pair
type OAuthConnection struct {
	UserID         int64
	Provider       string
	ProviderUserID int64
	AccessToken    string
	RefreshToken   string
	ExpiresAt      int64 // Unix seconds
	Scope          string
	CreatedAt      int64
	UpdatedAt      int64
}

// UpsertConnection inserts or replaces the credential set for a (user, provider) pair
func (d *DB) UpsertConnection(c *OAuthConnection) error {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpUpsertConnection))
	defer timer.ObserveDuration()

	now := time.Now().Unix()

	_, err := d.conn.Exec(`
		INSERT INTO oauth_connections (
			user_id, provider, provider_user_id,
			access_token, refresh_token, expires_at, scope,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, provider) DO UPDATE SET
			provider_user_id = excluded.provider_user_id,
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			scope = excluded.scope,
			updated_at = excluded.updated_at
	`, c.UserID, c.Provider, c.ProviderUserID,
		c.AccessToken, c.RefreshToken, c.ExpiresAt, c.Scope,
		now, now)

	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpUpsertConnection).Inc()
		return fmt.Errorf("failed to upsert connection: %w", err)
	}
	return nil
}

// GetConnection retrieves the credential set for a (user, provider) pair.
// Returns nil if no connection exists.
func (d *DB) GetConnection(userID int64, provider string) (*OAuthConnection, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpGetConnection))
	defer timer.ObserveDuration()

	var c OAuthConnection
	err := d.conn.QueryRow(`
		SELECT user_id, provider, provider_user_id,
		       access_token, refresh_token, expires_at, scope,
		       created_at, updated_at
		FROM oauth_connections WHERE user_id = ? AND provider = ?
	`, userID, provider).Scan(
		&c.UserID, &c.Provider, &c.ProviderUserID,
		&c.AccessToken, &c.RefreshToken, &c.ExpiresAt, &c.Scope,
		&c.CreatedAt, &c.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpGetConnection).Inc()
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	return &c, nil
}

// ListConnections returns every stored connection ordered by user id
func (d *DB) ListConnections() ([]*OAuthConnection, error) {
	rows, err := d.conn.Query(`
		SELECT user_id, provider, provider_user_id,
		       access_token, refresh_token, expires_at, scope,
		       created_at, updated_at
		FROM oauth_connections ORDER BY user_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	defer rows.Close()

	var conns []*OAuthConnection
	for rows.Next() {
		var c OAuthConnection
		if err := rows.Scan(
			&c.UserID, &c.Provider, &c.ProviderUserID,
			&c.AccessToken, &c.RefreshToken, &c.ExpiresAt, &c.Scope,
			&c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}
		conns = append(conns, &c)
	}
	return conns, rows.Err()
}

// UpdateConnectionTokens replaces the token set after a refresh
func (d *DB) UpdateConnectionTokens(userID int64, provider, accessToken, refreshToken string, expiresAt int64) error {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpUpdateTokens))
	defer timer.ObserveDuration()

	result, err := d.conn.Exec(`
		UPDATE oauth_connections
		SET access_token = ?, refresh_token = ?, expires_at = ?, updated_at = ?
		WHERE user_id = ? AND provider = ?
	`, accessToken, refreshToken, expiresAt, time.Now().Unix(), userID, provider)

	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpUpdateTokens).Inc()
		return fmt.Errorf("failed to update connection tokens: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("connection not found")
	}

	return nil
}
