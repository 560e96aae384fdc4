package oauth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"fitness-whoop-sync/internal/config"
	"fitness-whoop-sync/internal/database"
	"fitness-whoop-sync/internal/whoop"
)

// Scopes requested from WHOOP. "offline" is required to receive a refresh
// token; without it every access token expiry would force a reconnect.
const scope = "offline read:profile read:body_measurement read:workout read:sleep read:recovery read:cycles"

const stateTTL = 10 * time.Minute

// Manager handles the OAuth 2.0 authorization code flow with WHOOP
type Manager struct {
	config      *config.Config
	db          *database.DB
	whoopClient *whoop.Client
	logger      *slog.Logger
	states      *stateStore // CSRF protection
}

// stateStore tracks valid OAuth states for CSRF protection
type stateStore struct {
	mu     sync.RWMutex
	states map[string]time.Time
}

// NewManager creates a new OAuth manager
func NewManager(cfg *config.Config, db *database.DB, whoopClient *whoop.Client) *Manager {
	mgr := &Manager{
		config:      cfg,
		db:          db,
		whoopClient: whoopClient,
		logger:      slog.Default(),
		states: &stateStore{
			states: make(map[string]time.Time),
		},
	}

	// Start background cleanup of expired states
	go mgr.cleanupStates()

	return mgr
}

// GenerateAuthURL generates a WHOOP authorization URL with CSRF protection
func (m *Manager) GenerateAuthURL() (string, string, error) {
	state, err := generateRandomState()
	if err != nil {
		return "", "", fmt.Errorf("failed to generate state: %w", err)
	}

	m.states.mu.Lock()
	m.states.states[state] = time.Now().Add(stateTTL)
	m.states.mu.Unlock()

	params := url.Values{
		"client_id":     {m.config.WhoopClientID},
		"redirect_uri":  {m.config.WhoopRedirectURI},
		"response_type": {"code"},
		"scope":         {scope},
		"state":         {state},
	}

	authURL := fmt.Sprintf("%s?%s", m.config.WhoopAuthURL, params.Encode())

	m.logger.Info("Generated auth URL", "state", state)

	return authURL, state, nil
}

// HandleCallback processes the OAuth callback: validates the state, exchanges
// the code, resolves the WHOOP user id via the profile endpoint, stores the
// credential set and subject row, then enqueues a full sync.
// Returns the WHOOP user ID on success.
func (m *Manager) HandleCallback(ctx context.Context, code, state string) (int64, error) {
	if !m.validateState(state) {
		return 0, fmt.Errorf("invalid or expired state")
	}

	m.logger.Info("Handling OAuth callback", "code_length", len(code))

	tokenResp, err := m.whoopClient.ExchangeCode(ctx, code)
	if err != nil {
		return 0, fmt.Errorf("failed to exchange code: %w", err)
	}

	// The token response carries no user identity, so resolve it from the
	// profile endpoint with the fresh access token
	profileRaw, err := m.whoopClient.GetProfileWithToken(ctx, tokenResp.AccessToken)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch profile: %w", err)
	}

	subject, err := whoop.NormalizeSubject(profileRaw, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to parse profile: %w", err)
	}

	userID := subject.UserID

	m.logger.Info("Exchanged code for tokens", "user_id", userID)

	now := time.Now().Unix()
	conn := &database.OAuthConnection{
		UserID:         userID,
		Provider:       database.ProviderWhoop,
		ProviderUserID: userID,
		AccessToken:    tokenResp.AccessToken,
		RefreshToken:   tokenResp.RefreshToken,
		ExpiresAt:      now + tokenResp.ExpiresIn,
		Scope:          tokenResp.Scope,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := m.db.UpsertConnection(conn); err != nil {
		return 0, fmt.Errorf("failed to store connection: %w", err)
	}

	if err := m.db.UpsertSubject(subject); err != nil {
		return 0, fmt.Errorf("failed to store subject: %w", err)
	}

	m.logger.Info("Stored connection", "user_id", userID, "scope", tokenResp.Scope)

	// Enqueue sync job to trigger historical data sync
	if _, err := m.db.EnqueueSyncJob(userID, "sync_all"); err != nil {
		m.logger.Error("Failed to enqueue sync job", "error", err, "user_id", userID)
		// Don't fail the OAuth flow if sync enqueueing fails
	} else {
		m.logger.Info("Enqueued sync job", "user_id", userID, "job_type", "sync_all")
	}

	return userID, nil
}

// validateState checks if a state is valid and removes it (one-time use)
func (m *Manager) validateState(state string) bool {
	m.states.mu.Lock()
	defer m.states.mu.Unlock()

	for stored, expiry := range m.states.states {
		if subtle.ConstantTimeCompare([]byte(stored), []byte(state)) != 1 {
			continue
		}
		delete(m.states.states, stored)
		return !time.Now().After(expiry)
	}

	return false
}

// cleanupStates removes expired states every minute
func (m *Manager) cleanupStates() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		m.states.mu.Lock()
		now := time.Now()
		for state, expiry := range m.states.states {
			if now.After(expiry) {
				delete(m.states.states, state)
			}
		}
		m.states.mu.Unlock()
	}
}

// generateRandomState generates a cryptographically secure random state
func generateRandomState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
