package whoop

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"fitness-whoop-sync/internal/config"
	"fitness-whoop-sync/internal/database"
	"fitness-whoop-sync/internal/metrics"
)

const (
	requestTimeout = 10 * time.Second
	maxRetries     = 3
	initialDelay   = 1 * time.Second
	maxDelay       = 30 * time.Second

	// Refresh tokens with less than this remaining lifetime to avoid races
	// with in-flight requests
	tokenRefreshMargin = 60 * time.Second
)

// TokenStore persists OAuth credential sets. Implemented by *database.DB.
type TokenStore interface {
	GetConnection(userID int64, provider string) (*database.OAuthConnection, error)
	UpdateConnectionTokens(userID int64, provider, accessToken, refreshToken string, expiresAt int64) error
}

// Client is a WHOOP API client. All resource requests go through CurrentToken
// so callers never read access tokens from storage directly.
type Client struct {
	httpClient *http.Client
	cfg        *config.Config
	store      TokenStore
	logger     *slog.Logger

	retryBaseDelay time.Duration

	// Per-subject refresh locks: two concurrent refreshes for the same user
	// would invalidate each other's access token
	mu        sync.Mutex
	userLocks map[int64]*sync.Mutex
}

// NewClient creates a new WHOOP API client
func NewClient(cfg *config.Config, store TokenStore) *Client {
	return &Client{
		httpClient:     &http.Client{Timeout: requestTimeout},
		cfg:            cfg,
		store:          store,
		logger:         slog.Default(),
		retryBaseDelay: initialDelay,
		userLocks:      make(map[int64]*sync.Mutex),
	}
}

func (c *Client) userLock(userID int64) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()

	lock, ok := c.userLocks[userID]
	if !ok {
		lock = &sync.Mutex{}
		c.userLocks[userID] = lock
	}
	return lock
}

// ExchangeCode exchanges an authorization code for a token set
func (c *Client) ExchangeCode(ctx context.Context, code string) (*TokenResponse, error) {
	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {c.cfg.WhoopRedirectURI},
		"client_id":     {c.cfg.WhoopClientID},
		"client_secret": {c.cfg.WhoopClientSecret},
	}
	return c.tokenRequest(ctx, "exchange", metrics.OpExchangeCode, form)
}

// RefreshAccessToken obtains a fresh token set using a refresh token.
// No retry is performed: a transient failure surfaces immediately and the
// caller decides whether to retry the whole sync pass.
func (c *Client) RefreshAccessToken(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {c.cfg.WhoopClientID},
		"client_secret": {c.cfg.WhoopClientSecret},
	}
	return c.tokenRequest(ctx, "refresh", metrics.OpRefreshToken, form)
}

func (c *Client) tokenRequest(ctx context.Context, op, metricOp string, form url.Values) (*TokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.WhoopTokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		c.logger.Error("token request failed", "op", op, "error", err, "duration_ms", duration.Milliseconds())
		metrics.WhoopAPIRequestsTotal.WithLabelValues(metricOp, "0").Inc()
		return nil, &OAuthError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	statusStr := strconv.Itoa(resp.StatusCode)
	metrics.WhoopAPIRequestsTotal.WithLabelValues(metricOp, statusStr).Inc()
	metrics.WhoopAPIRequestDuration.WithLabelValues(metricOp, statusStr).Observe(duration.Seconds())

	c.logger.Info("whoop_token_request", "op", op, "status", resp.StatusCode, "duration_ms", duration.Milliseconds())

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, &OAuthError{Op: op, StatusCode: resp.StatusCode, Body: string(bodyBytes)}
	}

	var tokenResp TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return nil, &OAuthError{Op: op, Err: fmt.Errorf("failed to decode response: %w", err)}
	}

	return &tokenResp, nil
}

// CurrentToken returns a usable access token for the user, refreshing and
// persisting a new token set first if the stored one is expired or close to
// expiry. This is the single chokepoint every API call goes through.
func (c *Client) CurrentToken(ctx context.Context, userID int64) (string, error) {
	lock := c.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	conn, err := c.store.GetConnection(userID, database.ProviderWhoop)
	if err != nil {
		return "", err
	}
	if conn == nil {
		return "", fmt.Errorf("%w: user %d", ErrNoConnection, userID)
	}

	if time.Until(time.Unix(conn.ExpiresAt, 0)) > tokenRefreshMargin {
		return conn.AccessToken, nil
	}

	c.logger.Info("refreshing whoop token", "user_id", userID)

	tokenResp, err := c.RefreshAccessToken(ctx, conn.RefreshToken)
	if err != nil {
		metrics.TokenRefreshesTotal.WithLabelValues(metrics.ResultFailure).Inc()
		return "", err
	}

	expiresAt := time.Now().Unix() + tokenResp.ExpiresIn
	if err := c.store.UpdateConnectionTokens(userID, database.ProviderWhoop, tokenResp.AccessToken, tokenResp.RefreshToken, expiresAt); err != nil {
		metrics.TokenRefreshesTotal.WithLabelValues(metrics.ResultFailure).Inc()
		return "", fmt.Errorf("failed to persist refreshed tokens: %w", err)
	}

	metrics.TokenRefreshesTotal.WithLabelValues(metrics.ResultSuccess).Inc()

	return tokenResp.AccessToken, nil
}

// Get issues a single authenticated request against a resource endpoint.
// 429 and 5xx responses are retried a bounded number of times with backoff,
// honoring Retry-After; other non-2xx responses fail immediately.
func (c *Client) Get(ctx context.Context, userID int64, operation, path string, params url.Values) (json.RawMessage, error) {
	token, err := c.CurrentToken(ctx, userID)
	if err != nil {
		return nil, err
	}
	return c.getWithToken(ctx, token, userID, operation, path, params)
}

func (c *Client) getWithToken(ctx context.Context, token string, userID int64, operation, path string, params url.Values) (json.RawMessage, error) {
	reqURL := c.cfg.WhoopAPIBaseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	var lastErr error
	delay := c.retryBaseDelay

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Info("retrying request", "operation", operation, "attempt", attempt, "delay_ms", delay.Milliseconds())
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay = min(delay*2, maxDelay)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		duration := time.Since(start)

		if err != nil {
			lastErr = &TransportError{Err: err}
			metrics.WhoopAPIRequestsTotal.WithLabelValues(operation, "0").Inc()
			c.logger.Error("request failed", "operation", operation, "error", err, "attempt", attempt)
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		statusStr := strconv.Itoa(resp.StatusCode)
		metrics.WhoopAPIRequestsTotal.WithLabelValues(operation, statusStr).Inc()
		metrics.WhoopAPIRequestDuration.WithLabelValues(operation, statusStr).Observe(duration.Seconds())

		c.logger.Info("whoop_api_request",
			"operation", operation,
			"status", resp.StatusCode,
			"duration_ms", duration.Milliseconds(),
			"user_id", userID)

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			if readErr != nil {
				return nil, &TransportError{Err: readErr}
			}
			return body, nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			lastErr = &APIError{StatusCode: resp.StatusCode, Body: string(body)}
			if retryAfter := parseRetryAfter(resp.Header); retryAfter > 0 {
				delay = retryAfter
			}
			continue
		default:
			return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// paginatedResponse is the WHOOP collection envelope
type paginatedResponse struct {
	Records   []json.RawMessage `json:"records"`
	NextToken *string           `json:"next_token"`
}

// GetPaginated fetches every page of a collection endpoint by following
// next_token continuation cursors until exhausted, returning the in-order
// concatenation of all pages' records. The context is checked between page
// fetches so a long pagination loop can be cancelled.
func (c *Client) GetPaginated(ctx context.Context, userID int64, operation, path string, params url.Values) ([]json.RawMessage, error) {
	pageParams := url.Values{}
	for k, v := range params {
		pageParams[k] = v
	}

	var records []json.RawMessage
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		body, err := c.Get(ctx, userID, operation, path, pageParams)
		if err != nil {
			return nil, err
		}

		var page paginatedResponse
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, &PayloadError{Kind: "collection", Err: err}
		}

		records = append(records, page.Records...)

		if page.NextToken == nil || *page.NextToken == "" {
			break
		}
		pageParams.Set("nextToken", *page.NextToken)
	}

	return records, nil
}

// parseRetryAfter extracts retry delay from Retry-After header
func parseRetryAfter(headers http.Header) time.Duration {
	retryAfter := headers.Get("Retry-After")
	if retryAfter == "" {
		return 0
	}

	seconds, err := strconv.Atoi(retryAfter)
	if err != nil {
		return 0
	}

	return time.Duration(seconds) * time.Second
}

// FormatTimestamp formats a time the way WHOOP date-range filters expect:
// UTC with millisecond precision and a literal trailing Z
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// GetProfile fetches the user's basic profile
func (c *Client) GetProfile(ctx context.Context, userID int64) (json.RawMessage, error) {
	return c.Get(ctx, userID, metrics.OpGetProfile, "/v1/user/profile/basic", nil)
}

// GetProfileWithToken fetches the profile using an explicit access token.
// Used during the OAuth callback, before a connection row exists for the user.
func (c *Client) GetProfileWithToken(ctx context.Context, accessToken string) (json.RawMessage, error) {
	return c.getWithToken(ctx, accessToken, 0, metrics.OpGetProfile, "/v1/user/profile/basic", nil)
}

// GetBodyMeasurement fetches the user's body measurements
func (c *Client) GetBodyMeasurement(ctx context.Context, userID int64) (json.RawMessage, error) {
	return c.Get(ctx, userID, metrics.OpGetBodyMeasurement, "/v1/user/measurement/body", nil)
}

// ListCycles fetches all cycles in the optional date range, oldest filter
// first. Both bounds absent means full history.
func (c *Client) ListCycles(ctx context.Context, userID int64, start, end *time.Time) ([]json.RawMessage, error) {
	return c.listCollection(ctx, userID, metrics.OpListCycles, "/v1/cycle", start, end)
}

// ListRecoveries fetches all recoveries in the optional date range
func (c *Client) ListRecoveries(ctx context.Context, userID int64, start, end *time.Time) ([]json.RawMessage, error) {
	return c.listCollection(ctx, userID, metrics.OpListRecoveries, "/v1/recovery", start, end)
}

// ListSleeps fetches all sleeps in the optional date range
func (c *Client) ListSleeps(ctx context.Context, userID int64, start, end *time.Time) ([]json.RawMessage, error) {
	return c.listCollection(ctx, userID, metrics.OpListSleeps, "/v1/activity/sleep", start, end)
}

// ListWorkouts fetches all workouts in the optional date range
func (c *Client) ListWorkouts(ctx context.Context, userID int64, start, end *time.Time) ([]json.RawMessage, error) {
	return c.listCollection(ctx, userID, metrics.OpListWorkouts, "/v1/activity/workout", start, end)
}

func (c *Client) listCollection(ctx context.Context, userID int64, operation, path string, start, end *time.Time) ([]json.RawMessage, error) {
	params := url.Values{}
	if start != nil {
		params.Set("start", FormatTimestamp(*start))
	}
	if end != nil {
		params.Set("end", FormatTimestamp(*end))
	}
	return c.GetPaginated(ctx, userID, operation, path, params)
}
