package whoop

import (
	"errors"
	"fmt"
	"net/http"
)

// OAuthError indicates a failed token exchange or refresh
type OAuthError struct {
	Op         string // "exchange" or "refresh"
	StatusCode int    // 0 for transport failures
	Body       string
	Err        error
}

func (e *OAuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("oauth %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("oauth %s failed with status %d: %s", e.Op, e.StatusCode, e.Body)
}

func (e *OAuthError) Unwrap() error { return e.Err }

// APIError indicates a non-2xx response from a WHOOP resource endpoint
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("whoop api request failed with status %d: %s", e.StatusCode, e.Body)
}

// TransportError indicates a network failure or timeout before a response
// was received
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("whoop api transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// PayloadError indicates a provider record that violates the expected schema
type PayloadError struct {
	Kind  string
	Field string // required field that was absent, empty when Err is set
	Err   error  // decode or parse failure, nil for a missing field
}

func (e *PayloadError) Error() string {
	if e.Err != nil {
		if e.Field != "" {
			return fmt.Sprintf("malformed %s payload: field %q: %v", e.Kind, e.Field, e.Err)
		}
		return fmt.Sprintf("malformed %s payload: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("malformed %s payload: missing required field %q", e.Kind, e.Field)
}

func (e *PayloadError) Unwrap() error { return e.Err }

// ErrNoConnection is returned when a user has no stored WHOOP connection
var ErrNoConnection = errors.New("no whoop connection for user")

// IsCredentialError reports whether err means the stored credentials are
// invalid or revoked and re-authorization is required. Such errors are never
// retried automatically.
func IsCredentialError(err error) bool {
	if errors.Is(err, ErrNoConnection) {
		return true
	}
	var oauthErr *OAuthError
	if errors.As(err, &oauthErr) {
		// Transport failures and token endpoint outages are transient;
		// only a 4xx means the grant itself was rejected
		return oauthErr.StatusCode >= 400 && oauthErr.StatusCode < 500
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusUnauthorized
	}
	return false
}
