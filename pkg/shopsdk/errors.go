package shopsdk

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrStateNotFound is returned by a TokenStore that holds no record yet.
	ErrStateNotFound = errors.New("shopsdk: token state not found")

	// ErrShopConflict is returned when both a shop cipher and a shop id are
	// configured. The platform accepts exactly one of them per call.
	ErrShopConflict = errors.New("shopsdk: shop_cipher and shop_id are mutually exclusive")
)

// ============================================================================
// Credential errors
// ============================================================================

// MissingCredentialsError is returned when a call cannot start because
// required credentials are absent: the app key/secret, the shop identifier, or
// both the access token and the refresh token.
type MissingCredentialsError struct {
	// Missing names the absent credentials, e.g. ["access_token", "refresh_token"].
	Missing []string
}

// Error implements the error interface.
func (e *MissingCredentialsError) Error() string {
	return fmt.Sprintf("shopsdk: missing credentials: %s", strings.Join(e.Missing, ", "))
}

// MissingRefreshTokenError is returned when a refresh is needed but no refresh
// token is held. The shop has to be re-authorized.
type MissingRefreshTokenError struct{}

// Error implements the error interface.
func (e *MissingRefreshTokenError) Error() string {
	return "shopsdk: no refresh token available, re-authorize the shop"
}

// ============================================================================
// Refresh errors
// ============================================================================

// RefreshHTTPError is returned when the token endpoint answers with a non-2xx
// status.
type RefreshHTTPError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *RefreshHTTPError) Error() string {
	return fmt.Sprintf("shopsdk: token refresh failed with status %d: %s", e.StatusCode, e.Body)
}

// RefreshPayloadError is returned when the token endpoint answers 2xx but the
// payload carries no access token.
type RefreshPayloadError struct {
	Body string
}

// Error implements the error interface.
func (e *RefreshPayloadError) Error() string {
	return fmt.Sprintf("shopsdk: token refresh returned no access_token: %s", e.Body)
}

// ============================================================================
// Request errors
// ============================================================================

// RequestFailedError is returned when a signed call is rejected for a reason
// other than token expiry, or when the single retry after a refresh also
// fails. Signature mismatches surface here too.
type RequestFailedError struct {
	StatusCode int
	Body       string

	// Code and Message are taken from the platform envelope when the body is
	// JSON; otherwise they are zero.
	Code    int
	Message string

	// Retried reports whether the failure came from the post-refresh retry.
	Retried bool
}

// Error implements the error interface.
func (e *RequestFailedError) Error() string {
	prefix := "shopsdk: request failed"
	if e.Retried {
		prefix = "shopsdk: retry after refresh failed"
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: HTTP %d code %d: %s", prefix, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", prefix, e.StatusCode, e.Body)
}
