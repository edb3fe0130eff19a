// Package apperr defines the error taxonomy shared by the session and
// tenant-isolation layers. Callers wrap these sentinels with fmt.Errorf and
// test for them with errors.Is; the HTTP layer maps each one to a status.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrAuthentication covers missing, invalid or expired tokens and bad
	// credentials. The message shown to clients never says which.
	ErrAuthentication = errors.New("authentication failed")

	// ErrAuthorization covers role and tenant-scope violations.
	ErrAuthorization = errors.New("forbidden")

	// ErrReplayDetected classifies reuse of a consumed or unknown refresh
	// token. It is always returned together with ErrAuthentication.
	ErrReplayDetected = errors.New("refresh token replay detected")

	// ErrConfiguration marks a missing secret or otherwise unusable
	// environment.
	ErrConfiguration = errors.New("configuration error")

	// ErrReferenceLocked is returned when a write targets write-protected
	// reference data and no bypass is configured.
	ErrReferenceLocked = errors.New("reference data is locked")
)

// Unauthenticated wraps ErrAuthentication with an internal reason.
func Unauthenticated(reason string) error {
	return fmt.Errorf("%w: %s", ErrAuthentication, reason)
}

// Forbidden wraps ErrAuthorization with a reason safe to show the caller.
func Forbidden(reason string) error {
	return fmt.Errorf("%w: %s", ErrAuthorization, reason)
}

// Replay returns an error matching both ErrAuthentication and
// ErrReplayDetected.
func Replay(reason string) error {
	return fmt.Errorf("%w: %w: %s", ErrAuthentication, ErrReplayDetected, reason)
}

// HTTPStatus maps err onto a response status. Errors outside the taxonomy
// are 500.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrAuthentication):
		return http.StatusUnauthorized
	case errors.Is(err, ErrAuthorization):
		return http.StatusForbidden
	case errors.Is(err, ErrReferenceLocked):
		return http.StatusLocked
	}
	return http.StatusInternalServerError
}
