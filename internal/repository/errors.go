// Package repository holds the MySQL data access layer. The sentinel errors
// below let the service layer tell "no row" apart from storage failures.
package repository

import "errors"

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// ErrAlreadyRevoked is returned by Rotate when the conditional revoke
// matched no row: a concurrent rotation or logout consumed the token first.
var ErrAlreadyRevoked = errors.New("refresh token already revoked")

// ErrUnknownKind is returned for reference kinds outside the fixed set.
var ErrUnknownKind = errors.New("unknown reference kind")

// nullString maps the empty string to SQL NULL.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
