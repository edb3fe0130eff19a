package model

import "time"

// RefreshToken models a row in `refresh_tokens`. Only the SHA-256 hex digest
// of the signed token is stored. Once RevokedAt is set the row is inert for
// good: every UPDATE against this table carries `revoked_at IS NULL`.
type RefreshToken struct {
	ID          string     // refresh_tokens.id
	UserID      string     // refresh_tokens.user_id
	CandidateID string     // refresh_tokens.candidate_id (nullable)
	TokenHash   string     // refresh_tokens.token_hash
	ExpiresAt   time.Time  // refresh_tokens.expires_at
	RevokedAt   *time.Time // refresh_tokens.revoked_at
	CreatedAt   time.Time  // refresh_tokens.created_at
}

// Revoked reports whether the row has been consumed or revoked.
func (t RefreshToken) Revoked() bool { return t.RevokedAt != nil }

// Expired reports whether the row is past its expiry at now.
func (t RefreshToken) Expired(now time.Time) bool { return !now.Before(t.ExpiresAt) }

// TrustedDevice models a row in `trusted_devices`: an opaque long-lived
// token that lets a known browser skip the second verification step. Its
// lifecycle is independent of the refresh-token chain.
type TrustedDevice struct {
	ID         string
	UserID     string
	TokenHash  string
	Label      string
	ExpiresAt  time.Time
	RevokedAt  *time.Time
	LastUsedAt *time.Time
	CreatedAt  time.Time
}

// Usable reports whether the device token can still be honoured at now.
func (d TrustedDevice) Usable(now time.Time) bool {
	return d.RevokedAt == nil && now.Before(d.ExpiresAt)
}
