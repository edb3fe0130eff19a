package model

import "time"

// Severity grades a security event. Critical events signal a likely
// compromise (refresh-token replay).
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Actions recorded by the session layer.
const (
	ActionLoginSucceeded  = "auth.login.succeeded"
	ActionLoginFailed     = "auth.login.failed"
	ActionRefreshRotated  = "auth.refresh.rotated"
	ActionRefreshRejected = "auth.refresh.rejected"
	ActionRefreshExpired  = "auth.refresh.expired"
	ActionRefreshRaceLost = "auth.refresh.race_lost"
	ActionRefreshReplay   = "auth.refresh.replay"
	ActionRefreshUnknown  = "auth.refresh.unknown"
	ActionLogout          = "auth.logout"
	ActionAccessRejected  = "auth.access.rejected"
	ActionTenantMissing   = "auth.tenant.missing"
	ActionDeviceTrusted   = "auth.device.trusted"
	ActionDeviceRevoked   = "auth.device.revoked"
	ActionDeviceRejected  = "auth.device.rejected"
	ActionSessionsRevoked = "auth.sessions.revoked"
)

// Entity types referenced by security events.
const (
	EntityUser          = "user"
	EntityRefreshToken  = "refresh_token"
	EntityTrustedDevice = "trusted_device"
)

// SecurityEvent is one append-only audit entry. The session layer writes
// these and never reads them back.
type SecurityEvent struct {
	ID          string         `json:"id"`
	ActorUserID string         `json:"actorUserId,omitempty"` // empty when the actor is unknown
	Action      string         `json:"action"`
	Severity    Severity       `json:"severity"`
	EntityType  string         `json:"entityType"`
	EntityID    string         `json:"entityId,omitempty"`
	CandidateID string         `json:"candidateId,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
}
