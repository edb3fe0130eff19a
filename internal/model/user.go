package model

import "time"

// Role is the authorization tier stored on a user row and carried in tokens.
type Role string

const (
	// RoleSuperAdmin is the only globally scoped role; it has no candidate.
	RoleSuperAdmin Role = "SUPER_ADMIN"
	// RoleAdmin manages one candidate's campaign.
	RoleAdmin Role = "ADMIN"
	// RoleSubUser is a campaign worker confined to one candidate.
	RoleSubUser Role = "SUB_USER"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleAdmin, RoleSubUser:
		return true
	}
	return false
}

// IsGlobal reports whether the role may act without a tenant scope.
func (r Role) IsGlobal() bool { return r == RoleSuperAdmin }

// User mirrors the `users` table. Profile and admin operations own the row;
// the session layer only reads it.
//
// CandidateID is the tenant the user belongs to. An empty string stands for
// SQL NULL and is only legitimate for SUPER_ADMIN.
type User struct {
	ID           string    // users.id (UUID)
	Username     string    // users.username
	PasswordHash string    // users.password_hash (argon2id PHC or legacy bcrypt)
	Role         Role      // users.role
	CandidateID  string    // users.candidate_id (nullable)
	MFAEnabled   bool      // users.mfa_enabled
	IsActive     bool      // users.is_active
	CreatedAt    time.Time // users.created_at
	UpdatedAt    time.Time // users.updated_at
}

// Principal is the minimal identity carried through a request once
// credentials or an access token have been verified.
type Principal struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Role        Role   `json:"role"`
	CandidateID string `json:"candidateId,omitempty"`
	MFAEnabled  bool   `json:"mfaEnabled"`
}

// Principal returns the claims view of u.
func (u User) Principal() Principal {
	return Principal{
		ID:          u.ID,
		Username:    u.Username,
		Role:        u.Role,
		CandidateID: u.CandidateID,
		MFAEnabled:  u.MFAEnabled,
	}
}
