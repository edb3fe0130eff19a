package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/iliyamo/campaign-session/internal/apperr"
	"github.com/iliyamo/campaign-session/internal/model"
	"github.com/iliyamo/campaign-session/internal/repository"
	"github.com/iliyamo/campaign-session/internal/utils"
)

// UserStore looks principals up (repository.UserRepo).
type UserStore interface {
	GetByUsername(ctx context.Context, username string) (model.User, error)
	GetByID(ctx context.Context, id string) (model.User, error)
}

// errInvalidCredentials is the only failure callers of Verify ever see.
var errInvalidCredentials = apperr.Unauthenticated("invalid credentials")

// CredentialVerifier checks an identifier and secret against the user
// store.
type CredentialVerifier struct {
	users UserStore
	audit *Auditor
}

func NewCredentialVerifier(users UserStore, audit *Auditor) *CredentialVerifier {
	return &CredentialVerifier{users: users, audit: audit}
}

// Verify returns the principal for valid credentials. An unknown user, a
// wrong secret and a deactivated account all fail with the same error
// after a password-hash computation of similar cost; the reason is only
// written to the audit trail. Success is not audited here.
func (v *CredentialVerifier) Verify(ctx context.Context, identifier, secret string) (model.Principal, error) {
	identifier = strings.ToLower(strings.TrimSpace(identifier))
	if identifier == "" || secret == "" {
		utils.BurnPasswordCheck(secret)
		v.fail(ctx, "", identifier, "missing_credentials")
		return model.Principal{}, errInvalidCredentials
	}

	u, err := v.users.GetByUsername(ctx, identifier)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			utils.BurnPasswordCheck(secret)
			v.fail(ctx, "", identifier, "not_found")
			return model.Principal{}, errInvalidCredentials
		}
		return model.Principal{}, fmt.Errorf("looking up user: %w", err)
	}

	if !utils.VerifyPassword(u.PasswordHash, secret) {
		v.fail(ctx, u.ID, identifier, "bad_secret")
		return model.Principal{}, errInvalidCredentials
	}
	if !u.IsActive {
		v.fail(ctx, u.ID, identifier, "inactive")
		return model.Principal{}, errInvalidCredentials
	}
	return u.Principal(), nil
}

func (v *CredentialVerifier) fail(ctx context.Context, userID, identifier, reason string) {
	v.audit.Record(ctx, model.SecurityEvent{
		ActorUserID: userID,
		Action:      model.ActionLoginFailed,
		Severity:    model.SeverityWarning,
		EntityType:  model.EntityUser,
		EntityID:    userID,
		Metadata:    map[string]any{"reason": reason, "identifier": identifier},
	})
}
