package service

import (
	"context"
	"errors"
	"time"

	"github.com/labstack/gommon/log"

	"github.com/iliyamo/campaign-session/internal/apperr"
	"github.com/iliyamo/campaign-session/internal/model"
	"github.com/iliyamo/campaign-session/internal/repository"
	"github.com/iliyamo/campaign-session/internal/utils"
)

// LoginResult is a new session plus whether the caller still has to pass
// the second verification step.
type LoginResult struct {
	Session
	MFARequired bool
}

// SessionService is the entry point used by the HTTP layer for login,
// refresh, logout and "who am I".
type SessionService struct {
	verifier *CredentialVerifier
	issuer   *TokenIssuer
	rotator  *Rotator
	devices  *TrustedDeviceManager
	signer   *utils.Signer
	tokens   RefreshStore
	users    UserStore
	audit    *Auditor
	logger   Logger
	now      func() time.Time
}

// SessionDeps bundles the collaborators of a SessionService.
type SessionDeps struct {
	Signer  *utils.Signer
	Users   UserStore
	Tokens  RefreshStore
	Devices DeviceStore
	Audit   *Auditor
	Logger  Logger

	DeviceTTL time.Duration
	Now       func() time.Time // defaults to time.Now
}

// NewSessionService wires the verifier, issuer, rotator and device manager
// over deps.
func NewSessionService(deps SessionDeps) *SessionService {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	issuer := NewTokenIssuer(deps.Signer, deps.Tokens)
	return &SessionService{
		verifier: NewCredentialVerifier(deps.Users, deps.Audit),
		issuer:   issuer,
		rotator:  NewRotator(deps.Signer, issuer, deps.Tokens, deps.Audit, deps.Logger, WithRotatorClock(now)),
		devices:  NewTrustedDeviceManager(deps.Devices, deps.DeviceTTL, deps.Audit, WithDeviceClock(now)),
		signer:   deps.Signer,
		tokens:   deps.Tokens,
		users:    deps.Users,
		audit:    deps.Audit,
		logger:   deps.Logger,
		now:      now,
	}
}

// Devices exposes the trusted-device manager.
func (s *SessionService) Devices() *TrustedDeviceManager { return s.devices }

// Signer exposes the token signer for access-token verification.
func (s *SessionService) Signer() *utils.Signer { return s.signer }

// Login verifies credentials and issues a session. deviceToken is the
// trusted-device cookie, if any; it only affects MFARequired. The session
// is issued in full even when MFARequired is set: the flag tells the client
// to run the second step, and nothing in this package enforces it.
func (s *SessionService) Login(ctx context.Context, identifier, secret, deviceToken string) (LoginResult, error) {
	p, err := s.verifier.Verify(ctx, identifier, secret)
	if err != nil {
		return LoginResult{}, err
	}
	sess, err := s.issuer.Issue(ctx, p)
	if err != nil {
		return LoginResult{}, err
	}

	mfa := false
	if p.MFAEnabled {
		trusted, err := s.devices.Validate(ctx, p.ID, deviceToken)
		if err != nil {
			s.logger.Warnj(log.JSON{"event": "trusted_device_check_failed", "user_id": p.ID, "error": err.Error()})
		}
		mfa = !trusted
	}

	s.audit.Record(ctx, model.SecurityEvent{
		ActorUserID: p.ID,
		Action:      model.ActionLoginSucceeded,
		Severity:    model.SeverityInfo,
		EntityType:  model.EntityUser,
		EntityID:    p.ID,
		CandidateID: p.CandidateID,
		Metadata:    map[string]any{"mfa_required": mfa},
	})
	return LoginResult{Session: sess, MFARequired: mfa}, nil
}

// Refresh exchanges a refresh token for a new pair.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	sess, _, err := s.rotator.Rotate(ctx, refreshToken)
	return sess, err
}

// Logout revokes the presented refresh token and trusted-device token.
// It never fails: lookup or storage errors are logged and the caller
// proceeds to clear its cookies.
func (s *SessionService) Logout(ctx context.Context, refreshToken, deviceToken string) {
	ctx = context.WithoutCancel(ctx)
	now := s.now().UTC()
	md := map[string]any{}
	var actor, candidate string

	if refreshToken != "" {
		// The signature is checked only to attribute the event.
		if claims, err := s.signer.ParseRefresh(refreshToken); err == nil {
			actor, candidate = claims.Subject, claims.CandidateID
		}
		n, err := s.tokens.RevokeByHash(ctx, utils.HashToken(refreshToken), now)
		if err != nil {
			s.logger.Errorj(log.JSON{"event": "logout_revoke_failed", "kind": "refresh", "error": err.Error()})
		}
		md["refresh_revoked"] = n > 0
	}
	if deviceToken != "" {
		ok, err := s.devices.Revoke(ctx, deviceToken)
		if err != nil {
			s.logger.Errorj(log.JSON{"event": "logout_revoke_failed", "kind": "device", "error": err.Error()})
		}
		md["device_revoked"] = ok
	}

	s.audit.Record(ctx, model.SecurityEvent{
		ActorUserID: actor,
		Action:      model.ActionLogout,
		Severity:    model.SeverityInfo,
		EntityType:  model.EntityRefreshToken,
		CandidateID: candidate,
		Metadata:    md,
	})
}

// Me returns the current view of the authenticated principal. A user that
// was removed or deactivated after the access token was issued is treated
// as unauthenticated.
func (s *SessionService) Me(ctx context.Context, p *model.Principal) (model.Principal, error) {
	if p == nil {
		return model.Principal{}, apperr.Unauthenticated("no principal")
	}
	u, err := s.users.GetByID(ctx, p.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Principal{}, apperr.Unauthenticated("principal no longer exists")
	}
	if err != nil {
		return model.Principal{}, err
	}
	if !u.IsActive {
		return model.Principal{}, apperr.Unauthenticated("principal inactive")
	}
	return u.Principal(), nil
}
