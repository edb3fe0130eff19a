package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/gommon/log"

	"github.com/iliyamo/campaign-session/internal/apperr"
	"github.com/iliyamo/campaign-session/internal/model"
	"github.com/iliyamo/campaign-session/internal/repository"
	"github.com/iliyamo/campaign-session/internal/utils"
)

// Outcome is the terminal action taken for a presented refresh token.
type Outcome string

const (
	OutcomeRotate           Outcome = "rotate"
	OutcomeReject           Outcome = "reject"
	OutcomeRejectAndLockout Outcome = "reject_and_lockout"
)

// Rotator exchanges a refresh token for a new pair. Each token can be
// exchanged at most once; presenting a consumed or unknown token revokes
// every live refresh token of its user.
type Rotator struct {
	signer *utils.Signer
	issuer *TokenIssuer
	tokens RefreshStore
	audit  *Auditor
	logger Logger
	now    func() time.Time
}

// RotatorOption configures a Rotator.
type RotatorOption func(*Rotator)

// WithRotatorClock overrides the time used for expiry checks and
// revocation timestamps.
func WithRotatorClock(now func() time.Time) RotatorOption {
	return func(r *Rotator) { r.now = now }
}

func NewRotator(signer *utils.Signer, issuer *TokenIssuer, tokens RefreshStore, audit *Auditor, logger Logger, opts ...RotatorOption) *Rotator {
	r := &Rotator{signer: signer, issuer: issuer, tokens: tokens, audit: audit, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rotate runs the refresh state machine for raw. On success the presented
// token is revoked and a new pair is returned. Every rejection is a plain
// authentication error; replay rejections additionally match
// apperr.ErrReplayDetected.
func (r *Rotator) Rotate(ctx context.Context, raw string) (Session, Outcome, error) {
	claims, err := r.signer.ParseRefresh(raw)
	if err != nil {
		if errors.Is(err, apperr.ErrConfiguration) {
			return Session{}, OutcomeReject, err
		}
		action, reason := model.ActionRefreshRejected, "invalid_token"
		if errors.Is(err, jwt.ErrTokenExpired) {
			action, reason = model.ActionRefreshExpired, "token_expired"
		}
		r.audit.Record(ctx, model.SecurityEvent{
			Action:     action,
			Severity:   model.SeverityInfo,
			EntityType: model.EntityRefreshToken,
			Metadata:   map[string]any{"reason": reason},
		})
		return Session{}, OutcomeReject, apperr.Unauthenticated(reason)
	}

	userID := claims.Subject
	row, err := r.tokens.FindByUserAndHash(ctx, userID, utils.HashToken(raw))
	switch {
	case errors.Is(err, repository.ErrNotFound):
		r.lockout(ctx, claims, "", model.ActionRefreshUnknown, "not_found")
		return Session{}, OutcomeRejectAndLockout, apperr.Replay("refresh token unknown")
	case err != nil:
		return Session{}, OutcomeReject, fmt.Errorf("loading refresh token: %w", err)
	}

	now := r.now().UTC()
	if row.Revoked() {
		r.lockout(ctx, claims, row.ID, model.ActionRefreshReplay, "revoked")
		return Session{}, OutcomeRejectAndLockout, apperr.Replay("refresh token reused")
	}
	if row.Expired(now) {
		r.audit.Record(ctx, model.SecurityEvent{
			ActorUserID: userID,
			Action:      model.ActionRefreshExpired,
			Severity:    model.SeverityInfo,
			EntityType:  model.EntityRefreshToken,
			EntityID:    row.ID,
			CandidateID: row.CandidateID,
			Metadata:    map[string]any{"reason": "row_expired"},
		})
		return Session{}, OutcomeReject, apperr.Unauthenticated("refresh token expired")
	}

	sess, next, err := r.issuer.Mint(claims.Principal())
	if err != nil {
		return Session{}, OutcomeReject, err
	}
	err = r.tokens.Rotate(ctx, row.ID, now, next)
	if errors.Is(err, repository.ErrAlreadyRevoked) {
		r.audit.Record(ctx, model.SecurityEvent{
			ActorUserID: userID,
			Action:      model.ActionRefreshRaceLost,
			Severity:    model.SeverityWarning,
			EntityType:  model.EntityRefreshToken,
			EntityID:    row.ID,
			CandidateID: row.CandidateID,
		})
		return Session{}, OutcomeReject, apperr.Unauthenticated("refresh token already consumed")
	}
	if err != nil {
		return Session{}, OutcomeReject, fmt.Errorf("rotating refresh token: %w", err)
	}

	r.audit.Record(ctx, model.SecurityEvent{
		ActorUserID: userID,
		Action:      model.ActionRefreshRotated,
		Severity:    model.SeverityInfo,
		EntityType:  model.EntityRefreshToken,
		EntityID:    next.ID,
		CandidateID: next.CandidateID,
		Metadata:    map[string]any{"previous_id": row.ID},
	})
	return sess, OutcomeRotate, nil
}

// lockout records the replay and then revokes every live refresh token of
// the user. The revocation runs even if the request is cancelled.
func (r *Rotator) lockout(ctx context.Context, claims *utils.Claims, rowID, action, reason string) {
	userID := claims.Subject
	r.audit.Record(ctx, model.SecurityEvent{
		ActorUserID: userID,
		Action:      action,
		Severity:    model.SeverityCritical,
		EntityType:  model.EntityRefreshToken,
		EntityID:    rowID,
		CandidateID: claims.CandidateID,
		Metadata:    map[string]any{"reason": reason, "jti": claims.ID},
	})

	n, err := r.tokens.RevokeAllForUser(context.WithoutCancel(ctx), userID, r.now().UTC())
	if err != nil {
		r.logger.Errorj(log.JSON{"event": "mass_revocation_failed", "user_id": userID, "error": err.Error()})
		return
	}
	r.audit.Record(ctx, model.SecurityEvent{
		ActorUserID: userID,
		Action:      model.ActionSessionsRevoked,
		Severity:    model.SeverityWarning,
		EntityType:  model.EntityUser,
		EntityID:    userID,
		CandidateID: claims.CandidateID,
		Metadata:    map[string]any{"revoked_count": n, "trigger": action},
	})
}
