package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/campaign-session/internal/model"
	"github.com/iliyamo/campaign-session/internal/utils"
)

// RefreshStore is the refresh-token persistence the core needs
// (repository.TokenRepo). Rotate must revoke oldID only while it is still
// unrevoked and insert next in the same atomic step, returning
// repository.ErrAlreadyRevoked when the revoke matched nothing.
type RefreshStore interface {
	Create(ctx context.Context, t *model.RefreshToken) error
	FindByUserAndHash(ctx context.Context, userID, tokenHash string) (model.RefreshToken, error)
	Rotate(ctx context.Context, oldID string, at time.Time, next *model.RefreshToken) error
	RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int64, error)
	RevokeByHash(ctx context.Context, tokenHash string, at time.Time) (int64, error)
}

// Session is a freshly issued token pair. The raw strings are for the
// transport only and are never stored.
type Session struct {
	Principal model.Principal
	Access    utils.SignedToken
	Refresh   utils.SignedToken
}

// TokenIssuer mints access/refresh pairs and records the refresh hash.
type TokenIssuer struct {
	signer *utils.Signer
	tokens RefreshStore
}

func NewTokenIssuer(signer *utils.Signer, tokens RefreshStore) *TokenIssuer {
	return &TokenIssuer{signer: signer, tokens: tokens}
}

// Mint signs a new pair for p and returns the row that must be persisted
// before the pair is handed out. Nothing is written.
func (i *TokenIssuer) Mint(p model.Principal) (Session, *model.RefreshToken, error) {
	access, err := i.signer.SignAccess(p)
	if err != nil {
		return Session{}, nil, err
	}
	refresh, _, err := i.signer.SignRefresh(p)
	if err != nil {
		return Session{}, nil, err
	}
	row := &model.RefreshToken{
		ID:          uuid.NewString(),
		UserID:      p.ID,
		CandidateID: p.CandidateID,
		TokenHash:   utils.HashToken(refresh.Token),
		ExpiresAt:   refresh.Exp,
	}
	return Session{Principal: p, Access: access, Refresh: refresh}, row, nil
}

// Issue mints a pair for p and persists its refresh row. No pair is
// returned unless the row was written.
func (i *TokenIssuer) Issue(ctx context.Context, p model.Principal) (Session, error) {
	sess, row, err := i.Mint(p)
	if err != nil {
		return Session{}, err
	}
	if err := i.tokens.Create(ctx, row); err != nil {
		return Session{}, err
	}
	return sess, nil
}
