package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/campaign-session/internal/model"
)

// TokenRepo persists refresh-token metadata. Rows are keyed by the SHA-256
// digest of the signed token; the raw token is never stored. No statement
// in this file clears revoked_at, and every revoking UPDATE is guarded by
// `revoked_at IS NULL` so the first revocation time sticks.
type TokenRepo struct{ DB *sql.DB }

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{DB: db} }

const insertRefreshSQL = "INSERT INTO refresh_tokens (id, user_id, candidate_id, token_hash, expires_at, created_at) VALUES (?,?,?,?,?,?)"

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Create inserts a refresh token row. ID and CreatedAt are filled in when
// empty.
func (r *TokenRepo) Create(ctx context.Context, t *model.RefreshToken) error {
	return insertRefresh(ctx, r.DB, t)
}

func insertRefresh(ctx context.Context, db execer, t *model.RefreshToken) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	_, err := db.ExecContext(ctx, insertRefreshSQL,
		t.ID, t.UserID, nullString(t.CandidateID), t.TokenHash, t.ExpiresAt.UTC(), t.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("creating refresh token: %w", err)
	}
	return nil
}

// FindByUserAndHash returns the row for (userID, tokenHash) whatever its
// state. ErrNotFound means the token was never issued to this user or its
// row has been purged.
func (r *TokenRepo) FindByUserAndHash(ctx context.Context, userID, tokenHash string) (model.RefreshToken, error) {
	var (
		t         model.RefreshToken
		candidate sql.NullString
		revokedAt sql.NullTime
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT id, user_id, candidate_id, token_hash, expires_at, revoked_at, created_at FROM refresh_tokens WHERE user_id=? AND token_hash=? LIMIT 1",
		userID, tokenHash).Scan(&t.ID, &t.UserID, &candidate, &t.TokenHash, &t.ExpiresAt, &revokedAt, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.RefreshToken{}, ErrNotFound
		}
		return model.RefreshToken{}, fmt.Errorf("loading refresh token: %w", err)
	}
	t.CandidateID = candidate.String
	if revokedAt.Valid {
		at := revokedAt.Time
		t.RevokedAt = &at
	}
	return t, nil
}

// Rotate consumes the token identified by oldID and inserts its successor
// in one transaction. The revoke is a compare-and-swap: it only matches
// while revoked_at is still NULL. InnoDB row locks make a second concurrent
// Rotate of the same id wait for the first to commit and then match zero
// rows, in which case nothing is written and ErrAlreadyRevoked is returned.
func (r *TokenRepo) Rotate(ctx context.Context, oldID string, at time.Time, next *model.RefreshToken) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning rotation: %w", err)
	}
	defer func() { _ = tx.Rollback() }() // no-op after commit

	res, err := tx.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=? WHERE id=? AND revoked_at IS NULL",
		at.UTC(), oldID)
	if err != nil {
		return fmt.Errorf("revoking consumed token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoking consumed token: %w", err)
	}
	if n != 1 {
		return ErrAlreadyRevoked
	}
	if err := insertRefresh(ctx, tx, next); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing rotation: %w", err)
	}
	return nil
}

// RevokeAllForUser revokes every unrevoked token of a user and returns how
// many rows changed.
func (r *TokenRepo) RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=? WHERE user_id=? AND revoked_at IS NULL",
		at.UTC(), userID)
	if err != nil {
		return 0, fmt.Errorf("revoking user tokens: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// RevokeByHash revokes the unrevoked row with the given digest, if any.
func (r *TokenRepo) RevokeByHash(ctx context.Context, tokenHash string, at time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=? WHERE token_hash=? AND revoked_at IS NULL",
		at.UTC(), tokenHash)
	if err != nil {
		return 0, fmt.Errorf("revoking token: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// DeleteExpired purges rows whose expiry has passed. It is safe to run
// alongside live traffic: an expired row is rejected whether or not it
// still exists.
func (r *TokenRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM refresh_tokens WHERE expires_at <= ?", now.UTC())
	if err != nil {
		return 0, fmt.Errorf("deleting expired tokens: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// CountExpired reports how many rows DeleteExpired would remove.
func (r *TokenRepo) CountExpired(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM refresh_tokens WHERE expires_at <= ?", now.UTC()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting expired tokens: %w", err)
	}
	return n, nil
}
