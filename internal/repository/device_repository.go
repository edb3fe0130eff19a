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

// DeviceRepo persists trusted-device tokens. Like refresh tokens, only the
// SHA-256 digest of the opaque value is stored.
type DeviceRepo struct{ DB *sql.DB }

func NewDeviceRepo(db *sql.DB) *DeviceRepo { return &DeviceRepo{DB: db} }

// Create inserts a trusted-device row.
func (r *DeviceRepo) Create(ctx context.Context, d *model.TrustedDevice) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO trusted_devices (id, user_id, token_hash, label, expires_at, created_at) VALUES (?,?,?,?,?,?)",
		d.ID, d.UserID, d.TokenHash, nullString(d.Label), d.ExpiresAt.UTC(), d.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("creating trusted device: %w", err)
	}
	return nil
}

// FindByUserAndHash returns the device row for (userID, tokenHash).
func (r *DeviceRepo) FindByUserAndHash(ctx context.Context, userID, tokenHash string) (model.TrustedDevice, error) {
	var (
		d         model.TrustedDevice
		label     sql.NullString
		revokedAt sql.NullTime
		lastUsed  sql.NullTime
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT id, user_id, token_hash, label, expires_at, revoked_at, last_used_at, created_at FROM trusted_devices WHERE user_id=? AND token_hash=? LIMIT 1",
		userID, tokenHash).Scan(&d.ID, &d.UserID, &d.TokenHash, &label, &d.ExpiresAt, &revokedAt, &lastUsed, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.TrustedDevice{}, ErrNotFound
		}
		return model.TrustedDevice{}, fmt.Errorf("loading trusted device: %w", err)
	}
	d.Label = label.String
	if revokedAt.Valid {
		at := revokedAt.Time
		d.RevokedAt = &at
	}
	if lastUsed.Valid {
		at := lastUsed.Time
		d.LastUsedAt = &at
	}
	return d, nil
}

// Touch records a successful use. It does nothing for a revoked row.
func (r *DeviceRepo) Touch(ctx context.Context, id string, at time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE trusted_devices SET last_used_at=? WHERE id=? AND revoked_at IS NULL",
		at.UTC(), id)
	if err != nil {
		return fmt.Errorf("touching trusted device: %w", err)
	}
	return nil
}

// RevokeByHash revokes the live device with the given digest.
func (r *DeviceRepo) RevokeByHash(ctx context.Context, tokenHash string, at time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE trusted_devices SET revoked_at=? WHERE token_hash=? AND revoked_at IS NULL",
		at.UTC(), tokenHash)
	if err != nil {
		return 0, fmt.Errorf("revoking trusted device: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// RevokeAllForUser distrusts every device of a user.
func (r *DeviceRepo) RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE trusted_devices SET revoked_at=? WHERE user_id=? AND revoked_at IS NULL",
		at.UTC(), userID)
	if err != nil {
		return 0, fmt.Errorf("revoking trusted devices: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// DeleteExpired purges device rows whose expiry has passed.
func (r *DeviceRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM trusted_devices WHERE expires_at <= ?", now.UTC())
	if err != nil {
		return 0, fmt.Errorf("deleting expired devices: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// CountExpired reports how many rows DeleteExpired would remove.
func (r *DeviceRepo) CountExpired(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM trusted_devices WHERE expires_at <= ?", now.UTC()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting expired devices: %w", err)
	}
	return n, nil
}
