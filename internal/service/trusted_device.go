package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/campaign-session/internal/model"
	"github.com/iliyamo/campaign-session/internal/repository"
	"github.com/iliyamo/campaign-session/internal/utils"
)

// DeviceStore is the trusted-device persistence (repository.DeviceRepo).
type DeviceStore interface {
	Create(ctx context.Context, d *model.TrustedDevice) error
	FindByUserAndHash(ctx context.Context, userID, tokenHash string) (model.TrustedDevice, error)
	Touch(ctx context.Context, id string, at time.Time) error
	RevokeByHash(ctx context.Context, tokenHash string, at time.Time) (int64, error)
	RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int64, error)
}

// TrustedDeviceManager issues and checks the opaque tokens that mark a
// browser as known to a user.
type TrustedDeviceManager struct {
	devices DeviceStore
	ttl     time.Duration
	audit   *Auditor
	now     func() time.Time
}

// DeviceOption configures a TrustedDeviceManager.
type DeviceOption func(*TrustedDeviceManager)

// WithDeviceClock overrides the time source.
func WithDeviceClock(now func() time.Time) DeviceOption {
	return func(m *TrustedDeviceManager) { m.now = now }
}

func NewTrustedDeviceManager(devices DeviceStore, ttl time.Duration, audit *Auditor, opts ...DeviceOption) *TrustedDeviceManager {
	m := &TrustedDeviceManager{devices: devices, ttl: ttl, audit: audit, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// TTL is the lifetime of newly issued device tokens.
func (m *TrustedDeviceManager) TTL() time.Duration { return m.ttl }

// Issue creates a device token for userID. The raw token is returned once
// and only its hash is stored.
func (m *TrustedDeviceManager) Issue(ctx context.Context, userID, label string) (string, model.TrustedDevice, error) {
	raw, err := utils.NewOpaqueToken()
	if err != nil {
		return "", model.TrustedDevice{}, err
	}
	now := m.now().UTC()
	d := model.TrustedDevice{
		UserID:    userID,
		TokenHash: utils.HashToken(raw),
		Label:     strings.TrimSpace(label),
		ExpiresAt: now.Add(m.ttl),
		CreatedAt: now,
	}
	if err := m.devices.Create(ctx, &d); err != nil {
		return "", model.TrustedDevice{}, err
	}
	m.audit.Record(ctx, model.SecurityEvent{
		ActorUserID: userID,
		Action:      model.ActionDeviceTrusted,
		Severity:    model.SeverityInfo,
		EntityType:  model.EntityTrustedDevice,
		EntityID:    d.ID,
		Metadata:    map[string]any{"label": d.Label},
	})
	return raw, d, nil
}

// Validate reports whether raw is a live device token of userID and
// records its use. Storage errors are returned; an unknown, revoked or
// expired token is simply false.
func (m *TrustedDeviceManager) Validate(ctx context.Context, userID, raw string) (bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, nil
	}
	d, err := m.devices.FindByUserAndHash(ctx, userID, utils.HashToken(raw))
	if errors.Is(err, repository.ErrNotFound) {
		m.reject(ctx, userID, "", "not_found")
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("loading trusted device: %w", err)
	}
	now := m.now().UTC()
	if !d.Usable(now) {
		reason := "expired"
		if d.RevokedAt != nil {
			reason = "revoked"
		}
		m.reject(ctx, userID, d.ID, reason)
		return false, nil
	}
	if err := m.devices.Touch(ctx, d.ID, now); err != nil {
		return false, err
	}
	return true, nil
}

// Revoke distrusts the device holding raw, if it is still live.
func (m *TrustedDeviceManager) Revoke(ctx context.Context, raw string) (bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, nil
	}
	n, err := m.devices.RevokeByHash(ctx, utils.HashToken(raw), m.now().UTC())
	return n > 0, err
}

// RevokeAll distrusts every device of userID.
func (m *TrustedDeviceManager) RevokeAll(ctx context.Context, userID string) (int64, error) {
	n, err := m.devices.RevokeAllForUser(ctx, userID, m.now().UTC())
	if err != nil {
		return 0, err
	}
	m.audit.Record(ctx, model.SecurityEvent{
		ActorUserID: userID,
		Action:      model.ActionDeviceRevoked,
		Severity:    model.SeverityInfo,
		EntityType:  model.EntityUser,
		EntityID:    userID,
		Metadata:    map[string]any{"revoked_count": n, "scope": "all"},
	})
	return n, nil
}

func (m *TrustedDeviceManager) reject(ctx context.Context, userID, deviceID, reason string) {
	m.audit.Record(ctx, model.SecurityEvent{
		ActorUserID: userID,
		Action:      model.ActionDeviceRejected,
		Severity:    model.SeverityWarning,
		EntityType:  model.EntityTrustedDevice,
		EntityID:    deviceID,
		Metadata:    map[string]any{"reason": reason},
	})
}
