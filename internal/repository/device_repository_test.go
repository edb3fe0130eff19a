package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/iliyamo/campaign-session/internal/model"
)

func TestDeviceRepoLifecycle(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	repo := NewDeviceRepo(db)
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	exp := now.Add(30 * 24 * time.Hour)

	mock.ExpectExec("INSERT INTO trusted_devices").
		WithArgs(sqlmock.AnyArg(), "u-1", "dh", "laptop", exp, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT id, user_id, token_hash, label").
		WithArgs("u-1", "dh").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "token_hash", "label", "expires_at", "revoked_at", "last_used_at", "created_at"}).
			AddRow("d-1", "u-1", "dh", "laptop", exp, nil, nil, now))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE trusted_devices SET last_used_at=? WHERE id=? AND revoked_at IS NULL")).
		WithArgs(now, "d-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE trusted_devices SET revoked_at=? WHERE token_hash=? AND revoked_at IS NULL")).
		WithArgs(now, "dh").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT id, user_id, token_hash, label").
		WithArgs("u-1", "other").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	d := &model.TrustedDevice{UserID: "u-1", TokenHash: "dh", Label: "laptop", ExpiresAt: exp}
	if err := repo.Create(ctx, d); err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, err := repo.FindByUserAndHash(ctx, "u-1", "dh")
	if err != nil {
		t.Fatalf("FindByUserAndHash: %v", err)
	}
	if !got.Usable(now) {
		t.Fatalf("expected device to be usable, got %+v", got)
	}
	if err := repo.Touch(ctx, got.ID, now); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	if n, err := repo.RevokeByHash(ctx, "dh", now); err != nil || n != 1 {
		t.Fatalf("RevokeByHash = %d, %v", n, err)
	}
	if _, err := repo.FindByUserAndHash(ctx, "u-1", "other"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSecurityEventRepoEncodesMetadata(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("INSERT INTO security_events").
		WithArgs(sqlmock.AnyArg(), "u-1", model.ActionRefreshReplay, "critical", model.EntityRefreshToken,
			nil, nil, `{"reason":"revoked"}`, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = NewSecurityEventRepo(db).Record(context.Background(), model.SecurityEvent{
		ActorUserID: "u-1",
		Action:      model.ActionRefreshReplay,
		Severity:    model.SeverityCritical,
		EntityType:  model.EntityRefreshToken,
		Metadata:    map[string]any{"reason": "revoked"},
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
