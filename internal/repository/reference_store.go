package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/campaign-session/internal/model"
)

// referenceStore is the raw data access for `reference_entities`. It is not
// exported: callers go through ReferenceRepo, which applies the lock.
type referenceStore struct{ db *sql.DB }

const referenceColumns = "id, kind, code, name, parent_id, attributes, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReference(s rowScanner) (model.ReferenceRecord, error) {
	var (
		rec    model.ReferenceRecord
		kind   string
		parent sql.NullString
		attrs  sql.NullString
	)
	if err := s.Scan(&rec.ID, &kind, &rec.Code, &rec.Name, &parent, &attrs, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return model.ReferenceRecord{}, err
	}
	rec.Kind = model.ReferenceKind(kind)
	rec.ParentID = parent.String
	if attrs.Valid && attrs.String != "" {
		if err := json.Unmarshal([]byte(attrs.String), &rec.Attributes); err != nil {
			return model.ReferenceRecord{}, fmt.Errorf("decoding attributes: %w", err)
		}
	}
	return rec, nil
}

func encodeAttributes(a map[string]string) (any, error) {
	if len(a) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("encoding attributes: %w", err)
	}
	return string(b), nil
}

func (s *referenceStore) get(ctx context.Context, kind model.ReferenceKind, id string) (model.ReferenceRecord, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+referenceColumns+" FROM reference_entities WHERE kind=? AND id=? LIMIT 1", string(kind), id)
	rec, err := scanReference(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ReferenceRecord{}, ErrNotFound
		}
		return model.ReferenceRecord{}, fmt.Errorf("loading %s: %w", kind, err)
	}
	return rec, nil
}

func (s *referenceStore) idByCode(ctx context.Context, kind model.ReferenceKind, code string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		"SELECT id FROM reference_entities WHERE kind=? AND code=? LIMIT 1", string(kind), code).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("resolving %s %q: %w", kind, code, err)
	}
	return id, nil
}

// ReferenceFilter narrows list results. Zero values mean no filter.
type ReferenceFilter struct {
	ParentID string
	Limit    int
	Offset   int
}

func (s *referenceStore) list(ctx context.Context, kind model.ReferenceKind, f ReferenceFilter) ([]model.ReferenceRecord, error) {
	q := "SELECT " + referenceColumns + " FROM reference_entities WHERE kind=?"
	args := []any{string(kind)}
	if f.ParentID != "" {
		q += " AND parent_id=?"
		args = append(args, f.ParentID)
	}
	q += " ORDER BY code"
	if f.Limit > 0 {
		q += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", kind, err)
	}
	defer rows.Close()

	out := []model.ReferenceRecord{}
	for rows.Next() {
		rec, err := scanReference(rows)
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", kind, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing %s: %w", kind, err)
	}
	return out, nil
}

func prepareRecord(kind model.ReferenceKind, rec *model.ReferenceRecord, now time.Time) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.Kind = kind
	rec.Code = strings.TrimSpace(rec.Code)
	rec.Name = strings.TrimSpace(rec.Name)
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
}

func (s *referenceStore) insert(ctx context.Context, db execer, kind model.ReferenceKind, rec *model.ReferenceRecord, upsert bool) error {
	prepareRecord(kind, rec, time.Now().UTC())
	attrs, err := encodeAttributes(rec.Attributes)
	if err != nil {
		return err
	}
	q := "INSERT INTO reference_entities (" + referenceColumns + ") VALUES (?,?,?,?,?,?,?,?)"
	if upsert {
		q += " ON DUPLICATE KEY UPDATE name=VALUES(name), parent_id=VALUES(parent_id), attributes=VALUES(attributes), updated_at=VALUES(updated_at)"
	}
	_, err = db.ExecContext(ctx, q,
		rec.ID, string(kind), rec.Code, rec.Name, nullString(rec.ParentID), attrs, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("writing %s %q: %w", kind, rec.Code, err)
	}
	return nil
}

func (s *referenceStore) update(ctx context.Context, db execer, kind model.ReferenceKind, rec *model.ReferenceRecord) error {
	attrs, err := encodeAttributes(rec.Attributes)
	if err != nil {
		return err
	}
	rec.Kind = kind
	rec.UpdatedAt = time.Now().UTC()
	res, err := db.ExecContext(ctx,
		"UPDATE reference_entities SET code=?, name=?, parent_id=?, attributes=?, updated_at=? WHERE kind=? AND id=?",
		strings.TrimSpace(rec.Code), strings.TrimSpace(rec.Name), nullString(rec.ParentID), attrs, rec.UpdatedAt, string(kind), rec.ID)
	if err != nil {
		return fmt.Errorf("updating %s %s: %w", kind, rec.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *referenceStore) delete(ctx context.Context, db execer, kind model.ReferenceKind, id string) error {
	res, err := db.ExecContext(ctx, "DELETE FROM reference_entities WHERE kind=? AND id=?", string(kind), id)
	if err != nil {
		return fmt.Errorf("deleting %s %s: %w", kind, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// inTx runs fn in one transaction so bulk variants are all-or-nothing.
func (s *referenceStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning reference batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing reference batch: %w", err)
	}
	return nil
}
