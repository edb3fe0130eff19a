package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/labstack/gommon/log"

	"github.com/iliyamo/campaign-session/internal/apperr"
	"github.com/iliyamo/campaign-session/internal/model"
)

// LockConfig controls write protection of reference data.
type LockConfig struct {
	Enabled bool // MASTER_DATA_LOCK_ENABLED
	Bypass  bool // MASTER_DATA_LOCK_BYPASS
}

// WarnLogger is the subset of the gommon logger used for bypass warnings.
type WarnLogger interface {
	Warnj(j log.JSON)
}

// ReferenceRepo is the only way to reach `reference_entities`. Every
// method, read or write, goes through dispatch first.
type ReferenceRepo struct {
	store    *referenceStore
	lock     LockConfig
	logger   WarnLogger
	onBypass func(kind model.ReferenceKind, op model.Operation)
}

// ReferenceOption configures a ReferenceRepo.
type ReferenceOption func(*ReferenceRepo)

// WithLockLogger sets the logger that records bypassed writes.
func WithLockLogger(l WarnLogger) ReferenceOption {
	return func(r *ReferenceRepo) { r.logger = l }
}

// WithBypassHook registers a callback run for every bypassed write.
func WithBypassHook(fn func(kind model.ReferenceKind, op model.Operation)) ReferenceOption {
	return func(r *ReferenceRepo) { r.onBypass = fn }
}

func NewReferenceRepo(db *sql.DB, lock LockConfig, opts ...ReferenceOption) *ReferenceRepo {
	r := &ReferenceRepo{store: &referenceStore{db: db}, lock: lock, logger: log.New("masterdata")}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// dispatch decides whether op may reach storage for kind. Reads always
// pass. Writes pass only when the lock is disabled or bypassed.
func (r *ReferenceRepo) dispatch(kind model.ReferenceKind, op model.Operation) error {
	if _, ok := model.ParseReferenceKind(string(kind)); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if !op.IsWrite() || !r.lock.Enabled {
		return nil
	}
	if r.lock.Bypass {
		r.logger.Warnj(log.JSON{
			"event": "masterdata_lock_bypassed",
			"kind":  string(kind),
			"op":    string(op),
		})
		if r.onBypass != nil {
			r.onBypass(kind, op)
		}
		return nil
	}
	return fmt.Errorf("%w: %s on %s", apperr.ErrReferenceLocked, op, kind)
}

func (r *ReferenceRepo) Get(ctx context.Context, kind model.ReferenceKind, id string) (model.ReferenceRecord, error) {
	if err := r.dispatch(kind, model.OpGet); err != nil {
		return model.ReferenceRecord{}, err
	}
	return r.store.get(ctx, kind, id)
}

func (r *ReferenceRepo) List(ctx context.Context, kind model.ReferenceKind, f ReferenceFilter) ([]model.ReferenceRecord, error) {
	if err := r.dispatch(kind, model.OpList); err != nil {
		return nil, err
	}
	return r.store.list(ctx, kind, f)
}

func (r *ReferenceRepo) Create(ctx context.Context, kind model.ReferenceKind, rec *model.ReferenceRecord) error {
	if err := r.dispatch(kind, model.OpCreate); err != nil {
		return err
	}
	return r.store.insert(ctx, r.store.db, kind, rec, false)
}

func (r *ReferenceRepo) CreateMany(ctx context.Context, kind model.ReferenceKind, recs []*model.ReferenceRecord) error {
	if err := r.dispatch(kind, model.OpCreateMany); err != nil {
		return err
	}
	return r.store.inTx(ctx, func(tx *sql.Tx) error {
		for _, rec := range recs {
			if err := r.store.insert(ctx, tx, kind, rec, false); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *ReferenceRepo) Update(ctx context.Context, kind model.ReferenceKind, rec *model.ReferenceRecord) error {
	if err := r.dispatch(kind, model.OpUpdate); err != nil {
		return err
	}
	return r.store.update(ctx, r.store.db, kind, rec)
}

func (r *ReferenceRepo) UpdateMany(ctx context.Context, kind model.ReferenceKind, recs []*model.ReferenceRecord) error {
	if err := r.dispatch(kind, model.OpUpdateMany); err != nil {
		return err
	}
	return r.store.inTx(ctx, func(tx *sql.Tx) error {
		for _, rec := range recs {
			if err := r.store.update(ctx, tx, kind, rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// Upsert inserts rec or, when (kind, code) already exists, updates it in
// place. The stored id is kept on conflict.
func (r *ReferenceRepo) Upsert(ctx context.Context, kind model.ReferenceKind, rec *model.ReferenceRecord) error {
	if err := r.dispatch(kind, model.OpUpsert); err != nil {
		return err
	}
	return r.store.insert(ctx, r.store.db, kind, rec, true)
}

func (r *ReferenceRepo) UpsertMany(ctx context.Context, kind model.ReferenceKind, recs []*model.ReferenceRecord) error {
	if err := r.dispatch(kind, model.OpUpsertMany); err != nil {
		return err
	}
	return r.store.inTx(ctx, func(tx *sql.Tx) error {
		for _, rec := range recs {
			if err := r.store.insert(ctx, tx, kind, rec, true); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *ReferenceRepo) Delete(ctx context.Context, kind model.ReferenceKind, id string) error {
	if err := r.dispatch(kind, model.OpDelete); err != nil {
		return err
	}
	return r.store.delete(ctx, r.store.db, kind, id)
}

func (r *ReferenceRepo) DeleteMany(ctx context.Context, kind model.ReferenceKind, ids []string) error {
	if err := r.dispatch(kind, model.OpDeleteMany); err != nil {
		return err
	}
	return r.store.inTx(ctx, func(tx *sql.Tx) error {
		for _, id := range ids {
			if err := r.store.delete(ctx, tx, kind, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// IDByCode resolves a record id from its natural key. Import tooling uses
// it to link children to parents after an upsert kept an existing id.
func (r *ReferenceRepo) IDByCode(ctx context.Context, kind model.ReferenceKind, code string) (string, error) {
	if err := r.dispatch(kind, model.OpGet); err != nil {
		return "", err
	}
	return r.store.idByCode(ctx, kind, code)
}
