package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/campaign-session/internal/model"
)

// SecurityEventRepo appends to `security_events`. It has no read, update or
// delete method.
type SecurityEventRepo struct{ DB *sql.DB }

func NewSecurityEventRepo(db *sql.DB) *SecurityEventRepo { return &SecurityEventRepo{DB: db} }

// Record inserts one event.
func (r *SecurityEventRepo) Record(ctx context.Context, ev model.SecurityEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	var meta any
	if len(ev.Metadata) > 0 {
		b, err := json.Marshal(ev.Metadata)
		if err != nil {
			return fmt.Errorf("encoding event metadata: %w", err)
		}
		meta = string(b)
	}
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO security_events (id, actor_user_id, action, severity, entity_type, entity_id, candidate_id, metadata, created_at) VALUES (?,?,?,?,?,?,?,?,?)",
		ev.ID, nullString(ev.ActorUserID), ev.Action, string(ev.Severity), ev.EntityType,
		nullString(ev.EntityID), nullString(ev.CandidateID), meta, ev.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("recording security event: %w", err)
	}
	return nil
}
