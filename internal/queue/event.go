// Package queue carries security events over RabbitMQ: the server
// publishes them and cmd/auditconsumer archives them.
package queue

import (
	"time"

	"github.com/iliyamo/campaign-session/internal/model"
)

// SecurityEventsQueue is the durable queue both sides declare.
const SecurityEventsQueue = "security.events"

// SecurityEventMessage is the wire form of model.SecurityEvent. Request
// metadata travels inside Metadata.
type SecurityEventMessage struct {
	ID          string         `json:"id"`
	ActorUserID string         `json:"actor_user_id,omitempty"`
	Action      string         `json:"action"`
	Severity    string         `json:"severity"`
	EntityType  string         `json:"entity_type"`
	EntityID    string         `json:"entity_id,omitempty"`
	CandidateID string         `json:"candidate_id,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	OccurredAt  string         `json:"occurred_at"`
}

// NewSecurityEventMessage converts ev for publishing.
func NewSecurityEventMessage(ev model.SecurityEvent) SecurityEventMessage {
	return SecurityEventMessage{
		ID:          ev.ID,
		ActorUserID: ev.ActorUserID,
		Action:      ev.Action,
		Severity:    string(ev.Severity),
		EntityType:  ev.EntityType,
		EntityID:    ev.EntityID,
		CandidateID: ev.CandidateID,
		Metadata:    ev.Metadata,
		OccurredAt:  ev.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}
