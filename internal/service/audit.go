// Package service implements the session core: credential verification,
// token issuance and rotation, trusted devices and the security-event
// audit trail.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/gommon/log"

	"github.com/iliyamo/campaign-session/internal/model"
)

// Logger is the part of the gommon logger the services use.
type Logger interface {
	Infoj(j log.JSON)
	Warnj(j log.JSON)
	Errorj(j log.JSON)
}

// EventStore persists security events (repository.SecurityEventRepo).
type EventStore interface {
	Record(ctx context.Context, ev model.SecurityEvent) error
}

// EventPublisher forwards security events to the broker (queue.Publisher).
type EventPublisher interface {
	Publish(ctx context.Context, ev model.SecurityEvent) error
}

// EventMetrics counts security events (obs.Metrics).
type EventMetrics interface {
	SecurityEvent(action, severity string)
	SinkFailure(sink string)
}

// RequestMeta is transport metadata attached to every event recorded while
// serving a request.
type RequestMeta struct {
	IP        string
	UserAgent string
	RequestID string
}

type requestMetaKey struct{}

// WithRequestMeta returns a context carrying m.
func WithRequestMeta(ctx context.Context, m RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, m)
}

// RequestMetaFrom returns the metadata stored by WithRequestMeta.
func RequestMetaFrom(ctx context.Context) RequestMeta {
	m, _ := ctx.Value(requestMetaKey{}).(RequestMeta)
	return m
}

const publishTimeout = 2 * time.Second

// Auditor fans each security event out to the database, the broker, the
// metrics registry and, for critical events, the process log. Sink
// failures are logged and never reach the caller.
type Auditor struct {
	store     EventStore
	publisher EventPublisher
	metrics   EventMetrics
	logger    Logger
	now       func() time.Time
}

// AuditOption configures an Auditor.
type AuditOption func(*Auditor)

// WithPublisher adds the broker sink.
func WithPublisher(p EventPublisher) AuditOption { return func(a *Auditor) { a.publisher = p } }

// WithEventMetrics adds the metrics sink.
func WithEventMetrics(m EventMetrics) AuditOption { return func(a *Auditor) { a.metrics = m } }

// WithAuditClock overrides the event timestamp source.
func WithAuditClock(now func() time.Time) AuditOption { return func(a *Auditor) { a.now = now } }

func NewAuditor(store EventStore, logger Logger, opts ...AuditOption) *Auditor {
	a := &Auditor{store: store, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Record stores ev in every configured sink. Writes are detached from the
// request's cancellation so an aborted request still leaves its trail.
func (a *Auditor) Record(ctx context.Context, ev model.SecurityEvent) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = a.now().UTC()
	}
	if ev.Severity == "" {
		ev.Severity = model.SeverityInfo
	}
	ev.Metadata = withRequestMeta(ev.Metadata, RequestMetaFrom(ctx))
	ctx = context.WithoutCancel(ctx)

	if a.store != nil {
		if err := a.store.Record(ctx, ev); err != nil {
			a.sinkFailed("db", ev, err)
		}
	}
	if a.publisher != nil {
		pctx, cancel := context.WithTimeout(ctx, publishTimeout)
		err := a.publisher.Publish(pctx, ev)
		cancel()
		if err != nil {
			a.sinkFailed("amqp", ev, err)
		}
	}
	if a.metrics != nil {
		a.metrics.SecurityEvent(ev.Action, string(ev.Severity))
	}
	if ev.Severity == model.SeverityCritical {
		a.logger.Errorj(eventLog(ev))
	}
}

func (a *Auditor) sinkFailed(sink string, ev model.SecurityEvent, err error) {
	a.logger.Errorj(log.JSON{
		"event":    "security_event_sink_failed",
		"sink":     sink,
		"action":   ev.Action,
		"event_id": ev.ID,
		"error":    err.Error(),
	})
	if a.metrics != nil {
		a.metrics.SinkFailure(sink)
	}
}

func withRequestMeta(md map[string]any, m RequestMeta) map[string]any {
	out := make(map[string]any, len(md)+3)
	for k, v := range md {
		out[k] = v
	}
	if m.IP != "" {
		out["ip"] = m.IP
	}
	if m.UserAgent != "" {
		out["user_agent"] = m.UserAgent
	}
	if m.RequestID != "" {
		out["request_id"] = m.RequestID
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func eventLog(ev model.SecurityEvent) log.JSON {
	j := log.JSON{
		"event":       "security_event",
		"action":      ev.Action,
		"severity":    string(ev.Severity),
		"entity_type": ev.EntityType,
	}
	if ev.ActorUserID != "" {
		j["user_id"] = ev.ActorUserID
	}
	if ev.EntityID != "" {
		j["entity_id"] = ev.EntityID
	}
	if ev.CandidateID != "" {
		j["candidate_id"] = ev.CandidateID
	}
	for k, v := range ev.Metadata {
		if _, taken := j[k]; !taken {
			j[k] = v
		}
	}
	return j
}
