package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/labstack/gommon/log"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Archive appends one line per security event to <Dir>/security.log.
type Archive struct {
	Dir string
}

// Path returns the archive file location.
func (a Archive) Path() string { return filepath.Join(a.Dir, "security.log") }

// FormatLine renders msg as a single human-readable line ending in '\n'.
// Metadata keys are sorted so lines are stable.
func FormatLine(msg SecurityEventMessage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s | severity=%s | entity=%s", msg.OccurredAt, msg.Action, msg.Severity, msg.EntityType)
	if msg.EntityID != "" {
		fmt.Fprintf(&b, ":%s", msg.EntityID)
	}
	if msg.ActorUserID != "" {
		fmt.Fprintf(&b, " | user_id=%s", msg.ActorUserID)
	}
	if msg.CandidateID != "" {
		fmt.Fprintf(&b, " | candidate_id=%s", msg.CandidateID)
	}
	keys := make([]string, 0, len(msg.Metadata))
	for k := range msg.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " | %s=%v", k, msg.Metadata[k])
	}
	b.WriteByte('\n')
	return b.String()
}

// Handle decodes one delivery body and appends it to the archive.
func (a Archive) Handle(body []byte) error {
	var msg SecurityEventMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if msg.Action == "" {
		return errors.New("message has no action")
	}
	if err := os.MkdirAll(a.Dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", a.Dir, err)
	}
	f, err := os.OpenFile(a.Path(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(FormatLine(msg)); err != nil {
		return fmt.Errorf("write archive: %w", err)
	}
	return nil
}

// Consume connects to the broker, declares SecurityEventsQueue and feeds
// every delivery to a.Handle until ctx is cancelled. Lost connections are
// redialled with exponential backoff capped at 30s.
func Consume(ctx context.Context, url string, a Archive, logger *log.Logger) error {
	backoff := time.Second
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		conn, err := amqp.Dial(url)
		if err != nil {
			logger.Warnj(log.JSON{"event": "broker_dial_failed", "error": err.Error(), "retry_in": backoff.String()})
			if !sleepCtx(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = consumeLoop(ctx, conn, a, logger)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warnj(log.JSON{"event": "consume_loop_ended", "error": err.Error()})
		if !sleepCtx(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, a Archive, logger *log.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		logger.Warnj(log.JSON{"event": "qos_failed", "error": err.Error()})
	}
	if _, err := ch.QueueDeclare(SecurityEventsQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(SecurityEventsQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := a.Handle(d.Body); err != nil {
				logger.Errorj(log.JSON{"event": "archive_failed", "message_id": d.MessageId, "error": err.Error()})
				_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
