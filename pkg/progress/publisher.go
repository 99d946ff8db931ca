package progress

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// Channel returns the NOTIFY channel name carrying progress events for a
// project. Kept short and deterministic so both publisher and listener
// derive it the same way.
func Channel(project string) string {
	return fmt.Sprintf("workflow_events:%s", project)
}

// Publisher broadcasts progress events for a project via Postgres NOTIFY.
// It satisfies the Callback signature directly, so it can be registered
// on the Workflow Engine with no adapter.
type Publisher struct {
	db     *sql.DB
	logger *slog.Logger
	project string
}

// NewPublisher returns a Publisher bound to a single project namespace.
func NewPublisher(db *sql.DB, project string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{db: db, logger: logger, project: project}
}

// Publish marshals payload and sends it on the project's NOTIFY channel.
// Per spec §4.6, callback errors must never abort the workflow, so this
// method returns no error; failures are logged instead. PublishErr exposes the error for callers (such as
// tests) that want it.
func (p *Publisher) Publish(ctx context.Context, eventType EventType, payload interface{}) {
	if err := p.PublishErr(ctx, eventType, payload); err != nil {
		p.logger.Warn("progress: publish failed", "project", p.project, "event", eventType, "error", err)
	}
}

// PublishErr is the error-returning counterpart of Publish.
func (p *Publisher) PublishErr(ctx context.Context, eventType EventType, payload interface{}) error {
	body, err := buildNotifyPayload(eventType, payload, time.Now())
	if err != nil {
		return fmt.Errorf("marshal progress event: %w", err)
	}

	_, err = p.db.ExecContext(ctx, `SELECT pg_notify($1, $2)`, Channel(p.project), string(body))
	if err != nil {
		return fmt.Errorf("notify %s: %w", Channel(p.project), err)
	}
	return nil
}

// buildNotifyPayload marshals an event into the wire envelope sent over
// NOTIFY, truncating in place of failing outright: Postgres caps NOTIFY
// payloads at 8000 bytes, and a progress event is never worth aborting
// the workflow over.
func buildNotifyPayload(eventType EventType, payload interface{}, now time.Time) ([]byte, error) {
	body, err := json.Marshal(struct {
		Type      EventType   `json:"type"`
		Payload   interface{} `json:"payload"`
		Timestamp string      `json:"timestamp"`
	}{Type: eventType, Payload: payload, Timestamp: now.UTC().Format(time.RFC3339Nano)})
	if err != nil {
		return nil, err
	}
	if len(body) > 7900 {
		return []byte(fmt.Sprintf(`{"type":%q,"truncated":true}`, eventType)), nil
	}
	return body, nil
}

// AsCallback adapts the Publisher into a Callback for registration with
// the Workflow Engine.
func (p *Publisher) AsCallback() Callback {
	return func(eventType EventType, payload interface{}) {
		p.Publish(context.Background(), eventType, payload)
	}
}
