// Package notify publishes project lifecycle events over NATS so clients can
// follow a run in real time.
package notify

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Event is the envelope published for every project notification.
type Event struct {
	Type      string         `json:"type"`
	ProjectID string         `json:"project_id"`
	Payload   map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Well-known event types.
const (
	TypeProjectUpdate = "project_update"
	TypeFileCreated   = "file_created"
	TypeFileUpdated   = "file_updated"
	TypeLogEntry      = "log_entry"
)

// Notifier fans project events out to NATS subscribers. A nil connection
// disables publishing without failing callers (graceful degradation).
type Notifier struct {
	conn   *nats.Conn
	logger *slog.Logger
}

// NewNotifier creates a Notifier. conn may be nil.
func NewNotifier(conn *nats.Conn, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{conn: conn, logger: logger}
}

// Subject returns the NATS subject carrying a project's events.
func Subject(projectID string) string {
	return fmt.Sprintf("project.%s.events", projectID)
}

// Publish emits one event for a project. Publishing is best-effort: failures
// are logged and never propagate into the run that produced the event.
func (n *Notifier) Publish(projectID, eventType string, payload map[string]any) {
	if n == nil || n.conn == nil {
		return // Skip publishing if no NATS connection (graceful degradation)
	}

	event := Event{
		Type:      eventType,
		ProjectID: projectID,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		n.logger.Warn("Failed to marshal event",
			slog.String("project_id", projectID),
			slog.String("type", eventType),
			slog.String("error", err.Error()))
		return
	}

	if err := n.conn.Publish(Subject(projectID), data); err != nil {
		n.logger.Warn("Failed to publish event",
			slog.String("project_id", projectID),
			slog.String("type", eventType),
			slog.String("error", err.Error()))
	}
}

// Join subscribes to a project's event stream and invokes handler for each
// decoded event. The returned unsubscribe function is safe to call once.
func (n *Notifier) Join(projectID string, handler func(Event)) (func(), error) {
	if n == nil || n.conn == nil {
		return func() {}, nil
	}

	sub, err := n.conn.Subscribe(Subject(projectID), func(msg *nats.Msg) {
		var event Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			n.logger.Warn("Dropping undecodable event",
				slog.String("project_id", projectID),
				slog.String("error", err.Error()))
			return
		}
		handler(event)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", Subject(projectID), err)
	}

	return func() { _ = sub.Unsubscribe() }, nil
}
