package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// Entry is one event to record.
type Entry struct {
	Type      string
	Source    string
	TaskID    string
	SessionID string
	Payload   map[string]any // encoded as JSON; nil stores an empty payload
}

// Logger records events. Writer implements it; tests substitute fakes.
type Logger interface {
	Log(ctx context.Context, e Entry) error
}

// Writer appends events to the events table.
type Writer struct {
	db *sql.DB
}

// NewWriter returns a Writer on db. The schema must already exist.
func NewWriter(db *sql.DB) *Writer {
	return &Writer{db: db}
}

// Log inserts one event.
func (w *Writer) Log(ctx context.Context, e Entry) error {
	payload := ""
	if len(e.Payload) > 0 {
		b, err := json.Marshal(e.Payload)
		if err != nil {
			return fmt.Errorf("log event: marshal payload: %w", err)
		}
		payload = string(b)
	}

	_, err := w.db.ExecContext(ctx,
		`INSERT INTO events (type, source, task_id, session_id, payload) VALUES (?, ?, ?, ?, ?)`,
		e.Type, e.Source, nullable(e.TaskID), nullable(e.SessionID), payload)
	if err != nil {
		return fmt.Errorf("log event: %w", err)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Discard is a Logger that drops every event.
var Discard Logger = discard{} //nolint:gochecknoglobals // stateless sentinel

type discard struct{}

func (discard) Log(context.Context, Entry) error { return nil }
