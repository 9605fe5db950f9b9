// Package eventlog records and reads the runner's audit trail: one row per
// task cycle phase in the queue database's events table.
package eventlog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// sqliteTime is the layout of SQLite's datetime('now').
const sqliteTime = "2006-01-02 15:04:05"

// Event represents a single row of the event log.
type Event struct {
	ID        int64
	Type      string
	Source    string
	TaskID    string
	SessionID string
	Payload   string
	CreatedAt time.Time
}

// QueryOpts specifies filter criteria for querying events.
type QueryOpts struct {
	// TaskID filters events to one task.
	TaskID string

	// SessionID filters events to one agent session.
	SessionID string

	// EventType filters to a specific event type (e.g., "invoke", "task_failed")
	EventType string

	// After filters events created after this time (inclusive)
	After *time.Time

	// Before filters events created before this time (inclusive)
	Before *time.Time

	// Limit restricts the number of results (0 = no limit)
	Limit int
}

// Reader provides read access to the event log.
type Reader struct {
	db    *sql.DB
	owned bool
}

// NewReader opens the queue database read-only.
// Returns an error if the database doesn't exist or cannot be opened.
func NewReader(dbPath string) (*Reader, error) {
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("database not found: %w", err)
	}

	// Read-only so `gitclauder logs` never blocks a running pass.
	dsn := fmt.Sprintf("file:%s?mode=ro&_journal_mode=WAL", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Reader{db: db, owned: true}, nil
}

// NewReaderDB reads through an already open database. Close leaves db open.
func NewReaderDB(db *sql.DB) *Reader {
	return &Reader{db: db}
}

// Close releases the database connection if the Reader opened it.
// Safe to call multiple times.
func (r *Reader) Close() error {
	if r.db == nil || !r.owned {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	if err != nil {
		return fmt.Errorf("close event log: %w", err)
	}
	return nil
}

// Query retrieves events matching opts, newest first.
// Returns an empty slice if no events match.
func (r *Reader) Query(ctx context.Context, opts QueryOpts) ([]Event, error) {
	query, args := buildQuery(opts)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []Event
	for rows.Next() {
		var e Event
		var createdAtStr string

		if err := rows.Scan(&e.ID, &e.Type, &e.Source, &e.TaskID, &e.SessionID, &e.Payload, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}

		if createdAtStr != "" {
			parsed, err := parseTime(createdAtStr)
			if err != nil {
				return nil, fmt.Errorf("parse created_at: %w", err)
			}
			e.CreatedAt = parsed
		}

		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	return events, nil
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(sqliteTime, s)
	if err == nil {
		return t, nil
	}
	t, err = time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognized timestamp %q: %w", s, err)
	}
	return t, nil
}

// buildQuery constructs the SQL query and arguments from QueryOpts.
func buildQuery(opts QueryOpts) (string, []any) {
	var conditions []string
	var args []any

	query := "SELECT id, type, source, COALESCE(task_id, ''), COALESCE(session_id, ''), COALESCE(payload, ''), created_at FROM events WHERE 1=1"

	if opts.TaskID != "" {
		conditions = append(conditions, "task_id = ?")
		args = append(args, opts.TaskID)
	}

	if opts.SessionID != "" {
		conditions = append(conditions, "session_id = ?")
		args = append(args, opts.SessionID)
	}

	if opts.EventType != "" {
		conditions = append(conditions, "type = ?")
		args = append(args, opts.EventType)
	}

	if opts.After != nil {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, opts.After.UTC().Format(sqliteTime))
	}

	if opts.Before != nil {
		conditions = append(conditions, "created_at <= ?")
		args = append(args, opts.Before.UTC().Format(sqliteTime))
	}

	if len(conditions) > 0 {
		query += " AND " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY id DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}

	return query, args
}
