package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gitclauder/pkg/protocol"
)

// SampleInstructions are inserted by Init when samples are requested.
var SampleInstructions = []string{ //nolint:gochecknoglobals // fixed seed data
	"Hello, please introduce yourself. What can you do?",
	"Check whether this repository has a README.md file and summarize its contents.",
}

// SQLiteQueue implements Queue on the tasks and control tables.
type SQLiteQueue struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteQueue wraps an open database. Call Init once to create the schema.
func NewSQLiteQueue(db *sql.DB) *SQLiteQueue {
	return &SQLiteQueue{db: db, now: time.Now}
}

// Init creates the schema and, if missing, the default control row. With
// samples set it also seeds SampleInstructions into an empty queue.
func (q *SQLiteQueue) Init(ctx context.Context, samples bool) error {
	if _, err := q.db.ExecContext(ctx, protocol.SchemaDDL); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}

	def := protocol.DefaultControl()
	if _, err := q.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO control (id, operation, interval_seconds, timeout_seconds) VALUES (1, ?, ?, ?)`,
		string(def.Operation), def.IntervalSeconds, def.TimeoutSeconds,
	); err != nil {
		return fmt.Errorf("init control: %w", err)
	}

	if !samples {
		return nil
	}
	var n int
	if err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks`).Scan(&n); err != nil {
		return fmt.Errorf("count tasks: %w", err)
	}
	if n > 0 {
		return nil
	}
	for _, instr := range SampleInstructions {
		if _, err := q.Add(ctx, instr, ""); err != nil {
			return err
		}
	}
	return nil
}

// Add enqueues a pending task and returns it. Ids are sequential integers.
func (q *SQLiteQueue) Add(ctx context.Context, instruction, sessionID string) (protocol.Task, error) {
	if strings.TrimSpace(instruction) == "" {
		return protocol.Task{}, errors.New("add task: instruction is blank")
	}

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return protocol.Task{}, fmt.Errorf("add task: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM tasks`).Scan(&seq); err != nil {
		return protocol.Task{}, fmt.Errorf("add task: next seq: %w", err)
	}

	t := protocol.Task{
		ID:          strconv.FormatInt(seq, 10),
		Instruction: instruction,
		Status:      protocol.StatusPending,
		SessionID:   sessionID,
		CreatedAt:   FormatTime(q.now()),
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO tasks (id, instruction, status, session_id, created_at, seq) VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.Instruction, string(t.Status), t.SessionID, t.CreatedAt, seq,
	); err != nil {
		return protocol.Task{}, fmt.Errorf("add task: insert: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return protocol.Task{}, fmt.Errorf("add task: commit: %w", err)
	}
	return t, nil
}

const taskColumns = `id, instruction, status, result, session_id, created_at, completed_at`

// Get returns one task.
func (q *SQLiteQueue) Get(ctx context.Context, id string) (protocol.Task, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return protocol.Task{}, &protocol.TaskNotFoundError{TaskID: id}
	}
	if err != nil {
		return protocol.Task{}, fmt.Errorf("get task %s: %w", id, err)
	}
	return t, nil
}

// List returns tasks in queue order, optionally filtered by status. A
// non-positive limit returns every match.
func (q *SQLiteQueue) List(ctx context.Context, status protocol.TaskStatus, limit int) ([]protocol.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks`
	var args []any
	if status != "" {
		in, labels := statusIn(status)
		query += ` WHERE ` + in
		args = append(args, labels...)
	}
	query += ` ORDER BY seq`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return q.queryTasks(ctx, query, args...)
}

// ListPending implements Queue. Rows carrying a localized or blank pending
// label are runnable too.
func (q *SQLiteQueue) ListPending(ctx context.Context) ([]protocol.Task, error) {
	in, labels := statusIn(protocol.StatusPending)
	return q.queryTasks(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE `+in+` AND trim(instruction) != '' ORDER BY seq`,
		labels...)
}

// statusIn builds a predicate matching every label ParseStatus maps to st.
func statusIn(st protocol.TaskStatus) (string, []any) {
	labels := protocol.StatusLabels(st)
	args := make([]any, len(labels))
	for i, l := range labels {
		args[i] = l
	}
	marks := strings.TrimSuffix(strings.Repeat("?,", len(labels)), ",")
	return `lower(trim(status)) IN (` + marks + `)`, args
}

func (q *SQLiteQueue) queryTasks(ctx context.Context, query string, args ...any) ([]protocol.Task, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []protocol.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(s scanner) (protocol.Task, error) {
	var t protocol.Task
	var status string
	if err := s.Scan(&t.ID, &t.Instruction, &status, &t.Result, &t.SessionID, &t.CreatedAt, &t.CompletedAt); err != nil {
		return protocol.Task{}, err //nolint:wrapcheck // callers wrap
	}
	st, err := protocol.ParseStatus(status)
	if err != nil {
		return protocol.Task{}, err //nolint:wrapcheck // callers wrap
	}
	t.Status = st
	return t, nil
}

// SetProcessing implements Queue.
func (q *SQLiteQueue) SetProcessing(ctx context.Context, taskID, sessionID string) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, session_id = ? WHERE id = ?`,
		string(protocol.StatusProcessing), sessionID, taskID)
	if err != nil {
		return fmt.Errorf("set processing %s: %w", taskID, err)
	}
	return requireRow(res, taskID)
}

// SetResult implements Queue.
func (q *SQLiteQueue) SetResult(ctx context.Context, taskID string, status protocol.TaskStatus, result, sessionID string, completedAt time.Time) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, result = ?, session_id = ?, completed_at = ? WHERE id = ?`,
		string(status), result, sessionID, FormatTime(completedAt), taskID)
	if err != nil {
		return fmt.Errorf("set result %s: %w", taskID, err)
	}
	return requireRow(res, taskID)
}

// Reset returns a task to pending and clears its result, keeping its session.
func (q *SQLiteQueue) Reset(ctx context.Context, taskID string) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, result = '', completed_at = '' WHERE id = ?`,
		string(protocol.StatusPending), taskID)
	if err != nil {
		return fmt.Errorf("reset %s: %w", taskID, err)
	}
	return requireRow(res, taskID)
}

func requireRow(res sql.Result, taskID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return &protocol.TaskNotFoundError{TaskID: taskID}
	}
	return nil
}

// Control implements Queue.
func (q *SQLiteQueue) Control(ctx context.Context) (protocol.Control, error) {
	var op string
	var c protocol.Control
	err := q.db.QueryRowContext(ctx,
		`SELECT operation, interval_seconds, timeout_seconds FROM control WHERE id = 1`,
	).Scan(&op, &c.IntervalSeconds, &c.TimeoutSeconds)
	if errors.Is(err, sql.ErrNoRows) {
		return protocol.Control{Operation: protocol.OperationRun}, nil
	}
	if err != nil {
		return protocol.Control{}, fmt.Errorf("read control: %w", err)
	}
	if c.Operation, err = protocol.ParseOperation(op); err != nil {
		return protocol.Control{}, fmt.Errorf("read control: %w", err)
	}
	return c, nil
}

// SetControl replaces the control row.
func (q *SQLiteQueue) SetControl(ctx context.Context, c protocol.Control) error {
	if c.IntervalSeconds < 0 || c.TimeoutSeconds < 0 {
		return fmt.Errorf("set control: negative seconds (interval %d, timeout %d)", c.IntervalSeconds, c.TimeoutSeconds)
	}
	op, err := protocol.ParseOperation(string(c.Operation))
	if err != nil {
		return fmt.Errorf("set control: %w", err)
	}
	if _, err := q.db.ExecContext(ctx, `
		INSERT INTO control (id, operation, interval_seconds, timeout_seconds, updated_at)
		VALUES (1, ?, ?, ?, datetime('now'))
		ON CONFLICT(id) DO UPDATE SET
			operation = excluded.operation,
			interval_seconds = excluded.interval_seconds,
			timeout_seconds = excluded.timeout_seconds,
			updated_at = excluded.updated_at`,
		string(op), c.IntervalSeconds, c.TimeoutSeconds,
	); err != nil {
		return fmt.Errorf("set control: %w", err)
	}
	return nil
}

// Counts returns the number of tasks per status.
func (q *SQLiteQueue) Counts(ctx context.Context) (map[protocol.TaskStatus]int, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[protocol.TaskStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		st, err := protocol.ParseStatus(status)
		if err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[st] += n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate counts: %w", err)
	}
	return counts, nil
}
