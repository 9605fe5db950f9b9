package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"gitclauder/pkg/protocol"
)

// CommandRunner abstracts command execution for testability.
// Production implementation uses os/exec; tests provide a mock.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
	// RunInput is Run with stdin attached, for payloads too large for argv.
	RunInput(ctx context.Context, stdin io.Reader, name string, args ...string) ([]byte, error)
}

// CLIQueue implements Queue by shelling out to an external bridge command
// (for example a spreadsheet sync tool). The command speaks JSON:
//
//	<cmd> pending --json                      -> [Task, ...]
//	<cmd> processing <id> --session <sid>
//	<cmd> result <id> --status <s> --session <sid> --completed-at <ts> --result-file -
//	<cmd> control --json                      -> Control
//
// The result body goes to stdin as {"result": "<text>"}; a single argument
// is capped at 128 KiB on Linux and a full-length result can exceed it.
type CLIQueue struct {
	runner  CommandRunner
	command string
}

// NewCLIQueue creates a CLIQueue running command through runner.
func NewCLIQueue(runner CommandRunner, command string) *CLIQueue {
	return &CLIQueue{runner: runner, command: command}
}

// ListPending runs `<cmd> pending --json`. Tasks whose status is not pending
// or whose instruction is blank are dropped, so a bridge may return every row.
func (q *CLIQueue) ListPending(ctx context.Context) ([]protocol.Task, error) {
	out, err := q.runner.Run(ctx, q.command, "pending", "--json")
	if err != nil {
		return nil, fmt.Errorf("%s pending: %w", q.command, err)
	}

	var raw []cliTask
	if err := json.Unmarshal(out, &raw); err != nil {
		return nil, fmt.Errorf("parse %s pending output: %w", q.command, err)
	}

	tasks := make([]protocol.Task, 0, len(raw))
	for _, r := range raw {
		st, err := protocol.ParseStatus(r.Status)
		if err != nil {
			return nil, fmt.Errorf("task %s: %w", r.ID, err)
		}
		if st != protocol.StatusPending || strings.TrimSpace(r.Instruction) == "" {
			continue
		}
		tasks = append(tasks, protocol.Task{
			ID:          string(r.ID),
			Instruction: r.Instruction,
			Status:      st,
			Result:      r.Result,
			SessionID:   r.SessionID,
			CreatedAt:   r.CreatedAt,
			CompletedAt: r.CompletedAt,
		})
	}
	return tasks, nil
}

// cliTask accepts the bridge's loosely typed rows: ids may be numbers, and
// status may be blank or a localized label.
type cliTask struct {
	ID          flexID `json:"id"`
	Instruction string `json:"instruction"`
	Status      string `json:"status"`
	Result      string `json:"result"`
	SessionID   string `json:"session_id"`
	CreatedAt   string `json:"created_at"`
	CompletedAt string `json:"completed_at"`
}

type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("task id: %w", err)
	}
	*f = flexID(n.String())
	return nil
}

// SetProcessing runs `<cmd> processing <id> --session <sid>`.
func (q *CLIQueue) SetProcessing(ctx context.Context, taskID, sessionID string) error {
	if _, err := q.runner.Run(ctx, q.command, "processing", taskID, "--session", sessionID); err != nil {
		return fmt.Errorf("%s processing %s: %w", q.command, taskID, err)
	}
	return nil
}

// SetResult runs `<cmd> result <id> ... --result-file -` with the result
// body on stdin.
func (q *CLIQueue) SetResult(ctx context.Context, taskID string, status protocol.TaskStatus, result, sessionID string, completedAt time.Time) error {
	body, err := json.Marshal(cliResult{Result: result})
	if err != nil {
		return fmt.Errorf("encode result %s: %w", taskID, err)
	}
	_, err = q.runner.RunInput(ctx, bytes.NewReader(body), q.command, "result", taskID,
		"--status", string(status),
		"--session", sessionID,
		"--completed-at", FormatTime(completedAt),
		"--result-file", "-")
	if err != nil {
		return fmt.Errorf("%s result %s: %w", q.command, taskID, err)
	}
	return nil
}

type cliResult struct {
	Result string `json:"result"`
}

// Control runs `<cmd> control --json`. Empty output means no control record.
func (q *CLIQueue) Control(ctx context.Context) (protocol.Control, error) {
	out, err := q.runner.Run(ctx, q.command, "control", "--json")
	if err != nil {
		return protocol.Control{}, fmt.Errorf("%s control: %w", q.command, err)
	}
	if strings.TrimSpace(string(out)) == "" {
		return protocol.Control{Operation: protocol.OperationRun}, nil
	}

	var raw struct {
		Operation string          `json:"operation"`
		Interval  json.RawMessage `json:"interval_seconds"`
		Timeout   json.RawMessage `json:"timeout_seconds"`
	}
	if err := json.Unmarshal(out, &raw); err != nil {
		return protocol.Control{}, fmt.Errorf("parse %s control output: %w", q.command, err)
	}

	op, err := protocol.ParseOperation(raw.Operation)
	if err != nil {
		return protocol.Control{}, fmt.Errorf("control: %w", err)
	}
	c := protocol.Control{Operation: op}
	if c.IntervalSeconds, err = seconds(raw.Interval); err != nil {
		return protocol.Control{}, fmt.Errorf("control interval: %w", err)
	}
	if c.TimeoutSeconds, err = seconds(raw.Timeout); err != nil {
		return protocol.Control{}, fmt.Errorf("control timeout: %w", err)
	}
	return c, nil
}

// seconds parses a number or numeric string; missing or blank is zero.
func seconds(raw json.RawMessage) (int, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, nil
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("want number, got %s", raw)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("want number, got %q: %w", s, err)
	}
	return n, nil
}
