package protocol

import (
	"fmt"
	"strings"
)

// Level is how many archive tiers, counted from the hottest, are loaded as
// context for a task.
type Level int

// Priority levels.
const (
	LevelHot  Level = 1 // tier 1 only
	LevelWarm Level = 2 // tiers 1 and 2
	LevelCold Level = 3 // all tiers
)

// DefaultLevel is used when no valid memory state exists.
const DefaultLevel = LevelHot

// Valid reports whether l is one of the three known levels.
func (l Level) Valid() bool {
	return l >= LevelHot && l <= LevelCold
}

// TaskStatus is the lifecycle state of a queued task.
type TaskStatus string

// Task status constants.
const (
	StatusPending    TaskStatus = "pending"
	StatusProcessing TaskStatus = "processing"
	StatusCompleted  TaskStatus = "completed"
	StatusError      TaskStatus = "error"
)

// statusAliases maps the Japanese labels used by spreadsheet-backed queues
// onto the canonical statuses.
var statusAliases = map[string]TaskStatus{ //nolint:gochecknoglobals // read-only lookup table
	"待機中": StatusPending,
	"処理中": StatusProcessing,
	"完了":  StatusCompleted,
	"エラー": StatusError,
}

// ParseStatus normalizes a status label. Blank input is pending, matching the
// spreadsheet convention where a new row has no status yet.
func ParseStatus(s string) (TaskStatus, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return StatusPending, nil
	}
	if alias, ok := statusAliases[s]; ok {
		return alias, nil
	}
	switch st := TaskStatus(strings.ToLower(s)); st {
	case StatusPending, StatusProcessing, StatusCompleted, StatusError:
		return st, nil
	}
	return "", fmt.Errorf("unknown task status %q", s)
}

// StatusLabels returns every stored label ParseStatus maps to st, canonical
// name first. Pending includes the blank label.
func StatusLabels(st TaskStatus) []string {
	labels := []string{string(st)}
	for label, alias := range statusAliases {
		if alias == st {
			labels = append(labels, label)
		}
	}
	if st == StatusPending {
		labels = append(labels, "")
	}
	return labels
}

// Task is one queued instruction. The queue owns its lifecycle; the runner
// only reads Instruction/SessionID and writes status and result back.
type Task struct {
	ID          string     `json:"id"`
	Instruction string     `json:"instruction"`
	Status      TaskStatus `json:"status"`
	Result      string     `json:"result,omitempty"`
	SessionID   string     `json:"session_id,omitempty"`
	CreatedAt   string     `json:"created_at,omitempty"`
	CompletedAt string     `json:"completed_at,omitempty"`
}

// Operation gates whether a run pass executes at all.
type Operation string

// Operation constants.
const (
	OperationRun  Operation = "run"
	OperationStop Operation = "stop"
)

// ParseOperation accepts the canonical values and the spreadsheet
// labels (稼働 / 停止).
func ParseOperation(s string) (Operation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "run", "running", "稼働":
		return OperationRun, nil
	case "stop", "stopped", "停止":
		return OperationStop, nil
	}
	return "", fmt.Errorf("unknown operation %q", s)
}

// Control carries the queue's auxiliary run parameters. Zero seconds means
// "not set".
type Control struct {
	Operation       Operation `json:"operation"`
	IntervalSeconds int       `json:"interval_seconds"`
	TimeoutSeconds  int       `json:"timeout_seconds"`
}

// DefaultControl is the control row written by a fresh init.
func DefaultControl() Control {
	return Control{
		Operation:       OperationRun,
		IntervalSeconds: DefaultIntervalSeconds,
		TimeoutSeconds:  DefaultControlTimeoutSeconds,
	}
}
