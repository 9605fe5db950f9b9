// Package queue is the task-queue boundary: the runner lists pending tasks,
// marks them processing and writes results back through Queue.
package queue

import (
	"context"
	"time"

	"gitclauder/pkg/protocol"
)

// ErrNotFound is returned when a task id does not exist. Errors carrying it
// are *protocol.TaskNotFoundError values.
var ErrNotFound = protocol.ErrTaskNotFound

// Queue is the collaborator the runner drives.
type Queue interface {
	// ListPending returns pending tasks with a non-blank instruction, oldest first.
	ListPending(ctx context.Context) ([]protocol.Task, error)
	SetProcessing(ctx context.Context, taskID, sessionID string) error
	SetResult(ctx context.Context, taskID string, status protocol.TaskStatus, result, sessionID string, completedAt time.Time) error
	// Control returns run parameters. A queue without a control record
	// returns OperationRun with zero interval and timeout.
	Control(ctx context.Context) (protocol.Control, error)
}

// Truncate caps text at limit characters (runes), appending marker when
// anything was cut. A non-positive limit disables truncation.
func Truncate(text string, limit int, marker string) string {
	if limit <= 0 {
		return text
	}
	n := 0
	for i := range text {
		if n == limit {
			return text[:i] + marker
		}
		n++
	}
	return text
}

// FormatTime renders timestamps the way every queue stores them.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
