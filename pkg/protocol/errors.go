package protocol

import (
	"errors"
	"fmt"
)

// ErrTaskNotFound is the sentinel every TaskNotFoundError unwraps to.
var ErrTaskNotFound = errors.New("task not found")

// ErrInvalidLevel is the sentinel every InvalidLevelError unwraps to.
var ErrInvalidLevel = errors.New("invalid priority level")

// TaskNotFoundError represents a task lookup failure.
// It enables typed error discrimination via errors.As.
type TaskNotFoundError struct {
	TaskID string
}

func (e *TaskNotFoundError) Error() string {
	return fmt.Sprintf("task %s not found", e.TaskID)
}

func (e *TaskNotFoundError) Unwrap() error { return ErrTaskNotFound }

// InvalidLevelError reports a priority level outside 1..3.
type InvalidLevelError struct {
	Level Level
}

func (e *InvalidLevelError) Error() string {
	return fmt.Sprintf("invalid priority level %d (want 1, 2 or 3)", int(e.Level))
}

func (e *InvalidLevelError) Unwrap() error { return ErrInvalidLevel }
