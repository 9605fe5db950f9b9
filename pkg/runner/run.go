package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gitclauder/pkg/protocol"

	"go.uber.org/zap"
)

// Run-level event types.
const (
	EventRunSkipped = "run_skipped"
	EventRunDone    = "run_done"
)

// Summary reports one pass over the queue.
type Summary struct {
	Skipped   bool // control operation was stop
	Control   protocol.Control
	Listed    int
	Completed int
	Failed    int
	Outcomes  []Outcome
	// Errors holds per-task bookkeeping failures. They never stop the pass.
	Errors []error
}

// Err joins Errors, or returns nil.
func (s Summary) Err() error {
	return errors.Join(s.Errors...)
}

// RunOnce processes every pending task once, in queue order. It fails only
// when the queue cannot be read or ctx is cancelled between tasks.
func (r *Runner) RunOnce(ctx context.Context) (Summary, error) {
	var sum Summary

	ctrl, err := r.queue.Control(ctx)
	if err != nil {
		return sum, fmt.Errorf("%w: read control: %w", ErrQueueUnavailable, err)
	}
	sum.Control = ctrl

	if ctrl.Operation == protocol.OperationStop {
		sum.Skipped = true
		r.log.Info("operation is stop, skipping pass")
		r.event(ctx, EventRunSkipped, "", "", map[string]any{"operation": string(ctrl.Operation)})
		return sum, nil
	}

	tasks, err := r.queue.ListPending(ctx)
	if err != nil {
		return sum, fmt.Errorf("%w: list pending: %w", ErrQueueUnavailable, err)
	}

	timeout := r.defaultTimeout
	if ctrl.TimeoutSeconds > 0 {
		timeout = time.Duration(ctrl.TimeoutSeconds) * time.Second
	}

	for _, task := range tasks {
		if strings.TrimSpace(task.Instruction) == "" || (task.Status != "" && task.Status != protocol.StatusPending) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return sum, fmt.Errorf("run interrupted: %w", err)
		}
		sum.Listed++

		out := r.ProcessTask(ctx, task, timeout)
		sum.Outcomes = append(sum.Outcomes, out)
		switch out.Status {
		case protocol.StatusCompleted:
			sum.Completed++
		case protocol.StatusError:
			sum.Failed++
		}
		if out.Err != nil {
			sum.Errors = append(sum.Errors, out.Err)
		}
	}

	if sum.Listed > 0 {
		r.event(ctx, EventRunDone, "", "", map[string]any{
			"listed":    sum.Listed,
			"completed": sum.Completed,
			"failed":    sum.Failed,
			"errors":    len(sum.Errors),
		})
		r.log.Info("pass finished",
			zap.Int("listed", sum.Listed),
			zap.Int("completed", sum.Completed),
			zap.Int("failed", sum.Failed),
			zap.Int("errors", len(sum.Errors)))
	} else {
		r.log.Debug("no pending tasks")
	}
	return sum, nil
}
