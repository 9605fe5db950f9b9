package runner_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"gitclauder/pkg/agent"
	"gitclauder/pkg/protocol"
	"gitclauder/pkg/runner"
)

func TestRunOnce_StopSkipsPass(t *testing.T) {
	h := newHarness(t)
	h.queue.control.Operation = protocol.OperationStop
	h.queue.tasks = []protocol.Task{pending("1", "x")}

	sum, err := h.runner.RunOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !sum.Skipped || sum.Listed != 0 {
		t.Errorf("summary = %+v", sum)
	}
	if h.queue.listCalls != 0 || len(h.agent.requests) != 0 {
		t.Error("stopped pass must not touch tasks")
	}
}

func TestRunOnce_QueueUnavailable(t *testing.T) {
	t.Run("control", func(t *testing.T) {
		h := newHarness(t)
		h.queue.controlErr = errors.New("network down")
		if _, err := h.runner.RunOnce(context.Background()); !errors.Is(err, runner.ErrQueueUnavailable) {
			t.Errorf("err = %v, want ErrQueueUnavailable", err)
		}
	})
	t.Run("list", func(t *testing.T) {
		h := newHarness(t)
		h.queue.listErr = errors.New("network down")
		if _, err := h.runner.RunOnce(context.Background()); !errors.Is(err, runner.ErrQueueUnavailable) {
			t.Errorf("err = %v, want ErrQueueUnavailable", err)
		}
	})
}

func TestRunOnce_ProcessesInOrderAndContinuesAfterFailure(t *testing.T) {
	h := newHarness(t)
	h.queue.tasks = []protocol.Task{
		pending("1", "fail please"),
		pending("2", "   "),
		{ID: "3", Instruction: "already done", Status: protocol.StatusCompleted},
		pending("4", "succeed"),
	}
	h.agent.reply = func(req agent.Request) agent.Result {
		if req.Prompt == "fail please" {
			return agent.Result{Success: false, Output: "error: boom"}
		}
		return agent.Result{Success: true, Output: "fine"}
	}

	sum, err := h.runner.RunOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.Listed != 2 || sum.Completed != 1 || sum.Failed != 1 || sum.Err() != nil {
		t.Errorf("summary = %+v", sum)
	}
	if len(h.queue.results) != 2 || h.queue.results[0].TaskID != "1" || h.queue.results[1].TaskID != "4" {
		t.Errorf("results = %+v", h.queue.results)
	}
	// Task 1 failed, so task 4 ran with tiers 1 and 2.
	if sum.Outcomes[1].Level != protocol.LevelWarm {
		t.Errorf("second task level = %d, want 2", sum.Outcomes[1].Level)
	}
}

func TestRunOnce_CollectsBookkeepingErrors(t *testing.T) {
	h := newHarness(t)
	h.queue.tasks = []protocol.Task{pending("1", "a"), pending("2", "b")}
	h.queue.resultErr = errors.New("write refused")

	sum, err := h.runner.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("bookkeeping errors must not abort the pass: %v", err)
	}
	if len(sum.Errors) != 2 || sum.Err() == nil {
		t.Errorf("Errors = %v", sum.Errors)
	}
	if len(h.agent.requests) != 2 {
		t.Errorf("agent ran %d times, want 2", len(h.agent.requests))
	}
}

func TestRunOnce_TimeoutFromControl(t *testing.T) {
	h := newHarness(t, runner.WithDefaultTimeout(42*time.Second))
	h.queue.tasks = []protocol.Task{pending("1", "a")}

	if _, err := h.runner.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := h.agent.last().Timeout; got != 42*time.Second {
		t.Errorf("timeout = %v, want configured default", got)
	}

	h.queue.control.TimeoutSeconds = 300
	if _, err := h.runner.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := h.agent.last().Timeout; got != 300*time.Second {
		t.Errorf("timeout = %v, want control value", got)
	}
}

func TestRunOnce_CancelledBetweenTasks(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	h.queue.tasks = []protocol.Task{pending("1", "a"), pending("2", "b")}
	h.agent.reply = func(req agent.Request) agent.Result {
		cancel()
		return agent.Result{Success: true, Output: "ok", SessionID: req.SessionID}
	}

	sum, err := h.runner.RunOnce(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if sum.Listed != 1 || len(h.agent.requests) != 1 {
		t.Errorf("summary = %+v, agent calls = %d", sum, len(h.agent.requests))
	}
}

func TestRunOnce_EmptyQueue(t *testing.T) {
	h := newHarness(t)
	sum, err := h.runner.RunOnce(context.Background())
	if err != nil || sum.Listed != 0 {
		t.Errorf("sum = %+v, err = %v", sum, err)
	}
	if len(h.events.list()) != 0 {
		t.Errorf("idle pass should not write events: %v", h.events.list())
	}
}
