package runner_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gitclauder/pkg/protocol"
	"gitclauder/pkg/runner"
)

func waitSignal(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func startLoop(t *testing.T, run func(ctx context.Context) error) (cancel func()) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx) }()
	return func() {
		stop()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("loop returned %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("loop did not stop after cancel")
		}
	}
}

// realClockHarness uses the wall clock so settle windows behave.
func realClockHarness(t *testing.T, opts ...runner.Option) *harness {
	h := newHarness(t)
	h.queue.listed = make(chan struct{}, 1)
	h.queue.control = protocol.Control{Operation: protocol.OperationRun, IntervalSeconds: 3600}
	h.runner = h.build(append([]runner.Option{runner.WithClock(time.Now)}, opts...)...)
	return h
}

func TestLoop_WakesEarlyOnChange(t *testing.T) {
	h := realClockHarness(t, runner.WithSettle(0))
	changes := make(chan struct{}, 1)

	stop := startLoop(t, func(ctx context.Context) error { return h.runner.Loop(ctx, changes) })
	defer stop()

	waitSignal(t, h.queue.listed, "first pass")
	changes <- struct{}{}
	waitSignal(t, h.queue.listed, "second pass after change")
}

func TestLoop_IgnoresChangesInsideSettleWindow(t *testing.T) {
	h := realClockHarness(t, runner.WithSettle(time.Hour))
	changes := make(chan struct{}, 1)

	stop := startLoop(t, func(ctx context.Context) error { return h.runner.Loop(ctx, changes) })
	waitSignal(t, h.queue.listed, "first pass")
	changes <- struct{}{}

	select {
	case <-h.queue.listed:
		t.Error("change inside settle window started a pass")
	case <-time.After(200 * time.Millisecond):
	}
	stop()
}

func TestLoop_PollsOnInterval(t *testing.T) {
	h := realClockHarness(t, runner.WithDefaultInterval(10*time.Millisecond))
	h.queue.control.IntervalSeconds = 0

	stop := startLoop(t, func(ctx context.Context) error { return h.runner.Loop(ctx, nil) })
	defer stop()

	waitSignal(t, h.queue.listed, "first pass")
	waitSignal(t, h.queue.listed, "second pass from polling")
}

func TestLoop_SurvivesQueueErrors(t *testing.T) {
	h := realClockHarness(t, runner.WithDefaultInterval(10*time.Millisecond))
	h.queue.control.IntervalSeconds = 0
	h.queue.listErr = os.ErrDeadlineExceeded

	stop := startLoop(t, func(ctx context.Context) error { return h.runner.Loop(ctx, nil) })
	defer stop()

	waitSignal(t, h.queue.listed, "first failing pass")
	waitSignal(t, h.queue.listed, "retry")
}

func TestWatch_QueueFileChangeTriggersPass(t *testing.T) {
	h := realClockHarness(t, runner.WithSettle(0))
	dbPath := filepath.Join(t.TempDir(), "queue.db")
	if err := os.WriteFile(dbPath, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	stop := startLoop(t, func(ctx context.Context) error { return h.runner.Watch(ctx, dbPath) })
	defer stop()

	waitSignal(t, h.queue.listed, "first pass")
	// Give the watcher goroutine a moment to be registered before writing.
	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(dbPath, []byte("changed"), 0o600); err != nil {
		t.Fatal(err)
	}
	waitSignal(t, h.queue.listed, "pass after queue file write")
}

func TestWatch_MissingDirectoryFallsBackToPolling(t *testing.T) {
	h := realClockHarness(t, runner.WithDefaultInterval(10*time.Millisecond))
	h.queue.control.IntervalSeconds = 0
	dbPath := filepath.Join(t.TempDir(), "missing", "queue.db")

	stop := startLoop(t, func(ctx context.Context) error { return h.runner.Watch(ctx, dbPath) })
	defer stop()

	waitSignal(t, h.queue.listed, "first pass")
	waitSignal(t, h.queue.listed, "polling pass")
}
