// Package agent runs the external coding agent for one task: it spawns the
// process, bounds it with a timeout, and reports output and session id.
package agent

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"gitclauder/pkg/protocol"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// NoOutput stands in for an empty stdout on success.
const NoOutput = "(no output)"

// DefaultGrace is how long a terminated process gets before SIGKILL.
const DefaultGrace = 3 * time.Second

// ErrTimeout is wrapped into Result.Err when an invocation exceeds its budget.
var ErrTimeout = errors.New("agent timed out")

// Request is one agent invocation.
type Request struct {
	Prompt    string
	SessionID string        // empty lets the agent pick or report one
	Timeout   time.Duration // zero uses the runner default
}

// Result is what the agent produced. Output is always set: stdout on success,
// a diagnostic on failure.
type Result struct {
	Success   bool
	Output    string
	SessionID string
	Stderr    string
	Err       error
	Duration  time.Duration
}

// Invoker is implemented by anything that can run one task prompt.
type Invoker interface {
	Invoke(ctx context.Context, req Request) Result
}

// Process represents a running agent subprocess.
type Process interface {
	Wait() error
	Terminate() error // polite stop (SIGTERM to the process group)
	Kill() error      // forced stop (SIGKILL to the process group)
	Output() (stdout, stderr string)
}

// Spawner starts agent processes.
type Spawner interface {
	Spawn(ctx context.Context, prompt, sessionID string) (Process, error)
}

// Runner implements Invoker on top of a Spawner.
type Runner struct {
	spawner Spawner
	timeout time.Duration
	grace   time.Duration
	log     *zap.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithTimeout sets the default per-invocation timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithGrace sets the SIGTERM to SIGKILL grace period.
func WithGrace(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.grace = d
		}
	}
}

// WithLogger sets the runner's logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.log = l
		}
	}
}

// NewRunner creates a Runner backed by sp.
func NewRunner(sp Spawner, opts ...Option) *Runner {
	r := &Runner{
		spawner: sp,
		timeout: protocol.DefaultTimeoutSeconds * time.Second,
		grace:   DefaultGrace,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Invoke runs the agent once and never returns without the process having
// exited.
func (r *Runner) Invoke(ctx context.Context, req Request) Result {
	start := time.Now()
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = r.timeout
	}

	proc, err := r.spawner.Spawn(ctx, req.Prompt, req.SessionID)
	if err != nil {
		return failure(req.SessionID, "", err, time.Since(start))
	}
	r.log.Debug("agent started", zap.String("session_id", req.SessionID), zap.Duration("timeout", timeout))

	waitErr := r.waitForProcess(ctx, proc, timeout)
	stdout, stderr := proc.Output()
	elapsed := time.Since(start)

	if waitErr != nil {
		r.log.Warn("agent failed", zap.String("session_id", req.SessionID),
			zap.Duration("elapsed", elapsed), zap.Error(waitErr))
		return failure(req.SessionID, stderr, waitErr, elapsed)
	}

	sid := req.SessionID
	if sid == "" {
		sid = CaptureSessionID(stdout)
	}
	out := stdout
	if out == "" {
		out = NoOutput
	}
	return Result{Success: true, Output: out, SessionID: sid, Stderr: stderr, Duration: elapsed}
}

// waitForProcess waits for proc to exit, stopping it on timeout or
// cancellation.
func (r *Runner) waitForProcess(ctx context.Context, proc Process, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() {
		done <- proc.Wait()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("agent exited: %w", err)
		}
		return nil
	case <-timer.C:
		r.stop(proc, done)
		return fmt.Errorf("%w after %s", ErrTimeout, timeout)
	case <-ctx.Done():
		r.stop(proc, done)
		return fmt.Errorf("agent cancelled: %w", ctx.Err())
	}
}

// stop sends SIGTERM, waits up to the grace period, then SIGKILLs. It always
// drains done so the waiting goroutine exits.
func (r *Runner) stop(proc Process, done <-chan error) {
	if err := proc.Terminate(); err != nil {
		r.log.Debug("terminate failed, killing", zap.Error(err))
		_ = proc.Kill()
		<-done
		return
	}

	grace := time.NewTimer(r.grace)
	defer grace.Stop()

	select {
	case <-done:
	case <-grace.C:
		r.log.Warn("agent ignored SIGTERM, killing process group", zap.Duration("grace", r.grace))
		_ = proc.Kill()
		<-done
	}
}

func failure(sessionID, stderr string, err error, elapsed time.Duration) Result {
	return Result{
		Success:   false,
		Output:    fmt.Sprintf("error: %v\n\nstderr: %s", err, stderr),
		SessionID: sessionID,
		Stderr:    stderr,
		Err:       err,
		Duration:  elapsed,
	}
}

var uuidPattern = regexp.MustCompile(`(?i)[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)

// CaptureSessionID returns the first canonical UUID in text, or "".
func CaptureSessionID(text string) string {
	for _, m := range uuidPattern.FindAllString(text, -1) {
		if id, err := uuid.Parse(m); err == nil {
			return id.String()
		}
	}
	return ""
}
