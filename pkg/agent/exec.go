package agent

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

const waitDelay = 5 * time.Second

// ClaudeConfig describes how to launch the claude CLI.
type ClaudeConfig struct {
	Bin       string   // defaults to "claude"
	ExtraArgs []string // appended after the fixed flags
	Dir       string   // working directory; empty inherits the caller's
}

// ClaudeArgs returns the argument list for one non-interactive invocation.
// The prompt is not an argument: claude --print reads it from stdin, and a
// prompt carrying the cold tier can exceed the per-argument size limit.
func ClaudeArgs(sessionID string, extra []string) []string {
	args := []string{"--print", "--dangerously-skip-permissions"}
	if sessionID != "" {
		args = append(args, "--session-id", sessionID)
	}
	args = append(args, "--output-format", "text")
	return append(args, extra...)
}

// ExecSpawner implements Spawner using os/exec. Every process gets its own
// process group so Terminate and Kill reach the agent's descendants too.
type ExecSpawner struct {
	cmdFactory func(ctx context.Context, prompt, sessionID string) *exec.Cmd
}

// NewClaudeSpawner returns a spawner that runs the claude CLI.
func NewClaudeSpawner(cfg ClaudeConfig) *ExecSpawner {
	bin := cfg.Bin
	if bin == "" {
		bin = "claude"
	}
	extra := append([]string(nil), cfg.ExtraArgs...)
	return &ExecSpawner{
		cmdFactory: func(_ context.Context, prompt, sessionID string) *exec.Cmd {
			//nolint:gosec,noctx // the runner owns the lifetime; bin comes from config
			cmd := exec.Command(bin, ClaudeArgs(sessionID, extra)...)
			cmd.Dir = cfg.Dir
			cmd.Stdin = strings.NewReader(prompt)
			return cmd
		},
	}
}

// NewExecSpawnerWithFactory returns a spawner using a custom command factory.
// The factory must not tie the command to ctx; the Runner stops processes
// itself so it can escalate from SIGTERM to SIGKILL. A command left without
// stdin gets the prompt there.
func NewExecSpawnerWithFactory(factory func(ctx context.Context, prompt, sessionID string) *exec.Cmd) *ExecSpawner {
	return &ExecSpawner{cmdFactory: factory}
}

// Spawn starts the agent process.
func (s *ExecSpawner) Spawn(ctx context.Context, prompt, sessionID string) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("spawn agent: %w", err)
	}
	cmd := s.cmdFactory(ctx, prompt, sessionID)
	if cmd.Stdin == nil {
		cmd.Stdin = strings.NewReader(prompt)
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if cmd.WaitDelay == 0 {
		// A descendant that escaped the group must not hold Wait open forever.
		cmd.WaitDelay = waitDelay
	}

	p := &execProcess{cmd: cmd}
	cmd.Stdout = &p.stdout
	cmd.Stderr = &p.stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn agent %s: %w", cmd.Path, err)
	}
	return p, nil
}

// execProcess wraps exec.Cmd to implement Process. The buffers are only read
// after Wait has returned.
type execProcess struct {
	cmd    *exec.Cmd
	stdout bytes.Buffer
	stderr bytes.Buffer
}

func (p *execProcess) Wait() error {
	if err := p.cmd.Wait(); err != nil {
		return fmt.Errorf("wait: %w", err)
	}
	return nil
}

// Terminate sends SIGTERM to the whole process group.
func (p *execProcess) Terminate() error {
	if err := syscall.Kill(-p.cmd.Process.Pid, syscall.SIGTERM); err != nil {
		return fmt.Errorf("terminate: %w", err)
	}
	return nil
}

// Kill sends SIGKILL to the whole process group.
func (p *execProcess) Kill() error {
	if err := syscall.Kill(-p.cmd.Process.Pid, syscall.SIGKILL); err != nil {
		return fmt.Errorf("kill: %w", err)
	}
	return nil
}

func (p *execProcess) Output() (stdout, stderr string) { //nolint:revive // interface impl
	return p.stdout.String(), p.stderr.String()
}
