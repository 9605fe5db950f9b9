package agent //nolint:testpackage // internal test needs execProcess

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"
)

func shSpawner(script string) *ExecSpawner {
	return NewExecSpawnerWithFactory(func(_ context.Context, _, _ string) *exec.Cmd {
		return exec.Command("sh", "-c", script) //nolint:noctx // runner owns the lifetime
	})
}

func TestClaudeArgs(t *testing.T) {
	got := ClaudeArgs("", nil)
	want := []string{"--print", "--dangerously-skip-permissions", "--output-format", "text"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ClaudeArgs = %v, want %v", got, want)
	}

	got = ClaudeArgs("sid", []string{"--model", "opus"})
	want = []string{"--print", "--dangerously-skip-permissions", "--session-id", "sid",
		"--output-format", "text", "--model", "opus"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ClaudeArgs = %v, want %v", got, want)
	}
}

func TestNewClaudeSpawner_BuildsCommand(t *testing.T) {
	sp := NewClaudeSpawner(ClaudeConfig{Bin: "/opt/claude", Dir: "/work", ExtraArgs: []string{"--verbose"}})
	cmd := sp.cmdFactory(context.Background(), "prompt text", "sid")

	if cmd.Path != "/opt/claude" {
		t.Errorf("Path = %q", cmd.Path)
	}
	if cmd.Dir != "/work" {
		t.Errorf("Dir = %q", cmd.Dir)
	}
	if last := cmd.Args[len(cmd.Args)-1]; last != "--verbose" {
		t.Errorf("last arg = %q, want extra args last", last)
	}
	for _, a := range cmd.Args {
		if a == "prompt text" {
			t.Errorf("prompt passed as an argument: %v", cmd.Args)
		}
	}
	if cmd.Stdin == nil {
		t.Fatal("prompt not attached to stdin")
	}
	in, err := io.ReadAll(cmd.Stdin)
	if err != nil || string(in) != "prompt text" {
		t.Errorf("stdin = %q, %v", in, err)
	}
}

// Tier 3 is unbounded, so a level-3 prompt can be far larger than one
// command-line argument may be.
func TestNewClaudeSpawner_PromptOverArgLimit(t *testing.T) {
	bin := filepath.Join(t.TempDir(), "claude")
	if err := os.WriteFile(bin, []byte("#!/bin/sh\nwc -c\n"), 0o755); err != nil { //nolint:gosec // test script
		t.Fatal(err)
	}
	prompt := strings.Repeat("x", 200*1024)

	r := NewRunner(NewClaudeSpawner(ClaudeConfig{Bin: bin}))
	res := r.Invoke(context.Background(), Request{Prompt: prompt, SessionID: "sid", Timeout: 10 * time.Second})

	if !res.Success {
		t.Fatalf("expected success: %+v", res.Err)
	}
	if got := strings.TrimSpace(res.Output); got != strconv.Itoa(len(prompt)) {
		t.Errorf("agent read %s bytes of prompt, want %d", got, len(prompt))
	}
}

func TestExecSpawner_FactoryCommandGetsPromptOnStdin(t *testing.T) {
	r := NewRunner(shSpawner("cat"))
	res := r.Invoke(context.Background(), Request{Prompt: "from stdin", Timeout: 10 * time.Second})

	if !res.Success || res.Output != "from stdin" {
		t.Errorf("result = %+v", res)
	}
}

func TestExecSpawner_CapturesStdoutAndStderr(t *testing.T) {
	r := NewRunner(shSpawner("echo out; echo err >&2"))
	res := r.Invoke(context.Background(), Request{Prompt: "p", Timeout: 10 * time.Second})

	if !res.Success {
		t.Fatalf("expected success: %+v", res)
	}
	if res.Output != "out\n" || res.Stderr != "err\n" {
		t.Errorf("Output=%q Stderr=%q", res.Output, res.Stderr)
	}
}

func TestExecSpawner_NonZeroExit(t *testing.T) {
	r := NewRunner(shSpawner("echo bad >&2; exit 3"))
	res := r.Invoke(context.Background(), Request{Prompt: "p", Timeout: 10 * time.Second})

	if res.Success {
		t.Fatal("expected failure")
	}
	if !strings.Contains(res.Output, "exit status 3") || !strings.Contains(res.Output, "bad") {
		t.Errorf("Output = %q", res.Output)
	}
}

func TestExecSpawner_MissingBinary(t *testing.T) {
	sp := NewClaudeSpawner(ClaudeConfig{Bin: "/nonexistent/claude-binary"})
	if _, err := sp.Spawn(context.Background(), "p", ""); err == nil {
		t.Fatal("expected spawn error")
	}
}

func TestExecSpawner_TimeoutKillsProcessGroup(t *testing.T) {
	// The shell prints its background child's pid and waits; both must die.
	sp := shSpawner("sleep 30 & echo $!; wait")
	r := NewRunner(sp, WithGrace(500*time.Millisecond))

	proc, err := sp.Spawn(context.Background(), "p", "")
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	start := time.Now()
	if err := r.waitForProcess(context.Background(), proc, 200*time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Fatalf("waitForProcess = %v, want ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("stop took %v, process was not stopped promptly", elapsed)
	}

	stdout, _ := proc.Output()
	pid, err := strconv.Atoi(strings.TrimSpace(stdout))
	if err != nil {
		t.Fatalf("could not read child pid from %q", stdout)
	}
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if !alive(pid) {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Errorf("background child %d still alive after group termination", pid)
}

func TestExecSpawner_SigtermIgnoredEscalatesToSigkill(t *testing.T) {
	r := NewRunner(shSpawner("trap '' TERM; sleep 30"), WithGrace(200*time.Millisecond))

	start := time.Now()
	res := r.Invoke(context.Background(), Request{Prompt: "p", Timeout: 100 * time.Millisecond})
	if !errors.Is(res.Err, ErrTimeout) {
		t.Fatalf("Err = %v, want ErrTimeout", res.Err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Invoke took %v, SIGKILL escalation did not happen", elapsed)
	}
}

// alive reports whether pid is running. Zombies count as dead: a reparented
// child may not be reaped promptly inside containers.
func alive(pid int) bool {
	if err := syscall.Kill(pid, 0); errors.Is(err, syscall.ESRCH) {
		return false
	}
	stat, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return false
	}
	// Format: pid (comm) state ...
	i := strings.LastIndexByte(string(stat), ')')
	if i < 0 || i+2 >= len(stat) {
		return true
	}
	return stat[i+2] != 'Z'
}
