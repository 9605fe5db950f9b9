package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInit_SamplesAndTasks(t *testing.T) {
	home := setupHome(t)

	out := mustRun(t, "init", "--samples")
	if !containsAll(out, "initialized", "2 pending") {
		t.Errorf("init output:\n%s", out)
	}
	if _, err := os.Stat(filepath.Join(home, "queue.db")); err != nil {
		t.Errorf("queue.db not created: %v", err)
	}
	if fi, err := os.Stat(filepath.Join(home, "archive")); err != nil || !fi.IsDir() {
		t.Errorf("archive dir not created: %v", err)
	}

	// A second init must not seed again.
	mustRun(t, "init", "--samples")
	out = mustRun(t, "tasks")
	if got := strings.Count(out, "pending"); got != 2 {
		t.Errorf("want 2 pending rows, got %d:\n%s", got, out)
	}
}

func TestAdd_ThenFilterByStatus(t *testing.T) {
	setupHome(t)

	if out := mustRun(t, "add", "write", "a", "haiku"); !contains(out, "added task 1") {
		t.Errorf("add output: %s", out)
	}
	out := mustRun(t, "tasks", "--status", "pending")
	if !contains(out, "write a haiku") {
		t.Errorf("tasks output:\n%s", out)
	}
	if out := mustRun(t, "tasks", "--status", "完了"); !contains(out, "no tasks") {
		t.Errorf("completed filter should be empty:\n%s", out)
	}
	if _, _, err := executeCommand("tasks", "--status", "bogus"); err == nil {
		t.Error("expected error for unknown status")
	}
}

func TestControl_GetAndSet(t *testing.T) {
	setupHome(t)

	out := mustRun(t, "control")
	if !containsAll(out, "operation: run", "interval:  300s", "timeout:   300s") {
		t.Errorf("default control:\n%s", out)
	}

	out = mustRun(t, "control", "--operation", "停止", "--timeout", "2m")
	if !containsAll(out, "operation: stop", "interval:  300s", "timeout:   120s") {
		t.Errorf("updated control:\n%s", out)
	}

	if _, _, err := executeCommand("control", "--operation", "pause"); err == nil {
		t.Error("expected error for unknown operation")
	}
}

func TestRun_CompletesTaskAndArchives(t *testing.T) {
	setupHome(t)
	fakeClaude(t, `echo "the answer is 42"`)

	mustRun(t, "add", "what is the answer")
	out := mustRun(t, "run")
	if !containsAll(out, "processed 1: 1 completed, 0 failed", "level 1 -> 1") {
		t.Errorf("run output:\n%s", out)
	}

	if out := mustRun(t, "tasks", "--status", "completed"); !contains(out, "what is the answer") {
		t.Errorf("task not completed:\n%s", out)
	}

	ctxOut := mustRun(t, "context", "1")
	if !containsAll(ctxOut, "## [Task 1]", "### Instruction\nwhat is the answer", "### Result\nthe answer is 42") {
		t.Errorf("context:\n%s", ctxOut)
	}

	logs := mustRun(t, "logs", "--task", "1", "--tail", "50")
	if !containsAll(logs, "load_state", "invoke", "report_result", "task_done") {
		t.Errorf("logs:\n%s", logs)
	}
	if strings.Index(logs, "load_state") > strings.Index(logs, "task_done") {
		t.Errorf("logs should be chronological:\n%s", logs)
	}

	status := mustRun(t, "status")
	if !containsAll(status, "next level", "tier 1", "1 records", "completed 1") {
		t.Errorf("status:\n%s", status)
	}
}

func TestRun_AgentFailureEscalates(t *testing.T) {
	setupHome(t)
	fakeClaude(t, `echo "cannot continue" >&2; exit 3`)

	mustRun(t, "add", "do something")
	out := mustRun(t, "run")
	if !containsAll(out, "0 completed, 1 failed", "level 1 -> 2") {
		t.Errorf("run output:\n%s", out)
	}
	if out := mustRun(t, "tasks", "--status", "error"); !contains(out, "do something") {
		t.Errorf("task not marked error:\n%s", out)
	}
	if ctxOut := mustRun(t, "context"); !contains(ctxOut, "cannot continue") {
		t.Errorf("stderr should be archived:\n%s", ctxOut)
	}

	// The next pass runs with tiers 1 and 2.
	fakeClaude(t, `echo fine`)
	mustRun(t, "add", "try again")
	if out := mustRun(t, "run"); !contains(out, "level 2 -> 1") {
		t.Errorf("second run output:\n%s", out)
	}
}

func TestRun_StopSkips(t *testing.T) {
	setupHome(t)
	fakeClaude(t, `echo should-not-run`)

	mustRun(t, "add", "x")
	mustRun(t, "control", "--operation", "stop")
	if out := mustRun(t, "run"); !contains(out, "skipped: operation is stop") {
		t.Errorf("run output:\n%s", out)
	}
	if out := mustRun(t, "tasks", "--status", "pending"); !contains(out, "x") {
		t.Errorf("task should still be pending:\n%s", out)
	}
}

func TestRun_EmptyQueue(t *testing.T) {
	setupHome(t)
	if out := mustRun(t, "run"); !contains(out, "no pending tasks") {
		t.Errorf("run output:\n%s", out)
	}
}

func TestRun_InvalidTimeoutFlag(t *testing.T) {
	setupHome(t)
	if _, _, err := executeCommand("run", "--timeout", "soon"); err == nil {
		t.Error("expected error")
	}
}

func TestReset_RetriesTask(t *testing.T) {
	setupHome(t)
	fakeClaude(t, `exit 1`)

	mustRun(t, "add", "flaky")
	mustRun(t, "run")
	if out := mustRun(t, "retry", "1"); !contains(out, "task 1 reset to pending") {
		t.Errorf("retry output: %s", out)
	}
	if out := mustRun(t, "tasks", "--status", "pending"); !contains(out, "flaky") {
		t.Errorf("task not pending:\n%s", out)
	}

	_, _, err := executeCommand("reset", "99")
	if err == nil || !contains(err.Error(), "99") {
		t.Errorf("reset of unknown task: %v", err)
	}
}

func TestContext_EmptyAndInvalid(t *testing.T) {
	setupHome(t)

	out, errOut, err := executeCommand("context")
	if err != nil || out != "" || !contains(errOut, "no archived context at level 1") {
		t.Errorf("out=%q err=%q %v", out, errOut, err)
	}
	if _, _, err := executeCommand("context", "4"); err == nil {
		t.Error("expected error for level 4")
	}
}

func TestLogs_Empty(t *testing.T) {
	setupHome(t)
	if out := mustRun(t, "logs"); !contains(out, "no events found") {
		t.Errorf("logs output: %s", out)
	}
}

func TestConfig_PrintsResolved(t *testing.T) {
	home := setupHome(t)
	yml := "claude:\n  bin: /opt/claude\ntimeout_seconds: 90\n"
	if err := os.WriteFile(filepath.Join(home, "config.yaml"), []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GITCLAUDER_CLAUDE_BIN", "")

	out := mustRun(t, "config")
	if !containsAll(out, "# source: "+filepath.Join(home, "config.yaml"), "bin: /opt/claude", "timeout_seconds: 90") {
		t.Errorf("config output:\n%s", out)
	}

	out = mustRun(t, "config", "--toml")
	if !containsAll(out, "timeout_seconds = 90", "[claude]", "/opt/claude") {
		t.Errorf("toml output:\n%s", out)
	}
}

func TestHomeFlagOverridesEnv(t *testing.T) {
	setupHome(t)
	other := t.TempDir()

	mustRun(t, "--home", other, "add", "elsewhere")
	if _, err := os.Stat(filepath.Join(other, "queue.db")); err != nil {
		t.Errorf("--home ignored: %v", err)
	}
}

func TestLogLevelFlagValidated(t *testing.T) {
	setupHome(t)
	if _, _, err := executeCommand("--log-level", "loud", "status"); err == nil {
		t.Error("expected error for bad log level")
	}
}
