package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gitclauder/pkg/agent"
	"gitclauder/pkg/archive"
	"gitclauder/pkg/eventlog"
	"gitclauder/pkg/protocol"
	"gitclauder/pkg/queue"
	"gitclauder/pkg/state"

	"go.uber.org/zap"
)

// Phase names one step of a task cycle. Every transition is written to the
// event log under the phase name.
type Phase string

// Cycle phases, in order.
const (
	PhaseLoadState      Phase = "load_state"
	PhaseLoadContext    Phase = "load_context"
	PhaseMarkProcessing Phase = "mark_processing"
	PhaseInvoke         Phase = "invoke"
	PhasePersistRecord  Phase = "persist_record"
	PhaseRebalance      Phase = "rebalance"
	PhaseAnalyze        Phase = "analyze"
	PhaseSaveState      Phase = "save_state"
	PhaseReportResult   Phase = "report_result"
)

// Terminal event types.
const (
	EventTaskDone   = "task_done"
	EventTaskFailed = "task_failed"
)

const eventSource = "runner"

// promptSeparator sits between archived context and the new instruction.
const promptSeparator = "\n\n---\n\nNEW INSTRUCTION: "

// BuildPrompt prefixes instruction with archived context, if any.
func BuildPrompt(history, instruction string) string {
	if history == "" {
		return instruction
	}
	return history + promptSeparator + instruction
}

// Outcome describes one finished task cycle.
type Outcome struct {
	TaskID    string
	SessionID string
	Status    protocol.TaskStatus
	Level     protocol.Level // context level the task ran with
	NextLevel protocol.Level // level saved for the next task
	Moves     []archive.Move
	Duration  time.Duration
	// Err collects bookkeeping failures (archive, state, queue writes). The
	// agent's own failure is reflected in Status, not Err.
	Err error
}

// ProcessTask runs one full cycle for task. timeout bounds the agent; zero
// uses the default.
//
// Once the agent has been invoked the remaining phases run to completion
// even if ctx is cancelled, so a task is never left marked processing.
func (r *Runner) ProcessTask(ctx context.Context, task protocol.Task, timeout time.Duration) Outcome {
	start := r.now()
	out := Outcome{TaskID: task.ID}
	if timeout <= 0 {
		timeout = r.defaultTimeout
	}
	log := r.log.With(zap.String("task_id", task.ID))

	// LoadState
	st := r.state.Load(ctx)
	out.Level = st.NextPriorityLevel
	r.event(ctx, string(PhaseLoadState), task.ID, task.SessionID, map[string]any{"level": int(out.Level)})

	// LoadContext
	history := r.archive.Load(ctx, out.Level)
	prompt := BuildPrompt(history, task.Instruction)
	r.event(ctx, string(PhaseLoadContext), task.ID, task.SessionID, map[string]any{
		"context_bytes": len(history),
		"prompt_bytes":  len(prompt),
	})

	sessionID := task.SessionID
	if sessionID == "" {
		sessionID = r.newSessionID()
	}
	out.SessionID = sessionID

	// MarkProcessing
	if err := r.queue.SetProcessing(ctx, task.ID, sessionID); err != nil {
		out.Err = fmt.Errorf("task %s: mark processing: %w", task.ID, err)
		out.Status = protocol.StatusPending
		out.NextLevel = out.Level
		out.Duration = r.now().Sub(start)
		log.Error("cannot mark task processing, skipping", zap.Error(err))
		r.event(ctx, EventTaskFailed, task.ID, sessionID, map[string]any{"error": err.Error()})
		return out
	}
	r.event(ctx, string(PhaseMarkProcessing), task.ID, sessionID, nil)
	log.Info("invoking agent", zap.String("session_id", sessionID),
		zap.Int("level", int(out.Level)), zap.Duration("timeout", timeout))

	// Invoke
	res := r.agent.Invoke(ctx, agent.Request{Prompt: prompt, SessionID: sessionID, Timeout: timeout})
	if res.SessionID != "" {
		sessionID = res.SessionID
		out.SessionID = sessionID
	}
	payload := map[string]any{"success": res.Success, "duration_ms": res.Duration.Milliseconds()}
	if res.Err != nil {
		payload["error"] = res.Err.Error()
	}

	bg := context.WithoutCancel(ctx)
	r.event(bg, string(PhaseInvoke), task.ID, sessionID, payload)

	var errs []error

	// PersistRecord: the archive keeps the full text, even on failure.
	rec := archive.Record{
		TaskID:      task.ID,
		SessionID:   sessionID,
		Timestamp:   r.now(),
		Instruction: task.Instruction,
		Result:      res.Output,
	}
	if err := r.archive.Append(bg, rec); err != nil {
		errs = append(errs, fmt.Errorf("persist record: %w", err))
		log.Error("archive append failed", zap.Error(err))
	} else {
		r.event(bg, string(PhasePersistRecord), task.ID, sessionID, map[string]any{"result_bytes": len(res.Output)})

		// Rebalance
		moves, err := r.archive.Rebalance(bg)
		out.Moves = moves
		if err != nil {
			errs = append(errs, fmt.Errorf("rebalance: %w", err))
			log.Error("archive rebalance failed", zap.Error(err))
		}
		r.event(bg, string(PhaseRebalance), task.ID, sessionID, movesPayload(moves))
	}

	// Analyze
	out.NextLevel = r.analyzer.Decide(res.Output, res.Success)
	r.event(bg, string(PhaseAnalyze), task.ID, sessionID, map[string]any{"next_level": int(out.NextLevel)})

	// SaveState
	if err := r.state.Save(bg, state.State{NextPriorityLevel: out.NextLevel}); err != nil {
		errs = append(errs, fmt.Errorf("save state: %w", err))
		log.Error("memory state save failed", zap.Error(err))
	} else {
		r.event(bg, string(PhaseSaveState), task.ID, sessionID, map[string]any{"level": int(out.NextLevel)})
	}

	// ReportResult
	out.Status = protocol.StatusCompleted
	if !res.Success {
		out.Status = protocol.StatusError
	}
	text := queue.Truncate(res.Output, r.maxResult, r.marker)
	if err := r.queue.SetResult(bg, task.ID, out.Status, text, sessionID, r.now()); err != nil {
		errs = append(errs, fmt.Errorf("report result: %w", err))
		log.Error("queue result write failed", zap.Error(err))
	} else {
		r.event(bg, string(PhaseReportResult), task.ID, sessionID, map[string]any{
			"status":    string(out.Status),
			"truncated": len(text) != len(res.Output),
		})
	}

	out.Duration = r.now().Sub(start)
	if len(errs) > 0 {
		out.Err = fmt.Errorf("task %s: %w", task.ID, errors.Join(errs...))
	}

	final := EventTaskDone
	if out.Status == protocol.StatusError || out.Err != nil {
		final = EventTaskFailed
	}
	r.event(bg, final, task.ID, sessionID, map[string]any{
		"status":      string(out.Status),
		"duration_ms": out.Duration.Milliseconds(),
	})
	log.Info("task finished",
		zap.String("status", string(out.Status)),
		zap.Int("next_level", int(out.NextLevel)),
		zap.Duration("duration", out.Duration),
		zap.Bool("bookkeeping_errors", out.Err != nil))
	return out
}

func movesPayload(moves []archive.Move) map[string]any {
	if len(moves) == 0 {
		return map[string]any{"moves": 0}
	}
	parts := make([]string, 0, len(moves))
	for _, m := range moves {
		parts = append(parts, fmt.Sprintf("%d->%d:%d records/%d bytes", m.From, m.To, m.Records, m.Bytes))
	}
	return map[string]any{"moves": len(moves), "detail": strings.Join(parts, ", ")}
}

// event records a phase transition. Event log failures are logged, never
// propagated.
func (r *Runner) event(ctx context.Context, name, taskID, sessionID string, payload map[string]any) {
	err := r.events.Log(ctx, eventlog.Entry{
		Type:      name,
		Source:    eventSource,
		TaskID:    taskID,
		SessionID: sessionID,
		Payload:   payload,
	})
	if err != nil {
		r.log.Warn("event log write failed", zap.String("type", name), zap.Error(err))
	}
}
