package runner_test

import (
	"context"
	"sync"
	"time"

	"gitclauder/pkg/agent"
	"gitclauder/pkg/eventlog"
	"gitclauder/pkg/protocol"
)

type resultCall struct {
	TaskID    string
	Status    protocol.TaskStatus
	Result    string
	SessionID string
}

type fakeQueue struct {
	mu         sync.Mutex
	tasks      []protocol.Task
	control    protocol.Control
	controlErr error
	listErr    error
	procErr    error
	resultErr  error

	processing []string // "id:session"
	results    []resultCall
	listCalls  int
	listed     chan struct{} // optional, signalled on every ListPending
}

func (q *fakeQueue) ListPending(context.Context) ([]protocol.Task, error) {
	q.mu.Lock()
	q.listCalls++
	tasks := append([]protocol.Task(nil), q.tasks...)
	err := q.listErr
	ch := q.listed
	q.mu.Unlock()
	if ch != nil {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return tasks, err
}

func (q *fakeQueue) SetProcessing(_ context.Context, id, sid string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.procErr != nil {
		return q.procErr
	}
	q.processing = append(q.processing, id+":"+sid)
	return nil
}

func (q *fakeQueue) SetResult(_ context.Context, id string, st protocol.TaskStatus, result, sid string, _ time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.resultErr != nil {
		return q.resultErr
	}
	q.results = append(q.results, resultCall{TaskID: id, Status: st, Result: result, SessionID: sid})
	return nil
}

func (q *fakeQueue) Control(context.Context) (protocol.Control, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.control, q.controlErr
}

// fakeAgent answers every request through reply and records requests.
type fakeAgent struct {
	mu       sync.Mutex
	reply    func(req agent.Request) agent.Result
	requests []agent.Request
}

func (a *fakeAgent) Invoke(_ context.Context, req agent.Request) agent.Result {
	a.mu.Lock()
	a.requests = append(a.requests, req)
	a.mu.Unlock()
	if a.reply == nil {
		return agent.Result{Success: true, Output: "ok", SessionID: req.SessionID}
	}
	return a.reply(req)
}

func (a *fakeAgent) last() agent.Request {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.requests[len(a.requests)-1]
}

type recordedEvents struct {
	mu    sync.Mutex
	types []string
	err   error
}

func (e *recordedEvents) Log(_ context.Context, en eventlog.Entry) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.types = append(e.types, en.Type)
	return e.err
}

func (e *recordedEvents) list() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.types...)
}

func pending(id, instruction string) protocol.Task {
	return protocol.Task{ID: id, Instruction: instruction, Status: protocol.StatusPending}
}
