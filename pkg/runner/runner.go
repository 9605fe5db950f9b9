// Package runner sequences one task cycle at a time: load the memory level,
// load archived context, invoke the agent, archive the transcript, rebalance
// the tiers, decide the next level and report back to the queue.
package runner

import (
	"context"
	"errors"
	"time"

	"gitclauder/pkg/agent"
	"gitclauder/pkg/archive"
	"gitclauder/pkg/eventlog"
	"gitclauder/pkg/protocol"
	"gitclauder/pkg/queue"
	"gitclauder/pkg/state"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrQueueUnavailable means the queue could not be read; the pass is aborted.
var ErrQueueUnavailable = errors.New("queue unavailable")

// Archive is the tiered transcript store.
type Archive interface {
	Append(ctx context.Context, r archive.Record) error
	Rebalance(ctx context.Context) ([]archive.Move, error)
	Load(ctx context.Context, level protocol.Level) string
}

// StateStore persists the next priority level.
type StateStore interface {
	Load(ctx context.Context) state.State
	Save(ctx context.Context, st state.State) error
}

// Analyzer picks the next priority level from a task outcome.
type Analyzer interface {
	Decide(resultText string, success bool) protocol.Level
}

// Deps are the collaborators a Runner drives. Events and Logger may be nil.
type Deps struct {
	Queue    queue.Queue
	Archive  Archive
	State    StateStore
	Analyzer Analyzer
	Agent    agent.Invoker
	Events   eventlog.Logger
	Logger   *zap.Logger
}

// Runner executes task cycles strictly one after another.
type Runner struct {
	queue    queue.Queue
	archive  Archive
	state    StateStore
	analyzer Analyzer
	agent    agent.Invoker
	events   eventlog.Logger
	log      *zap.Logger

	now             func() time.Time
	newSessionID    func() string
	maxResult       int
	marker          string
	defaultTimeout  time.Duration
	defaultInterval time.Duration
	settle          time.Duration
}

// Option configures a Runner.
type Option func(*Runner)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// WithSessionIDs overrides session id minting.
func WithSessionIDs(f func() string) Option {
	return func(r *Runner) { r.newSessionID = f }
}

// WithResultLimit sets the queue-side result cap in characters and the marker
// appended when it applies. A non-positive limit disables truncation.
func WithResultLimit(limit int, marker string) Option {
	return func(r *Runner) {
		r.maxResult = limit
		r.marker = marker
	}
}

// WithDefaultTimeout sets the agent timeout used when the queue's control
// record has none.
func WithDefaultTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.defaultTimeout = d
		}
	}
}

// WithDefaultInterval sets the watch interval used when the control record
// has none.
func WithDefaultInterval(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.defaultInterval = d
		}
	}
}

// WithSettle sets how long after a pass queue change notifications are
// ignored, so the runner's own writes do not retrigger it.
func WithSettle(d time.Duration) Option {
	return func(r *Runner) { r.settle = d }
}

// New creates a Runner.
func New(d Deps, opts ...Option) *Runner {
	r := &Runner{
		queue:           d.Queue,
		archive:         d.Archive,
		state:           d.State,
		analyzer:        d.Analyzer,
		agent:           d.Agent,
		events:          d.Events,
		log:             d.Logger,
		now:             time.Now,
		newSessionID:    func() string { return uuid.New().String() },
		maxResult:       protocol.MaxResultLength,
		marker:          protocol.TruncationMarker,
		defaultTimeout:  protocol.DefaultTimeoutSeconds * time.Second,
		defaultInterval: protocol.DefaultIntervalSeconds * time.Second,
		settle:          time.Second,
	}
	if r.events == nil {
		r.events = eventlog.Discard
	}
	if r.log == nil {
		r.log = zap.NewNop()
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}
