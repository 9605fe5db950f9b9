package main

import (
	"context"
	"database/sql"
	"fmt"

	"gitclauder/pkg/agent"
	"gitclauder/pkg/archive"
	"gitclauder/pkg/config"
	"gitclauder/pkg/escalation"
	"gitclauder/pkg/eventlog"
	"gitclauder/pkg/protocol"
	"gitclauder/pkg/queue"
	"gitclauder/pkg/runner"
	"gitclauder/pkg/state"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// app holds the resolved configuration and logger for one command.
type app struct {
	cfg config.Config
	log *zap.Logger
}

// loadApp resolves config (defaults, file, env, then flags) and builds the
// logger on the command's stderr.
func loadApp(cmd *cobra.Command, g *globalFlags) (*app, error) {
	var (
		cfg config.Config
		err error
	)
	if g.home != "" {
		cfg, err = config.LoadFrom(g.home)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if g.logLevel != "" {
		cfg.LogLevel = g.logLevel
	}
	if g.logFormat != "" {
		cfg.LogFormat = g.logFormat
	}

	log, err := newLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, log: log.With(zap.String("cmd", cmd.Name()))}, nil
}

func (a *app) close() {
	_ = a.log.Sync()
}

func (a *app) archive() *archive.Archive {
	return archive.New(a.cfg.ArchiveDir,
		archive.WithThreshold(a.cfg.TierThresholdBytes),
		archive.WithLogger(a.log.Named("archive")))
}

func (a *app) stateStore() *state.Store {
	return state.NewStore(a.cfg.StateFile, a.log.Named("state"))
}

// taskQueue returns the queue the runner drives: an external command when
// queue_command is configured, otherwise the local SQLite queue.
func (a *app) taskQueue(local *queue.SQLiteQueue) queue.Queue {
	if a.cfg.QueueCommand != "" {
		a.log.Debug("using external queue command", zap.String("command", a.cfg.QueueCommand))
		return queue.NewCLIQueue(&queue.ExecCommandRunner{}, a.cfg.QueueCommand)
	}
	return local
}

// session is an open queue database plus the runner wired to it.
type session struct {
	db     *sql.DB
	local  *queue.SQLiteQueue
	runner *runner.Runner
}

func (s *session) close() {
	_ = s.db.Close()
}

// openSession opens the queue database and assembles the runner. The local
// database always holds the event log, even with an external queue.
func (a *app) openSession(ctx context.Context, opts ...runner.Option) (*session, error) {
	db, local, err := openQueueDB(ctx, a.cfg.QueueDB)
	if err != nil {
		return nil, err
	}

	spawner := agent.NewClaudeSpawner(agent.ClaudeConfig{
		Bin:       a.cfg.Claude.Bin,
		ExtraArgs: a.cfg.Claude.Args,
		Dir:       a.cfg.Claude.Workdir,
	})
	invoker := agent.NewRunner(spawner,
		agent.WithTimeout(a.cfg.Timeout()),
		agent.WithLogger(a.log.Named("agent")))

	base := []runner.Option{
		runner.WithResultLimit(a.cfg.MaxResultLength, protocol.TruncationMarker),
		runner.WithDefaultTimeout(a.cfg.Timeout()),
	}
	r := runner.New(runner.Deps{
		Queue:    a.taskQueue(local),
		Archive:  a.archive(),
		State:    a.stateStore(),
		Analyzer: escalation.New(a.cfg.EscalationKeywords...),
		Agent:    invoker,
		Events:   eventlog.NewWriter(db),
		Logger:   a.log.Named("runner"),
	}, append(base, opts...)...)

	return &session{db: db, local: local, runner: r}, nil
}

// withQueue opens the local queue for the management commands.
func (a *app) withQueue(ctx context.Context, fn func(db *sql.DB, q *queue.SQLiteQueue) error) error {
	db, q, err := openQueueDB(ctx, a.cfg.QueueDB)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	return fn(db, q)
}

// runApp is the common RunE prologue: load config, run fn, flush the logger.
func runApp(cmd *cobra.Command, g *globalFlags, fn func(a *app) error) error {
	a, err := loadApp(cmd, g)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(a)
}
