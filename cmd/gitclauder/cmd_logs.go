package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"time"

	"gitclauder/pkg/eventlog"
	"gitclauder/pkg/queue"

	"github.com/spf13/cobra"
)

// logsConfig holds configuration for the logs command.
type logsConfig struct {
	taskID    string
	eventType string
	since     time.Duration
	tail      int
	follow    bool
}

// newLogsCmd creates the "gitclauder logs" subcommand.
func newLogsCmd(g *globalFlags) *cobra.Command {
	var cfg logsConfig

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the runner event log",
		Long:  "Displays task cycle events, oldest first.\nOptionally filter by task or event type and follow new events.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runApp(cmd, g, func(a *app) error {
				return a.withQueue(cmd.Context(), func(db *sql.DB, _ *queue.SQLiteQueue) error {
					r := eventlog.NewReaderDB(db)
					opts := eventlog.QueryOpts{TaskID: cfg.taskID, EventType: cfg.eventType, Limit: cfg.tail}
					if cfg.since > 0 {
						after := time.Now().Add(-cfg.since)
						opts.After = &after
					}
					if cfg.follow {
						return followLogs(cmd.Context(), r, cmd.OutOrStdout(), opts, time.Second)
					}
					return printLogs(cmd.Context(), r, cmd.OutOrStdout(), opts)
				})
			})
		},
	}

	cmd.Flags().StringVar(&cfg.taskID, "task", "", "only events for this task id")
	cmd.Flags().StringVar(&cfg.eventType, "type", "", "only events of this type (e.g. invoke, task_failed)")
	cmd.Flags().DurationVar(&cfg.since, "since", 0, "only events newer than this (e.g. 1h)")
	cmd.Flags().IntVar(&cfg.tail, "tail", 20, "number of recent events to show")
	cmd.Flags().BoolVarP(&cfg.follow, "follow", "f", false, "poll for new events every 1s")
	return cmd
}

// printLogs displays the newest events matching opts in chronological order.
func printLogs(ctx context.Context, r *eventlog.Reader, w io.Writer, opts eventlog.QueryOpts) error {
	events, err := r.Query(ctx, opts)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Fprintln(w, "no events found")
		return nil
	}
	for i := len(events) - 1; i >= 0; i-- {
		formatEvent(w, &events[i])
	}
	return nil
}

// followLogs prints the initial batch, then polls for events with a higher
// id until ctx is done.
func followLogs(ctx context.Context, r *eventlog.Reader, w io.Writer, opts eventlog.QueryOpts, every time.Duration) error {
	events, err := r.Query(ctx, opts)
	if err != nil {
		return err
	}
	var lastID int64
	for i := len(events) - 1; i >= 0; i-- {
		formatEvent(w, &events[i])
		lastID = events[i].ID
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	poll := opts
	poll.Limit = 100
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			batch, err := r.Query(ctx, poll)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			for i := len(batch) - 1; i >= 0; i-- {
				if batch[i].ID <= lastID {
					continue
				}
				formatEvent(w, &batch[i])
				lastID = batch[i].ID
			}
		}
	}
}

// formatEvent writes a single event in a human-readable format.
func formatEvent(w io.Writer, e *eventlog.Event) {
	line := fmt.Sprintf("%s  %-16s", e.CreatedAt.Local().Format("2006-01-02 15:04:05"), e.Type)
	if e.TaskID != "" {
		line += "  task=" + e.TaskID
	}
	if e.SessionID != "" {
		line += "  session=" + e.SessionID
	}
	if e.Payload != "" && e.Payload != "null" {
		line += "  " + e.Payload
	}
	fmt.Fprintln(w, line)
}
