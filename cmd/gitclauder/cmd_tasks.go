package main

import (
	"database/sql"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"gitclauder/pkg/protocol"
	"gitclauder/pkg/queue"

	"github.com/spf13/cobra"
)

// newAddCmd creates the "gitclauder add" subcommand.
func newAddCmd(g *globalFlags) *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "add <instruction>...",
		Short: "Queue a new instruction",
		Long:  "Adds a pending task. Multiple arguments are joined with spaces.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApp(cmd, g, func(a *app) error {
				return a.withQueue(cmd.Context(), func(_ *sql.DB, q *queue.SQLiteQueue) error {
					task, err := q.Add(cmd.Context(), strings.Join(args, " "), sessionID)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "added task %s\n", task.ID)
					return nil
				})
			})
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "resume an existing claude session")
	return cmd
}

// newTasksCmd creates the "gitclauder tasks" subcommand.
func newTasksCmd(g *globalFlags) *cobra.Command {
	var (
		status string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List queued tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var st protocol.TaskStatus
			if status != "" {
				var err error
				if st, err = protocol.ParseStatus(status); err != nil {
					return err
				}
			}
			return runApp(cmd, g, func(a *app) error {
				return a.withQueue(cmd.Context(), func(_ *sql.DB, q *queue.SQLiteQueue) error {
					tasks, err := q.List(cmd.Context(), st, limit)
					if err != nil {
						return err
					}
					printTasks(cmd.OutOrStdout(), tasks)
					return nil
				})
			})
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "filter by status (pending, processing, completed, error)")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of tasks (0 = all)")
	return cmd
}

func printTasks(w io.Writer, tasks []protocol.Task) {
	if len(tasks) == 0 {
		fmt.Fprintln(w, "no tasks")
		return
	}
	fmt.Fprintf(w, "%-5s %-11s %-36s %s\n", "ID", "STATUS", "SESSION", "INSTRUCTION")
	for _, t := range tasks {
		fmt.Fprintf(w, "%-5s %-11s %-36s %s\n", t.ID, t.Status, t.SessionID, preview(t.Instruction, 60))
	}
}

// preview returns the first line of s, cut to at most n runes.
func preview(s string, n int) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i] + " ..."
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-3]) + "..."
}

// newResetCmd creates the "gitclauder reset" subcommand.
func newResetCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "reset <task-id>...",
		Aliases: []string{"retry"},
		Short:   "Return tasks to pending so the next pass retries them",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApp(cmd, g, func(a *app) error {
				return a.withQueue(cmd.Context(), func(_ *sql.DB, q *queue.SQLiteQueue) error {
					for _, id := range args {
						if err := q.Reset(cmd.Context(), id); err != nil {
							return err
						}
						fmt.Fprintf(cmd.OutOrStdout(), "task %s reset to pending\n", id)
					}
					return nil
				})
			})
		},
	}
}
