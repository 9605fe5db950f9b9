package main

import (
	"database/sql"
	"fmt"
	"os"

	"gitclauder/pkg/protocol"
	"gitclauder/pkg/queue"

	"github.com/spf13/cobra"
)

// newInitCmd creates the "gitclauder init" subcommand.
func newInitCmd(g *globalFlags) *cobra.Command {
	var samples bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the queue database and archive directory",
		Long: "Creates the state directory, the task queue schema with a default\n" +
			"control row, and the archive directory. Safe to run repeatedly.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runApp(cmd, g, func(a *app) error {
				if err := os.MkdirAll(a.cfg.ArchiveDir, 0o750); err != nil {
					return fmt.Errorf("create archive dir: %w", err)
				}
				return a.withQueue(cmd.Context(), func(_ *sql.DB, q *queue.SQLiteQueue) error {
					if err := q.Init(cmd.Context(), samples); err != nil {
						return err
					}
					w := cmd.OutOrStdout()
					fmt.Fprintf(w, "initialized %s\n", a.cfg.Home)
					fmt.Fprintf(w, "  queue    %s\n", a.cfg.QueueDB)
					fmt.Fprintf(w, "  archive  %s\n", a.cfg.ArchiveDir)
					if samples {
						counts, err := q.Counts(cmd.Context())
						if err != nil {
							return err
						}
						fmt.Fprintf(w, "  tasks    %d pending\n", counts[protocol.StatusPending])
					}
					return nil
				})
			})
		},
	}

	cmd.Flags().BoolVar(&samples, "samples", false, "seed sample tasks into an empty queue")
	return cmd
}
