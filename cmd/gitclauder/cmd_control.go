package main

import (
	"database/sql"
	"fmt"

	"gitclauder/pkg/config"
	"gitclauder/pkg/protocol"
	"gitclauder/pkg/queue"

	"github.com/spf13/cobra"
)

// newControlCmd creates the "gitclauder control" subcommand.
func newControlCmd(g *globalFlags) *cobra.Command {
	var operation, interval, timeout string

	cmd := &cobra.Command{
		Use:   "control",
		Short: "Show or change the run control parameters",
		Long: "Without flags, prints the control row. With flags, updates only the\n" +
			"given fields. Intervals and timeouts accept seconds or durations (5m).",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runApp(cmd, g, func(a *app) error {
				return a.withQueue(cmd.Context(), func(_ *sql.DB, q *queue.SQLiteQueue) error {
					c, err := q.Control(cmd.Context())
					if err != nil {
						return err
					}

					flags := cmd.Flags()
					changed := false
					if flags.Changed("operation") {
						if c.Operation, err = protocol.ParseOperation(operation); err != nil {
							return err
						}
						changed = true
					}
					if flags.Changed("interval") {
						if c.IntervalSeconds, err = config.ParseSeconds(interval); err != nil {
							return fmt.Errorf("--interval: %w", err)
						}
						changed = true
					}
					if flags.Changed("timeout") {
						if c.TimeoutSeconds, err = config.ParseSeconds(timeout); err != nil {
							return fmt.Errorf("--timeout: %w", err)
						}
						changed = true
					}
					if changed {
						if err := q.SetControl(cmd.Context(), c); err != nil {
							return err
						}
					}

					w := cmd.OutOrStdout()
					fmt.Fprintf(w, "operation: %s\n", c.Operation)
					fmt.Fprintf(w, "interval:  %ds\n", c.IntervalSeconds)
					fmt.Fprintf(w, "timeout:   %ds\n", c.TimeoutSeconds)
					return nil
				})
			})
		},
	}

	cmd.Flags().StringVar(&operation, "operation", "", "run or stop")
	cmd.Flags().StringVar(&interval, "interval", "", "seconds between watch passes")
	cmd.Flags().StringVar(&timeout, "timeout", "", "agent timeout per task")
	return cmd
}
