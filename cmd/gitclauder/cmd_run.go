package main

import (
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"gitclauder/pkg/config"
	"gitclauder/pkg/runner"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newRunCmd creates the "gitclauder run" subcommand.
func newRunCmd(g *globalFlags) *cobra.Command {
	var timeout string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process every pending task once",
		Long: "Reads the control row, then runs each pending task through claude\n" +
			"with archived context. Exits non-zero if the queue is unreachable or\n" +
			"any task's bookkeeping failed.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runApp(cmd, g, func(a *app) error {
				var opts []runner.Option
				if timeout != "" {
					secs, err := config.ParseSeconds(timeout)
					if err != nil || secs <= 0 {
						return fmt.Errorf("--timeout: invalid value %q", timeout)
					}
					opts = append(opts, runner.WithDefaultTimeout(time.Duration(secs)*time.Second))
				}

				ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer stop()

				s, err := a.openSession(ctx, opts...)
				if err != nil {
					return err
				}
				defer s.close()

				sum, err := s.runner.RunOnce(ctx)
				if err != nil {
					return err
				}
				printSummary(cmd.OutOrStdout(), sum)
				if err := sum.Err(); err != nil {
					return fmt.Errorf("pass finished with errors: %w", err)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&timeout, "timeout", "", "default agent timeout when the control row has none (seconds or duration)")
	return cmd
}

func printSummary(w io.Writer, sum runner.Summary) {
	if sum.Skipped {
		fmt.Fprintln(w, "skipped: operation is stop")
		return
	}
	if sum.Listed == 0 {
		fmt.Fprintln(w, "no pending tasks")
		return
	}
	fmt.Fprintf(w, "processed %d: %d completed, %d failed\n", sum.Listed, sum.Completed, sum.Failed)
	for _, o := range sum.Outcomes {
		fmt.Fprintf(w, "  task %-5s %-9s level %d -> %d  %s\n",
			o.TaskID, o.Status, o.Level, o.NextLevel, o.Duration.Round(time.Millisecond))
	}
}

// newWatchCmd creates the "gitclauder watch" subcommand.
func newWatchCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Run passes continuously until interrupted",
		Long: "Repeats the run pass every control interval and starts early when the\n" +
			"queue database changes. Stops on SIGINT or SIGTERM.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runApp(cmd, g, func(a *app) error {
				ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer stop()

				s, err := a.openSession(ctx)
				if err != nil {
					return err
				}
				defer s.close()

				a.log.Info("watching queue", zap.String("queue", a.cfg.QueueDB))
				if a.cfg.QueueCommand != "" {
					// Nothing local to watch; poll the external queue.
					return s.runner.Loop(ctx, nil)
				}
				return s.runner.Watch(ctx, a.cfg.QueueDB)
			})
		},
	}
}
