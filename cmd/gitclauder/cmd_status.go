package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"

	"gitclauder/pkg/archive"
	"gitclauder/pkg/protocol"
	"gitclauder/pkg/queue"

	"github.com/spf13/cobra"
)

// statusReport is everything the status command shows.
type statusReport struct {
	Home      string
	Level     protocol.Level
	Archive   string
	Threshold int
	Tiers     []archive.TierStat
	Counts    map[protocol.TaskStatus]int
	Control   protocol.Control
	External  string
}

// newStatusCmd creates the "gitclauder status" subcommand.
func newStatusCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show memory level, archive tiers and queue counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runApp(cmd, g, func(a *app) error {
				rep, err := gatherStatus(cmd.Context(), a)
				if err != nil {
					return err
				}
				renderStatus(cmd.OutOrStdout(), newStyles(DefaultTheme()), rep)
				return nil
			})
		},
	}
}

func gatherStatus(ctx context.Context, a *app) (statusReport, error) {
	arch := a.archive()
	rep := statusReport{
		Home:      a.cfg.Home,
		Level:     a.stateStore().Load(ctx).NextPriorityLevel,
		Archive:   arch.Root(),
		Threshold: arch.Threshold(),
		External:  a.cfg.QueueCommand,
	}

	tiers, err := arch.Stats(ctx)
	if err != nil {
		return rep, fmt.Errorf("archive stats: %w", err)
	}
	rep.Tiers = tiers

	err = a.withQueue(ctx, func(_ *sql.DB, q *queue.SQLiteQueue) error {
		if rep.Counts, err = q.Counts(ctx); err != nil {
			return err
		}
		rep.Control, err = q.Control(ctx)
		return err
	})
	return rep, err
}

func renderStatus(w io.Writer, st styles, rep statusReport) {
	fmt.Fprintln(w, st.title.Render("gitclauder status"))

	row := func(label, value string) {
		fmt.Fprintln(w, st.label.Render(label)+value)
	}

	row("home", rep.Home)
	row("next level", st.levelStyle(int(rep.Level)).Render(fmt.Sprintf("%d", rep.Level))+
		st.muted.Render(fmt.Sprintf("  (tiers 1-%d)", rep.Level)))
	row("archive", rep.Archive)
	for _, t := range rep.Tiers {
		size := fmt.Sprintf("%s, %d records", humanBytes(t.Bytes), t.Records)
		if t.Tier < archive.TierCold {
			size += st.muted.Render(" / " + humanBytes(rep.Threshold))
		}
		if t.Tier < archive.TierCold && t.Bytes > rep.Threshold {
			size = st.bad.Render(size)
		}
		row(fmt.Sprintf("  tier %d", t.Tier), size)
	}

	var counts []string
	for _, s := range []protocol.TaskStatus{
		protocol.StatusPending, protocol.StatusProcessing, protocol.StatusCompleted, protocol.StatusError,
	} {
		counts = append(counts, fmt.Sprintf("%s %d", s, rep.Counts[s]))
	}
	row("queue", strings.Join(counts, "  "))
	if rep.External != "" {
		row("", st.muted.Render("runner uses external queue: "+rep.External))
	}

	op := st.ok.Render(string(rep.Control.Operation))
	if rep.Control.Operation == protocol.OperationStop {
		op = st.warn.Render(string(rep.Control.Operation))
	}
	row("control", fmt.Sprintf("%s  interval %ds  timeout %ds",
		op, rep.Control.IntervalSeconds, rep.Control.TimeoutSeconds))
}

// humanBytes formats n as B or KiB.
func humanBytes(n int) string {
	if n < 1024 {
		return fmt.Sprintf("%d B", n)
	}
	return fmt.Sprintf("%.1f KiB", float64(n)/1024)
}
