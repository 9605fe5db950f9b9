package main

import (
	"fmt"

	"gitclauder/internal/appversion"

	"github.com/spf13/cobra"
)

// globalFlags are the persistent flags shared by every subcommand.
type globalFlags struct {
	home      string
	logLevel  string
	logFormat string
}

// newRootCmd creates the root gitclauder command with all subcommands attached.
func newRootCmd() *cobra.Command {
	var g globalFlags

	version := appversion.String()
	if c := appversion.Commit(); c != "" {
		version += " (" + c + ")"
	}

	cmd := &cobra.Command{
		Use:   "gitclauder",
		Short: "Recurring task runner for the claude CLI",
		Long: "gitclauder takes instructions from a task queue, runs each one through\n" +
			"the claude CLI with context from a tiered memory archive, and writes\n" +
			"the results back to the queue.",
		Version:       fmt.Sprintf("gitclauder %s", version),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("{{.Version}}\n")

	pf := cmd.PersistentFlags()
	pf.StringVar(&g.home, "home", "", "state directory (default $GITCLAUDER_HOME or ~/.gitclauder)")
	pf.StringVar(&g.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&g.logFormat, "log-format", "", "log format: auto, console, json")

	cmd.AddCommand(
		newInitCmd(&g),
		newAddCmd(&g),
		newTasksCmd(&g),
		newResetCmd(&g),
		newRunCmd(&g),
		newWatchCmd(&g),
		newStatusCmd(&g),
		newContextCmd(&g),
		newControlCmd(&g),
		newLogsCmd(&g),
		newConfigCmd(&g),
	)

	return cmd
}
