package main

import (
	"fmt"
	"strconv"

	"gitclauder/pkg/protocol"

	"github.com/spf13/cobra"
)

// newContextCmd creates the "gitclauder context" subcommand.
func newContextCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "context [level]",
		Short: "Print the archived context the next task would receive",
		Long: "Prints the context loaded at the given priority level (1-3), or at\n" +
			"the level saved in the memory state when omitted.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApp(cmd, g, func(a *app) error {
				level := a.stateStore().Load(cmd.Context()).NextPriorityLevel
				if len(args) == 1 {
					n, err := strconv.Atoi(args[0])
					if err != nil || !protocol.Level(n).Valid() {
						return &protocol.InvalidLevelError{Level: protocol.Level(n)}
					}
					level = protocol.Level(n)
				}

				text := a.archive().Load(cmd.Context(), level)
				if text == "" {
					fmt.Fprintf(cmd.ErrOrStderr(), "no archived context at level %d\n", level)
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), text)
				return nil
			})
		},
	}
}
