package main

import (
	"fmt"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// newConfigCmd creates the "gitclauder config" subcommand.
func newConfigCmd(g *globalFlags) *cobra.Command {
	var asTOML bool

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the resolved configuration",
		Long: "Prints the configuration after defaults, config file and environment\n" +
			"are applied. The output is a valid config.yaml (or config.toml).",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runApp(cmd, g, func(a *app) error {
				var (
					data []byte
					err  error
				)
				if asTOML {
					data, err = toml.Marshal(a.cfg)
				} else {
					data, err = yaml.Marshal(a.cfg)
				}
				if err != nil {
					return fmt.Errorf("encode config: %w", err)
				}

				w := cmd.OutOrStdout()
				if a.cfg.Source != "" {
					fmt.Fprintf(w, "# source: %s\n", a.cfg.Source)
				} else {
					fmt.Fprintf(w, "# home: %s (no config file, built-in defaults)\n", a.cfg.Home)
				}
				_, err = w.Write(data)
				return err
			})
		},
	}

	cmd.Flags().BoolVar(&asTOML, "toml", false, "print TOML instead of YAML")
	return cmd
}
