package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"jinn/internal/system"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file and create the database",
	Long: `Writes the effective configuration to --config (YAML or TOML by extension),
creates the SQLite database, seeds default settings and provisions the
bootstrap administrator.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if _, err := os.Stat(configPath); err == nil && !initForce {
			yellow.Fprintf(out, "%s already exists, keeping it (use --force to overwrite)\n", configPath)
		} else {
			if err := cfg.Save(configPath); err != nil {
				return err
			}
			green.Fprintf(out, "Wrote %s\n", configPath)
		}

		return withJinn(cmd.Context(), func(j *system.Jinn) error {
			green.Fprintf(out, "Database ready at %s\n", j.Store.Path())
			fmt.Fprintf(out, "Administrator: %s\n", cfg.Bootstrap.AdminMoniker)
			return nil
		})
	},
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")
}
