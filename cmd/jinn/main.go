// Command jinn runs the wish-granting tool synthesizer: an HTTP server plus
// command line access to the same operations.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"jinn/internal/config"
	"jinn/internal/logging"
	"jinn/internal/store"
	"jinn/internal/system"
)

var (
	// Global flags
	configPath string
	verbose    bool
	actingAs   string

	// Loaded in PersistentPreRunE
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "jinn",
	Short: "jinn - grants wishes by synthesizing Go incantations",
	Long: `jinn turns natural-language wishes into small Go functions ("incantations"),
runs them in an embedded interpreter, and remembers the ones that fail
("mishaps") so they can be fixed and retried.

Run "jinn serve" to start the HTTP API, or use the subcommands directly.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is optional
		_ = godotenv.Load()

		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		opts := system.LoggingOptions(cfg)
		if verbose {
			opts.Level = "debug"
		}
		return logging.Initialize(opts)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "jinn.yaml", "Config file (.yaml or .toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&actingAs, "as", "", "Act as this principal (default: the bootstrap administrator)")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(craftCmd)
	rootCmd.AddCommand(wishCmd)
	rootCmd.AddCommand(incantationCmd)
	rootCmd.AddCommand(mishapCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(principalCmd)
	rootCmd.AddCommand(incidentsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// withJinn builds an instance for the duration of fn.
func withJinn(ctx context.Context, fn func(j *system.Jinn) error) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	j, err := system.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer j.Close()
	return fn(j)
}

// withPrincipal is withJinn plus the principal named by --as.
func withPrincipal(ctx context.Context, fn func(j *system.Jinn, p *store.Principal) error) error {
	return withJinn(ctx, func(j *system.Jinn) error {
		moniker := actingAs
		if moniker == "" {
			moniker = cfg.Bootstrap.AdminMoniker
		}
		p, err := j.Principal(ctx, moniker)
		if err != nil {
			return err
		}
		return fn(j, p)
	})
}
