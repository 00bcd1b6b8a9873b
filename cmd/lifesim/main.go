package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/nvandessel/lifesim/internal/config"
	"github.com/nvandessel/lifesim/internal/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "lifesim",
		Short: "Synthetic lifestyle dataset generator",
		Long: `lifesim simulates a population of subjects whose sleep, stress,
activity, diet and alcohol intake evolve day by day under coupled
stochastic dynamics, and writes the trajectories as a flat table.

Four hidden health indices (inflammation, immune load, hormonal
disruption, oxidative stress) are derived each day from the observed
variables. Each subject starts from one of five lifestyle archetypes;
archetype identity is never written to the dataset.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON (for agent consumption)")
	rootCmd.PersistentFlags().String("root", ".", "Project root directory")
	rootCmd.PersistentFlags().String("config", "", "Config file (default: ~/.lifesim/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: error, warn, info, debug, trace")

	rootCmd.AddCommand(
		newVersionCmd(),
		newGenerateCmd(),
		newValidateCmd(),
		newArchetypesCmd(),
		newRunsCmd(),
		newDatasetsCmd(),
		newMCPServerCmd(),
	)

	return rootCmd
}

// loadConfig reads the --config file (or the default location) and applies
// the --log-level override.
func loadConfig(cmd *cobra.Command) (*config.LifesimConfig, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadFrom(path)
	if err != nil {
		return nil, err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	return cfg, nil
}

// newLogger writes human-readable logs to stderr so stdout stays free for
// results and the MCP stdio transport.
func newLogger(cfg *config.LifesimConfig) *slog.Logger {
	return logging.NewLogger(cfg.Logging.Level, os.Stderr)
}

// signalContext returns a context cancelled on the first shutdown signal.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, shutdownSignals...)
}
