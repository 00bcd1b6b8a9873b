package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/nvandessel/lifesim/internal/config"
	"github.com/nvandessel/lifesim/internal/generate"
)

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Simulate a population and write the trajectory table",
		Long: `Simulate subjects x days of coupled lifestyle dynamics and write one row
per (subject, day) to CSV or Parquet.

The output directory must already exist unless --mkdir is given. A
manifest with the seed, archetype counts and a SHA-256 checksum is
written next to the dataset. Optionally the rows are loaded into a
SQLite or Postgres sink and the files are published to a blob store.

Examples:
  lifesim generate                                  # 500 subjects x 120 days to the default path
  lifesim generate --seed 42 --output out.csv       # Reproducible run
  lifesim generate --output out.parquet             # Parquet, inferred from extension
  lifesim generate --sink sqlite --dsn runs.db      # Also load rows into SQLite
  lifesim generate --publish fs --publish-root ./published`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := applyGenerateFlags(cmd, cfg); err != nil {
				return err
			}

			ctx, cancel := signalContext(context.Background())
			defer cancel()

			rep, err := generate.Run(ctx, generate.Options{
				Config:  cfg,
				Version: version,
				Logger:  newLogger(cfg),
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				return json.NewEncoder(out).Encode(rep)
			}

			fmt.Fprintf(out, "Generated %d subjects x %d days (seed %d)\n", rep.Subjects, rep.Days, rep.Seed)
			fmt.Fprintf(out, "  Run:      %s\n", rep.RunID)
			fmt.Fprintf(out, "  Output:   %s (%s, %d rows, %d bytes)\n", rep.Output.Path, rep.Output.Format, rep.Output.Rows, rep.Output.Bytes)
			fmt.Fprintf(out, "  Checksum: %s\n", rep.Output.Checksum)
			if rep.Manifest != "" {
				fmt.Fprintf(out, "  Manifest: %s\n", rep.Manifest)
			}
			if rep.Events != "" {
				fmt.Fprintf(out, "  Events:   %s\n", rep.Events)
			}
			if rep.Sink != nil {
				fmt.Fprintf(out, "  Sink:     %s (%d rows)\n", rep.Sink.Driver, rep.Sink.Rows)
			}
			for _, info := range rep.Published {
				fmt.Fprintf(out, "  Published: %s\n", info.Key)
			}
			if rep.Metrics != "" {
				fmt.Fprintf(out, "  Metrics:  %s\n", rep.Metrics)
			}

			names := make([]string, 0, len(rep.Archetypes))
			for name := range rep.Archetypes {
				names = append(names, name)
			}
			sort.Strings(names)
			fmt.Fprintln(out, "  Archetypes:")
			for _, name := range names {
				fmt.Fprintf(out, "    %-26s %d\n", name, rep.Archetypes[name])
			}
			return nil
		},
	}

	cmd.Flags().Int("subjects", config.DefaultSubjects, "Number of subjects")
	cmd.Flags().Int("days", config.DefaultDays, "Days per subject")
	cmd.Flags().Uint64("seed", 0, "Random seed (default: random, recorded in the manifest)")
	cmd.Flags().Int("workers", 0, "Concurrent subject workers (default: number of CPUs)")
	cmd.Flags().StringP("output", "o", config.DefaultOutputPath, "Output file")
	cmd.Flags().String("format", "", "Output format: csv or parquet (default: from extension)")
	cmd.Flags().Bool("mkdir", false, "Create missing output directories")
	cmd.Flags().Bool("no-manifest", false, "Skip writing the run manifest")
	cmd.Flags().String("sink", "", "Also load rows into a SQL sink: sqlite or postgres")
	cmd.Flags().String("dsn", "", "Sink data source (SQLite file path or Postgres URL)")
	cmd.Flags().String("publish", "", "Publish output files to a blob store: fs or s3")
	cmd.Flags().String("publish-prefix", "", "Key prefix for published files")
	cmd.Flags().String("publish-root", "", "Root directory for --publish fs")
	cmd.Flags().String("s3-bucket", "", "Bucket for --publish s3")
	cmd.Flags().String("metrics-file", "", "Write Prometheus metrics to this textfile")

	return cmd
}

// applyGenerateFlags overrides cfg with flags the user set explicitly, so
// config file and environment values survive flag defaults.
func applyGenerateFlags(cmd *cobra.Command, cfg *config.LifesimConfig) error {
	flags := cmd.Flags()
	if flags.Changed("subjects") {
		cfg.Simulation.Subjects, _ = flags.GetInt("subjects")
	}
	if flags.Changed("days") {
		cfg.Simulation.Days, _ = flags.GetInt("days")
	}
	if flags.Changed("seed") {
		seed, _ := flags.GetUint64("seed")
		cfg.Simulation.Seed = &seed
	}
	if flags.Changed("workers") {
		cfg.Simulation.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("output") {
		cfg.Output.Path, _ = flags.GetString("output")
		if !flags.Changed("format") {
			cfg.Output.Format = ""
		}
	}
	if flags.Changed("format") {
		cfg.Output.Format, _ = flags.GetString("format")
	}
	if flags.Changed("mkdir") {
		cfg.Output.CreateDirs, _ = flags.GetBool("mkdir")
	}
	if noManifest, _ := flags.GetBool("no-manifest"); noManifest {
		cfg.Output.Manifest = false
	}
	if flags.Changed("sink") {
		cfg.Sink.Driver, _ = flags.GetString("sink")
	}
	if flags.Changed("dsn") {
		cfg.Sink.DSN, _ = flags.GetString("dsn")
	}
	if flags.Changed("publish") {
		cfg.Publish.Driver, _ = flags.GetString("publish")
	}
	if flags.Changed("publish-prefix") {
		cfg.Publish.Prefix, _ = flags.GetString("publish-prefix")
	}
	if flags.Changed("publish-root") {
		cfg.Publish.FS.Root, _ = flags.GetString("publish-root")
	}
	if flags.Changed("s3-bucket") {
		cfg.Publish.S3.Bucket, _ = flags.GetString("s3-bucket")
	}
	if flags.Changed("metrics-file") {
		cfg.Metrics.Textfile, _ = flags.GetString("metrics-file")
	}
	return cfg.Validate()
}
