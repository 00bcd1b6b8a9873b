package main

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nvandessel/lifesim/internal/sink"
	"github.com/nvandessel/lifesim/internal/trajectory"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect runs stored in a SQL sink",
		Long: `List, export, or delete generator runs loaded into a SQLite or Postgres
sink with 'lifesim generate --sink'.

Examples:
  lifesim runs list --sink sqlite --dsn runs.db
  lifesim runs export 20260101T000000.000000Z-42 --output run.parquet --dsn runs.db
  lifesim runs delete 20260101T000000.000000Z-42 --dsn runs.db`,
	}

	cmd.PersistentFlags().String("sink", "", "Sink driver: sqlite or postgres (default: from config)")
	cmd.PersistentFlags().String("dsn", "", "Sink data source (default: from config)")

	cmd.AddCommand(newRunsListCmd(), newRunsExportCmd(), newRunsDeleteCmd())
	return cmd
}

// openSink opens the sink named by flags, falling back to the config file.
func openSink(cmd *cobra.Command) (*sink.Sink, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	sc := cfg.Sink
	if driver, _ := cmd.Flags().GetString("sink"); driver != "" {
		sc.Driver = driver
	}
	if dsn, _ := cmd.Flags().GetString("dsn"); dsn != "" {
		sc.DSN = dsn
	}
	if sc.Driver == "" && sc.DSN != "" {
		sc.Driver = "sqlite"
	}
	if !sc.Enabled() || sc.DSN == "" {
		return nil, fmt.Errorf("no sink configured (use --sink and --dsn)")
	}
	return sink.Open(context.Background(), sc.Driver, sc.DSN)
}

func newRunsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			s, err := openSink(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			runs, err := s.Runs(context.Background())
			if err != nil {
				return err
			}

			if jsonOut {
				if runs == nil {
					runs = []sink.Run{}
				}
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"runs":  runs,
					"count": len(runs),
				})
			}

			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs stored.")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN\tCREATED\tSEED\tSUBJECTS\tDAYS\tROWS")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\n",
					r.ID, r.CreatedAt.Format("2006-01-02 15:04:05"), r.Seed, r.Subjects, r.Days, r.Rows)
			}
			return tw.Flush()
		},
	}
}

func newRunsExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <run-id>",
		Short: "Write a stored run back out as CSV or Parquet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			output, _ := cmd.Flags().GetString("output")
			formatName, _ := cmd.Flags().GetString("format")
			mkdir, _ := cmd.Flags().GetBool("mkdir")

			s, err := openSink(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			recs, err := s.Records(context.Background(), args[0])
			if err != nil {
				return err
			}
			if len(recs) == 0 {
				return fmt.Errorf("run %s not found or empty", args[0])
			}

			subjects, days := trajectory.InferShape(recs)
			tbl := &trajectory.Table{Subjects: subjects, Days: days, Records: recs}
			if rep := tbl.Validate(); !rep.OK() {
				return rep.Err()
			}

			format := trajectory.FormatFromPath(output)
			if formatName != "" {
				if format, err = trajectory.ParseFormat(formatName); err != nil {
					return err
				}
			}

			wr, err := trajectory.WriteFile(output, tbl, trajectory.WriteOptions{Format: format, CreateDirs: mkdir})
			if err != nil {
				return err
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(wr)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d rows → %s (%s)\n", wr.Rows, wr.Path, wr.Checksum)
			return nil
		},
	}

	cmd.Flags().StringP("output", "o", "", "Output file")
	cmd.Flags().String("format", "", "Output format: csv or parquet (default: from extension)")
	cmd.Flags().Bool("mkdir", false, "Create missing output directories")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

func newRunsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <run-id>",
		Short: "Delete a stored run and its rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			s, err := openSink(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.DeleteRun(context.Background(), args[0]); err != nil {
				return err
			}
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{"deleted": args[0]})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %s\n", args[0])
			return nil
		},
	}
}
