package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/lifesim/internal/manifest"
	"github.com/nvandessel/lifesim/internal/trajectory"
)

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a dataset file against the table invariants",
		Long: `Validate a CSV or Parquet dataset.

This command checks for:
  - Row count equal to subjects x days
  - Subject-major, day-minor row order with contiguous days from 0
  - No duplicate (subject_id, day) pairs
  - Observed variables inside their clip bounds
  - Finite hidden indices

Subjects and days are inferred from the data unless given. With
--manifest the file is also checked against its .manifest.json.

Examples:
  lifesim validate out.csv
  lifesim validate out.parquet --days 120 --subjects 500
  lifesim validate out.csv --manifest`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			formatName, _ := cmd.Flags().GetString("format")
			subjects, _ := cmd.Flags().GetInt("subjects")
			days, _ := cmd.Flags().GetInt("days")
			checkManifest, _ := cmd.Flags().GetBool("manifest")
			path := args[0]

			var format trajectory.Format
			if formatName != "" {
				f, err := trajectory.ParseFormat(formatName)
				if err != nil {
					return err
				}
				format = f
			}

			recs, err := trajectory.ReadFile(context.Background(), path, format)
			if err != nil {
				return err
			}

			inferredSubjects, inferredDays := trajectory.InferShape(recs)
			if subjects <= 0 {
				subjects = inferredSubjects
			}
			if days <= 0 {
				days = inferredDays
			}
			report := trajectory.Check(recs, subjects, days)

			var manifestErr error
			if checkManifest {
				m, err := manifest.Read(manifest.Path(path))
				if err != nil {
					return err
				}
				manifestErr = manifest.Verify(m, path)
				if manifestErr != nil && !errors.Is(manifestErr, manifest.ErrChecksumMismatch) {
					return manifestErr
				}
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				result := map[string]interface{}{
					"valid":  report.OK() && manifestErr == nil,
					"report": report,
				}
				if checkManifest {
					result["manifest_verified"] = manifestErr == nil
				}
				if err := json.NewEncoder(out).Encode(result); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(out, "Checked %d rows (%d subjects x %d days)\n", report.Rows, report.Subjects, report.Days)
				for _, v := range report.Violations {
					if v.Row >= 0 {
						fmt.Fprintf(out, "  row %d: %s\n", v.Row, v.Message)
					} else {
						fmt.Fprintf(out, "  %s\n", v.Message)
					}
				}
				if report.Truncated {
					fmt.Fprintln(out, "  (further violations omitted)")
				}
				if checkManifest {
					if manifestErr != nil {
						fmt.Fprintf(out, "Manifest: %v\n", manifestErr)
					} else {
						fmt.Fprintln(out, "Manifest: checksum OK")
					}
				}
			}

			if err := report.Err(); err != nil {
				return err
			}
			return manifestErr
		},
	}

	cmd.Flags().String("format", "", "File format: csv or parquet (default: from extension)")
	cmd.Flags().Int("subjects", 0, "Expected subjects (default: inferred)")
	cmd.Flags().Int("days", 0, "Expected days per subject (default: inferred)")
	cmd.Flags().Bool("manifest", false, "Verify against the accompanying .manifest.json")

	return cmd
}
