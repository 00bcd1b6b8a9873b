package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvandessel/lifesim/internal/blob"
)

func newDatasetsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "datasets",
		Short: "Browse datasets published to a blob store",
		Long: `List, fetch, or share datasets published with 'lifesim generate --publish'.
The store defaults to the publish section of the config file.

Examples:
  lifesim datasets list --publish fs --publish-root ./published
  lifesim datasets fetch lifesim/20260101T000000.000000Z-42/out.csv ./out.csv
  lifesim datasets url lifesim/20260101T000000.000000Z-42/out.csv --expires 1h`,
	}

	cmd.PersistentFlags().String("publish", "", "Blob driver: fs or s3 (default: from config)")
	cmd.PersistentFlags().String("publish-root", "", "Root directory for the fs driver")
	cmd.PersistentFlags().String("s3-bucket", "", "Bucket for the s3 driver")

	cmd.AddCommand(newDatasetsListCmd(), newDatasetsFetchCmd(), newDatasetsURLCmd())
	return cmd
}

// openStore opens the blob store named by flags, falling back to the config file.
func openStore(cmd *cobra.Command) (blob.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	pc := cfg.Publish
	if driver, _ := cmd.Flags().GetString("publish"); driver != "" {
		pc.Driver = driver
	}
	if root, _ := cmd.Flags().GetString("publish-root"); root != "" {
		pc.FS.Root = root
	}
	if bucket, _ := cmd.Flags().GetString("s3-bucket"); bucket != "" {
		pc.S3.Bucket = bucket
	}
	if !pc.Enabled() {
		return nil, fmt.Errorf("no blob store configured (use --publish)")
	}
	return blob.Open(context.Background(), pc)
}

func newDatasetsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list [prefix]",
		Short: "List published objects",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			prefix := ""
			if len(args) == 1 {
				prefix = args[0]
			}

			st, err := openStore(cmd)
			if err != nil {
				return err
			}
			infos, err := st.List(context.Background(), prefix)
			if err != nil {
				return err
			}

			if jsonOut {
				if infos == nil {
					infos = []blob.Info{}
				}
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"objects": infos,
					"count":   len(infos),
				})
			}

			if len(infos) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No published datasets.")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tSIZE\tMODIFIED")
			for _, info := range infos {
				fmt.Fprintf(tw, "%s\t%d\t%s\n", info.Key, info.Size, info.LastModified.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
}

func newDatasetsFetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch <key> <dest>",
		Short: "Download a published object to a local file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			key, dest := args[0], args[1]

			st, err := openStore(cmd)
			if err != nil {
				return err
			}
			info, rc, err := st.Get(context.Background(), key)
			if err != nil {
				return err
			}
			defer rc.Close()

			n, err := writeAtomic(dest, rc)
			if err != nil {
				return err
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"key":        info.Key,
					"path":       dest,
					"size_bytes": n,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Fetched %s → %s (%d bytes)\n", info.Key, dest, n)
			return nil
		},
	}
}

func newDatasetsURLCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "url <key>",
		Short: "Print a time-limited download URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			expires, _ := cmd.Flags().GetDuration("expires")

			st, err := openStore(cmd)
			if err != nil {
				return err
			}
			ctx := context.Background()
			url, err := st.PresignURL(ctx, args[0], blob.SignedURLOptions{Method: "GET", Expiry: expires})
			if errors.Is(err, blob.ErrUnsupported) {
				// Local stores have no signing; their objects are addressable directly.
				info, headErr := st.Head(ctx, args[0])
				if headErr != nil {
					return headErr
				}
				url, err = info.URL, nil
			}
			if err != nil {
				return err
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{"key": args[0], "url": url})
			}
			fmt.Fprintln(cmd.OutOrStdout(), url)
			return nil
		},
	}
	cmd.Flags().Duration("expires", 15*time.Minute, "URL lifetime")
	return cmd
}

// writeAtomic copies r into dest through a temp file in the same directory.
func writeAtomic(dest string, r io.Reader) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".lifesim-fetch-*")
	if err != nil {
		return 0, fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	n, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		return 0, fmt.Errorf("writing %s: %w", dest, err)
	}
	if err := tmp.Close(); err != nil {
		return 0, err
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return 0, fmt.Errorf("renaming into place: %w", err)
	}
	return n, nil
}
