package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/lifesim/internal/manifest"
	"github.com/nvandessel/lifesim/internal/sink"
)

type versionInfo struct {
	Version        string `json:"version"`
	Commit         string `json:"commit"`
	Date           string `json:"date"`
	ManifestFormat int    `json:"manifest_format"`
	SinkSchema     int    `json:"sink_schema"`
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build and on-disk format versions",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := versionInfo{
				Version:        version,
				Commit:         commit,
				Date:           date,
				ManifestFormat: manifest.FormatV1,
				SinkSchema:     sink.SchemaVersion,
			}
			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(info)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "lifesim version %s (commit: %s, built: %s)\nmanifest format v%d, sink schema v%d\n",
				info.Version, info.Commit, info.Date, info.ManifestFormat, info.SinkSchema)
			return nil
		},
	}
}
