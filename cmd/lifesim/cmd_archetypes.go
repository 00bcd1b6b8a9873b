package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nvandessel/lifesim/internal/archetype"
)

func newArchetypesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "archetypes",
		Short: "List the lifestyle archetypes subjects are drawn from",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			all := archetype.Default().All()

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"archetypes": all,
					"count":      len(all),
				})
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ARCHETYPE\tSLEEP\tSTRESS\tACTIVITY\tJUNK\tALCOHOL")
			for _, a := range all {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					a.Name, param(a.Sleep), param(a.Stress), param(a.Activity), param(a.Junk), param(a.Alcohol))
			}
			return tw.Flush()
		},
	}
}

func param(p archetype.Param) string {
	return fmt.Sprintf("%g±%g", p.Mean, p.Std)
}
