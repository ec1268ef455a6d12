package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/leozw/ads-guardian/internal/checks"
)

var checksCmd = &cobra.Command{
	Use:   "checks",
	Short: "List the registered checks",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tDESCRIPTION")
		for _, c := range checks.Default(checks.Deps{}).All() {
			fmt.Fprintf(w, "%s\t%s\t%s\n", c.ID(), c.Name(), c.Description())
		}
		return w.Flush()
	},
}
