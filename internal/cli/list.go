package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/crescendo-labs/crescendo/internal/engine"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all experiments",
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	return withEngine(cmd.Context(), func(e *engine.Engine) error {
		experiments := e.ListExperiments()
		if len(experiments) == 0 {
			fmt.Println("No experiments yet.")
			fmt.Println()
			fmt.Println("Create one with:")
			fmt.Println("  crescendo create my-test --variations \"Control,Variant\"")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tSTATUS\tVARIATIONS\tPARTICIPANTS\tCREATED")

		for _, exp := range experiments {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
				exp.ID,
				exp.Name,
				strings.ToUpper(string(exp.Status)),
				len(exp.Variations),
				exp.SampleSize.Current,
				exp.CreatedAt.Format("2006-01-02"),
			)
		}

		return w.Flush()
	})
}
