package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/crescendo-labs/crescendo/internal/engine"
)

func init() {
	rootCmd.AddCommand(newResultsCmd())
}

func newResultsCmd() *cobra.Command {
	var detailed bool

	cmd := &cobra.Command{
		Use:   "results <experiment-id>",
		Short: "Show results for an experiment",
		Long:  `Show per-variation performance, the significance verdict and the recommended action.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(e *engine.Engine) error {
				res, err := e.ExperimentResults(args[0], detailed)
				if err != nil {
					return err
				}
				printResults(res)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&detailed, "detailed", false, "include full timeline and device/segment breakdowns")
	return cmd
}

func printResults(res *engine.Results) {
	fmt.Printf("EXPERIMENT: %s (%s)\n", res.Name, res.ExperimentID)
	fmt.Printf("STATUS: %s\n", strings.ToUpper(string(res.Status)))
	if !res.StartedAt.IsZero() {
		fmt.Printf("RUNNING: %d days, %d of %d participants\n",
			res.DurationDays, res.SampleSize.Current, res.SampleSize.Target)
	}
	fmt.Println()

	fmt.Println("VARIATION         PARTICIPANTS  CONVERSIONS  RATE      95% CI              REVENUE")
	fmt.Println(strings.Repeat("─", 84))

	for _, v := range res.Variations {
		name := v.Name
		if len(name) > 16 {
			name = name[:13] + "..."
		}
		ci := "N/A"
		if v.Participants > 0 {
			ci = fmt.Sprintf("[%.1f%%, %.1f%%]", v.CILowerPct, v.CIUpperPct)
		}
		fmt.Printf("%-16s  %-12d  %-11d  %-7s  %-18s  $%.2f\n",
			name, v.Participants, v.Conversions,
			fmt.Sprintf("%.2f%%", v.ConversionRatePct), ci, v.Revenue)
	}
	fmt.Println()

	if stat := res.Statistical; stat != nil {
		verdict := "not significant"
		if stat.Significant {
			verdict = "SIGNIFICANT"
		}
		fmt.Printf("Z-score %.2f, p-value %.4f (%s at %.2f%% confidence)\n",
			stat.ZScore, stat.PValue, verdict, stat.Confidence)
		fmt.Printf("Lift: %.2f%% (%s vs %s)\n", stat.LiftPercent, stat.VariantID, stat.ControlID)
	} else {
		fmt.Println("Not enough data for a significance verdict yet.")
	}

	fmt.Printf("\nRecommendation: %s (%s confidence)\n  %s\n",
		res.Recommendation.Action, res.Recommendation.Confidence, res.Recommendation.Reason)

	if len(res.Devices) > 0 {
		fmt.Println("\nBY DEVICE")
		for dev, b := range res.Devices {
			fmt.Printf("  %-10s %d participants, %.2f%% conversion\n", dev, b.Participants, b.RatePct)
		}
	}
	if len(res.Segments) > 0 {
		fmt.Println("\nBY SEGMENT")
		for seg, b := range res.Segments {
			fmt.Printf("  %-14s %d participants, %.2f%% conversion\n", seg, b.Participants, b.RatePct)
		}
	}
}
