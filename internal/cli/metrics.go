package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/crescendo-labs/crescendo/internal/engine"
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Show aggregate numbers across all experiments",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd.Context(), func(e *engine.Engine) error {
			fm := e.Metrics()

			fmt.Printf("Experiments:        %d total, %d running, %d completed\n",
				fm.TotalExperiments, fm.RunningExperiments, fm.CompletedExperiments)
			fmt.Printf("Participants:       %d total, %.1f average\n",
				fm.TotalParticipants, fm.AvgParticipants)
			fmt.Printf("Significant wins:   %d (%.1f%% of decided tests)\n",
				fm.SignificantResults, fm.SignificanceRatePct)
			if fm.SignificantResults > 0 {
				fmt.Printf("Average lift:       %.2f%%\n", fm.AverageLiftPct)
			}
			fmt.Printf("Test velocity:      %d started in the last 30 days\n", fm.TestVelocityPerMonth)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(metricsCmd)
}
