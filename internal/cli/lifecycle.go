package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/crescendo-labs/crescendo/internal/engine"
	"github.com/crescendo-labs/crescendo/internal/experiment"
)

var startCmd = &cobra.Command{
	Use:   "start <experiment-id>",
	Short: "Start a draft experiment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd.Context(), func(e *engine.Engine) error {
			exp, err := e.StartExperiment(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Started '%s'. Runs until %s.\n", exp.Name, exp.Schedule.EndDate.Format("2006-01-02 15:04"))
			return nil
		})
	},
}

func newStopCmd() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "stop <experiment-id>",
		Short: "Stop a running experiment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(e *engine.Engine) error {
				exp, err := e.StopExperiment(cmd.Context(), args[0], reason)
				if err != nil {
					return err
				}
				fmt.Printf("Stopped '%s' (%s).\n", exp.Name, exp.StopReason)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&reason, "reason", experiment.StopReasonManual, "stop reason (manual, early_significance)")
	return cmd
}

func init() {
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(newStopCmd())
}
