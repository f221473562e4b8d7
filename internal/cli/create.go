package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/crescendo-labs/crescendo/internal/engine"
	"github.com/crescendo-labs/crescendo/internal/experiment"
)

func init() {
	rootCmd.AddCommand(newCreateCmd())
}

func newCreateCmd() *cobra.Command {
	var (
		template      string
		variations    string
		hypothesis    string
		primaryMetric string
		duration      int
		allocation    float64
		earlyStopping bool
		start         bool
	)

	cmd := &cobra.Command{
		Use:   "create [name]",
		Short: "Create a new experiment",
		Long: `Create a new experiment, either from a template or from a list of
variation names. Without --template or --variations an interactive
template picker is shown.

Examples:
  crescendo create checkout-cta --variations "Blue button,Green button"
  crescendo create --template landing_page
  crescendo create pricing --template pricing_page --duration 21 --start`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def := &experiment.Experiment{
				Hypothesis: hypothesis,
			}
			if len(args) == 1 {
				def.Name = args[0]
			}

			if template == "" && variations == "" {
				picked, err := promptTemplate()
				if err != nil {
					return err
				}
				template = picked
			}
			def.Template = template

			if variations != "" {
				names := strings.Split(variations, ",")
				if len(names) < 2 {
					return fmt.Errorf("need at least 2 variations. Example: --variations \"A,B\"")
				}
				for i, name := range names {
					def.Variations = append(def.Variations, experiment.Variation{
						ID:   experiment.DefaultVariationID(i),
						Name: strings.TrimSpace(name),
					})
				}
			}

			if primaryMetric != "" {
				def.Metrics.Primary = primaryMetric
			}
			if duration > 0 {
				def.Schedule.DurationDays = duration
			}
			if allocation > 0 {
				def.Targeting.TrafficAllocation = allocation
			}
			def.Settings.EarlyStoppingEnabled = earlyStopping

			return withEngine(cmd.Context(), func(e *engine.Engine) error {
				exp, err := e.CreateExperiment(cmd.Context(), def)
				if err != nil {
					return err
				}

				fmt.Printf("Created experiment '%s' (%s) with %d variations:\n", exp.Name, exp.ID, len(exp.Variations))
				for _, v := range exp.Variations {
					fmt.Printf("  %-12s %s (%.0f%%)\n", v.ID, v.Name, exp.TrafficSplit[v.ID])
				}
				fmt.Printf("  Primary metric: %s\n", exp.Metrics.Primary)
				fmt.Printf("  Duration: %d days, target sample: %d\n", exp.Schedule.DurationDays, exp.SampleSize.Target)

				if start {
					if _, err := e.StartExperiment(cmd.Context(), exp.ID); err != nil {
						return err
					}
					fmt.Println("  Started.")
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&template, "template", "t", "", "experiment template (landing_page, signup_flow, pricing_page)")
	cmd.Flags().StringVarP(&variations, "variations", "v", "", "comma-separated variation names")
	cmd.Flags().StringVar(&hypothesis, "hypothesis", "", "what you expect to happen and why")
	cmd.Flags().StringVar(&primaryMetric, "primary-metric", "", "metric that drives the significance decision")
	cmd.Flags().IntVar(&duration, "duration", 0, "experiment duration in days")
	cmd.Flags().Float64Var(&allocation, "allocation", 0, "percentage of traffic entering the experiment")
	cmd.Flags().BoolVar(&earlyStopping, "early-stopping", false, "stop early once significance is reached")
	cmd.Flags().BoolVar(&start, "start", false, "start the experiment immediately")

	return cmd
}

func promptTemplate() (string, error) {
	keys := experiment.TemplateKeys()
	items := make([]string, len(keys))
	for i, k := range keys {
		tpl, _ := experiment.Template(k)
		items[i] = fmt.Sprintf("%s (%s)", tpl.Name, k)
	}

	prompt := promptui.Select{
		Label: "Experiment template",
		Items: items,
		Size:  len(items),
	}

	idx, _, err := prompt.Run()
	if err != nil {
		if err == promptui.ErrInterrupt {
			os.Exit(0)
		}
		return "", err
	}
	return keys[idx], nil
}
