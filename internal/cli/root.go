package cli

import (
	"github.com/spf13/cobra"

	"github.com/crescendo-labs/crescendo/internal/config"
)

var (
	cfg    *config.Config
	dbPath string
)

var rootCmd = &cobra.Command{
	Use:   "crescendo",
	Short: "Crescendo - self-hosted A/B experiment engine",
	Long: `Crescendo runs A/B experiments end to end: deterministic variation
assignment, event tracking, two-proportion significance testing and
automatic experiment completion. Single Go binary, embedded SQLite.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		if dbPath != "" {
			cfg.Store.Path = dbPath
		}
		return config.InitLogger(cfg.Log)
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path (default from config)")
}
