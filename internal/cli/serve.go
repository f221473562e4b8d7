package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/crescendo-labs/crescendo/internal/engine"
	"github.com/crescendo-labs/crescendo/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start the crescendo HTTP server.

The server provides:
  - Experiment management endpoints under /api/experiments
  - Assignment and event tracking endpoints
  - Prometheus metrics at /metrics
  - Health check at /health

Example:
  crescendo serve --port 8080`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "port to listen on (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	port := servePort
	if port == 0 {
		port = cfg.Server.Port
	}

	return withEngine(ctx, func(e *engine.Engine) error {
		return server.New(e, port).Run(ctx)
	})
}
