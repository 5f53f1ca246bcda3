package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/newsscope/newswire/internal/app"
)

// newServeCmd creates the 'serve' subcommand: the long-running pipeline.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the full pipeline: collector, workers, and WebSocket server",
		Long: `Starts the collection loop, the processing worker pool, and the
HTTP/WebSocket server, and runs until interrupted. SIGINT or SIGTERM
triggers an ordered shutdown: collection stops first, in-flight work
drains, then subscriber connections close.`,
		RunE: runServeCommand,
	}
}

func runServeCommand(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("initialization failed", zap.Error(err))
		return err
	}

	return a.Run(ctx)
}
