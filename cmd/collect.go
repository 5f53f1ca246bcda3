package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/newsscope/newswire/internal/app"
)

// newCollectCmd creates the 'collect' subcommand: one collection cycle and
// exit. Useful for cron-style operation and for smoke-testing source
// configuration.
func newCollectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "collect",
		Short: "Run a single collection cycle and exit",
		Long: `Checks every configured source once, enqueues any new articles,
and exits. Workers and the WebSocket server are not started; a separate
serve process (or a later one) drains the queue.`,
		RunE: runCollectCommand,
	}
}

func runCollectCommand(cmd *cobra.Command, _ []string) error {
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
	defer a.Shutdown()

	a.CollectOnce(ctx)
	logger.Info("collection cycle finished")
	return nil
}
