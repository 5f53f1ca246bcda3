// Package cmd defines and implements the CLI commands for the newswire
// executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/newsscope/newswire/internal/config"
	"github.com/newsscope/newswire/internal/logging"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "newswire",
		Short: "Real-time news collection and streaming service",
		Long: `newswire polls configured news sources, pushes collected articles
through a bounded ingest stream to a worker pool, and streams processed
articles to WebSocket subscribers in real time.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (overrides built-in defaults)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newCollectCmd())

	return cmd
}

// bootstrap loads configuration and builds the process logger. Every
// subcommand starts here.
func bootstrap() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New("newswire", cfg.Logging.Development)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("init logger: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return cfg, logger, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "newswire: %v\n", err)
		os.Exit(1)
	}
}
