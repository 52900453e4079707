package main

import (
	"fmt"
	"log/slog"

	"github.com/Vamsi-o/collaborative-workspace/pkg/config"
	"github.com/Vamsi-o/collaborative-workspace/pkg/logging"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configFile string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:           "go-presence",
		Short:         "Real-time presence and cursor sync for collaborative workspaces",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configFile, "config", "config", "config file name or path")

	rootCmd.AddCommand(
		newServeCmd(opts),
		newWorkerCmd(opts),
		newTokenCmd(opts),
	)
	return rootCmd
}

// loadConfig reads the configuration and builds the logger it asks for.
func loadConfig(cmd *cobra.Command, opts *rootOptions) (*config.Config, *slog.Logger, error) {
	bootstrap := logging.NewWithOptions(cmd.ErrOrStderr(), logging.LevelInfo, "text")
	cfg, err := config.Load(bootstrap, opts.configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("loading configuration: %w", err)
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	logger := logging.NewWithOptions(cmd.ErrOrStderr(), level, cfg.Log.Format)
	slog.SetDefault(logger)
	return cfg, logger, nil
}
