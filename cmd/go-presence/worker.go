package main

import (
	"errors"

	"github.com/spf13/cobra"
)

func newWorkerCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume the job queue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			if cfg.Backbone.Driver == "memory" {
				return errors.New("a standalone worker needs the redis driver; use jobs.embeddedWorker with the memory driver")
			}

			d, err := newDeps(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer d.Close(logger)

			return newWorker(cfg, logger, d).Run(cmd.Context())
		},
	}
}
