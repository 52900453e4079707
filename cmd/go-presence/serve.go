package main

import (
	"log/slog"
	"sync"

	"github.com/Vamsi-o/collaborative-workspace/internal/jobs"
	"github.com/Vamsi-o/collaborative-workspace/internal/server"
	"github.com/spf13/cobra"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the websocket collaboration server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			d, err := newDeps(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer d.Close(logger)

			jobSvc := jobs.NewService(logger, d.store, d.queue, cfg.Jobs.Queue)

			// an in-memory queue is only visible to this process
			var workers sync.WaitGroup
			if cfg.Jobs.EmbeddedWorker || d.rdb == nil {
				worker := newWorker(cfg, logger, d)
				workers.Add(1)
				go func() {
					defer workers.Done()
					if err := worker.Run(ctx); err != nil {
						logger.Error("Embedded worker stopped", slog.Any("error", err))
					}
				}()
			}

			app := server.NewApp(logger, ctx, cfg, d.backbone, jobSvc)
			err = app.Run()
			workers.Wait()
			if err != nil {
				return err
			}
			logger.Info("Application shut down successfully.")
			return nil
		},
	}
}
