package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Vamsi-o/collaborative-workspace/internal/jobs"
	"github.com/Vamsi-o/collaborative-workspace/pkg/backbone"
	"github.com/Vamsi-o/collaborative-workspace/pkg/config"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func newRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Addr(), err)
	}
	return rdb, nil
}

// deps holds the process-wide infrastructure shared by the subcommands.
type deps struct {
	rdb      *redis.Client
	backbone backbone.Backbone
	store    jobs.Store
	queue    jobs.Queue
}

func newDeps(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*deps, error) {
	if cfg.Backbone.Driver == "memory" {
		logger.Warn("Using in-memory backbone; rooms are not shared with other processes")
		return &deps{
			backbone: backbone.NewMemory(),
			store:    jobs.NewMemoryStore(),
			queue:    jobs.NewMemoryQueue(0),
		}, nil
	}

	rdb, err := newRedisClient(ctx, cfg.Backbone.Redis)
	if err != nil {
		return nil, err
	}
	nodeID := uuid.NewString()
	logger.Info("Connected to redis", slog.String("addr", cfg.Backbone.Redis.Addr()), slog.String("nodeID", nodeID))
	return &deps{
		rdb: rdb,
		backbone: backbone.NewRedis(rdb, backbone.RedisOptions{
			Prefix:  cfg.Backbone.Prefix,
			NodeID:  nodeID,
			NodeTTL: cfg.Backbone.NodeTTL,
		}, logger),
		store: jobs.NewRedisStore(rdb, cfg.Backbone.Prefix),
		queue: jobs.NewRedisQueue(rdb, cfg.Backbone.Prefix, cfg.Jobs.Queue),
	}, nil
}

func (d *deps) Close(logger *slog.Logger) {
	if err := d.backbone.Close(); err != nil {
		logger.Warn("Failed to close backbone", slog.Any("error", err))
	}
	if d.rdb != nil {
		if err := d.rdb.Close(); err != nil {
			logger.Warn("Failed to close redis client", slog.Any("error", err))
		}
	}
}

func newWorker(cfg *config.Config, logger *slog.Logger, d *deps) *jobs.Worker {
	return jobs.NewWorker(logger, d.store, d.queue, jobs.SimulatedExecutor{Delay: cfg.Jobs.SimulatedDelay}, cfg.Jobs.Concurrency)
}
