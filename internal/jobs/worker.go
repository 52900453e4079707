package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// finalSaveTimeout bounds recording an outcome after the worker was told to stop.
const finalSaveTimeout = 5 * time.Second

type Worker struct {
	logger      *slog.Logger
	store       Store
	queue       Queue
	executor    Executor
	concurrency int
	now         func() time.Time
}

func NewWorker(logger *slog.Logger, store Store, queue Queue, executor Executor, concurrency int) *Worker {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Worker{
		logger:      logger.With(slog.String("component", "jobs-worker")),
		store:       store,
		queue:       queue,
		executor:    executor,
		concurrency: concurrency,
		now:         time.Now,
	}
}

// Run consumes tasks with the configured number of consumers until ctx ends.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("Worker started", slog.Int("concurrency", w.concurrency))

	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.consume(ctx)
		}()
	}
	wg.Wait()

	w.logger.Info("Worker stopped")
	return nil
}

func (w *Worker) consume(ctx context.Context) {
	for {
		task, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("Failed to dequeue task", slog.Any("error", err))
			select {
			case <-time.After(time.Second):
				continue
			case <-ctx.Done():
				return
			}
		}
		w.Process(ctx, task)
	}
}

// Process drives one task to a terminal status.
func (w *Worker) Process(ctx context.Context, task Task) {
	logger := w.logger.With(slog.String("jobID", task.JobID))

	job, err := w.store.Get(ctx, task.JobID)
	if err != nil {
		logger.Warn("Dropping task without a job record", slog.Any("error", err))
		return
	}
	if job.Status.Terminal() {
		logger.Debug("Skipping job already finished", slog.String("status", string(job.Status)))
		return
	}

	logger.Info("Processing job")
	job.Status = StatusProcessing
	job.UpdatedAt = w.now().UTC()
	if err := w.store.Save(ctx, job); err != nil {
		logger.Error("Failed to mark job processing", slog.Any("error", err))
		return
	}

	result, execErr := w.executor.Execute(ctx, task.Payload)

	now := w.now().UTC()
	job.UpdatedAt = now
	if execErr != nil {
		job.Status = StatusFailed
		job.Error = failureMessage(execErr)
	} else {
		job.Status = StatusCompleted
		job.Result = &result
		job.CompletedAt = &now
	}

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalSaveTimeout)
	defer cancel()
	if err := w.store.Save(saveCtx, job); err != nil {
		logger.Error("Failed to record job outcome", slog.String("status", string(job.Status)), slog.Any("error", err))
		return
	}

	if job.Status == StatusFailed {
		logger.Warn("Job failed", slog.String("error", job.Error))
		return
	}
	logger.Info("Job completed")
}

func failureMessage(err error) string {
	if errors.Is(err, context.Canceled) {
		return "job interrupted: worker shutting down"
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return "job failed"
}
