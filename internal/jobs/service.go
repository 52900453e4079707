package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

type Service struct {
	logger *slog.Logger
	store  Store
	queue  Queue
	name   string
	now    func() time.Time
}

func NewService(logger *slog.Logger, store Store, queue Queue, queueName string) *Service {
	if queueName == "" {
		queueName = DefaultQueue
	}
	return &Service{
		logger: logger.With(slog.String("component", "jobs"), slog.String("queue", queueName)),
		store:  store,
		queue:  queue,
		name:   queueName,
		now:    time.Now,
	}
}

// Submit records a PENDING job for payload and hands it to the queue. If the
// queue refuses it the record is marked FAILED and the error returned.
func (s *Service) Submit(ctx context.Context, payload json.RawMessage) (Job, error) {
	if len(payload) > 0 && !json.Valid(payload) {
		return Job{}, ErrInvalidPayload
	}

	now := s.now().UTC()
	job := Job{
		ID:        uuid.NewString(),
		Queue:     s.name,
		Status:    StatusPending,
		Payload:   payload,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Save(ctx, job); err != nil {
		return Job{}, err
	}

	if err := s.queue.Enqueue(ctx, Task{JobID: job.ID, Payload: payload}); err != nil {
		job.Status = StatusFailed
		job.Error = err.Error()
		job.UpdatedAt = s.now().UTC()
		if saveErr := s.store.Save(context.WithoutCancel(ctx), job); saveErr != nil {
			s.logger.Error("Failed to record enqueue failure", slog.String("jobID", job.ID), slog.Any("error", saveErr))
		}
		return Job{}, fmt.Errorf("submitting job %s: %w", job.ID, err)
	}

	s.logger.Debug("Job submitted", slog.String("jobID", job.ID))
	return job, nil
}

func (s *Service) Get(ctx context.Context, id string) (Job, error) {
	return s.store.Get(ctx, id)
}
