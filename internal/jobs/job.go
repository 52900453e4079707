// Package jobs runs submitted work items through a queue: a record is created
// PENDING, a worker moves it to PROCESSING and finally COMPLETED or FAILED.
package jobs

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrJobNotFound    = errors.New("job not found")
	ErrInvalidPayload = errors.New("job payload is not valid JSON")
)

// DefaultQueue is the queue used when none is configured.
const DefaultQueue = "code-execution"

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// Terminal reports whether no further transition can happen.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type Result struct {
	Output    string `json:"output"`
	Timestamp string `json:"timestamp"`
}

type Job struct {
	ID          string          `json:"id"`
	Queue       string          `json:"queue"`
	Status      Status          `json:"status"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Result      *Result         `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
}

// Task is what travels through the queue; the record itself stays in the Store.
type Task struct {
	JobID   string          `json:"jobId"`
	Payload json.RawMessage `json:"payload"`
}
