package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/Vamsi-o/collaborative-workspace/pkg/events"
)

type Executor interface {
	Execute(ctx context.Context, payload json.RawMessage) (Result, error)
}

type ExecutorFunc func(ctx context.Context, payload json.RawMessage) (Result, error)

func (f ExecutorFunc) Execute(ctx context.Context, payload json.RawMessage) (Result, error) {
	return f(ctx, payload)
}

// SimulatedExecutor stands in for a real runner: it waits Delay and echoes the
// payload back.
type SimulatedExecutor struct {
	Delay time.Duration
	Now   func() time.Time
}

func (e SimulatedExecutor) Execute(ctx context.Context, payload json.RawMessage) (Result, error) {
	if e.Delay > 0 {
		timer := time.NewTimer(e.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}

	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	return Result{
		Output:    "Executed: " + compact(payload),
		Timestamp: events.Timestamp(now()),
	}, nil
}

func compact(payload json.RawMessage) string {
	if len(payload) == 0 {
		return "null"
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, payload); err != nil {
		return string(payload)
	}
	return buf.String()
}
