package router

import (
	"context"
	"fmt"
	"sync"

	"github.com/Vamsi-o/collaborative-workspace/pkg/events"
	"github.com/Vamsi-o/collaborative-workspace/pkg/state"
)

// HandlerFunc handles one decoded client event for a session.
type HandlerFunc func(ctx context.Context, sess *state.Session, ev events.Inbound) error

type registry struct {
	mu       sync.RWMutex
	handlers map[events.Name]HandlerFunc
}

func newRegistry() *registry {
	return &registry{handlers: make(map[events.Name]HandlerFunc)}
}

func (r *registry) register(name events.Name, fn HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[name]; exists {
		panic(fmt.Sprintf("event handler already registered: %s", name))
	}
	r.handlers[name] = fn
}

func (r *registry) get(name events.Name) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.handlers[name]
	return fn, ok
}

func (r *registry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}
