package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Vamsi-o/collaborative-workspace/internal/presence"
	"github.com/Vamsi-o/collaborative-workspace/pkg/events"
	"github.com/Vamsi-o/collaborative-workspace/pkg/state"
	"github.com/google/uuid"
)

// EventRouter decodes client frames and hands them to the presence service.
// Bad input never reaches the client as an error: it is logged and dropped.
type EventRouter struct {
	logger   *slog.Logger
	sessions state.Manager
	presence *presence.Service
	handlers *registry
}

func NewEventRouter(logger *slog.Logger, sessions state.Manager, presence *presence.Service) *EventRouter {
	r := &EventRouter{
		logger:   logger.With(slog.String("component", "event_router")),
		sessions: sessions,
		presence: presence,
		handlers: newRegistry(),
	}
	r.registerCoreHandlers()
	return r
}

// Register adds a handler for an event name. Registering a name twice panics.
func (r *EventRouter) Register(name events.Name, fn HandlerFunc) {
	r.handlers.register(name, fn)
}

func (r *EventRouter) registerCoreHandlers() {
	r.Register(events.JoinProject, func(ctx context.Context, sess *state.Session, ev events.Inbound) error {
		return r.presence.Join(ctx, sess, ev.(events.JoinProjectRequest).ProjectID)
	})
	r.Register(events.LeaveProject, func(ctx context.Context, sess *state.Session, ev events.Inbound) error {
		return r.presence.Leave(ctx, sess, ev.(events.LeaveProjectRequest).ProjectID)
	})
	r.Register(events.CursorMove, func(ctx context.Context, sess *state.Session, ev events.Inbound) error {
		return r.presence.MoveCursor(ctx, sess, ev.(events.CursorMoveRequest))
	})
	r.logger.Debug("Registered core handlers", slog.Int("count", r.handlers.count()))
}

func (r *EventRouter) HandleMessage(ctx context.Context, connID uuid.UUID, msg []byte) {
	ev, err := events.Decode(msg)
	if err != nil {
		r.logger.Warn("Dropping client message", slog.String("connID", connID.String()), slog.Any("error", err))
		return
	}

	sess, ok := r.sessions.GetSession(connID)
	if !ok {
		r.logger.Error("could not find session for active connection", slog.String("connID", connID.String()))
		return
	}

	r.logger.Debug("Dispatching event", slog.Any("event", ev.EventName()), slog.String("connID", connID.String()))
	if err := r.dispatch(ctx, sess, ev); err != nil {
		r.logResult(sess, ev, err)
	}
}

func (r *EventRouter) dispatch(ctx context.Context, sess *state.Session, ev events.Inbound) error {
	handler, ok := r.handlers.get(ev.EventName())
	if !ok {
		return fmt.Errorf("%w '%s'", events.ErrUnknownEvent, ev.EventName())
	}
	return handler(ctx, sess, ev)
}

func (r *EventRouter) logResult(sess *state.Session, ev events.Inbound, err error) {
	attrs := []any{
		slog.Any("event", ev.EventName()),
		slog.String("connID", sess.ID.String()),
		slog.String("userID", sess.Identity.UserID),
		slog.Any("error", err),
	}
	switch {
	case errors.Is(err, presence.ErrMissingRoomID):
		r.logger.Warn("Ignoring invalid request", attrs...)
	case errors.Is(err, context.Canceled), errors.Is(err, state.ErrSessionClosed):
		r.logger.Debug("Event abandoned, connection closing", attrs...)
	default:
		r.logger.Error("Event handling failed", attrs...)
	}
}
