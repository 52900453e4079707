// Package presence implements room membership, presence broadcasts and cursor
// relay for collaboration sessions.
//
// A session's rooms are tracked in three places: the session's own room set,
// the process-local subscription index used for delivery, and the backbone
// registry used for cross-process member listing. Join writes the registry
// first and leave removes from it last, so the local view is always a subset
// of what the backbone can see.
package presence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Vamsi-o/collaborative-workspace/pkg/backbone"
	"github.com/Vamsi-o/collaborative-workspace/pkg/events"
	"github.com/Vamsi-o/collaborative-workspace/pkg/state"
)

var (
	// ErrMissingRoomID is the InvalidRequest outcome: the call is ignored and
	// the connection stays open.
	ErrMissingRoomID       = errors.New("invalid request: missing room id")
	ErrBackboneUnavailable = errors.New("backbone unavailable")
)

const defaultSweepTimeout = 5 * time.Second

type Options struct {
	// Now stamps outgoing events. Defaults to time.Now.
	Now func() time.Time
	// SweepTimeout bounds the leave broadcasts issued after a disconnect.
	SweepTimeout time.Duration
}

type Service struct {
	logger   *slog.Logger
	sessions state.Manager
	bb       backbone.Backbone

	now          func() time.Time
	sweepTimeout time.Duration
	sweeps       sync.WaitGroup
}

func NewService(logger *slog.Logger, sessions state.Manager, bb backbone.Backbone, opts Options) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.SweepTimeout <= 0 {
		opts.SweepTimeout = defaultSweepTimeout
	}
	return &Service{
		logger:       logger.With(slog.String("component", "presence")),
		sessions:     sessions,
		bb:           bb,
		now:          opts.Now,
		sweepTimeout: opts.SweepTimeout,
	}
}

func memberOf(sess *state.Session) events.Member {
	return events.Member{UserID: sess.Identity.UserID, Email: sess.Identity.Email}
}

// Connect makes an admitted session known to this process.
func (s *Service) Connect(sess *state.Session) error {
	return s.sessions.RegisterSession(sess)
}

// Join adds the session to roomID, tells the other members and then sends the
// full member list to everyone in the room, the joiner included. Joining a room
// the session is already in changes nothing and broadcasts nothing.
func (s *Service) Join(ctx context.Context, sess *state.Session, roomID string) error {
	if roomID == "" {
		return ErrMissingRoomID
	}
	sessID := sess.ID.String()
	joined := events.UserJoinedEvent{
		UserID:    sess.Identity.UserID,
		Email:     sess.Identity.Email,
		Timestamp: events.Timestamp(s.now()),
	}
	// user:joined goes out under the session lock so a concurrent disconnect
	// can only announce the departure after it.
	var joinedErr error
	added, err := sess.Join(roomID, func() error {
		if err := s.bb.Register(ctx, roomID, sessID, memberOf(sess)); err != nil {
			return fmt.Errorf("%w: register in room '%s': %w", ErrBackboneUnavailable, roomID, err)
		}
		if err := s.sessions.Subscribe(roomID, sess); err != nil {
			s.unregister(ctx, roomID, sessID)
			return err
		}
		joinedErr = s.broadcast(ctx, roomID, sess, joined)
		return nil
	})
	if err != nil {
		return err
	}
	if !added {
		s.logger.Debug("Session already in room", slog.String("sessID", sessID), slog.String("roomID", roomID))
		return nil
	}
	s.logger.Info("User joined room", slog.String("userID", sess.Identity.UserID), slog.String("roomID", roomID))
	if joinedErr != nil {
		return joinedErr
	}
	if sess.Closed() {
		// the disconnect sweep owns the room from here on
		return state.ErrSessionClosed
	}

	members, err := s.ListMembers(ctx, roomID)
	if err != nil {
		return err
	}
	return s.broadcast(ctx, roomID, nil, events.UsersListEvent(members))
}

// Leave tells the remaining members first and only then drops the session from
// the room, all under the session lock so a concurrent disconnect cannot
// announce the same departure again. Leaving a room the session is not in is a
// no-op.
func (s *Service) Leave(ctx context.Context, sess *state.Session, roomID string) error {
	if roomID == "" {
		return ErrMissingRoomID
	}

	left := events.UserLeftEvent{
		UserID:    sess.Identity.UserID,
		Email:     sess.Identity.Email,
		Timestamp: events.Timestamp(s.now()),
	}
	var broadcastErr error
	removed := sess.Leave(roomID, func() {
		// a closing connection cancels ctx; the notification is still owed
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.sweepTimeout)
		defer cancel()
		// the session leaves even when the notification could not be published.
		broadcastErr = s.broadcast(pubCtx, roomID, sess, left)
		s.sessions.Unsubscribe(roomID, sess.ID)
	})
	if !removed {
		s.logger.Debug("Leave for room not joined", slog.String("sessID", sess.ID.String()), slog.String("roomID", roomID))
		return nil
	}
	s.unregister(ctx, roomID, sess.ID.String())
	s.logger.Info("User left room", slog.String("userID", sess.Identity.UserID), slog.String("roomID", roomID))
	return broadcastErr
}

// ListMembers returns every member of roomID across all processes.
func (s *Service) ListMembers(ctx context.Context, roomID string) ([]events.Member, error) {
	if roomID == "" {
		return nil, ErrMissingRoomID
	}
	members, err := s.bb.Members(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("%w: list members of room '%s': %w", ErrBackboneUnavailable, roomID, err)
	}
	return members, nil
}

// MoveCursor relays a cursor position to every other member of the project.
// Updates are neither bounds-checked nor throttled.
func (s *Service) MoveCursor(ctx context.Context, sess *state.Session, req events.CursorMoveRequest) error {
	if req.ProjectID == "" {
		return ErrMissingRoomID
	}
	update := events.CursorUpdateEvent{
		UserID:    sess.Identity.UserID,
		Email:     sess.Identity.Email,
		X:         req.X,
		Y:         req.Y,
		FileID:    req.FileID,
		Timestamp: events.Timestamp(s.now()),
	}
	return s.broadcast(ctx, req.ProjectID, sess, update)
}

// Disconnect tears the session down and announces the departure in every room
// it was in. It returns without waiting for the announcements; repeated calls
// for the same session do nothing.
func (s *Service) Disconnect(sess *state.Session) {
	rooms, closed := sess.Close(func(rooms []string) {
		for _, roomID := range rooms {
			s.sessions.Unsubscribe(roomID, sess.ID)
		}
	})
	if err := s.sessions.DeregisterSession(sess.ID); err != nil {
		s.logger.Error("Failed to deregister session", slog.String("sessID", sess.ID.String()), slog.Any("error", err))
	}
	if !closed || len(rooms) == 0 {
		return
	}

	left := events.UserLeftEvent{
		UserID:    sess.Identity.UserID,
		Email:     sess.Identity.Email,
		Timestamp: events.Timestamp(s.now()),
	}
	s.sweeps.Add(1)
	go func() {
		defer s.sweeps.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.sweepTimeout)
		defer cancel()

		for _, roomID := range rooms {
			if err := s.broadcast(ctx, roomID, sess, left); err != nil {
				s.logger.Warn("Dropped leave notification", slog.String("roomID", roomID), slog.Any("error", err))
			}
			s.unregister(ctx, roomID, sess.ID.String())
		}
		s.logger.Debug("Disconnect sweep finished", slog.String("sessID", sess.ID.String()), slog.Int("rooms", len(rooms)))
	}()
}

// Wait blocks until every pending disconnect sweep has finished.
func (s *Service) Wait() {
	s.sweeps.Wait()
}

// Deliver fans a backbone message out to the local sessions of its room.
func (s *Service) Deliver(msg backbone.Message) {
	targets := s.sessions.RoomSessions(msg.Room)
	delivered := 0
	for _, sess := range targets {
		if sess.ID.String() == msg.Except {
			continue
		}
		sess.Transport.Send(msg.Frame)
		delivered++
	}
	if delivered > 0 {
		s.logger.Debug("Delivered room message", slog.String("roomID", msg.Room), slog.Int("sessions", delivered))
	}
}

func (s *Service) broadcast(ctx context.Context, roomID string, except *state.Session, ev events.Outbound) error {
	frame, err := events.Encode(ev)
	if err != nil {
		return err
	}
	msg := backbone.Message{Room: roomID, Frame: frame}
	if except != nil {
		msg.Except = except.ID.String()
	}
	if err := s.bb.Publish(ctx, msg); err != nil {
		return fmt.Errorf("%w: publish %s to room '%s': %w", ErrBackboneUnavailable, ev.EventName(), roomID, err)
	}
	return nil
}

// unregister outlives the caller's context: a registry entry left behind would
// keep showing the session in member lists.
func (s *Service) unregister(ctx context.Context, roomID, sessID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.sweepTimeout)
	defer cancel()
	if err := s.bb.Unregister(ctx, roomID, sessID); err != nil {
		s.logger.Warn("Failed to unregister from room", slog.String("roomID", roomID), slog.String("sessID", sessID), slog.Any("error", err))
	}
}
