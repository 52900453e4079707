package state

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/Vamsi-o/collaborative-workspace/pkg/auth"
	"github.com/google/uuid"
)

var ErrSessionClosed = errors.New("session is closed")

// Transport is the outbound side of a client connection.
type Transport interface {
	Send(message []byte)
	Close(err error)
}

// Session is the server-side state of one live connection: who is on the other
// end and which rooms it has joined on this process. It is owned by its
// connection; other sessions only ever see it through the room index.
type Session struct {
	ID        uuid.UUID
	IPAddress string
	Identity  auth.Identity
	Transport Transport
	CreatedAt time.Time

	mu     sync.Mutex
	rooms  map[string]struct{}
	closed bool
}

func NewSession(id uuid.UUID, ipAddr string, identity auth.Identity, t Transport) *Session {
	return &Session{
		ID:        id,
		IPAddress: ipAddr,
		Identity:  identity,
		Transport: t,
		CreatedAt: time.Now(),
		rooms:     make(map[string]struct{}),
	}
}

// Join adds roomID to the room set. onAdd runs under the session lock only when
// the room was not already joined.
func (s *Session) Join(roomID string, onAdd func() error) (added bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, ErrSessionClosed
	}
	if _, ok := s.rooms[roomID]; ok {
		return false, nil
	}
	if onAdd != nil {
		if err := onAdd(); err != nil {
			return false, err
		}
	}
	s.rooms[roomID] = struct{}{}
	return true, nil
}

// Leave removes roomID from the room set. onRemove runs under the session lock
// only when the room was joined.
func (s *Session) Leave(roomID string, onRemove func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[roomID]; !ok || s.closed {
		return false
	}
	delete(s.rooms, roomID)
	if onRemove != nil {
		onRemove()
	}
	return true
}

// Close marks the session closed and empties its room set. Only the first call
// reports closed=true together with the rooms held at that moment.
func (s *Session) Close(onClose func(rooms []string)) (rooms []string, closed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, false
	}
	s.closed = true
	rooms = sortedRooms(s.rooms)
	s.rooms = make(map[string]struct{})
	if onClose != nil {
		onClose(rooms)
	}
	return rooms, true
}

func (s *Session) InRoom(roomID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rooms[roomID]
	return ok
}

func (s *Session) Rooms() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedRooms(s.rooms)
}

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func sortedRooms(set map[string]struct{}) []string {
	rooms := make([]string, 0, len(set))
	for r := range set {
		rooms = append(rooms, r)
	}
	sort.Strings(rooms)
	return rooms
}
