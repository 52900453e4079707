package statemanager

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/Vamsi-o/collaborative-workspace/pkg/state"
	"github.com/google/uuid"
)

type InMemoryManager struct {
	sessions map[uuid.UUID]*state.Session
	users    map[string]map[uuid.UUID]*state.Session
	rooms    map[string]map[uuid.UUID]*state.Session

	sessMu sync.RWMutex
	roomMu sync.RWMutex

	logger *slog.Logger
}

func NewInMemoryManager(logger *slog.Logger) *InMemoryManager {
	return &InMemoryManager{
		sessions: make(map[uuid.UUID]*state.Session),
		users:    make(map[string]map[uuid.UUID]*state.Session),
		rooms:    make(map[string]map[uuid.UUID]*state.Session),
		logger:   logger.With(slog.String("component", "state_manager_inmemory")),
	}
}

// compile-time check to ensure InMemoryManager implements Manager.
var _ state.Manager = (*InMemoryManager)(nil)

func (m *InMemoryManager) RegisterSession(sess *state.Session) error {
	if sess.Identity.UserID == "" {
		return errors.New("cannot register session without a user")
	}
	m.sessMu.Lock()
	defer m.sessMu.Unlock()

	if _, exists := m.sessions[sess.ID]; exists {
		return errors.New("session is already registered")
	}
	m.sessions[sess.ID] = sess

	userSessions, ok := m.users[sess.Identity.UserID]
	if !ok {
		userSessions = make(map[uuid.UUID]*state.Session)
		m.users[sess.Identity.UserID] = userSessions
	}
	userSessions[sess.ID] = sess

	m.logger.Debug("Session registered", slog.String("sessID", sess.ID.String()), slog.String("userID", sess.Identity.UserID))
	return nil
}

func (m *InMemoryManager) DeregisterSession(sessID uuid.UUID) error {
	m.sessMu.Lock()
	sess, ok := m.sessions[sessID]
	if !ok {
		// already deregistered
		m.sessMu.Unlock()
		return nil
	}
	delete(m.sessions, sessID)
	if userSessions, ok := m.users[sess.Identity.UserID]; ok {
		delete(userSessions, sessID)
		if len(userSessions) == 0 {
			delete(m.users, sess.Identity.UserID)
		}
	}
	m.sessMu.Unlock()

	// drop any subscription the session still holds
	m.roomMu.Lock()
	for roomID, members := range m.rooms {
		if _, ok := members[sessID]; ok {
			m.removeFromRoomLocked(roomID, sessID)
		}
	}
	m.roomMu.Unlock()

	m.logger.Debug("Session deregistered", slog.String("sessID", sessID.String()))
	return nil
}

func (m *InMemoryManager) GetSession(sessID uuid.UUID) (*state.Session, bool) {
	m.sessMu.RLock()
	defer m.sessMu.RUnlock()
	sess, ok := m.sessions[sessID]
	return sess, ok
}

func (m *InMemoryManager) GetAllSessions() []*state.Session {
	m.sessMu.RLock()
	defer m.sessMu.RUnlock()

	sessions := make([]*state.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

// --- User Lookups ---

func (m *InMemoryManager) GetUserSessionCount(userID string) (int, error) {
	m.sessMu.RLock()
	defer m.sessMu.RUnlock()
	return len(m.users[userID]), nil
}

func (m *InMemoryManager) FindOldestUserSession(userID string) (*state.Session, bool) {
	m.sessMu.RLock()
	defer m.sessMu.RUnlock()

	var oldest *state.Session
	for _, sess := range m.users[userID] {
		if oldest == nil || sess.CreatedAt.Before(oldest.CreatedAt) {
			oldest = sess
		}
	}
	return oldest, oldest != nil
}

// --- Room Subscriptions ---

func (m *InMemoryManager) Subscribe(roomID string, sess *state.Session) error {
	if _, ok := m.GetSession(sess.ID); !ok {
		return errors.New("cannot subscribe unknown session")
	}

	m.roomMu.Lock()
	defer m.roomMu.Unlock()

	members, exists := m.rooms[roomID]
	if !exists {
		members = make(map[uuid.UUID]*state.Session)
		m.rooms[roomID] = members
	}
	members[sess.ID] = sess

	m.logger.Debug("Session subscribed to room", "sessID", sess.ID.String(), "roomID", roomID)
	return nil
}

func (m *InMemoryManager) Unsubscribe(roomID string, sessID uuid.UUID) {
	m.roomMu.Lock()
	defer m.roomMu.Unlock()
	m.removeFromRoomLocked(roomID, sessID)
}

func (m *InMemoryManager) removeFromRoomLocked(roomID string, sessID uuid.UUID) {
	members, ok := m.rooms[roomID]
	if !ok {
		return
	}
	delete(members, sessID)

	// rooms only exist while someone is in them
	if len(members) == 0 {
		delete(m.rooms, roomID)
		m.logger.Debug("Removed empty room", "roomID", roomID)
	}
}

func (m *InMemoryManager) RoomSessions(roomID string) []*state.Session {
	m.roomMu.RLock()
	defer m.roomMu.RUnlock()

	members := m.rooms[roomID]
	sessions := make([]*state.Session, 0, len(members))
	for _, s := range members {
		sessions = append(sessions, s)
	}
	return sessions
}

func (m *InMemoryManager) HasRoom(roomID string) bool {
	m.roomMu.RLock()
	defer m.roomMu.RUnlock()
	_, ok := m.rooms[roomID]
	return ok
}
