package state

import (
	"github.com/google/uuid"
)

// Manager is the process-local index of live sessions and of which sessions
// are subscribed to which room. Cross-process membership lives in the backbone.
type Manager interface {
	// --- Session Lifecycle ---
	RegisterSession(sess *Session) error
	DeregisterSession(sessID uuid.UUID) error
	GetSession(sessID uuid.UUID) (*Session, bool)
	GetAllSessions() []*Session

	// --- User Lookups ---
	FindOldestUserSession(userID string) (*Session, bool)
	GetUserSessionCount(userID string) (int, error)

	// --- Room Subscriptions ---
	// Subscribe adds the session to the room's local delivery set, creating the
	// room entry if needed.
	Subscribe(roomID string, sess *Session) error
	// Unsubscribe removes the session; the room entry is dropped once empty.
	Unsubscribe(roomID string, sessID uuid.UUID)
	RoomSessions(roomID string) []*Session
	HasRoom(roomID string) bool
}
