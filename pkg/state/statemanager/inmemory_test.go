package statemanager_test

import (
	"errors"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/Vamsi-o/collaborative-workspace/pkg/auth"
	"github.com/Vamsi-o/collaborative-workspace/pkg/state"
	"github.com/Vamsi-o/collaborative-workspace/pkg/state/statemanager"
	"github.com/google/uuid"
)

// --- Test Suite Setup ---

func newTestLogger() *slog.Logger {
	// Discard logger output during tests by setting a high level
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return slog.New(handler)
}

func newTestManager() *statemanager.InMemoryManager {
	return statemanager.NewInMemoryManager(newTestLogger())
}

type nopTransport struct{}

func (nopTransport) Send([]byte)  {}
func (nopTransport) Close(error) {}

func newSession(userID string) *state.Session {
	return state.NewSession(uuid.New(), "127.0.0.1", auth.Identity{UserID: userID, Email: userID + "@example.com"}, nopTransport{})
}

// --- Session Lifecycle Tests ---

func TestSessionLifecycle(t *testing.T) {
	m := newTestManager()
	sess := newSession("user-1")

	// 1. Register
	if err := m.RegisterSession(sess); err != nil {
		t.Fatalf("RegisterSession failed: %v", err)
	}
	if err := m.RegisterSession(sess); err == nil {
		t.Error("Expected duplicate registration to fail")
	}

	// 2. Get
	retrieved, found := m.GetSession(sess.ID)
	if !found {
		t.Fatal("GetSession failed to find registered session")
	}
	if retrieved != sess {
		t.Errorf("Retrieved session mismatch")
	}

	// 3. Deregister
	if err := m.DeregisterSession(sess.ID); err != nil {
		t.Fatalf("DeregisterSession failed: %v", err)
	}
	if _, found = m.GetSession(sess.ID); found {
		t.Error("Found session after it should have been deregistered")
	}
	// deregistering twice is harmless
	if err := m.DeregisterSession(sess.ID); err != nil {
		t.Errorf("Second DeregisterSession returned error: %v", err)
	}
}

func TestRegisterRequiresUser(t *testing.T) {
	m := newTestManager()
	if err := m.RegisterSession(newSession("")); err == nil {
		t.Error("Expected registration without user to fail")
	}
}

func TestUserSessionCount(t *testing.T) {
	m := newTestManager()
	userID := "user-1"
	sess1 := newSession(userID)
	sess2 := newSession(userID)

	m.RegisterSession(sess1)
	if count, _ := m.GetUserSessionCount(userID); count != 1 {
		t.Errorf("Expected session count 1, got %d", count)
	}

	m.RegisterSession(sess2)
	if count, _ := m.GetUserSessionCount(userID); count != 2 {
		t.Errorf("Expected session count 2, got %d", count)
	}

	m.DeregisterSession(sess1.ID)
	if count, _ := m.GetUserSessionCount(userID); count != 1 {
		t.Errorf("Expected session count 1 after deregister, got %d", count)
	}
	if count, _ := m.GetUserSessionCount("nobody"); count != 0 {
		t.Errorf("Expected session count 0 for unknown user, got %d", count)
	}
}

func TestFindOldestUserSession(t *testing.T) {
	m := newTestManager()
	userID := "user-cycle"
	sess1 := newSession(userID)
	time.Sleep(5 * time.Millisecond) // Ensure timestamps are different
	sess2 := newSession(userID)

	m.RegisterSession(sess2)
	m.RegisterSession(sess1)

	oldest, found := m.FindOldestUserSession(userID)
	if !found {
		t.Fatal("Expected to find oldest session, but did not")
	}
	if oldest.ID != sess1.ID {
		t.Errorf("Expected oldest session ID to be %s, got %s", sess1.ID, oldest.ID)
	}

	if _, found := m.FindOldestUserSession("nobody"); found {
		t.Error("Expected no session for unknown user")
	}
}

// --- Room Subscription Tests ---

func TestRoomSubscriptions(t *testing.T) {
	m := newTestManager()
	roomID := "test-room"
	sess1, sess2 := newSession("user-room-1"), newSession("user-room-2")
	m.RegisterSession(sess1)
	m.RegisterSession(sess2)

	if err := m.Subscribe(roomID, sess1); err != nil {
		t.Fatalf("sess1 failed to subscribe: %v", err)
	}
	if err := m.Subscribe(roomID, sess2); err != nil {
		t.Fatalf("sess2 failed to subscribe: %v", err)
	}
	// subscribing twice does not duplicate delivery
	m.Subscribe(roomID, sess2)

	if members := m.RoomSessions(roomID); len(members) != 2 {
		t.Fatalf("Expected 2 sessions in room, got %d", len(members))
	}

	m.Unsubscribe(roomID, sess1.ID)
	members := m.RoomSessions(roomID)
	if len(members) != 1 {
		t.Fatalf("Expected 1 session after unsubscribe, got %d", len(members))
	}
	if members[0].ID != sess2.ID {
		t.Errorf("Expected remaining session to be %s, got %s", sess2.ID, members[0].ID)
	}

	// Test empty room cleanup
	m.Unsubscribe(roomID, sess2.ID)
	if m.HasRoom(roomID) {
		t.Error("Expected room to be deleted after last session left, but it was found")
	}
}

func TestSubscribeUnknownSession(t *testing.T) {
	m := newTestManager()
	if err := m.Subscribe("room", newSession("ghost")); err == nil {
		t.Error("Expected subscribing an unregistered session to fail")
	}
}

func TestDeregisterDropsSubscriptions(t *testing.T) {
	m := newTestManager()
	sess := newSession("user-1")
	m.RegisterSession(sess)
	m.Subscribe("p1", sess)
	m.Subscribe("p2", sess)

	m.DeregisterSession(sess.ID)
	if m.HasRoom("p1") || m.HasRoom("p2") {
		t.Error("Expected rooms to be removed with their only session")
	}
}

// --- Session State Tests ---

func TestSessionJoinLeaveClose(t *testing.T) {
	sess := newSession("user-1")

	added, err := sess.Join("p1", nil)
	if err != nil || !added {
		t.Fatalf("Join(p1) = %v, %v; want true, nil", added, err)
	}
	added, err = sess.Join("p1", func() error {
		t.Error("onAdd must not run for an already joined room")
		return nil
	})
	if err != nil || added {
		t.Fatalf("second Join(p1) = %v, %v; want false, nil", added, err)
	}

	sess.Join("p2", nil)
	if !sess.Leave("p2", nil) {
		t.Error("Expected Leave(p2) to report removal")
	}
	if sess.Leave("p2", nil) {
		t.Error("Expected second Leave(p2) to be a no-op")
	}

	rooms, closed := sess.Close(nil)
	if !closed || len(rooms) != 1 || rooms[0] != "p1" {
		t.Fatalf("Close() = %v, %v; want [p1], true", rooms, closed)
	}
	if _, closed := sess.Close(nil); closed {
		t.Error("Expected Close to report only once")
	}
	if _, err := sess.Join("p3", nil); !errors.Is(err, state.ErrSessionClosed) {
		t.Errorf("Expected ErrSessionClosed after close, got %v", err)
	}
	if len(sess.Rooms()) != 0 {
		t.Error("Expected closed session to hold no rooms")
	}
}

func TestSessionJoinHookFailureLeavesNoState(t *testing.T) {
	sess := newSession("user-1")
	hookErr := errors.New("backbone down")

	if _, err := sess.Join("p1", func() error { return hookErr }); !errors.Is(err, hookErr) {
		t.Fatalf("Expected hook error, got %v", err)
	}
	if sess.InRoom("p1") {
		t.Error("Room must not be joined when the hook fails")
	}
}

func TestSubscriptions_Concurrency(t *testing.T) {
	m := newTestManager()
	numGoroutines := 100
	var wg sync.WaitGroup

	sessions := make([]*state.Session, numGoroutines)
	for i := range sessions {
		sessions[i] = newSession("user" + strconv.Itoa(i%10))
		m.RegisterSession(sessions[i])
	}

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			roomID := "room" + strconv.Itoa(i%5)
			m.Subscribe(roomID, sessions[i])
			m.RoomSessions(roomID)
			m.Unsubscribe(roomID, sessions[i].ID)
		}(i)
	}
	wg.Wait()

	for i := 0; i < 5; i++ {
		if m.HasRoom("room" + strconv.Itoa(i)) {
			t.Errorf("Expected room%d to be cleaned up", i)
		}
	}
}
