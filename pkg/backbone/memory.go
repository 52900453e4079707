package backbone

import (
	"context"
	"sync"

	"github.com/Vamsi-o/collaborative-workspace/pkg/events"
)

const memoryQueueSize = 1024

// Memory is an in-process backbone. One value may be shared by several app
// instances in the same process, which then behave like separate servers.
type Memory struct {
	mu      sync.RWMutex
	subs    map[*memorySub]struct{}
	members map[string]map[string]events.Member
	closed  bool
}

func NewMemory() *Memory {
	return &Memory{
		subs:    make(map[*memorySub]struct{}),
		members: make(map[string]map[string]events.Member),
	}
}

var _ Backbone = (*Memory)(nil)

type memorySub struct {
	parent *Memory
	queue  chan Message
	done   chan struct{}
	exited chan struct{}
	once   sync.Once
}

func (m *Memory) Publish(ctx context.Context, msg Message) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	for sub := range m.subs {
		select {
		case sub.queue <- msg:
		case <-sub.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (m *Memory) Subscribe(ctx context.Context, h Handler) (Subscription, error) {
	sub := &memorySub{
		parent: m,
		queue:  make(chan Message, memoryQueueSize),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	m.subs[sub] = struct{}{}
	m.mu.Unlock()

	go func() {
		defer close(sub.exited)
		for {
			select {
			case msg := <-sub.queue:
				h(msg)
			case <-sub.done:
				return
			case <-ctx.Done():
				sub.stop()
				return
			}
		}
	}()
	return sub, nil
}

// stop signals the delivery loop before taking the lock, so a publisher
// blocked on a full queue is released.
func (s *memorySub) stop() {
	s.once.Do(func() {
		close(s.done)
		s.parent.mu.Lock()
		delete(s.parent.subs, s)
		s.parent.mu.Unlock()
	})
}

func (s *memorySub) Close() error {
	s.stop()
	<-s.exited
	return nil
}

func (m *Memory) Register(ctx context.Context, roomID, sessionID string, member events.Member) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	room, ok := m.members[roomID]
	if !ok {
		room = make(map[string]events.Member)
		m.members[roomID] = room
	}
	room[sessionID] = member
	return nil
}

func (m *Memory) Unregister(ctx context.Context, roomID, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if room, ok := m.members[roomID]; ok {
		delete(room, sessionID)
		if len(room) == 0 {
			delete(m.members, roomID)
		}
	}
	return nil
}

func (m *Memory) Members(ctx context.Context, roomID string) ([]events.Member, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	room := m.members[roomID]
	entries := make([]entry, 0, len(room))
	for sessionID, member := range room {
		entries = append(entries, entry{sessionID: sessionID, member: member})
	}
	return sortedMembers(entries), nil
}

// RoomCount reports how many rooms currently have registered members.
func (m *Memory) RoomCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.members)
}

func (m *Memory) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	subs := make([]*memorySub, 0, len(m.subs))
	for s := range m.subs {
		subs = append(subs, s)
	}
	m.mu.Unlock()

	for _, s := range subs {
		s.Close()
	}
	return nil
}
