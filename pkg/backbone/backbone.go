// Package backbone is the publish/subscribe layer shared by every server
// process. It carries room broadcasts between processes and keeps the
// cross-process registry used to answer "who is in room R".
package backbone

import (
	"context"
	"encoding/json"
	"errors"
	"sort"

	"github.com/Vamsi-o/collaborative-workspace/pkg/events"
)

var ErrClosed = errors.New("backbone closed")

// Message is one room broadcast. Frame is the encoded client envelope and is
// delivered as-is to every local session in Room except the one named by Except.
type Message struct {
	Room   string          `json:"room"`
	Except string          `json:"except,omitempty"`
	Frame  json.RawMessage `json:"frame"`
	Origin string          `json:"origin,omitempty"`
}

type Handler func(msg Message)

type Subscription interface {
	Close() error
}

type Backbone interface {
	Publish(ctx context.Context, msg Message) error
	// Subscribe delivers every room message to h, in publish order per
	// publisher, until the subscription is closed or ctx ends. It returns once
	// the subscription is active.
	Subscribe(ctx context.Context, h Handler) (Subscription, error)

	Register(ctx context.Context, roomID, sessionID string, member events.Member) error
	Unregister(ctx context.Context, roomID, sessionID string) error
	Members(ctx context.Context, roomID string) ([]events.Member, error)

	Close() error
}

type entry struct {
	sessionID string
	member    events.Member
}

func sortedMembers(entries []entry) []events.Member {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].member.UserID != entries[j].member.UserID {
			return entries[i].member.UserID < entries[j].member.UserID
		}
		return entries[i].sessionID < entries[j].sessionID
	})
	members := make([]events.Member, len(entries))
	for i, e := range entries {
		members[i] = e.member
	}
	return members
}
