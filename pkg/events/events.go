// Package events defines the messages exchanged with collaboration clients.
//
// Every frame, in both directions, is an envelope of the form
//
//	{"event": "<name>", "payload": <json>}
//
// Inbound frames are decoded into one of the typed request variants; anything
// else is rejected at the boundary before reaching room logic.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tidwall/gjson"
)

type Name string

const (
	JoinProject  Name = "join:project"
	LeaveProject Name = "leave:project"
	CursorMove   Name = "cursor:move"

	UserJoined   Name = "user:joined"
	UserLeft     Name = "user:left"
	CursorUpdate Name = "cursor:update"
	UsersList    Name = "users:list"
)

var (
	ErrMalformedMessage = errors.New("malformed message")
	ErrUnknownEvent     = errors.New("unknown event")
)

// TimestampLayout matches the millisecond ISO-8601 form clients already parse.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

func Timestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

type Envelope struct {
	Event   Name            `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// --- Inbound ---

type Inbound interface {
	EventName() Name
}

type JoinProjectRequest struct {
	ProjectID string `json:"projectId"`
}

type LeaveProjectRequest struct {
	ProjectID string `json:"projectId"`
}

type CursorMoveRequest struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	ProjectID string  `json:"projectId"`
	FileID    string  `json:"fileId,omitempty"`
}

func (JoinProjectRequest) EventName() Name  { return JoinProject }
func (LeaveProjectRequest) EventName() Name { return LeaveProject }
func (CursorMoveRequest) EventName() Name   { return CursorMove }

// Decode parses a client frame. A missing or null payload decodes to the zero
// request so that field validation stays with the handler.
func Decode(msg []byte) (Inbound, error) {
	if !gjson.ValidBytes(msg) {
		return nil, ErrMalformedMessage
	}
	root := gjson.ParseBytes(msg)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: frame is not an object", ErrMalformedMessage)
	}
	name := root.Get("event")
	if name.Type != gjson.String || name.Str == "" {
		return nil, fmt.Errorf("%w: missing event name", ErrMalformedMessage)
	}

	payload := root.Get("payload")
	var ev Inbound
	switch Name(name.Str) {
	case JoinProject:
		req := JoinProjectRequest{}
		if err := decodePayload(payload, &req); err != nil {
			return nil, err
		}
		ev = req
	case LeaveProject:
		req := LeaveProjectRequest{}
		if err := decodePayload(payload, &req); err != nil {
			return nil, err
		}
		ev = req
	case CursorMove:
		req := CursorMoveRequest{}
		if err := decodePayload(payload, &req); err != nil {
			return nil, err
		}
		ev = req
	default:
		return nil, fmt.Errorf("%w '%s'", ErrUnknownEvent, name.Str)
	}
	return ev, nil
}

func decodePayload(payload gjson.Result, dst any) error {
	if !payload.Exists() || payload.Type == gjson.Null {
		return nil
	}
	if !payload.IsObject() {
		return fmt.Errorf("%w: payload must be an object", ErrMalformedMessage)
	}
	if err := json.Unmarshal([]byte(payload.Raw), dst); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	return nil
}

// --- Outbound ---

type Outbound interface {
	EventName() Name
}

type Member struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

type UserJoinedEvent struct {
	UserID    string `json:"userId"`
	Email     string `json:"email"`
	Timestamp string `json:"timestamp"`
}

type UserLeftEvent struct {
	UserID    string `json:"userId"`
	Email     string `json:"email,omitempty"`
	Timestamp string `json:"timestamp"`
}

type CursorUpdateEvent struct {
	UserID    string  `json:"userId"`
	Email     string  `json:"email"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	FileID    string  `json:"fileId,omitempty"`
	Timestamp string  `json:"timestamp"`
}

// UsersListEvent is sent as a bare JSON array of members.
type UsersListEvent []Member

func (UserJoinedEvent) EventName() Name   { return UserJoined }
func (UserLeftEvent) EventName() Name     { return UserLeft }
func (CursorUpdateEvent) EventName() Name { return CursorUpdate }
func (UsersListEvent) EventName() Name    { return UsersList }

func (e UsersListEvent) MarshalJSON() ([]byte, error) {
	if e == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]Member(e))
}

// Encode wraps ev in an envelope ready to be written to a client.
func Encode(ev Outbound) ([]byte, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", ev.EventName(), err)
	}
	return json.Marshal(Envelope{Event: ev.EventName(), Payload: payload})
}
