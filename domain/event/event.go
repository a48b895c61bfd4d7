// Package event defines the room-scoped events exchanged between the
// chat service and connected sessions.
package event

import "time"

// DomainEvent is anything that can be broadcast into a room.
type DomainEvent interface {
	Room() string
}

// MessageReceived is emitted to every session in the room after a
// message has been durably stored. The sender receives its own echo.
type MessageReceived struct {
	RoomKey string
	Sender  string
	Body    string
	At      time.Time
}

func (m MessageReceived) Room() string { return m.RoomKey }

// UserTyping is transient and never persisted.
type UserTyping struct {
	RoomKey  string
	Username string
}

func (t UserTyping) Room() string { return t.RoomKey }

// UserStopTyping carries the username as well. One of the legacy client
// variants omitted it; the schema is standardized here.
type UserStopTyping struct {
	RoomKey  string
	Username string
}

func (t UserStopTyping) Room() string { return t.RoomKey }

// Error is delivered to the submitting session only, never broadcast.
type Error struct {
	RoomKey string
	Reason  string
}

func (e Error) Room() string { return e.RoomKey }
