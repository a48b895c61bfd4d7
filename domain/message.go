// Package domain contains core concepts of the chat system.
// This file defines Message records and related rules.
// Messages are immutable once stored, except the read flag
// which may transition from false to true exactly once.
package domain

import "time"

// Message represents a persisted chat message between two users.
type Message struct {
	ID         uint64 // store-allocated, ascending with insertion order
	SenderID   UserID
	ReceiverID UserID
	Body       string
	CreatedAt  time.Time
	Read       bool
}
