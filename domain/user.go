// Package domain contains core concepts of the chat system.
// No runtime, network, or UI logic should be added here.
package domain

import "time"

// UserID is the numeric identity allocated by the user directory.
// The chat core never creates or deletes users, it only resolves them.
type UserID int64

type User struct {
	ID        UserID
	Username  string
	CreatedAt time.Time
}
