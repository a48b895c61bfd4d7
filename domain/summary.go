package domain

import "time"

// ConversationSummary is a derived view of one conversation from the
// perspective of a single viewer. It is computed on demand from the
// message store and never persisted or cached.
type ConversationSummary struct {
	Counterpart UserID
	Username    string
	LastBody    string
	LastAt      time.Time
	Unread      int
}
