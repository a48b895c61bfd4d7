// Package projection builds derived read models from the message store.
// It does not own state and never caches between calls.
package projection

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/Zvbcbcv/chat/domain"
	apperrors "github.com/Zvbcbcv/chat/errors"
	"github.com/Zvbcbcv/chat/repositories"
)

// ConversationIndex aggregates, per viewer, one summary for every
// counterpart the viewer has ever exchanged messages with.
type ConversationIndex struct {
	messages  repositories.IMessageRepository
	directory repositories.IDirectory
	log       *slog.Logger
}

func NewConversationIndex(messages repositories.IMessageRepository,
	directory repositories.IDirectory, log *slog.Logger) *ConversationIndex {
	return &ConversationIndex{messages: messages, directory: directory, log: log}
}

// Summaries returns the viewer's conversations, most recent first.
// The unread count only counts messages sent to the viewer that are
// still unread. Counterparts that no longer resolve to a user are
// skipped rather than failing the whole listing.
func (c *ConversationIndex) Summaries(viewer domain.UserID) ([]domain.ConversationSummary, error) {
	counterparts, err := c.messages.Counterparts(viewer)
	if err != nil {
		return nil, fmt.Errorf("summaries for %d: %w", viewer, err)
	}

	summaries := make([]domain.ConversationSummary, 0, len(counterparts))
	for _, counterpart := range counterparts {
		username, err := c.directory.UsernameByID(counterpart)
		if stderrors.Is(err, apperrors.ErrUserNotFound) {
			c.log.Debug("Skipping conversation with vanished user", "counterpart", counterpart)
			continue
		}
		if err != nil {
			return nil, err
		}

		history, err := c.messages.History(viewer, counterpart)
		if err != nil {
			return nil, err
		}
		if len(history) == 0 {
			continue
		}

		last := history[len(history)-1]
		unread := 0
		for _, m := range history {
			if m.ReceiverID == viewer && !m.Read {
				unread++
			}
		}
		summaries = append(summaries, domain.ConversationSummary{
			Counterpart: counterpart,
			Username:    username,
			LastBody:    last.Body,
			LastAt:      last.CreatedAt,
			Unread:      unread,
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].LastAt.After(summaries[j].LastAt)
	})
	return summaries, nil
}
