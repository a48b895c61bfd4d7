//go:generate go run go.uber.org/mock/mockgen -source=chat_service.go -destination=../mocks/mock_chat_service.go -package=mocks
package services

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/abadojack/whatlanggo"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/Zvbcbcv/chat/contract"
	"github.com/Zvbcbcv/chat/domain"
	"github.com/Zvbcbcv/chat/domain/event"
	apperrors "github.com/Zvbcbcv/chat/errors"
	"github.com/Zvbcbcv/chat/moderation"
	"github.com/Zvbcbcv/chat/repositories"
	"github.com/Zvbcbcv/chat/search"
)

// Session is one live connection, bound to a single authenticated user
// for its whole lifetime. A session can join any number of rooms and is
// removed from all of them on disconnect. Once disconnected it accepts
// no further operations.
type Session struct {
	ID       string
	UserID   domain.UserID
	Username string
	Sink     contract.EventSink

	closed atomic.Bool
}

func NewSession(userID domain.UserID, username string, sink contract.EventSink) *Session {
	return &Session{
		ID:       uuid.NewString(),
		UserID:   userID,
		Username: username,
		Sink:     sink,
	}
}

func (s *Session) Closed() bool { return s.closed.Load() }

type IChatService interface {
	Join(session *Session, roomKey string) error
	SendMessage(ctx context.Context, session *Session, roomKey, body, receiverUsername string) error
	Typing(ctx context.Context, session *Session, roomKey string) error
	StopTyping(ctx context.Context, session *Session, roomKey string) error
	Disconnect(session *Session)
	OpenConversation(viewer, counterpart domain.UserID) ([]domain.Message, error)
	SearchMessages(ctx context.Context, viewer domain.UserID, terms string, limit int) ([]search.Hit, error)
}

// ChatService validates inbound session operations, persists messages,
// and fans events out to rooms. A message is broadcast only after it has
// been durably stored; broadcast itself is best effort and offline
// clients catch up through history and summaries on reconnect.
type ChatService struct {
	log        *slog.Logger
	registry   contract.IRegistry
	messages   repositories.IMessageRepository
	directory  repositories.IDirectory
	moderator  *moderation.Moderator
	index      *search.Index
	indexQueue chan<- search.Entry
}

// NewChatService wires the service. moderator may be nil to disable
// censoring; index and indexQueue may be nil to disable search.
func NewChatService(log *slog.Logger, registry contract.IRegistry,
	messages repositories.IMessageRepository, directory repositories.IDirectory,
	moderator *moderation.Moderator, index *search.Index, indexQueue chan<- search.Entry) *ChatService {
	return &ChatService{
		log:        log,
		registry:   registry,
		messages:   messages,
		directory:  directory,
		moderator:  moderator,
		index:      index,
		indexQueue: indexQueue,
	}
}

// Join registers the session in the room. The room key must be well
// formed, but membership is deliberately not checked against the key's
// participants or the friend list: the legacy clients depend on being
// able to join any room they can name.
func (s *ChatService) Join(session *Session, roomKey string) error {
	if session.Closed() {
		return apperrors.ErrSessionClosed
	}
	if _, _, err := domain.ParseRoomKey(roomKey); err != nil {
		return err
	}
	s.registry.Join(roomKey, session.ID, session.Sink)
	return nil
}

// SendMessage resolves the receiver, censors the body, persists the
// message and only then broadcasts it to the room. The sender receives
// its own echo. A persistence failure surfaces to the submitter and
// nothing is broadcast.
func (s *ChatService) SendMessage(ctx context.Context, session *Session, roomKey, body, receiverUsername string) error {
	if session.Closed() {
		return apperrors.ErrSessionClosed
	}
	if _, _, err := domain.ParseRoomKey(roomKey); err != nil {
		return err
	}

	receiverID, err := s.directory.ResolveUserID(receiverUsername)
	if stderrors.Is(err, apperrors.ErrUserNotFound) {
		return fmt.Errorf("%q: %w", receiverUsername, apperrors.ErrUnknownReceiver)
	}
	if err != nil {
		return err
	}

	body = s.censor(session.Username, body)
	at := time.Now().UTC()

	id, err := s.messages.Insert(session.UserID, receiverID, body, at)
	if err != nil {
		return fmt.Errorf("persist message: %w", err)
	}

	s.enqueueForIndexing(search.Entry{
		MessageID: id,
		RoomKey:   domain.RoomKey(session.UserID, receiverID),
		Sender:    session.Username,
		Body:      body,
		At:        at,
	})

	s.registry.Broadcast(ctx, roomKey, event.MessageReceived{
		RoomKey: roomKey,
		Sender:  session.Username,
		Body:    body,
		At:      at,
	}, "")
	return nil
}

// Typing is transient: nothing is persisted and the sender is excluded.
func (s *ChatService) Typing(ctx context.Context, session *Session, roomKey string) error {
	if session.Closed() {
		return apperrors.ErrSessionClosed
	}
	if _, _, err := domain.ParseRoomKey(roomKey); err != nil {
		return err
	}
	s.registry.Broadcast(ctx, roomKey, event.UserTyping{
		RoomKey:  roomKey,
		Username: session.Username,
	}, session.ID)
	return nil
}

func (s *ChatService) StopTyping(ctx context.Context, session *Session, roomKey string) error {
	if session.Closed() {
		return apperrors.ErrSessionClosed
	}
	if _, _, err := domain.ParseRoomKey(roomKey); err != nil {
		return err
	}
	s.registry.Broadcast(ctx, roomKey, event.UserStopTyping{
		RoomKey:  roomKey,
		Username: session.Username,
	}, session.ID)
	return nil
}

// Disconnect removes the session from every room it had joined. It runs
// unconditionally, even after earlier failures, so rooms never retain
// stale membership. Safe to call more than once.
func (s *ChatService) Disconnect(session *Session) {
	if session.closed.Swap(true) {
		return
	}
	s.registry.LeaveAll(session.ID)
	s.log.Debug("Session disconnected", "session_id", session.ID, "user", session.Username)
}

// OpenConversation is what happens when the viewer opens a chat page:
// everything the counterpart sent becomes read, then the full history is
// returned oldest first.
func (s *ChatService) OpenConversation(viewer, counterpart domain.UserID) ([]domain.Message, error) {
	if err := s.messages.MarkRead(viewer, counterpart); err != nil {
		return nil, err
	}
	return s.messages.History(viewer, counterpart)
}

// SearchMessages queries the full-text index, scoped to the rooms the
// viewer participates in.
func (s *ChatService) SearchMessages(ctx context.Context, viewer domain.UserID, terms string, limit int) ([]search.Hit, error) {
	if s.index == nil {
		return nil, nil
	}
	counterparts, err := s.messages.Counterparts(viewer)
	if err != nil {
		return nil, err
	}
	rooms := lo.Map(counterparts, func(counterpart domain.UserID, _ int) string {
		return domain.RoomKey(viewer, counterpart)
	})
	return s.index.Find(ctx, rooms, terms, limit)
}

func (s *ChatService) censor(author, body string) string {
	if s.moderator == nil {
		return body
	}
	censored, found := s.moderator.Censor(body)
	if len(found) > 0 {
		info := whatlanggo.Detect(body)
		s.log.Warn("Censored message",
			"author", author,
			"words", len(found),
			"lang", info.Lang.Iso6391())
	}
	return censored
}

func (s *ChatService) enqueueForIndexing(entry search.Entry) {
	if s.indexQueue == nil {
		return
	}
	select {
	case s.indexQueue <- entry:
	default:
		s.log.Debug("Index queue full, message stays unsearchable", "message_id", entry.MessageID)
	}
}
