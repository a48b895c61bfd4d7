//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"

	"github.com/Zvbcbcv/chat/domain"
)

type IMessageRepository interface {
	Insert(sender, receiver domain.UserID, body string, at time.Time) (uint64, error)
	MarkRead(receiver, sender domain.UserID) error
	History(a, b domain.UserID) ([]domain.Message, error)
	Counterparts(user domain.UserID) ([]domain.UserID, error)
}

// MessageRepository persists messages in BadgerDB.
//
// The message key is formatted as "msg:{room_key}:{timestamp_padded}:{id_padded}" to:
//  1. Ensure chronological sorting using 19-digit zero padding (lexicographical order).
//  2. Break ties between messages stored at the same nanosecond by the
//     store-allocated identifier, which follows insertion order.
type MessageRepository struct {
	db  *badger.DB
	seq *badger.Sequence
	log *slog.Logger

	mu     sync.Mutex
	lastAt time.Time
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) (*MessageRepository, error) {
	seq, err := db.GetSequence([]byte("seq:message"), 128)
	if err != nil {
		return nil, fmt.Errorf("message sequence: %w", err)
	}
	return &MessageRepository{db: db, seq: seq, log: log}, nil
}

// Close releases the identifier sequence. Unused identifiers in the
// current lease are lost, which only leaves gaps, never reorders.
func (m *MessageRepository) Close() error {
	return m.seq.Release()
}

type diskMessage struct {
	ID       uint64 `cbor:"id"`
	Sender   int64  `cbor:"sender"`
	Receiver int64  `cbor:"receiver"`
	Body     string `cbor:"body"`
	At       int64  `cbor:"at"` // unix nanoseconds, UTC
	Read     bool   `cbor:"read"`
}

// Insert appends a message to the pair's room. Timestamps are clamped to
// be non-decreasing in insertion order from this store instance, so the
// key order matches the order clients observed.
func (m *MessageRepository) Insert(sender, receiver domain.UserID, body string, at time.Time) (uint64, error) {
	id, err := m.seq.Next()
	if err != nil {
		return 0, fmt.Errorf("next message id: %w", err)
	}
	id++ // sequences start at zero, identifiers at one

	m.mu.Lock()
	if at.Before(m.lastAt) {
		at = m.lastAt
	}
	m.lastAt = at
	m.mu.Unlock()

	value, err := cbor.Marshal(diskMessage{
		ID:       id,
		Sender:   int64(sender),
		Receiver: int64(receiver),
		Body:     body,
		At:       at.UnixNano(),
	})
	if err != nil {
		return 0, err
	}

	key := messageKey(domain.RoomKey(sender, receiver), at, id)
	err = m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(peerKey(sender, receiver), nil); err != nil {
			return err
		}
		if err := txn.Set(peerKey(receiver, sender), nil); err != nil {
			return err
		}
		return txn.Set(key, value)
	})
	if err != nil {
		return 0, fmt.Errorf("store message: %w", err)
	}
	return id, nil
}

// MarkRead flips every unread message from sender to receiver in a single
// transaction. Calling it again is a no-op once all matching rows are read.
func (m *MessageRepository) MarkRead(receiver, sender domain.UserID) error {
	prefix := []byte(fmt.Sprintf("msg:%s:", domain.RoomKey(receiver, sender)))
	err := m.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			var dm diskMessage
			err := item.Value(func(value []byte) error {
				return cbor.Unmarshal(value, &dm)
			})
			if err != nil {
				return err
			}
			if domain.UserID(dm.Sender) != sender || dm.Read {
				continue
			}
			dm.Read = true
			updated, err := cbor.Marshal(dm)
			if err != nil {
				return err
			}
			if err := txn.Set(item.KeyCopy(nil), updated); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

// History returns every message between the pair, oldest first. Thanks to
// the padded timestamp in the key, the prefix scan is already sorted.
// The result is a point-in-time snapshot, not a restartable stream.
func (m *MessageRepository) History(a, b domain.UserID) ([]domain.Message, error) {
	prefix := []byte(fmt.Sprintf("msg:%s:", domain.RoomKey(a, b)))
	var messages []domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var dm diskMessage
			err := it.Item().Value(func(value []byte) error {
				return cbor.Unmarshal(value, &dm)
			})
			if err != nil {
				return err
			}
			messages = append(messages, toMessage(dm))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	return messages, nil
}

// Counterparts lists every user the given user has ever exchanged a
// message with, in no particular order.
func (m *MessageRepository) Counterparts(user domain.UserID) ([]domain.UserID, error) {
	prefixStr := fmt.Sprintf("peer:%d:", user)
	prefix := []byte(prefixStr)
	var peers []domain.UserID
	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			raw := strings.TrimPrefix(string(it.Item().Key()), prefixStr)
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return fmt.Errorf("corrupt peer key %q: %w", it.Item().Key(), err)
			}
			peers = append(peers, domain.UserID(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list counterparts: %w", err)
	}
	return peers, nil
}

func messageKey(roomKey string, at time.Time, id uint64) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%012d", roomKey, at.UnixNano(), id))
}

func peerKey(user, counterpart domain.UserID) []byte {
	return []byte(fmt.Sprintf("peer:%d:%d", user, counterpart))
}

func toMessage(dm diskMessage) domain.Message {
	return domain.Message{
		ID:         dm.ID,
		SenderID:   domain.UserID(dm.Sender),
		ReceiverID: domain.UserID(dm.Receiver),
		Body:       dm.Body,
		CreatedAt:  time.Unix(0, dm.At).UTC(),
		Read:       dm.Read,
	}
}
