//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../mocks/mock_directory.go -package=mocks
package repositories

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"

	"github.com/Zvbcbcv/chat/domain"
	apperrors "github.com/Zvbcbcv/chat/errors"
)

// IDirectory is the collaborator contract the chat core depends on.
// The host application owns users and friendships; the core only
// resolves them.
type IDirectory interface {
	CreateUser(username string) (domain.UserID, error)
	ResolveUserID(username string) (domain.UserID, error)
	UsernameByID(id domain.UserID) (string, error)
	AddFriend(a, b domain.UserID) error
	IsFriend(a, b domain.UserID) (bool, error)
}

// Screener rejects usernames containing banned words.
type Screener interface {
	Match(s string) bool
}

type Directory struct {
	db       *badger.DB
	seq      *badger.Sequence
	screener Screener
}

// NewDirectory opens the user directory. screener may be nil, in which
// case no username screening happens.
func NewDirectory(db *badger.DB, screener Screener) (*Directory, error) {
	seq, err := db.GetSequence([]byte("seq:user"), 16)
	if err != nil {
		return nil, fmt.Errorf("user sequence: %w", err)
	}
	return &Directory{db: db, seq: seq, screener: screener}, nil
}

func (d *Directory) Close() error {
	return d.seq.Release()
}

type diskUser struct {
	ID        int64  `cbor:"id"`
	Username  string `cbor:"username"`
	CreatedAt int64  `cbor:"created_at"`
}

// CreateUser registers a username and allocates a numeric identifier.
// Usernames are lowercased and trimmed before storage, matching what
// clients type at registration.
func (d *Directory) CreateUser(username string) (domain.UserID, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" {
		return 0, fmt.Errorf("empty username")
	}
	if d.screener != nil && d.screener.Match(username) {
		return 0, apperrors.ErrBannedUsername
	}

	id, err := d.seq.Next()
	if err != nil {
		return 0, fmt.Errorf("next user id: %w", err)
	}
	id++

	value, err := cbor.Marshal(diskUser{
		ID:        int64(id),
		Username:  username,
		CreatedAt: time.Now().UTC().UnixNano(),
	})
	if err != nil {
		return 0, err
	}

	err = d.db.Update(func(txn *badger.Txn) error {
		nameKey := []byte("user:name:" + username)
		if _, err := txn.Get(nameKey); err == nil {
			return apperrors.ErrUserAlreadyExists
		} else if !stderrors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(nameKey, []byte(fmt.Sprintf("%d", id))); err != nil {
			return err
		}
		return txn.Set(userIDKey(domain.UserID(id)), value)
	})
	if err != nil {
		if stderrors.Is(err, apperrors.ErrUserAlreadyExists) {
			return 0, err
		}
		return 0, fmt.Errorf("create user: %w", err)
	}
	return domain.UserID(id), nil
}

func (d *Directory) ResolveUserID(username string) (domain.UserID, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	var id domain.UserID
	err := d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("user:name:" + username))
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			_, err := fmt.Sscanf(string(value), "%d", &id)
			return err
		})
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return 0, apperrors.ErrUserNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("resolve %q: %w", username, err)
	}
	return id, nil
}

func (d *Directory) UsernameByID(id domain.UserID) (string, error) {
	var du diskUser
	err := d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userIDKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			return cbor.Unmarshal(value, &du)
		})
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return "", apperrors.ErrUserNotFound
	}
	if err != nil {
		return "", fmt.Errorf("lookup user %d: %w", id, err)
	}
	return du.Username, nil
}

// AddFriend records the friendship in both directions so lookups never
// depend on who initiated it.
func (d *Directory) AddFriend(a, b domain.UserID) error {
	if a == b {
		return apperrors.ErrSelfFriendship
	}
	err := d.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(friendKey(a, b)); err == nil {
			return apperrors.ErrAlreadyFriends
		} else if !stderrors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(friendKey(a, b), nil); err != nil {
			return err
		}
		return txn.Set(friendKey(b, a), nil)
	})
	if err != nil {
		if stderrors.Is(err, apperrors.ErrAlreadyFriends) {
			return err
		}
		return fmt.Errorf("add friend: %w", err)
	}
	return nil
}

func (d *Directory) IsFriend(a, b domain.UserID) (bool, error) {
	err := d.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(friendKey(a, b))
		return err
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("friend lookup: %w", err)
	}
	return true, nil
}

func userIDKey(id domain.UserID) []byte {
	return []byte(fmt.Sprintf("user:id:%012d", id))
}

func friendKey(a, b domain.UserID) []byte {
	return []byte(fmt.Sprintf("friend:%d:%d", a, b))
}
