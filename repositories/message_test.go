package repositories

import (
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"

	"github.com/Zvbcbcv/chat/domain"
)

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestMessageRepository(t *testing.T) *MessageRepository {
	t.Helper()
	repository, err := NewMessageRepository(openTestDB(t), slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = repository.Close() })
	return repository
}

func Test_Insert_Then_History_Contains_Message_Once_And_Last(t *testing.T) {
	req := require.New(t)
	repository := newTestMessageRepository(t)
	alice, bob := domain.UserID(1), domain.UserID(2)
	at := time.Now().UTC()

	_, err := repository.Insert(alice, bob, "hi", at)
	req.NoError(err)
	_, err = repository.Insert(bob, alice, "hello back", at.Add(time.Second))
	req.NoError(err)
	id, err := repository.Insert(alice, bob, "how are you?", at.Add(2*time.Second))
	req.NoError(err)

	history, err := repository.History(alice, bob)
	req.NoError(err)
	req.Len(history, 3)

	last := history[len(history)-1]
	req.Equal(id, last.ID)
	req.Equal(alice, last.SenderID)
	req.Equal(bob, last.ReceiverID)
	req.Equal("how are you?", last.Body)
	req.False(last.Read)

	// Both participants read the same history regardless of argument order
	mirrored, err := repository.History(bob, alice)
	req.NoError(err)
	req.Equal(history, mirrored)
}

func Test_History_Order_Survives_Clock_Going_Backwards(t *testing.T) {
	req := require.New(t)
	repository := newTestMessageRepository(t)
	alice, bob := domain.UserID(1), domain.UserID(2)
	at := time.Now().UTC()

	first, err := repository.Insert(alice, bob, "first", at)
	req.NoError(err)
	// A timestamp older than the previous insert must not reorder history
	second, err := repository.Insert(alice, bob, "second", at.Add(-time.Minute))
	req.NoError(err)

	history, err := repository.History(alice, bob)
	req.NoError(err)
	req.Len(history, 2)
	req.Equal(first, history[0].ID)
	req.Equal(second, history[1].ID)
	req.False(history[1].CreatedAt.Before(history[0].CreatedAt))
}

func Test_MarkRead_Flips_Only_One_Direction(t *testing.T) {
	req := require.New(t)
	repository := newTestMessageRepository(t)
	alice, bob := domain.UserID(1), domain.UserID(2)
	at := time.Now().UTC()

	_, err := repository.Insert(alice, bob, "one", at)
	req.NoError(err)
	_, err = repository.Insert(alice, bob, "two", at.Add(time.Second))
	req.NoError(err)
	_, err = repository.Insert(bob, alice, "reply", at.Add(2*time.Second))
	req.NoError(err)

	// When bob opens the chat, alice's messages to him become read
	req.NoError(repository.MarkRead(bob, alice))

	history, err := repository.History(alice, bob)
	req.NoError(err)
	req.Len(history, 3)
	req.True(history[0].Read)
	req.True(history[1].Read)
	req.False(history[2].Read, "bob's own message to alice stays unread")
}

func Test_MarkRead_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	repository := newTestMessageRepository(t)
	alice, bob := domain.UserID(1), domain.UserID(2)

	_, err := repository.Insert(alice, bob, "hi", time.Now().UTC())
	req.NoError(err)

	req.NoError(repository.MarkRead(bob, alice))
	once, err := repository.History(alice, bob)
	req.NoError(err)

	req.NoError(repository.MarkRead(bob, alice))
	twice, err := repository.History(alice, bob)
	req.NoError(err)

	req.Equal(once, twice)
}

func Test_Counterparts_Recorded_For_Both_Participants(t *testing.T) {
	req := require.New(t)
	repository := newTestMessageRepository(t)
	alice, bob, clara := domain.UserID(1), domain.UserID(2), domain.UserID(3)
	at := time.Now().UTC()

	_, err := repository.Insert(alice, bob, "hi bob", at)
	req.NoError(err)
	_, err = repository.Insert(clara, alice, "hi alice", at.Add(time.Second))
	req.NoError(err)

	peers, err := repository.Counterparts(alice)
	req.NoError(err)
	req.ElementsMatch([]domain.UserID{bob, clara}, peers)

	peers, err = repository.Counterparts(bob)
	req.NoError(err)
	req.ElementsMatch([]domain.UserID{alice}, peers)
}
