package repositories

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Zvbcbcv/chat/domain"
	apperrors "github.com/Zvbcbcv/chat/errors"
)

type fakeScreener struct {
	banned string
}

func (f fakeScreener) Match(s string) bool {
	return strings.Contains(s, f.banned)
}

func newTestDirectory(t *testing.T) *Directory {
	t.Helper()
	directory, err := NewDirectory(openTestDB(t), fakeScreener{banned: "troll"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = directory.Close() })
	return directory
}

func Test_CreateUser_And_Resolve(t *testing.T) {
	req := require.New(t)
	directory := newTestDirectory(t)

	id, err := directory.CreateUser("  Alice ")
	req.NoError(err)
	req.Equal(domain.UserID(1), id)

	resolved, err := directory.ResolveUserID("alice")
	req.NoError(err)
	req.Equal(id, resolved)

	username, err := directory.UsernameByID(id)
	req.NoError(err)
	req.Equal("alice", username)
}

func Test_CreateUser_Rejects_Duplicates_And_Banned_Words(t *testing.T) {
	req := require.New(t)
	directory := newTestDirectory(t)

	_, err := directory.CreateUser("alice")
	req.NoError(err)

	_, err = directory.CreateUser("ALICE")
	req.ErrorIs(err, apperrors.ErrUserAlreadyExists)

	_, err = directory.CreateUser("megatroll99")
	req.ErrorIs(err, apperrors.ErrBannedUsername)
}

func Test_Resolve_Unknown_User(t *testing.T) {
	req := require.New(t)
	directory := newTestDirectory(t)

	_, err := directory.ResolveUserID("nobody")
	req.ErrorIs(err, apperrors.ErrUserNotFound)

	_, err = directory.UsernameByID(domain.UserID(42))
	req.ErrorIs(err, apperrors.ErrUserNotFound)
}

func Test_Friendship_Is_Symmetric(t *testing.T) {
	req := require.New(t)
	directory := newTestDirectory(t)

	alice, err := directory.CreateUser("alice")
	req.NoError(err)
	bob, err := directory.CreateUser("bob")
	req.NoError(err)

	ok, err := directory.IsFriend(alice, bob)
	req.NoError(err)
	req.False(ok)

	req.NoError(directory.AddFriend(alice, bob))

	ok, err = directory.IsFriend(alice, bob)
	req.NoError(err)
	req.True(ok)
	ok, err = directory.IsFriend(bob, alice)
	req.NoError(err)
	req.True(ok)

	req.ErrorIs(directory.AddFriend(bob, alice), apperrors.ErrAlreadyFriends)
	req.ErrorIs(directory.AddFriend(alice, alice), apperrors.ErrSelfFriendship)
}
