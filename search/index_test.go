package search

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/stretchr/testify/require"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	writer, err := bluge.OpenWriter(bluge.DefaultConfig(t.TempDir()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = writer.Close() })
	return NewIndex(writer, slog.Default())
}

func Test_Find_Matches_Body_Within_Allowed_Rooms(t *testing.T) {
	req := require.New(t)
	index := newTestIndex(t)
	at := time.Now().UTC()

	req.NoError(index.Add(Entry{MessageID: 1, RoomKey: "chat_1_2", Sender: "alice", Body: "lunch tomorrow?", At: at}))
	req.NoError(index.Add(Entry{MessageID: 2, RoomKey: "chat_1_3", Sender: "clara", Body: "lunch was great", At: at}))
	req.NoError(index.Add(Entry{MessageID: 3, RoomKey: "chat_1_2", Sender: "bob", Body: "dinner instead", At: at}))

	hits, err := index.Find(context.Background(), []string{"chat_1_2"}, "lunch", 10)
	req.NoError(err)
	req.Len(hits, 1)
	req.Equal(uint64(1), hits[0].MessageID)
	req.Equal("alice", hits[0].Sender)
	req.Equal("lunch tomorrow?", hits[0].Body)
	req.Equal("chat_1_2", hits[0].RoomKey)
	req.WithinDuration(at, hits[0].At, time.Second)
}

func Test_Find_Spans_Multiple_Rooms(t *testing.T) {
	req := require.New(t)
	index := newTestIndex(t)
	at := time.Now().UTC()

	req.NoError(index.Add(Entry{MessageID: 1, RoomKey: "chat_1_2", Sender: "bob", Body: "lunch?", At: at}))
	req.NoError(index.Add(Entry{MessageID: 2, RoomKey: "chat_1_3", Sender: "clara", Body: "lunch!", At: at}))

	hits, err := index.Find(context.Background(), []string{"chat_1_2", "chat_1_3"}, "lunch", 10)
	req.NoError(err)
	req.Len(hits, 2)
}

func Test_Find_Empty_Query_Or_Rooms(t *testing.T) {
	req := require.New(t)
	index := newTestIndex(t)

	hits, err := index.Find(context.Background(), nil, "lunch", 10)
	req.NoError(err)
	req.Empty(hits)

	hits, err = index.Find(context.Background(), []string{"chat_1_2"}, "  ", 10)
	req.NoError(err)
	req.Empty(hits)
}
