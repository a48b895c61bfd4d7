package server

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/Zvbcbcv/chat/projection"
	"github.com/Zvbcbcv/chat/repositories"
	"github.com/Zvbcbcv/chat/runtime"
	"github.com/Zvbcbcv/chat/services"
)

type testApp struct {
	app      *fiber.App
	messages *repositories.MessageRepository
}

func newTestApp(t *testing.T) testApp {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	messages, err := repositories.NewMessageRepository(db, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = messages.Close() })

	directory, err := repositories.NewDirectory(db, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = directory.Close() })

	registry := runtime.NewSessionRegistry(slog.Default(), 50*time.Millisecond)
	service := services.NewChatService(slog.Default(), registry, messages, directory, nil, nil, nil)
	conversations := projection.NewConversationIndex(messages, directory, slog.Default())

	app := fiber.New()
	NewHTTPHandler(slog.Default(), service, directory, conversations, 20).Register(app)
	return testApp{app: app, messages: messages}
}

func (ta testApp) do(t *testing.T, method, target, body string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := ta.app.Test(req)
	require.NoError(t, err)
	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, payload
}

func Test_CreateUser_Endpoint(t *testing.T) {
	req := require.New(t)
	ta := newTestApp(t)

	resp, payload := ta.do(t, http.MethodPost, "/api/users", `{"username":"alice"}`)
	req.Equal(http.StatusCreated, resp.StatusCode)
	req.JSONEq(`{"id":1,"username":"alice"}`, string(payload))

	resp, _ = ta.do(t, http.MethodPost, "/api/users", `{"username":"alice"}`)
	req.Equal(http.StatusConflict, resp.StatusCode)

	resp, _ = ta.do(t, http.MethodPost, "/api/users", `{}`)
	req.Equal(http.StatusBadRequest, resp.StatusCode)
}

func Test_AddFriend_Endpoint(t *testing.T) {
	req := require.New(t)
	ta := newTestApp(t)
	ta.do(t, http.MethodPost, "/api/users", `{"username":"alice"}`)
	ta.do(t, http.MethodPost, "/api/users", `{"username":"bob"}`)

	resp, _ := ta.do(t, http.MethodPost, "/api/friends", `{"username":"alice","friend":"bob"}`)
	req.Equal(http.StatusNoContent, resp.StatusCode)

	resp, _ = ta.do(t, http.MethodPost, "/api/friends", `{"username":"bob","friend":"alice"}`)
	req.Equal(http.StatusConflict, resp.StatusCode)

	resp, _ = ta.do(t, http.MethodPost, "/api/friends", `{"username":"alice","friend":"ghost"}`)
	req.Equal(http.StatusNotFound, resp.StatusCode)

	resp, _ = ta.do(t, http.MethodPost, "/api/friends", `{"username":"alice","friend":"alice"}`)
	req.Equal(http.StatusBadRequest, resp.StatusCode)
}

func Test_Conversations_And_History_Flow(t *testing.T) {
	req := require.New(t)
	ta := newTestApp(t)
	ta.do(t, http.MethodPost, "/api/users", `{"username":"alice"}`) // id 1
	ta.do(t, http.MethodPost, "/api/users", `{"username":"bob"}`)   // id 2

	at := time.Now().UTC()
	_, err := ta.messages.Insert(1, 2, "hi bob", at)
	req.NoError(err)
	_, err = ta.messages.Insert(1, 2, "you there?", at.Add(time.Second))
	req.NoError(err)

	// Bob sees one conversation with two unread messages
	resp, payload := ta.do(t, http.MethodGet, "/api/conversations/bob", "")
	req.Equal(http.StatusOK, resp.StatusCode)
	var summaries []map[string]any
	req.NoError(json.Unmarshal(payload, &summaries))
	req.Len(summaries, 1)
	req.Equal("alice", summaries[0]["username"])
	req.Equal("you there?", summaries[0]["last_message"])
	req.Equal(float64(2), summaries[0]["unread_count"])

	// Opening the history marks them read
	resp, payload = ta.do(t, http.MethodGet, "/api/history?user=bob&friend=alice", "")
	req.Equal(http.StatusOK, resp.StatusCode)
	var history []map[string]any
	req.NoError(json.Unmarshal(payload, &history))
	req.Len(history, 2)
	req.Equal("alice", history[0]["sender"])
	req.Equal("hi bob", history[0]["body"])
	req.Equal(true, history[0]["read"])

	resp, payload = ta.do(t, http.MethodGet, "/api/conversations/bob", "")
	req.Equal(http.StatusOK, resp.StatusCode)
	summaries = nil
	req.NoError(json.Unmarshal(payload, &summaries))
	req.Equal(float64(0), summaries[0]["unread_count"])

	resp, _ = ta.do(t, http.MethodGet, "/api/conversations/ghost", "")
	req.Equal(http.StatusNotFound, resp.StatusCode)
}

func Test_Search_Endpoint_Requires_Parameters(t *testing.T) {
	req := require.New(t)
	ta := newTestApp(t)
	ta.do(t, http.MethodPost, "/api/users", `{"username":"alice"}`)

	resp, _ := ta.do(t, http.MethodGet, "/api/search?user=alice", "")
	req.Equal(http.StatusBadRequest, resp.StatusCode)

	resp, payload := ta.do(t, http.MethodGet, "/api/search?user=alice&q=lunch", "")
	req.Equal(http.StatusOK, resp.StatusCode)
	req.JSONEq(`[]`, string(payload))

	resp, _ = ta.do(t, http.MethodGet, fmt.Sprintf("/api/search?user=%s&q=lunch", "ghost"), "")
	req.Equal(http.StatusNotFound, resp.StatusCode)
}
