package server

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"

	"github.com/Zvbcbcv/chat/domain/event"
	"github.com/Zvbcbcv/chat/repositories"
	"github.com/Zvbcbcv/chat/services"
	"github.com/Zvbcbcv/chat/sink"
)

// WebsocketHandler owns the realtime side of a connection: one read
// pump dispatching inbound events to the chat service, one write pump
// draining the session's sink back to the client.
type WebsocketHandler struct {
	log        *slog.Logger
	service    services.IChatService
	directory  repositories.IDirectory
	validate   *validator.Validate
	bufferSize int
}

func NewWebsocketHandler(log *slog.Logger, service services.IChatService,
	directory repositories.IDirectory, bufferSize int) *WebsocketHandler {
	return &WebsocketHandler{
		log:        log,
		service:    service,
		directory:  directory,
		validate:   validator.New(),
		bufferSize: bufferSize,
	}
}

// Handle runs for the lifetime of one connection on GET /ws/:username.
// The host application authenticates upstream; the username here is
// trusted to be the authenticated user.
func (h *WebsocketHandler) Handle(conn *websocket.Conn) {
	username := conn.Params("username")
	userID, err := h.directory.ResolveUserID(username)
	if err != nil {
		h.log.Warn("Rejecting connection for unknown user", "username", username)
		if data, encErr := encodeEvent(event.Error{Reason: "unknown user"}); encErr == nil {
			_ = conn.WriteMessage(websocket.TextMessage, data)
		}
		return
	}

	snk := sink.NewSessionSink(h.bufferSize)
	session := services.NewSession(userID, username, snk)
	// Cleanup is unconditional so rooms never retain stale membership.
	defer h.service.Disconnect(session)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.writePump(ctx, conn, snk)

	h.log.Info("Session connected", "session_id", session.ID, "user", username)
	h.readPump(ctx, conn, session, snk)
}

func (h *WebsocketHandler) readPump(ctx context.Context, conn *websocket.Conn,
	session *services.Session, snk *sink.SessionSink) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var envelope inboundEnvelope
		if err := json.Unmarshal(data, &envelope); err != nil {
			h.reportError(ctx, snk, "", "malformed event")
			continue
		}
		if err := h.validate.Struct(envelope); err != nil {
			h.reportError(ctx, snk, envelope.Room, "invalid event: "+err.Error())
			continue
		}

		if err := h.dispatch(ctx, session, envelope); err != nil {
			h.reportError(ctx, snk, envelope.Room, err.Error())
		}
	}
}

func (h *WebsocketHandler) dispatch(ctx context.Context, session *services.Session, envelope inboundEnvelope) error {
	switch envelope.Event {
	case "join":
		return h.service.Join(session, envelope.Room)
	case "send_message":
		return h.service.SendMessage(ctx, session, envelope.Room, envelope.Message, envelope.Receiver)
	case "typing":
		return h.service.Typing(ctx, session, envelope.Room)
	case "stop_typing":
		return h.service.StopTyping(ctx, session, envelope.Room)
	}
	return nil
}

func (h *WebsocketHandler) writePump(ctx context.Context, conn *websocket.Conn, snk *sink.SessionSink) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-snk.Events:
			data, err := encodeEvent(evt)
			if err != nil {
				h.log.Error("Dropping unencodable event", "error", err)
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}

// reportError surfaces a failure to the submitting session only, through
// its own sink so the write pump stays the single writer on the socket.
func (h *WebsocketHandler) reportError(ctx context.Context, snk *sink.SessionSink, room, reason string) {
	if err := snk.Consume(ctx, event.Error{RoomKey: room, Reason: reason}); err != nil {
		h.log.Debug("Error event lost", "reason", reason)
	}
}
