// Package server exposes the chat core over HTTP and websocket using
// the wire schema the existing clients speak.
package server

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Zvbcbcv/chat/domain/event"
)

// wireTimestampLayout is part of the client contract.
const wireTimestampLayout = "2006-01-02 15:04:05"

// inboundEnvelope is what clients send over the websocket.
type inboundEnvelope struct {
	Event    string `json:"event" validate:"required,oneof=join send_message typing stop_typing"`
	Room     string `json:"room" validate:"required"`
	Message  string `json:"message"`
	Receiver string `json:"receiver"`
}

type wireEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type messageReceivedPayload struct {
	Sender    string `json:"sender"`
	Body      string `json:"body"`
	Timestamp string `json:"timestamp"`
}

type typingPayload struct {
	Username string `json:"username"`
}

type errorPayload struct {
	Message string `json:"message"`
}

func encodeEvent(e event.DomainEvent) ([]byte, error) {
	switch evt := e.(type) {
	case event.MessageReceived:
		return json.Marshal(wireEvent{Event: "message_received", Data: messageReceivedPayload{
			Sender:    evt.Sender,
			Body:      evt.Body,
			Timestamp: evt.At.UTC().Format(wireTimestampLayout),
		}})
	case event.UserTyping:
		return json.Marshal(wireEvent{Event: "user_typing", Data: typingPayload{Username: evt.Username}})
	case event.UserStopTyping:
		return json.Marshal(wireEvent{Event: "user_stop_typing", Data: typingPayload{Username: evt.Username}})
	case event.Error:
		return json.Marshal(wireEvent{Event: "error", Data: errorPayload{Message: evt.Reason}})
	default:
		return nil, fmt.Errorf("unknown event type %T", e)
	}
}

func formatTimestamp(at time.Time) string {
	return at.UTC().Format(wireTimestampLayout)
}
