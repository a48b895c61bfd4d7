// Package sink provides EventSink implementations bridging the registry
// fan-out to individual consumers.
package sink

import (
	"context"

	"github.com/Zvbcbcv/chat/domain/event"
)

// SessionSink buffers events for one connected session. The websocket
// write pump drains Events; the registry fills it during broadcasts.
type SessionSink struct {
	Events chan event.DomainEvent
}

func NewSessionSink(bufferSize int) *SessionSink {
	return &SessionSink{Events: make(chan event.DomainEvent, bufferSize)}
}

// Consume enqueues without blocking while there is buffer space, then
// waits at most as long as the context allows. A stalled session loses
// the event instead of stalling the broadcaster.
func (s *SessionSink) Consume(ctx context.Context, e event.DomainEvent) error {
	select {
	case s.Events <- e:
		return nil
	default:
	}
	select {
	case s.Events <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
