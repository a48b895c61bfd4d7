// Package runtime owns the live, in-memory side of the chat system:
// which sessions exist, which rooms they joined, and event fan-out.
// No durable state lives here.
package runtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Zvbcbcv/chat/contract"
	"github.com/Zvbcbcv/chat/domain/event"
)

type Set map[string]struct{}

// SessionRegistry maps room keys to the sessions currently joined.
// Rooms have no persisted state; an entry exists only while at least one
// session is joined and is dropped as soon as the last one leaves.
//
// Safe for concurrent use by every connection goroutine.
type SessionRegistry struct {
	mu          sync.RWMutex
	sessions    map[string]contract.EventSink // session id -> sink
	roomMembers map[string]Set                // room key -> session ids
	memberRooms map[string]Set                // session id -> room keys

	// order serializes enqueueing so all members of a room observe
	// broadcasts in the same sequence.
	order sync.Mutex

	log             *slog.Logger
	deliveryTimeout time.Duration
}

func NewSessionRegistry(log *slog.Logger, deliveryTimeout time.Duration) *SessionRegistry {
	return &SessionRegistry{
		sessions:        make(map[string]contract.EventSink),
		roomMembers:     make(map[string]Set),
		memberRooms:     make(map[string]Set),
		log:             log,
		deliveryTimeout: deliveryTimeout,
	}
}

// Join adds the session to the room. Joining twice is a no-op; the room
// is created on first join.
func (r *SessionRegistry) Join(roomKey, sessionID string, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[sessionID] = sink

	if _, ok := r.roomMembers[roomKey]; !ok {
		r.roomMembers[roomKey] = make(Set)
	}
	r.roomMembers[roomKey][sessionID] = struct{}{}

	if _, ok := r.memberRooms[sessionID]; !ok {
		r.memberRooms[sessionID] = make(Set)
	}
	r.memberRooms[sessionID][roomKey] = struct{}{}
}

// Leave removes the session from the room. Removing the last member
// drops the room entry entirely so nothing leaks over time.
func (r *SessionRegistry) Leave(roomKey, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(roomKey, sessionID)
}

// LeaveAll removes the session from every room it had joined and forgets
// its sink. Used on disconnect; must run unconditionally so rooms never
// retain stale membership.
func (r *SessionRegistry) LeaveAll(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for roomKey := range r.memberRooms[sessionID] {
		r.leaveLocked(roomKey, sessionID)
	}
	delete(r.memberRooms, sessionID)
	delete(r.sessions, sessionID)
}

func (r *SessionRegistry) leaveLocked(roomKey, sessionID string) {
	if members, ok := r.roomMembers[roomKey]; ok {
		delete(members, sessionID)
		if len(members) == 0 {
			delete(r.roomMembers, roomKey)
		}
	}
	if rooms, ok := r.memberRooms[sessionID]; ok {
		delete(rooms, roomKey)
	}
}

// Broadcast delivers the event to every session currently in the room,
// except excludeSessionID if given. Delivery is best effort per session:
// a full or gone sink is skipped after the bounded delivery timeout and
// never fails the broadcast for the others.
func (r *SessionRegistry) Broadcast(ctx context.Context, roomKey string, e event.DomainEvent, excludeSessionID string) {
	r.mu.RLock()
	members := r.roomMembers[roomKey]
	targets := make(map[string]contract.EventSink, len(members))
	for sessionID := range members {
		if sessionID == excludeSessionID {
			continue
		}
		if sink, ok := r.sessions[sessionID]; ok {
			targets[sessionID] = sink
		}
	}
	r.mu.RUnlock()

	r.order.Lock()
	defer r.order.Unlock()
	for sessionID, sink := range targets {
		deliverCtx, cancel := context.WithTimeout(ctx, r.deliveryTimeout)
		err := sink.Consume(deliverCtx, e)
		cancel()
		if err != nil {
			r.log.Debug("Dropping event for slow session",
				"session_id", sessionID,
				"room", roomKey,
				"error", err)
		}
	}
}
