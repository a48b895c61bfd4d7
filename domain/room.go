package domain

import (
	"fmt"
	"strconv"
	"strings"

	apperrors "github.com/Zvbcbcv/chat/errors"
)

// RoomKey builds the canonical key of the room shared by two users.
// Both participants compute the same key regardless of who initiates,
// because the smaller identifier always comes first. The format is part
// of the wire contract with existing clients and must not change.
func RoomKey(a, b UserID) string {
	if b < a {
		a, b = b, a
	}
	return fmt.Sprintf("chat_%d_%d", a, b)
}

// ParseRoomKey validates a client-supplied room key and returns the two
// participant identifiers, smaller first. Anything that does not
// round-trip through RoomKey byte-for-byte is rejected.
func ParseRoomKey(key string) (UserID, UserID, error) {
	rest, ok := strings.CutPrefix(key, "chat_")
	if !ok {
		return 0, 0, apperrors.ErrInvalidRoom
	}
	first, second, ok := strings.Cut(rest, "_")
	if !ok {
		return 0, 0, apperrors.ErrInvalidRoom
	}
	a, err := strconv.ParseInt(first, 10, 64)
	if err != nil {
		return 0, 0, apperrors.ErrInvalidRoom
	}
	b, err := strconv.ParseInt(second, 10, 64)
	if err != nil {
		return 0, 0, apperrors.ErrInvalidRoom
	}
	if RoomKey(UserID(a), UserID(b)) != key {
		return 0, 0, apperrors.ErrInvalidRoom
	}
	return UserID(a), UserID(b), nil
}
