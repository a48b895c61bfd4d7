package errors

import "fmt"

var (
	ErrUserNotFound      = fmt.Errorf("user not found")
	ErrUserAlreadyExists = fmt.Errorf("username already taken")
	ErrBannedUsername    = fmt.Errorf("username contains a banned word")
	ErrUnknownReceiver   = fmt.Errorf("receiver is unknown")
	ErrInvalidRoom       = fmt.Errorf("malformed room key")
	ErrAlreadyFriends    = fmt.Errorf("already friends")
	ErrSelfFriendship    = fmt.Errorf("cannot befriend yourself")
	ErrSessionClosed     = fmt.Errorf("session is disconnected")
	ErrWorkerPanic       = fmt.Errorf("worker panic")
	ErrEmptyWords        = fmt.Errorf("no words have been found")
)
