package errors

import "fmt"

var (
	ErrWorkerPanic    = fmt.Errorf("worker panic")
	ErrNotParticipant = fmt.Errorf("user is not a participant of the discussion")
	ErrNotJoined      = fmt.Errorf("connection has not joined the discussion")
	ErrEmptyWords     = fmt.Errorf("no words have been found")
	ErrInvalidToken   = fmt.Errorf("invalid or expired token")
)
