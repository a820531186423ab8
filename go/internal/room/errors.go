package room

import "errors"

var (
	// ErrRoomClosed is returned by Do once a room has been evicted or expired.
	ErrRoomClosed = errors.New("room closed")
	// ErrInvalidPayload wraps every mutation validation failure.
	ErrInvalidPayload = errors.New("invalid payload")
	// ErrDuplicateEvent is returned for a repeated discrete event inside the dedupe window.
	ErrDuplicateEvent = errors.New("duplicate event")
)
