package gateway

import (
	"errors"
	"fmt"

	"github.com/mcdev12/livescore/go/internal/room"
	"github.com/mcdev12/livescore/go/internal/store"
)

// ErrorCode classifies an error reported to a client.
type ErrorCode string

const (
	CodeRoomNotFound       ErrorCode = "ROOM_NOT_FOUND"
	CodeUnauthorized       ErrorCode = "UNAUTHORIZED"
	CodeInvalidPayload     ErrorCode = "INVALID_PAYLOAD"
	CodeDuplicateEvent     ErrorCode = "DUPLICATE_EVENT"
	CodePersistenceFailure ErrorCode = "PERSISTENCE_FAILURE"
	CodeCodeUnavailable    ErrorCode = "CODE_UNAVAILABLE"
)

// Error is a client-facing error. It is only ever sent to the originating endpoint.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

var (
	// ErrCodeUnavailable is returned when joining a code that is expired,
	// revoked, inactive or unknown.
	ErrCodeUnavailable = errors.New("access code unavailable")
	// ErrRoomNotFound is returned for events against a room that is not live.
	ErrRoomNotFound = errors.New("room not found")
	// ErrUnauthorized is returned when a non-admin endpoint sends a mutation.
	ErrUnauthorized = errors.New("unauthorized")
)

func newError(code ErrorCode, msg string, err error) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

// classify maps an internal error onto the client-facing taxonomy.
func classify(err error) *Error {
	var gwErr *Error
	switch {
	case errors.As(err, &gwErr):
		return gwErr
	case errors.Is(err, room.ErrInvalidPayload):
		return newError(CodeInvalidPayload, err.Error(), err)
	case errors.Is(err, room.ErrDuplicateEvent):
		return newError(CodeDuplicateEvent, "duplicate event", err)
	case errors.Is(err, ErrUnauthorized):
		return newError(CodeUnauthorized, "admin role required", err)
	case errors.Is(err, ErrCodeUnavailable), errors.Is(err, store.ErrNotFound):
		return newError(CodeCodeUnavailable, "access code unavailable", err)
	case errors.Is(err, ErrRoomNotFound), errors.Is(err, room.ErrRoomClosed):
		return newError(CodeRoomNotFound, "room not found, rejoin", err)
	}
	return newError(CodePersistenceFailure, "internal error", err)
}
