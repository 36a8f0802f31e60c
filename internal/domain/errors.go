package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the core wraps exactly one of these.
var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrValidation      = errors.New("validation error")
	ErrNotFound        = errors.New("not found")
	ErrStorage         = errors.New("storage error")
)

var (
	ErrRoomNotFound       = fmt.Errorf("chat room %w", ErrNotFound)
	ErrBusinessNotFound   = fmt.Errorf("business %w", ErrNotFound)
	ErrMessageEmpty       = fmt.Errorf("%w: message text is empty", ErrValidation)
	ErrMessageTooLong     = fmt.Errorf("%w: message text exceeds %d characters", ErrValidation, MaxMessageLength)
	ErrMalformedTimeRange = fmt.Errorf("%w: malformed time range", ErrValidation)
	ErrUnknownTimeRange   = fmt.Errorf("%w: unknown time range", ErrValidation)
	ErrNotJoined          = fmt.Errorf("%w: connection has not joined this room", ErrUnauthorized)
	ErrNotParticipant     = fmt.Errorf("%w: not a participant of this conversation", ErrUnauthorized)
	ErrNotBusinessOwner   = fmt.Errorf("%w: not the owner of this business", ErrUnauthorized)
)

// StorageError wraps a collaborator failure so that it matches both ErrStorage and the cause.
func StorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}

// Kind returns the wire name of the error's kind, or "internal" for anything unclassified.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrStorage):
		return "storage_error"
	default:
		return "internal"
	}
}
