package supervisor

import (
	"context"
	"errors"
	"fmt"

	"github.com/nuko-mc/nuko/internal/instance"
)

var (
	// ErrNotFound is returned for an identifier with no instance configuration.
	ErrNotFound       = instance.ErrNotFound
	ErrAlreadyRunning = errors.New("instance already running")
	ErrNotRunning     = errors.New("instance not running")
	ErrSpawnFailed    = errors.New("failed to spawn worker")
	ErrIO             = errors.New("i/o failure")
	// ErrChannelUnavailable also matches ErrNotRunning.
	ErrChannelUnavailable = fmt.Errorf("command channel unavailable: %w", ErrNotRunning)
	ErrShuttingDown       = errors.New("supervisor is shutting down")
)

// Error is returned by every Supervisor operation.
type Error struct {
	Op         string
	InstanceID string
	Err        error
}

func (e *Error) Error() string {
	if e.InstanceID == "" {
		return e.Op + ": " + e.Err.Error()
	}
	return e.Op + " " + e.InstanceID + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func opErr(op, id string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, InstanceID: id, Err: err}
}

// Kind returns a stable tag for err, or "internal" if none applies.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, instance.ErrExists):
		return "exists"
	case errors.Is(err, instance.ErrInvalidName):
		return "invalid_name"
	case errors.Is(err, ErrAlreadyRunning):
		return "already_running"
	case errors.Is(err, ErrChannelUnavailable):
		return "channel_unavailable"
	case errors.Is(err, ErrNotRunning):
		return "not_running"
	case errors.Is(err, ErrSpawnFailed):
		return "spawn_failed"
	case errors.Is(err, ErrIO):
		return "io"
	case errors.Is(err, ErrShuttingDown):
		return "shutting_down"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "internal"
	}
}
