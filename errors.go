package ringchan

import (
	"github.com/pkg/errors"
)

var (
	// ErrClosed is returned by writes on a closed channel.
	ErrClosed = errors.New("ringchan: channel closed")

	// ErrCancelled is matched by errors returned when the caller's context
	// ends while it is blocked in Read or Write.
	ErrCancelled = errors.New("ringchan: wait cancelled")

	// ErrStalled is returned by Write when the channel stayed full with no
	// read progress for the configured stall timeout.
	ErrStalled = errors.New("ringchan: write stalled")

	// ErrInvalidCapacity is returned by New for a capacity <= 0.
	ErrInvalidCapacity = errors.New("ringchan: capacity must be positive")
)

// cancelError matches both ErrCancelled and the context error that caused it.
type cancelError struct {
	cause error
}

func (e *cancelError) Error() string {
	return ErrCancelled.Error() + ": " + e.cause.Error()
}

func (e *cancelError) Is(target error) bool {
	return target == ErrCancelled
}

func (e *cancelError) Unwrap() error {
	return e.cause
}
