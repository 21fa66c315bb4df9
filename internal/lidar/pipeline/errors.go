package pipeline

import (
	"context"
	"errors"
)

// File- and tile-scoped errors. The run recovers from these by skipping the
// affected file or tile; each occurrence is still sent to the sink.
var (
	ErrUnreadableInput   = errors.New("unreadable input")
	ErrNoCrsDetected     = errors.New("no CRS detected")
	ErrNoGroundPoints    = errors.New("no ground points")
	ErrProjectionFailure = errors.New("projection failure")
)

// Run-scoped errors. These end the run.
var (
	ErrAreaMismatch        = errors.New("output area does not intersect the input data")
	ErrPoisonedSharedState = errors.New("shared map document poisoned")
	ErrNoInputs            = errors.New("no usable input files")
)

// IsFatal reports whether err must terminate the run. Cancellation counts
// as fatal.
func IsFatal(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrAreaMismatch),
		errors.Is(err, ErrPoisonedSharedState),
		errors.Is(err, ErrNoInputs),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return true
	default:
		return false
	}
}
