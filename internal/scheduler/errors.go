package scheduler

import "errors"

var (
	// ErrInvalidDelay is returned for negative, NaN or infinite delays.
	ErrInvalidDelay = errors.New("scheduler: invalid delay")
	// ErrNilCallback is returned when scheduling a nil callback.
	ErrNilCallback = errors.New("scheduler: nil callback")
)
