package errors

import "errors"

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInvalidTransition marks a state change the conversation machine forbids.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrDuplicateMessage marks an inbound message already processed within the dedup window.
	ErrDuplicateMessage = errors.New("duplicate message")
	// ErrLockFailed marks exhaustion of per-user lock acquisition attempts.
	ErrLockFailed = errors.New("user lock acquisition failed")
)
