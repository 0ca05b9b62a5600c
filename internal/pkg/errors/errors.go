package errors

import "errors"

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrConflict signals an attempt to re-resolve an item that has already
	// left the pending state. Review items and suggestions transition exactly
	// once; a second approval or rejection surfaces this sentinel.
	ErrConflict = errors.New("already resolved")
)
