package chat

import "errors"

var (
	// ErrValidation marks an event with a missing or empty required field.
	// The event is dropped and nothing is applied.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks an unresolvable target room, connection or identity.
	ErrNotFound = errors.New("not found")
	// ErrAuthentication marks a token rejected by the identity verifier.
	// Joins continue unauthenticated when it occurs.
	ErrAuthentication = errors.New("authentication failed")
)
