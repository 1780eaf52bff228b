package tracker

import "errors"

var (
	// ErrInvalidTokenIdentifier is returned when a token address fails
	// the format check. Rejected before any network call.
	ErrInvalidTokenIdentifier = errors.New("invalid token identifier")

	// ErrSessionNotFound is returned for an unknown session handle.
	ErrSessionNotFound = errors.New("session not found")
)

// errTargetReached stops the poll loop from inside the block handler once
// the live tail has collected the target number of records.
var errTargetReached = errors.New("target record count reached")
