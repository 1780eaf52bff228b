package solana

import "errors"

var (
	// ErrThrottled is returned when the node rejects a request for rate
	// limiting reasons. Distinct from other upstream errors so callers
	// can drive backoff and endpoint rotation.
	ErrThrottled = errors.New("upstream throttled request")

	// ErrBlockUnavailable is returned when the node has pruned, skipped,
	// or never produced the requested slot.
	ErrBlockUnavailable = errors.New("block unavailable")
)
