package blocksource

import "errors"

// ErrUpstreamUnavailable is returned when every endpoint in the pool has
// been exhausted by throttling and no provider can serve the request.
var ErrUpstreamUnavailable = errors.New("all upstream endpoints unavailable")
