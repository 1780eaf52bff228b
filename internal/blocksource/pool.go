package blocksource

import (
	"errors"
	"sync"
)

// EndpointPool holds the ordered list of RPC endpoints and the index of
// the one currently in use. A single pool may be shared by several block
// sources; rotation is conditional on the caller's view so concurrent
// rotations advance the pool exactly once.
type EndpointPool struct {
	mu        sync.Mutex
	endpoints []string
	idx       int
}

// NewEndpointPool creates a pool over the given endpoints.
func NewEndpointPool(endpoints []string) (*EndpointPool, error) {
	if len(endpoints) == 0 {
		return nil, errors.New("endpoint pool requires at least one endpoint")
	}
	eps := make([]string, len(endpoints))
	copy(eps, endpoints)
	return &EndpointPool{endpoints: eps}, nil
}

// Current returns the endpoint currently in use.
func (p *EndpointPool) Current() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.endpoints[p.idx]
}

// Size returns the number of endpoints in the pool.
func (p *EndpointPool) Size() int {
	return len(p.endpoints)
}

// Rotate advances to the next endpoint only if prev is still the current
// one, so two flows observing the same throttled endpoint rotate the pool
// once rather than twice. It returns the endpoint in use after the call.
func (p *EndpointPool) Rotate(prev string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.endpoints[p.idx] == prev {
		p.idx = (p.idx + 1) % len(p.endpoints)
	}
	return p.endpoints[p.idx]
}
