// Package blocksource fetches Solana blocks under a per-flow rate limit
// with throttle-aware backoff and endpoint failover. It owns the entire
// retry policy: the RPC client underneath performs single attempts and
// reports typed errors, and the source decides when to wait, retry,
// rotate, or give up.
package blocksource

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"solana-buy-tracker/internal/events"
	"solana-buy-tracker/internal/solana"
)

// Phase identifies which stage of a poll the source is in.
type Phase int

const (
	// PhaseBackfill covers historical blocks between the requested start
	// height and the chain tip observed at poll start.
	PhaseBackfill Phase = iota
	// PhaseLive covers blocks produced after the poll started.
	PhaseLive
)

// String returns a human-readable phase name.
func (p Phase) String() string {
	switch p {
	case PhaseBackfill:
		return "backfill"
	case PhaseLive:
		return "live"
	default:
		return "unknown"
	}
}

// Handler receives blocks and phase transitions from Poll. OnBlock is
// called once per retrievable block in ascending height order; returning
// an error stops the poll. OnPhase, when set, is called before the first
// block of each phase.
type Handler struct {
	OnBlock func(*solana.Block) error
	OnPhase func(Phase)
}

// Config holds tuning knobs for a block source.
type Config struct {
	// RequestsPerSecond caps requests inside any sliding one-second window.
	RequestsPerSecond int
	// MinRequestSpacing is the minimum gap between consecutive requests.
	MinRequestSpacing time.Duration

	// MaxRetries bounds retries for errors other than throttling or
	// unavailable blocks. Once exhausted the poll stops with the error.
	MaxRetries int
	// RetryDelay is the initial delay between such retries; it doubles
	// per attempt.
	RetryDelay time.Duration

	// BackoffBase seeds the throttle backoff delay.
	BackoffBase time.Duration
	// BackoffFactor scales the internal delay on every throttle response.
	BackoffFactor float64
	// BackoffCap bounds both the internal delay and the computed wait.
	BackoffCap time.Duration
	// RotatePause is the settle time after switching endpoints.
	RotatePause time.Duration

	// BatchSize is the number of backfill blocks fetched per batch.
	BatchSize int
	// BatchPause is the rest between backfill batches.
	BatchPause time.Duration
	// FetchDelay is the gap between consecutive block fetches inside a
	// batch or a live-tail cycle, on top of the limiter.
	FetchDelay time.Duration

	// PollInterval is how long the live tail sleeps when caught up.
	PollInterval time.Duration
	// MaxHeightsPerCycle bounds how many new heights one live-tail cycle
	// drains before re-checking the tip.
	MaxHeightsPerCycle int
}

// DefaultConfig returns production defaults tuned for free-tier RPC
// providers.
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond:  4,
		MinRequestSpacing:  250 * time.Millisecond,
		MaxRetries:         3,
		RetryDelay:         500 * time.Millisecond,
		BackoffBase:        500 * time.Millisecond,
		BackoffFactor:      1.5,
		BackoffCap:         8 * time.Second,
		RotatePause:        time.Second,
		BatchSize:          20,
		BatchPause:         2 * time.Second,
		FetchDelay:         300 * time.Millisecond,
		PollInterval:       5 * time.Second,
		MaxHeightsPerCycle: 5,
	}
}

// throttleRotationThreshold is the number of consecutive throttling
// responses that triggers an endpoint rotation.
const throttleRotationThreshold = 3

// Source fetches blocks with rate limiting, backoff and failover. Each
// source owns its limiter and backoff state; only the endpoint pool may
// be shared across sources.
type Source struct {
	cfg     Config
	pool    *EndpointPool
	limiter *Limiter
	logger  *log.Logger
	sink    events.Sink

	newClient func(endpoint string) solana.RPCClient
	clientsMu sync.Mutex
	clients   map[string]solana.RPCClient

	// Slot notifications shorten live-tail sleeps; nil means pure polling.
	slots <-chan int64

	mu              sync.Mutex
	delay           time.Duration
	consecThrottles int
}

// Option configures a Source.
type Option func(*Source)

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Source) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithEventSink sets the sink receiving throttle and rotation events.
func WithEventSink(sink events.Sink) Option {
	return func(s *Source) {
		if sink != nil {
			s.sink = sink
		}
	}
}

// WithClientFactory overrides how RPC clients are built per endpoint,
// mainly for tests.
func WithClientFactory(factory func(endpoint string) solana.RPCClient) Option {
	return func(s *Source) {
		if factory != nil {
			s.newClient = factory
		}
	}
}

// WithSlotNotifications wires a channel of observed chain slots into the
// live tail so it wakes as soon as new blocks exist instead of sleeping
// the full poll interval.
func WithSlotNotifications(slots <-chan int64) Option {
	return func(s *Source) {
		s.slots = slots
	}
}

// NewSource creates a block source over the given endpoint pool.
func NewSource(cfg Config, pool *EndpointPool, opts ...Option) (*Source, error) {
	if pool == nil {
		return nil, errors.New("block source requires an endpoint pool")
	}
	if cfg.BackoffFactor < 1 {
		cfg.BackoffFactor = 1
	}
	s := &Source{
		cfg:     cfg,
		pool:    pool,
		limiter: NewLimiter(cfg.RequestsPerSecond, cfg.MinRequestSpacing),
		logger:  log.Default(),
		sink:    events.NopSink{},
		clients: make(map[string]solana.RPCClient),
		delay:   cfg.BackoffBase,
	}
	s.newClient = func(endpoint string) solana.RPCClient {
		return solana.NewHTTPClient(endpoint)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// client returns the cached RPC client for an endpoint, building it on
// first use.
func (s *Source) client(endpoint string) solana.RPCClient {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	c, ok := s.clients[endpoint]
	if !ok {
		c = s.newClient(endpoint)
		s.clients[endpoint] = c
	}
	return c
}

// CurrentHeight returns the chain tip.
func (s *Source) CurrentHeight(ctx context.Context) (int64, error) {
	var height int64
	err := s.do(ctx, func(c solana.RPCClient) error {
		h, err := c.GetSlot(ctx)
		if err != nil {
			return err
		}
		height = h
		return nil
	})
	return height, err
}

// BlockAt fetches the block at the given height. It returns
// solana.ErrBlockUnavailable unchanged for pruned or skipped heights.
func (s *Source) BlockAt(ctx context.Context, height int64) (*solana.Block, error) {
	var block *solana.Block
	err := s.do(ctx, func(c solana.RPCClient) error {
		b, err := c.GetBlock(ctx, height)
		if err != nil {
			return err
		}
		block = b
		return nil
	})
	return block, err
}

// do runs one logical request through the limiter and the full retry
// policy: exponential throttle backoff, rotation after three consecutive
// throttles, and a bounded retry budget for other transient failures.
func (s *Source) do(ctx context.Context, fn func(solana.RPCClient) error) error {
	var (
		retries         int
		rotations       int
		throttleAttempt int
	)
	for {
		if err := s.limiter.Acquire(ctx); err != nil {
			return err
		}

		endpoint := s.pool.Current()
		err := fn(s.client(endpoint))
		if err == nil {
			s.clearThrottleState()
			return nil
		}

		switch {
		case ctx.Err() != nil:
			return ctx.Err()

		case errors.Is(err, solana.ErrBlockUnavailable):
			return err

		case errors.Is(err, solana.ErrThrottled):
			consec, wait := s.bumpThrottleState(throttleAttempt)
			s.sink.Emit(events.ThrottleBackoff{
				Endpoint:    endpoint,
				Consecutive: consec,
				Wait:        wait,
			})

			if consec >= throttleRotationThreshold {
				rotations++
				if rotations >= s.pool.Size() {
					return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
				}
				next := s.pool.Rotate(endpoint)
				s.logger.Printf("[blocksource] rotating endpoint after %d throttles: %s -> %s", consec, endpoint, next)
				s.sink.Emit(events.EndpointRotated{From: endpoint, To: next})
				s.clearThrottleState()
				s.limiter.Reset()
				throttleAttempt = 0
				if err := s.wait(ctx, s.cfg.RotatePause); err != nil {
					return err
				}
				continue
			}

			throttleAttempt++
			s.logger.Printf("[blocksource] throttled by %s (consecutive=%d), waiting %v", endpoint, consec, wait)
			if err := s.wait(ctx, wait); err != nil {
				return err
			}

		default:
			retries++
			if retries > s.cfg.MaxRetries {
				return fmt.Errorf("retry budget exhausted: %w", err)
			}
			delay := s.cfg.RetryDelay << (retries - 1)
			s.logger.Printf("[blocksource] request to %s failed (attempt %d/%d): %v", endpoint, retries, s.cfg.MaxRetries, err)
			if err := s.wait(ctx, delay); err != nil {
				return err
			}
		}
	}
}

// bumpThrottleState advances the throttle counters and returns the new
// consecutive count together with the wait to apply. The internal delay
// grows by the configured factor per throttle, and the applied wait is
// that delay scaled by 2^attempt and 2^consecutive, both capped.
func (s *Source) bumpThrottleState(attempt int) (int, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.consecThrottles++
	s.delay = time.Duration(float64(s.delay) * s.cfg.BackoffFactor)
	if s.delay > s.cfg.BackoffCap {
		s.delay = s.cfg.BackoffCap
	}

	wait := s.delay << uint(attempt) << uint(s.consecThrottles)
	if wait > s.cfg.BackoffCap || wait <= 0 {
		wait = s.cfg.BackoffCap
	}
	return s.consecThrottles, wait
}

// clearThrottleState resets the backoff delay and the consecutive
// throttle counter.
func (s *Source) clearThrottleState() {
	s.mu.Lock()
	s.delay = s.cfg.BackoffBase
	s.consecThrottles = 0
	s.mu.Unlock()
}

// wait sleeps for d or until the context is cancelled.
func (s *Source) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Poll streams blocks to the handler until the context is cancelled or
// the handler returns an error. When from is non-nil and behind the chain
// tip, the range [from, tip) is backfilled in batches first; the live
// tail then continues from the tip. Cancellation is a clean stop and
// returns nil.
func (s *Source) Poll(ctx context.Context, from *int64, h Handler) error {
	if h.OnBlock == nil {
		return errors.New("poll requires an OnBlock handler")
	}

	tip, err := s.CurrentHeight(ctx)
	if err != nil {
		return s.pollErr(ctx, err)
	}

	if from != nil && *from < tip {
		if h.OnPhase != nil {
			h.OnPhase(PhaseBackfill)
		}
		if err := s.backfill(ctx, *from, tip, h); err != nil {
			return s.pollErr(ctx, err)
		}
	}

	if h.OnPhase != nil {
		h.OnPhase(PhaseLive)
	}
	return s.pollErr(ctx, s.liveTail(ctx, tip, h))
}

// pollErr maps context cancellation to a clean stop.
func (s *Source) pollErr(ctx context.Context, err error) error {
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return nil
	}
	return err
}

// backfill fetches [from, to) in ascending order, batch by batch. Every
// height in the range is attempted exactly once regardless of what the
// handler does with the blocks; unavailable heights are skipped.
func (s *Source) backfill(ctx context.Context, from, to int64, h Handler) error {
	batch := int64(s.cfg.BatchSize)
	if batch <= 0 {
		batch = 1
	}

	for start := from; start < to; start += batch {
		end := start + batch
		if end > to {
			end = to
		}
		for height := start; height < end; height++ {
			if err := s.fetchAndDeliver(ctx, height, h); err != nil {
				return err
			}
			if err := s.wait(ctx, s.cfg.FetchDelay); err != nil {
				return err
			}
		}
		if end < to {
			if err := s.wait(ctx, s.cfg.BatchPause); err != nil {
				return err
			}
		}
	}
	return nil
}

// liveTail polls the chain tip and drains new heights as they appear,
// starting with next as the first undelivered height.
func (s *Source) liveTail(ctx context.Context, next int64, h Handler) error {
	for {
		tip, err := s.CurrentHeight(ctx)
		if err != nil {
			return err
		}

		drained := 0
		for next <= tip && drained < s.cfg.MaxHeightsPerCycle {
			if err := s.fetchAndDeliver(ctx, next, h); err != nil {
				return err
			}
			next++
			drained++
			if err := s.wait(ctx, s.cfg.FetchDelay); err != nil {
				return err
			}
		}

		if drained > 0 && next <= tip {
			continue // still behind, keep draining next cycle
		}
		if err := s.idle(ctx); err != nil {
			return err
		}
	}
}

// idle waits for the poll interval or an earlier slot notification.
func (s *Source) idle(ctx context.Context) error {
	timer := time.NewTimer(s.cfg.PollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	case _, ok := <-s.slots:
		if !ok {
			s.slots = nil // notifier closed, fall back to pure polling
		}
		return nil
	}
}

// fetchAndDeliver fetches one height and passes it to the handler.
// Unavailable heights are logged and skipped.
func (s *Source) fetchAndDeliver(ctx context.Context, height int64, h Handler) error {
	block, err := s.BlockAt(ctx, height)
	if err != nil {
		if errors.Is(err, solana.ErrBlockUnavailable) {
			s.logger.Printf("[blocksource] height %d unavailable, skipping", height)
			return nil
		}
		return err
	}
	return h.OnBlock(block)
}
