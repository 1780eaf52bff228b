package blocksource

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"solana-buy-tracker/internal/solana"
)

// fakeRPC scripts per-call outcomes for GetSlot and GetBlock.
type fakeRPC struct {
	mu sync.Mutex

	slot     int64
	slotErrs []error // consumed one per GetSlot call, then success

	blockErrs map[int64][]error // consumed one per GetBlock call per height

	slotCalls  int
	blockCalls []int64
}

func (f *fakeRPC) GetSlot(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.slotCalls++
	if len(f.slotErrs) > 0 {
		err := f.slotErrs[0]
		f.slotErrs = f.slotErrs[1:]
		if err != nil {
			return 0, err
		}
	}
	return f.slot, nil
}

func (f *fakeRPC) GetBlock(ctx context.Context, slot int64) (*solana.Block, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blockCalls = append(f.blockCalls, slot)
	if errs := f.blockErrs[slot]; len(errs) > 0 {
		err := errs[0]
		f.blockErrs[slot] = errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &solana.Block{Slot: slot}, nil
}

func (f *fakeRPC) GetBlockTime(ctx context.Context, slot int64) (*int64, error) {
	return nil, nil
}

var _ solana.RPCClient = (*fakeRPC)(nil)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RequestsPerSecond = 0
	cfg.MinRequestSpacing = 0
	cfg.RetryDelay = time.Millisecond
	cfg.BackoffBase = time.Millisecond
	cfg.BackoffCap = 5 * time.Millisecond
	cfg.RotatePause = 0
	cfg.BatchSize = 3
	cfg.BatchPause = 0
	cfg.FetchDelay = 0
	cfg.PollInterval = 5 * time.Millisecond
	return cfg
}

func newTestSource(t *testing.T, cfg Config, endpoints []string, clients map[string]*fakeRPC, opts ...Option) *Source {
	t.Helper()
	pool, err := NewEndpointPool(endpoints)
	if err != nil {
		t.Fatal(err)
	}
	opts = append(opts, WithClientFactory(func(endpoint string) solana.RPCClient {
		c, ok := clients[endpoint]
		if !ok {
			t.Fatalf("no fake client for endpoint %s", endpoint)
		}
		return c
	}))
	src, err := NewSource(cfg, pool, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return src
}

func TestThreeThrottlesRotateOnce(t *testing.T) {
	primary := &fakeRPC{
		slot:     100,
		slotErrs: []error{solana.ErrThrottled, solana.ErrThrottled, solana.ErrThrottled},
	}
	secondary := &fakeRPC{slot: 100}
	clients := map[string]*fakeRPC{"primary": primary, "secondary": secondary}

	src := newTestSource(t, testConfig(), []string{"primary", "secondary"}, clients)

	height, err := src.CurrentHeight(context.Background())
	if err != nil {
		t.Fatalf("CurrentHeight: %v", err)
	}
	if height != 100 {
		t.Errorf("height = %d, want 100", height)
	}
	if primary.slotCalls != 3 {
		t.Errorf("primary calls = %d, want 3 (one per throttle before rotation)", primary.slotCalls)
	}
	if secondary.slotCalls != 1 {
		t.Errorf("secondary calls = %d, want 1", secondary.slotCalls)
	}
	if got := src.pool.Current(); got != "secondary" {
		t.Errorf("pool current = %q, want secondary", got)
	}

	// Rotation must reset backoff state.
	src.mu.Lock()
	consec, delay := src.consecThrottles, src.delay
	src.mu.Unlock()
	if consec != 0 {
		t.Errorf("consecutive throttles after rotation = %d, want 0", consec)
	}
	if delay != src.cfg.BackoffBase {
		t.Errorf("delay after rotation = %v, want base %v", delay, src.cfg.BackoffBase)
	}
}

func TestAllEndpointsThrottledIsUpstreamUnavailable(t *testing.T) {
	throttleForever := func() *fakeRPC {
		errs := make([]error, 10)
		for i := range errs {
			errs[i] = solana.ErrThrottled
		}
		return &fakeRPC{slotErrs: errs}
	}
	clients := map[string]*fakeRPC{"a": throttleForever(), "b": throttleForever()}

	src := newTestSource(t, testConfig(), []string{"a", "b"}, clients)

	_, err := src.CurrentHeight(context.Background())
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("err = %v, want ErrUpstreamUnavailable", err)
	}
}

func TestRetryBudgetExhausted(t *testing.T) {
	boom := fmt.Errorf("connection refused")
	rpc := &fakeRPC{slotErrs: []error{boom, boom, boom, boom, boom}}
	cfg := testConfig()
	cfg.MaxRetries = 2

	src := newTestSource(t, cfg, []string{"a"}, map[string]*fakeRPC{"a": rpc})

	_, err := src.CurrentHeight(context.Background())
	if err == nil {
		t.Fatal("expected error once the retry budget is spent")
	}
	if rpc.slotCalls != 3 {
		t.Errorf("calls = %d, want 3 (initial + 2 retries)", rpc.slotCalls)
	}
}

func TestTransientErrorRetriesThenSucceeds(t *testing.T) {
	rpc := &fakeRPC{slot: 42, slotErrs: []error{fmt.Errorf("timeout"), nil}}

	src := newTestSource(t, testConfig(), []string{"a"}, map[string]*fakeRPC{"a": rpc})

	height, err := src.CurrentHeight(context.Background())
	if err != nil {
		t.Fatalf("CurrentHeight: %v", err)
	}
	if height != 42 {
		t.Errorf("height = %d, want 42", height)
	}
}

func TestBlockAtPassesThroughUnavailable(t *testing.T) {
	rpc := &fakeRPC{
		slot:      10,
		blockErrs: map[int64][]error{7: {solana.ErrBlockUnavailable}},
	}

	src := newTestSource(t, testConfig(), []string{"a"}, map[string]*fakeRPC{"a": rpc})

	_, err := src.BlockAt(context.Background(), 7)
	if !errors.Is(err, solana.ErrBlockUnavailable) {
		t.Fatalf("err = %v, want ErrBlockUnavailable", err)
	}
	if rpc.slotCalls != 0 {
		t.Errorf("unexpected GetSlot calls: %d", rpc.slotCalls)
	}
}

func TestPollBackfillsEveryHeight(t *testing.T) {
	rpc := &fakeRPC{
		slot:      10,
		blockErrs: map[int64][]error{7: {solana.ErrBlockUnavailable}},
	}

	src := newTestSource(t, testConfig(), []string{"a"}, map[string]*fakeRPC{"a": rpc})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		delivered []int64
		phases    []Phase
	)
	h := Handler{
		OnBlock: func(b *solana.Block) error {
			delivered = append(delivered, b.Slot)
			if b.Slot >= 10 {
				cancel() // first live block ends the test
			}
			return nil
		},
		OnPhase: func(p Phase) { phases = append(phases, p) },
	}

	from := int64(5)
	if err := src.Poll(ctx, &from, h); err != nil {
		t.Fatalf("Poll: %v", err)
	}

	// Heights 5..9 are backfilled; 7 is unavailable and skipped.
	want := []int64{5, 6, 8, 9, 10}
	if len(delivered) != len(want) {
		t.Fatalf("delivered %v, want %v", delivered, want)
	}
	for i, h := range want {
		if delivered[i] != h {
			t.Fatalf("delivered %v, want %v", delivered, want)
		}
	}

	if len(phases) != 2 || phases[0] != PhaseBackfill || phases[1] != PhaseLive {
		t.Errorf("phases = %v, want [backfill live]", phases)
	}
}

func TestPollSkipsBackfillWhenCaughtUp(t *testing.T) {
	rpc := &fakeRPC{slot: 20}

	src := newTestSource(t, testConfig(), []string{"a"}, map[string]*fakeRPC{"a": rpc})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var phases []Phase
	h := Handler{
		OnBlock: func(b *solana.Block) error {
			cancel()
			return nil
		},
		OnPhase: func(p Phase) { phases = append(phases, p) },
	}

	from := int64(20) // equal to tip, nothing historical
	if err := src.Poll(ctx, &from, h); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(phases) != 1 || phases[0] != PhaseLive {
		t.Errorf("phases = %v, want [live]", phases)
	}
}

func TestPollStopsOnHandlerError(t *testing.T) {
	rpc := &fakeRPC{slot: 10}

	src := newTestSource(t, testConfig(), []string{"a"}, map[string]*fakeRPC{"a": rpc})

	stop := errors.New("handler says stop")
	h := Handler{OnBlock: func(b *solana.Block) error { return stop }}

	from := int64(8)
	err := src.Poll(context.Background(), &from, h)
	if !errors.Is(err, stop) {
		t.Fatalf("err = %v, want handler error", err)
	}
}

func TestPollCancellationIsCleanStop(t *testing.T) {
	rpc := &fakeRPC{slot: 5}

	src := newTestSource(t, testConfig(), []string{"a"}, map[string]*fakeRPC{"a": rpc})

	ctx, cancel := context.WithCancel(context.Background())
	h := Handler{OnBlock: func(b *solana.Block) error {
		cancel()
		return nil
	}}

	if err := src.Poll(ctx, nil, h); err != nil {
		t.Fatalf("cancelled poll should return nil, got %v", err)
	}
}
