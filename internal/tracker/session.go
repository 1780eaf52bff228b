// Package tracker orchestrates block polling, extraction, decoding and
// classification into tracking sessions, one per tracked token.
package tracker

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"solana-buy-tracker/internal/blocksource"
	"solana-buy-tracker/internal/classify"
	"solana-buy-tracker/internal/decode"
	"solana-buy-tracker/internal/domain"
	"solana-buy-tracker/internal/events"
	"solana-buy-tracker/internal/extract"
	"solana-buy-tracker/internal/solana"
	"solana-buy-tracker/internal/storage"
)

// BlockSource is the polling surface a session consumes. Satisfied by
// *blocksource.Source; tests substitute synthetic sources.
type BlockSource interface {
	Poll(ctx context.Context, from *int64, h blocksource.Handler) error
}

// State is a session's position in its lifecycle.
type State int

const (
	StateIdle State = iota
	StateInitializing
	StateBackfilling
	StateLiveTailing
	StateCompleted
	StateErrored
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitializing:
		return "initializing"
	case StateBackfilling:
		return "backfilling"
	case StateLiveTailing:
		return "live-tailing"
	case StateCompleted:
		return "completed"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Progress is the externally visible completion summary of a session.
type Progress struct {
	Current    int64
	Target     int64
	Percentage float64
	IsComplete bool
}

// SessionConfig bounds a session's in-memory footprint.
type SessionConfig struct {
	// TargetCount is the number of acquisition records after which the
	// live tail stops. Zero means track until stopped. Backfill ignores
	// the target and always scans its full range.
	TargetCount int64

	// MaxRetainedRecords caps the in-memory record list. On overflow the
	// oldest records are flushed to the archive store, or dropped when no
	// store is configured. Sequence numbers and progress counts are
	// unaffected.
	MaxRetainedRecords int

	// ArchiveTimeout bounds each archive store call.
	ArchiveTimeout time.Duration
}

// DefaultSessionConfig returns the default session bounds.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		MaxRetainedRecords: 10000,
		ArchiveTimeout:     30 * time.Second,
	}
}

// Session tracks acquisitions of one token over a continuous stream of
// blocks. All mutable state is owned by the single polling goroutine and
// guarded for the read-only accessors.
type Session struct {
	id          string
	token       string
	startHeight *int64
	cfg         SessionConfig

	source  BlockSource
	archive storage.AcquisitionStore // nil when not persisting
	sink    events.Sink
	logger  *log.Logger

	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	state   State
	lastErr error
	stopped bool
	live    bool
	seq     int64
	records []domain.AcquisitionRecord
}

func newSession(id, token string, startHeight *int64, cfg SessionConfig, source BlockSource, archive storage.AcquisitionStore, sink events.Sink, logger *log.Logger) *Session {
	if cfg.MaxRetainedRecords <= 0 {
		cfg.MaxRetainedRecords = DefaultSessionConfig().MaxRetainedRecords
	}
	if cfg.ArchiveTimeout <= 0 {
		cfg.ArchiveTimeout = DefaultSessionConfig().ArchiveTimeout
	}
	return &Session{
		id:          id,
		token:       token,
		startHeight: startHeight,
		cfg:         cfg,
		source:      source,
		archive:     archive,
		sink:        sink,
		logger:      logger,
		done:        make(chan struct{}),
		state:       StateIdle,
	}
}

// ID returns the session handle.
func (s *Session) ID() string { return s.id }

// Token returns the tracked token mint.
func (s *Session) Token() string { return s.token }

// start launches the polling loop. The session owns the derived context
// and cancels it on Stop.
func (s *Session) start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.state = StateInitializing
	s.cancel = cancel
	s.mu.Unlock()

	go s.run(runCtx)
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)

	err := s.source.Poll(ctx, s.startHeight, blocksource.Handler{
		OnBlock: func(b *solana.Block) error { return s.processBlock(ctx, b) },
		OnPhase: s.onPhase,
	})

	s.mu.Lock()
	switch {
	case err == nil || errors.Is(err, errTargetReached):
		s.state = StateCompleted
	default:
		s.state = StateErrored
		s.lastErr = err
	}
	state := s.state
	total := s.seq
	stopped := s.stopped
	s.mu.Unlock()

	if state == StateErrored {
		s.logger.Printf("[session %s] failed: %v", s.id, err)
		return
	}

	s.archiveAll()
	s.sink.Emit(events.SessionCompleted{SessionID: s.id, Records: total, Stopped: stopped})
	s.logger.Printf("[session %s] completed with %d records", s.id, total)
}

func (s *Session) onPhase(p blocksource.Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch p {
	case blocksource.PhaseBackfill:
		s.state = StateBackfilling
		s.live = false
	case blocksource.PhaseLive:
		s.state = StateLiveTailing
		s.live = true
	}
}

// processBlock classifies every transaction in the block and appends the
// resulting records. Per-transaction failures are logged and skipped; one
// malformed transaction never aborts the block.
func (s *Session) processBlock(ctx context.Context, block *solana.Block) error {
	appended := 0
	for i := range block.Transactions {
		tx := &block.Transactions[i]

		deltas, err := extract.Deltas(tx)
		if err != nil {
			s.logger.Printf("[session %s] tx %s: balance extraction failed: %v", s.id, tx.Signature, err)
			continue
		}
		instructions := decode.Instructions(tx)

		for _, record := range classify.Records(tx, deltas, instructions, s.token) {
			s.append(ctx, record)
			appended++
		}
	}

	s.mu.Lock()
	backfill := !s.live
	reached := s.live && s.cfg.TargetCount > 0 && s.seq >= s.cfg.TargetCount
	if reached {
		s.state = StateCompleted
	}
	s.mu.Unlock()

	s.sink.Emit(events.BlockProcessed{
		SessionID:    s.id,
		Height:       block.Slot,
		Transactions: len(block.Transactions),
		Records:      appended,
		Backfill:     backfill,
	})

	if reached {
		return errTargetReached
	}
	return nil
}

// append assigns the next sequence number, retains the record and applies
// the retention cap.
func (s *Session) append(ctx context.Context, record domain.AcquisitionRecord) {
	s.mu.Lock()
	s.seq++
	record.SequenceNumber = s.seq
	s.records = append(s.records, record)

	var overflow []domain.AcquisitionRecord
	if len(s.records) > s.cfg.MaxRetainedRecords {
		n := len(s.records) - s.cfg.MaxRetainedRecords
		overflow = make([]domain.AcquisitionRecord, n)
		copy(overflow, s.records[:n])
		s.records = append(s.records[:0], s.records[n:]...)
	}
	s.mu.Unlock()

	s.sink.Emit(events.AcquisitionDetected{SessionID: s.id, Record: &record})

	if len(overflow) > 0 {
		s.flush(ctx, overflow)
	}
}

// flush hands overflowed records to the archive store. Archive failures
// are logged, not fatal: retention is best effort and the authoritative
// count lives in the sequence counter.
func (s *Session) flush(ctx context.Context, records []domain.AcquisitionRecord) {
	if s.archive == nil {
		s.logger.Printf("[session %s] dropping %d records over retention cap (no archive store)", s.id, len(records))
		return
	}
	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ArchiveTimeout)
	defer cancel()

	ptrs := make([]*domain.AcquisitionRecord, len(records))
	for i := range records {
		ptrs[i] = &records[i]
	}
	if err := s.archive.InsertBulk(flushCtx, s.id, ptrs); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		s.logger.Printf("[session %s] archive flush of %d records failed: %v", s.id, len(records), err)
	}
}

// archiveAll persists the retained records once the session finishes.
func (s *Session) archiveAll() {
	if s.archive == nil {
		return
	}
	s.mu.Lock()
	records := make([]domain.AcquisitionRecord, len(s.records))
	copy(records, s.records)
	s.mu.Unlock()

	if len(records) > 0 {
		s.flush(context.Background(), records)
	}
}

// Stop cancels the polling loop and waits for it to exit. Safe to call
// from any state; stopping an already terminal session is a no-op.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.state == StateCompleted || s.state == StateErrored {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-s.done
	} else {
		// Never started; completed trivially.
		s.mu.Lock()
		s.state = StateCompleted
		s.mu.Unlock()
	}
}

// Progress reports completion against the target count.
func (s *Session) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := Progress{
		Current:    s.seq,
		Target:     s.cfg.TargetCount,
		IsComplete: s.state == StateCompleted,
	}
	if p.Target > 0 {
		p.Percentage = float64(p.Current) / float64(p.Target) * 100
		if p.Percentage > 100 {
			p.Percentage = 100
		}
	}
	return p
}

// Records returns a snapshot of the retained records in append order.
func (s *Session) Records() []domain.AcquisitionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.AcquisitionRecord, len(s.records))
	copy(out, s.records)
	return out
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the error that moved the session to StateErrored, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}
