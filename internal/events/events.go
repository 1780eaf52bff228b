// Package events defines the closed set of typed pipeline events and the
// sinks that consume them. Components emit strongly-typed payloads instead
// of loose key/value blobs, which keeps the pipeline decoupled from
// whatever consumes the events.
package events

import (
	"log"
	"time"

	"solana-buy-tracker/internal/domain"
)

// Event is the sealed union of pipeline event types.
type Event interface {
	isEvent()
}

// BlockProcessed is emitted after every delivered block has been
// classified.
type BlockProcessed struct {
	SessionID    string
	Height       int64
	Transactions int
	Records      int
	Backfill     bool
}

// AcquisitionDetected is emitted for every appended acquisition record.
type AcquisitionDetected struct {
	SessionID string
	Record    *domain.AcquisitionRecord
}

// ThrottleBackoff is emitted when an upstream throttling response forces
// a backoff wait.
type ThrottleBackoff struct {
	Endpoint    string
	Consecutive int
	Wait        time.Duration
}

// EndpointRotated is emitted when repeated throttling rotates the pool to
// a new endpoint.
type EndpointRotated struct {
	From string
	To   string
}

// SessionCompleted is emitted when a tracking session reaches its target
// count or is stopped.
type SessionCompleted struct {
	SessionID string
	Records   int64
	Stopped   bool // true when completion came from an explicit stop
}

func (BlockProcessed) isEvent()      {}
func (AcquisitionDetected) isEvent() {}
func (ThrottleBackoff) isEvent()     {}
func (EndpointRotated) isEvent()     {}
func (SessionCompleted) isEvent()    {}

// Sink consumes pipeline events. Implementations must be safe for
// concurrent use.
type Sink interface {
	Emit(Event)
}

// NopSink discards all events.
type NopSink struct{}

// Emit implements Sink.
func (NopSink) Emit(Event) {}

// LogSink writes events to a standard logger.
type LogSink struct {
	Logger *log.Logger
}

// NewLogSink creates a LogSink. A nil logger falls back to log.Default().
func NewLogSink(logger *log.Logger) *LogSink {
	if logger == nil {
		logger = log.Default()
	}
	return &LogSink{Logger: logger}
}

// Emit implements Sink.
func (s *LogSink) Emit(e Event) {
	switch ev := e.(type) {
	case BlockProcessed:
		if ev.Records > 0 {
			s.Logger.Printf("[events] block %d: %d txs, %d acquisitions (session=%s backfill=%v)",
				ev.Height, ev.Transactions, ev.Records, ev.SessionID, ev.Backfill)
		}
	case AcquisitionDetected:
		r := ev.Record
		s.Logger.Printf("[events] acquisition #%d: %s acquired %s of %s via %s (%s) tx=%s",
			r.SequenceNumber, r.AcquirerAddress, r.AmountAcquired, r.TargetToken,
			r.ExchangeName, r.Confidence, r.TransactionHash)
	case ThrottleBackoff:
		s.Logger.Printf("[events] throttled by %s (consecutive=%d), backing off %v",
			ev.Endpoint, ev.Consecutive, ev.Wait)
	case EndpointRotated:
		s.Logger.Printf("[events] rotated endpoint %s -> %s", ev.From, ev.To)
	case SessionCompleted:
		s.Logger.Printf("[events] session %s completed with %d records (stopped=%v)",
			ev.SessionID, ev.Records, ev.Stopped)
	}
}

// MultiSink fans an event out to several sinks in order.
type MultiSink []Sink

// Emit implements Sink.
func (m MultiSink) Emit(e Event) {
	for _, s := range m {
		s.Emit(e)
	}
}
