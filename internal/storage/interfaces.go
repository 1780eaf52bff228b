// Package storage defines persistence interfaces for acquisition records.
// Implementations live in subpackages: memory for tests and ephemeral
// runs, postgres as the transactional system of record, clickhouse for
// analytical retention of large backfills.
package storage

import (
	"context"

	"solana-buy-tracker/internal/domain"
)

// AcquisitionStore persists acquisition records. Records are unique per
// (session, sequence number); re-inserting an existing pair returns
// ErrDuplicateKey.
type AcquisitionStore interface {
	// Insert stores a single record under a session.
	Insert(ctx context.Context, sessionID string, record *domain.AcquisitionRecord) error

	// InsertBulk stores many records under a session atomically; the
	// whole batch fails on any duplicate.
	InsertBulk(ctx context.Context, sessionID string, records []*domain.AcquisitionRecord) error

	// GetBySession returns a session's records ordered by sequence number.
	GetBySession(ctx context.Context, sessionID string) ([]*domain.AcquisitionRecord, error)

	// GetByToken returns all records for a target token across sessions,
	// ordered by block height then sequence number.
	GetByToken(ctx context.Context, token string) ([]*domain.AcquisitionRecord, error)

	// CountBySession returns the number of stored records for a session.
	CountBySession(ctx context.Context, sessionID string) (int64, error)
}
