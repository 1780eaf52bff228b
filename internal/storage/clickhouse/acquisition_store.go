package clickhouse

import (
	"context"
	"fmt"

	"solana-buy-tracker/internal/domain"
	"solana-buy-tracker/internal/storage"
)

// AcquisitionStore implements storage.AcquisitionStore on ClickHouse.
//
// MergeTree engines do not enforce uniqueness at insert time, so
// duplicate (session, sequence) pairs are absorbed by the
// ReplacingMergeTree schema rather than rejected; ErrDuplicateKey is
// never returned. The store is intended as an archival sink for
// flushed and completed sessions, not as the live system of record.
type AcquisitionStore struct {
	conn *Conn
}

// NewAcquisitionStore creates a new AcquisitionStore.
func NewAcquisitionStore(conn *Conn) *AcquisitionStore {
	return &AcquisitionStore{conn: conn}
}

// Compile-time interface check.
var _ storage.AcquisitionStore = (*AcquisitionStore)(nil)

const insertAcquisitionQuery = `
	INSERT INTO acquisitions (
		session_id, sequence_number, transaction_hash, exchange_name,
		target_token, counter_token, amount_acquired, amount_spent,
		target_decimals, counter_decimals, block_timestamp, operation_type,
		program_identifier, block_height, acquirer_address, unit_price,
		confidence_level
	)
`

const selectAcquisitionColumns = `
	SELECT transaction_hash, exchange_name, target_token, counter_token,
		amount_acquired, amount_spent, target_decimals, counter_decimals,
		block_timestamp, operation_type, program_identifier, block_height,
		sequence_number, acquirer_address, unit_price, confidence_level
	FROM acquisitions FINAL
`

// Insert stores a single record.
func (s *AcquisitionStore) Insert(ctx context.Context, sessionID string, record *domain.AcquisitionRecord) error {
	if record == nil || sessionID == "" {
		return storage.ErrInvalidInput
	}
	return s.InsertBulk(ctx, sessionID, []*domain.AcquisitionRecord{record})
}

// InsertBulk stores many records in one batch.
func (s *AcquisitionStore) InsertBulk(ctx context.Context, sessionID string, records []*domain.AcquisitionRecord) error {
	if len(records) == 0 {
		return nil
	}
	if sessionID == "" {
		return storage.ErrInvalidInput
	}

	batch, err := s.conn.PrepareBatch(ctx, insertAcquisitionQuery)
	if err != nil {
		return fmt.Errorf("prepare acquisition batch: %w", err)
	}

	for _, r := range records {
		if r == nil {
			return storage.ErrInvalidInput
		}
		err := batch.Append(
			sessionID,
			r.SequenceNumber,
			r.TransactionHash,
			r.ExchangeName,
			r.TargetToken,
			r.CounterToken,
			r.AmountAcquired,
			r.AmountSpent,
			int32(r.TargetDecimals),
			int32(r.CounterDecimals),
			r.BlockTimestamp,
			r.OperationType,
			r.ProgramID,
			r.BlockHeight,
			r.AcquirerAddress,
			r.UnitPrice,
			string(r.Confidence),
		)
		if err != nil {
			return fmt.Errorf("append acquisition to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send acquisition batch: %w", err)
	}
	return nil
}

// GetBySession retrieves a session's records ordered by sequence number.
func (s *AcquisitionStore) GetBySession(ctx context.Context, sessionID string) ([]*domain.AcquisitionRecord, error) {
	query := selectAcquisitionColumns + `
		WHERE session_id = ?
		ORDER BY sequence_number ASC
	`

	rows, err := s.conn.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get acquisitions by session: %w", err)
	}
	defer rows.Close()

	return scanAcquisitions(rows)
}

// GetByToken retrieves all records for a target token across sessions.
func (s *AcquisitionStore) GetByToken(ctx context.Context, token string) ([]*domain.AcquisitionRecord, error) {
	query := selectAcquisitionColumns + `
		WHERE target_token = ?
		ORDER BY block_height ASC, sequence_number ASC
	`

	rows, err := s.conn.Query(ctx, query, token)
	if err != nil {
		return nil, fmt.Errorf("get acquisitions by token: %w", err)
	}
	defer rows.Close()

	return scanAcquisitions(rows)
}

// CountBySession returns the number of stored records for a session.
func (s *AcquisitionStore) CountBySession(ctx context.Context, sessionID string) (int64, error) {
	var count uint64
	err := s.conn.QueryRow(ctx,
		`SELECT COUNT(*) FROM acquisitions FINAL WHERE session_id = ?`, sessionID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count acquisitions: %w", err)
	}
	return int64(count), nil
}

// rowScanner is the subset of driver.Rows scanAcquisitions needs.
type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanAcquisitions(rows rowScanner) ([]*domain.AcquisitionRecord, error) {
	var records []*domain.AcquisitionRecord

	for rows.Next() {
		var (
			r               domain.AcquisitionRecord
			targetDecimals  int32
			counterDecimals int32
			confidence      string
		)
		err := rows.Scan(
			&r.TransactionHash,
			&r.ExchangeName,
			&r.TargetToken,
			&r.CounterToken,
			&r.AmountAcquired,
			&r.AmountSpent,
			&targetDecimals,
			&counterDecimals,
			&r.BlockTimestamp,
			&r.OperationType,
			&r.ProgramID,
			&r.BlockHeight,
			&r.SequenceNumber,
			&r.AcquirerAddress,
			&r.UnitPrice,
			&confidence,
		)
		if err != nil {
			return nil, fmt.Errorf("scan acquisition row: %w", err)
		}
		r.TargetDecimals = int(targetDecimals)
		r.CounterDecimals = int(counterDecimals)
		r.Confidence = domain.Confidence(confidence)
		records = append(records, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate acquisition rows: %w", err)
	}
	return records, nil
}
