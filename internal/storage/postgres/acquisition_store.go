package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"solana-buy-tracker/internal/domain"
	"solana-buy-tracker/internal/storage"
)

// AcquisitionStore implements storage.AcquisitionStore using PostgreSQL.
type AcquisitionStore struct {
	pool *Pool
}

// NewAcquisitionStore creates a new AcquisitionStore.
func NewAcquisitionStore(pool *Pool) *AcquisitionStore {
	return &AcquisitionStore{pool: pool}
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
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
`

const selectAcquisitionColumns = `
	SELECT transaction_hash, exchange_name, target_token, counter_token,
		amount_acquired, amount_spent, target_decimals, counter_decimals,
		block_timestamp, operation_type, program_identifier, block_height,
		sequence_number, acquirer_address, unit_price, confidence_level
	FROM acquisitions
`

func insertArgs(sessionID string, r *domain.AcquisitionRecord) []interface{} {
	return []interface{}{
		sessionID,
		r.SequenceNumber,
		r.TransactionHash,
		r.ExchangeName,
		r.TargetToken,
		r.CounterToken,
		r.AmountAcquired,
		r.AmountSpent,
		r.TargetDecimals,
		r.CounterDecimals,
		r.BlockTimestamp,
		r.OperationType,
		r.ProgramID,
		r.BlockHeight,
		r.AcquirerAddress,
		r.UnitPrice,
		string(r.Confidence),
	}
}

// Insert adds a record. Returns ErrDuplicateKey if (session_id,
// sequence_number) exists.
func (s *AcquisitionStore) Insert(ctx context.Context, sessionID string, record *domain.AcquisitionRecord) error {
	if record == nil || sessionID == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, insertAcquisitionQuery, insertArgs(sessionID, record)...)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert acquisition: %w", err)
	}
	return nil
}

// InsertBulk adds multiple records atomically. Fails the entire batch on
// any duplicate.
func (s *AcquisitionStore) InsertBulk(ctx context.Context, sessionID string, records []*domain.AcquisitionRecord) error {
	if len(records) == 0 {
		return nil
	}
	if sessionID == "" {
		return storage.ErrInvalidInput
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, record := range records {
		if record == nil {
			return storage.ErrInvalidInput
		}
		if _, err := tx.Exec(ctx, insertAcquisitionQuery, insertArgs(sessionID, record)...); err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert acquisition in bulk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetBySession retrieves a session's records ordered by sequence number.
func (s *AcquisitionStore) GetBySession(ctx context.Context, sessionID string) ([]*domain.AcquisitionRecord, error) {
	query := selectAcquisitionColumns + `
		WHERE session_id = $1
		ORDER BY sequence_number ASC
	`

	rows, err := s.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get acquisitions by session: %w", err)
	}
	defer rows.Close()

	return scanAcquisitions(rows)
}

// GetByToken retrieves all records for a target token across sessions.
func (s *AcquisitionStore) GetByToken(ctx context.Context, token string) ([]*domain.AcquisitionRecord, error) {
	query := selectAcquisitionColumns + `
		WHERE target_token = $1
		ORDER BY block_height ASC, sequence_number ASC
	`

	rows, err := s.pool.Query(ctx, query, token)
	if err != nil {
		return nil, fmt.Errorf("get acquisitions by token: %w", err)
	}
	defer rows.Close()

	return scanAcquisitions(rows)
}

// CountBySession returns the number of stored records for a session.
func (s *AcquisitionStore) CountBySession(ctx context.Context, sessionID string) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM acquisitions WHERE session_id = $1`, sessionID,
	).Scan(&count)
	if err != nil {
		if isNotFoundError(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("count acquisitions: %w", err)
	}
	return count, nil
}

// scanAcquisitions scans multiple rows into records.
func scanAcquisitions(rows pgx.Rows) ([]*domain.AcquisitionRecord, error) {
	var records []*domain.AcquisitionRecord

	for rows.Next() {
		var (
			r          domain.AcquisitionRecord
			confidence string
		)
		err := rows.Scan(
			&r.TransactionHash,
			&r.ExchangeName,
			&r.TargetToken,
			&r.CounterToken,
			&r.AmountAcquired,
			&r.AmountSpent,
			&r.TargetDecimals,
			&r.CounterDecimals,
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
		r.Confidence = domain.Confidence(confidence)
		records = append(records, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate acquisition rows: %w", err)
	}
	return records, nil
}
