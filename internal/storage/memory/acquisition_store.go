// Package memory provides in-memory store implementations for tests and
// runs that do not need persistence.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"solana-buy-tracker/internal/domain"
	"solana-buy-tracker/internal/storage"
)

// AcquisitionStore is an in-memory implementation of
// storage.AcquisitionStore.
type AcquisitionStore struct {
	mu   sync.RWMutex
	data map[string]*storedRecord // keyed by composite key
}

type storedRecord struct {
	sessionID string
	record    domain.AcquisitionRecord
}

// NewAcquisitionStore creates a new in-memory acquisition store.
func NewAcquisitionStore() *AcquisitionStore {
	return &AcquisitionStore{
		data: make(map[string]*storedRecord),
	}
}

// Compile-time interface check.
var _ storage.AcquisitionStore = (*AcquisitionStore)(nil)

// recordKey generates the uniqueness key for a record.
func recordKey(sessionID string, sequenceNumber int64) string {
	return fmt.Sprintf("%s|%d", sessionID, sequenceNumber)
}

// Insert adds a record. Returns ErrDuplicateKey if the (session,
// sequence) pair exists.
func (s *AcquisitionStore) Insert(_ context.Context, sessionID string, record *domain.AcquisitionRecord) error {
	if record == nil || sessionID == "" {
		return storage.ErrInvalidInput
	}

	key := recordKey(sessionID, record.SequenceNumber)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}
	s.data[key] = &storedRecord{sessionID: sessionID, record: *record}
	return nil
}

// InsertBulk adds multiple records atomically. Fails the entire batch on
// any duplicate, existing or intra-batch.
func (s *AcquisitionStore) InsertBulk(_ context.Context, sessionID string, records []*domain.AcquisitionRecord) error {
	if len(records) == 0 {
		return nil
	}
	if sessionID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(records))
	for _, r := range records {
		if r == nil {
			return storage.ErrInvalidInput
		}
		key := recordKey(sessionID, r.SequenceNumber)
		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	for _, r := range records {
		s.data[recordKey(sessionID, r.SequenceNumber)] = &storedRecord{sessionID: sessionID, record: *r}
	}
	return nil
}

// GetBySession retrieves a session's records ordered by sequence number.
func (s *AcquisitionStore) GetBySession(_ context.Context, sessionID string) ([]*domain.AcquisitionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.AcquisitionRecord
	for _, sr := range s.data {
		if sr.sessionID == sessionID {
			record := sr.record
			result = append(result, &record)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].SequenceNumber < result[j].SequenceNumber
	})

	return result, nil
}

// GetByToken retrieves all records for a target token across sessions,
// ordered by block height then sequence number.
func (s *AcquisitionStore) GetByToken(_ context.Context, token string) ([]*domain.AcquisitionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.AcquisitionRecord
	for _, sr := range s.data {
		if sr.record.TargetToken == token {
			record := sr.record
			result = append(result, &record)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].BlockHeight != result[j].BlockHeight {
			return result[i].BlockHeight < result[j].BlockHeight
		}
		return result[i].SequenceNumber < result[j].SequenceNumber
	})

	return result, nil
}

// CountBySession returns the number of stored records for a session.
func (s *AcquisitionStore) CountBySession(_ context.Context, sessionID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, sr := range s.data {
		if sr.sessionID == sessionID {
			count++
		}
	}
	return count, nil
}
