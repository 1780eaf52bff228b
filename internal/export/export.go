// Package export serializes acquisition records to the flat JSON array
// interchange form. Field names are fixed by the AcquisitionRecord JSON
// tags; records round-trip without loss because every amount is already
// a string.
package export

import (
	"encoding/json"
	"fmt"

	"solana-buy-tracker/internal/domain"
)

// Marshal renders records as an indented flat JSON array. A nil or empty
// slice marshals as "[]" so importers never see null.
func Marshal(records []domain.AcquisitionRecord) ([]byte, error) {
	if records == nil {
		records = []domain.AcquisitionRecord{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal acquisition records: %w", err)
	}
	return data, nil
}

// Unmarshal parses a flat JSON array of acquisition records.
func Unmarshal(data []byte) ([]domain.AcquisitionRecord, error) {
	var records []domain.AcquisitionRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("unmarshal acquisition records: %w", err)
	}
	return records, nil
}
