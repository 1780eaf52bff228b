package tracker

import (
	"fmt"

	"github.com/mr-tron/base58"
)

// Solana addresses are 32 bytes, which base58 renders as 32 to 44
// characters.
const (
	minTokenLength = 32
	maxTokenLength = 44
)

// ValidateToken checks that a token identifier is a plausible Solana
// mint address: length in range, base58 alphabet, decodes to exactly
// 32 bytes.
func ValidateToken(token string) error {
	if len(token) < minTokenLength || len(token) > maxTokenLength {
		return fmt.Errorf("%w: length %d outside [%d,%d]", ErrInvalidTokenIdentifier, len(token), minTokenLength, maxTokenLength)
	}
	raw, err := base58.Decode(token)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTokenIdentifier, err)
	}
	if len(raw) != 32 {
		return fmt.Errorf("%w: decodes to %d bytes, want 32", ErrInvalidTokenIdentifier, len(raw))
	}
	return nil
}
