package domain

import "math/big"

// BalanceDelta is the signed balance change of one (account, token) pair
// across a single transaction. Amounts are arbitrary-precision: raw
// on-chain amounts routinely exceed the safe float64 range.
//
// Deltas are derived fresh per transaction and never persisted.
type BalanceDelta struct {
	Mint         string   // token mint address
	AccountIndex int      // index into the transaction's account list
	Amount       *big.Int // post minus pre, never zero
	Decimals     int      // decimal precision of the token
}

// Positive reports whether the delta is a balance increase.
func (d *BalanceDelta) Positive() bool {
	return d.Amount.Sign() > 0
}
