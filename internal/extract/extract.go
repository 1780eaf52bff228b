// Package extract derives signed token balance deltas from the pre and
// post balance snapshots a Solana node attaches to every transaction.
package extract

import (
	"fmt"
	"math/big"

	"solana-buy-tracker/internal/domain"
	"solana-buy-tracker/internal/solana"
)

// balanceKey identifies one token account's balance entry. The same
// account index can appear once per mint when the account is reassigned
// inside the transaction, so the mint is part of the key.
type balanceKey struct {
	accountIndex int
	mint         string
}

// Deltas computes post minus pre for every token balance the transaction
// touched. Entries only present in the post set treat the pre amount as
// zero; entries only present in the pre set yield a negative delta and
// are appended after the post-ordered ones. Zero deltas are omitted.
//
// Amounts are raw base units parsed as big integers, never floats, so
// mints with large supplies and high decimals stay exact.
func Deltas(tx *solana.Transaction) ([]domain.BalanceDelta, error) {
	pre := make(map[balanceKey]*big.Int, len(tx.PreTokenBalances))
	for _, b := range tx.PreTokenBalances {
		amount, err := parseAmount(b.Amount)
		if err != nil {
			return nil, fmt.Errorf("pre balance for account %d: %w", b.AccountIndex, err)
		}
		pre[balanceKey{b.AccountIndex, b.Mint}] = amount
	}

	deltas := make([]domain.BalanceDelta, 0, len(tx.PostTokenBalances))
	seen := make(map[balanceKey]bool, len(tx.PostTokenBalances))

	for _, b := range tx.PostTokenBalances {
		key := balanceKey{b.AccountIndex, b.Mint}
		seen[key] = true

		post, err := parseAmount(b.Amount)
		if err != nil {
			return nil, fmt.Errorf("post balance for account %d: %w", b.AccountIndex, err)
		}
		delta := new(big.Int).Set(post)
		if before, ok := pre[key]; ok {
			delta.Sub(delta, before)
		}
		if delta.Sign() == 0 {
			continue
		}
		deltas = append(deltas, domain.BalanceDelta{
			Mint:         b.Mint,
			AccountIndex: b.AccountIndex,
			Amount:       delta,
			Decimals:     b.Decimals,
		})
	}

	// Accounts drained and closed within the transaction vanish from the
	// post set; their entire pre balance left.
	for _, b := range tx.PreTokenBalances {
		key := balanceKey{b.AccountIndex, b.Mint}
		if seen[key] {
			continue
		}
		amount := pre[key]
		if amount.Sign() == 0 {
			continue
		}
		deltas = append(deltas, domain.BalanceDelta{
			Mint:         b.Mint,
			AccountIndex: b.AccountIndex,
			Amount:       new(big.Int).Neg(amount),
			Decimals:     b.Decimals,
		})
	}

	return deltas, nil
}

func parseAmount(raw string) (*big.Int, error) {
	if raw == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("invalid raw amount %q", raw)
	}
	return amount, nil
}
