// Package classify combines balance deltas and decoded instructions into
// acquisition records for a target token.
package classify

import (
	"math/big"

	"github.com/shopspring/decimal"

	"solana-buy-tracker/internal/decode"
	"solana-buy-tracker/internal/domain"
	"solana-buy-tracker/internal/solana"
)

// unitPriceDigits is the fixed fractional precision of the unit price.
const unitPriceDigits = 8

// Records decides whether the transaction acquired the target token and,
// if so, produces one record per matched exchange instruction, or a
// single heuristic record when balances moved but no operation matched.
// Sequence numbers are left unset; the owning session assigns them at
// append time.
func Records(tx *solana.Transaction, deltas []domain.BalanceDelta, instructions []domain.DecodedInstruction, targetToken string) []domain.AcquisitionRecord {
	if tx.Failed {
		return nil
	}

	acquired := largestPositiveFor(deltas, targetToken)
	if acquired == nil {
		return nil // target token not involved, or involved but not acquired
	}
	spent := largestNegativeExcept(deltas, targetToken)
	if spent == nil {
		return nil // no counter-asset consumed
	}

	base := domain.AcquisitionRecord{
		TransactionHash: tx.Signature,
		TargetToken:     targetToken,
		CounterToken:    spent.Mint,
		AmountAcquired:  acquired.Amount.String(),
		AmountSpent:     new(big.Int).Abs(spent.Amount).String(),
		TargetDecimals:  acquired.Decimals,
		CounterDecimals: spent.Decimals,
		BlockTimestamp:  tx.BlockTime,
		BlockHeight:     tx.Slot,
		AcquirerAddress: feePayer(tx),
		UnitPrice:       unitPrice(spent.Amount, acquired.Amount),
	}

	// Every matched acquisition instruction classifies independently;
	// duplicates for the same transaction are deliberate and left to
	// consumers to deduplicate by hash if they care.
	var records []domain.AcquisitionRecord
	for i := range instructions {
		ins := &instructions[i]
		if !ins.Matched() || !decode.IsAcquisitionOp(ins.Operation) {
			continue
		}
		r := base
		r.ExchangeName = ins.Exchange
		r.OperationType = ins.Operation
		r.ProgramID = ins.ProgramID
		r.Confidence = domain.ConfidenceHigh
		records = append(records, r)
	}
	if len(records) > 0 {
		return records
	}

	// No matched operation. The balance heuristic still holds, so the
	// transaction is reported rather than dropped, attributed to a known
	// program when one appeared.
	r := base
	r.ExchangeName = domain.ExchangeUnknown
	r.OperationType = domain.OperationUnmatched
	if len(instructions) > 0 {
		r.ExchangeName = instructions[0].Exchange
		r.ProgramID = instructions[0].ProgramID
	}
	r.Confidence = domain.ConfidenceMedium
	if payerIsProgramDerived(base.AcquirerAddress) {
		// A program-derived address signed for the transaction, so the
		// fee payer is not a user wallet and attribution is weak.
		r.Confidence = domain.ConfidenceLow
	}
	return []domain.AcquisitionRecord{r}
}

// largestPositiveFor returns the largest-magnitude positive delta of the
// given mint, or nil when none exists. First encountered wins ties.
func largestPositiveFor(deltas []domain.BalanceDelta, mint string) *domain.BalanceDelta {
	var best *domain.BalanceDelta
	for i := range deltas {
		d := &deltas[i]
		if d.Mint != mint || !d.Positive() {
			continue
		}
		if best == nil || d.Amount.Cmp(best.Amount) > 0 {
			best = d
		}
	}
	return best
}

// largestNegativeExcept returns the largest-magnitude negative delta of
// any mint other than the excluded one. First encountered wins ties.
func largestNegativeExcept(deltas []domain.BalanceDelta, exclude string) *domain.BalanceDelta {
	var best *domain.BalanceDelta
	for i := range deltas {
		d := &deltas[i]
		if d.Mint == exclude || d.Amount.Sign() >= 0 {
			continue
		}
		if best == nil || d.Amount.Cmp(best.Amount) < 0 {
			best = d
		}
	}
	return best
}

// unitPrice renders spent/acquired in raw base units with fixed
// precision. Zero acquired never faults.
func unitPrice(spent, acquired *big.Int) string {
	if acquired.Sign() == 0 {
		return "0"
	}
	s := decimal.NewFromBigInt(new(big.Int).Abs(spent), 0)
	a := decimal.NewFromBigInt(acquired, 0)
	return s.Div(a).StringFixed(unitPriceDigits)
}

func feePayer(tx *solana.Transaction) string {
	if len(tx.AccountKeys) == 0 {
		return ""
	}
	return tx.AccountKeys[0]
}
