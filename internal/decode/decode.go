// Package decode filters a transaction's instructions down to the DEX
// programs the tracker understands and names their operations by Anchor
// discriminator.
package decode

import (
	"encoding/binary"

	"github.com/mr-tron/base58"

	"solana-buy-tracker/internal/domain"
	"solana-buy-tracker/internal/solana"
)

// topLevelParent marks instructions that are not nested under another one.
const topLevelParent = -1

// Instructions returns the decoded view of every relevant instruction in
// the transaction, top-level ones first in source order, then inner ones
// grouped under their parents. Instructions addressed to unknown programs
// are dropped. Instructions addressed to a known program whose
// discriminator is not in the table are kept with the unmatched
// operation. Decoding is pure, so running it twice yields the same slice.
func Instructions(tx *solana.Transaction) []domain.DecodedInstruction {
	var out []domain.DecodedInstruction

	for i, ins := range tx.Instructions {
		if d, ok := decodeOne(tx, ins, i, topLevelParent); ok {
			out = append(out, d)
		}
	}

	for _, group := range tx.InnerInstructions {
		for j, ins := range group.Instructions {
			if d, ok := decodeOne(tx, ins, j, group.Index); ok {
				out = append(out, d)
			}
		}
	}

	return out
}

func decodeOne(tx *solana.Transaction, ins solana.Instruction, sourceIndex, parent int) (domain.DecodedInstruction, bool) {
	if ins.ProgramIDIndex < 0 || ins.ProgramIDIndex >= len(tx.AccountKeys) {
		return domain.DecodedInstruction{}, false
	}
	programID := tx.AccountKeys[ins.ProgramIDIndex]
	prog, ok := programs[programID]
	if !ok {
		return domain.DecodedInstruction{}, false
	}

	payload, err := base58.Decode(ins.Data)
	if err != nil {
		// Relevant program but undecodable payload; nothing to name.
		return domain.DecodedInstruction{}, false
	}

	return domain.DecodedInstruction{
		SourceIndex:    sourceIndex,
		ProgramID:      programID,
		Exchange:       prog.exchange,
		AccountIndices: ins.Accounts,
		Payload:        payload,
		Operation:      matchOperation(prog.ops, payload),
		IsInner:        parent != topLevelParent,
		ParentIndex:    parent,
	}, true
}

// matchOperation names the instruction by its leading 8-byte
// discriminator. Payloads shorter than 8 bytes can never match.
func matchOperation(ops map[uint64]string, payload []byte) string {
	if len(payload) < 8 {
		return domain.OperationUnmatched
	}
	disc := binary.BigEndian.Uint64(payload[:8])
	if op, ok := ops[disc]; ok {
		return op
	}
	return domain.OperationUnmatched
}
