package domain

// OperationUnmatched marks an instruction from a known exchange program
// whose leading byte signature is not in the operation table. Such
// instructions are still relevant: AMM signatures are not exhaustively
// catalogued.
const OperationUnmatched = "unmatched"

// DecodedInstruction is one instruction attributed to a known exchange
// program. Owned by the transaction-processing call that produced it and
// discarded after classification.
type DecodedInstruction struct {
	SourceIndex    int    // position among top-level instructions, or within its inner group
	ProgramID      string // base58 program address
	Exchange       string // human-readable exchange name
	AccountIndices []int  // indices into the transaction's account list
	Payload        []byte // raw instruction data
	Operation      string // matched operation name, or OperationUnmatched
	IsInner        bool
	ParentIndex    int // parent top-level instruction index; -1 for top-level
}

// Matched reports whether the instruction's operation signature was found
// in the program's operation table.
func (d *DecodedInstruction) Matched() bool {
	return d.Operation != OperationUnmatched
}
