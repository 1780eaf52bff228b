package solana

// Block is one produced block (slot) with full transaction detail.
type Block struct {
	Slot         int64
	BlockTime    *int64
	Transactions []Transaction
}

// Transaction carries everything the pipeline needs from one transaction:
// the ordered account list, top-level and inner instructions, success
// status, and the pre/post token balance snapshots.
type Transaction struct {
	Slot      int64
	Signature string
	BlockTime int64 // Unix timestamp (seconds), 0 if unknown
	Failed    bool

	// AccountKeys is the ordered account list, static keys first, then
	// addresses loaded from lookup tables (writable, then readonly).
	// Instruction account indices resolve against this list. The fee
	// payer is always the first entry.
	AccountKeys []string

	Instructions      []Instruction
	InnerInstructions []InnerInstructionGroup

	PreTokenBalances  []TokenBalance
	PostTokenBalances []TokenBalance
}

// Instruction is one instruction as returned by getBlock with "json"
// encoding: the payload stays base58-encoded until decoding.
type Instruction struct {
	ProgramIDIndex int    `json:"programIdIndex"`
	Accounts       []int  `json:"accounts"`
	Data           string `json:"data"` // base58
}

// InnerInstructionGroup holds the inner instructions spawned by one
// top-level instruction.
type InnerInstructionGroup struct {
	Index        int           `json:"index"` // parent top-level instruction index
	Instructions []Instruction `json:"instructions"`
}

// TokenBalance is one token-account balance snapshot taken immediately
// before or after a transaction executes.
type TokenBalance struct {
	AccountIndex int    // index into AccountKeys
	Mint         string // token mint address
	Amount       string // raw integer amount, base-10 string
	Decimals     int
}
