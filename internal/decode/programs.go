package decode

// Program addresses of the venues the decoder recognizes.
const (
	PumpFunProgram       = "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"
	PumpAMMProgram       = "pAMMBay6oceH9fJKBRHGP5D4bD4sWpmSwMn52FMfXEA"
	RaydiumAMMV4Program  = "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8"
	RaydiumCLMMProgram   = "CAMMCzo5YL8w4VFF8KVHrK22GGUsp5VTaW7grrKgrWqK"
	RaydiumCPMMProgram   = "CPMMoo8L3F4NbTegBCKVNunggL7H1ZpdTHKxQB5qKP1C"
	OrcaWhirlpoolProgram = "whirLbMiicVdio4qvUfM5KAg6Ct8VwpYzGff3uctyCc"
	MeteoraDLMMProgram   = "LBUZKhRxPF3XUpBCjp4YzTKgLccjZhTSDM9YuVaPwxo"
)

// Anchor instruction discriminators, first 8 payload bytes read big-endian.
const (
	discPumpFunBuy     uint64 = 0x66063d1201daebea
	discPumpFunSell    uint64 = 0x33e685a4017f83ad
	discPumpFunCreate  uint64 = 0x181ec828051c0777
	discPumpFunMigrate uint64 = 0x9beae792ec9ea21e

	discSwap   uint64 = 0xf8c69e91e17587c8
	discSwapV2 uint64 = 0x2b04ed0b1ac91e62

	discCPMMSwapBaseInput  uint64 = 0x8fbe5adac41e33de
	discCPMMSwapBaseOutput uint64 = 0x37d96256a34ab4ad

	discDLMMSwap2               uint64 = 0x414b3f4ceb5b5b88
	discDLMMSwapExactOut        uint64 = 0xfa49652126cf4bb8
	discDLMMSwapExactOut2       uint64 = 0x2bd7f784893cf351
	discDLMMSwapWithPriceImpact uint64 = 0x4a62c0d6b1334b33
)

// program binds an exchange label to its discriminator table.
type program struct {
	exchange string
	ops      map[uint64]string
}

// programs maps program addresses to the operations the tracker can name.
// Instructions from any other program are irrelevant and dropped;
// instructions from these programs with an unlisted discriminator are kept
// as unmatched so the balance heuristic can still classify the
// transaction.
var programs = map[string]program{
	PumpFunProgram: {
		exchange: "pumpfun",
		ops: map[uint64]string{
			discPumpFunBuy:     "buy",
			discPumpFunSell:    "sell",
			discPumpFunCreate:  "create",
			discPumpFunMigrate: "migrate",
		},
	},
	PumpAMMProgram: {
		exchange: "pump_amm",
		ops: map[uint64]string{
			discPumpFunBuy:  "buy",
			discPumpFunSell: "sell",
		},
	},
	// Raydium AMM v4 predates Anchor and tags instructions with a single
	// byte, so no 8-byte discriminator can match. Its swaps surface as
	// unmatched and rely on the balance heuristic.
	RaydiumAMMV4Program: {
		exchange: "raydium_amm",
		ops:      map[uint64]string{},
	},
	RaydiumCLMMProgram: {
		exchange: "raydium_clmm",
		ops: map[uint64]string{
			discSwap:   "swap",
			discSwapV2: "swap_v2",
		},
	},
	RaydiumCPMMProgram: {
		exchange: "raydium_cpmm",
		ops: map[uint64]string{
			discCPMMSwapBaseInput:  "swap_base_input",
			discCPMMSwapBaseOutput: "swap_base_output",
		},
	},
	OrcaWhirlpoolProgram: {
		exchange: "orca_whirlpool",
		ops: map[uint64]string{
			discSwap:   "swap",
			discSwapV2: "swap_v2",
		},
	},
	MeteoraDLMMProgram: {
		exchange: "meteora_dlmm",
		ops: map[uint64]string{
			discSwap:                "swap",
			discDLMMSwap2:           "swap2",
			discDLMMSwapExactOut:    "swap_exact_out",
			discDLMMSwapExactOut2:   "swap_exact_out2",
			discDLMMSwapWithPriceImpact: "swap_with_price_impact2",
		},
	},
}

// acquisitionOps names the operations that move the counter token into a
// pool in exchange for the target token when the target balance rises.
var acquisitionOps = map[string]bool{
	"buy":                     true,
	"swap":                    true,
	"swap_v2":                 true,
	"swap2":                   true,
	"swap_base_input":         true,
	"swap_base_output":        true,
	"swap_exact_out":          true,
	"swap_exact_out2":         true,
	"swap_with_price_impact2": true,
}

// IsAcquisitionOp reports whether a matched operation name can represent
// a token acquisition.
func IsAcquisitionOp(op string) bool {
	return acquisitionOps[op]
}

// KnownProgram reports whether the decoder has a table for the program.
func KnownProgram(programID string) bool {
	_, ok := programs[programID]
	return ok
}
