package solana

import "context"

// RPCClient defines the Solana RPC surface the block source consumes.
type RPCClient interface {
	// GetSlot retrieves the current slot.
	GetSlot(ctx context.Context) (int64, error)

	// GetBlock retrieves a block by slot number with full transaction
	// detail. Returns ErrBlockUnavailable for pruned or skipped slots
	// and ErrThrottled for rate-limit rejections.
	GetBlock(ctx context.Context, slot int64) (*Block, error)

	// GetBlockTime retrieves the estimated production time of a block.
	GetBlockTime(ctx context.Context, slot int64) (*int64, error)
}
