package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// DefaultTimeout is the default HTTP client timeout.
const DefaultTimeout = 30 * time.Second

// Solana JSON-RPC error codes that indicate a slot has no retrievable block.
const (
	rpcErrBlockNotAvailable = -32004 // block not available for slot
	rpcErrSlotSkipped       = -32007 // slot was skipped or missing in long-term storage
	rpcErrLongTermSkipped   = -32009 // slot missing in long-term storage
)

// HTTPClient implements RPCClient using HTTP JSON-RPC 2.0.
//
// The client performs exactly one attempt per call and maps failures to
// typed errors (ErrThrottled, ErrBlockUnavailable); retry, backoff and
// endpoint rotation policy is owned by the block source.
type HTTPClient struct {
	endpoint  string
	client    *http.Client
	requestID atomic.Uint64
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// NewHTTPClient creates a new Solana RPC HTTP client.
func NewHTTPClient(endpoint string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		endpoint: endpoint,
		client:   &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the endpoint URL this client talks to.
func (c *HTTPClient) Endpoint() string {
	return c.endpoint
}

// rpcRequest represents a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

// rpcResponse represents a JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// rpcError represents a JSON-RPC 2.0 error.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// call performs a single JSON-RPC call.
func (c *HTTPClient) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	reqBody := rpcRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}

	respBody, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return ErrThrottled
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}

	if rpcResp.Error != nil {
		return mapRPCError(rpcResp.Error)
	}

	if result != nil && rpcResp.Result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("unmarshal result: %w", err)
		}
	}

	return nil
}

// mapRPCError translates node error codes into the typed errors callers
// branch on.
func mapRPCError(e *rpcError) error {
	switch e.Code {
	case rpcErrBlockNotAvailable, rpcErrSlotSkipped, rpcErrLongTermSkipped:
		return fmt.Errorf("%w: %s", ErrBlockUnavailable, e.Message)
	}
	if strings.Contains(strings.ToLower(e.Message), "too many requests") {
		return fmt.Errorf("%w: %s", ErrThrottled, e.Message)
	}
	return e
}

// GetSlot retrieves the current slot.
func (c *HTTPClient) GetSlot(ctx context.Context) (int64, error) {
	var result int64
	if err := c.call(ctx, "getSlot", nil, &result); err != nil {
		return 0, err
	}
	return result, nil
}

// GetBlockTime retrieves the estimated production time of a block.
func (c *HTTPClient) GetBlockTime(ctx context.Context, slot int64) (*int64, error) {
	params := []interface{}{slot}
	var result *int64
	if err := c.call(ctx, "getBlockTime", params, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// GetBlock retrieves a block by slot number with full transaction detail.
func (c *HTTPClient) GetBlock(ctx context.Context, slot int64) (*Block, error) {
	params := []interface{}{
		slot,
		map[string]interface{}{
			"encoding":                       "json",
			"transactionDetails":             "full",
			"maxSupportedTransactionVersion": 0,
			"rewards":                        false,
		},
	}

	var result getBlockResult
	if err := c.call(ctx, "getBlock", params, &result); err != nil {
		return nil, err
	}

	block := &Block{
		Slot:      slot,
		BlockTime: result.BlockTime,
	}

	for _, wrapper := range result.Transactions {
		tx := Transaction{Slot: slot}
		if result.BlockTime != nil {
			tx.BlockTime = *result.BlockTime
		}

		if len(wrapper.Transaction.Signatures) > 0 {
			tx.Signature = wrapper.Transaction.Signatures[0]
		}

		if msg := wrapper.Transaction.Message; msg != nil {
			tx.AccountKeys = append(tx.AccountKeys, msg.AccountKeys...)
			tx.Instructions = msg.Instructions
		}

		if meta := wrapper.Meta; meta != nil {
			tx.Failed = meta.Err != nil
			tx.InnerInstructions = meta.InnerInstructions

			// Versioned transactions resolve extra accounts from lookup
			// tables; they extend the static key list in this order.
			tx.AccountKeys = append(tx.AccountKeys, meta.LoadedAddresses.Writable...)
			tx.AccountKeys = append(tx.AccountKeys, meta.LoadedAddresses.Readonly...)

			tx.PreTokenBalances = convertTokenBalances(meta.PreTokenBalances)
			tx.PostTokenBalances = convertTokenBalances(meta.PostTokenBalances)
		}

		block.Transactions = append(block.Transactions, tx)
	}

	return block, nil
}

// getBlockResult is the raw RPC response for getBlock.
type getBlockResult struct {
	BlockTime    *int64              `json:"blockTime"`
	Transactions []getBlockTxWrapper `json:"transactions"`
}

type getBlockTxWrapper struct {
	Transaction getBlockTx   `json:"transaction"`
	Meta        *getBlockMeta `json:"meta"`
}

type getBlockTx struct {
	Signatures []string         `json:"signatures"`
	Message    *getBlockMessage `json:"message"`
}

type getBlockMessage struct {
	AccountKeys  []string      `json:"accountKeys"`
	Instructions []Instruction `json:"instructions"`
}

type getBlockMeta struct {
	Err               interface{}             `json:"err"`
	InnerInstructions []InnerInstructionGroup `json:"innerInstructions"`
	LoadedAddresses   loadedAddresses         `json:"loadedAddresses"`
	PreTokenBalances  []rawTokenBalance       `json:"preTokenBalances"`
	PostTokenBalances []rawTokenBalance       `json:"postTokenBalances"`
}

type loadedAddresses struct {
	Writable []string `json:"writable"`
	Readonly []string `json:"readonly"`
}

type rawTokenBalance struct {
	AccountIndex  int           `json:"accountIndex"`
	Mint          string        `json:"mint"`
	UITokenAmount uiTokenAmount `json:"uiTokenAmount"`
}

type uiTokenAmount struct {
	Amount   string `json:"amount"`
	Decimals int    `json:"decimals"`
}

func convertTokenBalances(raw []rawTokenBalance) []TokenBalance {
	if len(raw) == 0 {
		return nil
	}
	out := make([]TokenBalance, len(raw))
	for i, b := range raw {
		out[i] = TokenBalance{
			AccountIndex: b.AccountIndex,
			Mint:         b.Mint,
			Amount:       b.UITokenAmount.Amount,
			Decimals:     b.UITokenAmount.Decimals,
		}
	}
	return out
}

// Verify interface compliance at compile time.
var _ RPCClient = (*HTTPClient)(nil)
