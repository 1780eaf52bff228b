package solana

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

// rpcServer serves canned JSON-RPC responses keyed by method.
func rpcServer(t *testing.T, handler func(method string, params []interface{}) (interface{}, *rpcError)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		result, rpcErr := handler(req.Method, req.Params)
		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		if rpcErr != nil {
			resp["error"] = map[string]interface{}{"code": rpcErr.Code, "message": rpcErr.Message}
		} else {
			resp["result"] = result
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestGetSlot(t *testing.T) {
	srv := rpcServer(t, func(method string, _ []interface{}) (interface{}, *rpcError) {
		if method != "getSlot" {
			t.Errorf("method = %q, want getSlot", method)
		}
		return int64(250000123), nil
	})
	defer srv.Close()

	client := NewHTTPClient(srv.URL)
	slot, err := client.GetSlot(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if slot != 250000123 {
		t.Errorf("slot = %d, want 250000123", slot)
	}
}

func TestHTTPTooManyRequestsIsThrottled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL)
	if _, err := client.GetSlot(context.Background()); !errors.Is(err, ErrThrottled) {
		t.Errorf("err = %v, want ErrThrottled", err)
	}
}

func TestRPCThrottleMessageIsThrottled(t *testing.T) {
	srv := rpcServer(t, func(string, []interface{}) (interface{}, *rpcError) {
		return nil, &rpcError{Code: -32005, Message: "Too many requests for a specific RPC call"}
	})
	defer srv.Close()

	client := NewHTTPClient(srv.URL)
	if _, err := client.GetSlot(context.Background()); !errors.Is(err, ErrThrottled) {
		t.Errorf("err = %v, want ErrThrottled", err)
	}
}

func TestBlockUnavailableCodes(t *testing.T) {
	for _, code := range []int{-32004, -32007, -32009} {
		t.Run(fmt.Sprintf("code_%d", code), func(t *testing.T) {
			srv := rpcServer(t, func(string, []interface{}) (interface{}, *rpcError) {
				return nil, &rpcError{Code: code, Message: "slot was skipped"}
			})
			defer srv.Close()

			client := NewHTTPClient(srv.URL)
			if _, err := client.GetBlock(context.Background(), 42); !errors.Is(err, ErrBlockUnavailable) {
				t.Errorf("err = %v, want ErrBlockUnavailable", err)
			}
		})
	}
}

func TestUnrecognizedRPCErrorPassesThrough(t *testing.T) {
	srv := rpcServer(t, func(string, []interface{}) (interface{}, *rpcError) {
		return nil, &rpcError{Code: -32602, Message: "invalid params"}
	})
	defer srv.Close()

	client := NewHTTPClient(srv.URL)
	_, err := client.GetSlot(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrThrottled) || errors.Is(err, ErrBlockUnavailable) {
		t.Errorf("err = %v, must not map to a typed error", err)
	}
}

func TestGetBlockTimeNull(t *testing.T) {
	srv := rpcServer(t, func(string, []interface{}) (interface{}, *rpcError) {
		return nil, nil
	})
	defer srv.Close()

	client := NewHTTPClient(srv.URL)
	ts, err := client.GetBlockTime(context.Background(), 42)
	if err != nil {
		t.Fatal(err)
	}
	if ts != nil {
		t.Errorf("block time = %v, want nil for null result", *ts)
	}
}

func TestGetBlockParsing(t *testing.T) {
	blockJSON := `{
		"blockTime": 1700000000,
		"transactions": [
			{
				"transaction": {
					"signatures": ["5SigOne"],
					"message": {
						"accountKeys": ["PayerKey", "ProgramKey"],
						"instructions": [
							{"programIdIndex": 1, "accounts": [0], "data": "3Bxs"}
						]
					}
				},
				"meta": {
					"err": null,
					"innerInstructions": [
						{"index": 0, "instructions": [{"programIdIndex": 1, "accounts": [0], "data": "4fYN"}]}
					],
					"loadedAddresses": {
						"writable": ["LoadedWritable"],
						"readonly": ["LoadedReadonly"]
					},
					"preTokenBalances": [
						{"accountIndex": 2, "mint": "MintA", "uiTokenAmount": {"amount": "100", "decimals": 6}}
					],
					"postTokenBalances": [
						{"accountIndex": 2, "mint": "MintA", "uiTokenAmount": {"amount": "250", "decimals": 6}}
					]
				}
			},
			{
				"transaction": {"signatures": ["5SigTwo"], "message": {"accountKeys": ["PayerKey"], "instructions": []}},
				"meta": {"err": {"InstructionError": [0, "Custom"]}, "innerInstructions": [], "loadedAddresses": {"writable": [], "readonly": []}}
			}
		]
	}`

	srv := rpcServer(t, func(method string, params []interface{}) (interface{}, *rpcError) {
		if method != "getBlock" {
			t.Errorf("method = %q, want getBlock", method)
		}
		var raw json.RawMessage = []byte(blockJSON)
		return raw, nil
	})
	defer srv.Close()

	client := NewHTTPClient(srv.URL)
	block, err := client.GetBlock(context.Background(), 250000000)
	if err != nil {
		t.Fatal(err)
	}

	if block.Slot != 250000000 {
		t.Errorf("slot = %d, want 250000000", block.Slot)
	}
	if block.BlockTime == nil || *block.BlockTime != 1700000000 {
		t.Errorf("block time = %v, want 1700000000", block.BlockTime)
	}
	if len(block.Transactions) != 2 {
		t.Fatalf("got %d transactions, want 2", len(block.Transactions))
	}

	tx := block.Transactions[0]
	if tx.Signature != "5SigOne" {
		t.Errorf("signature = %q", tx.Signature)
	}
	if tx.Failed {
		t.Error("transaction 0 must not be failed")
	}
	if tx.BlockTime != 1700000000 {
		t.Errorf("tx block time = %d", tx.BlockTime)
	}

	// Static keys first, then loaded writable, then loaded readonly.
	wantKeys := []string{"PayerKey", "ProgramKey", "LoadedWritable", "LoadedReadonly"}
	if len(tx.AccountKeys) != len(wantKeys) {
		t.Fatalf("account keys = %v, want %v", tx.AccountKeys, wantKeys)
	}
	for i, key := range wantKeys {
		if tx.AccountKeys[i] != key {
			t.Errorf("account key %d = %q, want %q", i, tx.AccountKeys[i], key)
		}
	}

	if len(tx.Instructions) != 1 || tx.Instructions[0].ProgramIDIndex != 1 {
		t.Errorf("instructions = %+v", tx.Instructions)
	}
	if len(tx.InnerInstructions) != 1 || tx.InnerInstructions[0].Index != 0 {
		t.Errorf("inner instructions = %+v", tx.InnerInstructions)
	}

	if len(tx.PreTokenBalances) != 1 {
		t.Fatalf("pre balances = %+v", tx.PreTokenBalances)
	}
	pre := tx.PreTokenBalances[0]
	if pre.AccountIndex != 2 || pre.Mint != "MintA" || pre.Amount != "100" || pre.Decimals != 6 {
		t.Errorf("pre balance = %+v", pre)
	}
	if len(tx.PostTokenBalances) != 1 || tx.PostTokenBalances[0].Amount != "250" {
		t.Errorf("post balances = %+v", tx.PostTokenBalances)
	}

	if !block.Transactions[1].Failed {
		t.Error("transaction 1 must be marked failed")
	}
}
