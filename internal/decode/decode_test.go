package decode

import (
	"encoding/binary"
	"reflect"
	"testing"

	"github.com/mr-tron/base58"

	"solana-buy-tracker/internal/domain"
	"solana-buy-tracker/internal/solana"
)

// payloadFor builds the base58 instruction data for a discriminator plus
// optional argument bytes.
func payloadFor(disc uint64, args ...byte) string {
	buf := make([]byte, 8, 8+len(args))
	binary.BigEndian.PutUint64(buf, disc)
	buf = append(buf, args...)
	return base58.Encode(buf)
}

func TestInstructionsMatchesBuyDiscriminator(t *testing.T) {
	tx := &solana.Transaction{
		AccountKeys: []string{"feePayer", PumpFunProgram},
		Instructions: []solana.Instruction{
			{ProgramIDIndex: 1, Accounts: []int{0, 2, 3}, Data: payloadFor(discPumpFunBuy, 1, 2, 3)},
		},
	}

	decoded := Instructions(tx)
	if len(decoded) != 1 {
		t.Fatalf("got %d instructions, want 1", len(decoded))
	}

	d := decoded[0]
	if d.Operation != "buy" {
		t.Errorf("operation = %q, want buy", d.Operation)
	}
	if d.Exchange != "pumpfun" {
		t.Errorf("exchange = %q, want pumpfun", d.Exchange)
	}
	if !d.Matched() {
		t.Error("buy instruction should report as matched")
	}
	if d.IsInner || d.ParentIndex != -1 {
		t.Errorf("top-level instruction flagged inner (parent=%d)", d.ParentIndex)
	}
	if len(d.Payload) != 11 {
		t.Errorf("payload length = %d, want 11 (discriminator + args)", len(d.Payload))
	}
}

func TestInstructionsDropsUnknownProgram(t *testing.T) {
	tx := &solana.Transaction{
		AccountKeys: []string{"feePayer", "SomeUnknownProgram1111111111111111111111111"},
		Instructions: []solana.Instruction{
			{ProgramIDIndex: 1, Data: payloadFor(discPumpFunBuy)},
		},
	}

	if decoded := Instructions(tx); len(decoded) != 0 {
		t.Errorf("got %d instructions from an unknown program, want 0", len(decoded))
	}
}

func TestInstructionsKeepsUnmatchedFromKnownProgram(t *testing.T) {
	tx := &solana.Transaction{
		AccountKeys: []string{"feePayer", RaydiumAMMV4Program},
		Instructions: []solana.Instruction{
			// Single-byte tag, far too short for an 8-byte discriminator.
			{ProgramIDIndex: 1, Data: base58.Encode([]byte{9})},
		},
	}

	decoded := Instructions(tx)
	if len(decoded) != 1 {
		t.Fatalf("got %d instructions, want 1", len(decoded))
	}
	if decoded[0].Operation != domain.OperationUnmatched {
		t.Errorf("operation = %q, want unmatched", decoded[0].Operation)
	}
	if decoded[0].Matched() {
		t.Error("unmatched instruction should not report as matched")
	}
	if decoded[0].Exchange != "raydium_amm" {
		t.Errorf("exchange = %q, want raydium_amm", decoded[0].Exchange)
	}
}

func TestInstructionsWalksInnerInstructions(t *testing.T) {
	tx := &solana.Transaction{
		AccountKeys: []string{"feePayer", "Router1111111111111111111111111111111111111", OrcaWhirlpoolProgram},
		Instructions: []solana.Instruction{
			{ProgramIDIndex: 1, Data: base58.Encode([]byte{1, 2, 3, 4, 5, 6, 7, 8})},
		},
		InnerInstructions: []solana.InnerInstructionGroup{
			{
				Index: 0,
				Instructions: []solana.Instruction{
					{ProgramIDIndex: 2, Accounts: []int{0}, Data: payloadFor(discSwapV2)},
				},
			},
		},
	}

	decoded := Instructions(tx)
	if len(decoded) != 1 {
		t.Fatalf("got %d instructions, want 1 (router itself is unknown)", len(decoded))
	}

	d := decoded[0]
	if !d.IsInner || d.ParentIndex != 0 {
		t.Errorf("inner instruction not attributed to parent 0: inner=%v parent=%d", d.IsInner, d.ParentIndex)
	}
	if d.Operation != "swap_v2" || d.Exchange != "orca_whirlpool" {
		t.Errorf("got %s/%s, want orca_whirlpool/swap_v2", d.Exchange, d.Operation)
	}
}

func TestInstructionsSkipsMalformedData(t *testing.T) {
	tx := &solana.Transaction{
		AccountKeys: []string{"feePayer", PumpFunProgram},
		Instructions: []solana.Instruction{
			{ProgramIDIndex: 1, Data: "0OIl not base58"},
		},
	}

	if decoded := Instructions(tx); len(decoded) != 0 {
		t.Errorf("got %d instructions from malformed data, want 0", len(decoded))
	}
}

func TestInstructionsOutOfRangeProgramIndex(t *testing.T) {
	tx := &solana.Transaction{
		AccountKeys: []string{"feePayer"},
		Instructions: []solana.Instruction{
			{ProgramIDIndex: 7, Data: payloadFor(discPumpFunBuy)},
		},
	}

	if decoded := Instructions(tx); len(decoded) != 0 {
		t.Errorf("got %d instructions with out-of-range program index, want 0", len(decoded))
	}
}

func TestInstructionsIdempotent(t *testing.T) {
	tx := &solana.Transaction{
		AccountKeys: []string{"feePayer", PumpFunProgram, MeteoraDLMMProgram},
		Instructions: []solana.Instruction{
			{ProgramIDIndex: 1, Accounts: []int{0}, Data: payloadFor(discPumpFunSell)},
			{ProgramIDIndex: 2, Accounts: []int{0, 1}, Data: payloadFor(discDLMMSwap2)},
		},
	}

	first := Instructions(tx)
	second := Instructions(tx)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("decoding is not idempotent:\nfirst  = %+v\nsecond = %+v", first, second)
	}
	if len(first) != 2 || first[0].Operation != "sell" || first[1].Operation != "swap2" {
		t.Errorf("unexpected decode result: %+v", first)
	}
}
