package classify

import (
	"filippo.io/edwards25519"

	"github.com/mr-tron/base58"
)

// payerIsProgramDerived reports whether the address is a well-formed
// 32-byte key that does not lie on the ed25519 curve. Program-derived
// addresses are constructed off-curve on purpose, so an off-curve fee
// payer means a program, not a wallet, initiated the transaction.
// Addresses that do not decode to 32 bytes are not judged.
func payerIsProgramDerived(address string) bool {
	raw, err := base58.Decode(address)
	if err != nil || len(raw) != 32 {
		return false
	}
	_, err = new(edwards25519.Point).SetBytes(raw)
	return err != nil
}
