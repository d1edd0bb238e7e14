// Package authz binds an off-chain authorization to an on-ledger claim.
//
// The issuer signs a fixed 140-byte payload describing the claim. The claim
// instruction cannot verify ed25519 itself; instead it requires that the
// instruction just before it in the same bundle is a signature-verification
// instruction for exactly that payload, signature and public key. If that
// instruction's cryptographic check fails the whole bundle fails, so a claim
// that passes VerifyCompanion is covered by a valid signature.
package authz

import (
	"crypto/ed25519"
	"encoding/binary"

	"github.com/0gfoundation/0g-nonce-gate/internal/address"
)

// PayloadLen is the size of the canonical payload.
const PayloadLen = 4 + 8 + 4*address.Size

// Claim is the set of facts the issuer vouches for.
type Claim struct {
	Nonce           uint32          `json:"nonce"`
	Amount          uint64          `json:"amount"`
	Mint            address.Address `json:"mint"`
	Recipient       address.Address `json:"recipient"`
	Project         address.Address `json:"project"`
	BusinessProject address.Address `json:"business_project"`
}

// Payload serialises c as
// nonce(u32 LE) ‖ amount(u64 LE) ‖ mint ‖ recipient ‖ project ‖ businessProject.
func (c Claim) Payload() []byte {
	b := make([]byte, 0, PayloadLen)
	b = binary.LittleEndian.AppendUint32(b, c.Nonce)
	b = binary.LittleEndian.AppendUint64(b, c.Amount)
	b = append(b, c.Mint[:]...)
	b = append(b, c.Recipient[:]...)
	b = append(b, c.Project[:]...)
	b = append(b, c.BusinessProject[:]...)
	return b
}

// Sign signs the canonical payload of c.
func Sign(c Claim, priv ed25519.PrivateKey) []byte {
	return ed25519.Sign(priv, c.Payload())
}

// Verify checks sig over payload. It never panics on malformed input.
func Verify(payload, sig []byte, pub ed25519.PublicKey) bool {
	if len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, payload, sig)
}
