// Package bundle defines instructions and the atomic, signed bundles that
// carry them.
package bundle

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/0gfoundation/0g-nonce-gate/internal/address"
	"github.com/0gfoundation/0g-nonce-gate/internal/codec"
)

// AccountMeta names an account an instruction touches and the privileges
// it is granted on it.
type AccountMeta struct {
	Key      address.Address `cbor:"1,keyasint" json:"key"`
	Signer   bool            `cbor:"2,keyasint,omitempty" json:"signer,omitempty"`
	Writable bool            `cbor:"3,keyasint,omitempty" json:"writable,omitempty"`
}

func Readonly(key address.Address) AccountMeta { return AccountMeta{Key: key} }

func Writable(key address.Address) AccountMeta { return AccountMeta{Key: key, Writable: true} }

func Signer(key address.Address) AccountMeta { return AccountMeta{Key: key, Signer: true} }

func WritableSigner(key address.Address) AccountMeta {
	return AccountMeta{Key: key, Signer: true, Writable: true}
}

// Instruction is one call into a program.
type Instruction struct {
	Program  address.Address `cbor:"1,keyasint" json:"program"`
	Accounts []AccountMeta   `cbor:"2,keyasint,omitempty" json:"accounts,omitempty"`
	Data     []byte          `cbor:"3,keyasint" json:"data"`
}

// Signature is one signer's ed25519 signature over the bundle message.
type Signature struct {
	Signer address.Address `cbor:"1,keyasint"`
	Sig    []byte          `cbor:"2,keyasint"`
}

// Bundle is an ordered list of instructions that either all take effect or
// none do.
type Bundle struct {
	Instructions []Instruction `cbor:"1,keyasint"`
	Signatures   []Signature   `cbor:"2,keyasint,omitempty"`
}

var (
	ErrEmptyBundle     = errors.New("bundle: no instructions")
	ErrBadSignature    = errors.New("bundle: signature does not verify")
	ErrDuplicateSigner = errors.New("bundle: duplicate signer")
)

func New(ixs ...Instruction) *Bundle {
	return &Bundle{Instructions: ixs}
}

// Message is the byte string every signer signs.
func (b *Bundle) Message() ([]byte, error) {
	if len(b.Instructions) == 0 {
		return nil, ErrEmptyBundle
	}
	return codec.Marshal(b.Instructions)
}

// Sign appends a signature for each key. Instructions must not change
// afterwards.
func (b *Bundle) Sign(keys ...ed25519.PrivateKey) error {
	msg, err := b.Message()
	if err != nil {
		return err
	}
	for _, k := range keys {
		b.Signatures = append(b.Signatures, Signature{
			Signer: address.FromPublicKey(k.Public().(ed25519.PublicKey)),
			Sig:    ed25519.Sign(k, msg),
		})
	}
	return nil
}

// Signers verifies every attached signature and returns the signer set.
func (b *Bundle) Signers() (map[address.Address]bool, error) {
	msg, err := b.Message()
	if err != nil {
		return nil, err
	}
	out := make(map[address.Address]bool, len(b.Signatures))
	for _, s := range b.Signatures {
		if out[s.Signer] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSigner, s.Signer)
		}
		if len(s.Sig) != ed25519.SignatureSize || !ed25519.Verify(s.Signer.PublicKey(), msg, s.Sig) {
			return nil, fmt.Errorf("%w: %s", ErrBadSignature, s.Signer)
		}
		out[s.Signer] = true
	}
	return out, nil
}

// Encode serialises the bundle for the queue and the HTTP API.
func (b *Bundle) Encode() ([]byte, error) { return codec.Marshal(b) }

func Decode(raw []byte) (*Bundle, error) {
	var b Bundle
	if err := codec.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("bundle: decode: %w", err)
	}
	if len(b.Instructions) == 0 {
		return nil, ErrEmptyBundle
	}
	return &b, nil
}
