// Package ed25519prog is the signature-verification program that runs as
// the companion instruction of a claim. It checks every signature described
// by its header and aborts the bundle if any fails.
package ed25519prog

import (
	"crypto/ed25519"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/0gfoundation/0g-nonce-gate/internal/address"
	"github.com/0gfoundation/0g-nonce-gate/internal/bundle"
	"github.com/0gfoundation/0g-nonce-gate/internal/gateerr"
	"github.com/0gfoundation/0g-nonce-gate/internal/runtime"
)

var ID = address.MustParse("Ed25519SigVerify111111111111111111111111111")

// Instruction data layout for a single signature.
const (
	HeaderLen       = 16
	offsetsStart    = 2
	offsetsLen      = 14
	PublicKeyOffset = HeaderLen
	SignatureOffset = PublicKeyOffset + ed25519.PublicKeySize
	MessageOffset   = SignatureOffset + ed25519.SignatureSize

	// CurrentInstruction in an index field means "this instruction's data".
	CurrentInstruction uint16 = math.MaxUint16
)

// Offsets is one entry of the header.
type Offsets struct {
	SignatureOffset uint16
	SignatureIx     uint16
	PublicKeyOffset uint16
	PublicKeyIx     uint16
	MessageOffset   uint16
	MessageSize     uint16
	MessageIx       uint16
}

var ErrMessageTooLong = errors.New("ed25519prog: message longer than 65535 bytes")

// NewInstruction builds a companion instruction carrying pub, sig and msg
// inline, in that order, after the header.
func NewInstruction(pub ed25519.PublicKey, sig, msg []byte) (bundle.Instruction, error) {
	if len(msg) > math.MaxUint16 {
		return bundle.Instruction{}, ErrMessageTooLong
	}
	data := make([]byte, MessageOffset+len(msg))
	data[0] = 1
	data[1] = 0
	off := Offsets{
		SignatureOffset: SignatureOffset,
		SignatureIx:     CurrentInstruction,
		PublicKeyOffset: PublicKeyOffset,
		PublicKeyIx:     CurrentInstruction,
		MessageOffset:   MessageOffset,
		MessageSize:     uint16(len(msg)),
		MessageIx:       CurrentInstruction,
	}
	off.put(data[offsetsStart : offsetsStart+offsetsLen])
	copy(data[PublicKeyOffset:], pub)
	copy(data[SignatureOffset:], sig)
	copy(data[MessageOffset:], msg)
	return bundle.Instruction{Program: ID, Data: data}, nil
}

// Sign is a convenience that signs msg with priv and wraps the result.
func Sign(priv ed25519.PrivateKey, msg []byte) (bundle.Instruction, error) {
	return NewInstruction(priv.Public().(ed25519.PublicKey), ed25519.Sign(priv, msg), msg)
}

func (o Offsets) put(b []byte) {
	le := binary.LittleEndian
	le.PutUint16(b[0:], o.SignatureOffset)
	le.PutUint16(b[2:], o.SignatureIx)
	le.PutUint16(b[4:], o.PublicKeyOffset)
	le.PutUint16(b[6:], o.PublicKeyIx)
	le.PutUint16(b[8:], o.MessageOffset)
	le.PutUint16(b[10:], o.MessageSize)
	le.PutUint16(b[12:], o.MessageIx)
}

// ParseOffsets reads the i-th header entry.
func ParseOffsets(data []byte, i int) (Offsets, error) {
	start := offsetsStart + i*offsetsLen
	if i < 0 || start+offsetsLen > len(data) {
		return Offsets{}, fmt.Errorf("%w: header entry %d out of bounds", gateerr.ErrInvalidInstruction, i)
	}
	b := data[start : start+offsetsLen]
	le := binary.LittleEndian
	return Offsets{
		SignatureOffset: le.Uint16(b[0:]),
		SignatureIx:     le.Uint16(b[2:]),
		PublicKeyOffset: le.Uint16(b[4:]),
		PublicKeyIx:     le.Uint16(b[6:]),
		MessageOffset:   le.Uint16(b[8:]),
		MessageSize:     le.Uint16(b[10:]),
		MessageIx:       le.Uint16(b[12:]),
	}, nil
}

type Program struct{}

func (Program) ID() address.Address { return ID }

func (Program) Process(ctx *runtime.Context, data []byte) ([]byte, error) {
	if len(ctx.Accounts()) != 0 {
		return nil, fmt.Errorf("%w: signature verification takes no accounts", gateerr.ErrInvalidInstruction)
	}
	if len(data) < offsetsStart {
		return nil, fmt.Errorf("%w: short header", gateerr.ErrInvalidInstruction)
	}
	count := int(data[0])
	if count == 0 {
		return nil, fmt.Errorf("%w: no signatures", gateerr.ErrInvalidInstruction)
	}
	for i := 0; i < count; i++ {
		off, err := ParseOffsets(data, i)
		if err != nil {
			return nil, err
		}
		sig, err := fetch(ctx, data, off.SignatureIx, off.SignatureOffset, ed25519.SignatureSize)
		if err != nil {
			return nil, err
		}
		pub, err := fetch(ctx, data, off.PublicKeyIx, off.PublicKeyOffset, ed25519.PublicKeySize)
		if err != nil {
			return nil, err
		}
		msg, err := fetch(ctx, data, off.MessageIx, off.MessageOffset, int(off.MessageSize))
		if err != nil {
			return nil, err
		}
		if !ed25519.Verify(ed25519.PublicKey(pub), msg, sig) {
			return nil, fmt.Errorf("%w: signature %d", gateerr.ErrSignatureVerificationFailed, i)
		}
	}
	return nil, nil
}

// fetch returns n bytes at offset from the data of instruction ix.
func fetch(ctx *runtime.Context, own []byte, ix, offset uint16, n int) ([]byte, error) {
	src := own
	if ix != CurrentInstruction {
		other, err := ctx.Instructions().InstructionAt(int(ix))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", gateerr.ErrInvalidInstruction, err)
		}
		src = other.Data
	}
	end := int(offset) + n
	if end > len(src) {
		return nil, fmt.Errorf("%w: range %d..%d exceeds %d bytes", gateerr.ErrInvalidInstruction, offset, end, len(src))
	}
	return src[offset:end], nil
}
