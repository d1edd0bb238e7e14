package authz

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/0gfoundation/0g-nonce-gate/internal/bundle"
	"github.com/0gfoundation/0g-nonce-gate/internal/ed25519prog"
	"github.com/0gfoundation/0g-nonce-gate/internal/gateerr"
)

// InstructionLoader gives read access to the bundle being executed.
type InstructionLoader interface {
	CurrentIndex() int
	InstructionAt(i int) (bundle.Instruction, error)
}

// VerifyCompanion requires that the instruction immediately before the
// current one is a signature-verification instruction over exactly
// payload, signature and publicKey.
func VerifyCompanion(ixs InstructionLoader, payload, signature, publicKey []byte) error {
	cur := ixs.CurrentIndex()
	if cur <= 0 {
		return gateerr.ErrMissingCompanionInstruction
	}
	prev, err := ixs.InstructionAt(cur - 1)
	if err != nil {
		return fmt.Errorf("%w: %v", gateerr.ErrMissingCompanionInstruction, err)
	}
	if prev.Program != ed25519prog.ID {
		return fmt.Errorf("%w: program %s", gateerr.ErrInvalidCompanionInstruction, prev.Program)
	}
	if len(prev.Accounts) != 0 {
		return fmt.Errorf("%w: %d accounts", gateerr.ErrInvalidCompanionInstruction, len(prev.Accounts))
	}
	return CheckCompanionData(prev.Data, payload, signature, publicKey)
}

// CheckCompanionData is the structural check on the companion's data alone.
func CheckCompanionData(data, payload, signature, publicKey []byte) error {
	want := ed25519prog.HeaderLen + 64 + len(publicKey) + len(payload)
	if len(data) != want {
		return fmt.Errorf("%w: data length %d, want %d", gateerr.ErrInvalidCompanionInstruction, len(data), want)
	}
	if len(payload) > math.MaxUint16 || ed25519prog.HeaderLen+len(publicKey)+len(signature) > math.MaxUint16 {
		return fmt.Errorf("%w: layout exceeds 16-bit offsets", gateerr.ErrSignatureVerificationFailed)
	}

	pkOff := ed25519prog.HeaderLen
	sigOff := pkOff + len(publicKey)
	msgOff := sigOff + len(signature)

	if data[0] != 1 {
		return mismatch("signature count", int(data[0]), 1)
	}
	if data[1] != 0 {
		return mismatch("padding", int(data[1]), 0)
	}
	cur := int(ed25519prog.CurrentInstruction)
	for _, f := range []struct {
		name string
		at   int
		want int
	}{
		{"signature offset", 2, sigOff},
		{"signature instruction index", 4, cur},
		{"public key offset", 6, pkOff},
		{"public key instruction index", 8, cur},
		{"message offset", 10, msgOff},
		{"message length", 12, len(payload)},
		{"message instruction index", 14, cur},
	} {
		got, err := u16At(data, f.at)
		if err != nil {
			return err
		}
		if int(got) != f.want {
			return mismatch(f.name, int(got), f.want)
		}
	}

	for _, f := range []struct {
		name string
		off  int
		want []byte
	}{
		{"public key", pkOff, publicKey},
		{"signature", sigOff, signature},
		{"message", msgOff, payload},
	} {
		got, err := sliceAt(data, f.off, len(f.want))
		if err != nil {
			return err
		}
		if !bytes.Equal(got, f.want) {
			return fmt.Errorf("%w: embedded %s differs", gateerr.ErrSignatureVerificationFailed, f.name)
		}
	}
	return nil
}

func mismatch(field string, got, want int) error {
	return fmt.Errorf("%w: %s is %d, want %d", gateerr.ErrSignatureVerificationFailed, field, got, want)
}

func u16At(data []byte, off int) (uint16, error) {
	if off < 0 || off+2 > len(data) {
		return 0, fmt.Errorf("%w: header read at %d out of bounds", gateerr.ErrSignatureVerificationFailed, off)
	}
	return binary.LittleEndian.Uint16(data[off:]), nil
}

func sliceAt(data []byte, off, n int) ([]byte, error) {
	if off < 0 || n < 0 || off+n > len(data) {
		return nil, fmt.Errorf("%w: range %d+%d out of bounds", gateerr.ErrSignatureVerificationFailed, off, n)
	}
	return data[off : off+n], nil
}
