package address

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
)

const (
	MaxSeedLen = 32
	MaxSeeds   = 16
)

var pdaMarker = []byte("ProgramDerivedAddress")

var (
	ErrOnCurve            = errors.New("address: derived address lies on the ed25519 curve")
	ErrSeedTooLong        = errors.New("address: seed exceeds 32 bytes")
	ErrTooManySeeds       = errors.New("address: too many seeds")
	ErrNoBump             = errors.New("address: no viable bump seed")
	ErrCapabilityMismatch = errors.New("address: capability does not re-derive to its address")
)

// IsOnCurve reports whether b decodes to a point on the ed25519 curve.
// Derived addresses must not, so that no private key can sign for them.
func IsOnCurve(b []byte) bool {
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}

// CreateProgramAddress hashes seeds with the program id. The last seed is
// normally the bump found by FindProgramAddress.
func CreateProgramAddress(seeds [][]byte, program Address) (Address, error) {
	if len(seeds) > MaxSeeds {
		return Address{}, ErrTooManySeeds
	}
	h := sha256.New()
	for _, s := range seeds {
		if len(s) > MaxSeedLen {
			return Address{}, ErrSeedTooLong
		}
		h.Write(s)
	}
	h.Write(program[:])
	h.Write(pdaMarker)

	var a Address
	copy(a[:], h.Sum(nil))
	if IsOnCurve(a[:]) {
		return Address{}, ErrOnCurve
	}
	return a, nil
}

// FindProgramAddress searches bumps from 255 downward and returns the first
// off-curve address.
func FindProgramAddress(seeds [][]byte, program Address) (Address, uint8, error) {
	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)
	for bump := 255; bump >= 0; bump-- {
		withBump[len(seeds)] = []byte{byte(bump)}
		a, err := CreateProgramAddress(withBump, program)
		if err == nil {
			return a, uint8(bump), nil
		}
		if !errors.Is(err, ErrOnCurve) {
			return Address{}, 0, err
		}
	}
	return Address{}, 0, ErrNoBump
}

// Capability is the right of Program to act as signer for Address. It is
// only honoured by the runtime when the invoking program is Program and
// the seeds re-derive to Address.
type Capability struct {
	Program Address
	Seeds   [][]byte
	Bump    uint8
	Address Address
}

// Derive finds the canonical derived address for seeds under program.
func Derive(program Address, seeds ...[]byte) (Capability, error) {
	addr, bump, err := FindProgramAddress(seeds, program)
	if err != nil {
		return Capability{}, err
	}
	return Capability{Program: program, Seeds: seeds, Bump: bump, Address: addr}, nil
}

// MustDerive panics on failure; only used with fixed-width seeds.
func MustDerive(program Address, seeds ...[]byte) Capability {
	c, err := Derive(program, seeds...)
	if err != nil {
		panic(err)
	}
	return c
}

// SignerSeeds returns the seeds followed by the bump byte.
func (c Capability) SignerSeeds() [][]byte {
	out := make([][]byte, 0, len(c.Seeds)+1)
	out = append(out, c.Seeds...)
	return append(out, []byte{c.Bump})
}

// VerifyFor checks that caller owns the capability and that it still
// re-derives to its address.
func (c Capability) VerifyFor(caller Address) error {
	if c.Program != caller {
		return fmt.Errorf("%w: issued to %s, used by %s", ErrCapabilityMismatch, c.Program, caller)
	}
	got, err := CreateProgramAddress(c.SignerSeeds(), caller)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCapabilityMismatch, err)
	}
	if got != c.Address {
		return fmt.Errorf("%w: want %s got %s", ErrCapabilityMismatch, c.Address, got)
	}
	return nil
}
