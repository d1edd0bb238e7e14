// Package codec is the single serialisation point for account records,
// instruction arguments and bundles. Everything is Core Deterministic CBOR
// so the same value always produces the same bytes, which matters because
// bundles are signed over their encoding.
package codec

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		// Length caps keep a hostile bundle from allocating without bound.
		MaxArrayElements: 4096,
		MaxMapPairs:      4096,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v using Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) { return encMode.Marshal(v) }

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error { return decMode.Unmarshal(data, v) }

// ── discriminators ────────────────────────────────────────────────────────────

// DiscriminatorLen is the length of the type tag prefixed to records and
// instruction data.
const DiscriminatorLen = 8

type Discriminator [DiscriminatorLen]byte

var ErrDiscriminator = errors.New("codec: discriminator mismatch")

func tag(namespace, name string) Discriminator {
	sum := sha256.Sum256([]byte(namespace + ":" + name))
	var d Discriminator
	copy(d[:], sum[:DiscriminatorLen])
	return d
}

// AccountTag identifies a record type stored in account data.
func AccountTag(name string) Discriminator { return tag("account", name) }

// InstructionTag identifies a program entrypoint.
func InstructionTag(name string) Discriminator { return tag("global", name) }

// Encode prefixes the CBOR encoding of v with d.
func Encode(d Discriminator, v any) ([]byte, error) {
	body, err := Marshal(v)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, DiscriminatorLen+len(body))
	out = append(out, d[:]...)
	return append(out, body...), nil
}

// Decode checks the discriminator of data and decodes the rest into v.
func Decode(d Discriminator, data []byte, v any) error {
	if len(data) < DiscriminatorLen || Discriminator(data[:DiscriminatorLen]) != d {
		return ErrDiscriminator
	}
	if err := Unmarshal(data[DiscriminatorLen:], v); err != nil {
		return fmt.Errorf("codec: decode body: %w", err)
	}
	return nil
}

// Split separates instruction data into its tag and argument bytes.
func Split(data []byte) (Discriminator, []byte, error) {
	if len(data) < DiscriminatorLen {
		return Discriminator{}, nil, ErrDiscriminator
	}
	return Discriminator(data[:DiscriminatorLen]), data[DiscriminatorLen:], nil
}
