package ed25519prog

import (
	"context"
	"crypto/ed25519"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/0gfoundation/0g-nonce-gate/internal/address"
	"github.com/0gfoundation/0g-nonce-gate/internal/bundle"
	"github.com/0gfoundation/0g-nonce-gate/internal/gateerr"
	"github.com/0gfoundation/0g-nonce-gate/internal/runtime"
	"github.com/0gfoundation/0g-nonce-gate/internal/state"
)

func execute(t *testing.T, ixs ...bundle.Instruction) error {
	t.Helper()
	mr := miniredis.RunT(t)
	store := state.NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	rt := runtime.New(store, []runtime.Program{Program{}})
	_, err := rt.Execute(context.Background(), bundle.New(ixs...))
	return err
}

// ── layout ────────────────────────────────────────────────────────────────────

func TestNewInstruction_Layout(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(nil)
	msg := []byte("hello")
	sig := ed25519.Sign(priv, msg)

	ix, err := NewInstruction(pub, sig, msg)
	if err != nil {
		t.Fatalf("NewInstruction: %v", err)
	}
	d := ix.Data
	if len(d) != 16+32+64+len(msg) {
		t.Fatalf("len: got %d want %d", len(d), 16+32+64+len(msg))
	}
	if d[0] != 1 || d[1] != 0 {
		t.Errorf("count/padding: got %d/%d", d[0], d[1])
	}
	off, _ := ParseOffsets(d, 0)
	want := Offsets{48, 0xFFFF, 16, 0xFFFF, 112, uint16(len(msg)), 0xFFFF}
	if off != want {
		t.Errorf("offsets: got %+v want %+v", off, want)
	}
	if binary.LittleEndian.Uint16(d[12:]) != uint16(len(msg)) {
		t.Errorf("message length at byte 12 wrong")
	}
	if string(d[112:]) != "hello" || address.FromPublicKey(pub) != address.Address(d[16:48]) {
		t.Error("embedded public key or message misplaced")
	}
}

// ── execution ─────────────────────────────────────────────────────────────────

func TestProcess_ValidSignature(t *testing.T) {
	_, priv, _ := ed25519.GenerateKey(nil)
	ix, _ := Sign(priv, []byte("payload"))
	if err := execute(t, ix); err != nil {
		t.Errorf("valid signature rejected: %v", err)
	}
}

func TestProcess_TamperedSignature(t *testing.T) {
	_, priv, _ := ed25519.GenerateKey(nil)
	ix, _ := Sign(priv, []byte("payload"))
	ix.Data[SignatureOffset] ^= 0x01
	if err := execute(t, ix); !errors.Is(err, gateerr.ErrSignatureVerificationFailed) {
		t.Errorf("got %v want ErrSignatureVerificationFailed", err)
	}
}

func TestProcess_OutOfBoundsOffset(t *testing.T) {
	_, priv, _ := ed25519.GenerateKey(nil)
	ix, _ := Sign(priv, []byte("payload"))
	binary.LittleEndian.PutUint16(ix.Data[10:], 0xFFF0) // message offset
	if err := execute(t, ix); !errors.Is(err, gateerr.ErrInvalidInstruction) {
		t.Errorf("got %v want ErrInvalidInstruction", err)
	}
}

func TestProcess_RejectsAccounts(t *testing.T) {
	_, priv, _ := ed25519.GenerateKey(nil)
	ix, _ := Sign(priv, []byte("payload"))
	ix.Accounts = []bundle.AccountMeta{bundle.Readonly(address.Address{1})}
	if err := execute(t, ix); !errors.Is(err, gateerr.ErrInvalidInstruction) {
		t.Errorf("got %v want ErrInvalidInstruction", err)
	}
}
