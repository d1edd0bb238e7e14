// Package ledgertest runs bundles against a miniredis-backed ledger for
// program tests.
package ledgertest

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/0gfoundation/0g-nonce-gate/internal/address"
	"github.com/0gfoundation/0g-nonce-gate/internal/bundle"
	"github.com/0gfoundation/0g-nonce-gate/internal/ledger"
	"github.com/0gfoundation/0g-nonce-gate/internal/runtime"
	"github.com/0gfoundation/0g-nonce-gate/internal/state"
	"github.com/0gfoundation/0g-nonce-gate/internal/system"
)

// Sol is a convenient lamport amount for funding wallets.
const Sol = 1_000_000_000

type Env struct {
	T     testing.TB
	Ctx   context.Context
	MR    *miniredis.Miniredis
	RDB   *redis.Client
	Store state.Store
	RT    *runtime.Runtime
}

func NewEnv(t testing.TB, opts ...runtime.Option) *Env {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	store := state.NewRedisStore(rdb)
	return &Env{
		T:     t,
		Ctx:   context.Background(),
		MR:    mr,
		RDB:   rdb,
		Store: store,
		RT:    ledger.New(store, opts...),
	}
}

// Wallet is a keypair with its address.
type Wallet struct {
	Key  ed25519.PrivateKey
	Addr address.Address
}

func NewKey(t testing.TB) Wallet {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return Wallet{Key: priv, Addr: address.FromPublicKey(pub)}
}

// Wallet returns a new key funded with lamports.
func (e *Env) Wallet(lamports uint64) Wallet {
	e.T.Helper()
	w := NewKey(e.T)
	if lamports > 0 {
		e.Fund(w.Addr, lamports)
	}
	return w
}

func (e *Env) Fund(addr address.Address, lamports uint64) {
	e.T.Helper()
	if err := system.Faucet(e.Ctx, e.Store, addr, lamports); err != nil {
		e.T.Fatalf("fund %s: %v", addr, err)
	}
}

// Run signs a bundle of ixs with signers and executes it. A wallet listed
// more than once signs once.
func (e *Env) Run(ixs []bundle.Instruction, signers ...Wallet) (*runtime.Receipt, error) {
	e.T.Helper()
	b := bundle.New(ixs...)
	seen := make(map[address.Address]bool, len(signers))
	var keys []ed25519.PrivateKey
	for _, s := range signers {
		if !seen[s.Addr] {
			seen[s.Addr] = true
			keys = append(keys, s.Key)
		}
	}
	if err := b.Sign(keys...); err != nil {
		e.T.Fatalf("sign bundle: %v", err)
	}
	return e.RT.Execute(e.Ctx, b)
}

// MustRun is Run that fails the test on error.
func (e *Env) MustRun(ixs []bundle.Instruction, signers ...Wallet) *runtime.Receipt {
	e.T.Helper()
	rec, err := e.Run(ixs, signers...)
	if err != nil {
		e.T.Fatalf("run bundle: %v", err)
	}
	return rec
}

func (e *Env) Balance(addr address.Address) uint64 {
	e.T.Helper()
	n, err := system.Balance(e.Ctx, e.Store, addr)
	if err != nil {
		e.T.Fatalf("balance %s: %v", addr, err)
	}
	return n
}

// Exists reports whether addr holds an account.
func (e *Env) Exists(addr address.Address) bool {
	e.T.Helper()
	acct, err := e.Store.Get(e.Ctx, addr)
	if err != nil {
		e.T.Fatalf("get %s: %v", addr, err)
	}
	return acct != nil
}

func Ixs(ixs ...bundle.Instruction) []bundle.Instruction { return ixs }
