// Package ledger assembles the runtime with every program the gate serves.
package ledger

import (
	"github.com/redis/go-redis/v9"

	"github.com/0gfoundation/0g-nonce-gate/internal/airdrop"
	"github.com/0gfoundation/0g-nonce-gate/internal/distribute"
	"github.com/0gfoundation/0g-nonce-gate/internal/ed25519prog"
	"github.com/0gfoundation/0g-nonce-gate/internal/nonceverify"
	"github.com/0gfoundation/0g-nonce-gate/internal/runtime"
	"github.com/0gfoundation/0g-nonce-gate/internal/state"
	"github.com/0gfoundation/0g-nonce-gate/internal/system"
	"github.com/0gfoundation/0g-nonce-gate/internal/token"
)

// Programs returns the deployed program set.
func Programs() []runtime.Program {
	return []runtime.Program{
		system.Program{},
		ed25519prog.Program{},
		nonceverify.Program{},
		token.Program{},
		airdrop.Program{},
		distribute.Program{},
	}
}

func New(store state.Store, opts ...runtime.Option) *runtime.Runtime {
	return runtime.New(store, Programs(), opts...)
}

// NewRedis is New over a Redis-backed store.
func NewRedis(rdb *redis.Client, opts ...runtime.Option) *runtime.Runtime {
	return New(state.NewRedisStore(rdb), opts...)
}
