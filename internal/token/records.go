// Package token is a minimal fungible-token program: mints with an optional
// mint authority and one associated token account per (owner, mint).
package token

import (
	"context"
	"fmt"

	"github.com/0gfoundation/0g-nonce-gate/internal/address"
	"github.com/0gfoundation/0g-nonce-gate/internal/codec"
	"github.com/0gfoundation/0g-nonce-gate/internal/gateerr"
	"github.com/0gfoundation/0g-nonce-gate/internal/state"
)

var ID = address.MustParse("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")

var AssociatedSeed = []byte("associated_token")

const (
	MintSpace    = codec.DiscriminatorLen + (1 + 32) + 8 + 1
	AccountSpace = codec.DiscriminatorLen + 32 + 32 + 8
)

var (
	mintTag    = codec.AccountTag("Mint")
	accountTag = codec.AccountTag("TokenAccount")
)

// Mint describes a token. A nil Authority means supply is fixed.
type Mint struct {
	Authority *address.Address `cbor:"1,keyasint,omitempty" json:"authority,omitempty"`
	Supply    uint64           `cbor:"2,keyasint" json:"supply"`
	Decimals  uint8            `cbor:"3,keyasint" json:"decimals"`
}

// Account holds Amount tokens of Mint for Owner.
type Account struct {
	Mint   address.Address `cbor:"1,keyasint" json:"mint"`
	Owner  address.Address `cbor:"2,keyasint" json:"owner"`
	Amount uint64          `cbor:"3,keyasint" json:"amount"`
}

// AssociatedAddress is the canonical token account of owner for mint.
func AssociatedAddress(owner, mint address.Address) address.Capability {
	return address.MustDerive(ID, AssociatedSeed, owner[:], mint[:])
}

func decode(acct *state.Account, tag codec.Discriminator, v any) error {
	if acct == nil {
		return gateerr.ErrNotInitialized
	}
	if acct.Owner != ID {
		return fmt.Errorf("%w: token record owned by %s", gateerr.ErrIllegalOwner, acct.Owner)
	}
	if err := codec.Decode(tag, acct.Data, v); err != nil {
		return fmt.Errorf("%w: %v", gateerr.ErrInvalidAccount, err)
	}
	return nil
}

func DecodeMint(acct *state.Account) (*Mint, error) {
	var m Mint
	return &m, decode(acct, mintTag, &m)
}

func DecodeAccount(acct *state.Account) (*Account, error) {
	var a Account
	return &a, decode(acct, accountTag, &a)
}

func GetMint(ctx context.Context, store state.Store, mint address.Address) (*Mint, error) {
	acct, err := store.Get(ctx, mint)
	if err != nil {
		return nil, err
	}
	return DecodeMint(acct)
}

// BalanceOf reads owner's associated balance of mint; a missing account
// is a zero balance.
func BalanceOf(ctx context.Context, store state.Store, owner, mint address.Address) (uint64, error) {
	acct, err := store.Get(ctx, AssociatedAddress(owner, mint).Address)
	if err != nil || acct == nil {
		return 0, err
	}
	a, err := DecodeAccount(acct)
	if err != nil {
		return 0, err
	}
	return a.Amount, nil
}
