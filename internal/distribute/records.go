// Package distribute is the direct distribution program. A project admin
// mints tokens straight to a batch of receivers with no claim step; a
// single manager record fixes the per-receiver fee charged for each batch.
package distribute

import (
	"context"
	"fmt"

	"github.com/0gfoundation/0g-nonce-gate/internal/address"
	"github.com/0gfoundation/0g-nonce-gate/internal/codec"
	"github.com/0gfoundation/0g-nonce-gate/internal/gateerr"
	"github.com/0gfoundation/0g-nonce-gate/internal/state"
)

var ID = address.MustParse("GaHqnnZv2CeZYEA23V1zGuADSFhWnJZSmFzLeje1H2T1")

var (
	ManagerSeed       = []byte("dda_manager")
	FeeReceiverSeed   = []byte("dda_fee_receiver")
	MintAuthoritySeed = []byte("dda_mint_authority")
)

const (
	ManagerSpace = codec.DiscriminatorLen + 32 + 32 + 4
	ProjectSpace = codec.DiscriminatorLen + 32
)

var (
	managerTag = codec.AccountTag("SingletonManageProject")
	projectTag = codec.AccountTag("DdaAirdropProject")
)

// ErrReceiverCountMismatch rejects a batch whose receiver accounts do not
// pair up with its amounts.
var ErrReceiverCountMismatch = fmt.Errorf("%w: receiver accounts do not match amounts", gateerr.ErrInvalidAccount)

// Manager is the one fee schedule shared by every project. UserFee is
// charged per receiver of each batch.
type Manager struct {
	Admin       address.Address `cbor:"1,keyasint" json:"admin"`
	FeeReceiver address.Address `cbor:"2,keyasint" json:"fee_receiver"`
	UserFee     uint32          `cbor:"3,keyasint" json:"user_fee"`
}

// Project is a distribution campaign. Admin signs every batch.
type Project struct {
	Admin address.Address `cbor:"1,keyasint" json:"admin"`
}

func ManagerAddress() address.Capability { return address.MustDerive(ID, ManagerSeed) }

// FeeReceiverAddress is the plain balance account batch fees are paid into.
func FeeReceiverAddress() address.Capability { return address.MustDerive(ID, FeeReceiverSeed) }

// MintAuthority must hold mint authority over mint for project to
// distribute it.
func MintAuthority(project, mint address.Address) address.Capability {
	return address.MustDerive(ID, MintAuthoritySeed, project[:], mint[:])
}

func decode(acct *state.Account, tag codec.Discriminator, v any) error {
	if acct == nil {
		return gateerr.ErrNotInitialized
	}
	if acct.Owner != ID {
		return fmt.Errorf("%w: owned by %s", gateerr.ErrIllegalOwner, acct.Owner)
	}
	if err := codec.Decode(tag, acct.Data, v); err != nil {
		return fmt.Errorf("%w: %v", gateerr.ErrInvalidAccount, err)
	}
	return nil
}

func DecodeManager(acct *state.Account) (*Manager, error) {
	var m Manager
	if err := decode(acct, managerTag, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func DecodeProject(acct *state.Account) (*Project, error) {
	var p Project
	if err := decode(acct, projectTag, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func GetManager(ctx context.Context, store state.Store) (*Manager, error) {
	acct, err := store.Get(ctx, ManagerAddress().Address)
	if err != nil {
		return nil, err
	}
	return DecodeManager(acct)
}

func GetProject(ctx context.Context, store state.Store, addr address.Address) (*Project, error) {
	acct, err := store.Get(ctx, addr)
	if err != nil {
		return nil, err
	}
	return DecodeProject(acct)
}
