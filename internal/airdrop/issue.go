package airdrop

import (
	"fmt"

	"github.com/0gfoundation/0g-nonce-gate/internal/address"
	"github.com/0gfoundation/0g-nonce-gate/internal/gateerr"
	"github.com/0gfoundation/0g-nonce-gate/internal/runtime"
	"github.com/0gfoundation/0g-nonce-gate/internal/token"
)

// MintAuthority is the derived address that must hold mint authority over
// mint for project to issue it.
func MintAuthority(project, mint address.Address) address.Capability {
	return address.MustDerive(ID, MintAuthoritySeed, project[:], mint[:])
}

// issue mints amount of mint to recipient's associated account, creating
// it first at payer's expense if needed.
func issue(ctx *runtime.Context, project, mint, recipient, recipientAccount, payer address.Address, amount uint64) error {
	if want := token.AssociatedAddress(recipient, mint).Address; recipientAccount != want {
		return fmt.Errorf("%w: recipient token account is %s, want %s", gateerr.ErrInvalidAccount, recipientAccount, want)
	}
	if err := token.CreateAssociated(ctx, payer, recipient, mint); err != nil {
		return err
	}
	return token.MintTo(ctx, mint, recipientAccount, MintAuthority(project, mint), amount)
}
