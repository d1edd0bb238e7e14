package airdrop

import (
	"github.com/0gfoundation/0g-nonce-gate/internal/address"
	"github.com/0gfoundation/0g-nonce-gate/internal/nonceverify"
	"github.com/0gfoundation/0g-nonce-gate/internal/runtime"
)

// BusinessAuthority is the address this program signs as when consuming
// nonces for project's registration business. Register the business with
// this address as its authority.
func BusinessAuthority(project, business address.Address) address.Capability {
	return address.MustDerive(ID, BusinessAuthoritySeed, BusinessAuthorityTag, project[:], business[:])
}

// consumeNonce invokes the nonce ledger as the project's business
// authority. Only this program can present that capability, so no other
// caller can burn the project's users' nonces.
func consumeNonce(ctx *runtime.Context, project address.Address, accts nonceverify.ConsumeAccounts, nonce uint32) (uint32, error) {
	authority := BusinessAuthority(project, accts.Business)
	return nonceverify.Consume(ctx, authority, accts, nonce)
}
