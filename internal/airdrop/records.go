// Package airdrop is the issuing program. A claim mints tokens to a user
// only when the project admin signed the exact claim and the user's nonce
// for the project's business registration is consumed in the same bundle.
package airdrop

import (
	"context"
	"fmt"

	"github.com/0gfoundation/0g-nonce-gate/internal/address"
	"github.com/0gfoundation/0g-nonce-gate/internal/codec"
	"github.com/0gfoundation/0g-nonce-gate/internal/gateerr"
	"github.com/0gfoundation/0g-nonce-gate/internal/state"
)

var ID = address.MustParse("GMznVrvA9P4WfBzJPWq92BWmsBMQUo6pb8B7CMSvgX9n")

// Seeds are capped at address.MaxSeedLen bytes each. The business authority
// tag is split in two so its concatenation still reads
// "airdrop_nonce_verify_business_project".
var (
	ProjectSeed           = []byte("airdrop_project")
	MintAuthoritySeed     = []byte("airdrop_mint_authority")
	BusinessAuthoritySeed = []byte("airdrop_nonce_verify")
	BusinessAuthorityTag  = []byte("_business_project")
)

const ProjectSpace = codec.DiscriminatorLen + 32 + 32

var projectTag = codec.AccountTag("AirdropProject")

// Project is an airdrop campaign. Admin is the ed25519 key whose
// signatures authorize claims.
type Project struct {
	ProjectID address.Address `cbor:"1,keyasint" json:"project_id"`
	Admin     address.Address `cbor:"2,keyasint" json:"admin"`
}

func ProjectAddress(projectID address.Address) address.Capability {
	return address.MustDerive(ID, ProjectSeed, projectID[:])
}

func DecodeProject(acct *state.Account) (*Project, error) {
	if acct == nil {
		return nil, gateerr.ErrNotInitialized
	}
	if acct.Owner != ID {
		return nil, fmt.Errorf("%w: project owned by %s", gateerr.ErrIllegalOwner, acct.Owner)
	}
	var p Project
	if err := codec.Decode(projectTag, acct.Data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", gateerr.ErrInvalidAccount, err)
	}
	return &p, nil
}

func GetProject(ctx context.Context, store state.Store, addr address.Address) (*Project, error) {
	acct, err := store.Get(ctx, addr)
	if err != nil {
		return nil, err
	}
	return DecodeProject(acct)
}
