package airdrop

import (
	"crypto/ed25519"
	"fmt"

	"github.com/0gfoundation/0g-nonce-gate/internal/address"
	"github.com/0gfoundation/0g-nonce-gate/internal/authz"
	"github.com/0gfoundation/0g-nonce-gate/internal/bundle"
	"github.com/0gfoundation/0g-nonce-gate/internal/codec"
	"github.com/0gfoundation/0g-nonce-gate/internal/ed25519prog"
	"github.com/0gfoundation/0g-nonce-gate/internal/nonceverify"
	"github.com/0gfoundation/0g-nonce-gate/internal/token"
)

func instruction(tag codec.Discriminator, args any, metas ...bundle.AccountMeta) bundle.Instruction {
	data := tag[:]
	if args != nil {
		var err error
		if data, err = codec.Encode(tag, args); err != nil {
			panic(err)
		}
	}
	return bundle.Instruction{Program: ID, Accounts: metas, Data: data}
}

func InitializeProjectInstruction(payer, projectID, admin address.Address) bundle.Instruction {
	return instruction(initializeTag, InitializeArgs{ProjectID: projectID, Admin: admin},
		bundle.WritableSigner(payer),
		bundle.Writable(ProjectAddress(projectID).Address),
	)
}

// ClaimAccounts names the parties of a claim; everything else is derived.
type ClaimAccounts struct {
	NonceFeePayer address.Address
	SpaceFeePayer address.Address
	User          address.Address
	ProjectID     address.Address
	Mint          address.Address
	// ServiceBase is the base key of the nonce service the business is
	// registered under.
	ServiceBase     address.Address
	BusinessProject address.Address
}

// Project is the derived project address.
func (a ClaimAccounts) Project() address.Address { return ProjectAddress(a.ProjectID).Address }

// Claim is the payload the project admin signs for a claim of amount at
// nonce.
func (a ClaimAccounts) Claim(nonce uint32, amount uint64) authz.Claim {
	return authz.Claim{
		Nonce:           nonce,
		Amount:          amount,
		Mint:            a.Mint,
		Recipient:       a.User,
		Project:         a.Project(),
		BusinessProject: a.BusinessProject,
	}
}

// Metas returns the accounts in instruction order.
func (a ClaimAccounts) Metas() []bundle.AccountMeta {
	project := a.Project()
	return []bundle.AccountMeta{
		bundle.WritableSigner(a.NonceFeePayer),
		bundle.Signer(a.User),
		bundle.WritableSigner(a.SpaceFeePayer),
		bundle.Readonly(project),
		bundle.Writable(a.Mint),
		bundle.Readonly(MintAuthority(project, a.Mint).Address),
		bundle.Writable(token.AssociatedAddress(a.User, a.Mint).Address),
		bundle.Readonly(BusinessAuthority(project, a.BusinessProject).Address),
		bundle.Readonly(a.BusinessProject),
		bundle.Readonly(nonceverify.ServiceAddress(a.ServiceBase).Address),
		bundle.Writable(nonceverify.VaultAddress(a.ServiceBase).Address),
		bundle.Writable(nonceverify.UserNonceAddress(a.BusinessProject, a.User).Address),
	}
}

func ClaimInstruction(a ClaimAccounts, nonce uint32, amount uint64, signature []byte) bundle.Instruction {
	return instruction(claimTag, ClaimArgs{Amount: amount, Nonce: nonce, Signature: signature}, a.Metas()...)
}

// ClaimInstructions returns the companion signature check followed by the
// claim it authorizes. The pair must stay adjacent in the bundle.
func ClaimInstructions(a ClaimAccounts, nonce uint32, amount uint64, admin ed25519.PublicKey, signature []byte) ([]bundle.Instruction, error) {
	if len(admin) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("admin key is %d bytes", len(admin))
	}
	companion, err := ed25519prog.NewInstruction(admin, signature, a.Claim(nonce, amount).Payload())
	if err != nil {
		return nil, err
	}
	return []bundle.Instruction{companion, ClaimInstruction(a, nonce, amount, signature)}, nil
}

func TransferMintAuthorityInstruction(admin, projectID, mint address.Address, next *address.Address) bundle.Instruction {
	project := ProjectAddress(projectID).Address
	return instruction(transferMintAuthorityTag, TransferMintAuthorityArgs{NewAuthority: next},
		bundle.Signer(admin),
		bundle.Readonly(project),
		bundle.Writable(mint),
		bundle.Readonly(MintAuthority(project, mint).Address),
	)
}

func CloseProjectInstruction(admin, projectID, receiver address.Address) bundle.Instruction {
	return instruction(closeTag, nil,
		bundle.Signer(admin),
		bundle.Writable(ProjectAddress(projectID).Address),
		bundle.Writable(receiver),
	)
}
