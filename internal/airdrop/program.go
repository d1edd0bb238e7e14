package airdrop

import (
	"fmt"

	"github.com/0gfoundation/0g-nonce-gate/internal/address"
	"github.com/0gfoundation/0g-nonce-gate/internal/authz"
	"github.com/0gfoundation/0g-nonce-gate/internal/codec"
	"github.com/0gfoundation/0g-nonce-gate/internal/gateerr"
	"github.com/0gfoundation/0g-nonce-gate/internal/nonceverify"
	"github.com/0gfoundation/0g-nonce-gate/internal/runtime"
	"github.com/0gfoundation/0g-nonce-gate/internal/system"
	"github.com/0gfoundation/0g-nonce-gate/internal/token"
)

var (
	initializeTag            = codec.InstructionTag("initialize_airdrop")
	claimTag                 = codec.InstructionTag("claim_ft")
	transferMintAuthorityTag = codec.InstructionTag("transfer_mint_authority")
	closeTag                 = codec.InstructionTag("close_airdrop")
)

// InitializeArgs creates the project for ProjectID administered by Admin.
type InitializeArgs struct {
	ProjectID address.Address `cbor:"1,keyasint"`
	Admin     address.Address `cbor:"2,keyasint"`
}

// ClaimArgs is an admin-signed claim of Amount at Nonce.
type ClaimArgs struct {
	Amount    uint64 `cbor:"1,keyasint"`
	Nonce     uint32 `cbor:"2,keyasint"`
	Signature []byte `cbor:"3,keyasint"`
}

// TransferMintAuthorityArgs hands mint authority to NewAuthority, or disables minting when nil.
type TransferMintAuthorityArgs struct {
	NewAuthority *address.Address `cbor:"1,keyasint,omitempty"`
}

// Program is the issuing program.
type Program struct{}

func (Program) ID() address.Address { return ID }

func (Program) Process(ctx *runtime.Context, data []byte) ([]byte, error) {
	tag, raw, err := codec.Split(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gateerr.ErrInvalidInstruction, err)
	}
	decodeArgs := func(v any) error {
		if err := codec.Unmarshal(raw, v); err != nil {
			return fmt.Errorf("%w: %v", gateerr.ErrInvalidInstruction, err)
		}
		return nil
	}
	switch tag {
	case initializeTag:
		var args InitializeArgs
		if err := decodeArgs(&args); err != nil {
			return nil, err
		}
		return nil, initialize(ctx, args)
	case claimTag:
		var args ClaimArgs
		if err := decodeArgs(&args); err != nil {
			return nil, err
		}
		return nil, claim(ctx, args)
	case transferMintAuthorityTag:
		var args TransferMintAuthorityArgs
		if err := decodeArgs(&args); err != nil {
			return nil, err
		}
		return nil, transferMintAuthority(ctx, args)
	case closeTag:
		return nil, closeProject(ctx)
	default:
		return nil, fmt.Errorf("%w: unknown airdrop instruction", gateerr.ErrInvalidInstruction)
	}
}

func keys(ctx *runtime.Context, n int) ([]address.Address, error) {
	out := make([]address.Address, n)
	for i := range out {
		m, err := ctx.Account(i)
		if err != nil {
			return nil, err
		}
		out[i] = m.Key
	}
	return out, nil
}

func loadProject(ctx *runtime.Context, addr address.Address) (*Project, error) {
	acct, err := ctx.Load(addr)
	if err != nil {
		return nil, err
	}
	p, err := DecodeProject(acct)
	if err != nil {
		return nil, fmt.Errorf("airdrop project %s: %w", addr, err)
	}
	if want := ProjectAddress(p.ProjectID).Address; addr != want {
		return nil, fmt.Errorf("%w: airdrop project is %s, want %s", gateerr.ErrInvalidAccount, addr, want)
	}
	return p, nil
}

// requireAdmin checks that admin is the project's admin and signed.
func requireAdmin(ctx *runtime.Context, p *Project, admin address.Address) error {
	if admin != p.Admin || !ctx.IsSigner(admin) {
		return fmt.Errorf("%w: %s is not the signing admin of project %s", gateerr.ErrUnauthorized, admin, p.ProjectID)
	}
	return nil
}

// accounts: payer, project
func initialize(ctx *runtime.Context, args InitializeArgs) error {
	k, err := keys(ctx, 2)
	if err != nil {
		return err
	}
	payer, project := k[0], k[1]
	at := ProjectAddress(args.ProjectID)
	if project != at.Address {
		return fmt.Errorf("%w: airdrop project is %s, want %s", gateerr.ErrInvalidAccount, project, at.Address)
	}
	if existing, err := ctx.Load(project); err != nil {
		return err
	} else if existing != nil && (existing.Owner == ID || len(existing.Data) > 0) {
		return fmt.Errorf("%w: airdrop project %s", gateerr.ErrAlreadyInitialized, project)
	}
	if err := system.CreateAccount(ctx, payer, project, ProjectSpace, ID, at); err != nil {
		return err
	}
	data, err := codec.Encode(projectTag, &Project{ProjectID: args.ProjectID, Admin: args.Admin})
	if err != nil {
		return err
	}
	acct, err := ctx.Load(project)
	if err != nil {
		return err
	}
	acct.Data = data
	ctx.Logf("initialize airdrop project %s admin %s", project, args.Admin)
	return ctx.Save(project, acct)
}

// Claim account order.
const (
	claimNonceFeePayer = iota
	claimUser
	claimSpaceFeePayer
	claimProject
	claimMint
	claimMintAuthority
	claimUserTokenAccount
	claimBusinessAuthority
	claimBusinessProject
	claimNonceService
	claimNonceVault
	claimUserNonce
	claimAccountCount
)

// claim consumes the user's nonce as the project's business authority,
// checks the admin-signed companion instruction, then mints.
func claim(ctx *runtime.Context, args ClaimArgs) error {
	k, err := keys(ctx, claimAccountCount)
	if err != nil {
		return err
	}
	if !ctx.IsSigner(k[claimUser]) {
		return fmt.Errorf("%w: claim user %s", gateerr.ErrMissingSignature, k[claimUser])
	}
	project, err := loadProject(ctx, k[claimProject])
	if err != nil {
		return err
	}
	projectAddr, mint, business := k[claimProject], k[claimMint], k[claimBusinessProject]

	if want := MintAuthority(projectAddr, mint).Address; k[claimMintAuthority] != want {
		return fmt.Errorf("%w: mint authority is %s, want %s", gateerr.ErrInvalidAccount, k[claimMintAuthority], want)
	}
	if want := BusinessAuthority(projectAddr, business).Address; k[claimBusinessAuthority] != want {
		return fmt.Errorf("%w: business authority is %s, want %s", gateerr.ErrInvalidAccount, k[claimBusinessAuthority], want)
	}

	next, err := consumeNonce(ctx, projectAddr, nonceverify.ConsumeAccounts{
		FeePayer:  k[claimNonceFeePayer],
		User:      k[claimUser],
		UserNonce: k[claimUserNonce],
		Authority: k[claimBusinessAuthority],
		Business:  business,
		Service:   k[claimNonceService],
		Vault:     k[claimNonceVault],
	}, args.Nonce)
	if err != nil {
		return err
	}

	payload := authz.Claim{
		Nonce:           args.Nonce,
		Amount:          args.Amount,
		Mint:            mint,
		Recipient:       k[claimUser],
		Project:         projectAddr,
		BusinessProject: business,
	}.Payload()
	if err := authz.VerifyCompanion(ctx.Instructions(), payload, args.Signature, project.Admin[:]); err != nil {
		return err
	}

	ctx.Logf("claim %d for %s, nonce now %d", args.Amount, k[claimUser], next)
	return issue(ctx, projectAddr, mint, k[claimUser], k[claimUserTokenAccount], k[claimSpaceFeePayer], args.Amount)
}

// accounts: admin, project, mint, mint authority
func transferMintAuthority(ctx *runtime.Context, args TransferMintAuthorityArgs) error {
	k, err := keys(ctx, 4)
	if err != nil {
		return err
	}
	admin, projectAddr, mint, mintAuthority := k[0], k[1], k[2], k[3]
	p, err := loadProject(ctx, projectAddr)
	if err != nil {
		return err
	}
	if err := requireAdmin(ctx, p, admin); err != nil {
		return err
	}
	current := MintAuthority(projectAddr, mint)
	if mintAuthority != current.Address {
		return fmt.Errorf("%w: mint authority is %s, want %s", gateerr.ErrInvalidAccount, mintAuthority, current.Address)
	}
	ctx.Logf("transfer mint authority of %s", mint)
	return token.SetAuthority(ctx, mint, current, args.NewAuthority)
}

// accounts: admin, project, receiver
func closeProject(ctx *runtime.Context) error {
	k, err := keys(ctx, 3)
	if err != nil {
		return err
	}
	admin, projectAddr, receiver := k[0], k[1], k[2]
	p, err := loadProject(ctx, projectAddr)
	if err != nil {
		return err
	}
	if err := requireAdmin(ctx, p, admin); err != nil {
		return err
	}
	ctx.Logf("close airdrop project %s", projectAddr)
	return ctx.Close(projectAddr, receiver)
}
