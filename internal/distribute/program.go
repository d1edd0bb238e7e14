package distribute

import (
	"fmt"

	"github.com/0gfoundation/0g-nonce-gate/internal/address"
	"github.com/0gfoundation/0g-nonce-gate/internal/codec"
	"github.com/0gfoundation/0g-nonce-gate/internal/fees"
	"github.com/0gfoundation/0g-nonce-gate/internal/gateerr"
	"github.com/0gfoundation/0g-nonce-gate/internal/runtime"
	"github.com/0gfoundation/0g-nonce-gate/internal/system"
	"github.com/0gfoundation/0g-nonce-gate/internal/token"
)

var (
	initManagerTag           = codec.InstructionTag("init_singleton_manage_project")
	updateManagerTag         = codec.InstructionTag("update_manager_singleton_project")
	claimFeeTag              = codec.InstructionTag("claim_fee")
	initProjectTag           = codec.InstructionTag("init_dda_airdrop_project")
	updateProjectTag         = codec.InstructionTag("update_dda_airdrop_project")
	transferMintAuthorityTag = codec.InstructionTag("transfer_dda_mint_authority")
	airdropTag               = codec.InstructionTag("dda_airdrop_ft")
)

// InitManagerArgs sets the fee charged per receiver of each batch.
type InitManagerArgs struct {
	UserFee uint32 `cbor:"1,keyasint"`
}

// UpdateManagerArgs changes whichever fields are set.
type UpdateManagerArgs struct {
	NewAdmin   *address.Address `cbor:"1,keyasint,omitempty"`
	NewUserFee *uint32          `cbor:"2,keyasint,omitempty"`
}

// ClaimFeeArgs is the lamport amount to withdraw from the fee receiver.
type ClaimFeeArgs struct {
	Amount uint64 `cbor:"1,keyasint"`
}

// UpdateProjectArgs names the project's next admin.
type UpdateProjectArgs struct {
	NewAdmin address.Address `cbor:"1,keyasint"`
}

// TransferMintAuthorityArgs hands mint authority to NewAuthority, or disables minting when nil.
type TransferMintAuthorityArgs struct {
	NewAuthority *address.Address `cbor:"1,keyasint,omitempty"`
}

// AirdropArgs holds one amount per receiver, in account order.
type AirdropArgs struct {
	Amounts []uint64 `cbor:"1,keyasint"`
}

// Program is the direct distribution program.
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
	case initManagerTag:
		var args InitManagerArgs
		if err := decodeArgs(&args); err != nil {
			return nil, err
		}
		return nil, initManager(ctx, args)
	case updateManagerTag:
		var args UpdateManagerArgs
		if err := decodeArgs(&args); err != nil {
			return nil, err
		}
		return nil, updateManager(ctx, args)
	case claimFeeTag:
		var args ClaimFeeArgs
		if err := decodeArgs(&args); err != nil {
			return nil, err
		}
		return nil, claimFee(ctx, args)
	case initProjectTag:
		return nil, initProject(ctx)
	case updateProjectTag:
		var args UpdateProjectArgs
		if err := decodeArgs(&args); err != nil {
			return nil, err
		}
		return nil, updateProject(ctx, args)
	case transferMintAuthorityTag:
		var args TransferMintAuthorityArgs
		if err := decodeArgs(&args); err != nil {
			return nil, err
		}
		return nil, transferMintAuthority(ctx, args)
	case airdropTag:
		var args AirdropArgs
		if err := decodeArgs(&args); err != nil {
			return nil, err
		}
		return nil, airdrop(ctx, args)
	default:
		return nil, fmt.Errorf("%w: unknown distribute instruction", gateerr.ErrInvalidInstruction)
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

func expectKey(name string, got, want address.Address) error {
	if got != want {
		return fmt.Errorf("%w: %s is %s, want %s", gateerr.ErrInvalidAccount, name, got, want)
	}
	return nil
}

func save(ctx *runtime.Context, addr address.Address, tag codec.Discriminator, v any) error {
	data, err := codec.Encode(tag, v)
	if err != nil {
		return err
	}
	acct, err := ctx.Load(addr)
	if err != nil {
		return err
	}
	if acct == nil {
		return fmt.Errorf("%w: %s", gateerr.ErrNotInitialized, addr)
	}
	acct.Data = data
	return ctx.Save(addr, acct)
}

func loadManager(ctx *runtime.Context, addr address.Address) (*Manager, error) {
	if err := expectKey("manager", addr, ManagerAddress().Address); err != nil {
		return nil, err
	}
	acct, err := ctx.Load(addr)
	if err != nil {
		return nil, err
	}
	m, err := DecodeManager(acct)
	if err != nil {
		return nil, fmt.Errorf("manager %s: %w", addr, err)
	}
	return m, nil
}

func loadProject(ctx *runtime.Context, addr address.Address) (*Project, error) {
	acct, err := ctx.Load(addr)
	if err != nil {
		return nil, err
	}
	p, err := DecodeProject(acct)
	if err != nil {
		return nil, fmt.Errorf("distribute project %s: %w", addr, err)
	}
	return p, nil
}

// requireAdmin checks that got is want and signed.
func requireAdmin(ctx *runtime.Context, got, want address.Address) error {
	if got != want || !ctx.IsSigner(got) {
		return fmt.Errorf("%w: %s is not the signing admin", gateerr.ErrUnauthorized, got)
	}
	return nil
}

// ── manager ───────────────────────────────────────────────────────────────────

// accounts: payer, admin, manager, fee receiver
func initManager(ctx *runtime.Context, args InitManagerArgs) error {
	k, err := keys(ctx, 4)
	if err != nil {
		return err
	}
	payer, admin, manager, feeReceiver := k[0], k[1], k[2], k[3]
	if !ctx.IsSigner(admin) {
		return fmt.Errorf("%w: manager admin %s", gateerr.ErrMissingSignature, admin)
	}
	at := ManagerAddress()
	if err := expectKey("manager", manager, at.Address); err != nil {
		return err
	}
	if err := expectKey("fee receiver", feeReceiver, FeeReceiverAddress().Address); err != nil {
		return err
	}
	if existing, err := ctx.Load(manager); err != nil {
		return err
	} else if existing != nil && (existing.Owner == ID || len(existing.Data) > 0) {
		return fmt.Errorf("%w: manager %s", gateerr.ErrAlreadyInitialized, manager)
	}

	if err := system.CreateAccount(ctx, payer, manager, ManagerSpace, ID, at); err != nil {
		return err
	}
	if err := save(ctx, manager, managerTag, &Manager{Admin: admin, FeeReceiver: feeReceiver, UserFee: args.UserFee}); err != nil {
		return err
	}
	ctx.Logf("initialize manager %s, user fee %d", manager, args.UserFee)
	// The fee receiver starts at the rent minimum for an empty account.
	return system.Transfer(ctx, payer, feeReceiver, ctx.Rent().MinimumBalance(0))
}

// accounts: admin, manager
func updateManager(ctx *runtime.Context, args UpdateManagerArgs) error {
	k, err := keys(ctx, 2)
	if err != nil {
		return err
	}
	admin, manager := k[0], k[1]
	m, err := loadManager(ctx, manager)
	if err != nil {
		return err
	}
	if err := requireAdmin(ctx, admin, m.Admin); err != nil {
		return err
	}
	if args.NewAdmin != nil {
		m.Admin = *args.NewAdmin
	}
	if args.NewUserFee != nil {
		m.UserFee = *args.NewUserFee
	}
	ctx.Logf("update manager: admin %s, user fee %d", m.Admin, m.UserFee)
	return save(ctx, manager, managerTag, m)
}

// accounts: admin, manager, fee receiver, receiver
func claimFee(ctx *runtime.Context, args ClaimFeeArgs) error {
	k, err := keys(ctx, 4)
	if err != nil {
		return err
	}
	admin, manager, feeReceiver, receiver := k[0], k[1], k[2], k[3]
	m, err := loadManager(ctx, manager)
	if err != nil {
		return err
	}
	if err := requireAdmin(ctx, admin, m.Admin); err != nil {
		return err
	}
	at := FeeReceiverAddress()
	if err := expectKey("fee receiver", feeReceiver, m.FeeReceiver); err != nil {
		return err
	}
	ctx.Logf("claim fee %d to %s", args.Amount, receiver)
	return system.Transfer(ctx, feeReceiver, receiver, args.Amount, at)
}

// ── projects ──────────────────────────────────────────────────────────────────

// accounts: payer, admin, project (signer)
func initProject(ctx *runtime.Context) error {
	k, err := keys(ctx, 3)
	if err != nil {
		return err
	}
	payer, admin, project := k[0], k[1], k[2]
	if existing, err := ctx.Load(project); err != nil {
		return err
	} else if existing != nil && (existing.Owner == ID || len(existing.Data) > 0) {
		return fmt.Errorf("%w: distribute project %s", gateerr.ErrAlreadyInitialized, project)
	}
	if err := system.CreateAccount(ctx, payer, project, ProjectSpace, ID); err != nil {
		return err
	}
	ctx.Logf("initialize distribute project %s admin %s", project, admin)
	return save(ctx, project, projectTag, &Project{Admin: admin})
}

// accounts: admin, project
func updateProject(ctx *runtime.Context, args UpdateProjectArgs) error {
	k, err := keys(ctx, 2)
	if err != nil {
		return err
	}
	admin, project := k[0], k[1]
	p, err := loadProject(ctx, project)
	if err != nil {
		return err
	}
	if err := requireAdmin(ctx, admin, p.Admin); err != nil {
		return err
	}
	p.Admin = args.NewAdmin
	ctx.Logf("distribute project %s admin now %s", project, p.Admin)
	return save(ctx, project, projectTag, p)
}

// accounts: admin, project, mint, mint authority
func transferMintAuthority(ctx *runtime.Context, args TransferMintAuthorityArgs) error {
	k, err := keys(ctx, 4)
	if err != nil {
		return err
	}
	admin, project, mint, mintAuthority := k[0], k[1], k[2], k[3]
	p, err := loadProject(ctx, project)
	if err != nil {
		return err
	}
	if err := requireAdmin(ctx, admin, p.Admin); err != nil {
		return err
	}
	current := MintAuthority(project, mint)
	if err := expectKey("mint authority", mintAuthority, current.Address); err != nil {
		return err
	}
	ctx.Logf("transfer mint authority of %s", mint)
	return token.SetAuthority(ctx, mint, current, args.NewAuthority)
}

// ── batch ─────────────────────────────────────────────────────────────────────

// Airdrop account order. Receiver pairs follow the fixed accounts.
const (
	airdropPayer = iota
	airdropManager
	airdropFeeReceiver
	airdropAdmin
	airdropProject
	airdropMint
	airdropMintAuthority
	airdropFixedAccounts
)

// airdrop charges the manager fee once per receiver, then mints each
// amount to the matching receiver's associated token account, creating it
// at the payer's expense when missing.
func airdrop(ctx *runtime.Context, args AirdropArgs) error {
	n := len(args.Amounts)
	if got := len(ctx.Accounts()) - airdropFixedAccounts; got != 2*n {
		return fmt.Errorf("%w: %d receiver accounts for %d amounts", ErrReceiverCountMismatch, got, n)
	}
	k, err := keys(ctx, airdropFixedAccounts)
	if err != nil {
		return err
	}
	m, err := loadManager(ctx, k[airdropManager])
	if err != nil {
		return err
	}
	if err := expectKey("fee receiver", k[airdropFeeReceiver], m.FeeReceiver); err != nil {
		return err
	}
	projectAddr, mint := k[airdropProject], k[airdropMint]
	p, err := loadProject(ctx, projectAddr)
	if err != nil {
		return err
	}
	if err := requireAdmin(ctx, k[airdropAdmin], p.Admin); err != nil {
		return err
	}
	authority := MintAuthority(projectAddr, mint)
	if err := expectKey("mint authority", k[airdropMintAuthority], authority.Address); err != nil {
		return err
	}

	if err := fees.CollectPer(ctx, k[airdropPayer], m.FeeReceiver, m.UserFee, n); err != nil {
		return err
	}

	ctx.Logf("airdrop %s to %d receivers", mint, n)
	for i, amount := range args.Amounts {
		receiver, err := ctx.Account(airdropFixedAccounts + 2*i)
		if err != nil {
			return err
		}
		tokenAccount, err := ctx.Account(airdropFixedAccounts + 2*i + 1)
		if err != nil {
			return err
		}
		if want := token.AssociatedAddress(receiver.Key, mint).Address; tokenAccount.Key != want {
			return fmt.Errorf("%w: receiver %d token account is %s, want %s", gateerr.ErrInvalidAccount, i, tokenAccount.Key, want)
		}
		if err := token.CreateAssociated(ctx, k[airdropPayer], receiver.Key, mint); err != nil {
			return err
		}
		if err := token.MintTo(ctx, mint, tokenAccount.Key, authority, amount); err != nil {
			return err
		}
	}
	return nil
}
