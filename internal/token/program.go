package token

import (
	"fmt"

	"github.com/0gfoundation/0g-nonce-gate/internal/address"
	"github.com/0gfoundation/0g-nonce-gate/internal/bundle"
	"github.com/0gfoundation/0g-nonce-gate/internal/codec"
	"github.com/0gfoundation/0g-nonce-gate/internal/gateerr"
	"github.com/0gfoundation/0g-nonce-gate/internal/runtime"
	"github.com/0gfoundation/0g-nonce-gate/internal/system"
)

var (
	initializeMintTag   = codec.InstructionTag("initialize_mint")
	createAssociatedTag = codec.InstructionTag("create_associated_token_account")
	mintToTag           = codec.InstructionTag("mint_to")
	setAuthorityTag     = codec.InstructionTag("set_authority")
)

type initializeMintArgs struct {
	Authority *address.Address `cbor:"1,keyasint,omitempty"`
	Decimals  uint8            `cbor:"2,keyasint"`
}

type mintToArgs struct {
	Amount uint64 `cbor:"1,keyasint"`
}

type setAuthorityArgs struct {
	New *address.Address `cbor:"1,keyasint,omitempty"`
}

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
	case initializeMintTag:
		var args initializeMintArgs
		if err := decodeArgs(&args); err != nil {
			return nil, err
		}
		return nil, initializeMint(ctx, args)
	case createAssociatedTag:
		return nil, createAssociated(ctx)
	case mintToTag:
		var args mintToArgs
		if err := decodeArgs(&args); err != nil {
			return nil, err
		}
		return nil, mintTo(ctx, args)
	case setAuthorityTag:
		var args setAuthorityArgs
		if err := decodeArgs(&args); err != nil {
			return nil, err
		}
		return nil, setAuthority(ctx, args)
	default:
		return nil, fmt.Errorf("%w: unknown token instruction", gateerr.ErrInvalidInstruction)
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

func loadMint(ctx *runtime.Context, addr address.Address) (*Mint, error) {
	acct, err := ctx.Load(addr)
	if err != nil {
		return nil, err
	}
	m, err := DecodeMint(acct)
	if err != nil {
		return nil, fmt.Errorf("mint %s: %w", addr, err)
	}
	return m, nil
}

// accounts: payer, mint (signer)
func initializeMint(ctx *runtime.Context, args initializeMintArgs) error {
	k, err := keys(ctx, 2)
	if err != nil {
		return err
	}
	payer, mint := k[0], k[1]
	if existing, err := ctx.Load(mint); err != nil {
		return err
	} else if existing != nil && (existing.Owner == ID || len(existing.Data) > 0) {
		return fmt.Errorf("%w: mint %s", gateerr.ErrAlreadyInitialized, mint)
	}
	if err := system.CreateAccount(ctx, payer, mint, MintSpace, ID); err != nil {
		return err
	}
	return save(ctx, mint, mintTag, &Mint{Authority: args.Authority, Decimals: args.Decimals})
}

// accounts: payer, associated account, owner, mint. Succeeds without change
// when the account already exists.
func createAssociated(ctx *runtime.Context) error {
	k, err := keys(ctx, 4)
	if err != nil {
		return err
	}
	payer, ata, owner, mint := k[0], k[1], k[2], k[3]
	if _, err := loadMint(ctx, mint); err != nil {
		return err
	}
	at := AssociatedAddress(owner, mint)
	if ata != at.Address {
		return fmt.Errorf("%w: associated account is %s, want %s", gateerr.ErrInvalidAccount, ata, at.Address)
	}
	existing, err := ctx.Load(ata)
	if err != nil {
		return err
	}
	if existing != nil && existing.Owner == ID {
		a, err := DecodeAccount(existing)
		if err != nil {
			return err
		}
		if a.Mint != mint || a.Owner != owner {
			return fmt.Errorf("%w: associated account %s mismatched", gateerr.ErrInvalidAccount, ata)
		}
		return nil
	}
	if err := system.CreateAccount(ctx, payer, ata, AccountSpace, ID, at); err != nil {
		return err
	}
	return save(ctx, ata, accountTag, &Account{Mint: mint, Owner: owner})
}

// accounts: mint, destination, authority (signer)
func mintTo(ctx *runtime.Context, args mintToArgs) error {
	k, err := keys(ctx, 3)
	if err != nil {
		return err
	}
	mintAddr, dest, authority := k[0], k[1], k[2]
	m, err := loadMint(ctx, mintAddr)
	if err != nil {
		return err
	}
	if m.Authority == nil {
		return fmt.Errorf("%w: %s", gateerr.ErrMintDisabled, mintAddr)
	}
	if *m.Authority != authority {
		return fmt.Errorf("%w: %s is not the mint authority of %s", gateerr.ErrUnauthorized, authority, mintAddr)
	}
	if !ctx.IsSigner(authority) {
		return fmt.Errorf("%w: mint authority %s", gateerr.ErrMissingSignature, authority)
	}
	destAcct, err := ctx.Load(dest)
	if err != nil {
		return err
	}
	ta, err := DecodeAccount(destAcct)
	if err != nil {
		return fmt.Errorf("token account %s: %w", dest, err)
	}
	if ta.Mint != mintAddr {
		return fmt.Errorf("%w: token account %s holds mint %s", gateerr.ErrInvalidAccount, dest, ta.Mint)
	}
	if m.Supply+args.Amount < m.Supply || ta.Amount+args.Amount < ta.Amount {
		return gateerr.ErrOverflow
	}
	m.Supply += args.Amount
	ta.Amount += args.Amount
	if err := save(ctx, mintAddr, mintTag, m); err != nil {
		return err
	}
	ctx.Logf("mint %d of %s to %s", args.Amount, mintAddr, dest)
	return save(ctx, dest, accountTag, ta)
}

// accounts: mint, current authority (signer)
func setAuthority(ctx *runtime.Context, args setAuthorityArgs) error {
	k, err := keys(ctx, 2)
	if err != nil {
		return err
	}
	mintAddr, current := k[0], k[1]
	m, err := loadMint(ctx, mintAddr)
	if err != nil {
		return err
	}
	if m.Authority == nil {
		return fmt.Errorf("%w: %s", gateerr.ErrMintDisabled, mintAddr)
	}
	if *m.Authority != current || !ctx.IsSigner(current) {
		return fmt.Errorf("%w: %s may not change the authority of %s", gateerr.ErrUnauthorized, current, mintAddr)
	}
	m.Authority = args.New
	return save(ctx, mintAddr, mintTag, m)
}

// ── instruction builders ──────────────────────────────────────────────────────

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

// InitializeMintInstruction creates mint; the mint key must sign.
func InitializeMintInstruction(payer, mint address.Address, authority *address.Address, decimals uint8) bundle.Instruction {
	return instruction(initializeMintTag, initializeMintArgs{Authority: authority, Decimals: decimals},
		bundle.WritableSigner(payer), bundle.WritableSigner(mint))
}

func CreateAssociatedInstruction(payer, owner, mint address.Address) bundle.Instruction {
	return instruction(createAssociatedTag, nil,
		bundle.WritableSigner(payer),
		bundle.Writable(AssociatedAddress(owner, mint).Address),
		bundle.Readonly(owner),
		bundle.Readonly(mint),
	)
}

func MintToInstruction(mint, dest, authority address.Address, amount uint64) bundle.Instruction {
	return instruction(mintToTag, mintToArgs{Amount: amount},
		bundle.Writable(mint), bundle.Writable(dest), bundle.Signer(authority))
}

func SetAuthorityInstruction(mint, current address.Address, next *address.Address) bundle.Instruction {
	return instruction(setAuthorityTag, setAuthorityArgs{New: next},
		bundle.Writable(mint), bundle.Signer(current))
}

// ── cross-program helpers ─────────────────────────────────────────────────────

func CreateAssociated(ctx *runtime.Context, payer, owner, mint address.Address) error {
	_, err := ctx.Invoke(CreateAssociatedInstruction(payer, owner, mint))
	return err
}

// MintTo mints under a derived mint authority held by the calling program.
func MintTo(ctx *runtime.Context, mint, dest address.Address, authority address.Capability, amount uint64) error {
	_, err := ctx.Invoke(MintToInstruction(mint, dest, authority.Address, amount), authority)
	return err
}

func SetAuthority(ctx *runtime.Context, mint address.Address, current address.Capability, next *address.Address) error {
	_, err := ctx.Invoke(SetAuthorityInstruction(mint, current.Address, next), current)
	return err
}
