// Package system is the native balance program: it moves lamports between
// plain accounts and creates accounts on behalf of other programs.
package system

import (
	"context"
	"fmt"

	"github.com/0gfoundation/0g-nonce-gate/internal/address"
	"github.com/0gfoundation/0g-nonce-gate/internal/bundle"
	"github.com/0gfoundation/0g-nonce-gate/internal/codec"
	"github.com/0gfoundation/0g-nonce-gate/internal/gateerr"
	"github.com/0gfoundation/0g-nonce-gate/internal/runtime"
	"github.com/0gfoundation/0g-nonce-gate/internal/state"
)

var ID = runtime.SystemProgramID

var (
	transferTag = codec.InstructionTag("transfer")
	createTag   = codec.InstructionTag("create_account")
)

type transferArgs struct {
	Lamports uint64 `cbor:"1,keyasint"`
}

type createArgs struct {
	Lamports uint64          `cbor:"1,keyasint"`
	Owner    address.Address `cbor:"2,keyasint"`
}

type Program struct{}

func (Program) ID() address.Address { return ID }

func (Program) Process(ctx *runtime.Context, data []byte) ([]byte, error) {
	tag, raw, err := codec.Split(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gateerr.ErrInvalidInstruction, err)
	}
	switch tag {
	case transferTag:
		var args transferArgs
		if err := codec.Unmarshal(raw, &args); err != nil {
			return nil, fmt.Errorf("%w: %v", gateerr.ErrInvalidInstruction, err)
		}
		return nil, processTransfer(ctx, args)
	case createTag:
		var args createArgs
		if err := codec.Unmarshal(raw, &args); err != nil {
			return nil, fmt.Errorf("%w: %v", gateerr.ErrInvalidInstruction, err)
		}
		return nil, processCreate(ctx, args)
	default:
		return nil, fmt.Errorf("%w: unknown system instruction", gateerr.ErrInvalidInstruction)
	}
}

// debit takes lamports from a signing plain balance account.
func debit(ctx *runtime.Context, from address.Address, lamports uint64) error {
	if !ctx.IsSigner(from) {
		return fmt.Errorf("%w: %s", gateerr.ErrMissingSignature, from)
	}
	acct, err := ctx.Load(from)
	if err != nil {
		return err
	}
	if acct == nil {
		acct = &state.Account{Owner: ID}
	}
	if acct.Owner != ID || len(acct.Data) > 0 {
		return fmt.Errorf("%w: %s is not a plain balance account", gateerr.ErrIllegalOwner, from)
	}
	if acct.Lamports < lamports {
		return fmt.Errorf("%w: %s has %d, needs %d", gateerr.ErrInsufficientFunds, from, acct.Lamports, lamports)
	}
	acct.Lamports -= lamports
	return ctx.Save(from, acct)
}

func credit(ctx *runtime.Context, to address.Address, lamports uint64) error {
	acct, err := ctx.Load(to)
	if err != nil {
		return err
	}
	if acct == nil {
		acct = &state.Account{Owner: ID}
	}
	if acct.Lamports+lamports < acct.Lamports {
		return gateerr.ErrOverflow
	}
	acct.Lamports += lamports
	return ctx.Save(to, acct)
}

func processTransfer(ctx *runtime.Context, args transferArgs) error {
	from, err := ctx.Account(0)
	if err != nil {
		return err
	}
	to, err := ctx.Account(1)
	if err != nil {
		return err
	}
	if err := debit(ctx, from.Key, args.Lamports); err != nil {
		return err
	}
	return credit(ctx, to.Key, args.Lamports)
}

// processCreate funds a new account up to args.Lamports and assigns it to
// args.Owner. A pre-funded, unassigned address is topped up rather than
// rejected.
func processCreate(ctx *runtime.Context, args createArgs) error {
	payer, err := ctx.Account(0)
	if err != nil {
		return err
	}
	target, err := ctx.Account(1)
	if err != nil {
		return err
	}
	if !ctx.IsSigner(target.Key) {
		return fmt.Errorf("%w: new account %s", gateerr.ErrMissingSignature, target.Key)
	}
	existing, err := ctx.Load(target.Key)
	if err != nil {
		return err
	}
	var have uint64
	if existing != nil {
		if existing.Owner != ID || len(existing.Data) > 0 {
			return fmt.Errorf("%w: account %s already in use", gateerr.ErrAlreadyExists, target.Key)
		}
		have = existing.Lamports
	}
	if args.Lamports > have {
		if err := debit(ctx, payer.Key, args.Lamports-have); err != nil {
			return err
		}
		have = args.Lamports
	}
	ctx.Logf("create account %s owner %s", target.Key, args.Owner)
	return ctx.Save(target.Key, &state.Account{Owner: args.Owner, Lamports: have})
}

// ── instruction builders ──────────────────────────────────────────────────────

func mustEncode(tag codec.Discriminator, v any) []byte {
	data, err := codec.Encode(tag, v)
	if err != nil {
		panic(err)
	}
	return data
}

func TransferInstruction(from, to address.Address, lamports uint64) bundle.Instruction {
	return bundle.Instruction{
		Program:  ID,
		Accounts: []bundle.AccountMeta{bundle.WritableSigner(from), bundle.Writable(to)},
		Data:     mustEncode(transferTag, transferArgs{Lamports: lamports}),
	}
}

func CreateAccountInstruction(payer, target address.Address, lamports uint64, owner address.Address) bundle.Instruction {
	return bundle.Instruction{
		Program:  ID,
		Accounts: []bundle.AccountMeta{bundle.WritableSigner(payer), bundle.WritableSigner(target)},
		Data:     mustEncode(createTag, createArgs{Lamports: lamports, Owner: owner}),
	}
}

// ── cross-program helpers ─────────────────────────────────────────────────────

// Transfer moves lamports from a plain balance account. caps lets the
// calling program sign for a derived source such as a fee vault.
func Transfer(ctx *runtime.Context, from, to address.Address, lamports uint64, caps ...address.Capability) error {
	_, err := ctx.Invoke(TransferInstruction(from, to, lamports), caps...)
	return err
}

// CreateAccount creates target with a rent-exempt balance for space bytes,
// owned by owner and paid by payer.
func CreateAccount(ctx *runtime.Context, payer, target address.Address, space int, owner address.Address, caps ...address.Capability) error {
	lamports := ctx.Rent().MinimumBalance(space)
	_, err := ctx.Invoke(CreateAccountInstruction(payer, target, lamports, owner), caps...)
	return err
}

// ── off-ledger helpers ────────────────────────────────────────────────────────

// Balance reads the committed balance of addr.
func Balance(ctx context.Context, store state.Store, addr address.Address) (uint64, error) {
	acct, err := store.Get(ctx, addr)
	if err != nil || acct == nil {
		return 0, err
	}
	return acct.Lamports, nil
}

// Faucet credits a plain balance account outside any bundle. It exists for
// development networks and tests.
func Faucet(ctx context.Context, store state.Store, addr address.Address, lamports uint64) error {
	return store.Atomically(ctx, func(tx state.Tx) error {
		acct, err := tx.Get(addr)
		if err != nil {
			return err
		}
		if acct == nil {
			acct = &state.Account{Owner: ID}
		}
		if acct.Owner != ID || len(acct.Data) > 0 {
			return fmt.Errorf("%w: %s is not a plain balance account", gateerr.ErrIllegalOwner, addr)
		}
		if acct.Lamports+lamports < acct.Lamports {
			return gateerr.ErrOverflow
		}
		acct.Lamports += lamports
		tx.Put(addr, acct)
		return nil
	})
}
