package nonceverify

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/0gfoundation/0g-nonce-gate/internal/address"
	"github.com/0gfoundation/0g-nonce-gate/internal/codec"
	"github.com/0gfoundation/0g-nonce-gate/internal/fees"
	"github.com/0gfoundation/0g-nonce-gate/internal/gateerr"
	"github.com/0gfoundation/0g-nonce-gate/internal/runtime"
	"github.com/0gfoundation/0g-nonce-gate/internal/system"
)

var (
	initializeServiceTag = codec.InstructionTag("initialize_nonce_service")
	registerBusinessTag  = codec.InstructionTag("register_business_project")
	initUserNonceTag     = codec.InstructionTag("init_user_business_nonce")
	consumeTag           = codec.InstructionTag("verify_business_nonce")
	closeUserNonceTag    = codec.InstructionTag("close_user_business_nonce")
	claimFeeTag          = codec.InstructionTag("claim_nonce_fee")
)

// InitializeServiceArgs configures a new nonce service and its fees.
type InitializeServiceArgs struct {
	Admin           *address.Address `cbor:"1,keyasint,omitempty"`
	RegistrationFee uint32           `cbor:"2,keyasint"`
	UseFee          uint32           `cbor:"3,keyasint"`
}

// RegisterBusinessArgs names a business and the authority allowed to consume its nonces.
type RegisterBusinessArgs struct {
	BusinessID [32]byte        `cbor:"1,keyasint"`
	Authority  address.Address `cbor:"2,keyasint"`
}

// ConsumeArgs carries the nonce the caller expects to consume.
type ConsumeArgs struct {
	Nonce uint32 `cbor:"1,keyasint"`
}

// ClaimFeeArgs is the lamport amount to withdraw from the fee vault.
type ClaimFeeArgs struct {
	Amount uint64 `cbor:"1,keyasint"`
}

// Program is the nonce ledger.
type Program struct{}

func (Program) ID() address.Address { return ID }

func (Program) Process(ctx *runtime.Context, data []byte) ([]byte, error) {
	tag, raw, err := codec.Split(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gateerr.ErrInvalidInstruction, err)
	}
	switch tag {
	case initializeServiceTag:
		var args InitializeServiceArgs
		if err := decodeArgs(raw, &args); err != nil {
			return nil, err
		}
		return nil, initializeService(ctx, args)
	case registerBusinessTag:
		var args RegisterBusinessArgs
		if err := decodeArgs(raw, &args); err != nil {
			return nil, err
		}
		return nil, registerBusiness(ctx, args)
	case initUserNonceTag:
		return nil, initUserNonce(ctx)
	case consumeTag:
		var args ConsumeArgs
		if err := decodeArgs(raw, &args); err != nil {
			return nil, err
		}
		next, err := consume(ctx, args)
		if err != nil {
			return nil, err
		}
		return binary.LittleEndian.AppendUint32(nil, next), nil
	case closeUserNonceTag:
		return nil, closeUserNonce(ctx)
	case claimFeeTag:
		var args ClaimFeeArgs
		if err := decodeArgs(raw, &args); err != nil {
			return nil, err
		}
		return nil, claimFee(ctx, args)
	default:
		return nil, fmt.Errorf("%w: unknown nonce-verify instruction", gateerr.ErrInvalidInstruction)
	}
}

func decodeArgs(raw []byte, v any) error {
	if err := codec.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", gateerr.ErrInvalidInstruction, err)
	}
	return nil
}

// accounts resolves the first n instruction accounts.
func accounts(ctx *runtime.Context, n int) ([]address.Address, error) {
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

// createRecord creates a derived account owned by this program and writes
// the encoded record into it.
func createRecord(ctx *runtime.Context, payer address.Address, at address.Capability, space int, tag codec.Discriminator, v any) error {
	if err := system.CreateAccount(ctx, payer, at.Address, space, ID, at); err != nil {
		return err
	}
	return saveRecord(ctx, at.Address, tag, v)
}

func saveRecord(ctx *runtime.Context, addr address.Address, tag codec.Discriminator, v any) error {
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

// loadService decodes the service at addr and checks it sits at its
// canonical derived address.
func loadService(ctx *runtime.Context, addr address.Address) (*NonceService, error) {
	acct, err := ctx.Load(addr)
	if err != nil {
		return nil, err
	}
	svc, err := DecodeService(acct)
	if err != nil {
		return nil, fmt.Errorf("nonce service %s: %w", addr, err)
	}
	if err := expectKey("nonce service", addr, ServiceAddress(svc.Base).Address); err != nil {
		return nil, err
	}
	return svc, nil
}

func loadBusiness(ctx *runtime.Context, addr address.Address) (*BusinessProject, error) {
	acct, err := ctx.Load(addr)
	if err != nil {
		return nil, err
	}
	biz, err := DecodeBusiness(acct)
	if err != nil {
		return nil, fmt.Errorf("business project %s: %w", addr, err)
	}
	if err := expectKey("business project", addr, BusinessAddress(biz.NonceService, biz.BusinessID).Address); err != nil {
		return nil, err
	}
	return biz, nil
}

// ── instructions ──────────────────────────────────────────────────────────────

// accounts: payer, base, service, vault
func initializeService(ctx *runtime.Context, args InitializeServiceArgs) error {
	keys, err := accounts(ctx, 4)
	if err != nil {
		return err
	}
	payer, base, service, vault := keys[0], keys[1], keys[2], keys[3]
	if !ctx.IsSigner(base) {
		return fmt.Errorf("%w: base %s", gateerr.ErrMissingSignature, base)
	}
	at := ServiceAddress(base)
	if err := expectKey("nonce service", service, at.Address); err != nil {
		return err
	}
	vaultAt := VaultAddress(base)
	if err := expectKey("nonce vault", vault, vaultAt.Address); err != nil {
		return err
	}
	if existing, err := ctx.Load(service); err != nil {
		return err
	} else if existing != nil && (existing.Owner == ID || len(existing.Data) > 0) {
		return fmt.Errorf("%w: nonce service %s", gateerr.ErrAlreadyInitialized, service)
	}

	ctx.Logf("initialize nonce service %s", service)
	return createRecord(ctx, payer, at, ServiceSpace, serviceTag, &NonceService{
		Admin:           args.Admin,
		Base:            base,
		Vault:           vaultAt.Address,
		RegistrationFee: args.RegistrationFee,
		UseFee:          args.UseFee,
	})
}

// accounts: payer, fee payer, business, service, vault, [admin]
func registerBusiness(ctx *runtime.Context, args RegisterBusinessArgs) error {
	keys, err := accounts(ctx, 5)
	if err != nil {
		return err
	}
	payer, feePayer, business, service, vault := keys[0], keys[1], keys[2], keys[3], keys[4]

	svc, err := loadService(ctx, service)
	if err != nil {
		return err
	}
	if err := expectKey("nonce vault", vault, svc.Vault); err != nil {
		return err
	}
	if err := svc.Gate().authorize(ctx.IsSigner); err != nil {
		return err
	}

	at := BusinessAddress(service, args.BusinessID)
	if err := expectKey("business project", business, at.Address); err != nil {
		return err
	}
	if existing, err := ctx.Load(business); err != nil {
		return err
	} else if existing != nil && (existing.Owner == ID || len(existing.Data) > 0) {
		return fmt.Errorf("%w: business project %s", gateerr.ErrAlreadyExists, business)
	}

	if err := fees.Collect(ctx, feePayer, vault, svc.RegistrationFee); err != nil {
		return err
	}
	ctx.Logf("register business project %s authority %s", business, args.Authority)
	return createRecord(ctx, payer, at, BusinessSpace, businessTag, &BusinessProject{
		BusinessID:   args.BusinessID,
		Authority:    args.Authority,
		NonceService: service,
	})
}

// accounts: user, user nonce, business
func initUserNonce(ctx *runtime.Context) error {
	keys, err := accounts(ctx, 3)
	if err != nil {
		return err
	}
	user, nonce, business := keys[0], keys[1], keys[2]
	if _, err := loadBusiness(ctx, business); err != nil {
		return err
	}
	at := UserNonceAddress(business, user)
	if err := expectKey("user nonce", nonce, at.Address); err != nil {
		return err
	}
	if existing, err := ctx.Load(nonce); err != nil {
		return err
	} else if existing != nil && (existing.Owner == ID || len(existing.Data) > 0) {
		return fmt.Errorf("%w: user nonce %s", gateerr.ErrAlreadyInitialized, nonce)
	}
	ctx.Logf("init user nonce %s", nonce)
	return createRecord(ctx, user, at, UserNonceSpace, userNonceTag, &UserBusinessNonce{
		BusinessProject: business,
		Owner:           user,
	})
}

// accounts: fee payer, user, user nonce, authority, business, service, vault
func consume(ctx *runtime.Context, args ConsumeArgs) (uint32, error) {
	keys, err := accounts(ctx, 7)
	if err != nil {
		return 0, err
	}
	feePayer, user, nonce, authority, business, service, vault := keys[0], keys[1], keys[2], keys[3], keys[4], keys[5], keys[6]

	biz, err := loadBusiness(ctx, business)
	if err != nil {
		return 0, err
	}
	if err := expectKey("nonce service", service, biz.NonceService); err != nil {
		return 0, err
	}
	if authority != biz.Authority {
		return 0, fmt.Errorf("%w: %s is not the authority of business %s", gateerr.ErrUnauthorized, authority, business)
	}
	if !ctx.IsSigner(authority) {
		return 0, fmt.Errorf("%w: business authority %s", gateerr.ErrMissingSignature, authority)
	}
	if !ctx.IsSigner(user) {
		return 0, fmt.Errorf("%w: user %s", gateerr.ErrMissingSignature, user)
	}

	svc, err := loadService(ctx, service)
	if err != nil {
		return 0, err
	}
	if err := expectKey("nonce vault", vault, svc.Vault); err != nil {
		return 0, err
	}

	if err := expectKey("user nonce", nonce, UserNonceAddress(business, user).Address); err != nil {
		return 0, err
	}
	acct, err := ctx.Load(nonce)
	if err != nil {
		return 0, err
	}
	rec, err := DecodeUserNonce(acct)
	if err != nil {
		return 0, fmt.Errorf("user nonce %s: %w", nonce, err)
	}

	if err := fees.Collect(ctx, feePayer, vault, svc.UseFee); err != nil {
		return 0, err
	}

	if rec.Counter != args.Nonce {
		return 0, fmt.Errorf("%w: claimed %d, current %d", gateerr.ErrNonceMismatch, args.Nonce, rec.Counter)
	}
	if rec.Counter == math.MaxUint32 {
		return 0, gateerr.ErrNonceExhausted
	}
	rec.Counter++
	ctx.Logf("consume nonce %d, next %d", args.Nonce, rec.Counter)
	if err := saveRecord(ctx, nonce, userNonceTag, rec); err != nil {
		return 0, err
	}
	return rec.Counter, nil
}

// accounts: user, user nonce
func closeUserNonce(ctx *runtime.Context) error {
	keys, err := accounts(ctx, 2)
	if err != nil {
		return err
	}
	user, nonce := keys[0], keys[1]
	acct, err := ctx.Load(nonce)
	if err != nil {
		return err
	}
	rec, err := DecodeUserNonce(acct)
	if err != nil {
		return fmt.Errorf("user nonce %s: %w", nonce, err)
	}
	if rec.Owner != user {
		return fmt.Errorf("%w: user nonce %s belongs to %s", gateerr.ErrUnauthorized, nonce, rec.Owner)
	}
	if !ctx.IsSigner(user) {
		return fmt.Errorf("%w: user %s", gateerr.ErrMissingSignature, user)
	}
	ctx.Logf("close user nonce %s", nonce)
	return ctx.Close(nonce, user)
}

// accounts: admin, service, vault, receiver
func claimFee(ctx *runtime.Context, args ClaimFeeArgs) error {
	keys, err := accounts(ctx, 4)
	if err != nil {
		return err
	}
	admin, service, vault, receiver := keys[0], keys[1], keys[2], keys[3]
	svc, err := loadService(ctx, service)
	if err != nil {
		return err
	}
	if svc.Admin == nil {
		return fmt.Errorf("%w: nonce service %s has no admin", gateerr.ErrUnauthorized, service)
	}
	if admin != *svc.Admin {
		return fmt.Errorf("%w: %s is not the admin of %s", gateerr.ErrUnauthorized, admin, service)
	}
	if err := svc.Gate().authorize(ctx.IsSigner); err != nil {
		return err
	}
	vaultAt := VaultAddress(svc.Base)
	if err := expectKey("nonce vault", vault, vaultAt.Address); err != nil {
		return err
	}
	ctx.Logf("claim fee %d to %s", args.Amount, receiver)
	return system.Transfer(ctx, vault, receiver, args.Amount, vaultAt)
}
