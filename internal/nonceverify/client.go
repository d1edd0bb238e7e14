package nonceverify

import (
	"encoding/binary"
	"fmt"

	"github.com/0gfoundation/0g-nonce-gate/internal/address"
	"github.com/0gfoundation/0g-nonce-gate/internal/bundle"
	"github.com/0gfoundation/0g-nonce-gate/internal/codec"
	"github.com/0gfoundation/0g-nonce-gate/internal/gateerr"
	"github.com/0gfoundation/0g-nonce-gate/internal/runtime"
)

func instruction(tag codec.Discriminator, args any, metas ...bundle.AccountMeta) bundle.Instruction {
	var data []byte
	if args == nil {
		data = tag[:]
	} else {
		var err error
		if data, err = codec.Encode(tag, args); err != nil {
			panic(err)
		}
	}
	return bundle.Instruction{Program: ID, Accounts: metas, Data: data}
}

// InitializeServiceInstruction creates the nonce service owned by base.
// A nil admin leaves registration open to anyone.
func InitializeServiceInstruction(payer, base address.Address, admin *address.Address, registrationFee, useFee uint32) bundle.Instruction {
	return instruction(initializeServiceTag,
		InitializeServiceArgs{Admin: admin, RegistrationFee: registrationFee, UseFee: useFee},
		bundle.WritableSigner(payer),
		bundle.Signer(base),
		bundle.Writable(ServiceAddress(base).Address),
		bundle.Readonly(VaultAddress(base).Address),
	)
}

// RegisterBusinessInstruction registers businessID under the service of
// base. admin must be set when the service requires a co-signature.
func RegisterBusinessInstruction(payer, feePayer, base address.Address, businessID [32]byte, authority address.Address, admin *address.Address) bundle.Instruction {
	service := ServiceAddress(base).Address
	metas := []bundle.AccountMeta{
		bundle.WritableSigner(payer),
		bundle.WritableSigner(feePayer),
		bundle.Writable(BusinessAddress(service, businessID).Address),
		bundle.Readonly(service),
		bundle.Writable(VaultAddress(base).Address),
	}
	if admin != nil {
		metas = append(metas, bundle.Signer(*admin))
	}
	return instruction(registerBusinessTag, RegisterBusinessArgs{BusinessID: businessID, Authority: authority}, metas...)
}

func InitUserNonceInstruction(user, business address.Address) bundle.Instruction {
	return instruction(initUserNonceTag, nil,
		bundle.WritableSigner(user),
		bundle.Writable(UserNonceAddress(business, user).Address),
		bundle.Readonly(business),
	)
}

func CloseUserNonceInstruction(user, business address.Address) bundle.Instruction {
	return instruction(closeUserNonceTag, nil,
		bundle.WritableSigner(user),
		bundle.Writable(UserNonceAddress(business, user).Address),
	)
}

func ClaimFeeInstruction(admin, base, receiver address.Address, amount uint64) bundle.Instruction {
	return instruction(claimFeeTag, ClaimFeeArgs{Amount: amount},
		bundle.Signer(admin),
		bundle.Readonly(ServiceAddress(base).Address),
		bundle.Writable(VaultAddress(base).Address),
		bundle.Writable(receiver),
	)
}

// ── consume ───────────────────────────────────────────────────────────────────

// ConsumeAccounts lists every account a nonce consumption touches.
type ConsumeAccounts struct {
	FeePayer  address.Address
	User      address.Address
	UserNonce address.Address
	Authority address.Address
	Business  address.Address
	Service   address.Address
	Vault     address.Address
}

// NewConsumeAccounts fills in the derived accounts for a business
// registered under the service of base.
func NewConsumeAccounts(feePayer, user, authority, business, base address.Address) ConsumeAccounts {
	return ConsumeAccounts{
		FeePayer:  feePayer,
		User:      user,
		UserNonce: UserNonceAddress(business, user).Address,
		Authority: authority,
		Business:  business,
		Service:   ServiceAddress(base).Address,
		Vault:     VaultAddress(base).Address,
	}
}

// Metas returns the accounts in instruction order.
func (a ConsumeAccounts) Metas() []bundle.AccountMeta {
	return []bundle.AccountMeta{
		bundle.WritableSigner(a.FeePayer),
		bundle.Signer(a.User),
		bundle.Writable(a.UserNonce),
		bundle.Signer(a.Authority),
		bundle.Readonly(a.Business),
		bundle.Readonly(a.Service),
		bundle.Writable(a.Vault),
	}
}

// ConsumeInstruction consumes counterClaim directly. The authority must
// sign the bundle, so this form suits wallet authorities.
func ConsumeInstruction(a ConsumeAccounts, counterClaim uint32) bundle.Instruction {
	return instruction(consumeTag, ConsumeArgs{Nonce: counterClaim}, a.Metas()...)
}

// Consume is the entrypoint other programs use. The calling program signs
// as the business authority by presenting authority, a capability derived
// from its own id; the ledger then checks that address against the
// business record like any other signer.
func Consume(ctx *runtime.Context, authority address.Capability, a ConsumeAccounts, counterClaim uint32) (uint32, error) {
	if a.Authority != authority.Address {
		return 0, fmt.Errorf("%w: capability for %s used as authority %s", gateerr.ErrUnauthorized, authority.Address, a.Authority)
	}
	ret, err := ctx.Invoke(ConsumeInstruction(a, counterClaim), authority)
	if err != nil {
		return 0, err
	}
	if len(ret) != 4 {
		return 0, fmt.Errorf("%w: consume returned %d bytes", gateerr.ErrInvalidInstruction, len(ret))
	}
	return binary.LittleEndian.Uint32(ret), nil
}
