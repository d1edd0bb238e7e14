// Package nonceverify is the nonce ledger program. A nonce service charges
// fees and admits business projects; each business project keeps one
// strictly increasing counter per user, which authorized callers consume to
// make each authorization single-use.
package nonceverify

import (
	"context"
	"fmt"

	"github.com/0gfoundation/0g-nonce-gate/internal/address"
	"github.com/0gfoundation/0g-nonce-gate/internal/codec"
	"github.com/0gfoundation/0g-nonce-gate/internal/gateerr"
	"github.com/0gfoundation/0g-nonce-gate/internal/state"
)

var ID = address.MustParse("4U17W5WH9JJQZK9HcZaD9mYhWehhBSyymAoG6gMYj5CW")

// Derived-address seeds.
var (
	ServiceSeed   = []byte("nonce_verify_project")
	VaultSeed     = []byte("nonce_vault_account")
	BusinessSeed  = []byte("business_project")
	UserNonceSeed = []byte("user_business_nonce")
)

// Declared record sizes, used to price the holding balance.
const (
	ServiceSpace   = codec.DiscriminatorLen + (1 + 32) + 32 + 32 + 4 + 4
	BusinessSpace  = codec.DiscriminatorLen + 32 + 32 + 32
	UserNonceSpace = codec.DiscriminatorLen + 4 + 32 + 32
)

var (
	serviceTag   = codec.AccountTag("NonceService")
	businessTag  = codec.AccountTag("BusinessProject")
	userNonceTag = codec.AccountTag("UserBusinessNonce")
)

// ── admin gate ────────────────────────────────────────────────────────────────

// AdminGate decides whether registering a business needs a co-signature.
// It is either NoAdmin or RequireSignature.
type AdminGate interface {
	authorize(signed func(address.Address) bool) error
}

// NoAdmin lets anyone register.
type NoAdmin struct{}

// RequireSignature requires Admin to co-sign every registration.
type RequireSignature struct {
	Admin address.Address
}

func (NoAdmin) authorize(func(address.Address) bool) error { return nil }

func (g RequireSignature) authorize(signed func(address.Address) bool) error {
	if !signed(g.Admin) {
		return fmt.Errorf("%w: %s", gateerr.ErrAdminSignatureRequired, g.Admin)
	}
	return nil
}

// ── records ───────────────────────────────────────────────────────────────────

// NonceService is the fee schedule and admin policy shared by all business
// projects registered under it.
type NonceService struct {
	Admin           *address.Address `cbor:"1,keyasint,omitempty" json:"admin,omitempty"`
	Base            address.Address  `cbor:"2,keyasint" json:"base"`
	Vault           address.Address  `cbor:"3,keyasint" json:"vault"`
	RegistrationFee uint32           `cbor:"4,keyasint" json:"registration_fee"`
	UseFee          uint32           `cbor:"5,keyasint" json:"use_fee"`
}

// Gate returns the admin policy of the service.
func (s *NonceService) Gate() AdminGate {
	if s.Admin == nil {
		return NoAdmin{}
	}
	return RequireSignature{Admin: *s.Admin}
}

// BusinessProject is a tenant of a nonce service. Only Authority may
// consume its users' nonces.
type BusinessProject struct {
	BusinessID   [32]byte        `cbor:"1,keyasint" json:"business_id"`
	Authority    address.Address `cbor:"2,keyasint" json:"authority"`
	NonceService address.Address `cbor:"3,keyasint" json:"nonce_service"`
}

// UserBusinessNonce is the replay counter for one (business, user) pair.
type UserBusinessNonce struct {
	Counter         uint32          `cbor:"1,keyasint" json:"counter"`
	BusinessProject address.Address `cbor:"2,keyasint" json:"business_project"`
	Owner           address.Address `cbor:"3,keyasint" json:"owner"`
}

// ── addresses ─────────────────────────────────────────────────────────────────

func ServiceAddress(base address.Address) address.Capability {
	return address.MustDerive(ID, ServiceSeed, base[:])
}

func VaultAddress(base address.Address) address.Capability {
	return address.MustDerive(ID, VaultSeed, base[:])
}

func BusinessAddress(service address.Address, businessID [32]byte) address.Capability {
	return address.MustDerive(ID, BusinessSeed, service[:], businessID[:])
}

func UserNonceAddress(business, user address.Address) address.Capability {
	return address.MustDerive(ID, UserNonceSeed, business[:], user[:])
}

// ── decoding ──────────────────────────────────────────────────────────────────

func decodeOwned(acct *state.Account, tag codec.Discriminator, v any) error {
	if acct == nil {
		return gateerr.ErrNotInitialized
	}
	if acct.Owner != ID {
		return fmt.Errorf("%w: record owned by %s", gateerr.ErrIllegalOwner, acct.Owner)
	}
	if err := codec.Decode(tag, acct.Data, v); err != nil {
		return fmt.Errorf("%w: %v", gateerr.ErrInvalidAccount, err)
	}
	return nil
}

func DecodeService(acct *state.Account) (*NonceService, error) {
	var s NonceService
	return &s, decodeOwned(acct, serviceTag, &s)
}

func DecodeBusiness(acct *state.Account) (*BusinessProject, error) {
	var b BusinessProject
	return &b, decodeOwned(acct, businessTag, &b)
}

func DecodeUserNonce(acct *state.Account) (*UserBusinessNonce, error) {
	var n UserBusinessNonce
	return &n, decodeOwned(acct, userNonceTag, &n)
}

// ── committed-state queries ───────────────────────────────────────────────────

func GetService(ctx context.Context, store state.Store, addr address.Address) (*NonceService, error) {
	acct, err := store.Get(ctx, addr)
	if err != nil {
		return nil, err
	}
	return DecodeService(acct)
}

func GetBusiness(ctx context.Context, store state.Store, addr address.Address) (*BusinessProject, error) {
	acct, err := store.Get(ctx, addr)
	if err != nil {
		return nil, err
	}
	return DecodeBusiness(acct)
}

// GetUserNonce reads the counter record for (business, user).
func GetUserNonce(ctx context.Context, store state.Store, business, user address.Address) (*UserBusinessNonce, error) {
	acct, err := store.Get(ctx, UserNonceAddress(business, user).Address)
	if err != nil {
		return nil, err
	}
	return DecodeUserNonce(acct)
}
