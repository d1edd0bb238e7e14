// Package issuer signs claim authorizations off-ledger. It reads the user's
// current nonce, signs the canonical payload with the project admin key and
// returns the instruction pair the user submits.
package issuer

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/redis/go-redis/v9"

	"github.com/0gfoundation/0g-nonce-gate/internal/address"
	"github.com/0gfoundation/0g-nonce-gate/internal/airdrop"
	"github.com/0gfoundation/0g-nonce-gate/internal/authz"
	"github.com/0gfoundation/0g-nonce-gate/internal/bundle"
	"github.com/0gfoundation/0g-nonce-gate/internal/gateerr"
	"github.com/0gfoundation/0g-nonce-gate/internal/nonceverify"
	"github.com/0gfoundation/0g-nonce-gate/internal/state"
)

// IssuedKeyFmt is the Redis list of authorizations issued to a user.
const IssuedKeyFmt = "issuer:issued:%s"

var (
	ErrInvalidAmount = errors.New("issuer: amount must be between 1 and the configured maximum")
	ErrWrongAdmin    = errors.New("issuer: signing key is not the project admin")
)

// Target names the project, mint and nonce business an issuer signs for.
type Target struct {
	ProjectID       address.Address
	Mint            address.Address
	BusinessProject address.Address
	ServiceBase     address.Address
	MaxAmount       uint64
}

type Issuer struct {
	key    ed25519.PrivateKey
	target Target
	store  state.Store
	rdb    *redis.Client
}

// Authorization is what a user needs to claim: the signed facts and the
// companion + claim instructions, ready to bundle and sign.
type Authorization struct {
	Claim        authz.Claim          `json:"claim"`
	Payload      hexutil.Bytes        `json:"payload"`
	Signature    hexutil.Bytes        `json:"signature"`
	Admin        address.Address      `json:"admin"`
	Instructions []bundle.Instruction `json:"instructions"`
	IssuedAt     int64                `json:"issued_at"`
}

func New(key ed25519.PrivateKey, target Target, store state.Store, rdb *redis.Client) *Issuer {
	return &Issuer{key: key, target: target, store: store, rdb: rdb}
}

func (s *Issuer) Admin() address.Address {
	return address.FromPublicKey(s.key.Public().(ed25519.PublicKey))
}

// Check verifies that the configured project exists and that the signing
// key is its admin; signatures made otherwise would never verify.
func (s *Issuer) Check(ctx context.Context) error {
	p, err := airdrop.GetProject(ctx, s.store, airdrop.ProjectAddress(s.target.ProjectID).Address)
	if err != nil {
		return fmt.Errorf("load airdrop project: %w", err)
	}
	if p.Admin != s.Admin() {
		return fmt.Errorf("%w: admin is %s, key is %s", ErrWrongAdmin, p.Admin, s.Admin())
	}
	return nil
}

// Accounts returns the claim accounts for user. The user pays both the
// nonce fee and the token account's holding balance.
func (s *Issuer) Accounts(user address.Address) airdrop.ClaimAccounts {
	return airdrop.ClaimAccounts{
		NonceFeePayer:   user,
		SpaceFeePayer:   user,
		User:            user,
		ProjectID:       s.target.ProjectID,
		Mint:            s.target.Mint,
		ServiceBase:     s.target.ServiceBase,
		BusinessProject: s.target.BusinessProject,
	}
}

// Authorize signs a claim of amount for user at the user's current nonce.
// The nonce record must already exist.
func (s *Issuer) Authorize(ctx context.Context, user address.Address, amount uint64) (*Authorization, error) {
	if amount == 0 || amount > s.target.MaxAmount {
		return nil, ErrInvalidAmount
	}
	rec, err := nonceverify.GetUserNonce(ctx, s.store, s.target.BusinessProject, user)
	if err != nil {
		return nil, fmt.Errorf("user nonce: %w", err)
	}
	if rec.Owner != user {
		return nil, fmt.Errorf("%w: nonce record belongs to %s", gateerr.ErrInvalidAccount, rec.Owner)
	}

	accts := s.Accounts(user)
	claim := accts.Claim(rec.Counter, amount)
	sig := authz.Sign(claim, s.key)
	ixs, err := airdrop.ClaimInstructions(accts, claim.Nonce, amount, s.key.Public().(ed25519.PublicKey), sig)
	if err != nil {
		return nil, fmt.Errorf("build claim: %w", err)
	}
	a := &Authorization{
		Claim:        claim,
		Payload:      claim.Payload(),
		Signature:    sig,
		Admin:        s.Admin(),
		Instructions: ixs,
		IssuedAt:     time.Now().Unix(),
	}
	if err := s.record(ctx, user, a); err != nil {
		return nil, err
	}
	return a, nil
}

// record appends a to the user's issued list for auditing.
func (s *Issuer) record(ctx context.Context, user address.Address, a *Authorization) error {
	raw, err := json.Marshal(struct {
		Nonce     uint32        `json:"nonce"`
		Amount    uint64        `json:"amount"`
		Signature hexutil.Bytes `json:"signature"`
		IssuedAt  int64         `json:"issued_at"`
	}{a.Claim.Nonce, a.Claim.Amount, a.Signature, a.IssuedAt})
	if err != nil {
		return fmt.Errorf("marshal authorization: %w", err)
	}
	return s.rdb.RPush(ctx, fmt.Sprintf(IssuedKeyFmt, user), string(raw)).Err()
}
