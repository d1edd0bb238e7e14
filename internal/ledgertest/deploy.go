package ledgertest

import (
	"github.com/0gfoundation/0g-nonce-gate/internal/address"
	"github.com/0gfoundation/0g-nonce-gate/internal/airdrop"
	"github.com/0gfoundation/0g-nonce-gate/internal/nonceverify"
	"github.com/0gfoundation/0g-nonce-gate/internal/token"
)

// Deployment is a nonce service, an airdrop project minting through its
// derived mint authority, and a business registered with the project's
// derived business authority.
type Deployment struct {
	Payer     Wallet
	Admin     Wallet
	Base      Wallet
	ProjectID address.Address
	Project   address.Address
	Mint      address.Address
	Business  address.Address
}

// Deploy sets up a Deployment whose nonce service charges useFee per
// consumption.
func (e *Env) Deploy(useFee uint32) *Deployment {
	e.T.Helper()
	d := &Deployment{
		Payer:     e.Wallet(10 * Sol),
		Admin:     NewKey(e.T),
		Base:      NewKey(e.T),
		ProjectID: NewKey(e.T).Addr,
	}
	d.Project = airdrop.ProjectAddress(d.ProjectID).Address
	e.MustRun(Ixs(
		nonceverify.InitializeServiceInstruction(d.Payer.Addr, d.Base.Addr, nil, 0, useFee),
		airdrop.InitializeProjectInstruction(d.Payer.Addr, d.ProjectID, d.Admin.Addr),
	), d.Payer, d.Base)

	mint := NewKey(e.T)
	d.Mint = mint.Addr
	authority := airdrop.MintAuthority(d.Project, d.Mint).Address
	e.MustRun(Ixs(token.InitializeMintInstruction(d.Payer.Addr, d.Mint, &authority, 9)), d.Payer, mint)

	var id [32]byte
	copy(id[:], "ledgertest-business")
	d.Business = nonceverify.BusinessAddress(nonceverify.ServiceAddress(d.Base.Addr).Address, id).Address
	e.MustRun(Ixs(nonceverify.RegisterBusinessInstruction(
		d.Payer.Addr, d.Payer.Addr, d.Base.Addr, id, airdrop.BusinessAuthority(d.Project, d.Business).Address, nil,
	)), d.Payer)
	return d
}

// User returns a funded wallet with an initialised nonce record in d's
// business.
func (e *Env) User(d *Deployment) Wallet {
	e.T.Helper()
	u := e.Wallet(Sol)
	e.MustRun(Ixs(nonceverify.InitUserNonceInstruction(u.Addr, d.Business)), u)
	return u
}

// Accounts returns claim accounts for u where u pays every fee.
func (d *Deployment) Accounts(u address.Address) airdrop.ClaimAccounts {
	return airdrop.ClaimAccounts{
		NonceFeePayer:   u,
		SpaceFeePayer:   u,
		User:            u,
		ProjectID:       d.ProjectID,
		Mint:            d.Mint,
		ServiceBase:     d.Base.Addr,
		BusinessProject: d.Business,
	}
}

func (d *Deployment) Counter(e *Env, user address.Address) uint32 {
	e.T.Helper()
	rec, err := nonceverify.GetUserNonce(e.Ctx, e.Store, d.Business, user)
	if err != nil {
		e.T.Fatalf("user nonce: %v", err)
	}
	return rec.Counter
}

func (d *Deployment) Tokens(e *Env, user address.Address) uint64 {
	e.T.Helper()
	n, err := token.BalanceOf(e.Ctx, e.Store, user, d.Mint)
	if err != nil {
		e.T.Fatalf("token balance: %v", err)
	}
	return n
}

