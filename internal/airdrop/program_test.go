package airdrop_test

import (
	"crypto/ed25519"
	"crypto/sha256"
	"errors"
	"sync"
	"testing"

	"github.com/0gfoundation/0g-nonce-gate/internal/address"
	"github.com/0gfoundation/0g-nonce-gate/internal/airdrop"
	"github.com/0gfoundation/0g-nonce-gate/internal/authz"
	"github.com/0gfoundation/0g-nonce-gate/internal/bundle"
	"github.com/0gfoundation/0g-nonce-gate/internal/ed25519prog"
	"github.com/0gfoundation/0g-nonce-gate/internal/gateerr"
	"github.com/0gfoundation/0g-nonce-gate/internal/ledgertest"
	"github.com/0gfoundation/0g-nonce-gate/internal/nonceverify"
	"github.com/0gfoundation/0g-nonce-gate/internal/token"
)

// ── helpers ───────────────────────────────────────────────────────────────────

type fixture struct {
	env       *ledgertest.Env
	payer     ledgertest.Wallet
	admin     ledgertest.Wallet
	base      ledgertest.Wallet
	mint      address.Address
	projectID address.Address
	project   address.Address
	business  address.Address
	accts     airdrop.ClaimAccounts
	user      ledgertest.Wallet
}

// setup deploys a nonce service (use fee 10), an airdrop project whose
// derived mint authority controls a fresh mint, a business registered with
// the project's derived business authority, and a user with a nonce record.
func setup(t *testing.T) *fixture {
	t.Helper()
	env := ledgertest.NewEnv(t)
	f := &fixture{
		env:   env,
		payer: env.Wallet(10 * ledgertest.Sol),
		admin: ledgertest.NewKey(t),
		base:  ledgertest.NewKey(t),
	}
	f.projectID = ledgertest.NewKey(t).Addr
	f.project = airdrop.ProjectAddress(f.projectID).Address

	env.MustRun(ledgertest.Ixs(
		nonceverify.InitializeServiceInstruction(f.payer.Addr, f.base.Addr, nil, 0, 10),
		airdrop.InitializeProjectInstruction(f.payer.Addr, f.projectID, f.admin.Addr),
	), f.payer, f.base)

	mintKey := ledgertest.NewKey(t)
	f.mint = mintKey.Addr
	mintAuthority := airdrop.MintAuthority(f.project, f.mint).Address
	env.MustRun(ledgertest.Ixs(
		token.InitializeMintInstruction(f.payer.Addr, f.mint, &mintAuthority, 9),
	), f.payer, mintKey)

	var businessID [32]byte
	copy(businessID[:], "airdrop-business")
	service := nonceverify.ServiceAddress(f.base.Addr).Address
	f.business = nonceverify.BusinessAddress(service, businessID).Address
	authority := airdrop.BusinessAuthority(f.project, f.business).Address
	env.MustRun(ledgertest.Ixs(
		nonceverify.RegisterBusinessInstruction(f.payer.Addr, f.payer.Addr, f.base.Addr, businessID, authority, nil),
	), f.payer)

	f.user = f.newUser(t)
	f.accts = f.claimAccounts(f.user)
	return f
}

func (f *fixture) newUser(t *testing.T) ledgertest.Wallet {
	t.Helper()
	u := f.env.Wallet(ledgertest.Sol)
	f.env.MustRun(ledgertest.Ixs(nonceverify.InitUserNonceInstruction(u.Addr, f.business)), u)
	return u
}

func (f *fixture) claimAccounts(u ledgertest.Wallet) airdrop.ClaimAccounts {
	return airdrop.ClaimAccounts{
		NonceFeePayer:   f.payer.Addr,
		SpaceFeePayer:   f.payer.Addr,
		User:            u.Addr,
		ProjectID:       f.projectID,
		Mint:            f.mint,
		ServiceBase:     f.base.Addr,
		BusinessProject: f.business,
	}
}

func (f *fixture) claimIxs(t *testing.T, nonce uint32, amount uint64) []bundle.Instruction {
	t.Helper()
	sig := authz.Sign(f.accts.Claim(nonce, amount), f.admin.Key)
	ixs, err := airdrop.ClaimInstructions(f.accts, nonce, amount, f.admin.Key.Public().(ed25519.PublicKey), sig)
	if err != nil {
		t.Fatalf("claim instructions: %v", err)
	}
	return ixs
}

func (f *fixture) claim(t *testing.T, nonce uint32, amount uint64) error {
	t.Helper()
	_, err := f.env.Run(f.claimIxs(t, nonce, amount), f.payer, f.user)
	return err
}

func (f *fixture) tokens(t *testing.T) uint64 {
	t.Helper()
	n, err := token.BalanceOf(f.env.Ctx, f.env.Store, f.user.Addr, f.mint)
	if err != nil {
		t.Fatalf("token balance: %v", err)
	}
	return n
}

func (f *fixture) counter(t *testing.T) uint32 {
	t.Helper()
	rec, err := nonceverify.GetUserNonce(f.env.Ctx, f.env.Store, f.business, f.user.Addr)
	if err != nil {
		t.Fatalf("user nonce: %v", err)
	}
	return rec.Counter
}

func (f *fixture) vault() address.Address { return nonceverify.VaultAddress(f.base.Addr).Address }

// ── derived addresses ─────────────────────────────────────────────────────────

func TestBusinessAuthority_OffCurve(t *testing.T) {
	project := ledgertest.NewKey(t).Addr
	business := ledgertest.NewKey(t).Addr

	c := airdrop.BusinessAuthority(project, business)
	if address.IsOnCurve(c.Address[:]) {
		t.Fatalf("business authority %s is on curve", c.Address)
	}
	if again := airdrop.BusinessAuthority(project, business); again.Address != c.Address {
		t.Errorf("derivation not deterministic: %s vs %s", again.Address, c.Address)
	}
	if err := c.VerifyFor(airdrop.ID); err != nil {
		t.Errorf("VerifyFor: %v", err)
	}
	for i, s := range c.Seeds {
		if len(s) > address.MaxSeedLen {
			t.Errorf("seed %d is %d bytes", i, len(s))
		}
	}

	// The split tag hashes the same as the joined one.
	h := sha256.New()
	h.Write([]byte("airdrop_nonce_verify_business_project"))
	h.Write(project[:])
	h.Write(business[:])
	h.Write([]byte{c.Bump})
	h.Write(airdrop.ID[:])
	h.Write([]byte("ProgramDerivedAddress"))
	var want address.Address
	copy(want[:], h.Sum(nil))
	if c.Address != want {
		t.Errorf("address = %s, want %s", c.Address, want)
	}
}

func TestClaimInstructions_WithoutDeployment(t *testing.T) {
	admin := ledgertest.NewKey(t)
	a := airdrop.ClaimAccounts{
		NonceFeePayer:   ledgertest.NewKey(t).Addr,
		SpaceFeePayer:   ledgertest.NewKey(t).Addr,
		User:            ledgertest.NewKey(t).Addr,
		ProjectID:       ledgertest.NewKey(t).Addr,
		Mint:            ledgertest.NewKey(t).Addr,
		ServiceBase:     ledgertest.NewKey(t).Addr,
		BusinessProject: ledgertest.NewKey(t).Addr,
	}
	sig := authz.Sign(a.Claim(3, 500), admin.Key)

	ixs, err := airdrop.ClaimInstructions(a, 3, 500, admin.Key.Public().(ed25519.PublicKey), sig)
	if err != nil {
		t.Fatalf("claim instructions: %v", err)
	}
	if len(ixs) != 2 {
		t.Fatalf("instructions = %d, want 2", len(ixs))
	}
	if ixs[0].Program != ed25519prog.ID || ixs[1].Program != airdrop.ID {
		t.Errorf("programs = %s, %s", ixs[0].Program, ixs[1].Program)
	}
	authority := airdrop.BusinessAuthority(a.Project(), a.BusinessProject).Address
	found := false
	for _, m := range ixs[1].Accounts {
		if m.Key == authority {
			found = !m.Signer && !m.Writable
		}
	}
	if !found {
		t.Errorf("claim accounts do not carry read-only business authority %s", authority)
	}
}

// ── claim ─────────────────────────────────────────────────────────────────────

func TestClaim_Success(t *testing.T) {
	f := setup(t)
	if err := f.claim(t, 0, 1000); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if got := f.tokens(t); got != 1000 {
		t.Errorf("tokens = %d, want 1000", got)
	}
	if got := f.counter(t); got != 1 {
		t.Errorf("counter = %d, want 1", got)
	}
	if got := f.env.Balance(f.vault()); got != 10 {
		t.Errorf("vault = %d, want 10", got)
	}
}

func TestClaim_Sequential(t *testing.T) {
	f := setup(t)
	for i := uint32(0); i < 3; i++ {
		if err := f.claim(t, i, 100); err != nil {
			t.Fatalf("claim %d: %v", i, err)
		}
	}
	if got := f.tokens(t); got != 300 {
		t.Errorf("tokens = %d, want 300", got)
	}
	if got := f.counter(t); got != 3 {
		t.Errorf("counter = %d, want 3", got)
	}
}

func TestClaim_ReplayRejected(t *testing.T) {
	f := setup(t)
	ixs := f.claimIxs(t, 0, 1000)
	if _, err := f.env.Run(ixs, f.payer, f.user); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	_, err := f.env.Run(ixs, f.payer, f.user)
	if !errors.Is(err, gateerr.ErrNonceMismatch) {
		t.Fatalf("replay err = %v, want ErrNonceMismatch", err)
	}
	if got := f.tokens(t); got != 1000 {
		t.Errorf("tokens = %d, want 1000", got)
	}
}

func TestClaim_FirstInBundle(t *testing.T) {
	f := setup(t)
	ixs := f.claimIxs(t, 0, 1000)
	_, err := f.env.Run(ixs[1:], f.payer, f.user)
	if !errors.Is(err, gateerr.ErrMissingCompanionInstruction) {
		t.Fatalf("err = %v, want ErrMissingCompanionInstruction", err)
	}
	if got := f.counter(t); got != 0 {
		t.Errorf("counter = %d after failed claim, want 0", got)
	}
	if f.env.Exists(f.vault()) {
		t.Error("fee charged for failed claim")
	}
}

func TestClaim_NotAdjacent(t *testing.T) {
	f := setup(t)
	ixs := f.claimIxs(t, 0, 1000)
	_, err := f.env.Run(ledgertest.Ixs(ixs[0], token.CreateAssociatedInstruction(f.payer.Addr, f.user.Addr, f.mint), ixs[1]), f.payer, f.user)
	if !errors.Is(err, gateerr.ErrInvalidCompanionInstruction) {
		t.Fatalf("err = %v, want ErrInvalidCompanionInstruction", err)
	}
}

func TestClaim_AmountNotSigned(t *testing.T) {
	f := setup(t)
	sig := authz.Sign(f.accts.Claim(0, 1000), f.admin.Key)
	companion, err := ed25519prog.NewInstruction(f.admin.Key.Public().(ed25519.PublicKey), sig, f.accts.Claim(0, 1000).Payload())
	if err != nil {
		t.Fatalf("companion: %v", err)
	}
	_, err = f.env.Run(ledgertest.Ixs(companion, airdrop.ClaimInstruction(f.accts, 0, 5000, sig)), f.payer, f.user)
	if !errors.Is(err, gateerr.ErrSignatureVerificationFailed) {
		t.Fatalf("err = %v, want ErrSignatureVerificationFailed", err)
	}
	if got := f.tokens(t); got != 0 {
		t.Errorf("tokens = %d, want 0", got)
	}
	if got := f.counter(t); got != 0 {
		t.Errorf("counter = %d, want 0", got)
	}
}

func TestClaim_WrongSigner(t *testing.T) {
	f := setup(t)
	forger := ledgertest.NewKey(t)
	sig := authz.Sign(f.accts.Claim(0, 1000), forger.Key)
	ixs, err := airdrop.ClaimInstructions(f.accts, 0, 1000, forger.Key.Public().(ed25519.PublicKey), sig)
	if err != nil {
		t.Fatalf("claim instructions: %v", err)
	}
	_, err = f.env.Run(ixs, f.payer, f.user)
	if !errors.Is(err, gateerr.ErrSignatureVerificationFailed) {
		t.Fatalf("err = %v, want ErrSignatureVerificationFailed", err)
	}
}

func TestClaim_CorruptSignature(t *testing.T) {
	f := setup(t)
	ixs := f.claimIxs(t, 0, 1000)
	ixs[0].Data[ed25519prog.SignatureOffset] ^= 0xff
	_, err := f.env.Run(ixs, f.payer, f.user)
	if !errors.Is(err, gateerr.ErrSignatureVerificationFailed) {
		t.Fatalf("err = %v, want ErrSignatureVerificationFailed", err)
	}
	if got := f.counter(t); got != 0 {
		t.Errorf("counter = %d, want 0", got)
	}
}

func TestClaim_UserMustSign(t *testing.T) {
	f := setup(t)
	_, err := f.env.Run(f.claimIxs(t, 0, 1000), f.payer)
	if !errors.Is(err, gateerr.ErrMissingSignature) {
		t.Fatalf("err = %v, want ErrMissingSignature", err)
	}
}

func TestClaim_BusinessNotDelegated(t *testing.T) {
	f := setup(t)
	var id [32]byte
	copy(id[:], "wallet-authority")
	service := nonceverify.ServiceAddress(f.base.Addr).Address
	f.business = nonceverify.BusinessAddress(service, id).Address
	f.env.MustRun(ledgertest.Ixs(
		nonceverify.RegisterBusinessInstruction(f.payer.Addr, f.payer.Addr, f.base.Addr, id, f.payer.Addr, nil),
	), f.payer)
	f.user = f.newUser(t)
	f.accts = f.claimAccounts(f.user)

	err := f.claim(t, 0, 1000)
	if !errors.Is(err, gateerr.ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
}

func TestClaim_ConcurrentExactlyOne(t *testing.T) {
	f := setup(t)
	const n = 6
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		ixs := f.claimIxs(t, 0, 1000)
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b := bundle.New(ixs...)
			if err := b.Sign(f.payer.Key, f.user.Key); err != nil {
				errs[i] = err
				return
			}
			_, errs[i] = f.env.RT.Execute(f.env.Ctx, b)
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, gateerr.ErrNonceMismatch):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 {
		t.Fatalf("%d claims succeeded, want 1", ok)
	}
	if got := f.tokens(t); got != 1000 {
		t.Errorf("tokens = %d, want 1000", got)
	}
}

// ── project administration ────────────────────────────────────────────────────

func TestInitializeProject_Twice(t *testing.T) {
	f := setup(t)
	p, err := airdrop.GetProject(f.env.Ctx, f.env.Store, f.project)
	if err != nil {
		t.Fatalf("get project: %v", err)
	}
	_, err = f.env.Run(ledgertest.Ixs(airdrop.InitializeProjectInstruction(f.payer.Addr, p.ProjectID, f.payer.Addr)), f.payer)
	if !errors.Is(err, gateerr.ErrAlreadyInitialized) {
		t.Fatalf("err = %v, want ErrAlreadyInitialized", err)
	}
}

func TestTransferMintAuthority(t *testing.T) {
	f := setup(t)
	next := ledgertest.NewKey(t).Addr
	f.env.MustRun(ledgertest.Ixs(
		airdrop.TransferMintAuthorityInstruction(f.admin.Addr, f.projectID, f.mint, &next),
	), f.admin)
	m, err := token.GetMint(f.env.Ctx, f.env.Store, f.mint)
	if err != nil {
		t.Fatalf("get mint: %v", err)
	}
	if m.Authority == nil || *m.Authority != next {
		t.Fatalf("authority = %v, want %s", m.Authority, next)
	}
	if err := f.claim(t, 0, 1); !errors.Is(err, gateerr.ErrUnauthorized) {
		t.Fatalf("claim after handover err = %v, want ErrUnauthorized", err)
	}
}

func TestTransferMintAuthority_AdminOnly(t *testing.T) {
	f := setup(t)
	_, err := f.env.Run(ledgertest.Ixs(
		airdrop.TransferMintAuthorityInstruction(f.payer.Addr, f.projectID, f.mint, nil),
	), f.payer)
	if !errors.Is(err, gateerr.ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
}

func TestCloseProject(t *testing.T) {
	f := setup(t)
	holding := f.env.Balance(f.project)
	receiver := ledgertest.NewKey(t).Addr

	_, err := f.env.Run(ledgertest.Ixs(airdrop.CloseProjectInstruction(f.payer.Addr, f.projectID, receiver)), f.payer)
	if !errors.Is(err, gateerr.ErrUnauthorized) {
		t.Fatalf("non-admin close err = %v, want ErrUnauthorized", err)
	}

	f.env.MustRun(ledgertest.Ixs(airdrop.CloseProjectInstruction(f.admin.Addr, f.projectID, receiver)), f.admin)
	if f.env.Exists(f.project) {
		t.Fatal("project still present")
	}
	if got := f.env.Balance(receiver); got != holding {
		t.Errorf("receiver = %d, want %d", got, holding)
	}
}
