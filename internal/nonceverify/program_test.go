package nonceverify_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/0gfoundation/0g-nonce-gate/internal/address"
	"github.com/0gfoundation/0g-nonce-gate/internal/bundle"
	"github.com/0gfoundation/0g-nonce-gate/internal/gateerr"
	"github.com/0gfoundation/0g-nonce-gate/internal/ledgertest"
	"github.com/0gfoundation/0g-nonce-gate/internal/nonceverify"
)

// ── helpers ───────────────────────────────────────────────────────────────────

type fixture struct {
	env   *ledgertest.Env
	payer ledgertest.Wallet
	base  ledgertest.Wallet
	admin *ledgertest.Wallet
}

func (f *fixture) service() address.Address { return nonceverify.ServiceAddress(f.base.Addr).Address }
func (f *fixture) vault() address.Address   { return nonceverify.VaultAddress(f.base.Addr).Address }

func newService(t *testing.T, admin bool, regFee, useFee uint32) *fixture {
	t.Helper()
	env := ledgertest.NewEnv(t)
	f := &fixture{env: env, payer: env.Wallet(10 * ledgertest.Sol), base: ledgertest.NewKey(t)}
	var adminAddr *address.Address
	if admin {
		a := ledgertest.NewKey(t)
		f.admin = &a
		adminAddr = &a.Addr
	}
	env.MustRun(ledgertest.Ixs(
		nonceverify.InitializeServiceInstruction(f.payer.Addr, f.base.Addr, adminAddr, regFee, useFee),
	), f.payer, f.base)
	return f
}

func (f *fixture) register(id byte, authority address.Address) (address.Address, error) {
	f.env.T.Helper()
	var businessID [32]byte
	businessID[0] = id
	signers := []ledgertest.Wallet{f.payer}
	var admin *address.Address
	if f.admin != nil {
		admin = &f.admin.Addr
		signers = append(signers, *f.admin)
	}
	ix := nonceverify.RegisterBusinessInstruction(f.payer.Addr, f.payer.Addr, f.base.Addr, businessID, authority, admin)
	_, err := f.env.Run(ledgertest.Ixs(ix), signers...)
	return nonceverify.BusinessAddress(f.service(), businessID).Address, err
}

// business registers a business whose authority is a wallet and a user
// with an initialised nonce record.
func (f *fixture) business(t *testing.T) (biz address.Address, authority, user ledgertest.Wallet) {
	t.Helper()
	authority = ledgertest.NewKey(t)
	biz, err := f.register(1, authority.Addr)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	user = f.env.Wallet(ledgertest.Sol)
	f.env.MustRun(ledgertest.Ixs(nonceverify.InitUserNonceInstruction(user.Addr, biz)), user)
	return biz, authority, user
}

func (f *fixture) consume(biz address.Address, authority, user ledgertest.Wallet, claim uint32) error {
	f.env.T.Helper()
	a := nonceverify.NewConsumeAccounts(f.payer.Addr, user.Addr, authority.Addr, biz, f.base.Addr)
	_, err := f.env.Run(ledgertest.Ixs(nonceverify.ConsumeInstruction(a, claim)), f.payer, user, authority)
	return err
}

func (f *fixture) counter(t *testing.T, biz, user address.Address) uint32 {
	t.Helper()
	rec, err := nonceverify.GetUserNonce(f.env.Ctx, f.env.Store, biz, user)
	if err != nil {
		t.Fatalf("get user nonce: %v", err)
	}
	return rec.Counter
}

// ── initialize_service ────────────────────────────────────────────────────────

func TestInitializeService_StoresPolicy(t *testing.T) {
	f := newService(t, true, 7, 3)
	svc, err := nonceverify.GetService(f.env.Ctx, f.env.Store, f.service())
	if err != nil {
		t.Fatalf("get service: %v", err)
	}
	if svc.Base != f.base.Addr || svc.Vault != f.vault() {
		t.Errorf("base/vault = %s/%s", svc.Base, svc.Vault)
	}
	if svc.RegistrationFee != 7 || svc.UseFee != 3 {
		t.Errorf("fees = %d/%d, want 7/3", svc.RegistrationFee, svc.UseFee)
	}
	if _, ok := svc.Gate().(nonceverify.RequireSignature); !ok {
		t.Errorf("gate = %T, want RequireSignature", svc.Gate())
	}
}

func TestInitializeService_Twice(t *testing.T) {
	f := newService(t, false, 0, 0)
	_, err := f.env.Run(ledgertest.Ixs(
		nonceverify.InitializeServiceInstruction(f.payer.Addr, f.base.Addr, nil, 1, 1),
	), f.payer, f.base)
	if !errors.Is(err, gateerr.ErrAlreadyInitialized) {
		t.Fatalf("err = %v, want ErrAlreadyInitialized", err)
	}
}

func TestInitializeService_NoAdminGate(t *testing.T) {
	f := newService(t, false, 0, 0)
	svc, err := nonceverify.GetService(f.env.Ctx, f.env.Store, f.service())
	if err != nil {
		t.Fatalf("get service: %v", err)
	}
	if _, ok := svc.Gate().(nonceverify.NoAdmin); !ok {
		t.Errorf("gate = %T, want NoAdmin", svc.Gate())
	}
}

// ── register_business_project ─────────────────────────────────────────────────

func TestRegister_DuplicateAlreadyExists(t *testing.T) {
	f := newService(t, false, 0, 0)
	authority := ledgertest.NewKey(t).Addr

	biz, err := f.register(9, authority)
	if err != nil {
		t.Fatalf("first register: %v", err)
	}
	rec, err := nonceverify.GetBusiness(f.env.Ctx, f.env.Store, biz)
	if err != nil {
		t.Fatalf("get business: %v", err)
	}
	if rec.Authority != authority {
		t.Errorf("authority = %s, want %s", rec.Authority, authority)
	}
	if rec.Authority == f.payer.Addr {
		t.Error("authority must not default to the caller")
	}
	if rec.NonceService != f.service() {
		t.Errorf("service = %s, want %s", rec.NonceService, f.service())
	}

	if _, err := f.register(9, ledgertest.NewKey(t).Addr); !errors.Is(err, gateerr.ErrAlreadyExists) {
		t.Fatalf("second register err = %v, want ErrAlreadyExists", err)
	}
	rec, _ = nonceverify.GetBusiness(f.env.Ctx, f.env.Store, biz)
	if rec.Authority != authority {
		t.Errorf("authority changed to %s", rec.Authority)
	}
}

func TestRegister_AdminSignatureRequired(t *testing.T) {
	f := newService(t, true, 0, 0)
	var id [32]byte
	ix := nonceverify.RegisterBusinessInstruction(f.payer.Addr, f.payer.Addr, f.base.Addr, id, f.payer.Addr, nil)
	_, err := f.env.Run(ledgertest.Ixs(ix), f.payer)
	if !errors.Is(err, gateerr.ErrAdminSignatureRequired) {
		t.Fatalf("err = %v, want ErrAdminSignatureRequired", err)
	}
	if gateerr.StatusOf(err) != gateerr.StatusAdminSignatureRequired {
		t.Errorf("status = %s", gateerr.StatusOf(err))
	}
}

func TestRegister_AdminCoSigned(t *testing.T) {
	f := newService(t, true, 0, 0)
	if _, err := f.register(2, f.payer.Addr); err != nil {
		t.Fatalf("register with admin: %v", err)
	}
}

func TestRegister_FeeGoesToVault(t *testing.T) {
	f := newService(t, false, 500, 0)
	before := f.env.Balance(f.payer.Addr)
	biz, err := f.register(3, f.payer.Addr)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if got := f.env.Balance(f.vault()); got != 500 {
		t.Errorf("vault = %d, want 500", got)
	}
	rent := f.env.RT.Rent().MinimumBalance(nonceverify.BusinessSpace)
	if got := f.env.Balance(f.payer.Addr); got != before-500-rent {
		t.Errorf("payer = %d, want %d", got, before-500-rent)
	}
	if f.env.Balance(biz) != rent {
		t.Errorf("business holding = %d, want %d", f.env.Balance(biz), rent)
	}
}

func TestRegister_InsufficientFunds(t *testing.T) {
	f := newService(t, false, 500, 0)
	poor := ledgertest.NewKey(t)
	var id [32]byte
	ix := nonceverify.RegisterBusinessInstruction(f.payer.Addr, poor.Addr, f.base.Addr, id, poor.Addr, nil)
	_, err := f.env.Run(ledgertest.Ixs(ix), f.payer, poor)
	if !errors.Is(err, gateerr.ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}
	if f.env.Exists(nonceverify.BusinessAddress(f.service(), id).Address) {
		t.Error("business created despite failed fee")
	}
}

// ── consume ───────────────────────────────────────────────────────────────────

func TestConsume_Monotonic(t *testing.T) {
	f := newService(t, false, 0, 0)
	biz, authority, user := f.business(t)
	for i := uint32(0); i < 5; i++ {
		if err := f.consume(biz, authority, user, i); err != nil {
			t.Fatalf("consume %d: %v", i, err)
		}
	}
	if got := f.counter(t, biz, user.Addr); got != 5 {
		t.Fatalf("counter = %d, want 5", got)
	}
}

func TestConsume_ReplayMismatch(t *testing.T) {
	f := newService(t, false, 0, 0)
	biz, authority, user := f.business(t)
	if err := f.consume(biz, authority, user, 0); err != nil {
		t.Fatalf("consume: %v", err)
	}
	err := f.consume(biz, authority, user, 0)
	if !errors.Is(err, gateerr.ErrNonceMismatch) {
		t.Fatalf("replay err = %v, want ErrNonceMismatch", err)
	}
	if err := f.consume(biz, authority, user, 7); !errors.Is(err, gateerr.ErrNonceMismatch) {
		t.Fatalf("future claim err = %v, want ErrNonceMismatch", err)
	}
	if got := f.counter(t, biz, user.Addr); got != 1 {
		t.Fatalf("counter = %d, want 1", got)
	}
}

func TestConsume_ZeroFeeNoTransfer(t *testing.T) {
	f := newService(t, false, 0, 0)
	biz, authority, user := f.business(t)
	before := f.env.Balance(f.payer.Addr)
	if err := f.consume(biz, authority, user, 0); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if f.env.Balance(f.payer.Addr) != before {
		t.Error("payer balance changed with zero fee")
	}
	if f.env.Exists(f.vault()) {
		t.Error("vault touched with zero fee")
	}
	if got := f.counter(t, biz, user.Addr); got != 1 {
		t.Fatalf("counter = %d, want 1", got)
	}
}

func TestConsume_FeeCharged(t *testing.T) {
	f := newService(t, false, 0, 25)
	biz, authority, user := f.business(t)
	for i := uint32(0); i < 2; i++ {
		if err := f.consume(biz, authority, user, i); err != nil {
			t.Fatalf("consume %d: %v", i, err)
		}
	}
	if got := f.env.Balance(f.vault()); got != 50 {
		t.Errorf("vault = %d, want 50", got)
	}
}

func TestConsume_WrongAuthority(t *testing.T) {
	f := newService(t, false, 0, 0)
	biz, _, user := f.business(t)
	intruder := ledgertest.NewKey(t)
	err := f.consume(biz, intruder, user, 0)
	if !errors.Is(err, gateerr.ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
}

func TestConsume_UserMustSign(t *testing.T) {
	f := newService(t, false, 0, 0)
	biz, authority, user := f.business(t)
	a := nonceverify.NewConsumeAccounts(f.payer.Addr, user.Addr, authority.Addr, biz, f.base.Addr)
	_, err := f.env.Run(ledgertest.Ixs(nonceverify.ConsumeInstruction(a, 0)), f.payer, authority)
	if !errors.Is(err, gateerr.ErrMissingSignature) {
		t.Fatalf("err = %v, want ErrMissingSignature", err)
	}
}

func TestConsume_Uninitialised(t *testing.T) {
	f := newService(t, false, 0, 0)
	authority := ledgertest.NewKey(t)
	biz, err := f.register(4, authority.Addr)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	err = f.consume(biz, authority, ledgertest.NewKey(t), 0)
	if !errors.Is(err, gateerr.ErrNotInitialized) {
		t.Fatalf("err = %v, want ErrNotInitialized", err)
	}
}

func TestConsume_InsufficientFundsLeavesCounter(t *testing.T) {
	f := newService(t, false, 0, 25)
	biz, authority, user := f.business(t)
	poor := ledgertest.NewKey(t)
	a := nonceverify.NewConsumeAccounts(poor.Addr, user.Addr, authority.Addr, biz, f.base.Addr)
	_, err := f.env.Run(ledgertest.Ixs(nonceverify.ConsumeInstruction(a, 0)), poor, user, authority)
	if !errors.Is(err, gateerr.ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}
	if got := f.counter(t, biz, user.Addr); got != 0 {
		t.Fatalf("counter = %d, want 0", got)
	}
}

func TestConsume_ConcurrentExactlyOne(t *testing.T) {
	f := newService(t, false, 0, 0)
	biz, authority, user := f.business(t)

	const n = 8
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a := nonceverify.NewConsumeAccounts(f.payer.Addr, user.Addr, authority.Addr, biz, f.base.Addr)
			b := bundle.New(nonceverify.ConsumeInstruction(a, 0))
			if err := b.Sign(f.payer.Key, user.Key, authority.Key); err != nil {
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
		t.Fatalf("%d consumptions succeeded, want 1", ok)
	}
	if got := f.counter(t, biz, user.Addr); got != 1 {
		t.Fatalf("counter = %d, want 1", got)
	}
}

// ── user nonce lifecycle ──────────────────────────────────────────────────────

func TestInitUserNonce_Twice(t *testing.T) {
	f := newService(t, false, 0, 0)
	biz, _, user := f.business(t)
	_, err := f.env.Run(ledgertest.Ixs(nonceverify.InitUserNonceInstruction(user.Addr, biz)), user)
	if !errors.Is(err, gateerr.ErrAlreadyInitialized) {
		t.Fatalf("err = %v, want ErrAlreadyInitialized", err)
	}
}

func TestCloseUserNonce_Refunds(t *testing.T) {
	f := newService(t, false, 0, 0)
	biz, _, user := f.business(t)
	before := f.env.Balance(user.Addr)
	nonce := nonceverify.UserNonceAddress(biz, user.Addr).Address
	holding := f.env.Balance(nonce)

	f.env.MustRun(ledgertest.Ixs(nonceverify.CloseUserNonceInstruction(user.Addr, biz)), user)
	if f.env.Exists(nonce) {
		t.Fatal("nonce record still present")
	}
	if got := f.env.Balance(user.Addr); got != before+holding {
		t.Errorf("user = %d, want %d", got, before+holding)
	}
}

func TestCloseUserNonce_OnlyOwner(t *testing.T) {
	f := newService(t, false, 0, 0)
	biz, _, user := f.business(t)
	thief := ledgertest.NewKey(t)
	ix := nonceverify.CloseUserNonceInstruction(thief.Addr, biz)
	ix.Accounts[1] = bundle.Writable(nonceverify.UserNonceAddress(biz, user.Addr).Address)
	_, err := f.env.Run(ledgertest.Ixs(ix), thief)
	if !errors.Is(err, gateerr.ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
}

// ── claim_nonce_fee ───────────────────────────────────────────────────────────

func TestClaimFee_AdminWithdraws(t *testing.T) {
	f := newService(t, true, 300, 0)
	if _, err := f.register(5, f.payer.Addr); err != nil {
		t.Fatalf("register: %v", err)
	}
	receiver := ledgertest.NewKey(t).Addr
	f.env.MustRun(ledgertest.Ixs(nonceverify.ClaimFeeInstruction(f.admin.Addr, f.base.Addr, receiver, 200)), *f.admin)
	if got := f.env.Balance(receiver); got != 200 {
		t.Errorf("receiver = %d, want 200", got)
	}
	if got := f.env.Balance(f.vault()); got != 100 {
		t.Errorf("vault = %d, want 100", got)
	}
}

func TestClaimFee_NoAdminCannotWithdraw(t *testing.T) {
	f := newService(t, false, 300, 0)
	if _, err := f.register(5, f.payer.Addr); err != nil {
		t.Fatalf("register: %v", err)
	}
	_, err := f.env.Run(ledgertest.Ixs(nonceverify.ClaimFeeInstruction(f.payer.Addr, f.base.Addr, f.payer.Addr, 1)), f.payer)
	if !errors.Is(err, gateerr.ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
}
