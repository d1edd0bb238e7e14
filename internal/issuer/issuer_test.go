package issuer_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/0gfoundation/0g-nonce-gate/internal/authz"
	"github.com/0gfoundation/0g-nonce-gate/internal/gateerr"
	"github.com/0gfoundation/0g-nonce-gate/internal/issuer"
	"github.com/0gfoundation/0g-nonce-gate/internal/ledgertest"
)

func newIssuer(t *testing.T) (*ledgertest.Env, *ledgertest.Deployment, *issuer.Issuer) {
	t.Helper()
	env := ledgertest.NewEnv(t)
	d := env.Deploy(0)
	iss := issuer.New(d.Admin.Key, issuer.Target{
		ProjectID:       d.ProjectID,
		Mint:            d.Mint,
		BusinessProject: d.Business,
		ServiceBase:     d.Base.Addr,
		MaxAmount:       10_000,
	}, env.Store, env.RDB)
	return env, d, iss
}

// ── Check ─────────────────────────────────────────────────────────────────────

func TestCheck_AdminMatches(t *testing.T) {
	env, _, iss := newIssuer(t)
	if err := iss.Check(env.Ctx); err != nil {
		t.Fatalf("Check: %v", err)
	}
}

func TestCheck_WrongKey(t *testing.T) {
	env, d, _ := newIssuer(t)
	other := issuer.New(ledgertest.NewKey(t).Key, issuer.Target{ProjectID: d.ProjectID}, env.Store, env.RDB)
	if err := other.Check(env.Ctx); !errors.Is(err, issuer.ErrWrongAdmin) {
		t.Fatalf("err = %v, want ErrWrongAdmin", err)
	}
}

// ── Authorize ─────────────────────────────────────────────────────────────────

func TestAuthorize_ClaimSucceeds(t *testing.T) {
	env, d, iss := newIssuer(t)
	user := env.User(d)

	for i := uint32(0); i < 2; i++ {
		a, err := iss.Authorize(env.Ctx, user.Addr, 250)
		if err != nil {
			t.Fatalf("Authorize: %v", err)
		}
		if a.Claim.Nonce != i {
			t.Errorf("nonce = %d, want %d", a.Claim.Nonce, i)
		}
		if !authz.Verify(a.Payload, a.Signature, d.Admin.Addr.PublicKey()) {
			t.Error("signature does not verify")
		}
		if len(a.Instructions) != 2 {
			t.Fatalf("got %d instructions, want 2", len(a.Instructions))
		}
		env.MustRun(a.Instructions, user)
	}
	if got := d.Tokens(env, user.Addr); got != 500 {
		t.Errorf("tokens = %d, want 500", got)
	}
	if got := d.Counter(env, user.Addr); got != 2 {
		t.Errorf("counter = %d, want 2", got)
	}
}

func TestAuthorize_StaleAuthorizationRejected(t *testing.T) {
	env, d, iss := newIssuer(t)
	user := env.User(d)
	first, err := iss.Authorize(env.Ctx, user.Addr, 100)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	second, err := iss.Authorize(env.Ctx, user.Addr, 100)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	env.MustRun(first.Instructions, user)
	if _, err := env.Run(second.Instructions, user); !errors.Is(err, gateerr.ErrNonceMismatch) {
		t.Fatalf("err = %v, want ErrNonceMismatch", err)
	}
}

func TestAuthorize_Amount(t *testing.T) {
	env, d, iss := newIssuer(t)
	user := env.User(d)
	for _, amount := range []uint64{0, 10_001} {
		if _, err := iss.Authorize(env.Ctx, user.Addr, amount); !errors.Is(err, issuer.ErrInvalidAmount) {
			t.Errorf("amount %d: err = %v, want ErrInvalidAmount", amount, err)
		}
	}
}

func TestAuthorize_NoNonceRecord(t *testing.T) {
	env, _, iss := newIssuer(t)
	_, err := iss.Authorize(env.Ctx, ledgertest.NewKey(t).Addr, 1)
	if !errors.Is(err, gateerr.ErrNotInitialized) {
		t.Fatalf("err = %v, want ErrNotInitialized", err)
	}
}

func TestAuthorize_Recorded(t *testing.T) {
	env, d, iss := newIssuer(t)
	user := env.User(d)
	if _, err := iss.Authorize(env.Ctx, user.Addr, 7); err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	n, err := env.RDB.LLen(env.Ctx, fmt.Sprintf(issuer.IssuedKeyFmt, user.Addr)).Result()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("issued list length = %d, want 1", n)
	}
}
