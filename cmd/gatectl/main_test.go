package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/0gfoundation/0g-nonce-gate/internal/address"
	"github.com/0gfoundation/0g-nonce-gate/internal/api"
	"github.com/0gfoundation/0g-nonce-gate/internal/auth"
	"github.com/0gfoundation/0g-nonce-gate/internal/gateclient"
	"github.com/0gfoundation/0g-nonce-gate/internal/issuer"
	"github.com/0gfoundation/0g-nonce-gate/internal/keys"
	"github.com/0gfoundation/0g-nonce-gate/internal/ledgertest"
	"github.com/0gfoundation/0g-nonce-gate/internal/processor"
	"github.com/0gfoundation/0g-nonce-gate/internal/token"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// ── helpers ───────────────────────────────────────────────────────────────────

// lateIssuer lets the test install the issuer once bootstrap has produced
// the deployment it signs for.
type lateIssuer struct{ iss *issuer.Issuer }

func (l *lateIssuer) Authorize(ctx context.Context, user address.Address, amount uint64) (*issuer.Authorization, error) {
	return l.iss.Authorize(ctx, user, amount)
}

type gate struct {
	env    *ledgertest.Env
	url    string
	issuer *lateIssuer
}

func newGate(t *testing.T) *gate {
	t.Helper()
	env := ledgertest.NewEnv(t)
	late := &lateIssuer{}

	r := gin.New()
	api.NewHandler(env.RDB, env.Store, zap.NewNop(), api.WithIssuer(late), api.WithFaucet(ledgertest.Sol)).
		Register(r.Group("/api"), auth.Middleware(env.RDB, api.AuthorizeAction, 0))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(env.Ctx)
	t.Cleanup(cancel)
	go processor.Run(ctx, env.RDB, env.RT, time.Second, zap.NewNop())

	return &gate{env: env, url: srv.URL + "/api", issuer: late}
}

func (g *gate) cli(w ledgertest.Wallet, out *bytes.Buffer) *cli {
	return &cli{
		client: gateclient.NewClient(g.url),
		keySrc: keys.Source{Inline: hex.EncodeToString(w.Key.Seed())},
		out:    out,
		poll:   10 * time.Millisecond,
	}
}

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// ── dispatch ──────────────────────────────────────────────────────────────────

func TestRun_Usage(t *testing.T) {
	var out bytes.Buffer
	if err := run(testCtx(t), nil, &out); !errors.Is(err, errUsage) {
		t.Errorf("no command: %v", err)
	}
	if err := run(testCtx(t), []string{"deploy"}, &out); !errors.Is(err, errUsage) {
		t.Errorf("unknown command: %v", err)
	}
}

func TestBootstrap_RequiresBusinessID(t *testing.T) {
	g := newGate(t)
	var out bytes.Buffer
	if _, err := g.cli(g.env.Wallet(ledgertest.Sol), &out).deploy(testCtx(t), nil); err == nil {
		t.Fatal("expected error without --business-id")
	}
}

// ── full flow ─────────────────────────────────────────────────────────────────

func TestBootstrapAndClaim(t *testing.T) {
	g := newGate(t)
	ctx := testCtx(t)
	admin := ledgertest.NewKey(t)

	var out bytes.Buffer
	d, err := g.cli(admin, &out).deploy(ctx, []string{"--business-id", "spring-drop", "--use-fee", "10", "--faucet", "1000000000"})
	if err != nil {
		t.Fatalf("bootstrap: %v\n%s", err, out.String())
	}
	if !strings.Contains(out.String(), "ISSUER_MINT="+d.Mint.String()) {
		t.Errorf("bootstrap output missing issuer settings:\n%s", out.String())
	}
	g.issuer.iss = issuer.New(admin.Key, issuer.Target{
		ProjectID:       d.ProjectID,
		Mint:            d.Mint,
		BusinessProject: d.Business,
		ServiceBase:     d.ServiceBase,
		MaxAmount:       100,
	}, g.env.Store, g.env.RDB)
	if err := g.issuer.iss.Check(ctx); err != nil {
		t.Fatalf("issuer check: %v", err)
	}

	user := g.env.Wallet(ledgertest.Sol)
	out.Reset()
	uc := g.cli(user, &out)
	if err := uc.initNonce(ctx, []string{"--business", d.Business.String()}); err != nil {
		t.Fatalf("init-nonce: %v", err)
	}
	if err := uc.claim(ctx, []string{"--amount", "40"}); err != nil {
		t.Fatalf("claim: %v\n%s", err, out.String())
	}
	if err := uc.claim(ctx, []string{"--amount", "2"}); err != nil {
		t.Fatalf("second claim: %v\n%s", err, out.String())
	}

	n, err := token.BalanceOf(ctx, g.env.Store, user.Addr, d.Mint)
	if err != nil || n != 42 {
		t.Fatalf("token balance = %d, %v; want 42", n, err)
	}

	out.Reset()
	if err := uc.nonce(ctx, []string{"--business", d.Business.String()}); err != nil {
		t.Fatalf("nonce: %v", err)
	}
	if !strings.Contains(out.String(), "counter:  2") {
		t.Errorf("nonce output:\n%s", out.String())
	}
}

func TestClaim_OverLimitRejectedByIssuer(t *testing.T) {
	g := newGate(t)
	ctx := testCtx(t)
	admin := ledgertest.NewKey(t)

	var out bytes.Buffer
	d, err := g.cli(admin, &out).deploy(ctx, []string{"--business-id", "limit", "--faucet", "1000000000"})
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	g.issuer.iss = issuer.New(admin.Key, issuer.Target{
		ProjectID:       d.ProjectID,
		Mint:            d.Mint,
		BusinessProject: d.Business,
		ServiceBase:     d.ServiceBase,
		MaxAmount:       10,
	}, g.env.Store, g.env.RDB)

	user := g.env.Wallet(ledgertest.Sol)
	uc := g.cli(user, &out)
	if err := uc.initNonce(ctx, []string{"--business", d.Business.String()}); err != nil {
		t.Fatalf("init-nonce: %v", err)
	}
	err = uc.claim(ctx, []string{"--amount", "11"})
	var se *gateclient.StatusError
	if !errors.As(err, &se) || se.Code != 400 {
		t.Fatalf("expected 400 from issuer, got %v", err)
	}
}
