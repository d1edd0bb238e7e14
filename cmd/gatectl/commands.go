package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/0gfoundation/0g-nonce-gate/internal/address"
	"github.com/0gfoundation/0g-nonce-gate/internal/airdrop"
	"github.com/0gfoundation/0g-nonce-gate/internal/bundle"
	"github.com/0gfoundation/0g-nonce-gate/internal/nonceverify"
	"github.com/0gfoundation/0g-nonce-gate/internal/token"
)

// deployment is what bootstrap creates.
type deployment struct {
	ServiceBase address.Address
	ProjectID   address.Address
	Project     address.Address
	Mint        address.Address
	Business    address.Address
}

// ── bootstrap ─────────────────────────────────────────────────────────────────

func (c *cli) bootstrap(ctx context.Context, args []string) error {
	_, err := c.deploy(ctx, args)
	return err
}

func (c *cli) deploy(ctx context.Context, args []string) (*deployment, error) {
	fs := pflag.NewFlagSet("bootstrap", pflag.ContinueOnError)
	businessID := fs.String("business-id", "", "business project id (at most 32 bytes)")
	useFee := fs.Uint32("use-fee", 0, "lamports charged per nonce consumption")
	regFee := fs.Uint32("registration-fee", 0, "lamports charged per business registration")
	decimals := fs.Uint8("decimals", 9, "mint decimals")
	faucet := fs.Uint64("faucet", 0, "request this many lamports from the faucet first")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *businessID == "" || len(*businessID) > 32 {
		return nil, fmt.Errorf("--business-id must be 1 to 32 bytes")
	}
	payer, err := c.signer()
	if err != nil {
		return nil, err
	}
	if *faucet > 0 {
		if _, err := c.client.Faucet(ctx, payer.Address, *faucet); err != nil {
			return nil, fmt.Errorf("faucet: %w", err)
		}
	}

	base, err := generate()
	if err != nil {
		return nil, err
	}
	mint, err := generate()
	if err != nil {
		return nil, err
	}
	projectID, err := generate()
	if err != nil {
		return nil, err
	}

	d := &deployment{
		ServiceBase: addr(base),
		ProjectID:   addr(projectID),
		Mint:        addr(mint),
	}
	d.Project = airdrop.ProjectAddress(d.ProjectID).Address
	var id [32]byte
	copy(id[:], *businessID)
	d.Business = nonceverify.BusinessAddress(nonceverify.ServiceAddress(d.ServiceBase).Address, id).Address

	// The payer is the project admin and therefore the issuer key.
	if _, err := c.submit(ctx, "service", bundle.New(
		nonceverify.InitializeServiceInstruction(payer.Address, d.ServiceBase, nil, *regFee, *useFee),
		airdrop.InitializeProjectInstruction(payer.Address, d.ProjectID, payer.Address),
	), payer.Private, base); err != nil {
		return nil, err
	}

	authority := airdrop.MintAuthority(d.Project, d.Mint).Address
	if _, err := c.submit(ctx, "mint", bundle.New(
		token.InitializeMintInstruction(payer.Address, d.Mint, &authority, *decimals),
	), payer.Private, mint); err != nil {
		return nil, err
	}

	if _, err := c.submit(ctx, "business", bundle.New(
		nonceverify.RegisterBusinessInstruction(payer.Address, payer.Address, d.ServiceBase, id,
			airdrop.BusinessAuthority(d.Project, d.Business).Address, nil),
	), payer.Private); err != nil {
		return nil, err
	}

	fmt.Fprintf(c.out, "\nISSUER_PROJECT=%s\nISSUER_MINT=%s\nISSUER_BUSINESS_PROJECT=%s\nISSUER_SERVICE_BASE=%s\n",
		d.ProjectID, d.Mint, d.Business, d.ServiceBase)
	return d, nil
}

func generate() (ed25519.PrivateKey, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return priv, nil
}

func addr(priv ed25519.PrivateKey) address.Address {
	return address.FromPublicKey(priv.Public().(ed25519.PublicKey))
}

// ── init-nonce ────────────────────────────────────────────────────────────────

func (c *cli) initNonce(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("init-nonce", pflag.ContinueOnError)
	businessStr := fs.String("business", "", "business project address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	business, err := address.Parse(*businessStr)
	if err != nil {
		return fmt.Errorf("--business: %w", err)
	}
	user, err := c.signer()
	if err != nil {
		return err
	}
	_, err = c.submit(ctx, "init-nonce", bundle.New(
		nonceverify.InitUserNonceInstruction(user.Address, business),
	), user.Private)
	return err
}

// ── claim ─────────────────────────────────────────────────────────────────────

func (c *cli) claim(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("claim", pflag.ContinueOnError)
	amount := fs.Uint64("amount", 0, "token amount to claim")
	if err := fs.Parse(args); err != nil {
		return err
	}
	user, err := c.signer()
	if err != nil {
		return err
	}
	a, err := c.client.Authorize(ctx, user.Private, *amount)
	if err != nil {
		return fmt.Errorf("authorize: %w", err)
	}
	fmt.Fprintf(c.out, "authorized:    nonce=%d amount=%d\n", a.Claim.Nonce, a.Claim.Amount)

	if _, err := c.submit(ctx, "claim", bundle.New(a.Instructions...), user.Private); err != nil {
		return err
	}
	n, err := c.client.TokenBalance(ctx, a.Claim.Mint, user.Address)
	if err != nil {
		return fmt.Errorf("token balance: %w", err)
	}
	fmt.Fprintf(c.out, "balance:       %d\n", n)
	return nil
}

// ── nonce ─────────────────────────────────────────────────────────────────────

func (c *cli) nonce(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("nonce", pflag.ContinueOnError)
	businessStr := fs.String("business", "", "business project address")
	userStr := fs.String("user", "", "user address (defaults to the signing key)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	business, err := address.Parse(*businessStr)
	if err != nil {
		return fmt.Errorf("--business: %w", err)
	}
	var user address.Address
	if *userStr != "" {
		if user, err = address.Parse(*userStr); err != nil {
			return fmt.Errorf("--user: %w", err)
		}
	} else {
		k, err := c.signer()
		if err != nil {
			return err
		}
		user = k.Address
	}
	rec, err := c.client.Nonce(ctx, business, user)
	if err != nil {
		return fmt.Errorf("nonce: %w", err)
	}
	fmt.Fprintf(c.out, "owner:    %s\nbusiness: %s\ncounter:  %d\n", rec.Owner, rec.BusinessProject, rec.Counter)
	return nil
}
