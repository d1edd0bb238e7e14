// cmd/gatectl drives a running gate over its HTTP API.
//
//  1. bootstrap: creates a nonce service, an airdrop project, its mint and
//     a business project delegated to the airdrop program, and prints the
//     ISSUER_* settings for the gate
//  2. init-nonce: creates the caller's nonce record in a business project
//  3. claim: asks the issuer for an authorization and submits it
//  4. nonce: prints a user's nonce record
//
// The caller's key is read from --key (hex seed or base58 keypair) or
// --key-file (JSON byte array).
//
// Usage:
//
//	go run ./cmd/gatectl/ --url http://localhost:8080/api --key-file id.json \
//	  bootstrap --business-id my-campaign --use-fee 5000
package main

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/0gfoundation/0g-nonce-gate/internal/bundle"
	"github.com/0gfoundation/0g-nonce-gate/internal/gateclient"
	"github.com/0gfoundation/0g-nonce-gate/internal/keys"
	"github.com/0gfoundation/0g-nonce-gate/internal/processor"
)

var errUsage = errors.New("usage: gatectl [--url URL] [--key KEY | --key-file FILE] <bootstrap|init-nonce|claim|nonce> [flags]")

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// cli is the state shared by all subcommands.
type cli struct {
	client *gateclient.Client
	keySrc keys.Source
	out    io.Writer
	poll   time.Duration
	key    *keys.Key
}

func run(ctx context.Context, args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("gatectl", pflag.ContinueOnError)
	fs.SetInterspersed(false)
	url := fs.String("url", envOr("GATE_URL", "http://localhost:8080/api"), "gate API base URL")
	key := fs.String("key", os.Getenv("GATE_KEY"), "signing key (hex seed or base58 keypair)")
	keyFile := fs.String("key-file", os.Getenv("GATE_KEY_FILE"), "signing key file (JSON byte array)")
	poll := fs.Duration("poll", 500*time.Millisecond, "bundle result poll interval")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errUsage
	}

	c := &cli{
		client: gateclient.NewClient(*url),
		keySrc: keys.Source{Inline: *key, File: *keyFile},
		out:    out,
		poll:   *poll,
	}
	sub, rest := fs.Arg(0), fs.Args()[1:]
	switch sub {
	case "bootstrap":
		return c.bootstrap(ctx, rest)
	case "init-nonce":
		return c.initNonce(ctx, rest)
	case "claim":
		return c.claim(ctx, rest)
	case "nonce":
		return c.nonce(ctx, rest)
	default:
		return fmt.Errorf("unknown command %q\n%w", sub, errUsage)
	}
}

func envOr(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

// signer loads the caller's key on first use.
func (c *cli) signer() (*keys.Key, error) {
	if c.key != nil {
		return c.key, nil
	}
	k, err := c.keySrc.Load()
	if err != nil {
		return nil, fmt.Errorf("load key: %w", err)
	}
	c.key = k
	return k, nil
}

// submit signs b, submits it and waits for a successful outcome.
func (c *cli) submit(ctx context.Context, step string, b *bundle.Bundle, signers ...ed25519.PrivateKey) (*processor.Result, error) {
	if err := b.Sign(signers...); err != nil {
		return nil, fmt.Errorf("%s: sign: %w", step, err)
	}
	id, err := c.client.SubmitBundle(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("%s: submit: %w", step, err)
	}
	r, err := c.client.WaitResult(ctx, id, c.poll)
	if err != nil {
		return nil, fmt.Errorf("%s: wait %s: %w", step, id, err)
	}
	if r.Error != "" {
		return r, fmt.Errorf("%s: bundle %s %s: %s", step, id, r.Status, r.Error)
	}
	fmt.Fprintf(c.out, "%-14s %s %s\n", step+":", id, r.Status)
	return r, nil
}
