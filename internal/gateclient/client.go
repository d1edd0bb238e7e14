// Package gateclient is a REST client for the gate's HTTP API.
package gateclient

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/0gfoundation/0g-nonce-gate/internal/address"
	"github.com/0gfoundation/0g-nonce-gate/internal/api"
	"github.com/0gfoundation/0g-nonce-gate/internal/auth"
	"github.com/0gfoundation/0g-nonce-gate/internal/bundle"
	"github.com/0gfoundation/0g-nonce-gate/internal/issuer"
	"github.com/0gfoundation/0g-nonce-gate/internal/nonceverify"
	"github.com/0gfoundation/0g-nonce-gate/internal/processor"
)

// ErrNotFound is returned for any 404 response.
var ErrNotFound = errors.New("gateclient: not found")

// StatusError is a non-2xx response.
type StatusError struct {
	Op      string
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("gateclient %s: status %d", e.Op, e.Code)
	}
	return fmt.Sprintf("gateclient %s: status %d: %s", e.Op, e.Code, e.Message)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && e.Code == http.StatusNotFound
}

// Client talks to one gate instance. baseURL includes the /api prefix.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) do(ctx context.Context, method, path string, body any, header http.Header) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	for k, vs := range header {
		req.Header[k] = vs
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.http.Do(req)
}

// call performs the request and decodes a 2xx body into out.
func (c *Client) call(ctx context.Context, op, method, path string, body any, header http.Header, out any) error {
	resp, err := c.do(ctx, method, path, body, header)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&e) //nolint:errcheck
		return &StatusError{Op: op, Code: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// ── Bundles ───────────────────────────────────────────────────────────────────

// SubmitBundle enqueues a signed bundle and returns its id.
func (c *Client) SubmitBundle(ctx context.Context, b *bundle.Bundle) (string, error) {
	raw, err := b.Encode()
	if err != nil {
		return "", err
	}
	var resp api.SubmitResponse
	if err := c.call(ctx, "SubmitBundle", http.MethodPost, "/bundles", api.SubmitRequest{Bundle: raw}, nil, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (c *Client) Result(ctx context.Context, id string) (*processor.Result, error) {
	var r processor.Result
	return &r, c.call(ctx, "Result", http.MethodGet, "/bundles/"+id, nil, nil, &r)
}

// WaitResult polls Result every interval until the bundle leaves the queue.
func (c *Client) WaitResult(ctx context.Context, id string, interval time.Duration) (*processor.Result, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		r, err := c.Result(ctx, id)
		if err != nil {
			return nil, err
		}
		if r.Status != processor.StatusQueued {
			return r, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// ── Committed state ───────────────────────────────────────────────────────────

func (c *Client) Service(ctx context.Context, addr address.Address) (*nonceverify.NonceService, error) {
	var s nonceverify.NonceService
	return &s, c.call(ctx, "Service", http.MethodGet, "/services/"+addr.String(), nil, nil, &s)
}

func (c *Client) Business(ctx context.Context, addr address.Address) (*nonceverify.BusinessProject, error) {
	var b nonceverify.BusinessProject
	return &b, c.call(ctx, "Business", http.MethodGet, "/businesses/"+addr.String(), nil, nil, &b)
}

// Nonce reads the counter record for (business, user).
func (c *Client) Nonce(ctx context.Context, business, user address.Address) (*nonceverify.UserBusinessNonce, error) {
	var n nonceverify.UserBusinessNonce
	path := fmt.Sprintf("/nonces/%s/%s", business, user)
	return &n, c.call(ctx, "Nonce", http.MethodGet, path, nil, nil, &n)
}

func (c *Client) Balance(ctx context.Context, addr address.Address) (uint64, error) {
	var b api.BalanceResponse
	err := c.call(ctx, "Balance", http.MethodGet, "/balances/"+addr.String(), nil, nil, &b)
	return b.Amount, err
}

func (c *Client) TokenBalance(ctx context.Context, mint, owner address.Address) (uint64, error) {
	var b api.BalanceResponse
	path := fmt.Sprintf("/tokens/%s/%s", mint, owner)
	err := c.call(ctx, "TokenBalance", http.MethodGet, path, nil, nil, &b)
	return b.Amount, err
}

// ── Issuer / faucet ───────────────────────────────────────────────────────────

// Authorize asks the issuer to sign a claim of amount for the wallet behind
// priv. The request is signed with a fresh nonce valid for one minute.
func (c *Client) Authorize(ctx context.Context, priv ed25519.PrivateKey, amount uint64) (*issuer.Authorization, error) {
	payload, err := json.Marshal(api.AuthorizeRequest{Amount: amount})
	if err != nil {
		return nil, err
	}
	header, err := auth.SignHeaders(priv, auth.SignedRequest{
		Action:    api.AuthorizeAction,
		ExpiresAt: time.Now().Add(time.Minute).Unix(),
		Nonce:     uuid.NewString(),
		Payload:   payload,
	})
	if err != nil {
		return nil, err
	}
	var a issuer.Authorization
	return &a, c.call(ctx, "Authorize", http.MethodPost, "/claims/authorize", nil, header, &a)
}

// Faucet credits addr on development deployments and returns the new balance.
func (c *Client) Faucet(ctx context.Context, addr address.Address, lamports uint64) (uint64, error) {
	var b api.BalanceResponse
	err := c.call(ctx, "Faucet", http.MethodPost, "/faucet", api.FaucetRequest{Address: addr, Lamports: lamports}, nil, &b)
	return b.Amount, err
}
