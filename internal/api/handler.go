// Package api exposes the gate over HTTP: bundle submission and status,
// committed-state queries, claim authorization and a development faucet.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/0gfoundation/0g-nonce-gate/internal/address"
	"github.com/0gfoundation/0g-nonce-gate/internal/airdrop"
	"github.com/0gfoundation/0g-nonce-gate/internal/auth"
	"github.com/0gfoundation/0g-nonce-gate/internal/bundle"
	"github.com/0gfoundation/0g-nonce-gate/internal/gateerr"
	"github.com/0gfoundation/0g-nonce-gate/internal/issuer"
	"github.com/0gfoundation/0g-nonce-gate/internal/nonceverify"
	"github.com/0gfoundation/0g-nonce-gate/internal/processor"
	"github.com/0gfoundation/0g-nonce-gate/internal/state"
	"github.com/0gfoundation/0g-nonce-gate/internal/system"
	"github.com/0gfoundation/0g-nonce-gate/internal/token"
)

// AuthorizeAction is the signed-request action for claim authorization.
const AuthorizeAction = "authorize_claim"

// Authorizer is satisfied by issuer.Issuer.
type Authorizer interface {
	Authorize(ctx context.Context, user address.Address, amount uint64) (*issuer.Authorization, error)
}

// Handler wires up all API routes onto a Gin engine.
type Handler struct {
	rdb    *redis.Client
	store  state.Store
	issuer Authorizer
	faucet uint64
	log    *zap.Logger
}

// Option configures optional routes.
type Option func(*Handler)

// WithIssuer enables POST /claims/authorize.
func WithIssuer(a Authorizer) Option { return func(h *Handler) { h.issuer = a } }

// WithFaucet enables POST /faucet, crediting at most lamports per call.
func WithFaucet(lamports uint64) Option { return func(h *Handler) { h.faucet = lamports } }

func NewHandler(rdb *redis.Client, store state.Store, log *zap.Logger, opts ...Option) *Handler {
	h := &Handler{rdb: rdb, store: store, log: log}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Register mounts all routes. authMiddleware guards claim authorization.
func (h *Handler) Register(rg *gin.RouterGroup, authMiddleware gin.HandlerFunc) {
	// ── Bundles ────────────────────────────────────────────────────────────
	rg.POST("/bundles", h.handleSubmit)
	rg.GET("/bundles/:id", h.handleResult)

	// ── Committed state ────────────────────────────────────────────────────
	rg.GET("/services/:address", h.handleService)
	rg.GET("/businesses/:address", h.handleBusiness)
	rg.GET("/nonces/:business/:user", h.handleNonce)
	rg.GET("/projects/:address", h.handleProject)
	rg.GET("/balances/:address", h.handleBalance)
	rg.GET("/tokens/:mint/:owner", h.handleTokenBalance)

	// ── Issuer / faucet ────────────────────────────────────────────────────
	rg.POST("/claims/authorize", authMiddleware, h.handleAuthorize)
	if h.faucet > 0 {
		rg.POST("/faucet", h.handleFaucet)
	}
}

// ── Bundles ─────────────────────────────────────────────────────────────────

type SubmitRequest struct {
	Bundle hexutil.Bytes `json:"bundle" binding:"required"`
}

type SubmitResponse struct {
	ID string `json:"id"`
}

func (h *Handler) handleSubmit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	id, err := processor.Submit(c.Request.Context(), h.rdb, req.Bundle)
	switch {
	case errors.Is(err, bundle.ErrBadSignature), errors.Is(err, bundle.ErrDuplicateSigner):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	case errors.Is(err, processor.ErrInvalidBundle):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		h.log.Error("submit bundle", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusAccepted, SubmitResponse{ID: id})
}

func (h *Handler) handleResult(c *gin.Context) {
	r, err := processor.GetResult(c.Request.Context(), h.rdb, c.Param("id"))
	if errors.Is(err, processor.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "bundle not found"})
		return
	}
	if err != nil {
		h.log.Error("get bundle result", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, r)
}

// ── Committed state ─────────────────────────────────────────────────────────

// param parses the named path parameter as an address, writing a 400 on
// failure.
func param(c *gin.Context, name string) (address.Address, bool) {
	a, err := address.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return address.Address{}, false
	}
	return a, true
}

// respond writes v, or maps err to a status.
func (h *Handler) respond(c *gin.Context, v any, err error) {
	switch {
	case err == nil:
		c.JSON(http.StatusOK, v)
	case errors.Is(err, gateerr.ErrNotInitialized):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case gateerr.Rejected(err):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		h.log.Error("state query", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func (h *Handler) handleService(c *gin.Context) {
	addr, ok := param(c, "address")
	if !ok {
		return
	}
	svc, err := nonceverify.GetService(c.Request.Context(), h.store, addr)
	h.respond(c, svc, err)
}

func (h *Handler) handleBusiness(c *gin.Context) {
	addr, ok := param(c, "address")
	if !ok {
		return
	}
	biz, err := nonceverify.GetBusiness(c.Request.Context(), h.store, addr)
	h.respond(c, biz, err)
}

type NonceResponse struct {
	Address address.Address `json:"address"`
	*nonceverify.UserBusinessNonce
}

func (h *Handler) handleNonce(c *gin.Context) {
	business, ok := param(c, "business")
	if !ok {
		return
	}
	user, ok := param(c, "user")
	if !ok {
		return
	}
	rec, err := nonceverify.GetUserNonce(c.Request.Context(), h.store, business, user)
	h.respond(c, NonceResponse{Address: nonceverify.UserNonceAddress(business, user).Address, UserBusinessNonce: rec}, err)
}

func (h *Handler) handleProject(c *gin.Context) {
	addr, ok := param(c, "address")
	if !ok {
		return
	}
	p, err := airdrop.GetProject(c.Request.Context(), h.store, addr)
	h.respond(c, p, err)
}

type BalanceResponse struct {
	Address address.Address `json:"address"`
	Amount  uint64          `json:"amount"`
}

func (h *Handler) handleBalance(c *gin.Context) {
	addr, ok := param(c, "address")
	if !ok {
		return
	}
	n, err := system.Balance(c.Request.Context(), h.store, addr)
	h.respond(c, BalanceResponse{Address: addr, Amount: n}, err)
}

func (h *Handler) handleTokenBalance(c *gin.Context) {
	mint, ok := param(c, "mint")
	if !ok {
		return
	}
	owner, ok := param(c, "owner")
	if !ok {
		return
	}
	n, err := token.BalanceOf(c.Request.Context(), h.store, owner, mint)
	h.respond(c, BalanceResponse{Address: token.AssociatedAddress(owner, mint).Address, Amount: n}, err)
}

// ── Issuer / faucet ─────────────────────────────────────────────────────────

type AuthorizeRequest struct {
	Amount uint64 `json:"amount"`
}

func (h *Handler) handleAuthorize(c *gin.Context) {
	if h.issuer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "issuer disabled"})
		return
	}
	wallet, err := address.Parse(c.GetString(auth.WalletKey))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no wallet"})
		return
	}
	signed, _ := c.Get(auth.RequestKey)
	sr, _ := signed.(auth.SignedRequest)
	var req AuthorizeRequest
	if err := json.Unmarshal(sr.Payload, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	a, err := h.issuer.Authorize(c.Request.Context(), wallet, req.Amount)
	switch {
	case errors.Is(err, issuer.ErrInvalidAmount):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, gateerr.ErrNotInitialized):
		c.JSON(http.StatusNotFound, gin.H{"error": "nonce record not initialized"})
	case err != nil:
		h.log.Error("authorize claim", zap.String("wallet", wallet.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	default:
		h.log.Info("claim authorized",
			zap.String("wallet", wallet.String()),
			zap.Uint32("nonce", a.Claim.Nonce),
			zap.Uint64("amount", a.Claim.Amount),
		)
		c.JSON(http.StatusOK, a)
	}
}

type FaucetRequest struct {
	Address  address.Address `json:"address"`
	Lamports uint64          `json:"lamports"`
}

func (h *Handler) handleFaucet(c *gin.Context) {
	var req FaucetRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Address.IsZero() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Lamports == 0 || req.Lamports > h.faucet {
		req.Lamports = h.faucet
	}
	if err := system.Faucet(c.Request.Context(), h.store, req.Address, req.Lamports); err != nil {
		h.respond(c, nil, err)
		return
	}
	n, err := system.Balance(c.Request.Context(), h.store, req.Address)
	h.respond(c, BalanceResponse{Address: req.Address, Amount: n}, err)
}
