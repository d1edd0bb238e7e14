package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/0gfoundation/0g-nonce-gate/internal/address"
	"github.com/0gfoundation/0g-nonce-gate/internal/api"
	"github.com/0gfoundation/0g-nonce-gate/internal/auth"
	"github.com/0gfoundation/0g-nonce-gate/internal/config"
	"github.com/0gfoundation/0g-nonce-gate/internal/issuer"
	"github.com/0gfoundation/0g-nonce-gate/internal/keys"
	"github.com/0gfoundation/0g-nonce-gate/internal/ledger"
	"github.com/0gfoundation/0g-nonce-gate/internal/processor"
	"github.com/0gfoundation/0g-nonce-gate/internal/runtime"
	"github.com/0gfoundation/0g-nonce-gate/internal/state"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync() //nolint:errcheck

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config load failed", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Redis ─────────────────────────────────────────────────────────────────
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal("redis ping failed", zap.Error(err))
	}

	// ── Ledger runtime (programs over the Redis account store) ────────────────
	rt := ledger.NewRedis(rdb,
		runtime.WithRent(runtime.Rent{LamportsPerByte: cfg.Runtime.LamportsPerByte}),
		runtime.WithMaxAttempts(cfg.Runtime.MaxAttempts),
		runtime.WithLogger(log),
	)

	// ── Issuer (optional; needs the project admin key) ────────────────────────
	var iss *issuer.Issuer
	if cfg.Issuer.Enabled() {
		key, err := keys.Get(keys.Source{Inline: cfg.Issuer.SigningKey, File: cfg.Issuer.KeyFile})
		if err != nil {
			log.Fatal("issuer key load failed", zap.Error(err))
		}
		iss, err = newIssuer(ctx, key, cfg.Issuer, rt.Store(), rdb)
		if err != nil {
			// The project may not be deployed yet; claims fail until it is.
			log.Warn("issuer check failed", zap.Error(err))
		}
		log.Info("issuer enabled",
			zap.String("admin", key.Address.String()),
			zap.Uint64("max_amount", cfg.Issuer.MaxAmount),
		)
	}

	// ── Goroutines ────────────────────────────────────────────────────────────
	go processor.Run(ctx, rdb, rt, time.Duration(cfg.Queue.PopTimeoutSec)*time.Second, log)

	// ── HTTP server ───────────────────────────────────────────────────────────
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: newRouter(cfg, rdb, rt.Store(), iss, log),
	}

	go func() {
		log.Info("HTTP server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	<-quit

	log.Info("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}
	log.Info("shutdown complete")
}

// newIssuer builds the issuer for cfg. The issuer is returned even when the
// deployment check fails, together with the check error.
func newIssuer(ctx context.Context, key *keys.Key, cfg config.IssuerConfig, store state.Store, rdb *redis.Client) (*issuer.Issuer, error) {
	target := issuer.Target{
		ProjectID:       address.MustParse(cfg.ProjectID),
		Mint:            address.MustParse(cfg.Mint),
		BusinessProject: address.MustParse(cfg.BusinessProject),
		ServiceBase:     address.MustParse(cfg.ServiceBase),
		MaxAmount:       cfg.MaxAmount,
	}
	iss := issuer.New(key.Private, target, store, rdb)
	return iss, iss.Check(ctx)
}

// newRouter mounts health, API and (optionally) issuer and faucet routes.
func newRouter(cfg *config.Config, rdb *redis.Client, store state.Store, iss *issuer.Issuer, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	var opts []api.Option
	if iss != nil {
		opts = append(opts, api.WithIssuer(iss))
	}
	if cfg.Faucet.Enabled {
		opts = append(opts, api.WithFaucet(cfg.Faucet.Lamports))
	}
	maxFuture := time.Duration(cfg.Auth.MaxFutureSec) * time.Second
	api.NewHandler(rdb, store, log, opts...).
		Register(r.Group("/api"), auth.Middleware(rdb, api.AuthorizeAction, maxFuture))
	return r
}
