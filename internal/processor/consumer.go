package processor

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/0gfoundation/0g-nonce-gate/internal/bundle"
	"github.com/0gfoundation/0g-nonce-gate/internal/gateerr"
	"github.com/0gfoundation/0g-nonce-gate/internal/runtime"
)

// Executor runs a bundle atomically.
type Executor interface {
	Execute(ctx context.Context, b *bundle.Bundle) (*runtime.Receipt, error)
}

// Run is the main processor loop: BLPOP → execute → record outcome.
// Infrastructure failures push the item back; protocol rejections are final.
func Run(ctx context.Context, rdb *redis.Client, exec Executor, popTimeout time.Duration, log *zap.Logger) {
	log.Info("processor started", zap.String("queue", QueueKey))

	for {
		if ctx.Err() != nil {
			log.Info("processor stopped")
			return
		}

		// BLPOP blocks until an item appears or timeout
		results, err := rdb.BLPop(ctx, popTimeout, QueueKey).Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			log.Error("processor: BLPOP error", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		// results[0] = key, results[1] = value
		item := results[1]
		if !Process(ctx, rdb, exec, item, log) {
			_ = rdb.LPush(context.Background(), QueueKey, item)
			if ctx.Err() != nil {
				return
			}
			time.Sleep(5 * time.Second)
		}
	}
}

// Process executes one queued item and records its outcome. It returns
// false when the item should be retried later.
func Process(ctx context.Context, rdb *redis.Client, exec Executor, item string, log *zap.Logger) bool {
	var env Envelope
	if err := json.Unmarshal([]byte(item), &env); err != nil {
		log.Error("processor: unmarshal envelope", zap.String("raw", item), zap.Error(err))
		rdb.RPush(ctx, DLQKey, item)
		return true
	}
	b, err := bundle.Decode(env.Bundle)
	if err != nil {
		HandleResult(ctx, rdb, env, nil, err, log)
		return true
	}

	receipt, err := exec.Execute(ctx, b)
	if err != nil && !gateerr.Rejected(err) {
		log.Error("processor: execute", zap.String("bundle", env.ID), zap.Error(err))
		return false
	}
	HandleResult(ctx, rdb, env, receipt, err, log)
	return true
}

// HandleResult records the outcome of env and routes failures: companion
// and signature failures go to the DLQ since they point at a broken
// issuer or client, stale nonces are only logged.
func HandleResult(ctx context.Context, rdb *redis.Client, env Envelope, receipt *runtime.Receipt, execErr error, log *zap.Logger) {
	status := gateerr.StatusOf(execErr)
	if execErr != nil && status == gateerr.StatusInternal {
		// Undecodable bundles are final too.
		status = gateerr.StatusRejected
	}
	res := Result{
		ID:          env.ID,
		Status:      status.String(),
		Receipt:     receipt,
		SubmittedAt: env.SubmittedAt,
		ProcessedAt: time.Now().Unix(),
	}
	if execErr != nil {
		res.Error = execErr.Error()
	}
	if raw, err := json.Marshal(res); err != nil {
		log.Error("processor: marshal result", zap.String("bundle", env.ID), zap.Error(err))
	} else if err := rdb.Set(ctx, resultKey(env.ID), raw, ResultTTL).Err(); err != nil {
		log.Error("processor: store result", zap.String("bundle", env.ID), zap.Error(err))
	}

	switch status {
	case gateerr.StatusSuccess:
		log.Info("bundle executed",
			zap.String("bundle", env.ID),
			zap.Int("attempts", receipt.Attempts),
		)

	case gateerr.StatusMissingCompanion, gateerr.StatusInvalidCompanion, gateerr.StatusSignatureFailed:
		raw, _ := json.Marshal(env)
		rdb.RPush(ctx, DLQKey, string(raw))
		log.Error("bundle rejected: authorization malformed",
			zap.String("status", status.String()),
			zap.String("bundle", env.ID),
			zap.Error(execErr),
		)

	case gateerr.StatusNonceMismatch:
		log.Warn("bundle discarded: stale nonce",
			zap.String("bundle", env.ID),
			zap.Error(execErr),
		)

	default:
		log.Info("bundle rejected",
			zap.String("status", status.String()),
			zap.String("bundle", env.ID),
			zap.Error(execErr),
		)
	}
}
