package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/0gfoundation/0g-nonce-gate/internal/bundle"
)

// ResultTTL is how long outcomes stay queryable.
const ResultTTL = 24 * time.Hour

var (
	ErrNotFound      = errors.New("processor: bundle not found")
	ErrInvalidBundle = errors.New("processor: invalid bundle")
)

func resultKey(id string) string { return fmt.Sprintf(ResultKeyFmt, id) }

// Submit checks that raw decodes and carries valid signatures, then queues
// it and returns its id.
func Submit(ctx context.Context, rdb *redis.Client, raw []byte) (string, error) {
	b, err := bundle.Decode(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidBundle, err)
	}
	if _, err := b.Signers(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidBundle, err)
	}

	env := Envelope{ID: uuid.NewString(), Bundle: raw, SubmittedAt: time.Now().Unix()}
	item, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("marshal envelope: %w", err)
	}
	pending, err := json.Marshal(Result{ID: env.ID, Status: StatusQueued, SubmittedAt: env.SubmittedAt})
	if err != nil {
		return "", fmt.Errorf("marshal result: %w", err)
	}
	_, err = rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, resultKey(env.ID), pending, ResultTTL)
		p.RPush(ctx, QueueKey, item)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("enqueue bundle: %w", err)
	}
	return env.ID, nil
}

// GetResult returns the recorded outcome of bundle id.
func GetResult(ctx context.Context, rdb *redis.Client, id string) (*Result, error) {
	raw, err := rdb.Get(ctx, resultKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var r Result
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("unmarshal result: %w", err)
	}
	return &r, nil
}
