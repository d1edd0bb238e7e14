package state

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/0gfoundation/0g-nonce-gate/internal/address"
)

// AccountKeyFmt is the redis hash holding one account (%s = base58 address).
const AccountKeyFmt = "ledger:account:%s"

const (
	fieldOwner    = "owner"
	fieldLamports = "lamports"
	fieldData     = "data"
)

// ErrConflict is returned by Atomically when another writer touched an
// account the transaction read. The caller may re-run against fresh state.
var ErrConflict = errors.New("state: concurrent modification")

// Tx is a buffered view over the store. Reads see the transaction's own
// writes; nothing is visible to others until commit.
type Tx interface {
	Get(addr address.Address) (*Account, error)
	Put(addr address.Address, acct *Account)
	Delete(addr address.Address)
}

// Store is the account ledger.
type Store interface {
	// Get reads committed state; a missing account is (nil, nil).
	Get(ctx context.Context, addr address.Address) (*Account, error)
	// Atomically runs fn and commits its writes in one step, or discards
	// them all if fn fails.
	Atomically(ctx context.Context, fn func(tx Tx) error) error
}

// RedisStore keeps each account in a redis hash and commits through
// WATCH/MULTI/EXEC.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func accountKey(addr address.Address) string {
	return fmt.Sprintf(AccountKeyFmt, addr)
}

func (s *RedisStore) Get(ctx context.Context, addr address.Address) (*Account, error) {
	return load(ctx, s.rdb, addr)
}

type hashGetter interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

func load(ctx context.Context, c hashGetter, addr address.Address) (*Account, error) {
	m, err := c.HGetAll(ctx, accountKey(addr)).Result()
	if err != nil {
		return nil, fmt.Errorf("state: load %s: %w", addr, err)
	}
	if len(m) == 0 {
		return nil, nil
	}
	owner, err := address.FromBytes([]byte(m[fieldOwner]))
	if err != nil {
		return nil, fmt.Errorf("state: corrupt owner for %s: %w", addr, err)
	}
	lamports, err := strconv.ParseUint(m[fieldLamports], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("state: corrupt lamports for %s: %w", addr, err)
	}
	return &Account{Owner: owner, Lamports: lamports, Data: []byte(m[fieldData])}, nil
}

func (s *RedisStore) Atomically(ctx context.Context, fn func(tx Tx) error) error {
	err := s.rdb.Watch(ctx, func(rtx *redis.Tx) error {
		t := &redisTx{ctx: ctx, rtx: rtx, cache: map[address.Address]*Account{}}
		if err := fn(t); err != nil {
			return err
		}
		if err := t.err; err != nil {
			return err
		}
		return t.commit()
	})
	if errors.Is(err, redis.TxFailedErr) {
		return ErrConflict
	}
	return err
}

type redisTx struct {
	ctx   context.Context
	rtx   *redis.Tx
	cache map[address.Address]*Account // nil value = deleted or absent
	dirty []address.Address
	err   error
}

func (t *redisTx) Get(addr address.Address) (*Account, error) {
	if a, ok := t.cache[addr]; ok {
		return a.Clone(), nil
	}
	key := accountKey(addr)
	if err := t.rtx.Watch(t.ctx, key).Err(); err != nil {
		return nil, fmt.Errorf("state: watch %s: %w", addr, err)
	}
	a, err := load(t.ctx, t.rtx, addr)
	if err != nil {
		return nil, err
	}
	t.cache[addr] = a
	return a.Clone(), nil
}

func (t *redisTx) touch(addr address.Address) {
	if _, seen := t.cache[addr]; !seen {
		// Blind write: watch it anyway so a racing creator is detected.
		if err := t.rtx.Watch(t.ctx, accountKey(addr)).Err(); err != nil && t.err == nil {
			t.err = fmt.Errorf("state: watch %s: %w", addr, err)
		}
	}
	t.dirty = append(t.dirty, addr)
}

func (t *redisTx) Put(addr address.Address, acct *Account) {
	t.touch(addr)
	t.cache[addr] = acct.Clone()
}

func (t *redisTx) Delete(addr address.Address) {
	t.touch(addr)
	t.cache[addr] = nil
}

func (t *redisTx) commit() error {
	if len(t.dirty) == 0 {
		return nil
	}
	_, err := t.rtx.TxPipelined(t.ctx, func(pipe redis.Pipeliner) error {
		done := make(map[address.Address]bool, len(t.dirty))
		for _, addr := range t.dirty {
			if done[addr] {
				continue
			}
			done[addr] = true
			key := accountKey(addr)
			a := t.cache[addr]
			if a == nil {
				pipe.Del(t.ctx, key)
				continue
			}
			pipe.HSet(t.ctx, key,
				fieldOwner, string(a.Owner[:]),
				fieldLamports, strconv.FormatUint(a.Lamports, 10),
				fieldData, string(a.Data),
			)
		}
		return nil
	})
	return err
}
