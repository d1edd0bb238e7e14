// Package runtime executes bundles: every instruction runs in order against
// one buffered state transaction, and the bundle commits only if all of
// them succeed.
package runtime

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/0gfoundation/0g-nonce-gate/internal/address"
	"github.com/0gfoundation/0g-nonce-gate/internal/bundle"
	"github.com/0gfoundation/0g-nonce-gate/internal/gateerr"
	"github.com/0gfoundation/0g-nonce-gate/internal/state"
)

// SystemProgramID owns every plain balance account.
var SystemProgramID = address.Address{}

const (
	defaultMaxAttempts = 3
	maxInvokeDepth     = 4

	// AccountOverhead is the per-account byte count charged on top of the
	// declared space.
	AccountOverhead = 128
	// DefaultLamportsPerByte matches a two-year exemption at the standard rate.
	DefaultLamportsPerByte = 6960
)

// Program is an on-ledger program. Process receives the instruction data and
// may return data to an invoking program.
type Program interface {
	ID() address.Address
	Process(ctx *Context, data []byte) ([]byte, error)
}

// Rent prices the holding balance an account must carry when created.
type Rent struct {
	LamportsPerByte uint64
}

func (r Rent) MinimumBalance(space int) uint64 {
	return uint64(AccountOverhead+space) * r.LamportsPerByte
}

// Receipt describes a committed (or failed) bundle.
type Receipt struct {
	Logs       []string `json:"logs,omitempty"`
	ReturnData []byte   `json:"return_data,omitempty"`
	Attempts   int      `json:"attempts"`
}

// InstructionError records which instruction aborted a bundle.
type InstructionError struct {
	Index   int
	Program address.Address
	Err     error
}

func (e *InstructionError) Error() string {
	return fmt.Sprintf("instruction %d (%s): %v", e.Index, e.Program, e.Err)
}

func (e *InstructionError) Unwrap() error { return e.Err }

type Runtime struct {
	store       state.Store
	programs    map[address.Address]Program
	rent        Rent
	maxAttempts int
	log         *zap.Logger
}

type Option func(*Runtime)

func WithRent(r Rent) Option { return func(rt *Runtime) { rt.rent = r } }

// WithMaxAttempts bounds how often a bundle is re-run after losing a
// commit race.
func WithMaxAttempts(n int) Option {
	return func(rt *Runtime) {
		if n > 0 {
			rt.maxAttempts = n
		}
	}
}

func WithLogger(log *zap.Logger) Option { return func(rt *Runtime) { rt.log = log } }

func New(store state.Store, programs []Program, opts ...Option) *Runtime {
	rt := &Runtime{
		store:       store,
		programs:    make(map[address.Address]Program, len(programs)),
		rent:        Rent{LamportsPerByte: DefaultLamportsPerByte},
		maxAttempts: defaultMaxAttempts,
		log:         zap.NewNop(),
	}
	for _, p := range programs {
		rt.programs[p.ID()] = p
	}
	for _, o := range opts {
		o(rt)
	}
	return rt
}

func (r *Runtime) Rent() Rent { return r.rent }

func (r *Runtime) Store() state.Store { return r.store }

// Execute runs b atomically. A lost commit race re-runs the whole bundle
// against fresh state, so conflicting bundles behave as if serialised.
func (r *Runtime) Execute(ctx context.Context, b *bundle.Bundle) (*Receipt, error) {
	signers, err := b.Signers()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gateerr.ErrMissingSignature, err)
	}

	for attempt := 1; ; attempt++ {
		rec := &Receipt{Attempts: attempt}
		err := r.store.Atomically(ctx, func(tx state.Tx) (err error) {
			sys := &Sysvar{ixs: b.Instructions}
			defer func() {
				if p := recover(); p != nil {
					ix := b.Instructions[sys.current]
					r.log.Error("program panicked", zap.Int("instruction", sys.current),
						zap.Stringer("program", ix.Program), zap.Any("panic", p))
					err = &InstructionError{
						Index:   sys.current,
						Program: ix.Program,
						Err:     fmt.Errorf("%w: program panicked: %v", gateerr.ErrInvalidInstruction, p),
					}
				}
			}()
			for i, ix := range b.Instructions {
				sys.current = i
				top := &Context{ctx: ctx, rt: r, tx: tx, sysvar: sys, receipt: rec}
				ret, err := top.dispatch(ix, signers, 0)
				if err != nil {
					return &InstructionError{Index: i, Program: ix.Program, Err: err}
				}
				rec.ReturnData = ret
			}
			return nil
		})
		if errors.Is(err, state.ErrConflict) && attempt < r.maxAttempts {
			r.log.Debug("bundle lost commit race, re-running", zap.Int("attempt", attempt))
			continue
		}
		return rec, err
	}
}
