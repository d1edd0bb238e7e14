package runtime

import (
	"bytes"
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/0gfoundation/0g-nonce-gate/internal/address"
	"github.com/0gfoundation/0g-nonce-gate/internal/bundle"
	"github.com/0gfoundation/0g-nonce-gate/internal/gateerr"
	"github.com/0gfoundation/0g-nonce-gate/internal/state"
)

// Context is the view a program gets of the instruction it is processing.
type Context struct {
	ctx     context.Context
	rt      *Runtime
	tx      state.Tx
	program address.Address
	metas   []bundle.AccountMeta
	sysvar  *Sysvar
	depth   int
	receipt *Receipt
}

func (c *Context) dispatch(ix bundle.Instruction, signers map[address.Address]bool, depth int) ([]byte, error) {
	p, ok := c.rt.programs[ix.Program]
	if !ok {
		return nil, fmt.Errorf("%w: %s", gateerr.ErrUnknownProgram, ix.Program)
	}
	for _, m := range ix.Accounts {
		if m.Signer && !signers[m.Key] {
			return nil, fmt.Errorf("%w: %s", gateerr.ErrMissingSignature, m.Key)
		}
	}
	frame := &Context{
		ctx:     c.ctx,
		rt:      c.rt,
		tx:      c.tx,
		program: ix.Program,
		metas:   ix.Accounts,
		sysvar:  c.sysvar,
		depth:   depth,
		receipt: c.receipt,
	}
	return p.Process(frame, ix.Data)
}

func (c *Context) Context() context.Context { return c.ctx }

// ProgramID is the program currently executing.
func (c *Context) ProgramID() address.Address { return c.program }

func (c *Context) Accounts() []bundle.AccountMeta { return c.metas }

// Account returns the i-th account of the instruction.
func (c *Context) Account(i int) (bundle.AccountMeta, error) {
	if i < 0 || i >= len(c.metas) {
		return bundle.AccountMeta{}, fmt.Errorf("%w: expected account #%d, got %d accounts", gateerr.ErrInvalidAccount, i, len(c.metas))
	}
	return c.metas[i], nil
}

// meta merges the privileges of every occurrence of addr.
func (c *Context) meta(addr address.Address) (bundle.AccountMeta, bool) {
	out := bundle.AccountMeta{Key: addr}
	found := false
	for _, m := range c.metas {
		if m.Key == addr {
			found = true
			out.Signer = out.Signer || m.Signer
			out.Writable = out.Writable || m.Writable
		}
	}
	return out, found
}

// IsSigner reports whether addr signed this instruction, either in the
// bundle or through a capability granted by the invoking program.
func (c *Context) IsSigner(addr address.Address) bool {
	m, ok := c.meta(addr)
	return ok && m.Signer
}

func (c *Context) Rent() Rent { return c.rt.rent }

// Instructions exposes the bundle for introspection.
func (c *Context) Instructions() *Sysvar { return c.sysvar }

func (c *Context) Logf(format string, args ...any) {
	line := fmt.Sprintf("%s: %s", c.program, fmt.Sprintf(format, args...))
	c.receipt.Logs = append(c.receipt.Logs, line)
	c.rt.log.Debug("program log", zap.String("line", line))
}

// Load reads an account listed by the instruction. A missing account is
// (nil, nil).
func (c *Context) Load(addr address.Address) (*state.Account, error) {
	if _, ok := c.meta(addr); !ok {
		return nil, fmt.Errorf("%w: %s not passed to instruction", gateerr.ErrInvalidAccount, addr)
	}
	return c.tx.Get(addr)
}

// Save writes acct. Only the owning program may change data or debit the
// balance; any program may credit a writable account. Only the system
// program may create accounts with data or reassign owners, except that
// crediting a fresh address creates a plain balance account.
func (c *Context) Save(addr address.Address, acct *state.Account) error {
	m, ok := c.meta(addr)
	if !ok {
		return fmt.Errorf("%w: %s not passed to instruction", gateerr.ErrInvalidAccount, addr)
	}
	if !m.Writable {
		return fmt.Errorf("%w: %s", gateerr.ErrAccountNotWritable, addr)
	}
	prev, err := c.tx.Get(addr)
	if err != nil {
		return err
	}
	isSystem := c.program == SystemProgramID
	switch {
	case prev == nil:
		if !isSystem && (acct.Owner != SystemProgramID || len(acct.Data) > 0) {
			return fmt.Errorf("%w: %s may not create %s", gateerr.ErrIllegalOwner, c.program, addr)
		}
	case prev.Owner == c.program:
		if acct.Owner != prev.Owner && !isSystem {
			return fmt.Errorf("%w: owner of %s is immutable", gateerr.ErrIllegalOwner, addr)
		}
	default:
		if acct.Owner != prev.Owner || !bytes.Equal(acct.Data, prev.Data) || acct.Lamports < prev.Lamports {
			return fmt.Errorf("%w: %s does not own %s", gateerr.ErrIllegalOwner, c.program, addr)
		}
	}
	c.tx.Put(addr, acct)
	return nil
}

// Close moves the full balance of addr to receiver and deletes it.
func (c *Context) Close(addr, receiver address.Address) error {
	if addr == receiver {
		return fmt.Errorf("%w: cannot close %s into itself", gateerr.ErrInvalidAccount, addr)
	}
	m, ok := c.meta(addr)
	if !ok || !m.Writable {
		return fmt.Errorf("%w: %s", gateerr.ErrAccountNotWritable, addr)
	}
	acct, err := c.tx.Get(addr)
	if err != nil {
		return err
	}
	if acct == nil {
		return fmt.Errorf("%w: %s", gateerr.ErrNotInitialized, addr)
	}
	if acct.Owner != c.program {
		return fmt.Errorf("%w: %s does not own %s", gateerr.ErrIllegalOwner, c.program, addr)
	}
	dst, err := c.Load(receiver)
	if err != nil {
		return err
	}
	if dst == nil {
		dst = &state.Account{Owner: SystemProgramID}
	}
	if dst.Lamports+acct.Lamports < dst.Lamports {
		return gateerr.ErrOverflow
	}
	dst.Lamports += acct.Lamports
	if err := c.Save(receiver, dst); err != nil {
		return err
	}
	c.tx.Delete(addr)
	return nil
}

// Invoke calls another program. Accounts passed on must already be
// available to the caller with at least the requested privileges; caps
// grant signer status for addresses derived from the calling program.
func (c *Context) Invoke(ix bundle.Instruction, caps ...address.Capability) ([]byte, error) {
	if c.depth+1 > maxInvokeDepth {
		return nil, fmt.Errorf("%w: invoke depth exceeded", gateerr.ErrInvalidInstruction)
	}
	granted := make(map[address.Address]bool, len(caps))
	for _, cp := range caps {
		if err := cp.VerifyFor(c.program); err != nil {
			return nil, fmt.Errorf("%w: %v", gateerr.ErrUnauthorized, err)
		}
		granted[cp.Address] = true
	}

	signers := make(map[address.Address]bool)
	for _, m := range ix.Accounts {
		outer, ok := c.meta(m.Key)
		if !ok {
			return nil, fmt.Errorf("%w: %s not available to caller", gateerr.ErrInvalidAccount, m.Key)
		}
		if m.Writable && !outer.Writable {
			return nil, fmt.Errorf("%w: %s", gateerr.ErrAccountNotWritable, m.Key)
		}
		if m.Signer {
			if !outer.Signer && !granted[m.Key] {
				return nil, fmt.Errorf("%w: %s", gateerr.ErrMissingSignature, m.Key)
			}
			signers[m.Key] = true
		}
	}
	return c.dispatch(ix, signers, c.depth+1)
}
