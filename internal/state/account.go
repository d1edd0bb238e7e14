// Package state stores accounts and commits bundle effects atomically.
package state

import (
	"bytes"

	"github.com/0gfoundation/0g-nonce-gate/internal/address"
)

// Account is the stored form of every ledger entry: a balance, the program
// allowed to change it, and opaque record data.
type Account struct {
	Owner    address.Address
	Lamports uint64
	Data     []byte
}

// Clone returns a deep copy so callers can mutate without touching the
// transaction's view.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	c.Data = bytes.Clone(a.Data)
	return &c
}

// Equal reports whether two accounts have identical contents.
func (a *Account) Equal(b *Account) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Owner == b.Owner && a.Lamports == b.Lamports && bytes.Equal(a.Data, b.Data)
}
