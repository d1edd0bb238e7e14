package runtime

import (
	"errors"
	"fmt"

	"github.com/0gfoundation/0g-nonce-gate/internal/bundle"
)

var ErrInstructionIndex = errors.New("runtime: instruction index out of range")

// Sysvar gives programs read access to the whole bundle and the position
// of the top-level instruction being executed.
type Sysvar struct {
	ixs     []bundle.Instruction
	current int
}

// NewSysvar is used by tests and offline checkers that validate a bundle
// without executing it.
func NewSysvar(ixs []bundle.Instruction, current int) *Sysvar {
	return &Sysvar{ixs: ixs, current: current}
}

func (s *Sysvar) CurrentIndex() int { return s.current }

func (s *Sysvar) InstructionAt(i int) (bundle.Instruction, error) {
	if i < 0 || i >= len(s.ixs) {
		return bundle.Instruction{}, fmt.Errorf("%w: %d of %d", ErrInstructionIndex, i, len(s.ixs))
	}
	return s.ixs[i], nil
}
