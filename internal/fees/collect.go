// Package fees moves service fees from a payer into a service vault.
package fees

import (
	"math/bits"

	"github.com/0gfoundation/0g-nonce-gate/internal/address"
	"github.com/0gfoundation/0g-nonce-gate/internal/gateerr"
	"github.com/0gfoundation/0g-nonce-gate/internal/runtime"
	"github.com/0gfoundation/0g-nonce-gate/internal/system"
)

// Collect transfers fee from payer to vault. A zero fee performs no
// transfer at all, so payer need not hold any balance.
func Collect(ctx *runtime.Context, payer, vault address.Address, fee uint32) error {
	if fee == 0 {
		return nil
	}
	ctx.Logf("collect fee %d from %s", fee, payer)
	return system.Transfer(ctx, payer, vault, uint64(fee))
}

// CollectPer charges fee once for each of count units, in one transfer.
func CollectPer(ctx *runtime.Context, payer, vault address.Address, fee uint32, count int) error {
	if fee == 0 || count <= 0 {
		return nil
	}
	hi, total := bits.Mul64(uint64(fee), uint64(count))
	if hi != 0 {
		return gateerr.ErrOverflow
	}
	ctx.Logf("collect fee %d x %d from %s", fee, count, payer)
	return system.Transfer(ctx, payer, vault, total)
}
