package distribute

import (
	"github.com/0gfoundation/0g-nonce-gate/internal/address"
	"github.com/0gfoundation/0g-nonce-gate/internal/bundle"
	"github.com/0gfoundation/0g-nonce-gate/internal/codec"
	"github.com/0gfoundation/0g-nonce-gate/internal/token"
)

func instruction(tag codec.Discriminator, args any, metas ...bundle.AccountMeta) bundle.Instruction {
	data := tag[:]
	if args != nil {
		var err error
		if data, err = codec.Encode(tag, args); err != nil {
			panic(err)
		}
	}
	return bundle.Instruction{Program: ID, Accounts: metas, Data: data}
}

// InitManagerInstruction creates the manager. It succeeds once; admin must
// sign.
func InitManagerInstruction(payer, admin address.Address, userFee uint32) bundle.Instruction {
	return instruction(initManagerTag, InitManagerArgs{UserFee: userFee},
		bundle.WritableSigner(payer),
		bundle.Signer(admin),
		bundle.Writable(ManagerAddress().Address),
		bundle.Writable(FeeReceiverAddress().Address),
	)
}

func UpdateManagerInstruction(admin address.Address, newAdmin *address.Address, newUserFee *uint32) bundle.Instruction {
	return instruction(updateManagerTag, UpdateManagerArgs{NewAdmin: newAdmin, NewUserFee: newUserFee},
		bundle.Signer(admin),
		bundle.Writable(ManagerAddress().Address),
	)
}

// ClaimFeeInstruction withdraws amount of collected fees to receiver.
func ClaimFeeInstruction(admin, receiver address.Address, amount uint64) bundle.Instruction {
	return instruction(claimFeeTag, ClaimFeeArgs{Amount: amount},
		bundle.Signer(admin),
		bundle.Readonly(ManagerAddress().Address),
		bundle.Writable(FeeReceiverAddress().Address),
		bundle.Writable(receiver),
	)
}

// InitProjectInstruction creates a project at the fresh key project, which
// must sign.
func InitProjectInstruction(payer, admin, project address.Address) bundle.Instruction {
	return instruction(initProjectTag, nil,
		bundle.WritableSigner(payer),
		bundle.Readonly(admin),
		bundle.WritableSigner(project),
	)
}

func UpdateProjectInstruction(admin, project, newAdmin address.Address) bundle.Instruction {
	return instruction(updateProjectTag, UpdateProjectArgs{NewAdmin: newAdmin},
		bundle.Signer(admin),
		bundle.Writable(project),
	)
}

func TransferMintAuthorityInstruction(admin, project, mint address.Address, next *address.Address) bundle.Instruction {
	return instruction(transferMintAuthorityTag, TransferMintAuthorityArgs{NewAuthority: next},
		bundle.Signer(admin),
		bundle.Readonly(project),
		bundle.Writable(mint),
		bundle.Readonly(MintAuthority(project, mint).Address),
	)
}

// Receiver is one entry of a batch.
type Receiver struct {
	Owner  address.Address
	Amount uint64
}

// AirdropInstruction mints to every receiver in one instruction. payer
// covers the per-receiver fee and any token accounts it creates.
func AirdropInstruction(payer, admin, project, mint address.Address, receivers []Receiver) bundle.Instruction {
	metas := []bundle.AccountMeta{
		bundle.WritableSigner(payer),
		bundle.Readonly(ManagerAddress().Address),
		bundle.Writable(FeeReceiverAddress().Address),
		bundle.Signer(admin),
		bundle.Readonly(project),
		bundle.Writable(mint),
		bundle.Readonly(MintAuthority(project, mint).Address),
	}
	amounts := make([]uint64, len(receivers))
	for i, r := range receivers {
		amounts[i] = r.Amount
		metas = append(metas,
			bundle.Readonly(r.Owner),
			bundle.Writable(token.AssociatedAddress(r.Owner, mint).Address),
		)
	}
	return instruction(airdropTag, AirdropArgs{Amounts: amounts}, metas...)
}
