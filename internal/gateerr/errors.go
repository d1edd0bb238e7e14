// Package gateerr holds the error kinds shared by the on-ledger programs and
// the status codes the service reports for executed bundles.
package gateerr

import "errors"

// Protocol errors.
var (
	ErrAlreadyInitialized          = errors.New("noncegate: already initialized")
	ErrAlreadyExists               = errors.New("noncegate: already exists")
	ErrAdminSignatureRequired      = errors.New("noncegate: admin signature required")
	ErrNonceMismatch               = errors.New("noncegate: nonce mismatch")
	ErrMissingCompanionInstruction = errors.New("noncegate: missing companion instruction")
	ErrInvalidCompanionInstruction = errors.New("noncegate: invalid companion instruction")
	ErrSignatureVerificationFailed = errors.New("noncegate: signature verification failed")
	ErrInsufficientFunds           = errors.New("noncegate: insufficient funds")
)

// Environment errors raised by the runtime and the support programs.
var (
	ErrUnauthorized       = errors.New("noncegate: unauthorized")
	ErrMissingSignature   = errors.New("noncegate: missing required signature")
	ErrInvalidAccount     = errors.New("noncegate: invalid account")
	ErrAccountNotWritable = errors.New("noncegate: account not writable")
	ErrIllegalOwner       = errors.New("noncegate: illegal owner")
	ErrNonceExhausted     = errors.New("noncegate: nonce exhausted")
	ErrMintDisabled       = errors.New("noncegate: mint authority disabled")
	ErrOverflow           = errors.New("noncegate: arithmetic overflow")
	ErrUnknownProgram     = errors.New("noncegate: unknown program")
	ErrInvalidInstruction = errors.New("noncegate: invalid instruction data")
	ErrNotInitialized     = errors.New("noncegate: account not initialized")
)
