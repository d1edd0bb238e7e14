package gateerr

import "errors"

// Status is the outcome recorded for an executed bundle.
type Status uint8

const (
	StatusSuccess Status = iota
	StatusAlreadyInitialized
	StatusAlreadyExists
	StatusAdminSignatureRequired
	StatusNonceMismatch
	StatusMissingCompanion
	StatusInvalidCompanion
	StatusSignatureFailed
	StatusInsufficientFunds
	StatusUnauthorized
	StatusInvalidAccount
	StatusRejected
	StatusInternal
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusAlreadyInitialized:
		return "ALREADY_INITIALIZED"
	case StatusAlreadyExists:
		return "ALREADY_EXISTS"
	case StatusAdminSignatureRequired:
		return "ADMIN_SIGNATURE_REQUIRED"
	case StatusNonceMismatch:
		return "NONCE_MISMATCH"
	case StatusMissingCompanion:
		return "MISSING_COMPANION_INSTRUCTION"
	case StatusInvalidCompanion:
		return "INVALID_COMPANION_INSTRUCTION"
	case StatusSignatureFailed:
		return "SIGNATURE_VERIFICATION_FAILED"
	case StatusInsufficientFunds:
		return "INSUFFICIENT_FUNDS"
	case StatusUnauthorized:
		return "UNAUTHORIZED"
	case StatusInvalidAccount:
		return "INVALID_ACCOUNT"
	case StatusRejected:
		return "REJECTED"
	case StatusInternal:
		return "INTERNAL"
	default:
		return "UNKNOWN"
	}
}

var statusOf = []struct {
	err    error
	status Status
}{
	{ErrAlreadyInitialized, StatusAlreadyInitialized},
	{ErrAlreadyExists, StatusAlreadyExists},
	{ErrAdminSignatureRequired, StatusAdminSignatureRequired},
	{ErrNonceMismatch, StatusNonceMismatch},
	{ErrMissingCompanionInstruction, StatusMissingCompanion},
	{ErrInvalidCompanionInstruction, StatusInvalidCompanion},
	{ErrSignatureVerificationFailed, StatusSignatureFailed},
	{ErrInsufficientFunds, StatusInsufficientFunds},
	{ErrUnauthorized, StatusUnauthorized},
	{ErrMissingSignature, StatusUnauthorized},
	{ErrInvalidAccount, StatusInvalidAccount},
	{ErrAccountNotWritable, StatusInvalidAccount},
	{ErrIllegalOwner, StatusInvalidAccount},
	{ErrNotInitialized, StatusInvalidAccount},
	{ErrNonceExhausted, StatusRejected},
	{ErrMintDisabled, StatusRejected},
	{ErrOverflow, StatusRejected},
	{ErrUnknownProgram, StatusRejected},
	{ErrInvalidInstruction, StatusRejected},
}

// StatusOf classifies err. A nil error is StatusSuccess; anything outside
// the known kinds is StatusInternal.
func StatusOf(err error) Status {
	if err == nil {
		return StatusSuccess
	}
	for _, m := range statusOf {
		if errors.Is(err, m.err) {
			return m.status
		}
	}
	return StatusInternal
}

// Rejected reports whether err is a protocol outcome rather than an
// infrastructure failure. Rejected bundles are final and never retried.
func Rejected(err error) bool {
	s := StatusOf(err)
	return s != StatusSuccess && s != StatusInternal
}
