package processor

import (
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/0gfoundation/0g-nonce-gate/internal/runtime"
)

// Redis keys.
const (
	QueueKey     = "bundle:queue"
	DLQKey       = "bundle:dlq"
	ResultKeyFmt = "bundle:result:%s"
)

// StatusQueued marks a bundle that has not been executed yet.
const StatusQueued = "QUEUED"

// Envelope is a queued bundle.
type Envelope struct {
	ID          string        `json:"id"`
	Bundle      hexutil.Bytes `json:"bundle"`
	SubmittedAt int64         `json:"submitted_at"`
}

// Result is the recorded outcome of a bundle.
type Result struct {
	ID          string           `json:"id"`
	Status      string           `json:"status"`
	Error       string           `json:"error,omitempty"`
	Receipt     *runtime.Receipt `json:"receipt,omitempty"`
	SubmittedAt int64            `json:"submitted_at"`
	ProcessedAt int64            `json:"processed_at,omitempty"`
}
