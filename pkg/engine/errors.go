package engine

import (
	"errors"

	"github.com/speedrun-hq/speedrun-settler/pkg/escrow"
)

// Error taxonomy for the settlement operations. Callers match with
// errors.Is; messages wrapped around these sentinels carry the detail.
var (
	// ErrNotFound means the intent id is unknown
	ErrNotFound = errors.New("intent not found")
	// ErrUnauthorized means the caller is not the intent owner
	ErrUnauthorized = errors.New("caller is not the intent owner")
	// ErrInvalidInput covers malformed identities and addresses
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidAmount covers zero or out-of-range amounts
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrInvalidDeadline covers past or implausibly distant deadlines
	ErrInvalidDeadline = errors.New("invalid deadline")
	// ErrChainNotSupported means no registry entry matched
	ErrChainNotSupported = errors.New("chain not supported")
	// ErrInvalidQuote covers quotes failing acceptance rules
	ErrInvalidQuote = errors.New("invalid quote")
	// ErrExpired means the intent deadline has passed
	ErrExpired = errors.New("intent expired")
	// ErrInvalidStatus means an illegal lifecycle transition was attempted
	ErrInvalidStatus = errors.New("invalid status for operation")
	// ErrInsufficientBalance is an escrow accounting shortfall; aliased
	// so callers can match without importing the escrow package
	ErrInsufficientBalance = escrow.ErrInsufficientBalance
	// ErrInvalidFee means fees would exceed the quote output
	ErrInvalidFee = errors.New("invalid fee")
	// ErrRateLimitExceeded means a capacity ceiling was hit
	ErrRateLimitExceeded = errors.New("intent capacity exceeded")
	// ErrVerificationFailed means the deposit proof was conclusively rejected
	ErrVerificationFailed = errors.New("deposit verification failed")
	// ErrTransferFailed means a payout or refund transfer did not complete
	ErrTransferFailed = errors.New("transfer failed")
	// ErrInternal is an unexpected collaborator failure
	ErrInternal = errors.New("internal error")
)
