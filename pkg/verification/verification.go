// Package verification defines the contract chain backends implement to
// report deposit status. A backend classifies every attempt as Success,
// Pending or Failed; the design rule is that any ambiguous or transient
// condition maps to Pending so the caller retries instead of abandoning a
// possibly-valid deposit. Only conclusively inconsistent results map to
// Failed.
package verification

import "context"

// Outcome tags a verification result
type Outcome uint8

const (
	// OutcomePending means the deposit could not be confirmed yet; the
	// caller should retry later. Not an error.
	OutcomePending Outcome = iota
	// OutcomeSuccess means the deposit is confirmed at sufficient depth
	OutcomeSuccess
	// OutcomeFailed means the proof can never become valid
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomePending:
		return "pending"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Request describes the deposit to check: where the funds must have gone,
// how much at minimum, and the chain-specific proof reference.
type Request struct {
	// Recipient is the expected deposit address
	Recipient string
	// Asset is the token contract address for EVM token deposits; empty
	// means the chain's native asset
	Asset string
	// MinAmount is the minimum acceptable deposit, in base ledger units
	MinAmount uint64
	// TxHash is the transaction hash (EVM) or txid (UTXO chains)
	TxHash string
	// OutputIndex selects the output to check on UTXO chains
	OutputIndex uint32
	// RequiredConfirmations is the finality depth for this chain
	RequiredConfirmations uint64
}

// Result is produced fresh per verification attempt and never persisted
// as authoritative state; only a Success outcome causes a transition.
type Result struct {
	Outcome Outcome
	// Amount is the verified deposit amount (Success only)
	Amount uint64
	// Reference is the canonical proof reference (Success only)
	Reference string
	// Confirmations observed so far (Success and Pending)
	Confirmations uint64
	// Required confirmations, surfaced for caller-side backoff (Pending)
	Required uint64
	// Reason explains a Failed outcome
	Reason string
}

// Verifier is implemented by each chain backend
type Verifier interface {
	Verify(ctx context.Context, req Request) Result
}

// Success builds a confirmed result
func Success(amount uint64, reference string, confirmations uint64) Result {
	return Result{
		Outcome:       OutcomeSuccess,
		Amount:        amount,
		Reference:     reference,
		Confirmations: confirmations,
	}
}

// Pending builds a retry-later result carrying the current/required
// confirmation pair.
func Pending(confirmations, required uint64) Result {
	return Result{
		Outcome:       OutcomePending,
		Confirmations: confirmations,
		Required:      required,
	}
}

// Failed builds a conclusive rejection
func Failed(reason string) Result {
	return Result{Outcome: OutcomeFailed, Reason: reason}
}

// Confirmations computes block depth as (current - proofHeight) + 1 when
// the tip is at or past the proof height, else 0.
func Confirmations(currentHeight, proofHeight uint64) uint64 {
	if currentHeight < proofHeight {
		return 0
	}
	return currentHeight - proofHeight + 1
}
