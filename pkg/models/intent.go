package models

import (
	"fmt"
	"time"
)

// IntentStatus represents the lifecycle state of an intent
type IntentStatus uint8

const (
	// StatusPendingQuote is the initial state, waiting for solver quotes
	StatusPendingQuote IntentStatus = iota
	// StatusQuoted means at least one quote has been accepted
	StatusQuoted
	// StatusConfirmed means the owner selected a quote
	StatusConfirmed
	// StatusDeposited means the source deposit was verified and escrowed
	StatusDeposited
	// StatusFulfilled is terminal: payout to the solver succeeded
	StatusFulfilled
	// StatusCancelled is terminal: cancelled by the owner
	StatusCancelled
	// StatusExpired is terminal: deadline passed before fulfillment
	StatusExpired
)

func (s IntentStatus) String() string {
	switch s {
	case StatusPendingQuote:
		return "pending_quote"
	case StatusQuoted:
		return "quoted"
	case StatusConfirmed:
		return "confirmed"
	case StatusDeposited:
		return "deposited"
	case StatusFulfilled:
		return "fulfilled"
	case StatusCancelled:
		return "cancelled"
	case StatusExpired:
		return "expired"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// IsTerminal returns true for states with no outbound transitions
func (s IntentStatus) IsTerminal() bool {
	return s == StatusFulfilled || s == StatusCancelled || s == StatusExpired
}

// CanTransitionTo reports whether moving from s to next is a legal
// lifecycle transition. Cancelled and Expired are reachable from any
// non-terminal state; everything else follows the forward chain.
func (s IntentStatus) CanTransitionTo(next IntentStatus) bool {
	if s.IsTerminal() {
		return false
	}
	switch next {
	case StatusCancelled, StatusExpired:
		return true
	case StatusQuoted:
		return s == StatusPendingQuote
	case StatusConfirmed:
		return s == StatusQuoted
	case StatusDeposited:
		return s == StatusConfirmed
	case StatusFulfilled:
		return s == StatusDeposited
	default:
		return false
	}
}

// ChainAsset identifies an asset on a specific chain
type ChainAsset struct {
	Chain   string `json:"chain"`
	ChainID int    `json:"chain_id,omitempty"`
	Asset   string `json:"asset"`
	Network string `json:"network,omitempty"`
}

// Quote represents a solver's offer to fulfill an intent
type Quote struct {
	Solver       string    `json:"solver"`
	OutputAmount uint64    `json:"output_amount"`
	Fee          uint64    `json:"fee"`
	Tip          uint64    `json:"tip"`
	DestAddress  string    `json:"dest_address,omitempty"`
	Expiry       time.Time `json:"expiry"`
	SubmittedAt  time.Time `json:"submitted_at"`
}

// Intent represents a user's cross-chain swap request and its settlement
// state. Amounts are in base ledger units of the asset they refer to.
type Intent struct {
	ID             uint64       `json:"id"`
	Owner          string       `json:"owner"`
	Source         ChainAsset   `json:"source"`
	Destination    ChainAsset   `json:"destination"`
	SourceAmount   uint64       `json:"source_amount"`
	MinOutput      uint64       `json:"min_output"`
	Recipient      string       `json:"recipient"`
	Deadline       time.Time    `json:"deadline"`
	Status         IntentStatus `json:"status"`
	Quotes         []Quote      `json:"quotes,omitempty"`
	SelectedQuote  *Quote       `json:"selected_quote,omitempty"`
	EscrowBalance  uint64       `json:"escrow_balance"`
	ProtocolFeeBps uint32       `json:"protocol_fee_bps"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
	VerifiedAt     *time.Time   `json:"verified_at,omitempty"`
	DepositAddress string       `json:"deposit_address,omitempty"`
	DepositProof   string       `json:"deposit_proof,omitempty"`
	SettlementRef  string       `json:"settlement_ref,omitempty"`
}

// Clone returns a deep copy so callers cannot mutate engine-owned records
func (i *Intent) Clone() *Intent {
	cp := *i
	if i.Quotes != nil {
		cp.Quotes = make([]Quote, len(i.Quotes))
		copy(cp.Quotes, i.Quotes)
	}
	if i.SelectedQuote != nil {
		sq := *i.SelectedQuote
		cp.SelectedQuote = &sq
	}
	if i.VerifiedAt != nil {
		v := *i.VerifiedAt
		cp.VerifiedAt = &v
	}
	return &cp
}

// QuoteBySolver returns the most recent quote submitted by the given solver
func (i *Intent) QuoteBySolver(solver string) *Quote {
	for idx := len(i.Quotes) - 1; idx >= 0; idx-- {
		if i.Quotes[idx].Solver == solver {
			return &i.Quotes[idx]
		}
	}
	return nil
}
