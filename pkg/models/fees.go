package models

// FeeBreakdown is the fee split computed for a confirmed quote at
// fulfillment time. TotalFees never exceeds the quote output amount;
// the fee engine fails closed instead of clamping.
type FeeBreakdown struct {
	ProtocolFee uint64 `json:"protocol_fee"`
	SolverFee   uint64 `json:"solver_fee"`
	SolverTip   uint64 `json:"solver_tip"`
	TotalFees   uint64 `json:"total_fees"`
	NetOutput   uint64 `json:"net_output"`

	// HighFeeRate flags combined fees at or above 10% of output. It is
	// advisory only: the breakdown is still valid, the flag exists for
	// operator alerting.
	HighFeeRate bool `json:"high_fee_rate,omitempty"`
}
