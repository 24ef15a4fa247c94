package fees

import (
	"fmt"

	"github.com/speedrun-hq/speedrun-settler/pkg/bpsmath"
	"github.com/speedrun-hq/speedrun-settler/pkg/models"
)

// ErrInsufficientOutput is returned when the combined fees would exceed
// the quote output amount. The engine fails closed here on purpose:
// clamping fees to zero would silently mis-price the solver.
var ErrInsufficientOutput = fmt.Errorf("total fees exceed output amount")

// highFeeRateBps is the combined fee rate, in basis points of the output
// amount, at or above which a breakdown is flagged for operator review.
const highFeeRateBps = 1_000 // 10%

// Calculate computes the protocol/solver/tip fee split and net payout for
// a confirmed quote. protocolFeeBps is the rate frozen on the intent at
// creation time.
func Calculate(outputAmount uint64, protocolFeeBps uint32, quote models.Quote) (models.FeeBreakdown, error) {
	protocolFee, err := bpsmath.CalculateBps(outputAmount, protocolFeeBps)
	if err != nil {
		return models.FeeBreakdown{}, fmt.Errorf("protocol fee: %v", err)
	}

	totalFees, err := bpsmath.CheckedAdd(protocolFee, quote.Fee)
	if err != nil {
		return models.FeeBreakdown{}, fmt.Errorf("fee total: %v", err)
	}
	totalFees, err = bpsmath.CheckedAdd(totalFees, quote.Tip)
	if err != nil {
		return models.FeeBreakdown{}, fmt.Errorf("fee total: %v", err)
	}

	if totalFees > outputAmount {
		return models.FeeBreakdown{}, fmt.Errorf("%w: fees %d, output %d",
			ErrInsufficientOutput, totalFees, outputAmount)
	}

	// Safe by the check above
	netOutput := outputAmount - totalFees

	breakdown := models.FeeBreakdown{
		ProtocolFee: protocolFee,
		SolverFee:   quote.Fee,
		SolverTip:   quote.Tip,
		TotalFees:   totalFees,
		NetOutput:   netOutput,
	}

	// Advisory only: a high combined rate is legal but worth alerting on
	threshold, err := bpsmath.CalculateBps(outputAmount, highFeeRateBps)
	if err == nil && outputAmount > 0 && totalFees >= threshold && threshold > 0 {
		breakdown.HighFeeRate = true
	}
	return breakdown, nil
}
