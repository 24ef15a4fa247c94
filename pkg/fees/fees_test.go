package fees

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speedrun-hq/speedrun-settler/pkg/models"
)

func TestCalculate(t *testing.T) {
	tests := []struct {
		name        string
		output      uint64
		bps         uint32
		quote       models.Quote
		expected    models.FeeBreakdown
		isErr       bool
	}{
		{
			name:   "reference breakdown",
			output: 950_000,
			bps:    30,
			quote:  models.Quote{Fee: 40_000, Tip: 10_000},
			expected: models.FeeBreakdown{
				ProtocolFee: 2_850,
				SolverFee:   40_000,
				SolverTip:   10_000,
				TotalFees:   52_850,
				NetOutput:   897_150,
			},
		},
		{
			name:   "no solver fees",
			output: 1_000_000,
			bps:    30,
			quote:  models.Quote{},
			expected: models.FeeBreakdown{
				ProtocolFee: 3_000,
				TotalFees:   3_000,
				NetOutput:   997_000,
			},
		},
		{
			name:   "fees equal output is allowed",
			output: 100,
			bps:    0,
			quote:  models.Quote{Fee: 60, Tip: 40},
			expected: models.FeeBreakdown{
				SolverFee:   60,
				SolverTip:   40,
				TotalFees:   100,
				NetOutput:   0,
				HighFeeRate: true,
			},
		},
		{
			name:   "fees exceed output fails closed",
			output: 100,
			bps:    30,
			quote:  models.Quote{Fee: 90, Tip: 20},
			isErr:  true,
		},
		{
			name:   "solver fee alone exceeds output",
			output: 1_000,
			bps:    0,
			quote:  models.Quote{Fee: 1_001},
			isErr:  true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			breakdown, err := Calculate(tc.output, tc.bps, tc.quote)
			if tc.isErr {
				assert.ErrorIs(t, err, ErrInsufficientOutput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, breakdown)
		})
	}
}

// Calculate must never return a breakdown with TotalFees > output; it
// returns an error instead.
func TestCalculateNeverExceedsOutput(t *testing.T) {
	outputs := []uint64{0, 1, 99, 10_000, 950_000}
	quotes := []models.Quote{
		{},
		{Fee: 1},
		{Fee: 50_000, Tip: 10_000},
		{Fee: 1_000_000},
	}

	for _, output := range outputs {
		for _, quote := range quotes {
			breakdown, err := Calculate(output, 30, quote)
			if err != nil {
				assert.ErrorIs(t, err, ErrInsufficientOutput)
				continue
			}
			assert.LessOrEqual(t, breakdown.TotalFees, output)
			assert.Equal(t, output-breakdown.TotalFees, breakdown.NetOutput)
		}
	}
}

func TestHighFeeRateFlag(t *testing.T) {
	// 9.99% combined: not flagged
	breakdown, err := Calculate(1_000_000, 0, models.Quote{Fee: 99_900})
	require.NoError(t, err)
	assert.False(t, breakdown.HighFeeRate)

	// Exactly 10% combined: flagged
	breakdown, err = Calculate(1_000_000, 0, models.Quote{Fee: 100_000})
	require.NoError(t, err)
	assert.True(t, breakdown.HighFeeRate)
}
