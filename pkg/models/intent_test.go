package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    IntentStatus
		to      IntentStatus
		allowed bool
	}{
		{name: "pending to quoted", from: StatusPendingQuote, to: StatusQuoted, allowed: true},
		{name: "quoted to confirmed", from: StatusQuoted, to: StatusConfirmed, allowed: true},
		{name: "confirmed to deposited", from: StatusConfirmed, to: StatusDeposited, allowed: true},
		{name: "deposited to fulfilled", from: StatusDeposited, to: StatusFulfilled, allowed: true},
		{name: "pending to cancelled", from: StatusPendingQuote, to: StatusCancelled, allowed: true},
		{name: "deposited to expired", from: StatusDeposited, to: StatusExpired, allowed: true},
		{name: "skip quoted", from: StatusPendingQuote, to: StatusConfirmed, allowed: false},
		{name: "skip confirmed", from: StatusQuoted, to: StatusDeposited, allowed: false},
		{name: "backwards", from: StatusConfirmed, to: StatusQuoted, allowed: false},
		{name: "pending to fulfilled", from: StatusPendingQuote, to: StatusFulfilled, allowed: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.allowed, tc.from.CanTransitionTo(tc.to))
		})
	}
}

// Terminal states must reject every outbound transition, including to
// other terminal states.
func TestTerminalStatesHaveNoOutboundEdges(t *testing.T) {
	terminals := []IntentStatus{StatusFulfilled, StatusCancelled, StatusExpired}
	all := []IntentStatus{
		StatusPendingQuote, StatusQuoted, StatusConfirmed, StatusDeposited,
		StatusFulfilled, StatusCancelled, StatusExpired,
	}

	for _, from := range terminals {
		assert.True(t, from.IsTerminal())
		for _, to := range all {
			assert.False(t, from.CanTransitionTo(to),
				"transition %s -> %s should be rejected", from, to)
		}
	}
}

func TestIntentClone(t *testing.T) {
	now := time.Now()
	intent := &Intent{
		ID:     1,
		Owner:  "alice",
		Status: StatusQuoted,
		Quotes: []Quote{
			{Solver: "solver-1", OutputAmount: 950_000, SubmittedAt: now},
		},
	}

	clone := intent.Clone()
	require.Equal(t, intent, clone)

	// Mutating the clone must not leak back into the original
	clone.Quotes[0].OutputAmount = 1
	clone.Status = StatusCancelled
	assert.Equal(t, uint64(950_000), intent.Quotes[0].OutputAmount)
	assert.Equal(t, StatusQuoted, intent.Status)
}

func TestQuoteBySolver(t *testing.T) {
	intent := &Intent{
		Quotes: []Quote{
			{Solver: "solver-1", OutputAmount: 900_000},
			{Solver: "solver-2", OutputAmount: 920_000},
			{Solver: "solver-1", OutputAmount: 940_000},
		},
	}

	q := intent.QuoteBySolver("solver-1")
	require.NotNil(t, q)
	assert.Equal(t, uint64(940_000), q.OutputAmount, "latest quote wins")

	assert.Nil(t, intent.QuoteBySolver("solver-3"))
}
