package verification

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfirmations(t *testing.T) {
	tests := []struct {
		name     string
		current  uint64
		proof    uint64
		expected uint64
	}{
		{name: "same block", current: 100, proof: 100, expected: 1},
		{name: "ten deep", current: 109, proof: 100, expected: 10},
		{name: "tip behind proof", current: 99, proof: 100, expected: 0},
		{name: "genesis proof", current: 5, proof: 0, expected: 6},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Confirmations(tc.current, tc.proof))
		})
	}
}

func TestResultConstructors(t *testing.T) {
	s := Success(1_000, "0xabc", 12)
	assert.Equal(t, OutcomeSuccess, s.Outcome)
	assert.Equal(t, uint64(1_000), s.Amount)
	assert.Equal(t, "0xabc", s.Reference)

	p := Pending(3, 12)
	assert.Equal(t, OutcomePending, p.Outcome)
	assert.Equal(t, uint64(3), p.Confirmations)
	assert.Equal(t, uint64(12), p.Required)

	f := Failed("wrong recipient")
	assert.Equal(t, OutcomeFailed, f.Outcome)
	assert.Equal(t, "wrong recipient", f.Reason)
}
