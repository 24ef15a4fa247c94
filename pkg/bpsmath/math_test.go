package bpsmath

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckedAdd(t *testing.T) {
	tests := []struct {
		name     string
		a        uint64
		b        uint64
		expected uint64
		isErr    bool
	}{
		{name: "simple", a: 1, b: 2, expected: 3},
		{name: "zero", a: 0, b: 0, expected: 0},
		{name: "max plus zero", a: math.MaxUint64, b: 0, expected: math.MaxUint64},
		{name: "overflow", a: math.MaxUint64, b: 1, isErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := CheckedAdd(tc.a, tc.b)
			if tc.isErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, result)
		})
	}
}

func TestCheckedSub(t *testing.T) {
	tests := []struct {
		name     string
		a        uint64
		b        uint64
		expected uint64
		isErr    bool
	}{
		{name: "simple", a: 5, b: 3, expected: 2},
		{name: "to zero", a: 5, b: 5, expected: 0},
		{name: "underflow", a: 3, b: 5, isErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := CheckedSub(tc.a, tc.b)
			if tc.isErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, result)
		})
	}
}

func TestCheckedMul(t *testing.T) {
	tests := []struct {
		name     string
		a        uint64
		b        uint64
		expected uint64
		isErr    bool
	}{
		{name: "simple", a: 6, b: 7, expected: 42},
		{name: "zero factor", a: 0, b: math.MaxUint64, expected: 0},
		{name: "max times one", a: math.MaxUint64, b: 1, expected: math.MaxUint64},
		{name: "overflow", a: math.MaxUint64, b: 2, isErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := CheckedMul(tc.a, tc.b)
			if tc.isErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, result)
		})
	}
}

func TestCalculateBps(t *testing.T) {
	tests := []struct {
		name     string
		amount   uint64
		bps      uint32
		expected uint64
		isErr    bool
	}{
		{name: "30 bps of 950k", amount: 950_000, bps: 30, expected: 2_850},
		{name: "zero amount", amount: 0, bps: 30, expected: 0},
		{name: "zero bps", amount: 1_000_000, bps: 0, expected: 0},
		{name: "full amount", amount: 1_000_000, bps: 10_000, expected: 1_000_000},
		{name: "floors fractional fee", amount: 999, bps: 10, expected: 0},
		{name: "large amount no overflow", amount: math.MaxUint64, bps: 1, expected: math.MaxUint64 / 10_000},
		{name: "bps above denominator", amount: 100, bps: 10_001, isErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := CalculateBps(tc.amount, tc.bps)
			if tc.isErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, result)
		})
	}
}
