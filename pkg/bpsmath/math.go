package bpsmath

import (
	"fmt"
	"math"
)

// BpsDenominator is the number of basis points in 100%.
const BpsDenominator = 10_000

// CheckedAdd returns a+b or an error when the sum would overflow uint64.
func CheckedAdd(a, b uint64) (uint64, error) {
	if a > math.MaxUint64-b {
		return 0, fmt.Errorf("addition overflow: %d + %d", a, b)
	}
	return a + b, nil
}

// CheckedSub returns a-b or an error when b exceeds a.
func CheckedSub(a, b uint64) (uint64, error) {
	if b > a {
		return 0, fmt.Errorf("subtraction underflow: %d - %d", a, b)
	}
	return a - b, nil
}

// CheckedMul returns a*b or an error when the product would overflow uint64.
func CheckedMul(a, b uint64) (uint64, error) {
	if a != 0 && b > math.MaxUint64/a {
		return 0, fmt.Errorf("multiplication overflow: %d * %d", a, b)
	}
	return a * b, nil
}

// CalculateBps computes floor(amount * bps / 10_000) without intermediate
// overflow. Splitting the amount into quotient and remainder keeps every
// partial product within uint64 for any bps up to the denominator.
func CalculateBps(amount uint64, bps uint32) (uint64, error) {
	if bps > BpsDenominator {
		return 0, fmt.Errorf("invalid basis points: %d exceeds %d", bps, BpsDenominator)
	}
	q := amount / BpsDenominator
	r := amount % BpsDenominator

	high, err := CheckedMul(q, uint64(bps))
	if err != nil {
		return 0, err
	}
	low := r * uint64(bps) / BpsDenominator
	return CheckedAdd(high, low)
}
