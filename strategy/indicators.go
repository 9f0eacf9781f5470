package strategy

import (
	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// INDICATORS - window statistics over recent closes
// ═══════════════════════════════════════════════════════════════════════════════

// SMA returns the mean of the last period values, or zero if too few
func SMA(values []decimal.Decimal, period int) decimal.Decimal {
	if period <= 0 || len(values) < period {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, v := range values[len(values)-period:] {
		sum = sum.Add(v)
	}
	return sum.Div(decimal.NewFromInt(int64(period)))
}

// StdDev returns the population standard deviation of the last period values
func StdDev(values []decimal.Decimal, period int) decimal.Decimal {
	if period < 2 || len(values) < period {
		return decimal.Zero
	}
	mean := SMA(values, period)
	variance := decimal.Zero
	for _, v := range values[len(values)-period:] {
		diff := v.Sub(mean)
		variance = variance.Add(diff.Mul(diff))
	}
	variance = variance.Div(decimal.NewFromInt(int64(period)))
	return sqrt(variance)
}

// Highest returns the maximum of values
func Highest(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	return decimal.Max(values[0], values[1:]...)
}

// Lowest returns the minimum of values
func Lowest(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	return decimal.Min(values[0], values[1:]...)
}

// sqrt calculates square root using Newton's method
func sqrt(d decimal.Decimal) decimal.Decimal {
	if d.IsZero() || d.IsNegative() {
		return decimal.Zero
	}

	x := d
	for i := 0; i < 20; i++ {
		// x = (x + d/x) / 2
		x = x.Add(d.Div(x)).Div(decimal.NewFromInt(2))
	}
	return x
}
