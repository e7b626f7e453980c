// Package grid implements the pure grid-level math (C3), the grid
// order lifecycle state machine (C5) and the trailing bounds manager
// (C9).
package grid

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"gridkernel/internal/core"
)

var epsilon = decimal.NewFromFloat(0.01)

// ArithmeticLevels returns n equally additive-spaced prices between
// lower and upper inclusive; level 0 is lower, level n-1 is upper.
func ArithmeticLevels(upper, lower decimal.Decimal, n int) ([]decimal.Decimal, error) {
	if n < 2 {
		return nil, fmt.Errorf("grid: %w: levels must be >= 2, got %d", core.ErrInvalidConfig, n)
	}
	if !upper.GreaterThan(lower) {
		return nil, fmt.Errorf("grid: %w: upper must be greater than lower", core.ErrInvalidConfig)
	}

	step := upper.Sub(lower).Div(decimal.NewFromInt(int64(n - 1)))
	levels := make([]decimal.Decimal, n)
	for i := 0; i < n; i++ {
		levels[i] = lower.Add(step.Mul(decimal.NewFromInt(int64(i))))
	}
	return levels, nil
}

// GeometricLevels returns n equally multiplicative-ratio-spaced
// prices between lower and upper inclusive.
func GeometricLevels(upper, lower decimal.Decimal, n int) ([]decimal.Decimal, error) {
	if n < 2 {
		return nil, fmt.Errorf("grid: %w: levels must be >= 2, got %d", core.ErrInvalidConfig, n)
	}
	if !upper.GreaterThan(lower) {
		return nil, fmt.Errorf("grid: %w: upper must be greater than lower", core.ErrInvalidConfig)
	}
	if !lower.GreaterThan(decimal.Zero) {
		return nil, fmt.Errorf("grid: %w: lower must be positive for geometric spacing", core.ErrInvalidConfig)
	}

	ratioFloat, _ := upper.Div(lower).Float64()
	exp := 1.0 / float64(n-1)
	stepRatio := decimal.NewFromFloat(math.Pow(ratioFloat, exp))

	levels := make([]decimal.Decimal, n)
	cur := lower
	levels[0] = lower
	for i := 1; i < n-1; i++ {
		cur = cur.Mul(stepRatio)
		levels[i] = cur
	}
	levels[n-1] = upper
	return levels, nil
}

// Levels returns the level prices for the given spacing.
func Levels(spacing core.Spacing, upper, lower decimal.Decimal, n int) ([]decimal.Decimal, error) {
	switch spacing {
	case core.SpacingGeometric:
		return GeometricLevels(upper, lower, n)
	default:
		return ArithmeticLevels(upper, lower, n)
	}
}

// ATR computes the standard true-range mean over the last period bars.
// TR_i = max(high_i - low_i, |high_i - prevClose|, |low_i - prevClose|).
func ATR(highs, lows, closes []decimal.Decimal, period int) decimal.Decimal {
	n := len(highs)
	if n == 0 || len(lows) != n || len(closes) != n || period <= 0 {
		return decimal.Zero
	}

	start := n - period
	if start < 1 {
		start = 1
	}
	if start >= n {
		return decimal.Zero
	}

	var sum decimal.Decimal
	count := 0
	for i := start; i < n; i++ {
		high := highs[i]
		low := lows[i]
		prevClose := closes[i-1]

		tr := high.Sub(low)
		tr2 := high.Sub(prevClose).Abs()
		if tr2.GreaterThan(tr) {
			tr = tr2
		}
		tr3 := low.Sub(prevClose).Abs()
		if tr3.GreaterThan(tr) {
			tr = tr3
		}
		sum = sum.Add(tr)
		count++
	}
	if count == 0 {
		return decimal.Zero
	}
	return sum.Div(decimal.NewFromInt(int64(count)))
}

// AdjustBoundsByATR derives upper/lower bounds centered on price by
// +/- atr*multiplier. The lower bound is clamped to a small positive
// epsilon.
func AdjustBoundsByATR(price, atr, multiplier decimal.Decimal) (upper, lower decimal.Decimal) {
	delta := atr.Mul(multiplier)
	upper = price.Add(delta)
	lower = price.Sub(delta)
	if lower.LessThanOrEqual(decimal.Zero) {
		lower = epsilon
	}
	return upper, lower
}

// GridOrders classifies each level price against currentPrice: levels
// strictly below become buys, strictly above become sells, and a
// level exactly at currentPrice is skipped. amount is denominated in
// quote currency and converted to base using the level's own price.
func GridOrders(levels []decimal.Decimal, currentPrice, amount decimal.Decimal) []core.GridLevel {
	out := make([]core.GridLevel, 0, len(levels))
	for idx, price := range levels {
		switch {
		case price.LessThan(currentPrice):
			out = append(out, core.GridLevel{
				Index:  idx,
				Price:  price,
				Amount: quoteToBase(amount, price),
				Side:   core.Buy,
			})
		case price.GreaterThan(currentPrice):
			out = append(out, core.GridLevel{
				Index:  idx,
				Price:  price,
				Amount: quoteToBase(amount, price),
				Side:   core.Sell,
			})
		}
		// price == currentPrice: tie, skip the level.
	}
	return out
}

func quoteToBase(quoteAmount, price decimal.Decimal) decimal.Decimal {
	if price.IsZero() {
		return decimal.Zero
	}
	return quoteAmount.Div(price).Round(8)
}
