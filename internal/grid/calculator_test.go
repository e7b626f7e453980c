package grid

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridkernel/internal/core"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestArithmeticLevels_EndpointsAndStep(t *testing.T) {
	levels, err := ArithmeticLevels(dec("102"), dec("98"), 5)
	require.NoError(t, err)
	require.Len(t, levels, 5)
	assert.True(t, levels[0].Equal(dec("98")))
	assert.True(t, levels[4].Equal(dec("102")))
	assert.True(t, levels[1].Equal(dec("99")))
}

func TestArithmeticLevels_RejectsTooFewLevels(t *testing.T) {
	_, err := ArithmeticLevels(dec("102"), dec("98"), 1)
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
}

func TestArithmeticLevels_RejectsReversedBounds(t *testing.T) {
	_, err := ArithmeticLevels(dec("98"), dec("102"), 5)
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
}

func TestGeometricLevels_Endpoints(t *testing.T) {
	levels, err := GeometricLevels(dec("200"), dec("100"), 3)
	require.NoError(t, err)
	assert.True(t, levels[0].Equal(dec("100")))
	assert.True(t, levels[2].Equal(dec("200")))
	// middle level should be the geometric mean, ~141.42
	mid, _ := levels[1].Float64()
	assert.InDelta(t, 141.42, mid, 0.1)
}

func TestATR_StandardTrueRange(t *testing.T) {
	highs := []decimal.Decimal{dec("105"), dec("110"), dec("105")}
	lows := []decimal.Decimal{dec("95"), dec("100"), dec("95")}
	closes := []decimal.Decimal{dec("100"), dec("105"), dec("100")}

	atr := ATR(highs, lows, closes, 3)
	assert.True(t, atr.Equal(dec("10")))
}

func TestAdjustBoundsByATR_ClampsLowerToEpsilon(t *testing.T) {
	upper, lower := AdjustBoundsByATR(dec("1"), dec("5"), dec("1"))
	assert.True(t, upper.Equal(dec("6")))
	assert.True(t, lower.Equal(epsilon))
}

func TestGridOrders_BoundaryNumLevelsTwo(t *testing.T) {
	levels, err := ArithmeticLevels(dec("110"), dec("90"), 2)
	require.NoError(t, err)

	orders := GridOrders(levels, dec("100"), dec("1000"))
	// both endpoints are strictly below/above 100: one buy, one sell.
	require.Len(t, orders, 2)
	sides := map[core.OrderSide]int{}
	for _, o := range orders {
		sides[o.Side]++
	}
	assert.Equal(t, 1, sides[core.Buy])
	assert.Equal(t, 1, sides[core.Sell])
}

func TestGridOrders_SkipsLevelAtCurrentPrice(t *testing.T) {
	levels := []decimal.Decimal{dec("90"), dec("100"), dec("110")}
	orders := GridOrders(levels, dec("100"), dec("1000"))
	require.Len(t, orders, 2)
	for _, o := range orders {
		assert.False(t, o.Price.Equal(dec("100")))
	}
}
