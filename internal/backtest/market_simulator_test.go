package backtest

import (
	"context"
	"testing"
	"time"

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

func TestLimitBuyFillsWhenPriceDropsToLimit(t *testing.T) {
	sim := NewMarketSimulator("BTC", "USDT", dec("10000"), FeeConfig{}, nil)
	sim.SetPrice(dec("100"))

	ack, err := sim.CreateOrder(context.Background(), "BTCUSDT", core.OrderTypeLimit, core.Buy, dec("1"), dec("95"))
	require.NoError(t, err)
	assert.Equal(t, core.OrderOpen, ack.Status)

	sim.SetPrice(dec("96"))
	assert.Empty(t, sim.DrainFills())

	sim.SetPrice(dec("95"))
	fills := sim.DrainFills()
	require.Len(t, fills, 1)
	assert.True(t, fills[0].Price.Equal(dec("95")))
}

func TestLimitSellFillsWhenPriceRisesToLimit(t *testing.T) {
	sim := NewMarketSimulator("BTC", "USDT", dec("10000"), FeeConfig{}, nil)
	sim.SetPrice(dec("100"))

	_, err := sim.CreateOrder(context.Background(), "BTCUSDT", core.OrderTypeLimit, core.Sell, dec("1"), dec("105"))
	require.NoError(t, err)

	sim.SetPrice(dec("104"))
	assert.Empty(t, sim.DrainFills())

	sim.SetPrice(dec("106"))
	fills := sim.DrainFills()
	require.Len(t, fills, 1)
	assert.True(t, fills[0].Price.Equal(dec("105")))
}

func TestCancelOrderIsIdempotent(t *testing.T) {
	sim := NewMarketSimulator("BTC", "USDT", dec("1000"), FeeConfig{}, nil)
	sim.SetPrice(dec("100"))
	ack, _ := sim.CreateOrder(context.Background(), "BTCUSDT", core.OrderTypeLimit, core.Buy, dec("1"), dec("90"))

	require.NoError(t, sim.CancelOrder(context.Background(), "BTCUSDT", ack.ID))
	require.NoError(t, sim.CancelOrder(context.Background(), "BTCUSDT", ack.ID))
	require.NoError(t, sim.CancelOrder(context.Background(), "BTCUSDT", "not-a-real-id"))
}

func TestMarketOrderFillsImmediatelyWithSlippage(t *testing.T) {
	sim := NewMarketSimulator("BTC", "USDT", dec("1000"), FeeConfig{Slippage: dec("0.01"), TakerFee: dec("0.001")}, func() time.Time { return time.Unix(0, 0).UTC() })
	sim.SetPrice(dec("100"))

	ack, err := sim.CreateOrder(context.Background(), "BTCUSDT", core.OrderTypeMarket, core.Buy, dec("1"), decimal.Zero)
	require.NoError(t, err)
	assert.Equal(t, core.OrderFilled, ack.Status)

	fills := sim.DrainFills()
	require.Len(t, fills, 1)
	assert.True(t, fills[0].Price.Equal(dec("101")))
}

func TestPortfolioValueTracksFills(t *testing.T) {
	sim := NewMarketSimulator("BTC", "USDT", dec("1000"), FeeConfig{}, nil)
	sim.SetPrice(dec("100"))
	sim.CreateOrder(context.Background(), "BTCUSDT", core.OrderTypeLimit, core.Buy, dec("1"), dec("100"))
	sim.SetPrice(dec("100"))
	require.Len(t, sim.DrainFills(), 1)

	assert.True(t, sim.GetPortfolioValue().Equal(dec("1000")))
}
