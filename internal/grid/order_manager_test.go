package grid

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridkernel/internal/core"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func testConfig() Config {
	return Config{
		Upper:         dec("102"),
		Lower:         dec("98"),
		NumLevels:     5,
		Spacing:       core.SpacingArithmetic,
		AmountPerGrid: dec("100"),
		ProfitPerGrid: dec("0.005"),
	}
}

func TestOrderManager_InitialOrdersArePending(t *testing.T) {
	m := NewOrderManager(fixedClock(time.Unix(0, 0)))
	orders, err := m.CalculateInitialOrders(testConfig(), dec("100"))
	require.NoError(t, err)
	for _, o := range orders {
		assert.Equal(t, core.OrderPending, o.Status)
	}
}

func TestOrderManager_LifecycleIsMonotonic(t *testing.T) {
	m := NewOrderManager(fixedClock(time.Unix(0, 0)))
	orders, err := m.CalculateInitialOrders(testConfig(), dec("100"))
	require.NoError(t, err)
	require.NotEmpty(t, orders)

	o := orders[0]
	require.NoError(t, m.RegisterExchangeOrder(o.ID, "exch-1"))
	assert.Equal(t, core.OrderOpen, o.Status)

	// Cannot go backward to pending.
	assert.False(t, o.Status.CanTransitionTo(core.OrderPending))
}

func TestOrderManager_OnOrderFilled_GeneratesCounterOrder(t *testing.T) {
	m := NewOrderManager(fixedClock(time.Unix(0, 0)))
	cfg := testConfig()
	orders, err := m.CalculateInitialOrders(cfg, dec("100"))
	require.NoError(t, err)

	var buyOrder *core.GridOrderState
	for _, o := range orders {
		if o.GridLevel.Side == core.Buy {
			buyOrder = o
			break
		}
	}
	require.NotNil(t, buyOrder)
	require.NoError(t, m.RegisterExchangeOrder(buyOrder.ID, "exch-buy"))

	counter, err := m.OnOrderFilled(cfg, "exch-buy", buyOrder.GridLevel.Price, buyOrder.GridLevel.Amount)
	require.NoError(t, err)
	require.NotNil(t, counter)
	assert.Equal(t, core.Sell, counter.GridLevel.Side)

	expectedPrice := buyOrder.GridLevel.Price.Mul(dec("1.005"))
	assert.True(t, counter.GridLevel.Price.Equal(expectedPrice))
}

func TestOrderManager_OnOrderFilled_ClosesCycleWithOriginPrice(t *testing.T) {
	m := NewOrderManager(fixedClock(time.Unix(0, 0)))
	cfg := testConfig()
	orders, err := m.CalculateInitialOrders(cfg, dec("100"))
	require.NoError(t, err)

	var buyOrder *core.GridOrderState
	for _, o := range orders {
		if o.GridLevel.Side == core.Buy {
			buyOrder = o
			break
		}
	}
	require.NotNil(t, buyOrder)
	require.NoError(t, m.RegisterExchangeOrder(buyOrder.ID, "exch-buy"))

	buyPrice := buyOrder.GridLevel.Price
	sellCounter, err := m.OnOrderFilled(cfg, "exch-buy", buyPrice, buyOrder.GridLevel.Amount)
	require.NoError(t, err)
	require.NotNil(t, sellCounter)
	assert.Equal(t, buyOrder.ID, sellCounter.OriginOrderID)
	assert.True(t, sellCounter.OriginPrice.Equal(buyPrice))

	require.NoError(t, m.RegisterExchangeOrder(sellCounter.ID, "exch-sell"))
	sellPrice := sellCounter.GridLevel.Price
	_, err = m.OnOrderFilled(cfg, "exch-sell", sellPrice, sellCounter.GridLevel.Amount)
	require.NoError(t, err)

	cycles := m.Cycles()
	require.Len(t, cycles, 1)
	c := cycles[0]
	assert.Equal(t, buyOrder.ID, c.BuyOrderID)
	assert.Equal(t, sellCounter.ID, c.SellOrderID)
	assert.True(t, c.BuyPrice.Equal(buyPrice))
	assert.True(t, c.SellPrice.Equal(sellPrice))
	expectedProfit := sellPrice.Sub(buyPrice).Mul(sellCounter.GridLevel.Amount)
	assert.True(t, c.Profit.Equal(expectedProfit), "profit = %s, want %s", c.Profit, expectedProfit)
	assert.True(t, c.Profit.IsPositive())
}

func TestOrderManager_DuplicateFillIsIdempotent(t *testing.T) {
	m := NewOrderManager(fixedClock(time.Unix(0, 0)))
	cfg := testConfig()
	orders, err := m.CalculateInitialOrders(cfg, dec("100"))
	require.NoError(t, err)
	o := orders[0]
	require.NoError(t, m.RegisterExchangeOrder(o.ID, "exch-1"))

	_, err = m.OnOrderFilled(cfg, "exch-1", o.GridLevel.Price, o.GridLevel.Amount)
	require.NoError(t, err)

	// Second delivery of the same exchange order id must not error and
	// must not generate another counter-order.
	counter, err := m.OnOrderFilled(cfg, "exch-1", o.GridLevel.Price, o.GridLevel.Amount)
	require.NoError(t, err)
	assert.Nil(t, counter)
}

func TestOrderManager_UnknownExchangeOrderIsSimulatorInconsistent(t *testing.T) {
	m := NewOrderManager(fixedClock(time.Unix(0, 0)))
	_, err := m.OnOrderFilled(testConfig(), "missing", dec("100"), dec("1"))
	assert.ErrorIs(t, err, core.ErrSimulatorInconsistent)
}

func TestOrderManager_MarkOrderFailed_UnknownIsOrderNotFound(t *testing.T) {
	m := NewOrderManager(fixedClock(time.Unix(0, 0)))
	err := m.MarkOrderFailed(uuid.New(), "boom")
	assert.ErrorIs(t, err, core.ErrOrderNotFound)
}
