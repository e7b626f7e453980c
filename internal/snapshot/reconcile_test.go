package snapshot

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridkernel/internal/core"
	"gridkernel/internal/grid"
)

// fakeExecutionLayer reports a fixed set of open orders and errors on
// every mutating call, since reconciliation only ever reads.
type fakeExecutionLayer struct {
	openOrders []core.OpenOrder
}

func (f *fakeExecutionLayer) CreateOrder(ctx context.Context, symbol string, typ core.OrderType, side core.OrderSide, amount, price decimal.Decimal) (core.OrderAck, error) {
	return core.OrderAck{}, fmt.ErrUnsupported
}
func (f *fakeExecutionLayer) CancelOrder(ctx context.Context, symbol, id string) error {
	return fmt.ErrUnsupported
}
func (f *fakeExecutionLayer) CancelAllOrders(ctx context.Context, symbol string) error {
	return fmt.ErrUnsupported
}
func (f *fakeExecutionLayer) FetchOpenOrders(ctx context.Context, symbol string) ([]core.OpenOrder, error) {
	return f.openOrders, nil
}
func (f *fakeExecutionLayer) FetchBalance(ctx context.Context) (map[string]core.Balance, error) {
	return nil, fmt.ErrUnsupported
}
func (f *fakeExecutionLayer) FetchTicker(ctx context.Context, symbol string) (core.Ticker, error) {
	return core.Ticker{}, fmt.ErrUnsupported
}

func newOpenOrderManager(t *testing.T, cfg grid.Config, price decimal.Decimal) (*grid.OrderManager, []*core.GridOrderState) {
	t.Helper()
	mgr := grid.NewOrderManager(func() time.Time { return time.Unix(0, 0) })
	states, err := mgr.CalculateInitialOrders(cfg, price)
	require.NoError(t, err)
	for i, st := range states {
		require.NoError(t, mgr.RegisterExchangeOrder(st.ID, exchangeIDFor(i)))
	}
	return mgr, states
}

func exchangeIDFor(i int) string {
	return "exch-" + string(rune('a'+i))
}

func testGridConfig() grid.Config {
	return grid.Config{
		Upper: decimal.NewFromInt(110), Lower: decimal.NewFromInt(90),
		NumLevels: 4, Spacing: core.SpacingArithmetic,
		AmountPerGrid: decimal.NewFromInt(10), ProfitPerGrid: decimal.NewFromFloat(0.01),
	}
}

func TestReconcileKeepsOrdersStillOnExchange(t *testing.T) {
	cfg := testGridConfig()
	mgr, states := newOpenOrderManager(t, cfg, decimal.NewFromInt(100))

	var live []core.OpenOrder
	for i := range states {
		live = append(live, core.OpenOrder{ID: exchangeIDFor(i), Symbol: "BTCUSDT"})
	}
	exec := &fakeExecutionLayer{openOrders: live}

	require.NoError(t, ReconcileGridOrders(context.Background(), exec, "BTCUSDT", mgr))

	for _, st := range mgr.Orders() {
		assert.Equal(t, core.OrderOpen, st.Status)
	}
}

func TestReconcileMarksMissingOrdersFailed(t *testing.T) {
	cfg := testGridConfig()
	mgr, states := newOpenOrderManager(t, cfg, decimal.NewFromInt(100))
	require.NotEmpty(t, states)

	exec := &fakeExecutionLayer{openOrders: nil} // exchange reports nothing open

	require.NoError(t, ReconcileGridOrders(context.Background(), exec, "BTCUSDT", mgr))

	for _, st := range mgr.Orders() {
		assert.Equal(t, core.OrderFailed, st.Status)
	}
}

func TestReconcilePartialOverlap(t *testing.T) {
	cfg := testGridConfig()
	mgr, states := newOpenOrderManager(t, cfg, decimal.NewFromInt(100))
	require.GreaterOrEqual(t, len(states), 2)

	exec := &fakeExecutionLayer{openOrders: []core.OpenOrder{{ID: exchangeIDFor(0), Symbol: "BTCUSDT"}}}

	require.NoError(t, ReconcileGridOrders(context.Background(), exec, "BTCUSDT", mgr))

	kept, failed := 0, 0
	for _, st := range mgr.Orders() {
		switch st.Status {
		case core.OrderOpen:
			kept++
		case core.OrderFailed:
			failed++
		}
	}
	assert.Equal(t, 1, kept)
	assert.Equal(t, len(states)-1, failed)
}
