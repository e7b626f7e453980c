package risk

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestPortfolioStopLossHalts(t *testing.T) {
	m := NewManager(Config{StopLossPct: dec("0.2")})
	m.InitializeBalance(dec("1000"))

	m.UpdateBalance(dec("900"))
	require.False(t, m.IsHalted())

	m.UpdateBalance(dec("790"))
	require.True(t, m.IsHalted())
	assert.Contains(t, m.HaltReason(), "stop-loss")
}

func TestHaltIsStickyUntilResume(t *testing.T) {
	m := NewManager(Config{StopLossPct: dec("0.1")})
	m.InitializeBalance(dec("1000"))
	m.UpdateBalance(dec("850"))
	require.True(t, m.IsHalted())

	// Balance recovers fully but halt must remain until explicit resume.
	m.UpdateBalance(dec("2000"))
	assert.True(t, m.IsHalted())

	r := m.CheckTrade(dec("1"), dec("1000"), dec("1"), dec("1"))
	assert.False(t, r.Allowed)

	m.Resume()
	assert.False(t, m.IsHalted())
	r = m.CheckTrade(dec("1"), dec("1000"), dec("1"), dec("1"))
	assert.True(t, r.Allowed)
}

func TestDailyLossLimitHalts(t *testing.T) {
	m := NewManager(Config{MaxDailyLoss: dec("50")})
	m.InitializeBalance(dec("1000"))
	m.UpdateBalance(dec("970"))
	require.False(t, m.IsHalted())
	m.UpdateBalance(dec("940"))
	require.True(t, m.IsHalted())
}

func TestCheckOrderSizeRejectsOversizedOrder(t *testing.T) {
	m := NewManager(Config{MaxOrderSize: dec("100")})
	r := m.CheckOrderSize(dec("150"))
	assert.False(t, r.Allowed)

	r = m.CheckOrderSize(dec("50"))
	assert.True(t, r.Allowed)
}

func TestCheckTrendSuitability(t *testing.T) {
	m := NewManager(Config{})

	ts := m.CheckTrendSuitability(dec("10"), dec("25"), decimal.Zero, false)
	assert.True(t, ts.Deactivate)

	ts = m.CheckTrendSuitability(dec("10"), dec("5"), dec("30"), true)
	assert.True(t, ts.Deactivate)

	ts = m.CheckTrendSuitability(dec("10"), dec("15"), decimal.Zero, false)
	assert.True(t, ts.Pause)

	ts = m.CheckTrendSuitability(dec("10"), dec("5"), decimal.Zero, false)
	assert.True(t, ts.Safe)
}

func TestRecordTradeResultConsecutiveLosses(t *testing.T) {
	m := NewManager(Config{})
	m.RecordTradeResult(dec("-5"))
	m.RecordTradeResult(dec("-3"))
	assert.Equal(t, 2, m.ConsecutiveLosses())

	m.RecordTradeResult(dec("10"))
	assert.Equal(t, 0, m.ConsecutiveLosses())
}

func TestHaltedManagerRejectsAllChecks(t *testing.T) {
	m := NewManager(Config{StopLossPct: dec("0.1")})
	m.InitializeBalance(dec("1000"))
	m.UpdateBalance(dec("850"))
	require.True(t, m.IsHalted())

	assert.False(t, m.CheckOrderSize(dec("1")).Allowed)
	assert.False(t, m.CheckPositionLimit(dec("1")).Allowed)
	assert.False(t, m.CheckBalance(dec("1000"), dec("1")).Allowed)
}
