package dca

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridkernel/internal/core"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestOpenDealAndFillBaseOrder(t *testing.T) {
	m := NewPositionManager(fixedClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	cfg := DealConfig{
		TakeProfitPct: dec("0.02"),
		Orders: OrderConfig{
			BaseVolume:         dec("10"),
			SOStepPct:          dec("0.05"),
			SOStepMultiplier:   dec("1"),
			SOVolumeMultiplier: dec("1.5"),
			MaxSafetyOrders:    2,
		},
	}
	deal := m.OpenDeal("BTCUSDT", dec("100"), dec("1"), cfg)
	require.Equal(t, core.DealOpening, deal.Status)
	require.Len(t, deal.SafetyOrders, 2)

	deal, err := m.FillBaseOrder(deal.ID, dec("100"), dec("1"), dec("0.02"))
	require.NoError(t, err)
	assert.Equal(t, core.DealActive, deal.Status)
	assert.True(t, deal.AverageEntryPrice.Equal(dec("100")))
	assert.True(t, deal.TargetTakeProfit.Equal(dec("102")))
}

func TestFillSafetyOrderUpdatesAverageEntry(t *testing.T) {
	m := NewPositionManager(nil)
	cfg := DealConfig{
		Orders: OrderConfig{
			BaseVolume:         dec("10"),
			SOStepPct:          dec("0.05"),
			SOStepMultiplier:   dec("1"),
			SOVolumeMultiplier: dec("1.5"),
			MaxSafetyOrders:    1,
		},
	}
	deal := m.OpenDeal("BTCUSDT", dec("100"), dec("1"), cfg)
	deal, err := m.FillBaseOrder(deal.ID, dec("100"), dec("1"), dec("0.02"))
	require.NoError(t, err)

	deal, err = m.FillSafetyOrder(deal.ID, 1, dec("95"), dec("1.5"))
	require.NoError(t, err)

	wantAvg := deal.TotalCost.Div(deal.TotalAmount)
	assert.True(t, deal.AverageEntryPrice.Equal(wantAvg))
	assert.Equal(t, 1, deal.FilledSafetyCount)
}

func TestFillSafetyOrderIsIdempotentOnDuplicate(t *testing.T) {
	m := NewPositionManager(nil)
	cfg := DealConfig{
		Orders: OrderConfig{
			BaseVolume:         dec("10"),
			SOStepPct:          dec("0.05"),
			SOStepMultiplier:   dec("1"),
			SOVolumeMultiplier: dec("1.5"),
			MaxSafetyOrders:    1,
		},
	}
	deal := m.OpenDeal("BTCUSDT", dec("100"), dec("1"), cfg)
	deal, _ = m.FillBaseOrder(deal.ID, dec("100"), dec("1"), dec("0.02"))
	deal, err := m.FillSafetyOrder(deal.ID, 1, dec("95"), dec("1.5"))
	require.NoError(t, err)
	amountAfterFirst := deal.TotalAmount

	deal, err = m.FillSafetyOrder(deal.ID, 1, dec("95"), dec("1.5"))
	require.NoError(t, err)
	assert.True(t, deal.TotalAmount.Equal(amountAfterFirst))
	assert.Equal(t, 1, deal.FilledSafetyCount)
}

func TestCloseDealComputesRealizedPnL(t *testing.T) {
	m := NewPositionManager(nil)
	cfg := DealConfig{Orders: OrderConfig{MaxSafetyOrders: 0}}
	deal := m.OpenDeal("BTCUSDT", dec("100"), dec("1"), cfg)
	deal, _ = m.FillBaseOrder(deal.ID, dec("100"), dec("1"), dec("0.02"))

	deal, err := m.CloseDeal(deal.ID, dec("110"), dec("1"), "take_profit")
	require.NoError(t, err)
	assert.Equal(t, core.DealClosed, deal.Status)
	assert.True(t, deal.RealizedPnL.Equal(dec("9")))
}
