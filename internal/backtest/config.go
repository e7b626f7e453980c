package backtest

import (
	"time"

	"github.com/shopspring/decimal"

	"gridkernel/internal/core"
	"gridkernel/internal/grid"
)

// Candle is one OHLCV bar fed into BacktestSimulator.Run.
type Candle struct {
	Timestamp time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
}

// GridBacktestConfig is everything BacktestSimulator.Run needs to
// replay a grid strategy over a candle series (C12).
type GridBacktestConfig struct {
	Symbol string

	InitialBalance decimal.Decimal
	Fees           FeeConfig

	NumLevels     int
	Spacing       core.Spacing
	AmountPerGrid decimal.Decimal
	ProfitPerGrid decimal.Decimal
	Direction     core.DirectionBias

	// AutoBounds selects ATR-derived bounds over the fixed
	// Upper/Lower pair.
	AutoBounds    bool
	UpperPrice    decimal.Decimal
	LowerPrice    decimal.Decimal
	ATRPeriod     int
	ATRMultiplier decimal.Decimal

	TakeProfitPct  decimal.Decimal
	StopLossPct    decimal.Decimal
	MaxDrawdownPct decimal.Decimal

	TrailingEnabled         bool
	TrailingShiftThreshold  decimal.Decimal
	TrailingCooldownCandles int
	TrailingRecenterMode    grid.RecenterMode
}
