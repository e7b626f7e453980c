package grid

import (
	"github.com/shopspring/decimal"
)

// RecenterMode selects how TrailingGridManager recomputes bounds on a
// shift.
type RecenterMode string

const (
	RecenterFixed RecenterMode = "fixed"
	RecenterATR   RecenterMode = "atr"
)

// ShiftRecord is one entry of a TrailingGridManager's shift_history.
type ShiftRecord struct {
	ShiftNumber int
	Price       decimal.Decimal
	OldUpper    decimal.Decimal
	OldLower    decimal.Decimal
	NewUpper    decimal.Decimal
	NewLower    decimal.Decimal
	Mode        RecenterMode
}

// TrailingGridManager shifts grid bounds when price escapes them,
// subject to a cooldown (C9).
type TrailingGridManager struct {
	ShiftThresholdPct decimal.Decimal
	RecenterMode      RecenterMode
	CooldownCandles   int
	ATRPeriod         int
	ATRMultiplier     decimal.Decimal

	cooldownRemaining int
	shiftCount        int
	shiftHistory      []ShiftRecord
}

// NewTrailingGridManager constructs a manager with the given tuning
// parameters.
func NewTrailingGridManager(shiftThresholdPct decimal.Decimal, mode RecenterMode, cooldownCandles, atrPeriod int, atrMultiplier decimal.Decimal) *TrailingGridManager {
	return &TrailingGridManager{
		ShiftThresholdPct: shiftThresholdPct,
		RecenterMode:      mode,
		CooldownCandles:   cooldownCandles,
		ATRPeriod:         atrPeriod,
		ATRMultiplier:     atrMultiplier,
	}
}

// ShiftCount returns the number of shifts triggered so far.
func (m *TrailingGridManager) ShiftCount() int { return m.shiftCount }

// ShiftHistory returns a copy of every recorded shift.
func (m *TrailingGridManager) ShiftHistory() []ShiftRecord {
	out := make([]ShiftRecord, len(m.shiftHistory))
	copy(out, m.shiftHistory)
	return out
}

// Tick advances one candle, decrementing the cooldown counter.
func (m *TrailingGridManager) Tick() {
	if m.cooldownRemaining > 0 {
		m.cooldownRemaining--
	}
}

// CheckAndShift returns a new Config iff the cooldown has elapsed and
// currentPrice has moved beyond upper+threshold*spread or
// lower-threshold*spread. highs/lows/closes are required for ATR-mode
// recentering; when absent (or mode is fixed) the grid recenters
// around currentPrice keeping the same spread.
func (m *TrailingGridManager) CheckAndShift(currentPrice, currentUpper, currentLower decimal.Decimal, cfg Config, highs, lows, closes []decimal.Decimal) *Config {
	if m.cooldownRemaining > 0 {
		return nil
	}

	spread := currentUpper.Sub(currentLower)
	threshold := spread.Mul(m.ShiftThresholdPct)

	shouldShift := currentPrice.GreaterThan(currentUpper.Add(threshold)) ||
		currentPrice.LessThan(currentLower.Sub(threshold))
	if !shouldShift {
		return nil
	}

	var newUpper, newLower decimal.Decimal
	if m.RecenterMode == RecenterATR && len(highs) > 0 && len(lows) > 0 && len(closes) > 0 {
		atr := ATR(highs, lows, closes, m.ATRPeriod)
		newUpper, newLower = AdjustBoundsByATR(currentPrice, atr, m.ATRMultiplier)
	} else {
		newUpper = currentPrice.Add(spread.Div(decimal.NewFromInt(2)))
		newLower = currentPrice.Sub(spread.Div(decimal.NewFromInt(2)))
	}

	if newLower.LessThanOrEqual(decimal.Zero) {
		newLower = epsilon
	}

	newCfg := cfg
	newCfg.Upper = newUpper
	newCfg.Lower = newLower

	m.cooldownRemaining = m.CooldownCandles
	m.shiftCount++
	m.shiftHistory = append(m.shiftHistory, ShiftRecord{
		ShiftNumber: m.shiftCount,
		Price:       currentPrice,
		OldUpper:    currentUpper,
		OldLower:    currentLower,
		NewUpper:    newUpper,
		NewLower:    newLower,
		Mode:        m.RecenterMode,
	})

	return &newCfg
}

// Reset clears trailing state.
func (m *TrailingGridManager) Reset() {
	m.cooldownRemaining = 0
	m.shiftCount = 0
	m.shiftHistory = nil
}
