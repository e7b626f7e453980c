package dca

import (
	"github.com/shopspring/decimal"

	"gridkernel/internal/core"
)

// TrailMode selects how the trail distance from the highest price is
// computed.
type TrailMode string

const (
	TrailPercent  TrailMode = "percent"
	TrailAbsolute TrailMode = "absolute"
)

// TrailingStopConfig tunes a TrailingStop's activation and trail
// distance.
type TrailingStopConfig struct {
	ActivationPct  decimal.Decimal
	Mode           TrailMode
	TrailPct       decimal.Decimal
	FixedDistance  decimal.Decimal
}

// EvalResult is Evaluate's exit verdict.
type EvalResult struct {
	ShouldExit bool
	StopPrice  decimal.Decimal
}

// TrailingStop tracks a deal's highest observed price and evaluates
// the trailing take-profit exit (C8). HighestPriceSinceEntry is
// monotonically non-decreasing and is never touched by a
// safety-order fill — callers only call UpdateHigh/Evaluate from the
// price-tick path, never from the fill path.
type TrailingStop struct {
	cfg TrailingStopConfig
}

// NewTrailingStop constructs a TrailingStop with the given tuning.
func NewTrailingStop(cfg TrailingStopConfig) *TrailingStop {
	return &TrailingStop{cfg: cfg}
}

// ActivateIfProfitable flips state.Activated on once unrealized gain
// from avgEntry reaches ActivationPct. Returns the updated state.
func (t *TrailingStop) ActivateIfProfitable(state core.TrailingStopState, currentPrice, avgEntry decimal.Decimal) core.TrailingStopState {
	if state.Activated || avgEntry.IsZero() {
		return state
	}
	gain := currentPrice.Sub(avgEntry).Div(avgEntry)
	if gain.GreaterThanOrEqual(t.cfg.ActivationPct) {
		state.Activated = true
	}
	return state
}

// UpdateHigh raises HighestPriceSinceEntry to max(current, previous
// high). Never lowers it.
func (t *TrailingStop) UpdateHigh(state core.TrailingStopState, currentPrice decimal.Decimal) core.TrailingStopState {
	if currentPrice.GreaterThan(state.HighestPriceSinceEntry) {
		state.HighestPriceSinceEntry = currentPrice
	}
	return state
}

// Evaluate computes the stop price from the current high (if
// activated) and reports whether currentPrice has crossed it.
func (t *TrailingStop) Evaluate(state core.TrailingStopState, currentPrice decimal.Decimal) EvalResult {
	if !state.Activated {
		return EvalResult{ShouldExit: false}
	}

	var stopPrice decimal.Decimal
	if t.cfg.Mode == TrailAbsolute {
		stopPrice = state.HighestPriceSinceEntry.Sub(t.cfg.FixedDistance)
	} else {
		stopPrice = state.HighestPriceSinceEntry.Mul(decimal.NewFromInt(1).Sub(t.cfg.TrailPct))
	}

	return EvalResult{
		ShouldExit: currentPrice.LessThanOrEqual(stopPrice),
		StopPrice:  stopPrice,
	}
}
