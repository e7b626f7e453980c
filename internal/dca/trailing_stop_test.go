package dca

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"gridkernel/internal/core"
)

func TestTrailingStopActivatesAndExits(t *testing.T) {
	ts := NewTrailingStop(TrailingStopConfig{
		ActivationPct: dec("0.02"),
		Mode:          TrailPercent,
		TrailPct:      dec("0.01"),
	})

	state := core.TrailingStopState{HighestPriceSinceEntry: dec("100")}
	state = ts.ActivateIfProfitable(state, dec("101"), dec("100"))
	assert.False(t, state.Activated)

	state = ts.ActivateIfProfitable(state, dec("103"), dec("100"))
	assert.True(t, state.Activated)

	state = ts.UpdateHigh(state, dec("110"))
	assert.True(t, state.HighestPriceSinceEntry.Equal(dec("110")))

	res := ts.Evaluate(state, dec("109.5"))
	assert.False(t, res.ShouldExit)

	res = ts.Evaluate(state, dec("108.8"))
	assert.True(t, res.ShouldExit)
}

// TestHighestPriceNeverResetBySafetyOrderFill is the testable
// invariant from spec.md §8.3: the trailing high must stay
// monotonically non-decreasing across the whole deal lifetime,
// including when a safety order fills at a lower price than the
// current high.
func TestHighestPriceNeverResetBySafetyOrderFill(t *testing.T) {
	ts := NewTrailingStop(TrailingStopConfig{ActivationPct: dec("0.02"), Mode: TrailPercent, TrailPct: dec("0.01")})

	state := core.TrailingStopState{HighestPriceSinceEntry: dec("100")}
	state = ts.UpdateHigh(state, dec("120"))
	assert.True(t, state.HighestPriceSinceEntry.Equal(dec("120")))

	// A safety order fills at 90 - even if that lower price reaches
	// UpdateHigh, the trailing high is not lowered.
	state = ts.UpdateHigh(state, dec("90"))
	assert.True(t, state.HighestPriceSinceEntry.Equal(dec("120")))
}
