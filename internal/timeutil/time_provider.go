// Package timeutil provides the live and backtest TimeProvider
// implementations that guarantee cooldown and timestamp parity
// between the live bot and the simulator.
package timeutil

import (
	"fmt"
	"time"

	"gridkernel/internal/core"
)

// LiveTimeProvider delegates to the OS clock. Both Now and Monotonic
// always reflect wall-clock reality.
type LiveTimeProvider struct {
	start time.Time
}

// NewLiveTimeProvider returns a TimeProvider backed by the OS clock.
func NewLiveTimeProvider() *LiveTimeProvider {
	return &LiveTimeProvider{start: time.Now().UTC()}
}

func (p *LiveTimeProvider) Now() time.Time {
	return time.Now().UTC()
}

// Monotonic returns seconds elapsed since the provider was
// constructed. Go has no direct analogue of time.monotonic(); this
// derives an equivalent from a fixed zero-point captured at
// construction, which is all cooldown logic requires (deltas only).
func (p *LiveTimeProvider) Monotonic() float64 {
	return time.Since(p.start).Seconds()
}

var _ core.TimeProvider = (*LiveTimeProvider)(nil)

// BacktestTimeProvider is a simulated clock that advances only when
// told to. Monotonic is derived from simulated elapsed seconds so
// cooldown timers behave identically to the live provider.
type BacktestTimeProvider struct {
	current time.Time
	startTS float64
}

// defaultBacktestStart matches original_source's 2020-01-01 UTC default.
var defaultBacktestStart = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// NewBacktestTimeProvider returns a simulated clock starting at start,
// or defaultBacktestStart if start is the zero value.
func NewBacktestTimeProvider(start time.Time) *BacktestTimeProvider {
	if start.IsZero() {
		start = defaultBacktestStart
	}
	start = start.UTC()
	return &BacktestTimeProvider{
		current: start,
		startTS: float64(start.UnixNano()) / 1e9,
	}
}

func (p *BacktestTimeProvider) Now() time.Time {
	return p.current
}

func (p *BacktestTimeProvider) Monotonic() float64 {
	return float64(p.current.UnixNano())/1e9 - p.startTS
}

// Advance moves the simulated clock forward by delta. delta must be
// strictly positive.
func (p *BacktestTimeProvider) Advance(delta time.Duration) error {
	if delta <= 0 {
		return fmt.Errorf("timeutil: advance requires positive delta, got %s", delta)
	}
	p.current = p.current.Add(delta)
	return nil
}

// AdvanceBars advances by n bars of barDuration each. barDuration
// defaults to 5 minutes (300s) when zero, matching original_source's
// bar_duration_seconds=300 default.
func (p *BacktestTimeProvider) AdvanceBars(n int, barDuration time.Duration) error {
	if barDuration <= 0 {
		barDuration = 5 * time.Minute
	}
	return p.Advance(time.Duration(n) * barDuration)
}

// SetTime teleports the simulated clock to an absolute instant.
func (p *BacktestTimeProvider) SetTime(t time.Time) {
	p.current = t.UTC()
}

var _ core.TimeProvider = (*BacktestTimeProvider)(nil)
