// Package hybrid implements the pure, stateless ADX-routing decision
// between the grid and DCA engines (C10).
package hybrid

import (
	"fmt"

	"github.com/shopspring/decimal"

	"gridkernel/internal/core"
)

// Config tunes the ADX threshold and the both-active tolerance band.
type Config struct {
	ADXThreshold decimal.Decimal
	AllowBoth    bool
	Tolerance    decimal.Decimal
}

// Coordinator is stateless; it never touches strategy state and
// takes every input by argument.
type Coordinator struct {
	cfg Config
}

// NewCoordinator constructs a Coordinator with the given thresholds.
func NewCoordinator(cfg Config) *Coordinator {
	return &Coordinator{cfg: cfg}
}

// Evaluate routes between grid-only, dca-active and both-active based
// on adx. adx == nil is the safe default (grid_only), matching the
// spec's rule that an absent trend reading never activates DCA.
func (c *Coordinator) Evaluate(adx *decimal.Decimal, currentPrice *decimal.Decimal, extra map[string]interface{}) core.CoordinatedDecision {
	if adx == nil {
		return core.CoordinatedDecision{
			Mode:    core.ModeGridOnly,
			RunGrid: true,
			RunDCA:  false,
			Reason:  "no ADX reading available; defaulting to grid_only",
		}
	}

	lower := c.cfg.ADXThreshold.Sub(c.cfg.Tolerance)
	upper := c.cfg.ADXThreshold.Add(c.cfg.Tolerance)

	if c.cfg.AllowBoth && adx.GreaterThanOrEqual(lower) && adx.LessThanOrEqual(upper) {
		return core.CoordinatedDecision{
			Mode:    core.ModeBothActive,
			RunGrid: true,
			RunDCA:  true,
			Reason:  fmt.Sprintf("adx %s within tolerance band [%s, %s] of threshold %s", adx, lower, upper, c.cfg.ADXThreshold),
		}
	}

	if adx.GreaterThan(c.cfg.ADXThreshold) {
		return core.CoordinatedDecision{
			Mode:    core.ModeDCAActive,
			RunGrid: false,
			RunDCA:  true,
			Reason:  fmt.Sprintf("adx %s above threshold %s; trending regime favors DCA", adx, c.cfg.ADXThreshold),
		}
	}

	return core.CoordinatedDecision{
		Mode:    core.ModeGridOnly,
		RunGrid: true,
		RunDCA:  false,
		Reason:  fmt.Sprintf("adx %s at or below threshold %s; ranging regime favors grid", adx, c.cfg.ADXThreshold),
	}
}
