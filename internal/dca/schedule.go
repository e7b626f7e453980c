// Package dca implements the deal/safety-order state machine (C6),
// the confluence signal generator (C7) and the trailing take-profit
// tracker (C8).
package dca

import (
	"github.com/shopspring/decimal"
)

// OrderConfig is the deterministic derivation input for a
// SafetyOrderSchedule: base_volume, step_pct, step_multiplier,
// volume_multiplier and the safety-order count.
type OrderConfig struct {
	BaseVolume         decimal.Decimal
	SOStepPct          decimal.Decimal
	SOStepMultiplier   decimal.Decimal
	SOVolumeMultiplier decimal.Decimal
	MaxSafetyOrders    int
}

// ScheduleLevel is one entry of a SafetyOrderSchedule.
type ScheduleLevel struct {
	Index  int
	Price  decimal.Decimal
	Amount decimal.Decimal
}

// BuildSchedule derives the safety-order price/volume ladder:
// price of SO k = previous SO price * (1 - step_pct*step_multiplier^k)
// volume of SO k = base_volume * volume_multiplier^k
func BuildSchedule(basePrice decimal.Decimal, cfg OrderConfig) []ScheduleLevel {
	out := make([]ScheduleLevel, cfg.MaxSafetyOrders)
	prevPrice := basePrice
	for k := 1; k <= cfg.MaxSafetyOrders; k++ {
		stepMultK := powDecimal(cfg.SOStepMultiplier, k)
		dropPct := cfg.SOStepPct.Mul(stepMultK)
		price := prevPrice.Mul(decimal.NewFromInt(1).Sub(dropPct))

		volMultK := powDecimal(cfg.SOVolumeMultiplier, k)
		amount := cfg.BaseVolume.Mul(volMultK)

		out[k-1] = ScheduleLevel{Index: k, Price: price, Amount: amount}
		prevPrice = price
	}
	return out
}

func powDecimal(base decimal.Decimal, exp int) decimal.Decimal {
	result := decimal.NewFromInt(1)
	for i := 0; i < exp; i++ {
		result = result.Mul(base)
	}
	return result
}
