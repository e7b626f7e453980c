package dca

import (
	"time"

	"github.com/shopspring/decimal"

	"gridkernel/internal/core"
)

// ConditionWeights assigns a weight in [0,1] to each recognized
// confluence condition. Conditions not present default to zero
// weight (disabled).
type ConditionWeights struct {
	EMACrossBullish   decimal.Decimal
	ADXStrength       decimal.Decimal
	RSIOversold       decimal.Decimal
	PriceNearSupport  decimal.Decimal
	BBLowerTouch      decimal.Decimal
	VolumeSpike       decimal.Decimal
}

// SignalConfig tunes DCASignalGenerator.
type SignalConfig struct {
	Weights            ConditionWeights
	MinConfluenceScore decimal.Decimal

	EMACrossLookback int // bars to look back for a bullish cross

	ADXMin decimal.Decimal // saturating map lower bound
	ADXMax decimal.Decimal // saturating map upper bound

	RSIOversoldThreshold decimal.Decimal

	SupportBandPct decimal.Decimal // |price-support|/price <= band

	VolumeSpikeMultiplier decimal.Decimal // volume >= k*avg_volume
	AvgVolume             decimal.Decimal

	Cooldown         time.Duration
	ConfirmationBars int
	MaxStaleness     time.Duration
	MaxVolatility    decimal.Decimal // clamp: skip signal when bb_width exceeds this
}

// SignalResult is DCASignalGenerator.Evaluate's output.
type SignalResult struct {
	ShouldOpen      bool
	Score           decimal.Decimal
	ConditionScores map[string]decimal.Decimal
	Reasons         []string
}

// SignalGenerator evaluates weighted confluence conditions against a
// MarketIndicators snapshot (C7).
type SignalGenerator struct {
	cfg SignalConfig
}

// NewSignalGenerator constructs a generator with the given config.
func NewSignalGenerator(cfg SignalConfig) *SignalGenerator {
	return &SignalGenerator{cfg: cfg}
}

// Evaluate scores the latest indicators in history (last element)
// against the confluence configuration. lastSignalAt is the zero
// time if no prior signal has fired. now is the caller's current
// instant (injected for backtest parity with TimeProvider).
func (g *SignalGenerator) Evaluate(history []core.MarketIndicators, support, low decimal.Decimal, lastSignalAt, now time.Time) SignalResult {
	scores := make(map[string]decimal.Decimal)
	var reasons []string

	if len(history) == 0 {
		return SignalResult{ConditionScores: scores}
	}
	latest := history[len(history)-1]

	if g.cfg.MaxStaleness > 0 && now.Sub(latest.Timestamp) > g.cfg.MaxStaleness {
		reasons = append(reasons, "stale market data")
		return SignalResult{ConditionScores: scores, Reasons: reasons}
	}

	if !g.cfg.Weights.EMACrossBullish.IsZero() {
		s := emaCrossBullishScore(history, g.cfg.EMACrossLookback)
		scores["ema_cross_bullish"] = s
	}
	if !g.cfg.Weights.ADXStrength.IsZero() {
		scores["adx_strength"] = saturatingMap(latest.ADX, g.cfg.ADXMin, g.cfg.ADXMax)
	}
	if !g.cfg.Weights.RSIOversold.IsZero() {
		scores["rsi_oversold"] = boolScore(latest.RSI.LessThanOrEqual(g.cfg.RSIOversoldThreshold))
	}
	if !g.cfg.Weights.PriceNearSupport.IsZero() && !latest.Price.IsZero() {
		dist := latest.Price.Sub(support).Abs().Div(latest.Price)
		scores["price_near_support"] = boolScore(dist.LessThanOrEqual(g.cfg.SupportBandPct))
	}
	if !g.cfg.Weights.BBLowerTouch.IsZero() {
		scores["bb_lower_touch"] = boolScore(low.LessThanOrEqual(latest.BBLower))
	}
	if !g.cfg.Weights.VolumeSpike.IsZero() && !g.cfg.AvgVolume.IsZero() {
		scores["volume_spike"] = boolScore(latest.Volume.GreaterThanOrEqual(g.cfg.AvgVolume.Mul(g.cfg.VolumeSpikeMultiplier)))
	}

	total := decimal.Zero
	total = total.Add(scores["ema_cross_bullish"].Mul(g.cfg.Weights.EMACrossBullish))
	total = total.Add(scores["adx_strength"].Mul(g.cfg.Weights.ADXStrength))
	total = total.Add(scores["rsi_oversold"].Mul(g.cfg.Weights.RSIOversold))
	total = total.Add(scores["price_near_support"].Mul(g.cfg.Weights.PriceNearSupport))
	total = total.Add(scores["bb_lower_touch"].Mul(g.cfg.Weights.BBLowerTouch))
	total = total.Add(scores["volume_spike"].Mul(g.cfg.Weights.VolumeSpike))

	if !g.cfg.MaxVolatility.IsZero() && latest.BBWidth.GreaterThan(g.cfg.MaxVolatility) {
		reasons = append(reasons, "volatility above clamp")
		return SignalResult{Score: total, ConditionScores: scores, Reasons: reasons}
	}

	if !lastSignalAt.IsZero() && g.cfg.Cooldown > 0 && now.Sub(lastSignalAt) < g.cfg.Cooldown {
		reasons = append(reasons, "cooldown active")
		return SignalResult{Score: total, ConditionScores: scores, Reasons: reasons}
	}

	if g.cfg.ConfirmationBars > 0 && len(history) < g.cfg.ConfirmationBars {
		reasons = append(reasons, "insufficient confirmation bars")
		return SignalResult{Score: total, ConditionScores: scores, Reasons: reasons}
	}

	shouldOpen := total.GreaterThanOrEqual(g.cfg.MinConfluenceScore)
	if shouldOpen {
		reasons = append(reasons, "confluence score met threshold")
	} else {
		reasons = append(reasons, "confluence score below threshold")
	}

	return SignalResult{ShouldOpen: shouldOpen, Score: total, ConditionScores: scores, Reasons: reasons}
}

func boolScore(b bool) decimal.Decimal {
	if b {
		return decimal.NewFromInt(1)
	}
	return decimal.Zero
}

// saturatingMap linearly maps v from [lo,hi] to [0,1], clamped at the
// ends.
func saturatingMap(v, lo, hi decimal.Decimal) decimal.Decimal {
	if hi.LessThanOrEqual(lo) {
		return decimal.Zero
	}
	if v.LessThanOrEqual(lo) {
		return decimal.Zero
	}
	if v.GreaterThanOrEqual(hi) {
		return decimal.NewFromInt(1)
	}
	return v.Sub(lo).Div(hi.Sub(lo))
}

// emaCrossBullishScore returns 1 when ema_fast crossed above ema_slow
// at any point within the last lookback bars of history.
func emaCrossBullishScore(history []core.MarketIndicators, lookback int) decimal.Decimal {
	n := len(history)
	if n < 2 {
		return decimal.Zero
	}
	start := n - lookback
	if start < 1 {
		start = 1
	}
	for i := start; i < n; i++ {
		prev := history[i-1]
		cur := history[i]
		if prev.EMAFast.LessThanOrEqual(prev.EMASlow) && cur.EMAFast.GreaterThan(cur.EMASlow) {
			return decimal.NewFromInt(1)
		}
	}
	return decimal.Zero
}
