// Package optimizer implements the two-phase parameter search (C13)
// that drives BacktestSimulator runs across a cluster's parameter
// ranges, plus the volatility classifier that selects a cluster
// preset for a given symbol.
package optimizer

import (
	"math"

	"github.com/shopspring/decimal"

	"gridkernel/internal/core"
)

// ClusterPresetName names one of the four volatility buckets a symbol
// can be classified into.
type ClusterPresetName string

const (
	ClusterBlueChips ClusterPresetName = "blue_chips"
	ClusterMidCaps   ClusterPresetName = "mid_caps"
	ClusterMemes     ClusterPresetName = "memes"
	ClusterStable    ClusterPresetName = "stable"
)

// ClusterPreset is the coarse-search parameter range associated with
// a cluster: wider grids with smaller profit steps for stable coins,
// tighter grids with bigger steps for memes.
type ClusterPreset struct {
	Cluster             ClusterPresetName
	SpacingOptions      []core.Spacing
	LevelsRange         [2]int
	ProfitPerGridRange  [2]decimal.Decimal
}

// ClusterPresets are the built-in search ranges, ordered from least
// to most volatile.
var ClusterPresets = map[ClusterPresetName]ClusterPreset{
	ClusterStable: {
		Cluster:            ClusterStable,
		SpacingOptions:     []core.Spacing{core.SpacingArithmetic},
		LevelsRange:        [2]int{20, 40},
		ProfitPerGridRange: [2]decimal.Decimal{decimal.NewFromFloat(0.001), decimal.NewFromFloat(0.003)},
	},
	ClusterBlueChips: {
		Cluster:            ClusterBlueChips,
		SpacingOptions:     []core.Spacing{core.SpacingArithmetic, core.SpacingGeometric},
		LevelsRange:        [2]int{10, 25},
		ProfitPerGridRange: [2]decimal.Decimal{decimal.NewFromFloat(0.003), decimal.NewFromFloat(0.008)},
	},
	ClusterMidCaps: {
		Cluster:            ClusterMidCaps,
		SpacingOptions:     []core.Spacing{core.SpacingGeometric},
		LevelsRange:        [2]int{8, 15},
		ProfitPerGridRange: [2]decimal.Decimal{decimal.NewFromFloat(0.005), decimal.NewFromFloat(0.015)},
	},
	ClusterMemes: {
		Cluster:            ClusterMemes,
		SpacingOptions:     []core.Spacing{core.SpacingGeometric},
		LevelsRange:        [2]int{5, 10},
		ProfitPerGridRange: [2]decimal.Decimal{decimal.NewFromFloat(0.01), decimal.NewFromFloat(0.03)},
	},
}

// CoinProfile is CoinClusterizer's classification output for a
// symbol.
type CoinProfile struct {
	Symbol           string
	Cluster          ClusterPresetName
	ATRPct           float64
	AvgDailyVolume   float64
	MaxGapPct        float64
	VolatilityScore  float64
}

// ClusterizerThresholds tunes the ATR% boundaries between buckets.
type ClusterizerThresholds struct {
	Stable    float64
	BlueChips float64
	Memes     float64
}

// DefaultThresholds matches the boundaries observed across this
// codebase's reference implementations.
var DefaultThresholds = ClusterizerThresholds{Stable: 0.5, BlueChips: 2.0, Memes: 5.0}

// Classify buckets a symbol by ATR% (the mean true range of its last
// 14 candles as a percentage of its average close), then by average
// daily volume and worst single-candle gap
// for the reported volatility score.
func Classify(symbol string, highs, lows, closes, volumes []decimal.Decimal) CoinProfile {
	atrPct := atrPercent(highs, lows, closes)
	avgVolume := avgDailyVolume(volumes, closes)
	maxGap := maxGapPercent(closes)
	score := volatilityScore(atrPct, maxGap)

	return CoinProfile{
		Symbol:          symbol,
		Cluster:         assignCluster(atrPct, DefaultThresholds),
		ATRPct:          atrPct,
		AvgDailyVolume:  avgVolume,
		MaxGapPct:       maxGap,
		VolatilityScore: score,
	}
}

func assignCluster(atrPct float64, th ClusterizerThresholds) ClusterPresetName {
	switch {
	case atrPct < th.Stable:
		return ClusterStable
	case atrPct < th.BlueChips:
		return ClusterBlueChips
	case atrPct >= th.Memes:
		return ClusterMemes
	default:
		return ClusterMidCaps
	}
}

// atrPercent computes ATR as a percentage of the average close,
// avoiding the quantization issues a fixed-precision ATR would hit on
// sub-cent assets.
func atrPercent(highs, lows, closes []decimal.Decimal) float64 {
	if len(highs) < 2 {
		return 0
	}
	period := 14
	if period > len(highs)-1 {
		period = len(highs) - 1
	}

	var trueRanges []float64
	for i := 1; i < len(highs); i++ {
		h, _ := highs[i].Float64()
		l, _ := lows[i].Float64()
		pc, _ := closes[i-1].Float64()
		hl := h - l
		hpc := math.Abs(h - pc)
		lpc := math.Abs(l - pc)
		trueRanges = append(trueRanges, math.Max(hl, math.Max(hpc, lpc)))
	}
	if len(trueRanges) == 0 {
		return 0
	}
	use := period
	if use > len(trueRanges) {
		use = len(trueRanges)
	}
	recent := trueRanges[len(trueRanges)-use:]
	var sum float64
	for _, tr := range recent {
		sum += tr
	}
	atr := sum / float64(use)

	var closeSum float64
	for _, c := range closes {
		f, _ := c.Float64()
		closeSum += f
	}
	avgPrice := closeSum / float64(len(closes))
	if avgPrice == 0 {
		return 0
	}
	return (atr / avgPrice) * 100
}

func avgDailyVolume(volumes, closes []decimal.Decimal) float64 {
	if len(volumes) == 0 {
		return 0
	}
	var volSum, priceSum float64
	for _, v := range volumes {
		f, _ := v.Float64()
		volSum += f
	}
	avgVolume := volSum / float64(len(volumes))
	if len(closes) == 0 {
		return avgVolume
	}
	for _, c := range closes {
		f, _ := c.Float64()
		priceSum += f
	}
	avgPrice := priceSum / float64(len(closes))
	return avgVolume * avgPrice
}

func maxGapPercent(closes []decimal.Decimal) float64 {
	if len(closes) < 2 {
		return 0
	}
	var maxGap float64
	for i := 1; i < len(closes); i++ {
		prev, _ := closes[i-1].Float64()
		cur, _ := closes[i].Float64()
		if prev == 0 {
			continue
		}
		gap := math.Abs(cur-prev) / prev * 100
		if gap > maxGap {
			maxGap = gap
		}
	}
	return maxGap
}

func volatilityScore(atrPct, maxGapPct float64) float64 {
	atrScore := math.Min(atrPct*10, 100)
	gapScore := math.Min(maxGapPct*5, 100)
	return math.Round((atrScore*0.7+gapScore*0.3)*100) / 100
}
