// Package config handles configuration management with validation for
// the per-bot TradingCoreConfig document described in spec.md §6: a
// human-editable hierarchical document enumerating, per bot, symbol,
// strategy kind, and the grid/dca/hybrid/risk subconfigs.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"gridkernel/internal/backtest"
	"gridkernel/internal/core"
	"gridkernel/internal/grid"
)

// StrategyKind is the recognized top-level strategy selector.
type StrategyKind string

const (
	StrategyGrid          StrategyKind = "grid"
	StrategyDCA           StrategyKind = "dca"
	StrategyHybrid        StrategyKind = "hybrid"
	StrategyTrendFollower StrategyKind = "trend_follower"
)

// VolatilityMode selects a named parameter envelope or a custom one.
type VolatilityMode string

const (
	VolatilityLow    VolatilityMode = "low"
	VolatilityMedium VolatilityMode = "medium"
	VolatilityHigh   VolatilityMode = "high"
	VolatilityCustom VolatilityMode = "custom"
)

// ClusterPresetName selects a parameter-range bundle for the
// optimizer's coarse search phase.
type ClusterPresetName string

const (
	ClusterBlueChips ClusterPresetName = "blue_chips"
	ClusterMidCaps   ClusterPresetName = "mid_caps"
	ClusterMemes     ClusterPresetName = "memes"
	ClusterStable    ClusterPresetName = "stable"
)

// Document is the top-level config file: one entry per bot.
type Document struct {
	Bots map[string]BotConfig `yaml:"bots"`
}

// BotConfig describes one bot's strategy wiring.
type BotConfig struct {
	Symbol         string            `yaml:"symbol" validate:"required"`
	StrategyKind   StrategyKind      `yaml:"strategy_kind" validate:"required,oneof=grid dca hybrid trend_follower"`
	DryRun         bool              `yaml:"dry_run"`
	Leverage       float64           `yaml:"leverage" validate:"min=1"`
	VolatilityMode VolatilityMode    `yaml:"volatility_mode"`
	ClusterPreset  ClusterPresetName `yaml:"cluster_preset"`
	Grid           GridSubConfig     `yaml:"grid"`
	DCA            DCASubConfig      `yaml:"dca"`
	Hybrid         HybridSubConfig   `yaml:"hybrid"`
	Risk           RiskSubConfig     `yaml:"risk"`

	Credentials ExchangeCredentials `yaml:"credentials"`
}

// ExchangeCredentials holds the secrets an ExecutionLayer needs to
// authenticate with the live exchange. Never logged in clear text.
type ExchangeCredentials struct {
	APIKey    Secret `yaml:"api_key"`
	SecretKey Secret `yaml:"secret_key"`
}

// GridSubConfig mirrors the grid.Config fields a bot needs plus the
// bounds/ATR derivation knobs only the config layer cares about.
type GridSubConfig struct {
	Spacing       string            `yaml:"spacing" validate:"oneof=arithmetic geometric"`
	NumLevels     int               `yaml:"num_levels" validate:"min=2"`
	AmountPerGrid float64           `yaml:"amount_per_grid" validate:"min=0"`
	ProfitPerGrid float64           `yaml:"profit_per_grid" validate:"min=0"`
	UpperPrice    float64           `yaml:"upper_price"`
	LowerPrice    float64           `yaml:"lower_price"`
	ATRPeriod     int               `yaml:"atr_period"`
	ATRMultiplier float64           `yaml:"atr_multiplier"`
	DirectionBias string            `yaml:"direction_bias" validate:"oneof=long short neutral"`
	Trailing      TrailingSubConfig `yaml:"trailing"`
}

// TrailingSubConfig configures C9's shift behavior.
type TrailingSubConfig struct {
	Enabled           bool    `yaml:"enabled"`
	ShiftThresholdPct float64 `yaml:"shift_threshold_pct" validate:"min=0"`
	CooldownCandles   int     `yaml:"cooldown_candles" validate:"min=0"`
	RecenterMode      string  `yaml:"recenter_mode" validate:"oneof=fixed atr"`
}

// DCASubConfig configures the deal/safety-order schedule and signal
// gating.
type DCASubConfig struct {
	BaseVolume            float64 `yaml:"base_volume" validate:"min=0"`
	MaxSafetyOrders       int     `yaml:"max_safety_orders" validate:"min=0"`
	SOStepPct             float64 `yaml:"so_step_pct" validate:"min=0"`
	SOStepMultiplier      float64 `yaml:"so_step_multiplier" validate:"min=0"`
	SOVolumeMultiplier    float64 `yaml:"so_volume_multiplier" validate:"min=0"`
	TakeProfitPct         float64 `yaml:"take_profit_pct" validate:"min=0"`
	MinConfluenceScore    float64 `yaml:"min_confluence_score" validate:"min=0,max=1"`
	TrailingActivationPct float64 `yaml:"trailing_activation_pct" validate:"min=0"`
	TrailingPct           float64 `yaml:"trailing_pct" validate:"min=0"`
}

// HybridSubConfig configures the ADX-routing thresholds.
type HybridSubConfig struct {
	ADXThreshold float64 `yaml:"adx_threshold" validate:"min=0,max=100"`
	AllowBoth    bool    `yaml:"allow_both"`
	Tolerance    float64 `yaml:"tolerance" validate:"min=0"`
}

// RiskSubConfig configures RiskManager thresholds.
type RiskSubConfig struct {
	GridStopLossPct float64 `yaml:"grid_stop_loss_pct" validate:"min=0,max=1"`
	MaxDrawdownPct  float64 `yaml:"max_drawdown_pct" validate:"min=0,max=1"`
	MaxDailyLossPct float64 `yaml:"max_daily_loss_pct" validate:"min=0,max=1"`
	MaxPositionSize float64 `yaml:"max_position_size" validate:"min=0"`
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

// LoadConfig loads a Document from a YAML file with environment
// variable expansion applied before parsing.
func LoadConfig(filename string) (*Document, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var doc Document
	if err := yaml.Unmarshal([]byte(expandedData), &doc); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &doc, nil
}

// Validate checks every bot config for required fields and
// recognized enum values.
func (d *Document) Validate() error {
	if len(d.Bots) == 0 {
		return ValidationError{Field: "bots", Message: "at least one bot must be configured"}
	}

	var errs []string
	for name, bot := range d.Bots {
		if err := bot.validate(name); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errs, "\n"))
	}
	return nil
}

func (b *BotConfig) validate(name string) error {
	if b.Symbol == "" {
		return ValidationError{Field: fmt.Sprintf("bots.%s.symbol", name), Message: "symbol is required"}
	}

	switch b.StrategyKind {
	case StrategyGrid, StrategyDCA, StrategyHybrid, StrategyTrendFollower:
	default:
		return ValidationError{
			Field:   fmt.Sprintf("bots.%s.strategy_kind", name),
			Value:   b.StrategyKind,
			Message: "must be one of: grid, dca, hybrid, trend_follower",
		}
	}

	if b.Leverage != 0 && b.Leverage < 1 {
		return ValidationError{Field: fmt.Sprintf("bots.%s.leverage", name), Value: b.Leverage, Message: "leverage must be >= 1 when set"}
	}

	if b.StrategyKind == StrategyGrid || b.StrategyKind == StrategyHybrid {
		if b.Grid.NumLevels != 0 && b.Grid.NumLevels < 2 {
			return ValidationError{Field: fmt.Sprintf("bots.%s.grid.num_levels", name), Value: b.Grid.NumLevels, Message: "num_levels must be >= 2"}
		}
		if b.Grid.Spacing != "" && b.Grid.Spacing != "arithmetic" && b.Grid.Spacing != "geometric" {
			return ValidationError{Field: fmt.Sprintf("bots.%s.grid.spacing", name), Value: b.Grid.Spacing, Message: "must be arithmetic or geometric"}
		}
	}

	return nil
}

// ToGridBacktestConfig projects a grid/hybrid bot's config into the
// shape BacktestSimulator.Run and Optimizer.Optimize need. initialBalance
// and fees aren't part of the per-bot document (they're run-level
// concerns supplied by the cmd wrapper), so callers pass them in.
func (b *BotConfig) ToGridBacktestConfig(initialBalance decimal.Decimal, fees backtest.FeeConfig) backtest.GridBacktestConfig {
	return backtest.GridBacktestConfig{
		Symbol:         b.Symbol,
		InitialBalance: initialBalance,
		Fees:           fees,

		NumLevels:     b.Grid.NumLevels,
		Spacing:       core.Spacing(b.Grid.Spacing),
		AmountPerGrid: decimal.NewFromFloat(b.Grid.AmountPerGrid),
		ProfitPerGrid: decimal.NewFromFloat(b.Grid.ProfitPerGrid),
		Direction:     core.DirectionBias(b.Grid.DirectionBias),

		AutoBounds:    b.Grid.UpperPrice == 0 && b.Grid.LowerPrice == 0,
		UpperPrice:    decimal.NewFromFloat(b.Grid.UpperPrice),
		LowerPrice:    decimal.NewFromFloat(b.Grid.LowerPrice),
		ATRPeriod:     b.Grid.ATRPeriod,
		ATRMultiplier: decimal.NewFromFloat(b.Grid.ATRMultiplier),

		StopLossPct:    decimal.NewFromFloat(b.Risk.GridStopLossPct),
		MaxDrawdownPct: decimal.NewFromFloat(b.Risk.MaxDrawdownPct),

		TrailingEnabled:         b.Grid.Trailing.Enabled,
		TrailingShiftThreshold:  decimal.NewFromFloat(b.Grid.Trailing.ShiftThresholdPct),
		TrailingCooldownCandles: b.Grid.Trailing.CooldownCandles,
		TrailingRecenterMode:    grid.RecenterMode(b.Grid.Trailing.RecenterMode),
	}
}

// String returns a YAML representation of the document; credentials
// self-redact via Secret's MarshalYAML.
func (d *Document) String() string {
	data, _ := yaml.Marshal(d)
	return string(data)
}

func expandEnvVars(s string) string {
	return os.Expand(s, func(key string) string {
		return os.Getenv(key)
	})
}
