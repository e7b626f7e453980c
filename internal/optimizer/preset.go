package optimizer

import (
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// DecimalString wraps a decimal.Decimal so it marshals to YAML as a
// plain string instead of yaml.v3's default float encoding, which
// would round-trip through float64 and risk losing precision on
// re-parse.
type DecimalString decimal.Decimal

// MarshalYAML implements yaml.Marshaler.
func (d DecimalString) MarshalYAML() (interface{}, error) {
	return decimal.Decimal(d).String(), nil
}

// Preset is the YAML-serializable projection of a winning trial: the
// recognized key set a live bot's config loader consumes.
type Preset struct {
	Symbol         string        `yaml:"symbol"`
	NumLevels      int           `yaml:"num_levels"`
	Spacing        string        `yaml:"spacing"`
	AmountPerGrid  DecimalString `yaml:"amount_per_grid"`
	ProfitPerGrid  DecimalString `yaml:"profit_per_grid"`
	Direction      string        `yaml:"direction"`
	AutoBounds     bool          `yaml:"auto_bounds"`
	UpperPrice     DecimalString `yaml:"upper_price"`
	LowerPrice     DecimalString `yaml:"lower_price"`
	StopLossPct    DecimalString `yaml:"stop_loss_pct"`
	MaxDrawdownPct DecimalString `yaml:"max_drawdown_pct"`
	ObjectiveValue DecimalString `yaml:"objective_value"`
}

// PresetFromTrial projects t's defining config and outcome into the
// recognized preset key set.
func PresetFromTrial(t *Trial) Preset {
	cfg := t.Config
	return Preset{
		Symbol:         cfg.Symbol,
		NumLevels:      cfg.NumLevels,
		Spacing:        string(cfg.Spacing),
		AmountPerGrid:  DecimalString(cfg.AmountPerGrid),
		ProfitPerGrid:  DecimalString(cfg.ProfitPerGrid),
		Direction:      string(cfg.Direction),
		AutoBounds:     cfg.AutoBounds,
		UpperPrice:     DecimalString(cfg.UpperPrice),
		LowerPrice:     DecimalString(cfg.LowerPrice),
		StopLossPct:    DecimalString(cfg.StopLossPct),
		MaxDrawdownPct: DecimalString(cfg.MaxDrawdownPct),
		ObjectiveValue: DecimalString(t.ObjectiveValue),
	}
}

// ToYAML renders p in the recognized preset format.
func (p Preset) ToYAML() ([]byte, error) {
	return yaml.Marshal(p)
}
