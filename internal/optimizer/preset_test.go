package optimizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"gridkernel/internal/core"
)

func TestPresetFromTrialRoundTripsThroughYAML(t *testing.T) {
	cfg := testBaseConfig()
	cfg.Spacing = core.SpacingGeometric
	cfg.Direction = core.DirectionLong
	cfg.NumLevels = 12
	cfg.ProfitPerGrid = dec("0.01")

	trial := &Trial{Config: cfg, ObjectiveValue: dec("3.5")}
	preset := PresetFromTrial(trial)

	out, err := preset.ToYAML()
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, yaml.Unmarshal(out, &decoded))

	assert.Equal(t, "geometric", decoded["spacing"])
	assert.Equal(t, "long", decoded["direction"])
	assert.Equal(t, 12, decoded["num_levels"])
	// decimals must round-trip as strings, not floats, to avoid
	// precision loss.
	assert.Equal(t, "0.01", decoded["profit_per_grid"])
	assert.Equal(t, "3.5", decoded["objective_value"])
}
