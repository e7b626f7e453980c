package grid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrailingGridManager_ShiftUnderBreakout(t *testing.T) {
	// Mirrors scenario S3: bounds 44000/46000, shift threshold 0.02,
	// cooldown 3 candles. A breakout to 47000 should shift once;
	// feeding candles in cooldown must not shift again until it
	// elapses, then a further breakout shifts a second time.
	m := NewTrailingGridManager(dec("0.02"), RecenterFixed, 3, 14, dec("3"))
	cfg := Config{Upper: dec("46000"), Lower: dec("44000"), NumLevels: 5, AmountPerGrid: dec("100"), ProfitPerGrid: dec("0.01")}

	upper, lower := cfg.Upper, cfg.Lower

	newCfg := m.CheckAndShift(dec("47000"), upper, lower, cfg, nil, nil, nil)
	require.NotNil(t, newCfg)
	assert.Equal(t, 1, m.ShiftCount())
	upper, lower = newCfg.Upper, newCfg.Lower

	// Three candles around the new center while cooldown is active:
	// no further shift.
	for i := 0; i < 3; i++ {
		got := m.CheckAndShift(dec("47000"), upper, lower, *newCfg, nil, nil, nil)
		assert.Nil(t, got)
		m.Tick()
	}

	// A further breakout to 49000 after cooldown elapses shifts again.
	newCfg2 := m.CheckAndShift(dec("49000"), upper, lower, *newCfg, nil, nil, nil)
	require.NotNil(t, newCfg2)
	assert.Equal(t, 2, m.ShiftCount())
}

func TestTrailingGridManager_NoShiftWithinThreshold(t *testing.T) {
	m := NewTrailingGridManager(dec("0.02"), RecenterFixed, 3, 14, dec("3"))
	cfg := Config{Upper: dec("46000"), Lower: dec("44000")}
	got := m.CheckAndShift(dec("46030"), cfg.Upper, cfg.Lower, cfg, nil, nil, nil)
	assert.Nil(t, got)
	assert.Equal(t, 0, m.ShiftCount())
}

func TestTrailingGridManager_LowerClampedToEpsilon(t *testing.T) {
	m := NewTrailingGridManager(dec("0.01"), RecenterFixed, 0, 14, dec("3"))
	cfg := Config{Upper: dec("100"), Lower: dec("10")}
	got := m.CheckAndShift(dec("5"), cfg.Upper, cfg.Lower, cfg, nil, nil, nil)
	require.NotNil(t, got)
	assert.True(t, got.Lower.GreaterThan(dec("0")))
	assert.True(t, got.Lower.Equal(epsilon))
}
