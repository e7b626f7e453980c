package backtest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCandlesCSVTimestampLayout(t *testing.T) {
	csv := "timestamp,open,high,low,close,volume\n" +
		"1704067200,100,105,95,102,1000\n" +
		"1704070800,102,108,101,107,1100\n"

	candles, err := LoadCandlesCSV(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Equal(t, "100", candles[0].Open.String())
	assert.Equal(t, "107", candles[1].Close.String())
	assert.Equal(t, int64(1704067200), candles[0].Timestamp.Unix())
}

func TestLoadCandlesCSVRFC3339Timestamp(t *testing.T) {
	csv := "timestamp,open,high,low,close\n" +
		"2024-01-01T00:00:00Z,100,105,95,102\n"

	candles, err := LoadCandlesCSV(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, candles, 1)
	assert.Equal(t, 2024, candles[0].Timestamp.Year())
}

func TestLoadCandlesCSVDateLayout(t *testing.T) {
	csv := "date,open,high,low,close\n" +
		"2024-01-01,100,105,95,102\n" +
		"2024-01-02 12:00:00,102,108,101,107\n"

	candles, err := LoadCandlesCSV(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Equal(t, 1, int(candles[0].Timestamp.Month()))
	assert.Equal(t, 12, candles[1].Timestamp.Hour())
}

func TestLoadCandlesCSVMissingColumnsErrors(t *testing.T) {
	csv := "date,open,high,close\n2024-01-01,100,105,102\n"
	_, err := LoadCandlesCSV(strings.NewReader(csv))
	assert.Error(t, err)
}

func TestLoadCandlesCSVNoTimeColumnErrors(t *testing.T) {
	csv := "open,high,low,close\n100,105,95,102\n"
	_, err := LoadCandlesCSV(strings.NewReader(csv))
	assert.Error(t, err)
}

func TestLoadCandlesCSVBadRowErrors(t *testing.T) {
	csv := "timestamp,open,high,low,close\n1704067200,notanumber,105,95,102\n"
	_, err := LoadCandlesCSV(strings.NewReader(csv))
	assert.Error(t, err)
}
