package backtest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// LoadCandlesCSV parses OHLCV candles from r, recognizing two header
// layouts: a "timestamp,open,high,low,close" layout (timestamp as a
// unix-seconds integer or RFC3339 string) from exchange-exported
// data, and a "date,open,high,low,close" layout (date as
// "2006-01-02" or "2006-01-02 15:04:05") from archival dumps. Extra
// columns (e.g. volume) are ignored. Candles are returned in file
// order; callers needing ascending time order must sort first if the
// source isn't already sorted.
func LoadCandlesCSV(r io.Reader) ([]Candle, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("backtest: reading csv header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}

	tsCol, hasTimestamp := cols["timestamp"]
	dateCol, hasDate := cols["date"]
	if !hasTimestamp && !hasDate {
		return nil, fmt.Errorf("backtest: csv header has neither a timestamp nor a date column")
	}
	openCol, okOpen := cols["open"]
	highCol, okHigh := cols["high"]
	lowCol, okLow := cols["low"]
	closeCol, okClose := cols["close"]
	if !okOpen || !okHigh || !okLow || !okClose {
		return nil, fmt.Errorf("backtest: csv header missing one of open/high/low/close")
	}

	var candles []Candle
	for rowNum := 2; ; rowNum++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("backtest: reading csv row %d: %w", rowNum, err)
		}

		var ts time.Time
		if hasTimestamp {
			ts, err = parseTimestampCell(row[tsCol])
		} else {
			ts, err = parseDateCell(row[dateCol])
		}
		if err != nil {
			return nil, fmt.Errorf("backtest: row %d: parsing timestamp: %w", rowNum, err)
		}

		open, err := decimal.NewFromString(row[openCol])
		if err != nil {
			return nil, fmt.Errorf("backtest: row %d: parsing open: %w", rowNum, err)
		}
		high, err := decimal.NewFromString(row[highCol])
		if err != nil {
			return nil, fmt.Errorf("backtest: row %d: parsing high: %w", rowNum, err)
		}
		low, err := decimal.NewFromString(row[lowCol])
		if err != nil {
			return nil, fmt.Errorf("backtest: row %d: parsing low: %w", rowNum, err)
		}
		closePrice, err := decimal.NewFromString(row[closeCol])
		if err != nil {
			return nil, fmt.Errorf("backtest: row %d: parsing close: %w", rowNum, err)
		}

		candles = append(candles, Candle{
			Timestamp: ts,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePrice,
		})
	}
	return candles, nil
}

func parseTimestampCell(s string) (time.Time, error) {
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("neither unix seconds nor RFC3339: %w", err)
	}
	return t.UTC(), nil
}

var dateLayouts = []string{"2006-01-02 15:04:05", "2006-01-02"}

func parseDateCell(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		} else {
			lastErr = err
		}
	}
	return time.Time{}, lastErr
}
