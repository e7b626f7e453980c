// Command backtest replays one bot's grid config from a config
// document over a CSV candle series and prints the resulting
// core.BacktestResult as JSON. It is a thin wrapper demonstrating how
// the kernel's packages wire together, not part of the kernel
// contract itself.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/shopspring/decimal"

	"gridkernel/internal/backtest"
	"gridkernel/internal/config"
	"gridkernel/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "path to the bot config YAML document")
	botName := flag.String("bot", "", "bot name within the config document")
	candlesPath := flag.String("candles", "", "path to a CSV candle file")
	flag.Parse()

	logger, err := logging.NewZapLogger("info")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}

	if *configPath == "" || *botName == "" || *candlesPath == "" {
		logger.Error("missing required flag", "config", *configPath, "bot", *botName, "candles", *candlesPath)
		os.Exit(1)
	}

	doc, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Error("loading config", "error", err)
		os.Exit(1)
	}
	bot, ok := doc.Bots[*botName]
	if !ok {
		logger.Error("bot not found in config", "bot", *botName)
		os.Exit(1)
	}

	f, err := os.Open(*candlesPath)
	if err != nil {
		logger.Error("opening candles file", "error", err)
		os.Exit(1)
	}
	defer f.Close()

	candles, err := backtest.LoadCandlesCSV(f)
	if err != nil {
		logger.Error("loading candles", "error", err)
		os.Exit(1)
	}

	cfg := bot.ToGridBacktestConfig(decimal.NewFromInt(10_000), backtest.FeeConfig{
		MakerFee: decimal.NewFromFloat(0.001),
		TakerFee: decimal.NewFromFloat(0.001),
	})
	sim := backtest.NewBacktestSimulator(cfg)

	result, err := sim.Run(candles)
	if err != nil {
		logger.Error("backtest run failed", "error", err)
		os.Exit(1)
	}

	logger.Info("backtest complete",
		"bot", *botName,
		"candles", len(candles),
		"total_pnl", result.TotalPnL.String(),
		"total_trades", len(result.TradeHistory),
	)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		logger.Error("encoding result", "error", err)
		os.Exit(1)
	}
}
