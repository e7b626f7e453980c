// Command optimizer runs a two-phase grid-parameter search for one
// bot's config against a CSV candle series and writes the winning
// trial as a YAML preset. Thin wrapper demonstrating wiring, not part
// of the kernel contract.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"gridkernel/internal/backtest"
	"gridkernel/internal/config"
	"gridkernel/internal/logging"
	"gridkernel/internal/optimizer"
	"gridkernel/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "", "path to the bot config YAML document")
	botName := flag.String("bot", "", "bot name within the config document")
	candlesPath := flag.String("candles", "", "path to a CSV candle file")
	outPath := flag.String("out", "preset.yaml", "path to write the winning preset")
	checkpointDir := flag.String("checkpoint-dir", "", "directory for the trial journal (optional)")
	runID := flag.String("run-id", "", "checkpoint run id (defaults to -bot); reuse it to resume an interrupted run")
	workers := flag.Int("workers", 4, "max concurrent trial workers")
	coarseSteps := flag.Int("coarse-steps", 4, "coarse-phase steps per dimension")
	fineSteps := flag.Int("fine-steps", 4, "fine-phase steps per dimension")
	metricsPort := flag.Int("metrics-port", 0, "serve /metrics on this port while running (0 disables)")
	flag.Parse()

	logger, err := logging.NewZapLogger("info")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}

	if *metricsPort != 0 {
		srv := telemetry.NewServer(*metricsPort, logger)
		srv.Start()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Stop(ctx)
		}()
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

	base := bot.ToGridBacktestConfig(decimal.NewFromInt(10_000), backtest.FeeConfig{
		MakerFee: decimal.NewFromFloat(0.001),
		TakerFee: decimal.NewFromFloat(0.001),
	})
	preset, ok := optimizer.ClusterPresets[optimizer.ClusterPresetName(bot.ClusterPreset)]
	if !ok {
		preset = optimizer.ClusterPresets[optimizer.ClusterMidCaps]
	}

	opt := optimizer.NewOptimizer(*workers)
	if *checkpointDir != "" {
		cp, err := optimizer.NewCheckpoint(*checkpointDir)
		if err != nil {
			logger.Error("opening checkpoint journal", "error", err)
			os.Exit(1)
		}
		opt.Checkpoint = cp
		opt.RunID = *runID
		if opt.RunID == "" {
			opt.RunID = *botName
		}
		logger.Info("checkpoint resume enabled", "run_id", opt.RunID, "dir", *checkpointDir)
	}

	result, err := opt.Optimize(base, candles, preset, optimizer.ObjectiveSharpe, *coarseSteps, *fineSteps)
	if err != nil {
		logger.Error("optimize failed", "error", err)
		os.Exit(1)
	}
	if result.BestTrial == nil {
		logger.Error("no trial succeeded")
		os.Exit(1)
	}

	logger.Info("optimize complete",
		"bot", *botName,
		"coarse_trials", result.CoarseTrials,
		"fine_trials", result.FineTrials,
		"best_objective", result.BestTrial.ObjectiveValue.String(),
	)

	out, err := optimizer.PresetFromTrial(result.BestTrial).ToYAML()
	if err != nil {
		logger.Error("rendering preset", "error", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*outPath, out, 0o644); err != nil {
		logger.Error("writing preset", "error", err)
		os.Exit(1)
	}
	logger.Info("preset written", "path", *outPath)
}
