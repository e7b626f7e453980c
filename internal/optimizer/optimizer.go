package optimizer

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"gridkernel/internal/backtest"
	"gridkernel/internal/core"
	"gridkernel/pkg/concurrency"
)

// Objective selects which BacktestResult field a trial is ranked by.
type Objective string

// negInfPenalty stands in for -infinity since decimal.Decimal has no
// such representation; it is far below any realistic objective value.
var negInfPenalty = decimal.NewFromInt(-1_000_000_000)

const (
	ObjectiveROI          Objective = "roi"
	ObjectiveSharpe       Objective = "sharpe"
	ObjectiveCalmar       Objective = "calmar"
	ObjectiveProfitFactor Objective = "profit_factor"
)

// Trial is one evaluated point of the search space.
type Trial struct {
	TrialID        int
	Config         backtest.GridBacktestConfig
	Result         core.BacktestResult
	ObjectiveValue decimal.Decimal
	Failed         bool
	FailureReason  string
}

// ToSummary returns a JSON-friendly projection of the trial's
// defining parameters and outcome, for checkpointing and reporting.
func (t Trial) ToSummary() map[string]interface{} {
	return map[string]interface{}{
		"trial_id":         t.TrialID,
		"objective_value":  t.ObjectiveValue.String(),
		"num_levels":       t.Config.NumLevels,
		"profit_per_grid":  t.Config.ProfitPerGrid.String(),
		"spacing":          string(t.Config.Spacing),
		"total_return_pct": t.Result.TotalReturnPct.String(),
	}
}

// trialSummary is the typed counterpart of ToSummary, used to restore
// a checkpoint-resumed trial without replaying its backtest.
type trialSummary struct {
	ObjectiveValue string `json:"objective_value"`
	TotalReturnPct string `json:"total_return_pct"`
}

// trialFromSummary rebuilds a Trial from a prior run's checkpointed
// summary. cfg is the config the current run already computed for this
// hash (the checkpoint only needs to attest the outcome, not
// re-describe the parameters that produced it).
func trialFromSummary(raw json.RawMessage, trialID int, cfg backtest.GridBacktestConfig) (*Trial, error) {
	var s trialSummary
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("optimizer: decoding checkpoint summary: %w", err)
	}
	objectiveValue, err := decimal.NewFromString(s.ObjectiveValue)
	if err != nil {
		return nil, fmt.Errorf("optimizer: decoding checkpoint objective_value: %w", err)
	}
	totalReturnPct, err := decimal.NewFromString(s.TotalReturnPct)
	if err != nil {
		return nil, fmt.Errorf("optimizer: decoding checkpoint total_return_pct: %w", err)
	}
	return &Trial{
		TrialID:        trialID,
		Config:         cfg,
		Result:         core.BacktestResult{TotalReturnPct: totalReturnPct},
		ObjectiveValue: objectiveValue,
	}, nil
}

// Result is the outcome of a full coarse+fine optimization run.
type Result struct {
	BestTrial    *Trial
	AllTrials    []*Trial
	CoarseTrials int
	FineTrials   int
}

// TopN returns the n trials with the highest objective value,
// descending, skipping failed trials.
func (r *Result) TopN(n int) []*Trial {
	ranked := make([]*Trial, 0, len(r.AllTrials))
	for _, t := range r.AllTrials {
		if !t.Failed {
			ranked = append(ranked, t)
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		return ranked[i].ObjectiveValue.GreaterThan(ranked[j].ObjectiveValue)
	})
	if n > len(ranked) {
		n = len(ranked)
	}
	return ranked[:n]
}

// ParamImpact buckets every successful trial's objective value by the
// value it used for num_levels and profit_per_grid, returning the
// spread (max-min average objective) observed per parameter — a
// cheap signal for which parameter the search was most sensitive to.
func (r *Result) ParamImpact() map[string]decimal.Decimal {
	byLevels := make(map[int][]decimal.Decimal)
	byProfit := make(map[string][]decimal.Decimal)
	for _, t := range r.AllTrials {
		if t.Failed {
			continue
		}
		byLevels[t.Config.NumLevels] = append(byLevels[t.Config.NumLevels], t.ObjectiveValue)
		key := t.Config.ProfitPerGrid.String()
		byProfit[key] = append(byProfit[key], t.ObjectiveValue)
	}
	return map[string]decimal.Decimal{
		"num_levels":      spreadOfAverages(byLevelsValues(byLevels)),
		"profit_per_grid": spreadOfAverages(byProfitValues(byProfit)),
	}
}

func byLevelsValues(m map[int][]decimal.Decimal) [][]decimal.Decimal {
	out := make([][]decimal.Decimal, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}

func byProfitValues(m map[string][]decimal.Decimal) [][]decimal.Decimal {
	out := make([][]decimal.Decimal, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}

func spreadOfAverages(groups [][]decimal.Decimal) decimal.Decimal {
	if len(groups) == 0 {
		return decimal.Zero
	}
	var min, max decimal.Decimal
	for i, g := range groups {
		avg := average(g)
		if i == 0 || avg.LessThan(min) {
			min = avg
		}
		if i == 0 || avg.GreaterThan(max) {
			max = avg
		}
	}
	return max.Sub(min)
}

func average(xs []decimal.Decimal) decimal.Decimal {
	if len(xs) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, x := range xs {
		sum = sum.Add(x)
	}
	return sum.Div(decimal.NewFromInt(int64(len(xs))))
}

// Optimizer runs a two-phase (coarse then fine) grid search over a
// ClusterPreset's parameter ranges, replaying each candidate config
// through BacktestSimulator (C13).
type Optimizer struct {
	MaxWorkers int
	Cache      *IndicatorCache
	Checkpoint *Checkpoint
	RunID      string
}

// NewOptimizer constructs an Optimizer. maxWorkers <= 1 runs trials
// sequentially.
func NewOptimizer(maxWorkers int) *Optimizer {
	return &Optimizer{MaxWorkers: maxWorkers}
}

// Optimize runs the coarse phase across preset's full ranges stepped
// coarseSteps times per dimension, then a fine phase stepped
// fineSteps times around the coarse winner's neighborhood.
func (o *Optimizer) Optimize(base backtest.GridBacktestConfig, candles []backtest.Candle, preset ClusterPreset, objective Objective, coarseSteps, fineSteps int) (*Result, error) {
	if coarseSteps < 1 {
		coarseSteps = 1
	}
	if fineSteps < 1 {
		fineSteps = 1
	}

	base = o.withCachedBounds(base, candles)

	coarseConfigs := expandGrid(base, preset, preset.LevelsRange, preset.ProfitPerGridRange, coarseSteps)
	coarseTrials, err := o.runTrials(coarseConfigs, candles, objective, 0)
	if err != nil {
		return nil, err
	}

	result := &Result{AllTrials: coarseTrials, CoarseTrials: len(coarseTrials)}
	best := bestOf(coarseTrials)

	if best != nil && fineSteps > 0 {
		levelsWindow := narrowIntRange(preset.LevelsRange, best.Config.NumLevels, coarseSteps)
		profitWindow := narrowDecimalRange(preset.ProfitPerGridRange, best.Config.ProfitPerGrid, coarseSteps)

		fineConfigs := expandGrid(base, preset, levelsWindow, profitWindow, fineSteps)
		fineTrials, err := o.runTrials(fineConfigs, candles, objective, len(coarseTrials))
		if err != nil {
			return nil, err
		}
		result.AllTrials = append(result.AllTrials, fineTrials...)
		result.FineTrials = len(fineTrials)
		if fb := bestOf(fineTrials); fb != nil && (best == nil || fb.ObjectiveValue.GreaterThan(best.ObjectiveValue)) {
			best = fb
		}
	}

	result.BestTrial = best

	if o.Checkpoint != nil && o.RunID != "" {
		if err := o.Checkpoint.Cleanup(o.RunID); err != nil {
			return nil, fmt.Errorf("optimizer: cleaning up checkpoint: %w", err)
		}
	}

	return result, nil
}

// withCachedBounds resolves an ATR-derived auto-bounds config to a
// fixed upper/lower pair once per candle window and memoizes it, since
// every trial in a single Optimize call replays the same window: every
// coarse and fine trial would otherwise recompute an identical ATR.
func (o *Optimizer) withCachedBounds(base backtest.GridBacktestConfig, candles []backtest.Candle) backtest.GridBacktestConfig {
	if !base.AutoBounds {
		return base
	}

	closes := make([]decimal.Decimal, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	key := MakeCacheKey("grid_bounds", HashData(closes), map[string]interface{}{
		"atr_period":     base.ATRPeriod,
		"atr_multiplier": base.ATRMultiplier.String(),
		"direction":      string(base.Direction),
	})

	compute := func() interface{} {
		upper, lower := backtest.CalculateGridBounds(base, candles)
		return [2]decimal.Decimal{upper, lower}
	}

	var bounds [2]decimal.Decimal
	if o.Cache != nil {
		bounds = o.Cache.GetOrCompute(key, compute).([2]decimal.Decimal)
	} else {
		bounds = compute().([2]decimal.Decimal)
	}

	base.AutoBounds = false
	base.UpperPrice, base.LowerPrice = bounds[0], bounds[1]
	return base
}

// runTrials evaluates configs, optionally in parallel, skipping any
// whose config hash is already present in the checkpoint journal and
// recording every new result as it completes.
func (o *Optimizer) runTrials(configs []backtest.GridBacktestConfig, candles []backtest.Candle, objective Objective, startID int) ([]*Trial, error) {
	var completed map[string]json.RawMessage
	if o.Checkpoint != nil && o.RunID != "" {
		loaded, err := o.Checkpoint.LoadCompleted(o.RunID)
		if err != nil {
			return nil, fmt.Errorf("optimizer: loading checkpoint: %w", err)
		}
		completed = loaded
	}

	trials := make([]*Trial, len(configs))

	run := func(i int) {
		cfg := configs[i]
		trial := &Trial{TrialID: startID + i, Config: cfg}
		defer func() {
			if r := recover(); r != nil {
				trial.Failed = true
				trial.FailureReason = fmt.Sprintf("panic: %v", r)
				trials[i] = trial
			}
		}()

		hash, hashErr := ConfigHash(summarizeConfig(cfg))
		if hashErr == nil {
			if raw, skip := completed[hash]; skip {
				if restored, rerr := trialFromSummary(raw, startID+i, cfg); rerr == nil {
					trials[i] = restored
					return
				}
				// Corrupt or unreadable checkpoint entry for this hash:
				// fall through and recompute the trial instead of losing it.
			}
		}

		result, err := backtest.NewBacktestSimulator(cfg).Run(candles)
		if err != nil {
			trial.Failed = true
			trial.FailureReason = err.Error()
			trials[i] = trial
			return
		}

		trial.Result = result
		trial.ObjectiveValue = objectiveValue(objective, result)
		trials[i] = trial

		if o.Checkpoint != nil && o.RunID != "" && hashErr == nil {
			_ = o.Checkpoint.SaveTrial(o.RunID, trial.TrialID, hash, trial.ToSummary())
		}
	}

	if o.MaxWorkers <= 1 {
		for i := range configs {
			run(i)
		}
		return trials, nil
	}

	pool := concurrency.NewWorkerPool(concurrency.PoolConfig{
		Name:        "optimizer",
		MaxWorkers:  o.MaxWorkers,
		MaxCapacity: len(configs) + 1,
	}, noopLogger{})
	defer pool.Stop()

	// errgroup is the phase barrier: every trial's pooled task must
	// finish before runTrials hands the phase's results back to
	// Optimize, which needs them all before it can pick a coarse
	// winner and narrow the fine-phase window.
	var g errgroup.Group
	for i := range configs {
		i := i
		g.Go(func() error {
			done := make(chan struct{})
			if err := pool.Submit(func() {
				run(i)
				close(done)
			}); err != nil {
				return err
			}
			<-done
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("optimizer: running trial pool: %w", err)
	}

	return trials, nil
}

func objectiveValue(objective Objective, result core.BacktestResult) decimal.Decimal {
	var v decimal.Decimal
	switch objective {
	case ObjectiveSharpe:
		v = result.Sharpe
	case ObjectiveCalmar:
		v = result.Calmar
	case ObjectiveProfitFactor:
		v = result.ProfitFactor
	default: // ObjectiveROI
		v = result.TotalReturnPct
	}
	f, _ := v.Float64()
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return negInfPenalty // penalize non-finite objectives to -inf
	}
	return v
}

func bestOf(trials []*Trial) *Trial {
	var best *Trial
	for _, t := range trials {
		if t.Failed {
			continue
		}
		if best == nil || t.ObjectiveValue.GreaterThan(best.ObjectiveValue) {
			best = t
		}
	}
	return best
}

// expandGrid builds the cartesian product of spacing options and
// `steps` evenly spaced points across levelsRange and profitRange.
func expandGrid(base backtest.GridBacktestConfig, preset ClusterPreset, levelsRange [2]int, profitRange [2]decimal.Decimal, steps int) []backtest.GridBacktestConfig {
	levels := stepInts(levelsRange, steps)
	profits := stepDecimals(profitRange, steps)

	spacings := preset.SpacingOptions
	if len(spacings) == 0 {
		spacings = []core.Spacing{core.SpacingArithmetic}
	}

	var configs []backtest.GridBacktestConfig
	for _, sp := range spacings {
		for _, lvl := range levels {
			for _, pp := range profits {
				cfg := base
				cfg.Spacing = sp
				cfg.NumLevels = lvl
				cfg.ProfitPerGrid = pp
				configs = append(configs, cfg)
			}
		}
	}
	return configs
}

func stepInts(r [2]int, steps int) []int {
	if steps <= 1 || r[1] <= r[0] {
		return []int{r[0]}
	}
	out := make([]int, 0, steps)
	for i := 0; i < steps; i++ {
		v := r[0] + (r[1]-r[0])*i/(steps-1)
		out = append(out, v)
	}
	return dedupeInts(out)
}

func dedupeInts(xs []int) []int {
	seen := make(map[int]bool, len(xs))
	out := xs[:0]
	for _, x := range xs {
		if !seen[x] {
			seen[x] = true
			out = append(out, x)
		}
	}
	return out
}

func stepDecimals(r [2]decimal.Decimal, steps int) []decimal.Decimal {
	if steps <= 1 || !r[1].GreaterThan(r[0]) {
		return []decimal.Decimal{r[0]}
	}
	span := r[1].Sub(r[0])
	out := make([]decimal.Decimal, 0, steps)
	for i := 0; i < steps; i++ {
		frac := decimal.NewFromInt(int64(i)).Div(decimal.NewFromInt(int64(steps - 1)))
		out = append(out, r[0].Add(span.Mul(frac)))
	}
	return out
}

func narrowIntRange(full [2]int, center, steps int) [2]int {
	span := (full[1] - full[0]) / (steps + 1)
	if span < 1 {
		span = 1
	}
	lo, hi := center-span, center+span
	if lo < full[0] {
		lo = full[0]
	}
	if hi > full[1] {
		hi = full[1]
	}
	return [2]int{lo, hi}
}

func narrowDecimalRange(full [2]decimal.Decimal, center decimal.Decimal, steps int) [2]decimal.Decimal {
	span := full[1].Sub(full[0]).Div(decimal.NewFromInt(int64(steps + 1)))
	lo, hi := center.Sub(span), center.Add(span)
	if lo.LessThan(full[0]) {
		lo = full[0]
	}
	if hi.GreaterThan(full[1]) {
		hi = full[1]
	}
	return [2]decimal.Decimal{lo, hi}
}

// summarizeConfig projects the fields that define a trial's identity
// for hashing, independent of fields like Symbol that don't vary
// across a single optimization run's search space.
func summarizeConfig(cfg backtest.GridBacktestConfig) map[string]interface{} {
	return map[string]interface{}{
		"spacing":         string(cfg.Spacing),
		"num_levels":      cfg.NumLevels,
		"profit_per_grid": cfg.ProfitPerGrid.String(),
		"amount_per_grid": cfg.AmountPerGrid.String(),
		"upper_price":     cfg.UpperPrice.String(),
		"lower_price":     cfg.LowerPrice.String(),
		"direction":       string(cfg.Direction),
	}
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...interface{})                {}
func (noopLogger) Info(string, ...interface{})                 {}
func (noopLogger) Warn(string, ...interface{})                 {}
func (noopLogger) Error(string, ...interface{})                {}
func (noopLogger) Fatal(string, ...interface{})                {}
func (l noopLogger) WithField(string, interface{}) core.ILogger { return l }
func (l noopLogger) WithFields(map[string]interface{}) core.ILogger { return l }
