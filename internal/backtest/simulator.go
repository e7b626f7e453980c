package backtest

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"gridkernel/internal/core"
	"gridkernel/internal/grid"
	"gridkernel/internal/risk"
)

const periodsPerYear = 8760 // hourly candles assumed for annualization

var (
	pointTwo        = decimal.NewFromFloat(0.2)
	maxProfitFactor = decimal.NewFromInt(1_000_000)
)

// BacktestSimulator replays a grid strategy candle-by-candle against a
// MarketSimulator, driving the same GridCalculator/OrderManager used
// live so backtest and production share a single code path (C12).
type BacktestSimulator struct {
	cfg GridBacktestConfig
}

// NewBacktestSimulator constructs a simulator for cfg.
func NewBacktestSimulator(cfg GridBacktestConfig) *BacktestSimulator {
	return &BacktestSimulator{cfg: cfg}
}

// Run executes the full candle series and returns the aggregated
// result. The intra-candle price sweep is always open->low->high->close,
// matching the synthetic fill-ordering convention shared by every
// deterministic replay in this kernel.
func (s *BacktestSimulator) Run(candles []Candle) (core.BacktestResult, error) {
	cfg := s.cfg
	if len(candles) < 2 {
		return core.BacktestResult{}, fmt.Errorf("backtest: need at least 2 candles, got %d", len(candles))
	}

	nowFn := func() time.Time { return candles[0].Timestamp }
	market := NewMarketSimulator("BASE", "QUOTE", cfg.InitialBalance, cfg.Fees, nowFn)
	orderMgr := grid.NewOrderManager(nowFn)
	riskMgr := risk.NewManager(risk.Config{StopLossPct: cfg.StopLossPct})
	riskMgr.InitializeBalance(cfg.InitialBalance)

	upper, lower := s.calculateBounds(candles)

	gridCfg := grid.Config{
		Upper:         upper,
		Lower:         lower,
		NumLevels:     cfg.NumLevels,
		Spacing:       cfg.Spacing,
		AmountPerGrid: cfg.AmountPerGrid,
		ProfitPerGrid: cfg.ProfitPerGrid,
	}

	firstPrice := candles[0].Close
	market.SetPrice(firstPrice)

	initialOrders, err := orderMgr.CalculateInitialOrders(gridCfg, firstPrice)
	if err != nil {
		return core.BacktestResult{}, fmt.Errorf("backtest: %w", err)
	}
	s.placeOrders(market, orderMgr, riskMgr, initialOrders)

	var trailingMgr *grid.TrailingGridManager
	if cfg.TrailingEnabled {
		trailingMgr = grid.NewTrailingGridManager(cfg.TrailingShiftThreshold, cfg.TrailingRecenterMode, cfg.TrailingCooldownCandles, cfg.ATRPeriod, cfg.ATRMultiplier)
	}

	var (
		equityCurve        []core.EquityPoint
		tradeHistory       []core.Trade
		returns            []float64
		filledLevels       = make(map[int]bool)
		peakEquity         = cfg.InitialBalance
		maxDrawdown        decimal.Decimal
		totalFees          decimal.Decimal
		totalDeployed      decimal.Decimal
		prevEquity         = cfg.InitialBalance
		stopped            bool
		stopReason         string
		actualCandles      int
		priceLeftGridCount int
	)

	for _, f := range market.DrainFills() {
		tradeHistory = append(tradeHistory, core.Trade{Timestamp: f.Timestamp, Side: f.Side, Price: f.Price, Amount: f.Amount, Fee: f.Fee})
		totalFees = totalFees.Add(f.Fee)
	}

	start := time.Now()

	for idx, candle := range candles {
		actualCandles++

		for _, price := range []decimal.Decimal{candle.Open, candle.Low, candle.High, candle.Close} {
			market.SetPrice(price)
		}

		for _, f := range market.DrainFills() {
			tradeHistory = append(tradeHistory, core.Trade{Timestamp: candle.Timestamp, Side: f.Side, Price: f.Price, Amount: f.Amount, Fee: f.Fee})
			totalFees = totalFees.Add(f.Fee)

			counter, err := orderMgr.OnOrderFilled(gridCfg, f.OrderID, f.Price, f.Amount)
			if err != nil {
				return core.BacktestResult{}, fmt.Errorf("backtest: %w", err)
			}
			if counter != nil {
				filledLevels[counter.GridLevel.Index] = true
				s.placeOrders(market, orderMgr, riskMgr, []*core.GridOrderState{counter})
			}
		}

		openNotional := totalOpenNotional(orderMgr)
		totalDeployed = totalDeployed.Add(openNotional)

		if candle.Close.GreaterThan(upper) || candle.Close.LessThan(lower) {
			priceLeftGridCount++
		}

		if trailingMgr != nil {
			histStart := idx - cfg.ATRPeriod
			if histStart < 0 {
				histStart = 0
			}
			highs, lows, closes := candleSlices(candles[histStart : idx+1])

			if newCfg := trailingMgr.CheckAndShift(candle.Close, upper, lower, gridCfg, highs, lows, closes); newCfg != nil {
				upper, lower = newCfg.Upper, newCfg.Lower
				gridCfg = *newCfg

				toCancel, toPlace, err := orderMgr.Rebalance(gridCfg, candle.Close)
				if err != nil {
					return core.BacktestResult{}, fmt.Errorf("backtest: %w", err)
				}
				for _, st := range toCancel {
					_ = market.CancelOrder(context.Background(), cfg.Symbol, st.ExchangeOrderID)
				}
				s.placeOrders(market, orderMgr, riskMgr, toPlace)
			}
			trailingMgr.Tick()
		}

		equity := market.GetPortfolioValue()

		if prevEquity.IsPositive() {
			ret, _ := equity.Sub(prevEquity).Div(prevEquity).Float64()
			returns = append(returns, ret)
		}
		prevEquity = equity

		if equity.GreaterThan(peakEquity) {
			peakEquity = equity
		}
		if peakEquity.IsPositive() {
			dd := peakEquity.Sub(equity).Div(peakEquity)
			if dd.GreaterThan(maxDrawdown) {
				maxDrawdown = dd
			}
		}

		equityCurve = append(equityCurve, core.EquityPoint{
			Timestamp:     candle.Timestamp,
			Equity:        equity,
			Price:         candle.Close,
			UnrealizedPnL: equity.Sub(cfg.InitialBalance),
		})

		if cfg.TakeProfitPct.IsPositive() && cfg.InitialBalance.IsPositive() {
			pnlPct := equity.Sub(cfg.InitialBalance).Div(cfg.InitialBalance)
			if pnlPct.GreaterThanOrEqual(cfg.TakeProfitPct) {
				stopped = true
				stopReason = "take_profit_reached"
				break
			}
		}

		riskMgr.UpdateBalance(equity)
		if riskMgr.IsHalted() {
			stopped = true
			stopReason = riskMgr.HaltReason()
			break
		}
		if cfg.MaxDrawdownPct.IsPositive() && maxDrawdown.GreaterThanOrEqual(cfg.MaxDrawdownPct) {
			stopped = true
			stopReason = "max drawdown reached"
			break
		}
	}

	finalEquity := market.GetPortfolioValue()
	totalPnL := finalEquity.Sub(cfg.InitialBalance)
	var totalReturnPct decimal.Decimal
	if cfg.InitialBalance.IsPositive() {
		totalReturnPct = totalPnL.Div(cfg.InitialBalance).Mul(decimal.NewFromInt(100))
	}

	cycles := orderMgr.Cycles()
	numCycles := len(cycles)
	var winRate decimal.Decimal
	var grossProfit, grossLoss decimal.Decimal
	wins := 0
	for _, c := range cycles {
		if c.Profit.IsPositive() {
			wins++
			grossProfit = grossProfit.Add(c.Profit)
		} else if c.Profit.IsNegative() {
			grossLoss = grossLoss.Add(c.Profit.Abs())
		}
	}
	if numCycles > 0 {
		winRate = decimal.NewFromInt(int64(wins)).Div(decimal.NewFromInt(int64(numCycles)))
	}

	var profitFactor decimal.Decimal
	switch {
	case grossLoss.IsPositive():
		profitFactor = grossProfit.Div(grossLoss)
	case grossProfit.IsPositive():
		// No losing cycles: profit_factor is unbounded. decimal.Decimal
		// has no Inf representation, so cap it at a value no finite
		// ratio over realistic cycle counts would reach.
		profitFactor = maxProfitFactor
	}

	var fillRate decimal.Decimal
	if cfg.NumLevels > 0 {
		fillRate = decimal.NewFromInt(int64(len(filledLevels))).Div(decimal.NewFromInt(int64(cfg.NumLevels)))
	}

	var capitalEfficiency decimal.Decimal
	if actualCandles > 0 && cfg.InitialBalance.IsPositive() {
		capitalEfficiency = totalDeployed.Div(cfg.InitialBalance.Mul(decimal.NewFromInt(int64(actualCandles))))
	}

	sharpe := decimalFromRatio(calculateSharpe(returns))
	sortino := decimalFromRatio(calculateSortino(returns))

	var calmar decimal.Decimal
	if maxDrawdown.IsPositive() {
		calmar = totalReturnPct.Div(decimal.NewFromInt(100)).Div(maxDrawdown).Abs()
	}

	return core.BacktestResult{
		TotalReturnPct:     totalReturnPct,
		TotalPnL:           totalPnL,
		FinalEquity:        finalEquity,
		MaxDrawdownPct:     maxDrawdown,
		TotalTrades:        len(tradeHistory),
		WinRate:            winRate,
		CompletedCycles:    numCycles,
		GridFillRate:       fillRate,
		Sharpe:             sharpe,
		Sortino:            sortino,
		Calmar:             calmar,
		ProfitFactor:       profitFactor,
		CapitalEfficiency:  capitalEfficiency,
		TotalFees:          totalFees,
		EquityCurve:        equityCurve,
		TradeHistory:       tradeHistory,
		StoppedByRisk:      stopped,
		StopReason:         stopReason,
		DurationSeconds:    decimal.NewFromFloat(time.Since(start).Seconds()),
		PriceLeftGridCount: priceLeftGridCount,
	}, nil
}

// placeOrders submits each order in states to market, first running
// riskMgr's pre-trade checks: a denied order never reaches the
// exchange (no side effect) and is marked failed locally instead,
// matching the InsufficientBalance error kind's "order rejected"
// handling. Only buy orders are balance-checked against quote
// currency: sell orders are naked (the grid engine places them above
// price on initialization without requiring pre-existing base
// inventory, same as the source engine), so there is no balance to
// check on that side — order size and position-limit checks still
// apply to both sides.
func (s *BacktestSimulator) placeOrders(market *MarketSimulator, orderMgr *grid.OrderManager, riskMgr *risk.Manager, states []*core.GridOrderState) {
	balances, _ := market.FetchBalance(context.Background())
	totalPosition := totalOpenNotional(orderMgr)

	for _, st := range states {
		side := st.GridLevel.Side
		price := st.GridLevel.Price
		amount := st.GridLevel.Amount
		cost := price.Mul(amount)

		if res := riskMgr.CheckOrderSize(amount); !res.Allowed {
			_ = orderMgr.MarkOrderFailed(st.ID, res.Reason)
			continue
		}
		if side == core.Buy {
			if res := riskMgr.CheckBalance(balances["QUOTE"].Free, cost); !res.Allowed {
				_ = orderMgr.MarkOrderFailed(st.ID, fmt.Sprintf("%s: %s", core.ErrInsufficientBalance, res.Reason))
				continue
			}
		}
		if res := riskMgr.CheckPositionLimit(totalPosition); !res.Allowed {
			_ = orderMgr.MarkOrderFailed(st.ID, res.Reason)
			continue
		}

		ack, err := market.CreateOrder(context.Background(), s.cfg.Symbol, core.OrderTypeLimit, side, amount, price)
		if err != nil {
			_ = orderMgr.MarkOrderFailed(st.ID, "placement_failed")
			continue
		}
		_ = orderMgr.RegisterExchangeOrder(st.ID, ack.ID)
		totalPosition = totalPosition.Add(cost)
	}
}

// totalOpenNotional sums price*amount across every order orderMgr
// still considers open, for risk.Manager's position-limit check.
func totalOpenNotional(orderMgr *grid.OrderManager) decimal.Decimal {
	var total decimal.Decimal
	for _, st := range orderMgr.Orders() {
		if st.Status != core.OrderOpen {
			continue
		}
		total = total.Add(st.GridLevel.Price.Mul(st.GridLevel.Amount))
	}
	return total
}

func (s *BacktestSimulator) calculateBounds(candles []Candle) (upper, lower decimal.Decimal) {
	return CalculateGridBounds(s.cfg, candles)
}

// CalculateGridBounds derives a grid's upper/lower prices, either from
// the fixed config or from the leading ATRPeriod+1 candles, then
// applies the direction bias and clamps lower above zero. Exposed as a
// standalone function so callers that evaluate many configs sharing
// one candle window (the optimizer) can memoize it per window instead
// of recomputing ATR inside every trial.
func CalculateGridBounds(cfg GridBacktestConfig, candles []Candle) (upper, lower decimal.Decimal) {
	if !cfg.AutoBounds {
		upper, lower = cfg.UpperPrice, cfg.LowerPrice
	} else {
		n := cfg.ATRPeriod + 1
		if n > len(candles) {
			n = len(candles)
		}
		highs, lows, closes := candleSlices(candles[:n])
		currentPrice := closes[len(closes)-1]

		atr := grid.ATR(highs, lows, closes, cfg.ATRPeriod)
		if !atr.IsPositive() {
			atr = currentPrice.Mul(decimal.NewFromFloat(0.01)).Round(2)
			if !atr.IsPositive() {
				atr = decimal.NewFromFloat(0.01)
			}
		}
		upper, lower = grid.AdjustBoundsByATR(currentPrice, atr, cfg.ATRMultiplier)
	}

	spread := upper.Sub(lower)
	shift := spread.Mul(pointTwo)
	switch cfg.Direction {
	case core.DirectionLong:
		upper = upper.Sub(shift)
		lower = lower.Sub(shift)
	case core.DirectionShort:
		upper = upper.Add(shift)
		lower = lower.Add(shift)
	}

	if !lower.IsPositive() {
		lower = decimal.NewFromFloat(0.01)
	}
	return upper, lower
}

func candleSlices(candles []Candle) (highs, lows, closes []decimal.Decimal) {
	highs = make([]decimal.Decimal, len(candles))
	lows = make([]decimal.Decimal, len(candles))
	closes = make([]decimal.Decimal, len(candles))
	for i, c := range candles {
		highs[i] = c.High
		lows[i] = c.Low
		closes[i] = c.Close
	}
	return highs, lows, closes
}

// calculateSharpe returns the annualized Sharpe ratio of a per-candle
// return series, assuming hourly candles.
func calculateSharpe(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean := meanFloat(returns)
	var sumSq float64
	for _, r := range returns {
		d := r - mean
		sumSq += d * d
	}
	variance := sumSq / float64(len(returns)-1)
	std := math.Sqrt(variance)
	if std == 0 {
		return 0
	}
	return (mean / std) * math.Sqrt(periodsPerYear)
}

// calculateSortino returns the annualized Sortino ratio, using only
// downside deviation in the denominator.
func calculateSortino(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean := meanFloat(returns)
	var downside []float64
	for _, r := range returns {
		if r < 0 {
			downside = append(downside, r)
		}
	}
	if len(downside) == 0 {
		if mean > 0 {
			return math.Inf(1)
		}
		return 0
	}
	var sumSq float64
	for _, r := range downside {
		sumSq += r * r
	}
	downsideStd := math.Sqrt(sumSq / float64(len(downside)))
	if downsideStd == 0 {
		return 0
	}
	return (mean / downsideStd) * math.Sqrt(periodsPerYear)
}

// decimalFromRatio converts a float64 ratio to decimal.Decimal,
// substituting maxProfitFactor for +Inf since decimal.Decimal cannot
// represent infinity (a no-downside Sortino is the only source of
// +Inf here).
func decimalFromRatio(f float64) decimal.Decimal {
	if math.IsInf(f, 1) {
		return maxProfitFactor
	}
	if math.IsInf(f, -1) {
		return maxProfitFactor.Neg()
	}
	return decimal.NewFromFloat(f)
}

func meanFloat(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
