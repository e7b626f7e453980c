// Package risk implements the pre-trade checks, drawdown/stop-loss
// tracking and sticky halt state machine (C4).
package risk

import (
	"sync"

	"github.com/shopspring/decimal"

	"gridkernel/internal/telemetry"
)

// Config tunes a Manager's thresholds.
type Config struct {
	Name            string // bot name, used only to label exported metrics
	StopLossPct     decimal.Decimal // portfolio drawdown that triggers halt
	MaxDailyLoss    decimal.Decimal // absolute daily loss that triggers halt
	MaxPositionSize decimal.Decimal
	MaxOrderSize    decimal.Decimal
}

// CheckResult is the outcome of a pre-trade check.
type CheckResult struct {
	Allowed bool
	Reason  string
}

func allow() CheckResult { return CheckResult{Allowed: true} }

func deny(reason string) CheckResult { return CheckResult{Allowed: false, Reason: reason} }

// TrendSuitability is check_trend_suitability's tri-state verdict.
type TrendSuitability struct {
	Safe       bool
	Pause      bool
	Deactivate bool
}

// Manager is the risk state machine (C4). All mutation happens on the
// caller's single logical task; no internal locking is required for
// that path, but a mutex guards cross-goroutine reads (e.g. a metrics
// exporter) since the backtest and optimizer may inspect state from a
// different goroutine than the one driving ticks.
type Manager struct {
	cfg Config

	mu                sync.RWMutex
	initialBalance    decimal.Decimal
	currentBalance    decimal.Decimal
	peakBalance       decimal.Decimal
	dailyLoss         decimal.Decimal
	consecutiveLosses int
	isHalted          bool
	haltReason        string
}

// NewManager constructs a Manager with the given thresholds.
func NewManager(cfg Config) *Manager {
	return &Manager{cfg: cfg}
}

// InitializeBalance sets initial, current and peak balance to b.
func (m *Manager) InitializeBalance(b decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initialBalance = b
	m.currentBalance = b
	m.peakBalance = b
}

// UpdateBalance records a new balance reading. A decrease accrues to
// daily_loss; peak is updated on an increase. Stop-loss and
// daily-loss limits are evaluated immediately after.
func (m *Manager) UpdateBalance(b decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if b.LessThan(m.currentBalance) {
		delta := m.currentBalance.Sub(b)
		m.dailyLoss = m.dailyLoss.Add(delta)
	}
	m.currentBalance = b
	if b.GreaterThan(m.peakBalance) {
		m.peakBalance = b
	}

	m.evaluateStopLossLocked()
	m.evaluateDailyLossLocked()

	if m.peakBalance.IsPositive() {
		drawdown := m.peakBalance.Sub(m.currentBalance).Div(m.peakBalance)
		f, _ := drawdown.Float64()
		telemetry.RiskDrawdownPct.WithLabelValues(m.cfg.Name).Set(f)
	}
}

// IsHalted reports the current halt state.
func (m *Manager) IsHalted() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isHalted
}

// HaltReason returns the reason the manager last halted, empty if
// not halted.
func (m *Manager) HaltReason() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.haltReason
}

func (m *Manager) haltLocked(reason string) {
	m.isHalted = true
	m.haltReason = reason
	telemetry.RiskHaltsTotal.WithLabelValues(reason).Inc()
}

// Resume clears the halt flag. A no-op if not currently halted.
func (m *Manager) Resume() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.isHalted {
		return
	}
	m.isHalted = false
	m.haltReason = ""
}

// CheckOrderSize rejects an order whose amount exceeds MaxOrderSize.
func (m *Manager) CheckOrderSize(amount decimal.Decimal) CheckResult {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.isHalted {
		return deny("risk manager is halted: " + m.haltReason)
	}
	if m.cfg.MaxOrderSize.IsPositive() && amount.GreaterThan(m.cfg.MaxOrderSize) {
		return deny("order amount exceeds max order size")
	}
	return allow()
}

// CheckPositionLimit rejects a position whose total size would
// exceed MaxPositionSize.
func (m *Manager) CheckPositionLimit(totalPositionSize decimal.Decimal) CheckResult {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.isHalted {
		return deny("risk manager is halted: " + m.haltReason)
	}
	if m.cfg.MaxPositionSize.IsPositive() && totalPositionSize.GreaterThan(m.cfg.MaxPositionSize) {
		return deny("position size exceeds max position size")
	}
	return allow()
}

// CheckBalance rejects an order whose cost exceeds the available
// balance.
func (m *Manager) CheckBalance(available, cost decimal.Decimal) CheckResult {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.isHalted {
		return deny("risk manager is halted: " + m.haltReason)
	}
	if cost.GreaterThan(available) {
		return deny("insufficient balance for order")
	}
	return allow()
}

// CheckTrade is the umbrella pre-trade gate: halted managers reject
// everything regardless of the trade's own merits.
func (m *Manager) CheckTrade(amount, available, cost, totalPositionSize decimal.Decimal) CheckResult {
	if r := m.CheckOrderSize(amount); !r.Allowed {
		return r
	}
	if r := m.CheckBalance(available, cost); !r.Allowed {
		return r
	}
	return m.CheckPositionLimit(totalPositionSize)
}

// CheckPortfolioStopLoss halts the manager when drawdown from
// initial balance reaches StopLossPct.
func (m *Manager) CheckPortfolioStopLoss() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.evaluateStopLossLocked()
}

func (m *Manager) evaluateStopLossLocked() bool {
	if m.isHalted || m.cfg.StopLossPct.IsZero() || m.initialBalance.IsZero() {
		return m.isHalted
	}
	drawdown := m.initialBalance.Sub(m.currentBalance).Div(m.initialBalance)
	if drawdown.GreaterThanOrEqual(m.cfg.StopLossPct) {
		m.haltLocked("portfolio stop-loss reached")
	}
	return m.isHalted
}

// CheckDailyLossLimit halts the manager when dailyLoss reaches
// MaxDailyLoss.
func (m *Manager) CheckDailyLossLimit() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.evaluateDailyLossLocked()
}

func (m *Manager) evaluateDailyLossLocked() bool {
	if m.isHalted || m.cfg.MaxDailyLoss.IsZero() {
		return m.isHalted
	}
	if m.dailyLoss.GreaterThanOrEqual(m.cfg.MaxDailyLoss) {
		m.haltLocked("daily loss limit reached")
	}
	return m.isHalted
}

// ResetDailyLoss clears the daily loss accumulator. Callers invoke
// this once per UTC day boundary.
func (m *Manager) ResetDailyLoss() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dailyLoss = decimal.Zero
}

var (
	two  = decimal.NewFromInt(2)
	adxTrendingThreshold = decimal.NewFromInt(25)
)

// CheckTrendSuitability evaluates whether the current price move is
// safe to keep a grid/DCA position open: priceMove > 2*atr or
// adx > 25 deactivates; priceMove > atr pauses; otherwise safe. adx
// is optional (pass decimal.Zero with hasADX=false to omit the check).
func (m *Manager) CheckTrendSuitability(atr, priceMove, adx decimal.Decimal, hasADX bool) TrendSuitability {
	if priceMove.GreaterThan(atr.Mul(two)) || (hasADX && adx.GreaterThan(adxTrendingThreshold)) {
		return TrendSuitability{Deactivate: true}
	}
	if priceMove.GreaterThan(atr) {
		return TrendSuitability{Pause: true}
	}
	return TrendSuitability{Safe: true}
}

// RecordTradeResult increments the consecutive-loss counter on a
// losing trade, resets it on a winning one.
func (m *Manager) RecordTradeResult(pnl decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pnl.IsNegative() {
		m.consecutiveLosses++
	} else {
		m.consecutiveLosses = 0
	}
}

// ConsecutiveLosses returns the current streak length.
func (m *Manager) ConsecutiveLosses() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.consecutiveLosses
}

// CurrentBalance returns the last balance reading.
func (m *Manager) CurrentBalance() decimal.Decimal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentBalance
}

// PeakBalance returns the highest balance reading observed.
func (m *Manager) PeakBalance() decimal.Decimal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.peakBalance
}

// DailyLoss returns the accumulated loss since the last reset.
func (m *Manager) DailyLoss() decimal.Decimal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dailyLoss
}

// DrawdownPct returns (peak - current) / peak, or zero if peak is
// zero.
func (m *Manager) DrawdownPct() decimal.Decimal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.peakBalance.IsZero() {
		return decimal.Zero
	}
	return m.peakBalance.Sub(m.currentBalance).Div(m.peakBalance)
}
