// Package core defines the shared types and interfaces the grid, dca,
// hybrid, backtest, optimizer and snapshot packages are built against.
package core

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderSide is the direction of an order.
type OrderSide string

const (
	Buy  OrderSide = "buy"
	Sell OrderSide = "sell"
)

func (s OrderSide) IsValid() bool {
	return s == Buy || s == Sell
}

func (s OrderSide) String() string { return string(s) }

// OrderType distinguishes limit from market orders. No other order
// type is supported (spec non-goal).
type OrderType string

const (
	OrderTypeLimit  OrderType = "limit"
	OrderTypeMarket OrderType = "market"
)

func (t OrderType) IsValid() bool {
	return t == OrderTypeLimit || t == OrderTypeMarket
}

func (t OrderType) String() string { return string(t) }

// OrderStatus is the lifecycle state of a GridOrderState or a DCA
// OrderRef. Transitions are monotonic: pending -> open -> (filled |
// cancelled | failed). There is no path back to an earlier state.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderOpen      OrderStatus = "open"
	OrderFilled    OrderStatus = "filled"
	OrderCancelled OrderStatus = "cancelled"
	OrderFailed    OrderStatus = "failed"
)

func (s OrderStatus) String() string { return string(s) }

// CanTransitionTo reports whether moving from s to next is a legal,
// forward-only lifecycle transition.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	switch s {
	case OrderPending:
		return next == OrderOpen || next == OrderFilled || next == OrderCancelled || next == OrderFailed
	case OrderOpen:
		return next == OrderFilled || next == OrderCancelled || next == OrderFailed
	default:
		return false
	}
}

// Spacing selects how grid levels are distributed between bounds.
type Spacing string

const (
	SpacingArithmetic Spacing = "arithmetic"
	SpacingGeometric  Spacing = "geometric"
)

func (s Spacing) IsValid() bool {
	return s == SpacingArithmetic || s == SpacingGeometric
}

// DirectionBias skews initial grid placement toward buys or sells.
type DirectionBias string

const (
	DirectionLong    DirectionBias = "long"
	DirectionShort   DirectionBias = "short"
	DirectionNeutral DirectionBias = "neutral"
)

// GridLevel is an immutable price/amount/side tuple placed once a
// grid is laid out. Invariant: Amount > 0, Price > 0, Index unique
// within a grid.
type GridLevel struct {
	Index  int
	Price  decimal.Decimal
	Amount decimal.Decimal
	Side   OrderSide
}

// GridOrderState is the order-lifecycle record owned exclusively by
// GridOrderManager.
//
// OriginOrderID/OriginPrice link a counter-order back to the fill
// that spawned it (e.g. a sell's origin is the buy whose fill created
// it), so the cycle it eventually closes can be priced against the
// actual originating fill rather than the counter-order's own resting
// price. Zero value (uuid.Nil / zero decimal) on an order placed
// directly by CalculateInitialOrders, which has no originating fill.
type GridOrderState struct {
	ID              uuid.UUID
	GridLevel       GridLevel
	ExchangeOrderID string
	Status          OrderStatus
	FilledPrice     decimal.Decimal
	FilledAmount    decimal.Decimal
	OriginOrderID   uuid.UUID
	OriginPrice     decimal.Decimal
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// GridCycle is the unit of realized P/L: a buy-then-sell (or
// sell-then-buy) counter-order pair.
type GridCycle struct {
	BuyOrderID  uuid.UUID
	SellOrderID uuid.UUID
	BuyPrice    decimal.Decimal
	SellPrice   decimal.Decimal
	BuyAmount   decimal.Decimal
	Profit      decimal.Decimal
	ClosedAt    time.Time
}

// DealStatus is the lifecycle state of a DCADeal.
type DealStatus string

const (
	DealOpening DealStatus = "opening"
	DealActive  DealStatus = "active"
	DealClosing DealStatus = "closing"
	DealClosed  DealStatus = "closed"
	DealFailed  DealStatus = "failed"
)

func (s DealStatus) String() string { return string(s) }

// OrderRef is a lightweight reference to a placed order, used both for
// a deal's base order and its safety orders.
type OrderRef struct {
	ID              uuid.UUID
	ExchangeOrderID string
	Price           decimal.Decimal
	Amount          decimal.Decimal
	Status          OrderStatus
	FilledPrice     decimal.Decimal
	FilledAmount    decimal.Decimal
}

// DCADeal is the deal + safety-order state machine record owned
// exclusively by DCAPositionManager.
//
// Invariant: AverageEntryPrice = TotalCost / TotalAmount (within
// decimal rounding); FilledSafetyCount <= len(SafetyOrders).
type DCADeal struct {
	ID                uuid.UUID
	Symbol            string
	Status            DealStatus
	BaseOrder         OrderRef
	SafetyOrders      []OrderRef
	FilledSafetyCount int
	TotalAmount       decimal.Decimal
	TotalCost         decimal.Decimal
	AverageEntryPrice decimal.Decimal
	TargetTakeProfit  decimal.Decimal
	OpenedAt          time.Time
	ClosedAt          time.Time
	RealizedPnL       decimal.Decimal
	TrailingStop      TrailingStopState
}

// SafetyOrderLevel is one entry of a deterministically derived
// SafetyOrderSchedule.
type SafetyOrderLevel struct {
	Index  int
	Price  decimal.Decimal
	Amount decimal.Decimal
}

// TrailingStopState tracks the highest price observed since a deal's
// entry and whether the trailing stop has activated.
//
// Invariant: HighestPriceSinceEntry is monotonically non-decreasing
// within a deal and is never reset by a safety-order fill.
type TrailingStopState struct {
	HighestPriceSinceEntry decimal.Decimal
	Activated              bool
	StopPrice              decimal.Decimal
}

// MarketIndicators is a single-instant snapshot of the indicators the
// DCA signal generator and hybrid coordinator consume.
type MarketIndicators struct {
	Price     decimal.Decimal
	EMAFast   decimal.Decimal
	EMASlow   decimal.Decimal
	RSI       decimal.Decimal
	ADX       decimal.Decimal
	BBUpper   decimal.Decimal
	BBMiddle  decimal.Decimal
	BBLower   decimal.Decimal
	BBWidth   decimal.Decimal
	Volume    decimal.Decimal
	Support   decimal.Decimal
	Timestamp time.Time
}

// Regime is a coarse market-condition classification.
type Regime string

const (
	RegimeSideways       Regime = "sideways"
	RegimeUptrend        Regime = "uptrend"
	RegimeDowntrend      Regime = "downtrend"
	RegimeHighVolatility Regime = "high_volatility"
)

// RecommendedStrategy is RegimeResult's actionable recommendation.
type RecommendedStrategy string

const (
	StrategyGrid   RecommendedStrategy = "grid"
	StrategyDCA    RecommendedStrategy = "dca"
	StrategyTrend  RecommendedStrategy = "trend"
	StrategyReduce RecommendedStrategy = "reduce"
)

// RegimeResult is the classification output of a regime monitor.
type RegimeResult struct {
	Regime              Regime
	RecommendedStrategy RecommendedStrategy
	Confidence          decimal.Decimal
	Reasons             []string
}

// HybridMode is CoordinatedDecision's routing mode.
type HybridMode string

const (
	ModeGridOnly   HybridMode = "grid_only"
	ModeDCAActive  HybridMode = "dca_active"
	ModeBothActive HybridMode = "both_active"
)

// CoordinatedDecision is HybridCoordinator's pure-function output.
type CoordinatedDecision struct {
	Mode    HybridMode
	RunGrid bool
	RunDCA  bool
	Reason  string
}

// EquityPoint is appended once per candle by the backtest simulator.
type EquityPoint struct {
	Timestamp     time.Time
	Equity        decimal.Decimal
	Price         decimal.Decimal
	UnrealizedPnL decimal.Decimal
}

// Trade is one executed fill recorded into a BacktestResult's history.
type Trade struct {
	Timestamp time.Time
	Side      OrderSide
	Price     decimal.Decimal
	Amount    decimal.Decimal
	Fee       decimal.Decimal
}

// BacktestResult aggregates a completed simulation run.
type BacktestResult struct {
	TotalReturnPct     decimal.Decimal
	TotalPnL           decimal.Decimal
	FinalEquity        decimal.Decimal
	MaxDrawdownPct     decimal.Decimal
	TotalTrades        int
	WinRate            decimal.Decimal
	CompletedCycles    int
	GridFillRate       decimal.Decimal
	Sharpe             decimal.Decimal
	Sortino            decimal.Decimal
	Calmar             decimal.Decimal
	ProfitFactor       decimal.Decimal
	CapitalEfficiency  decimal.Decimal
	TotalFees          decimal.Decimal
	EquityCurve        []EquityPoint
	TradeHistory       []Trade
	StoppedByRisk      bool
	StopReason         string
	DurationSeconds    decimal.Decimal
	PriceLeftGridCount int
}

// Snapshot is the opaque per-engine blob set persisted by
// SnapshotStore, keyed by bot name and save instant.
type Snapshot struct {
	BotName     string
	BotState    []byte
	GridState   []byte
	DCAState    []byte
	RiskState   []byte
	TrendState  []byte
	HybridState []byte
	SavedAt     time.Time
}

// Event is a plain structured record emitted by the kernel for an
// out-of-scope router to forward to WebSocket/Redis collaborators.
type Event struct {
	Name      string
	Timestamp time.Time
	Fields    map[string]interface{}
}

// Event names recognized by the kernel.
const (
	EventOrderPlaced = "order_placed"
	EventOrderFilled = "order_filled"
	EventCycleClosed = "cycle_closed"
	EventRiskHalt    = "risk_halt"
	EventModeSwitch  = "mode_switch"
)

// EventSink receives kernel events. The router to an external
// transport is an out-of-scope collaborator; callers wire a sink.
type EventSink interface {
	OnEvent(Event)
}

// NoopEventSink discards every event; the default when no sink is wired.
type NoopEventSink struct{}

func (NoopEventSink) OnEvent(Event) {}
