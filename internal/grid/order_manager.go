package grid

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"gridkernel/internal/core"
)

// Config describes one grid layout: bounds, level count, spacing and
// the per-level economics.
type Config struct {
	Upper          decimal.Decimal
	Lower          decimal.Decimal
	NumLevels      int
	Spacing        core.Spacing
	AmountPerGrid  decimal.Decimal
	ProfitPerGrid  decimal.Decimal
}

// OrderManager is the grid order-lifecycle state machine (C5). It
// exclusively owns every GridOrderState for its grid.
type OrderManager struct {
	orders map[uuid.UUID]*core.GridOrderState
	byExch map[string]uuid.UUID
	cycles []core.GridCycle
	now    func() time.Time
}

// NewOrderManager constructs an empty manager. nowFn defaults to
// time.Now when nil, letting callers inject a TimeProvider-backed
// clock for backtest determinism.
func NewOrderManager(nowFn func() time.Time) *OrderManager {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &OrderManager{
		orders: make(map[uuid.UUID]*core.GridOrderState),
		byExch: make(map[string]uuid.UUID),
		now:    nowFn,
	}
}

// CalculateInitialOrders lays out levels for cfg around currentPrice
// and emits one pending GridOrderState per resulting level.
func (m *OrderManager) CalculateInitialOrders(cfg Config, currentPrice decimal.Decimal) ([]*core.GridOrderState, error) {
	levels, err := Levels(cfg.Spacing, cfg.Upper, cfg.Lower, cfg.NumLevels)
	if err != nil {
		return nil, err
	}
	gridLevels := GridOrders(levels, currentPrice, cfg.AmountPerGrid)

	out := make([]*core.GridOrderState, 0, len(gridLevels))
	for _, lvl := range gridLevels {
		st := m.newPendingState(lvl, uuid.Nil, decimal.Zero)
		out = append(out, st)
	}
	return out, nil
}

// newPendingState creates a pending order for lvl. originOrderID/
// originPrice identify the fill that spawned lvl as a counter-order
// (uuid.Nil/zero for an order placed directly by CalculateInitialOrders).
func (m *OrderManager) newPendingState(lvl core.GridLevel, originOrderID uuid.UUID, originPrice decimal.Decimal) *core.GridOrderState {
	now := m.now()
	st := &core.GridOrderState{
		ID:            uuid.New(),
		GridLevel:     lvl,
		Status:        core.OrderPending,
		OriginOrderID: originOrderID,
		OriginPrice:   originPrice,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	m.orders[st.ID] = st
	return st
}

// RegisterExchangeOrder transitions a pending order to open once the
// exchange has acknowledged it.
func (m *OrderManager) RegisterExchangeOrder(localID uuid.UUID, exchangeOrderID string) error {
	st, ok := m.orders[localID]
	if !ok {
		return fmt.Errorf("grid: %w: %s", core.ErrOrderNotFound, localID)
	}
	if !st.Status.CanTransitionTo(core.OrderOpen) {
		return fmt.Errorf("grid: cannot transition order %s from %s to open", localID, st.Status)
	}
	st.Status = core.OrderOpen
	st.ExchangeOrderID = exchangeOrderID
	st.UpdatedAt = m.now()
	m.byExch[exchangeOrderID] = localID
	return nil
}

// MarkOrderFailed transitions any non-terminal order to failed.
func (m *OrderManager) MarkOrderFailed(localID uuid.UUID, reason string) error {
	st, ok := m.orders[localID]
	if !ok {
		return fmt.Errorf("grid: %w: %s", core.ErrOrderNotFound, localID)
	}
	if !st.Status.CanTransitionTo(core.OrderFailed) {
		return fmt.Errorf("grid: cannot transition order %s from %s to failed", localID, st.Status)
	}
	st.Status = core.OrderFailed
	st.UpdatedAt = m.now()
	return nil
}

// OnOrderFilled marks the order matching exchangeOrderID as filled
// and generates its counter-order: a buy fill spawns a sell at
// filledPrice*(1+profitPerGrid); a sell fill spawns a buy at
// filledPrice*(1-profitPerGrid). If the filled order is itself a
// counter-order, its fill closes the cycle opened by its origin fill
// (buy-then-sell or sell-then-buy) and the cycle's profit is recorded.
func (m *OrderManager) OnOrderFilled(cfg Config, exchangeOrderID string, filledPrice, filledAmount decimal.Decimal) (*core.GridOrderState, error) {
	localID, ok := m.byExch[exchangeOrderID]
	if !ok {
		return nil, fmt.Errorf("grid: %w: %s", core.ErrSimulatorInconsistent, exchangeOrderID)
	}
	st, ok := m.orders[localID]
	if !ok {
		return nil, fmt.Errorf("grid: %w: %s", core.ErrOrderNotFound, localID)
	}
	if st.Status == core.OrderFilled {
		// Duplicate delivery of the same exchange order id is treated
		// as idempotent; volume is not re-verified.
		return nil, nil
	}
	if !st.Status.CanTransitionTo(core.OrderFilled) {
		return nil, fmt.Errorf("grid: cannot transition order %s from %s to filled", localID, st.Status)
	}

	st.Status = core.OrderFilled
	st.FilledPrice = filledPrice
	st.FilledAmount = filledAmount
	st.UpdatedAt = m.now()

	var counterPrice decimal.Decimal
	var counterSide core.OrderSide
	if st.GridLevel.Side == core.Buy {
		counterPrice = filledPrice.Mul(decimal.NewFromInt(1).Add(cfg.ProfitPerGrid))
		counterSide = core.Sell
	} else {
		counterPrice = filledPrice.Mul(decimal.NewFromInt(1).Sub(cfg.ProfitPerGrid))
		counterSide = core.Buy
	}
	counterAmount := quoteToBase(cfg.AmountPerGrid, counterPrice)

	counter := m.newPendingState(core.GridLevel{
		Index:  st.GridLevel.Index,
		Price:  counterPrice,
		Amount: counterAmount,
		Side:   counterSide,
	}, st.ID, filledPrice)

	if st.GridLevel.Side == core.Sell && st.OriginOrderID != uuid.Nil {
		// st is itself a counter-order spawned by the buy fill recorded
		// in OriginOrderID/OriginPrice; this sell fill closes that
		// cycle: profit = (sell - origin buy) * amount. A sell with no
		// origin is a naked order placed directly by
		// CalculateInitialOrders and never opened a cycle to close.
		profit := filledPrice.Sub(st.OriginPrice).Mul(filledAmount)
		m.cycles = append(m.cycles, core.GridCycle{
			BuyOrderID:  st.OriginOrderID,
			SellOrderID: st.ID,
			BuyPrice:    st.OriginPrice,
			SellPrice:   filledPrice,
			BuyAmount:   filledAmount,
			Profit:      profit,
			ClosedAt:    m.now(),
		})
	} else if st.GridLevel.Side == core.Buy && st.OriginOrderID != uuid.Nil {
		// A counter-buy spawned by a sell fill closes the inverse
		// (sell-then-buy) cycle: profit = (origin sell - buy) * amount.
		m.cycles = append(m.cycles, core.GridCycle{
			BuyOrderID:  st.ID,
			SellOrderID: st.OriginOrderID,
			BuyPrice:    filledPrice,
			SellPrice:   st.OriginPrice,
			BuyAmount:   filledAmount,
			Profit:      st.OriginPrice.Sub(filledPrice).Mul(filledAmount),
			ClosedAt:    m.now(),
		})
	}

	return counter, nil
}

// Rebalance computes which currently resting orders must be
// cancelled and which new pending orders must be placed to move the
// grid to newCfg. Callers drive the exchange from the returned sets.
func (m *OrderManager) Rebalance(newCfg Config, currentPrice decimal.Decimal) (toCancel []*core.GridOrderState, toPlace []*core.GridOrderState, err error) {
	for _, st := range m.orders {
		if st.Status == core.OrderOpen || st.Status == core.OrderPending {
			toCancel = append(toCancel, st)
		}
	}
	for _, st := range toCancel {
		st.Status = core.OrderCancelled
		st.UpdatedAt = m.now()
	}

	toPlace, err = m.CalculateInitialOrders(newCfg, currentPrice)
	return toCancel, toPlace, err
}

// Orders returns every GridOrderState this manager has ever created.
func (m *OrderManager) Orders() []*core.GridOrderState {
	out := make([]*core.GridOrderState, 0, len(m.orders))
	for _, st := range m.orders {
		out = append(out, st)
	}
	return out
}

// Cycles returns every closed GridCycle recorded so far.
func (m *OrderManager) Cycles() []core.GridCycle {
	return m.cycles
}
