package dca

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"gridkernel/internal/core"
)

// DealConfig bundles the take-profit target and the safety-order
// schedule parameters for one deal.
type DealConfig struct {
	TakeProfitPct decimal.Decimal
	Orders        OrderConfig
}

// PositionManager is the deal + safety-order state machine (C6). It
// exclusively owns every DCADeal it creates.
type PositionManager struct {
	deals map[uuid.UUID]*core.DCADeal
	now   func() time.Time
}

// NewPositionManager constructs an empty manager. nowFn defaults to
// time.Now when nil.
func NewPositionManager(nowFn func() time.Time) *PositionManager {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &PositionManager{deals: make(map[uuid.UUID]*core.DCADeal), now: nowFn}
}

// OpenDeal records the base order as pending and pre-computes the
// safety-order schedule; it does not send anything to an exchange. The deal starts in opening and has no filled orders yet.
func (m *PositionManager) OpenDeal(symbol string, basePrice, baseAmount decimal.Decimal, cfg DealConfig) *core.DCADeal {
	schedule := BuildSchedule(basePrice, cfg.Orders)
	safetyOrders := make([]core.OrderRef, len(schedule))
	for i, lvl := range schedule {
		safetyOrders[i] = core.OrderRef{
			ID:     uuid.New(),
			Price:  lvl.Price,
			Amount: lvl.Amount,
			Status: core.OrderPending,
		}
	}

	deal := &core.DCADeal{
		ID:     uuid.New(),
		Symbol: symbol,
		Status: core.DealOpening,
		BaseOrder: core.OrderRef{
			ID:     uuid.New(),
			Price:  basePrice,
			Amount: baseAmount,
			Status: core.OrderPending,
		},
		SafetyOrders: safetyOrders,
		OpenedAt:     m.now(),
	}
	m.deals[deal.ID] = deal
	return deal
}

// FillBaseOrder transitions a deal from opening to active once its
// base order fills, seeding the average-entry accounting and the
// take-profit target.
func (m *PositionManager) FillBaseOrder(dealID uuid.UUID, filledPrice, filledAmount, takeProfitPct decimal.Decimal) (*core.DCADeal, error) {
	deal, ok := m.deals[dealID]
	if !ok {
		return nil, fmt.Errorf("dca: %w: %s", core.ErrOrderNotFound, dealID)
	}
	if deal.Status != core.DealOpening {
		// Duplicate delivery of the same fill notification is idempotent.
		if deal.Status == core.DealActive || deal.Status == core.DealClosing || deal.Status == core.DealClosed {
			return deal, nil
		}
		return nil, fmt.Errorf("dca: cannot fill base order for deal %s in status %s", dealID, deal.Status)
	}

	deal.BaseOrder.FilledPrice = filledPrice
	deal.BaseOrder.FilledAmount = filledAmount
	deal.BaseOrder.Status = core.OrderFilled

	deal.TotalAmount = filledAmount
	deal.TotalCost = filledPrice.Mul(filledAmount)
	deal.AverageEntryPrice = filledPrice
	deal.TargetTakeProfit = filledPrice.Mul(decimal.NewFromInt(1).Add(takeProfitPct))
	deal.Status = core.DealActive
	deal.TrailingStop = core.TrailingStopState{HighestPriceSinceEntry: filledPrice}

	return deal, nil
}

// FillSafetyOrder applies a fill at safety-order level index k
// (1-based), recomputing average-entry accounting. A repeated fill
// notification for an already-filled level is idempotent (Open
// Question (a): the source does not re-verify volume on a duplicate
// exchange order id).
func (m *PositionManager) FillSafetyOrder(dealID uuid.UUID, level int, filledPrice, filledAmount decimal.Decimal) (*core.DCADeal, error) {
	deal, ok := m.deals[dealID]
	if !ok {
		return nil, fmt.Errorf("dca: %w: %s", core.ErrOrderNotFound, dealID)
	}
	if deal.Status != core.DealActive {
		return nil, fmt.Errorf("dca: cannot fill safety order for deal %s in status %s", dealID, deal.Status)
	}
	idx := level - 1
	if idx < 0 || idx >= len(deal.SafetyOrders) {
		return nil, fmt.Errorf("dca: safety order level %d out of range for deal %s", level, dealID)
	}
	so := &deal.SafetyOrders[idx]
	if so.Status == core.OrderFilled {
		return deal, nil
	}

	so.FilledPrice = filledPrice
	so.FilledAmount = filledAmount
	so.Status = core.OrderFilled

	deal.TotalAmount = deal.TotalAmount.Add(filledAmount)
	deal.TotalCost = deal.TotalCost.Add(filledPrice.Mul(filledAmount))
	deal.AverageEntryPrice = deal.TotalCost.Div(deal.TotalAmount)
	deal.FilledSafetyCount++

	// Trailing highest price is deliberately left untouched here: the
	// spec's testable invariant is that a safety-order fill never
	// resets it.

	return deal, nil
}

// CloseDeal transitions a deal through closing to closed and computes
// realized PnL.
func (m *PositionManager) CloseDeal(dealID uuid.UUID, exitPrice, totalFees decimal.Decimal, reason string) (*core.DCADeal, error) {
	deal, ok := m.deals[dealID]
	if !ok {
		return nil, fmt.Errorf("dca: %w: %s", core.ErrOrderNotFound, dealID)
	}
	if deal.Status != core.DealActive {
		return nil, fmt.Errorf("dca: cannot close deal %s in status %s", dealID, deal.Status)
	}

	deal.Status = core.DealClosing
	deal.RealizedPnL = exitPrice.Sub(deal.AverageEntryPrice).Mul(deal.TotalAmount).Sub(totalFees)
	deal.Status = core.DealClosed
	deal.ClosedAt = m.now()
	_ = reason

	return deal, nil
}

// FailDeal marks a deal as failed, e.g. when the base order is
// rejected by the exchange.
func (m *PositionManager) FailDeal(dealID uuid.UUID, reason string) error {
	deal, ok := m.deals[dealID]
	if !ok {
		return fmt.Errorf("dca: %w: %s", core.ErrOrderNotFound, dealID)
	}
	deal.Status = core.DealFailed
	_ = reason
	return nil
}

// Deal returns the deal by id.
func (m *PositionManager) Deal(id uuid.UUID) (*core.DCADeal, bool) {
	d, ok := m.deals[id]
	return d, ok
}

// ActiveDeals returns every deal currently in the active state.
func (m *PositionManager) ActiveDeals() []*core.DCADeal {
	var out []*core.DCADeal
	for _, d := range m.deals {
		if d.Status == core.DealActive {
			out = append(out, d)
		}
	}
	return out
}

// Deals returns every deal this manager has ever created.
func (m *PositionManager) Deals() []*core.DCADeal {
	out := make([]*core.DCADeal, 0, len(m.deals))
	for _, d := range m.deals {
		out = append(out, d)
	}
	return out
}
