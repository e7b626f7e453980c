// Package backtest implements the limit-order matching engine (C11)
// and the candle-driven orchestration loop (C12) that exercise C2-C10
// identically to the live bot, modulo which TimeProvider and
// ExecutionLayer are injected.
package backtest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"gridkernel/internal/core"
)

// FeeConfig is the maker/taker fee schedule a MarketSimulator charges
// at fill time.
type FeeConfig struct {
	MakerFee decimal.Decimal
	TakerFee decimal.Decimal
	Slippage decimal.Decimal // applied to market-order fills only
}

// Fill is one matched execution, returned by DrainFills for the
// caller to route into the grid/DCA order managers.
type Fill struct {
	OrderID   string
	Symbol    string
	Side      core.OrderSide
	Type      core.OrderType
	Price     decimal.Decimal
	Amount    decimal.Decimal
	Fee       decimal.Decimal
	Timestamp time.Time
}

type simOrder struct {
	id     uuid.UUID
	symbol string
	typ    core.OrderType
	side   core.OrderSide
	amount decimal.Decimal
	price  decimal.Decimal
	status core.OrderStatus
}

// MarketSimulator is a one-sided-liquidity limit order matching
// engine against a price tape (C11). It implements core.ExecutionLayer
// so the backtest path is a drop-in replacement for the live
// exchange client.
type MarketSimulator struct {
	mu sync.Mutex

	fees         FeeConfig
	baseCurrency string
	quoteCurrency string

	currentPrice decimal.Decimal
	orders       map[uuid.UUID]*simOrder
	pendingFills []Fill
	tradeHistory []core.Trade

	baseBalance  decimal.Decimal
	quoteBalance decimal.Decimal

	now func() time.Time
}

// NewMarketSimulator constructs a simulator seeded with an initial
// quote balance (e.g. USDT) and zero base balance.
func NewMarketSimulator(baseCurrency, quoteCurrency string, initialQuoteBalance decimal.Decimal, fees FeeConfig, nowFn func() time.Time) *MarketSimulator {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &MarketSimulator{
		fees:          fees,
		baseCurrency:  baseCurrency,
		quoteCurrency: quoteCurrency,
		orders:        make(map[uuid.UUID]*simOrder),
		quoteBalance:  initialQuoteBalance,
		now:           nowFn,
	}
}

// SetPrice advances the tape to p, matching every open limit order
// that crosses it and recording fills into the drainable queue. A
// buy fills when its limit price is at or above p; a sell fills when
// its limit price is at or below p. When one step crosses several
// orders they fill in a fixed order, buys before sells, buys from the
// highest limit down and sells from the lowest limit up, so the fill
// queue does not depend on Go's map iteration order.
func (s *MarketSimulator) SetPrice(p decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentPrice = p

	var crossed []*simOrder
	for _, o := range s.orders {
		if o.status != core.OrderOpen {
			continue
		}
		switch o.side {
		case core.Buy:
			if o.price.GreaterThanOrEqual(p) {
				crossed = append(crossed, o)
			}
		case core.Sell:
			if o.price.LessThanOrEqual(p) {
				crossed = append(crossed, o)
			}
		}
	}
	sort.Slice(crossed, func(i, j int) bool {
		a, b := crossed[i], crossed[j]
		if a.side != b.side {
			return a.side == core.Buy
		}
		if a.side == core.Buy {
			return a.price.GreaterThan(b.price)
		}
		return a.price.LessThan(b.price)
	})
	for _, o := range crossed {
		s.fillLocked(o, o.price, s.fees.MakerFee)
	}
}

func (s *MarketSimulator) fillLocked(o *simOrder, fillPrice, feeRate decimal.Decimal) {
	o.status = core.OrderFilled

	var fee decimal.Decimal
	switch o.side {
	case core.Buy:
		cost := fillPrice.Mul(o.amount)
		fee = o.amount.Mul(feeRate) // base-currency fee for buys
		s.baseBalance = s.baseBalance.Add(o.amount.Sub(fee))
		s.quoteBalance = s.quoteBalance.Sub(cost)
	case core.Sell:
		proceeds := fillPrice.Mul(o.amount)
		fee = proceeds.Mul(feeRate) // quote-currency fee for sells
		s.quoteBalance = s.quoteBalance.Add(proceeds.Sub(fee))
		s.baseBalance = s.baseBalance.Sub(o.amount)
	}

	ts := s.now()
	fill := Fill{
		OrderID:   o.id.String(),
		Symbol:    o.symbol,
		Side:      o.side,
		Type:      o.typ,
		Price:     fillPrice,
		Amount:    o.amount,
		Fee:       fee,
		Timestamp: ts,
	}
	s.pendingFills = append(s.pendingFills, fill)
	s.tradeHistory = append(s.tradeHistory, core.Trade{
		Timestamp: ts,
		Side:      o.side,
		Price:     fillPrice,
		Amount:    o.amount,
		Fee:       fee,
	})
}

// DrainFills returns every fill recorded since the last drain and
// clears the queue.
func (s *MarketSimulator) DrainFills() []Fill {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.pendingFills
	s.pendingFills = nil
	return out
}

// GetTradeHistory returns every fill this simulator has ever
// recorded.
func (s *MarketSimulator) GetTradeHistory() []core.Trade {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Trade, len(s.tradeHistory))
	copy(out, s.tradeHistory)
	return out
}

// GetPortfolioValue returns quote balance plus base balance marked at
// the current price.
func (s *MarketSimulator) GetPortfolioValue() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quoteBalance.Add(s.baseBalance.Mul(s.currentPrice))
}

// GetOpenOrders returns every order still resting on the book.
func (s *MarketSimulator) GetOpenOrders(symbol string) []core.OpenOrder {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.OpenOrder
	for _, o := range s.orders {
		if o.status != core.OrderOpen {
			continue
		}
		if symbol != "" && o.symbol != symbol {
			continue
		}
		out = append(out, core.OpenOrder{
			ID: o.id.String(), Symbol: o.symbol, Side: o.side, Type: o.typ,
			Price: o.price, Amount: o.amount, Status: o.status,
		})
	}
	return out
}

// CreateOrder implements core.ExecutionLayer. Market orders fill
// immediately at currentPrice adjusted by slippage and charge the
// taker fee; limit orders rest until SetPrice crosses them and
// charge the maker fee on fill.
func (s *MarketSimulator) CreateOrder(ctx context.Context, symbol string, typ core.OrderType, side core.OrderSide, amount, price decimal.Decimal) (core.OrderAck, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o := &simOrder{
		id:     uuid.New(),
		symbol: symbol,
		typ:    typ,
		side:   side,
		amount: amount,
		price:  price,
		status: core.OrderOpen,
	}
	s.orders[o.id] = o

	if typ == core.OrderTypeMarket {
		fillPrice := s.currentPrice
		slip := s.fees.Slippage
		if side == core.Buy {
			fillPrice = fillPrice.Mul(decimal.NewFromInt(1).Add(slip))
		} else {
			fillPrice = fillPrice.Mul(decimal.NewFromInt(1).Sub(slip))
		}
		o.price = fillPrice
		s.fillLocked(o, fillPrice, s.fees.TakerFee)
	}

	return core.OrderAck{ID: o.id.String(), Status: o.status}, nil
}

// CancelOrder is idempotent: cancelling an already-filled or unknown
// order is treated as success, matching the ExchangeLayer contract's
// tolerance for a race with a fill.
func (s *MarketSimulator) CancelOrder(ctx context.Context, symbol string, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	oid, err := uuid.Parse(id)
	if err != nil {
		return nil
	}
	o, ok := s.orders[oid]
	if !ok || o.status != core.OrderOpen {
		return nil
	}
	o.status = core.OrderCancelled
	return nil
}

// CancelAllOrders cancels every open order, optionally scoped to
// symbol.
func (s *MarketSimulator) CancelAllOrders(ctx context.Context, symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.status != core.OrderOpen {
			continue
		}
		if symbol != "" && o.symbol != symbol {
			continue
		}
		o.status = core.OrderCancelled
	}
	return nil
}

// FetchOpenOrders implements core.ExecutionLayer.
func (s *MarketSimulator) FetchOpenOrders(ctx context.Context, symbol string) ([]core.OpenOrder, error) {
	return s.GetOpenOrders(symbol), nil
}

// FetchBalance implements core.ExecutionLayer.
func (s *MarketSimulator) FetchBalance(ctx context.Context) (map[string]core.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return map[string]core.Balance{
		s.baseCurrency:  {Free: s.baseBalance, Used: decimal.Zero, Total: s.baseBalance},
		s.quoteCurrency: {Free: s.quoteBalance, Used: decimal.Zero, Total: s.quoteBalance},
	}, nil
}

// FetchTicker implements core.ExecutionLayer.
func (s *MarketSimulator) FetchTicker(ctx context.Context, symbol string) (core.Ticker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return core.Ticker{Symbol: symbol, Last: s.currentPrice, Bid: s.currentPrice, Ask: s.currentPrice}, nil
}

var _ core.ExecutionLayer = (*MarketSimulator)(nil)
