package core

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// TimeProvider is the monotonic/wall-clock time seam that guarantees
// live/backtest parity (C1). The live variant reads the OS clock; the
// backtest variant advances explicitly.
type TimeProvider interface {
	Now() time.Time
	Monotonic() float64
}

// OrderAck is the acknowledgement returned by CreateOrder.
type OrderAck struct {
	ID     string
	Status OrderStatus
}

// Balance is one currency's free/used/total accounting.
type Balance struct {
	Free  decimal.Decimal
	Used  decimal.Decimal
	Total decimal.Decimal
}

// Ticker is a snapshot of a symbol's best bid/ask/last price.
type Ticker struct {
	Symbol string
	Last   decimal.Decimal
	Bid    decimal.Decimal
	Ask    decimal.Decimal
}

// OpenOrder is an order still resting on the book, as reported by
// FetchOpenOrders.
type OpenOrder struct {
	ID     string
	Symbol string
	Side   OrderSide
	Type   OrderType
	Price  decimal.Decimal
	Amount decimal.Decimal
	Status OrderStatus
}

// ExecutionLayer is the create/cancel/fetch seam shared by the live
// exchange client and the backtest MarketSimulator (C2). Failures are
// surfaced as one of the sentinel errors in errors.go.
type ExecutionLayer interface {
	CreateOrder(ctx context.Context, symbol string, typ OrderType, side OrderSide, amount decimal.Decimal, price decimal.Decimal) (OrderAck, error)
	CancelOrder(ctx context.Context, symbol string, id string) error
	CancelAllOrders(ctx context.Context, symbol string) error
	FetchOpenOrders(ctx context.Context, symbol string) ([]OpenOrder, error)
	FetchBalance(ctx context.Context) (map[string]Balance, error)
	FetchTicker(ctx context.Context, symbol string) (Ticker, error)
}

// ILogger is the structured-logging seam implemented by the zap-backed
// logger in internal/logging.
type ILogger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	WithField(key string, value interface{}) ILogger
	WithFields(fields map[string]interface{}) ILogger
}
