package execution

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridkernel/internal/core"
	"gridkernel/internal/logging"
)

// fakeAdapter is a minimal VenueAdapter exercising every request/parse
// pair against a plain JSON echo server, standing in for a real venue.
type fakeAdapter struct {
	baseURL string
}

func (a *fakeAdapter) BaseURL() string { return a.baseURL }

func (a *fakeAdapter) CreateOrderRequest(symbol string, typ core.OrderType, side core.OrderSide, amount, price decimal.Decimal) (string, string, interface{}) {
	return http.MethodPost, "/orders", map[string]string{
		"symbol": symbol, "type": string(typ), "side": string(side),
		"amount": amount.String(), "price": price.String(),
	}
}

func (a *fakeAdapter) ParseOrderAck(body []byte) (core.OrderAck, error) {
	var wire struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &wire); err != nil {
		return core.OrderAck{}, err
	}
	return core.OrderAck{ID: wire.ID, Status: core.OrderStatus(wire.Status)}, nil
}

func (a *fakeAdapter) CancelOrderRequest(symbol, id string) (string, string, map[string]string) {
	return http.MethodDelete, "/orders/" + id, map[string]string{"symbol": symbol}
}

func (a *fakeAdapter) CancelAllOrdersRequest(symbol string) (string, string, map[string]string) {
	return http.MethodDelete, "/orders", map[string]string{"symbol": symbol}
}

func (a *fakeAdapter) FetchOpenOrdersRequest(symbol string) (string, string, map[string]string) {
	return http.MethodGet, "/orders", map[string]string{"symbol": symbol}
}

func (a *fakeAdapter) ParseOpenOrders(body []byte) ([]core.OpenOrder, error) {
	var orders []core.OpenOrder
	err := json.Unmarshal(body, &orders)
	return orders, err
}

func (a *fakeAdapter) FetchBalanceRequest() (string, string, map[string]string) {
	return http.MethodGet, "/balance", nil
}

func (a *fakeAdapter) ParseBalance(body []byte) (map[string]core.Balance, error) {
	var balances map[string]core.Balance
	err := json.Unmarshal(body, &balances)
	return balances, err
}

func (a *fakeAdapter) FetchTickerRequest(symbol string) (string, string, map[string]string) {
	return http.MethodGet, "/ticker", map[string]string{"symbol": symbol}
}

func (a *fakeAdapter) ParseTicker(body []byte) (core.Ticker, error) {
	var ticker core.Ticker
	err := json.Unmarshal(body, &ticker)
	return ticker, err
}

func testLogger() core.ILogger {
	logger, _ := logging.NewZapLogger("ERROR")
	return logger
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.RateLimitPerSec = 1000
	cfg.RateLimitBurst = 1000
	cfg.RetryBackoffMin = time.Millisecond
	cfg.RetryBackoffMax = 5 * time.Millisecond
	return cfg
}

func TestCreateOrderRoundTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orders", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "ord-1", "status": "open"})
	}))
	defer server.Close()

	client := NewClient(&fakeAdapter{baseURL: server.URL}, nil, fastConfig(), testLogger())
	ack, err := client.CreateOrder(context.Background(), "BTCUSDT", core.OrderTypeLimit, core.Buy, decimal.NewFromInt(1), decimal.NewFromInt(100))
	require.NoError(t, err)
	assert.Equal(t, "ord-1", ack.ID)
	assert.Equal(t, core.OrderOpen, ack.Status)
}

func TestCancelOrderSendsID(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(&fakeAdapter{baseURL: server.URL}, nil, fastConfig(), testLogger())
	err := client.CancelOrder(context.Background(), "BTCUSDT", "ord-1")
	require.NoError(t, err)
	assert.Equal(t, "/orders/ord-1", gotPath)
}

func TestFetchTickerParsesBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(core.Ticker{Symbol: "BTCUSDT", Last: decimal.NewFromInt(50000)})
	}))
	defer server.Close()

	client := NewClient(&fakeAdapter{baseURL: server.URL}, nil, fastConfig(), testLogger())
	ticker, err := client.FetchTicker(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.True(t, ticker.Last.Equal(decimal.NewFromInt(50000)))
}

func TestRetriesOn500ThenSucceeds(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "ord-2", "status": "open"})
	}))
	defer server.Close()

	client := NewClient(&fakeAdapter{baseURL: server.URL}, nil, fastConfig(), testLogger())
	ack, err := client.CreateOrder(context.Background(), "BTCUSDT", core.OrderTypeLimit, core.Buy, decimal.NewFromInt(1), decimal.NewFromInt(100))
	require.NoError(t, err)
	assert.Equal(t, "ord-2", ack.ID)
	assert.Equal(t, 3, attempts)
}

func TestNonRetryable4xxSurfacesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bad request"}`))
	}))
	defer server.Close()

	client := NewClient(&fakeAdapter{baseURL: server.URL}, nil, fastConfig(), testLogger())
	_, err := client.CreateOrder(context.Background(), "BTCUSDT", core.OrderTypeLimit, core.Buy, decimal.NewFromInt(1), decimal.NewFromInt(100))
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
}

func TestSignerAppliedBeforeDispatch(t *testing.T) {
	var gotHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Signature")
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "ord-3", "status": "open"})
	}))
	defer server.Close()

	signer := signerFunc(func(req *http.Request) error {
		req.Header.Set("X-Signature", "test-sig")
		return nil
	})

	client := NewClient(&fakeAdapter{baseURL: server.URL}, signer, fastConfig(), testLogger())
	_, err := client.CreateOrder(context.Background(), "BTCUSDT", core.OrderTypeLimit, core.Buy, decimal.NewFromInt(1), decimal.NewFromInt(100))
	require.NoError(t, err)
	assert.Equal(t, "test-sig", gotHeader)
}

type signerFunc func(req *http.Request) error

func (f signerFunc) SignRequest(req *http.Request) error { return f(req) }
