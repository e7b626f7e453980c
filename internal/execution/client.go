// Package execution implements the live ExecutionLayer (C2): a
// resilient, rate-limited HTTP client that any exchange-specific
// wire format can plug into via VenueAdapter. No concrete venue
// (Binance, Gate, ...) lives here; only the transport, signing,
// retry/circuit-breaking, and rate-limiting seam every venue shares.
package execution

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"gridkernel/internal/core"
)

var (
	requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gridkernel_execution_requests_total",
		Help: "Total exchange API requests issued by the execution layer.",
	}, []string{"method", "op"})

	requestErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gridkernel_execution_request_errors_total",
		Help: "Exchange API requests that failed after retries.",
	}, []string{"method", "op"})

	requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name: "gridkernel_execution_request_duration_seconds",
		Help: "Exchange API request latency in seconds.",
	}, []string{"method", "op"})
)

func init() {
	prometheus.MustRegister(requestsTotal, requestErrorsTotal, requestDuration)
}

// Signer attaches venue-specific authentication to an outgoing request
// (API key headers, HMAC query params, ...).
type Signer interface {
	SignRequest(req *http.Request) error
}

// APIError is returned for any 4xx/5xx exchange response the retry
// policy decided not to (or could no longer) retry.
type APIError struct {
	StatusCode int
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("execution: exchange returned status=%d body=%s", e.StatusCode, string(e.Body))
}

// VenueAdapter translates between the kernel's generic order model and
// one exchange's wire format. A concrete adapter (Binance, Gate, a
// paper venue, ...) is out of scope here; this is the seam it plugs
// into.
type VenueAdapter interface {
	BaseURL() string
	CreateOrderRequest(symbol string, typ core.OrderType, side core.OrderSide, amount, price decimal.Decimal) (method, path string, body interface{})
	ParseOrderAck(body []byte) (core.OrderAck, error)
	CancelOrderRequest(symbol, id string) (method, path string, params map[string]string)
	CancelAllOrdersRequest(symbol string) (method, path string, params map[string]string)
	FetchOpenOrdersRequest(symbol string) (method, path string, params map[string]string)
	ParseOpenOrders(body []byte) ([]core.OpenOrder, error)
	FetchBalanceRequest() (method, path string, params map[string]string)
	ParseBalance(body []byte) (map[string]core.Balance, error)
	FetchTickerRequest(symbol string) (method, path string, params map[string]string)
	ParseTicker(body []byte) (core.Ticker, error)
}

// Client is a resilient HTTP ExecutionLayer: it rate-limits outbound
// requests ahead of signing, then dispatches each signed request under
// a retry policy (network errors / 5xx / 429) and a circuit breaker
// that trips on sustained 5xx.
// The actual request/response shape is delegated to a VenueAdapter.
type Client struct {
	http     *http.Client
	signer   Signer
	adapter  VenueAdapter
	pipeline failsafe.Executor[*http.Response]
	limiter  *rate.Limiter
	logger   core.ILogger
}

// Config tunes the resilience policies wrapping every request.
type Config struct {
	Timeout           time.Duration
	MaxRetries        int
	RetryBackoffMin   time.Duration
	RetryBackoffMax   time.Duration
	BreakerFailureMin int
	BreakerFailureMax int
	BreakerOpenDelay  time.Duration
	RateLimitPerSec   float64
	RateLimitBurst    int
}

// DefaultConfig matches conservative exchange REST limits: 10 req/s,
// burst of 20, retry up to 3 times with exponential backoff, and trip
// the breaker on 5 failures out of 10.
func DefaultConfig() Config {
	return Config{
		Timeout:           10 * time.Second,
		MaxRetries:        3,
		RetryBackoffMin:   100 * time.Millisecond,
		RetryBackoffMax:   2 * time.Second,
		BreakerFailureMin: 5,
		BreakerFailureMax: 10,
		BreakerOpenDelay:  10 * time.Second,
		RateLimitPerSec:   10,
		RateLimitBurst:    20,
	}
}

// NewClient builds a Client for adapter, authenticating with signer
// (nil for an unauthenticated/public-only venue).
func NewClient(adapter VenueAdapter, signer Signer, cfg Config, logger core.ILogger) *Client {
	retryPolicy := retrypolicy.NewBuilder[*http.Response]().
		HandleIf(func(resp *http.Response, err error) bool {
			if err != nil {
				return true
			}
			return resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		}).
		WithBackoff(cfg.RetryBackoffMin, cfg.RetryBackoffMax).
		WithMaxRetries(cfg.MaxRetries).
		Build()

	breaker := circuitbreaker.NewBuilder[*http.Response]().
		HandleIf(func(resp *http.Response, err error) bool {
			if err != nil {
				return true
			}
			return resp.StatusCode >= 500
		}).
		WithFailureThresholdRatio(cfg.BreakerFailureMin, cfg.BreakerFailureMax).
		WithDelay(cfg.BreakerOpenDelay).
		Build()

	return &Client{
		http:     &http.Client{Timeout: cfg.Timeout},
		signer:   signer,
		adapter:  adapter,
		pipeline: failsafe.With[*http.Response](retryPolicy, breaker),
		limiter:  rate.NewLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst),
		logger:   logger.WithField("component", "execution_client"),
	}
}

func (c *Client) CreateOrder(ctx context.Context, symbol string, typ core.OrderType, side core.OrderSide, amount, price decimal.Decimal) (core.OrderAck, error) {
	method, path, body := c.adapter.CreateOrderRequest(symbol, typ, side, amount, price)
	respBody, err := c.do(ctx, "create_order", method, path, nil, body)
	if err != nil {
		return core.OrderAck{}, err
	}
	ack, err := c.adapter.ParseOrderAck(respBody)
	if err != nil {
		return core.OrderAck{}, fmt.Errorf("%w: %v", core.ErrOrderPlacementFailed, err)
	}
	return ack, nil
}

func (c *Client) CancelOrder(ctx context.Context, symbol string, id string) error {
	method, path, params := c.adapter.CancelOrderRequest(symbol, id)
	_, err := c.do(ctx, "cancel_order", method, path, params, nil)
	return err
}

func (c *Client) CancelAllOrders(ctx context.Context, symbol string) error {
	method, path, params := c.adapter.CancelAllOrdersRequest(symbol)
	_, err := c.do(ctx, "cancel_all_orders", method, path, params, nil)
	return err
}

func (c *Client) FetchOpenOrders(ctx context.Context, symbol string) ([]core.OpenOrder, error) {
	method, path, params := c.adapter.FetchOpenOrdersRequest(symbol)
	body, err := c.do(ctx, "fetch_open_orders", method, path, params, nil)
	if err != nil {
		return nil, err
	}
	return c.adapter.ParseOpenOrders(body)
}

func (c *Client) FetchBalance(ctx context.Context) (map[string]core.Balance, error) {
	method, path, params := c.adapter.FetchBalanceRequest()
	body, err := c.do(ctx, "fetch_balance", method, path, params, nil)
	if err != nil {
		return nil, err
	}
	return c.adapter.ParseBalance(body)
}

func (c *Client) FetchTicker(ctx context.Context, symbol string) (core.Ticker, error) {
	method, path, params := c.adapter.FetchTickerRequest(symbol)
	body, err := c.do(ctx, "fetch_ticker", method, path, params, nil)
	if err != nil {
		return core.Ticker{}, err
	}
	return c.adapter.ParseTicker(body)
}

func (c *Client) do(ctx context.Context, op, method, path string, params map[string]string, body interface{}) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrExchangeTimeout, err)
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("execution: marshaling request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.adapter.BaseURL()+path, reader)
	if err != nil {
		return nil, fmt.Errorf("execution: building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	q := req.URL.Query()
	for k, v := range params {
		q.Add(k, v)
	}
	req.URL.RawQuery = q.Encode()

	if c.signer != nil {
		if err := c.signer.SignRequest(req); err != nil {
			return nil, fmt.Errorf("execution: signing request: %w", err)
		}
	}

	start := time.Now()
	resp, err := c.pipeline.GetWithExecution(func(exec failsafe.Execution[*http.Response]) (*http.Response, error) {
		if req.GetBody != nil {
			// A retry must resend the payload the previous attempt consumed.
			b, err := req.GetBody()
			if err != nil {
				return nil, err
			}
			req.Body = b
		}
		return c.http.Do(req)
	})
	requestsTotal.WithLabelValues(method, op).Inc()
	requestDuration.WithLabelValues(method, op).Observe(time.Since(start).Seconds())

	if err != nil {
		requestErrorsTotal.WithLabelValues(method, op).Inc()
		c.logger.Error("exchange request failed", "op", op, "error", err)
		return nil, fmt.Errorf("%w: %v", core.ErrExchangeTimeout, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("execution: reading response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		requestErrorsTotal.WithLabelValues(method, op).Inc()
		return nil, &APIError{StatusCode: resp.StatusCode, Body: respBody}
	}

	return respBody, nil
}

var _ core.ExecutionLayer = (*Client)(nil)
