package exchange

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	cryptoerrors "cryptotrader/internal/errors"
	"cryptotrader/internal/performance"
	"cryptotrader/internal/resilience"
)

// DefaultExchangeRateLimit and DefaultExchangeRateBurst bound how fast a
// ResilientClient issues calls to a single exchange venue, independent of
// the circuit breaker — a steady stream of well-formed requests can still
// trip an exchange's own rate limiting, so ResilientClient throttles
// client-side before any request goes out.
const (
	DefaultExchangeRateLimit = 8.0 // requests per second
	DefaultExchangeRateBurst = 16
)

// ResilientClient wraps a Client with a client-side rate limiter, a
// bounded per-call timeout, and a circuit breaker, per §5 "timeout is an
// incident, not a retry": a call that times out or trips the breaker is
// classified as a network-kind ExchangeError rather than retried.
type ResilientClient struct {
	inner   Client
	breaker *resilience.CircuitBreaker
	monitor *resilience.ServiceMonitor
	name    string
	limiter *performance.RateLimiter
	timeout time.Duration
}

// NewResilientClient wraps inner with the given registry's breaker (keyed
// by name, typically "exchange:<model-id>"), a bounded call timeout, and
// a per-client rate limiter at the package defaults. Call outcomes are
// also reported to the registry's ServiceMonitor under name, so operators
// can see exchange reachability independent of breaker trip state.
func NewResilientClient(inner Client, registry *resilience.CircuitBreakerRegistry, name string, timeout time.Duration) *ResilientClient {
	return &ResilientClient{
		inner: inner, breaker: registry.Get(name), monitor: registry.Monitor(), name: name, timeout: timeout,
		limiter: performance.NewRateLimiter(DefaultExchangeRateLimit, DefaultExchangeRateBurst),
	}
}

func (c *ResilientClient) guard(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

func guardedResult[T any](c *ResilientClient, ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := c.guard(ctx)
	defer cancel()
	if err := c.limiter.Wait(ctx); err != nil {
		var zero T
		if errors.Is(err, context.DeadlineExceeded) {
			return zero, cryptoerrors.NewExchangeError(cryptoerrors.ExchangeErrNetwork, "TIMEOUT", "exchange call timed out", err)
		}
		return zero, err
	}
	start := time.Now()
	result, err := resilience.ExecuteWithResult(c.breaker, ctx, func() (T, error) { return fn(ctx) })
	c.monitor.UpdateStatus(c.name, err == nil, time.Since(start), err)
	if err != nil {
		var zero T
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return zero, cryptoerrors.NewExchangeError(cryptoerrors.ExchangeErrNetwork, "CIRCUIT_OPEN", "exchange circuit breaker open", err)
		}
		var exchErr *cryptoerrors.ExchangeError
		if !errors.As(err, &exchErr) && errors.Is(err, context.DeadlineExceeded) {
			return zero, cryptoerrors.NewExchangeError(cryptoerrors.ExchangeErrNetwork, "TIMEOUT", "exchange call timed out", err)
		}
		return zero, err
	}
	return result, nil
}

func (c *ResilientClient) Ping(ctx context.Context) (bool, error) {
	return guardedResult(c, ctx, c.inner.Ping)
}

func (c *ResilientClient) GetBalance(ctx context.Context, asset string) (Balance, error) {
	return guardedResult(c, ctx, func(ctx context.Context) (Balance, error) { return c.inner.GetBalance(ctx, asset) })
}

func (c *ResilientClient) GetTickerPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return guardedResult(c, ctx, func(ctx context.Context) (decimal.Decimal, error) { return c.inner.GetTickerPrice(ctx, symbol) })
}

func (c *ResilientClient) GetSymbolInfo(ctx context.Context, symbol string) (SymbolInfo, error) {
	return guardedResult(c, ctx, func(ctx context.Context) (SymbolInfo, error) { return c.inner.GetSymbolInfo(ctx, symbol) })
}

func (c *ResilientClient) PlaceMarketOrder(ctx context.Context, symbol string, side OrderSide, quantity decimal.Decimal) (OrderResult, error) {
	return guardedResult(c, ctx, func(ctx context.Context) (OrderResult, error) {
		return c.inner.PlaceMarketOrder(ctx, symbol, side, quantity)
	})
}

func (c *ResilientClient) PlaceLimitOrder(ctx context.Context, symbol string, side OrderSide, quantity, price decimal.Decimal, tif TimeInForce) (OrderResult, error) {
	return guardedResult(c, ctx, func(ctx context.Context) (OrderResult, error) {
		return c.inner.PlaceLimitOrder(ctx, symbol, side, quantity, price, tif)
	})
}

func (c *ResilientClient) CancelOrder(ctx context.Context, symbol, orderID string) error {
	_, err := guardedResult(c, ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.inner.CancelOrder(ctx, symbol, orderID)
	})
	return err
}

func (c *ResilientClient) CancelAllOrders(ctx context.Context, symbol string) error {
	_, err := guardedResult(c, ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.inner.CancelAllOrders(ctx, symbol)
	})
	return err
}
