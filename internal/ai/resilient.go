package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cryptotrader/internal/models"
	"cryptotrader/internal/resilience"
)

// decider is the narrow contract ResilientDecider wraps; OpenAIDecider
// satisfies it, and so does any fake in tests.
type decider interface {
	Decide(ctx context.Context, model models.Model, settings models.ModelSettings, portfolio models.Portfolio, snapshots map[string]models.MarketSnapshot) (map[string]models.Decision, error)
}

// ResilientDecider wraps an AIDecider with a bounded per-call timeout and
// a circuit breaker (§5 "timeout is an incident, not a retry"), the same
// pattern applied to exchange calls in internal/exchange/resilient.go.
type ResilientDecider struct {
	inner   decider
	breaker *resilience.CircuitBreaker
	monitor *resilience.ServiceMonitor
	name    string
	timeout time.Duration
}

// NewResilientDecider wraps inner with the given registry's breaker
// (keyed by name; cmd/server uses one "ai:decider" breaker for every
// model) and a bounded call timeout. Call
// outcomes are reported to the registry's ServiceMonitor under name.
func NewResilientDecider(inner decider, registry *resilience.CircuitBreakerRegistry, name string, timeout time.Duration) *ResilientDecider {
	return &ResilientDecider{inner: inner, breaker: registry.Get(name), monitor: registry.Monitor(), name: name, timeout: timeout}
}

func (d *ResilientDecider) Decide(ctx context.Context, model models.Model, settings models.ModelSettings, portfolio models.Portfolio, snapshots map[string]models.MarketSnapshot) (map[string]models.Decision, error) {
	callCtx := ctx
	cancel := func() {}
	if d.timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, d.timeout)
	}
	defer cancel()

	start := time.Now()
	result, err := resilience.ExecuteWithResult(d.breaker, callCtx, func() (map[string]models.Decision, error) {
		return d.inner.Decide(callCtx, model, settings, portfolio, snapshots)
	})
	d.monitor.UpdateStatus(d.name, err == nil, time.Since(start), err)
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return nil, fmt.Errorf("ai decision call: circuit breaker open: %w", err)
		}
		return nil, err
	}
	return result, nil
}
