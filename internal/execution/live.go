package execution

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	cryptoerrors "cryptotrader/internal/errors"
	"cryptotrader/internal/exchange"
	"cryptotrader/internal/models"
	"cryptotrader/internal/store"
)

// LiveExecutor places a real order against an exchange.Client, the way
// internal/broker/zerodha.go issues a signed HTTP order request, but
// retargeted at the ExchangeClient contract so the core is exchange-
// agnostic (§4.2, §6).
type LiveExecutor struct {
	store  store.Store
	client exchange.Client
	log    zerolog.Logger
}

// NewLiveExecutor builds a LiveExecutor for one model's exchange client.
func NewLiveExecutor(st store.Store, client exchange.Client, log zerolog.Logger) *LiveExecutor {
	return &LiveExecutor{store: st, client: client, log: log.With().Str("component", "live_executor").Logger()}
}

// Execute places a market order on the exchange and, on success, applies
// the actual fill (not the snapshot price) to the portfolio. On failure
// it writes an EXECUTION_ERROR incident and never mutates position state.
func (e *LiveExecutor) Execute(ctx context.Context, modelID int64, coin string, decision models.Decision, snapshot models.MarketSnapshot) (Result, error) {
	symbol := exchange.ToSymbol(coin)

	symbolInfo, err := e.client.GetSymbolInfo(ctx, symbol)
	if err != nil {
		return e.fail(ctx, modelID, coin, decision, err)
	}

	qty := exchange.RoundToStep(decision.Quantity, symbolInfo.StepSize)
	side, err := e.exchangeSide(ctx, modelID, coin, decision.Signal)
	if err != nil {
		return e.fail(ctx, modelID, coin, decision, err)
	}

	orderResult, err := e.client.PlaceMarketOrder(ctx, symbol, side, qty)
	if err != nil {
		return e.fail(ctx, modelID, coin, decision, err)
	}

	fillPrice := orderResult.AvgFillPrice()
	fee := orderResult.TotalFee()
	orderID := orderResult.OrderID

	filled := decision
	filled.Quantity = qty

	trade, err := applyFill(ctx, e.store, modelID, coin, filled, fillPrice, fee, snapshot, &orderID)
	if err != nil {
		return Result{}, err
	}

	return Result{Status: StatusExecuted, Trade: trade, ExchangeOrderID: &orderID}, nil
}

// fail classifies the error, writes an incident per §4.2/§7, and returns
// a failed Result without mutating any position.
func (e *LiveExecutor) fail(ctx context.Context, modelID int64, coin string, decision models.Decision, err error) (Result, error) {
	severity := models.SeverityHigh
	reason := err.Error()

	var exchErr *cryptoerrors.ExchangeError
	if cryptoerrors.As(err, &exchErr) {
		reason = exchErr.Error()
		if exchErr.Kind == cryptoerrors.ExchangeErrNetwork {
			severity = models.SeverityCritical
			reason = "TIMEOUT: " + reason
		}
	}

	id := modelID
	_, writeErr := e.store.WriteIncident(ctx, &models.Incident{
		ModelID:  &id,
		Type:     models.IncidentExecutionError,
		Severity: severity,
		Message:  "live order failed for " + coin,
		Details: map[string]any{
			"coin":   coin,
			"signal": string(decision.Signal),
			"reason": reason,
		},
		Timestamp: time.Now(),
	})
	if writeErr != nil {
		e.log.Error().Err(writeErr).Msg("failed to write execution-error incident")
	}

	return Result{Status: StatusFailed, Reason: reason}, nil
}

// exchangeSide resolves the wire side for a decision. Opening sides are
// fixed by the signal; a close sells an open long or buys back an open
// short, so it must look up the actual position.
func (e *LiveExecutor) exchangeSide(ctx context.Context, modelID int64, coin string, signal models.Signal) (exchange.OrderSide, error) {
	switch signal {
	case models.SignalBuyToEnter:
		return exchange.SideBuy, nil
	case models.SignalSellToEnter:
		return exchange.SideSell, nil
	}

	portfolio, err := e.store.GetPortfolio(ctx, modelID)
	if err != nil {
		return "", err
	}
	if _, ok := portfolio.PositionFor(coin, models.PositionShort); ok {
		return exchange.SideBuy, nil
	}
	return exchange.SideSell, nil
}
