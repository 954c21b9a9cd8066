package execution

import (
	"context"

	"cryptotrader/internal/models"
	"cryptotrader/internal/store"
)

// SimulationExecutor fills a decision entirely in-memory/in-store against
// the market snapshot price, the way internal/broker/paper.go's
// PaperBroker fills orders against a cached price with no external calls.
type SimulationExecutor struct {
	store store.Store
}

// NewSimulationExecutor builds a SimulationExecutor.
func NewSimulationExecutor(st store.Store) *SimulationExecutor {
	return &SimulationExecutor{store: st}
}

// Execute fills the decision at the snapshot price, charges the model's
// configured fee rate, and writes the resulting Trade/Position. It never
// fails on market conditions; a simulated order always fills.
func (e *SimulationExecutor) Execute(ctx context.Context, modelID int64, coin string, decision models.Decision, snapshot models.MarketSnapshot) (Result, error) {
	settings, err := e.store.GetSettings(ctx, modelID)
	if err != nil {
		return Result{}, err
	}

	fillPrice := snapshot.Price
	fee := decision.Quantity.Mul(fillPrice).Mul(settings.FeeRate)

	trade, err := applyFill(ctx, e.store, modelID, coin, decision, fillPrice, fee, snapshot, nil)
	if err != nil {
		return Result{}, err
	}

	return Result{Status: StatusSimulated, Trade: trade}, nil
}
