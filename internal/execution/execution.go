// Package execution implements the EnvironmentExecutor: the component
// that turns a risk-approved Decision into a Trade and mutates position
// state, either entirely inside the store (Simulation) or against a real
// exchange (Live). Both variants share one interface (§4.2).
package execution

import (
	"context"

	"github.com/shopspring/decimal"

	"cryptotrader/internal/models"
	"cryptotrader/internal/store"
)

// Status values a Result can carry.
const (
	StatusSimulated = "simulated"
	StatusExecuted  = "executed"
	StatusFailed    = "failed"
)

// Result is what an EnvironmentExecutor returns for one decision.
type Result struct {
	Status          string
	Trade           models.Trade
	ExchangeOrderID *string
	Reason          string // populated when Status == StatusFailed
}

// Executor is the common interface for Simulation and Live (§4.2).
type Executor interface {
	Execute(ctx context.Context, modelID int64, coin string, decision models.Decision, snapshot models.MarketSnapshot) (Result, error)
}

// applyFill appends a Trade built from a known fill price/fee and updates
// position state accordingly. Shared by both executor variants so the
// bookkeeping rules never diverge between simulation and live.
func applyFill(ctx context.Context, st store.Store, modelID int64, coin string, decision models.Decision, fillPrice, fee decimal.Decimal, now models.MarketSnapshot, exchangeOrderID *string) (models.Trade, error) {
	side := sideFor(decision.Signal)

	t := models.Trade{
		ModelID:         modelID,
		Coin:            coin,
		Side:            side,
		Quantity:        decision.Quantity,
		Price:           fillPrice,
		Fee:             fee,
		Timestamp:       now.AsOf,
		ExchangeOrderID: exchangeOrderID,
	}

	if side == models.SideClose {
		realized, err := closePosition(ctx, st, modelID, coin, fillPrice, decision.Quantity)
		if err != nil {
			return models.Trade{}, err
		}
		t.RealizedPnL = realized
	} else {
		positionSide := models.PositionLong
		if side == models.SideSell {
			positionSide = models.PositionShort
		}
		if err := upsertOpen(ctx, st, modelID, coin, positionSide, decision.Quantity, fillPrice); err != nil {
			return models.Trade{}, err
		}
	}

	id, err := st.AppendTrade(ctx, &t)
	if err != nil {
		return models.Trade{}, err
	}
	t.ID = id
	return t, nil
}

func upsertOpen(ctx context.Context, st store.Store, modelID int64, coin string, side models.PositionSide, qty, price decimal.Decimal) error {
	existing, ok, err := getPosition(ctx, st, modelID, coin, side)
	if err != nil {
		return err
	}
	if !ok {
		return st.UpsertPosition(ctx, &models.Position{
			ModelID: modelID, Coin: coin, Side: side,
			Quantity: qty, AverageEntryPrice: price,
		})
	}
	totalQty := existing.Quantity.Add(qty)
	weighted := existing.Quantity.Mul(existing.AverageEntryPrice).Add(qty.Mul(price))
	existing.Quantity = totalQty
	existing.AverageEntryPrice = weighted.Div(totalQty)
	return st.UpsertPosition(ctx, &existing)
}

// closePosition reduces (or removes) whichever side has an open position
// for this coin and returns the realized PnL from the closed portion.
func closePosition(ctx context.Context, st store.Store, modelID int64, coin string, closePrice, qty decimal.Decimal) (decimal.Decimal, error) {
	for _, side := range []models.PositionSide{models.PositionLong, models.PositionShort} {
		existing, ok, err := getPosition(ctx, st, modelID, coin, side)
		if err != nil {
			return decimal.Zero, err
		}
		if !ok {
			continue
		}

		closedQty := decimal.Min(existing.Quantity, qty)
		var realized decimal.Decimal
		if side == models.PositionLong {
			realized = closePrice.Sub(existing.AverageEntryPrice).Mul(closedQty)
		} else {
			realized = existing.AverageEntryPrice.Sub(closePrice).Mul(closedQty)
		}

		remaining := existing.Quantity.Sub(closedQty)
		if remaining.LessThanOrEqual(decimal.Zero) {
			if err := st.DeletePosition(ctx, modelID, coin, side); err != nil {
				return decimal.Zero, err
			}
		} else {
			existing.Quantity = remaining
			if err := st.UpsertPosition(ctx, &existing); err != nil {
				return decimal.Zero, err
			}
		}
		return realized, nil
	}
	return decimal.Zero, nil
}

func getPosition(ctx context.Context, st store.Store, modelID int64, coin string, side models.PositionSide) (models.Position, bool, error) {
	portfolio, err := st.GetPortfolio(ctx, modelID)
	if err != nil {
		return models.Position{}, false, err
	}
	p, ok := portfolio.PositionFor(coin, side)
	return p, ok, nil
}

func sideFor(signal models.Signal) models.Side {
	switch signal {
	case models.SignalBuyToEnter:
		return models.SideBuy
	case models.SignalSellToEnter:
		return models.SideSell
	default:
		return models.SideClose
	}
}
