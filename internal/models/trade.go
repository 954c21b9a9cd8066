package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of a trade.
type Side string

const (
	SideBuy   Side = "buy"
	SideSell  Side = "sell"
	SideClose Side = "close"
)

// Trade is an immutable log entry. Trades are never mutated or deleted;
// Position is always derived by replaying or aggregating them.
type Trade struct {
	ID              int64
	ModelID         int64
	Coin            string
	Side            Side
	Quantity        decimal.Decimal
	Price           decimal.Decimal
	Fee             decimal.Decimal
	RealizedPnL     decimal.Decimal
	Timestamp       time.Time
	ExchangeOrderID *string
}

// PositionSide distinguishes long and short exposure for a (model, coin).
type PositionSide string

const (
	PositionLong  PositionSide = "long"
	PositionShort PositionSide = "short"
)

// Position is the current open exposure for a (model, coin, side). A
// Position exists iff its Quantity is strictly positive; zero-quantity
// positions are deleted, never persisted as zero rows.
type Position struct {
	ModelID          int64
	Coin             string
	Side             PositionSide
	Quantity         decimal.Decimal
	AverageEntryPrice decimal.Decimal
	StopLoss         *decimal.Decimal
	TakeProfit       *decimal.Decimal
}

// Notional returns quantity * price, the position's current dollar value
// at the given market price.
func (p Position) Notional(marketPrice decimal.Decimal) decimal.Decimal {
	return p.Quantity.Mul(marketPrice)
}

// Portfolio is the snapshot a TradingExecutor reads at the start of a
// cycle: cash on hand plus every open position for the model.
type Portfolio struct {
	ModelID    int64
	Cash       decimal.Decimal
	Positions  []Position
	// TotalValue is cash + sum(position.Quantity * current market price);
	// callers populate it from a MarketSnapshot before invoking RiskManager.
	TotalValue decimal.Decimal
}

// PositionFor returns the open position for (coin, side), if any.
func (p Portfolio) PositionFor(coin string, side PositionSide) (Position, bool) {
	for _, pos := range p.Positions {
		if pos.Coin == coin && pos.Side == side {
			return pos, true
		}
	}
	return Position{}, false
}
