package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Signal is the AI's proposed action for one coin.
type Signal string

const (
	SignalBuyToEnter  Signal = "buy_to_enter"
	SignalSellToEnter Signal = "sell_to_enter"
	SignalClose       Signal = "close"
	SignalHold        Signal = "hold"
)

// IsOpener reports whether acting on this signal would open or add to a
// position, as opposed to closing one or doing nothing.
func (s Signal) IsOpener() bool {
	return s == SignalBuyToEnter || s == SignalSellToEnter
}

// Decision is what an AIDecider returns for a single coin.
type Decision struct {
	Coin          string
	Signal        Signal
	Quantity      decimal.Decimal
	EntryPrice    decimal.Decimal
	Leverage      decimal.Decimal
	StopLoss      *decimal.Decimal
	TakeProfit    *decimal.Decimal
	Confidence    float64 // 0..1
	Justification string
}

// Cost is the notional value of an opening decision: quantity * price.
func (d Decision) Cost() decimal.Decimal {
	return d.Quantity.Mul(d.EntryPrice)
}

// PendingStatus is the lifecycle state of a PendingDecision.
type PendingStatus string

const (
	PendingStatusPending  PendingStatus = "pending"
	PendingStatusApproved PendingStatus = "approved"
	PendingStatusRejected PendingStatus = "rejected"
	PendingStatusExpired  PendingStatus = "expired"
	PendingStatusExecuted PendingStatus = "executed"
)

// PendingDecisionTTL is the fixed lifetime of a pending decision (§3, §4.5).
const PendingDecisionTTL = time.Hour

// PendingDecision is a proposed trade awaiting human action. Only
// internal/pending may transition its Status; every other package treats
// it as read-only.
type PendingDecision struct {
	ID       int64
	ModelID  int64
	Coin     string
	Decision Decision

	Status       PendingStatus
	CreatedAt    time.Time
	ExpiresAt    time.Time
	ResolvedAt   *time.Time
	ResolutionNote *string

	// Set only if an approval modified the trade.
	ResolvedQuantity *decimal.Decimal
	ResolvedLeverage *decimal.Decimal
}

// EffectiveQuantity returns the quantity to execute: the resolved override
// if present, otherwise the original decision's quantity.
func (p PendingDecision) EffectiveQuantity() decimal.Decimal {
	if p.ResolvedQuantity != nil {
		return *p.ResolvedQuantity
	}
	return p.Decision.Quantity
}

// MarketSnapshot is what MarketData returns for one symbol on demand.
type MarketSnapshot struct {
	Coin           string
	Price          decimal.Decimal
	Change24hPct   decimal.Decimal
	Indicators     map[string]decimal.Decimal
	AsOf           time.Time
}
