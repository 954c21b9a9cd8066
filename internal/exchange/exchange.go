// Package exchange defines the ExchangeClient contract (§6) and a
// Binance-spot-shaped live implementation. The core never talks to an
// exchange except through this interface.
package exchange

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
)

// OrderSide is BUY or SELL on the exchange wire (distinct from the
// internal models.Side, which also has "close").
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// TimeInForce for limit orders.
type TimeInForce string

const (
	TIFGoodTilCanceled TimeInForce = "GTC"
	TIFImmediateOrCancel TimeInForce = "IOC"
	TIFFillOrKill      TimeInForce = "FOK"
)

// Balance is {free, locked} for one asset.
type Balance struct {
	Asset  string
	Free   decimal.Decimal
	Locked decimal.Decimal
}

// SymbolInfo carries the exchange's trading rules for a symbol.
type SymbolInfo struct {
	Symbol      string
	StepSize    decimal.Decimal
	TickSize    decimal.Decimal
	MinNotional decimal.Decimal
}

// Fill is one execution fill reported by the exchange for an order.
type Fill struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
	Fee      decimal.Decimal
}

// OrderResult is what PlaceMarketOrder/PlaceLimitOrder return.
type OrderResult struct {
	OrderID string
	Fills   []Fill
	Status  string
}

// AvgFillPrice returns the quantity-weighted average fill price.
func (r OrderResult) AvgFillPrice() decimal.Decimal {
	if len(r.Fills) == 0 {
		return decimal.Zero
	}
	totalQty := decimal.Zero
	totalNotional := decimal.Zero
	for _, f := range r.Fills {
		totalQty = totalQty.Add(f.Quantity)
		totalNotional = totalNotional.Add(f.Quantity.Mul(f.Price))
	}
	if totalQty.IsZero() {
		return decimal.Zero
	}
	return totalNotional.Div(totalQty)
}

// TotalFee sums fees across all fills.
func (r OrderResult) TotalFee() decimal.Decimal {
	total := decimal.Zero
	for _, f := range r.Fills {
		total = total.Add(f.Fee)
	}
	return total
}

// Client is the ExchangeClient contract from §6. One client is
// constructed per model, lazily, from stored credentials (§5).
type Client interface {
	Ping(ctx context.Context) (bool, error)
	GetBalance(ctx context.Context, asset string) (Balance, error)
	GetTickerPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	GetSymbolInfo(ctx context.Context, symbol string) (SymbolInfo, error)
	PlaceMarketOrder(ctx context.Context, symbol string, side OrderSide, quantity decimal.Decimal) (OrderResult, error)
	PlaceLimitOrder(ctx context.Context, symbol string, side OrderSide, quantity, price decimal.Decimal, tif TimeInForce) (OrderResult, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
	CancelAllOrders(ctx context.Context, symbol string) error
}

// ToSymbol applies the coin + "USDT" wire convention from the glossary.
func ToSymbol(coin string) string {
	return strings.ToUpper(coin) + "USDT"
}

// ToCoin strips the USDT quote suffix, the inverse of ToSymbol.
func ToCoin(symbol string) string {
	return strings.TrimSuffix(strings.ToUpper(symbol), "USDT")
}

// RoundToStep rounds a quantity down to the nearest multiple of stepSize,
// per §9's "exchange-reported quantities must be rounded per the
// symbol's step_size before being written to Position."
func RoundToStep(qty, stepSize decimal.Decimal) decimal.Decimal {
	if stepSize.IsZero() {
		return qty
	}
	steps := qty.Div(stepSize).Floor()
	return steps.Mul(stepSize)
}
