// Package risk implements the pre-trade gate: a pure function over a
// candidate decision, the model's current portfolio, and its settings,
// returning allow/deny plus a reason (§4.1). It never touches the store
// or the clock directly — callers supply "now" and today's trade count so
// the checks stay deterministic and testable.
package risk

import (
	"time"

	"github.com/shopspring/decimal"

	"cryptotrader/internal/models"
)

// Rule names, stable identifiers used in incidents and test assertions.
const (
	RulePositionSize     = "POSITION_SIZE"
	RuleMaxOpenPositions = "MAX_OPEN_POSITIONS"
	RuleMaxDailyTrades   = "MAX_DAILY_TRADES"
	RuleMinCashReserve   = "MIN_CASH_RESERVE"
	RuleDailyLossLimit   = "DAILY_LOSS_LIMIT"
	RuleMaxDrawdown      = "MAX_DRAWDOWN"
)

// Result is the outcome of a risk evaluation.
type Result struct {
	Allow    bool
	Rule     string // empty when Allow is true
	Reason   string
	Severity models.Severity
}

func allow() Result { return Result{Allow: true} }

func deny(rule, reason string) Result {
	return Result{Allow: false, Rule: rule, Reason: reason, Severity: models.SeverityMedium}
}

// Input bundles everything a risk evaluation needs beyond the decision
// itself. DailyTradeCount, TodayRealizedPnL, StartOfDayTotalValue, and
// DrawdownPct are pre-computed by the caller (TradingExecutor) from the
// store so this package stays pure and independently testable.
type Input struct {
	ModelID  int64
	Decision models.Decision
	Portfolio models.Portfolio
	Settings  models.ModelSettings
	Automation models.AutomationLevel

	Now time.Time

	DailyTradeCount      int
	TodayRealizedPnL     decimal.Decimal
	StartOfDayTotalValue decimal.Decimal
	DrawdownPct          decimal.Decimal // peak-to-current equity drop, percent, >= 0
}

// Evaluate runs the six ordered checks from §4.1. The first failing check
// wins; evaluation stops there.
func Evaluate(in Input) Result {
	if r := checkPositionSize(in); !r.Allow {
		return r
	}
	if r := checkMaxOpenPositions(in); !r.Allow {
		return r
	}
	if r := checkMaxDailyTrades(in); !r.Allow {
		return r
	}
	if r := checkMinCashReserve(in); !r.Allow {
		return r
	}
	if r := checkDailyLossLimit(in); !r.Allow {
		return r
	}
	if r := checkMaxDrawdown(in); !r.Allow {
		return r
	}
	return allow()
}

// checkPositionSize: decision.quantity * decision.entry_price ≤
// portfolio.total_value * settings.max_position_size_pct / 100.
func checkPositionSize(in Input) Result {
	notional := in.Decision.Cost()
	cap := in.Portfolio.TotalValue.Mul(in.Settings.MaxPositionSizePct).Div(decimal.NewFromInt(100))
	if notional.GreaterThan(cap) {
		return deny(RulePositionSize, "position notional exceeds max_position_size_pct of portfolio value")
	}
	return allow()
}

// checkMaxOpenPositions: only applies to openers.
func checkMaxOpenPositions(in Input) Result {
	if !in.Decision.Signal.IsOpener() {
		return allow()
	}
	if len(in.Portfolio.Positions) >= in.Settings.MaxOpenPositions {
		return deny(RuleMaxOpenPositions, "open position count at or above max_open_positions")
	}
	return allow()
}

// checkMaxDailyTrades: enforced at "= N", not "> N" (§8 boundary
// behavior) — the N-th trade is allowed, the (N+1)-th denied. Since
// DailyTradeCount counts trades already recorded today, denying when the
// count is already >= the limit yields exactly that boundary.
func checkMaxDailyTrades(in Input) Result {
	if in.DailyTradeCount >= in.Settings.MaxDailyTrades {
		return deny(RuleMaxDailyTrades, "daily trade count at or above max_daily_trades")
	}
	return allow()
}

// checkMinCashReserve: only applies to openers.
func checkMinCashReserve(in Input) Result {
	if !in.Decision.Signal.IsOpener() {
		return allow()
	}
	if in.Portfolio.TotalValue.IsZero() {
		return deny(RuleMinCashReserve, "portfolio total value is zero")
	}
	remaining := in.Portfolio.Cash.Sub(in.Decision.Cost())
	remainingPct := remaining.Div(in.Portfolio.TotalValue).Mul(decimal.NewFromInt(100))
	if remainingPct.LessThan(in.Settings.MinCashReservePct) {
		return deny(RuleMinCashReserve, "remaining cash reserve below min_cash_reserve_pct")
	}
	return allow()
}

// checkDailyLossLimit applies to every automation level.
func checkDailyLossLimit(in Input) Result {
	if in.StartOfDayTotalValue.IsZero() {
		return allow()
	}
	pnlPct := in.TodayRealizedPnL.Div(in.StartOfDayTotalValue).Mul(decimal.NewFromInt(100))
	threshold := in.Settings.MaxDailyLossPct.Neg()
	if pnlPct.LessThanOrEqual(threshold) {
		return deny(RuleDailyLossLimit, "today's realized loss at or beyond max_daily_loss_pct")
	}
	return allow()
}

// checkMaxDrawdown only applies at full automation.
func checkMaxDrawdown(in Input) Result {
	if in.Automation != models.AutomationFull {
		return allow()
	}
	if in.DrawdownPct.GreaterThanOrEqual(in.Settings.MaxDrawdownPct) {
		return deny(RuleMaxDrawdown, "drawdown at or beyond max_drawdown_pct")
	}
	return allow()
}
