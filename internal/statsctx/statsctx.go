// Package statsctx derives the day-scoped trading figures that
// internal/risk, internal/pending, and internal/automation each need
// fresh from the store: daily trade count, today's realized PnL,
// start-of-day total value, drawdown percent, consecutive losses, and
// the rolling win rate over the last 10 closed trades. internal/trading
// computes an equivalent view inline for its own per-cycle call; this
// package gives internal/pending's approval-time re-check and
// internal/automation's auto-pause check the same figures without
// reaching into trading's private cycle state.
package statsctx

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"cryptotrader/internal/market"
	"cryptotrader/internal/models"
	"cryptotrader/internal/store"
)

// Daily bundles the day-scoped figures risk evaluation needs.
type Daily struct {
	TradeCount           int
	TodayRealizedPnL     decimal.Decimal
	StartOfDayTotalValue decimal.Decimal
	DrawdownPct          decimal.Decimal
}

// LoadDaily derives Daily from the model's trade history since the start
// of the current UTC calendar day (the decided trading-day convention).
func LoadDaily(ctx context.Context, st store.Store, modelID int64, currentTotalValue decimal.Decimal) (Daily, error) {
	trades, err := st.ListTrades(ctx, modelID, StartOfUTCDay(time.Now()))
	if err != nil {
		return Daily{}, err
	}

	d := Daily{TradeCount: len(trades)}
	for _, t := range trades {
		d.TodayRealizedPnL = d.TodayRealizedPnL.Add(t.RealizedPnL)
	}
	d.StartOfDayTotalValue = currentTotalValue.Sub(d.TodayRealizedPnL)

	if d.StartOfDayTotalValue.GreaterThan(decimal.Zero) && currentTotalValue.LessThan(d.StartOfDayTotalValue) {
		drop := d.StartOfDayTotalValue.Sub(currentTotalValue)
		d.DrawdownPct = drop.Div(d.StartOfDayTotalValue).Mul(decimal.NewFromInt(100))
	}
	return d, nil
}

// StartOfUTCDay truncates t to midnight UTC.
func StartOfUTCDay(t time.Time) time.Time {
	y, m, day := t.UTC().Date()
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

// RecentOutcomes summarizes the last 10 closed trades (nonzero
// RealizedPnL) for the auto-pause win-rate and consecutive-loss checks.
type RecentOutcomes struct {
	ConsecutiveLosses int
	Closed            int
	WinRatePct        int
}

// LoadRecentOutcomes walks the model's most recent trades, newest first,
// counting closed trades (those with a nonzero realized PnL) up to 10.
func LoadRecentOutcomes(ctx context.Context, st store.Store, modelID int64) (RecentOutcomes, error) {
	trades, err := st.RecentTrades(ctx, modelID, 50)
	if err != nil {
		return RecentOutcomes{}, err
	}

	var out RecentOutcomes
	wins := 0
	countingLosses := true
	for _, t := range trades {
		if t.RealizedPnL.IsZero() {
			continue // opening trade, not a closed outcome
		}
		if out.Closed >= 10 {
			break
		}
		out.Closed++
		if t.RealizedPnL.IsNegative() {
			if countingLosses {
				out.ConsecutiveLosses++
			}
		} else {
			wins++
			countingLosses = false
		}
	}
	if out.Closed > 0 {
		out.WinRatePct = wins * 100 / out.Closed
	}
	return out, nil
}

// LoadPortfolioWithValue loads the portfolio and populates TotalValue from
// fresh market snapshots, mirroring internal/trading.Executor's step 3.
func LoadPortfolioWithValue(ctx context.Context, st store.Store, md *market.Data, modelID int64, coins []string) (models.Portfolio, error) {
	portfolio, err := st.GetPortfolio(ctx, modelID)
	if err != nil {
		return models.Portfolio{}, err
	}
	snapshots, err := md.SnapshotAll(ctx, coins)
	if err != nil {
		return models.Portfolio{}, err
	}
	total := portfolio.Cash
	for _, pos := range portfolio.Positions {
		price := pos.AverageEntryPrice
		if snap, ok := snapshots[pos.Coin]; ok {
			price = snap.Price
		}
		total = total.Add(pos.Notional(price))
	}
	portfolio.TotalValue = total
	return *portfolio, nil
}
