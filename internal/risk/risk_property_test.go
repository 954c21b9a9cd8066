package risk

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"

	"cryptotrader/internal/models"
)

// Property: position-size denial exactly tracks the notional-vs-cap
// comparison, independent of every other setting (§4.1).
func TestProperty_PositionSizeDeniesExactlyAboveCap(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	totalValueGen := gen.Float64Range(1000, 1_000_000)
	pctGen := gen.Float64Range(1, 100)
	qtyGen := gen.Float64Range(0.01, 1000)
	priceGen := gen.Float64Range(1, 100_000)

	properties.Property("position size denial matches notional > cap", prop.ForAll(
		func(totalValue, pct, qty, price float64) bool {
			settings := baseSettings()
			settings.MaxPositionSizePct = decimal.NewFromFloat(pct)

			in := baseInput(settings)
			in.Portfolio.TotalValue = decimal.NewFromFloat(totalValue)
			in.Decision.Signal = models.SignalBuyToEnter
			in.Decision.Quantity = decimal.NewFromFloat(qty)
			in.Decision.EntryPrice = decimal.NewFromFloat(price)

			result := Evaluate(in)

			notional := in.Decision.Cost()
			cap := in.Portfolio.TotalValue.Mul(in.Settings.MaxPositionSizePct).Div(decimal.NewFromInt(100))
			expectDeny := notional.GreaterThan(cap)

			if expectDeny && result.Allow {
				return false
			}
			if expectDeny && result.Rule != RulePositionSize {
				return false
			}
			return true
		},
		totalValueGen, pctGen, qtyGen, priceGen,
	))

	properties.TestingRun(t)
}

// Property: the N-th daily trade is allowed, the (N+1)-th denied — the
// boundary behavior called out in §4.1/§8.
func TestProperty_MaxDailyTradesBoundary(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	limitGen := gen.IntRange(1, 50)
	countGen := gen.IntRange(0, 60)

	properties.Property("daily trade count denies at or above the limit", prop.ForAll(
		func(limit, count int) bool {
			settings := baseSettings()
			settings.MaxDailyTrades = limit

			in := baseInput(settings)
			in.Decision.Signal = models.SignalHold
			in.DailyTradeCount = count

			result := Evaluate(in)
			expectDeny := count >= limit
			if expectDeny {
				return !result.Allow && result.Rule == RuleMaxDailyTrades
			}
			return result.Allow
		},
		limitGen, countGen,
	))

	properties.TestingRun(t)
}

// Property: max drawdown only ever denies at full automation (§4.1).
func TestProperty_MaxDrawdownOnlyAppliesAtFullAutomation(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	levelGen := gen.OneConstOf(models.AutomationManual, models.AutomationSemi, models.AutomationFull)
	drawdownGen := gen.Float64Range(0, 100)
	thresholdGen := gen.Float64Range(1, 99)

	properties.Property("drawdown denial requires full automation", prop.ForAll(
		func(level models.AutomationLevel, drawdown, threshold float64) bool {
			settings := baseSettings()
			settings.MaxDrawdownPct = decimal.NewFromFloat(threshold)

			in := baseInput(settings)
			in.Automation = level
			in.DrawdownPct = decimal.NewFromFloat(drawdown)
			in.Decision.Signal = models.SignalHold

			result := Evaluate(in)
			if level != models.AutomationFull && result.Rule == RuleMaxDrawdown {
				return false
			}
			if level == models.AutomationFull && drawdown >= threshold && result.Allow {
				return false
			}
			return true
		},
		levelGen, drawdownGen, thresholdGen,
	))

	properties.TestingRun(t)
}

func baseSettings() models.ModelSettings {
	return models.ModelSettings{
		MaxPositionSizePct:   decimal.NewFromInt(100),
		MaxDailyTrades:       1_000_000,
		MaxOpenPositions:     1_000_000,
		MinCashReservePct:    decimal.NewFromInt(-1000),
		MaxDailyLossPct:      decimal.NewFromInt(1_000_000),
		MaxDrawdownPct:       decimal.NewFromInt(1_000_000),
		FeeRate:              decimal.Zero,
		AITemperature:        0,
	}
}

func baseInput(settings models.ModelSettings) Input {
	return Input{
		ModelID:  1,
		Decision: models.Decision{Coin: "BTC", Signal: models.SignalHold},
		Portfolio: models.Portfolio{
			ModelID: 1, Cash: decimal.NewFromInt(100_000), TotalValue: decimal.NewFromInt(100_000),
		},
		Settings:             settings,
		Automation:           models.AutomationManual,
		Now:                  time.Unix(0, 0).UTC(),
		DailyTradeCount:      0,
		TodayRealizedPnL:     decimal.Zero,
		StartOfDayTotalValue: decimal.NewFromInt(100_000),
		DrawdownPct:          decimal.Zero,
	}
}
