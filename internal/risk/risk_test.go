package risk

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptotrader/internal/models"
)

func balancedSettings() models.ModelSettings {
	s := models.ModelSettings{ModelID: 1}
	for _, p := range models.SystemProfiles() {
		if p.ID == models.ProfileBalanced {
			p.ApplyTo(&s)
		}
	}
	return s
}

func basePortfolio(cash string) models.Portfolio {
	c, _ := decimal.NewFromString(cash)
	return models.Portfolio{ModelID: 1, Cash: c, TotalValue: c}
}

// Scenario 1 from §8: simulation + full-auto happy path.
func TestEvaluate_HappyPath(t *testing.T) {
	settings := balancedSettings()
	portfolio := basePortfolio("10000")
	decision := models.Decision{
		Coin: "BTC", Signal: models.SignalBuyToEnter,
		Quantity: decimal.NewFromFloat(0.02), EntryPrice: decimal.NewFromInt(40000),
	}
	result := Evaluate(Input{
		ModelID: 1, Decision: decision, Portfolio: portfolio, Settings: settings,
		Automation: models.AutomationFull, Now: time.Now(),
		StartOfDayTotalValue: portfolio.TotalValue,
	})
	assert.True(t, result.Allow)
}

// Scenario 3 from §8: risk denial on position size.
func TestEvaluate_PositionSizeDenied(t *testing.T) {
	settings := balancedSettings()
	portfolio := basePortfolio("10000")
	decision := models.Decision{
		Coin: "ETH", Signal: models.SignalBuyToEnter,
		Quantity: decimal.NewFromFloat(1.0), EntryPrice: decimal.NewFromInt(2000),
	}
	result := Evaluate(Input{
		ModelID: 1, Decision: decision, Portfolio: portfolio, Settings: settings,
		Automation: models.AutomationFull, Now: time.Now(),
		StartOfDayTotalValue: portfolio.TotalValue,
	})
	require.False(t, result.Allow)
	assert.Equal(t, RulePositionSize, result.Rule)
}

// §8 boundary: max_daily_trades enforced at "= N", not "> N".
func TestEvaluate_MaxDailyTradesBoundary(t *testing.T) {
	settings := balancedSettings() // MaxDailyTrades = 20
	portfolio := basePortfolio("10000")
	decision := models.Decision{
		Coin: "BTC", Signal: models.SignalBuyToEnter,
		Quantity: decimal.NewFromFloat(0.001), EntryPrice: decimal.NewFromInt(100),
	}

	atLimit := Evaluate(Input{
		ModelID: 1, Decision: decision, Portfolio: portfolio, Settings: settings,
		Automation: models.AutomationFull, Now: time.Now(),
		DailyTradeCount: 19, StartOfDayTotalValue: portfolio.TotalValue,
	})
	assert.True(t, atLimit.Allow, "the 20th trade (count=19 so far) must be allowed")

	overLimit := Evaluate(Input{
		ModelID: 1, Decision: decision, Portfolio: portfolio, Settings: settings,
		Automation: models.AutomationFull, Now: time.Now(),
		DailyTradeCount: 20, StartOfDayTotalValue: portfolio.TotalValue,
	})
	require.False(t, overLimit.Allow)
	assert.Equal(t, RuleMaxDailyTrades, overLimit.Rule)
}

// §8 boundary: a decision whose notional sits exactly at the cap is allowed.
func TestEvaluate_PositionSizeExactBoundaryAllowed(t *testing.T) {
	settings := balancedSettings() // 10%
	portfolio := basePortfolio("10000")
	decision := models.Decision{
		Coin: "BTC", Signal: models.SignalBuyToEnter,
		Quantity: decimal.NewFromInt(1), EntryPrice: decimal.NewFromInt(1000), // notional = 1000 = 10% of 10000
	}
	result := Evaluate(Input{
		ModelID: 1, Decision: decision, Portfolio: portfolio, Settings: settings,
		Automation: models.AutomationFull, Now: time.Now(),
		StartOfDayTotalValue: portfolio.TotalValue,
	})
	assert.True(t, result.Allow)
}

func TestEvaluate_MaxOpenPositionsOnlyAppliesToOpeners(t *testing.T) {
	settings := balancedSettings()
	settings.MaxOpenPositions = 1
	portfolio := basePortfolio("10000")
	portfolio.Positions = []models.Position{
		{ModelID: 1, Coin: "BTC", Side: models.PositionLong, Quantity: decimal.NewFromFloat(0.01), AverageEntryPrice: decimal.NewFromInt(40000)},
	}

	closeDecision := models.Decision{Coin: "BTC", Signal: models.SignalClose, Quantity: decimal.NewFromFloat(0.01), EntryPrice: decimal.NewFromInt(40000)}
	result := Evaluate(Input{
		ModelID: 1, Decision: closeDecision, Portfolio: portfolio, Settings: settings,
		Automation: models.AutomationFull, Now: time.Now(), StartOfDayTotalValue: portfolio.TotalValue,
	})
	assert.True(t, result.Allow, "closing a position must not be blocked by max_open_positions")

	openDecision := models.Decision{Coin: "ETH", Signal: models.SignalBuyToEnter, Quantity: decimal.NewFromFloat(0.01), EntryPrice: decimal.NewFromInt(100)}
	denied := Evaluate(Input{
		ModelID: 1, Decision: openDecision, Portfolio: portfolio, Settings: settings,
		Automation: models.AutomationFull, Now: time.Now(), StartOfDayTotalValue: portfolio.TotalValue,
	})
	require.False(t, denied.Allow)
	assert.Equal(t, RuleMaxOpenPositions, denied.Rule)
}

func TestEvaluate_DrawdownOnlyAppliesToFullAutomation(t *testing.T) {
	settings := balancedSettings() // MaxDrawdownPct = 15
	portfolio := basePortfolio("10000")
	decision := models.Decision{Coin: "BTC", Signal: models.SignalBuyToEnter, Quantity: decimal.NewFromFloat(0.001), EntryPrice: decimal.NewFromInt(100)}

	semi := Evaluate(Input{
		ModelID: 1, Decision: decision, Portfolio: portfolio, Settings: settings,
		Automation: models.AutomationSemi, Now: time.Now(),
		DrawdownPct: decimal.NewFromInt(50), StartOfDayTotalValue: portfolio.TotalValue,
	})
	assert.True(t, semi.Allow, "drawdown check must not apply outside full automation")

	full := Evaluate(Input{
		ModelID: 1, Decision: decision, Portfolio: portfolio, Settings: settings,
		Automation: models.AutomationFull, Now: time.Now(),
		DrawdownPct: decimal.NewFromInt(50), StartOfDayTotalValue: portfolio.TotalValue,
	})
	require.False(t, full.Allow)
	assert.Equal(t, RuleMaxDrawdown, full.Rule)
}

// Property: Evaluate always returns exactly one of (allow, reason) —
// a denial always carries a non-empty rule and reason.
func TestProperty_DenialAlwaysCarriesReason(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	settings := balancedSettings()

	properties.Property("denials always carry a rule and reason", prop.ForAll(
		func(qty, price, cash int64) bool {
			portfolio := basePortfolio("1")
			portfolio.Cash = decimal.NewFromInt(cash)
			portfolio.TotalValue = decimal.NewFromInt(cash + 1)
			decision := models.Decision{
				Coin: "BTC", Signal: models.SignalBuyToEnter,
				Quantity: decimal.NewFromInt(qty), EntryPrice: decimal.NewFromInt(price),
			}
			result := Evaluate(Input{
				ModelID: 1, Decision: decision, Portfolio: portfolio, Settings: settings,
				Automation: models.AutomationFull, Now: time.Now(),
				StartOfDayTotalValue: portfolio.TotalValue,
			})
			if result.Allow {
				return result.Rule == "" && result.Reason == ""
			}
			return result.Rule != "" && result.Reason != ""
		},
		gen.Int64Range(1, 1000), gen.Int64Range(1, 100000), gen.Int64Range(0, 1000000),
	))

	properties.TestingRun(t)
}
