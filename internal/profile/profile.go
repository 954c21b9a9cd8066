// Package profile implements the risk-profile preset engine: applying a
// named bundle of risk settings to a model (with session handoff) and a
// rule-based recommendation over recent trade history (§4.6). The
// preset-bundle-of-settings shape is grounded on
// other_examples/6fe7bbd3_aristath-portfolioManager__trader-go-internal-modules-settings-models.go;
// the scoring ladder is grounded on internal/agents/risk.go's
// calculateVolatilityFactor (ordered threshold ladder -> classification).
package profile

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"cryptotrader/internal/models"
	"cryptotrader/internal/store"
)

// Engine is the ProfileEngine (§4.6).
type Engine struct {
	store store.Store
}

// New builds an Engine.
func New(st store.Store) *Engine {
	return &Engine{store: st}
}

// Apply runs the five steps from §4.6 in order: close any open session,
// overwrite the settings fields the profile owns, point the model at the
// new profile, open a fresh session, write an incident. Each step is a
// separate store write, not one transaction: if a step fails, the steps
// before it stay applied.
func (e *Engine) Apply(ctx context.Context, modelID int64, profileID models.ProfileID) error {
	profile, err := e.store.GetRiskProfile(ctx, profileID)
	if err != nil {
		return err
	}

	now := time.Now()

	if open, err := e.store.GetOpenProfileSession(ctx, modelID); err != nil {
		return err
	} else if open != nil {
		aggregates, err := e.aggregateSession(ctx, modelID, open.StartTime, now)
		if err != nil {
			return err
		}
		if err := e.store.CloseProfileSession(ctx, open.ID, now, aggregates); err != nil {
			return err
		}
	}

	settings, err := e.store.GetSettings(ctx, modelID)
	if err != nil {
		return err
	}
	profile.ApplyTo(settings)
	pid := int64(profileID)
	settings.ActiveProfileID = &pid
	if err := e.store.SaveSettings(ctx, settings); err != nil {
		return err
	}

	if _, err := e.store.OpenProfileSession(ctx, &models.ProfileSession{ModelID: modelID, ProfileID: profileID, StartTime: now}); err != nil {
		return err
	}

	mID := modelID
	_, err = e.store.WriteIncident(ctx, &models.Incident{
		ModelID: &mID, Type: models.IncidentProfileChange, Severity: models.SeverityLow,
		Message: "risk profile changed to " + profile.Name,
		Details: map[string]any{"profile_id": int64(profileID), "profile_name": profile.Name},
		Timestamp: now,
	})
	return err
}

// aggregateSession computes TradesExecuted/Wins/Losses/TotalPnL/MaxDrawdown
// from the model's trades during [start, end).
func (e *Engine) aggregateSession(ctx context.Context, modelID int64, start, end time.Time) (models.ProfileSession, error) {
	trades, err := e.store.ListTrades(ctx, modelID, start)
	if err != nil {
		return models.ProfileSession{}, err
	}

	agg := models.ProfileSession{StartTime: start, EndTime: &end}
	runningPeak := decimal.Zero
	runningTotal := decimal.Zero
	for _, t := range trades {
		if t.Timestamp.After(end) {
			continue
		}
		if t.RealizedPnL.IsZero() {
			continue
		}
		agg.TradesExecuted++
		if t.RealizedPnL.GreaterThan(decimal.Zero) {
			agg.Wins++
		} else {
			agg.Losses++
		}
		agg.TotalPnL = agg.TotalPnL.Add(t.RealizedPnL)

		runningTotal = runningTotal.Add(t.RealizedPnL)
		if runningTotal.GreaterThan(runningPeak) {
			runningPeak = runningTotal
		}
		drawdown := runningPeak.Sub(runningTotal)
		if drawdown.GreaterThan(agg.MaxDrawdown) {
			agg.MaxDrawdown = drawdown
		}
	}
	return agg, nil
}

// Recommendation is the output of Recommend (§4.6).
type Recommendation struct {
	ProfileID    models.ProfileID
	Confidence   int // 0..100
	Reason       string
	ShouldSwitch bool
	Alternatives []Alternative
}

// Alternative is one scored candidate profile.
type Alternative struct {
	ProfileID models.ProfileID
	Score     int
}

// recommendInput is everything Recommend needs, pre-computed by the
// caller so this stays a pure function of trade history.
type recommendInput struct {
	last30         []models.Trade
	last10         []models.Trade
	drawdownPct    decimal.Decimal
	consecutiveLosses int
	volatilityLow  bool
	volatilityHigh bool
	tradesToday    int
	currentProfile models.ProfileID
}

// Recommend applies the first matching rule from §4.6's rule sketch over
// the model's last 30 (and last 10) trades, current drawdown, consecutive
// losses, and today's trade count. It makes no external call.
func (e *Engine) Recommend(ctx context.Context, modelID int64, drawdownPct decimal.Decimal, volatilityLow, volatilityHigh bool) (Recommendation, error) {
	recent, err := e.store.RecentTrades(ctx, modelID, 30)
	if err != nil {
		return Recommendation{}, err
	}
	settings, err := e.store.GetSettings(ctx, modelID)
	if err != nil {
		return Recommendation{}, err
	}
	current := models.ProfileBalanced
	if settings.ActiveProfileID != nil {
		current = models.ProfileID(*settings.ActiveProfileID)
	}

	in := recommendInput{
		last30: recent, drawdownPct: drawdownPct,
		volatilityLow: volatilityLow, volatilityHigh: volatilityHigh,
		currentProfile: current,
	}
	if len(recent) > 10 {
		in.last10 = recent[:10]
	} else {
		in.last10 = recent
	}
	in.consecutiveLosses = consecutiveLosses(recent)
	in.tradesToday = tradesSince(recent, startOfDay(time.Now()))

	if len(recent) < 5 {
		return Recommendation{
			ProfileID: models.ProfileBalanced, Confidence: 40, Reason: "insufficient data",
			ShouldSwitch: current != models.ProfileBalanced, Alternatives: allScored(in),
		}, nil
	}

	win30 := winRatePct(in.last30)
	win10 := winRatePct(in.last10)

	switch {
	case drawdownPct.GreaterThan(decimal.NewFromInt(15)) || win10 < 30 || in.consecutiveLosses >= 5:
		return result(models.ProfileUltraSafe, 90, "emergency: drawdown, win rate, or loss streak breached a hard threshold", in), nil
	case (drawdownPct.GreaterThanOrEqual(decimal.NewFromInt(8)) && drawdownPct.LessThanOrEqual(decimal.NewFromInt(15))) ||
		(win30 >= 30 && win30 <= 45 && volatilityHigh):
		return result(models.ProfileConservative, 75, "cautious: elevated drawdown or mediocre win rate with high volatility", in), nil
	case win30 >= 45 && win30 <= 60 && drawdownPct.LessThan(decimal.NewFromInt(8)):
		return result(models.ProfileBalanced, 70, "normal: steady win rate and contained drawdown", in), nil
	case win30 > 60 && drawdownPct.LessThan(decimal.NewFromInt(5)):
		return result(models.ProfileAggressive, 80, "aggressive: strong win rate and low drawdown", in), nil
	case in.tradesToday >= 15 && volatilityLow:
		return result(models.ProfileScalper, 65, "scalper: high trade frequency in a low-volatility regime", in), nil
	default:
		return result(models.ProfileBalanced, 50, "no rule matched decisively; defaulting to balanced", in), nil
	}
}

func result(id models.ProfileID, confidence int, reason string, in recommendInput) Recommendation {
	return Recommendation{
		ProfileID: id, Confidence: confidence, Reason: reason,
		ShouldSwitch: in.currentProfile != id, Alternatives: allScored(in),
	}
}

// allScored scores every system profile for the Alternatives list, ranked
// by fit to the current regime (higher is a better fit).
func allScored(in recommendInput) []Alternative {
	win30 := winRatePct(in.last30)
	alts := make([]Alternative, 0, 5)
	for _, p := range models.SystemProfiles() {
		score := 50
		switch p.ID {
		case models.ProfileUltraSafe:
			if in.drawdownPct.GreaterThan(decimal.NewFromInt(10)) || in.consecutiveLosses >= 3 {
				score = 90
			}
		case models.ProfileConservative:
			if in.drawdownPct.GreaterThanOrEqual(decimal.NewFromInt(5)) {
				score = 70
			}
		case models.ProfileBalanced:
			if win30 >= 45 && win30 <= 60 {
				score = 80
			}
		case models.ProfileAggressive:
			if win30 > 60 {
				score = 85
			}
		case models.ProfileScalper:
			if in.tradesToday >= 10 {
				score = 75
			}
		}
		alts = append(alts, Alternative{ProfileID: p.ID, Score: score})
	}
	return alts
}

func winRatePct(trades []models.Trade) int {
	closed := 0
	wins := 0
	for _, t := range trades {
		if t.RealizedPnL.IsZero() {
			continue
		}
		closed++
		if t.RealizedPnL.GreaterThan(decimal.Zero) {
			wins++
		}
	}
	if closed == 0 {
		return 0
	}
	return wins * 100 / closed
}

// consecutiveLosses counts losing trades from the most recent backward
// until a winner (or a non-closing trade) breaks the streak. trades is
// ordered newest-first, so the walk goes forward from index 0.
func consecutiveLosses(trades []models.Trade) int {
	streak := 0
	for _, t := range trades {
		if t.RealizedPnL.IsZero() {
			continue
		}
		if t.RealizedPnL.LessThan(decimal.Zero) {
			streak++
			continue
		}
		break
	}
	return streak
}

func tradesSince(trades []models.Trade, since time.Time) int {
	n := 0
	for _, t := range trades {
		if !t.Timestamp.Before(since) {
			n++
		}
	}
	return n
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
