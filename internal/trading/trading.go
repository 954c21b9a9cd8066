// Package trading implements the TradingExecutor orchestrator:
// RunCycle(model_id) composes MarketData, an AIDecider, RiskManager,
// AutomationHandler, and an EnvironmentExecutor into the eight-step cycle
// from §4.4. Grounded on internal/trading/pipeline.go's Process (risk-
// then-automation sequencing) and internal/agents/orchestrator.go's
// ProcessSymbol (parallel-agent fan-out, here the single per-model AI
// call), merged into one per-model cycle.
package trading

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"cryptotrader/internal/automation"
	cryptoerrors "cryptotrader/internal/errors"
	"cryptotrader/internal/execution"
	"cryptotrader/internal/market"
	"cryptotrader/internal/models"
	"cryptotrader/internal/notify"
	"cryptotrader/internal/risk"
	"cryptotrader/internal/security"
	"cryptotrader/internal/store"
)

// AIDecider is the AI decision-source contract (§6): one call per cycle,
// returning a decision for every coin the model is configured to trade.
type AIDecider interface {
	Decide(ctx context.Context, model models.Model, settings models.ModelSettings, portfolio models.Portfolio, snapshots map[string]models.MarketSnapshot) (map[string]models.Decision, error)
}

// CoinOutcome is what happened to one coin's decision during a cycle.
type CoinOutcome struct {
	Coin   string
	Action string // "executed", "pending", "skipped", "logged"
	Reason string
}

// CycleReport is RunCycle's return value, used by both the scheduler and
// a manually-triggered API path (§4.4 step 7).
type CycleReport struct {
	ModelID  int64
	Outcomes []CoinOutcome
}

func (r CycleReport) countWhere(action string) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Action == action {
			n++
		}
	}
	return n
}

// Executed, Pending, Skipped summarize the report's outcome counts.
func (r CycleReport) Executed() int { return r.countWhere("executed") }
func (r CycleReport) Pending() int  { return r.countWhere("pending") }
func (r CycleReport) Skipped() int  { return r.countWhere("skipped") }

// ExecutorFactory resolves the EnvironmentExecutor to use for a model,
// by its current Environment (simulation vs. live).
type ExecutorFactory func(model models.Model) (execution.Executor, error)

// Executor is the TradingExecutor (§4.4).
type Executor struct {
	store       store.Store
	marketData  *market.Data
	ai          AIDecider
	executorFor ExecutorFactory
	automation  *automation.Handler
	notifier    notify.Notifier
	auditor     *security.AuditLogger
	log         zerolog.Logger

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// New builds a TradingExecutor. Notifications default to a no-op channel;
// call SetNotifier to wire a real one.
func New(st store.Store, marketData *market.Data, ai AIDecider, executorFor ExecutorFactory, automationHandler *automation.Handler, log zerolog.Logger) *Executor {
	return &Executor{
		store: st, marketData: marketData, ai: ai, executorFor: executorFor, automation: automationHandler,
		notifier: notify.NewNoop(), log: log.With().Str("component", "trading_executor").Logger(), locks: make(map[int64]*sync.Mutex),
	}
}

// SetNotifier wires the operator-facing notification channel used for
// executed trades and incidents raised during a cycle.
func (e *Executor) SetNotifier(n notify.Notifier) { e.notifier = n }

// SetAuditor wires a persistent, append-only audit trail for every
// executed trade (§6 security.audit_enabled). Left nil, no audit entries
// are written.
func (e *Executor) SetAuditor(al *security.AuditLogger) { e.auditor = al }

func (e *Executor) lockFor(modelID int64) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[modelID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[modelID] = l
	}
	return l
}

// RunCycle runs the eight-step cycle from §4.4 for one model.
func (e *Executor) RunCycle(ctx context.Context, modelID int64) (CycleReport, error) {
	report := CycleReport{ModelID: modelID}

	// Step 1: load model/settings; no-op unless active.
	model, err := e.store.GetModel(ctx, modelID)
	if err != nil {
		return report, err
	}
	if model.Status != models.ModelActive {
		return report, nil
	}
	settings, err := e.store.GetSettings(ctx, modelID)
	if err != nil {
		return report, err
	}

	// Step 2: per-model lock.
	lock := e.lockFor(modelID)
	lock.Lock()
	defer lock.Unlock()

	// Step 3: snapshot market and portfolio.
	snapshots, err := e.marketData.SnapshotAll(ctx, model.Coins)
	if err != nil {
		e.writeIncident(ctx, modelID, models.IncidentAPIError, models.SeverityHigh, "market snapshot failed", err)
		return report, err
	}
	portfolio, err := e.store.GetPortfolio(ctx, modelID)
	if err != nil {
		e.writeIncident(ctx, modelID, models.IncidentExecutionError, models.SeverityHigh, "portfolio snapshot failed", err)
		return report, err
	}
	portfolio.TotalValue = totalValue(*portfolio, snapshots)

	// Step 4: ask AIDecider.
	decisions, err := e.ai.Decide(ctx, *model, *settings, *portfolio, snapshots)
	if err != nil {
		e.writeIncident(ctx, modelID, models.IncidentAPIError, models.SeverityHigh, "AI decision call failed", err)
		return report, err
	}

	stats, err := e.computeDailyStats(ctx, modelID, portfolio.TotalValue)
	if err != nil {
		return report, err
	}

	// Step 5: deterministic alphabetical order over coins with a decision.
	coins := make([]string, 0, len(decisions))
	for coin := range decisions {
		coins = append(coins, coin)
	}
	sort.Strings(coins)

	for _, coin := range coins {
		decision := decisions[coin]
		if decision.Signal == models.SignalHold {
			report.Outcomes = append(report.Outcomes, CoinOutcome{Coin: coin, Action: "skipped", Reason: "hold"})
			continue
		}

		result := risk.Evaluate(risk.Input{
			ModelID: modelID, Decision: decision, Portfolio: *portfolio, Settings: *settings,
			Automation: model.Automation, Now: time.Now(),
			DailyTradeCount: stats.dailyTradeCount, TodayRealizedPnL: stats.todayRealizedPnL,
			StartOfDayTotalValue: stats.startOfDayTotalValue, DrawdownPct: stats.drawdownPct,
		})
		if !result.Allow {
			e.writeIncident(ctx, modelID, models.IncidentTradeRejected, result.Severity,
				"risk denied "+coin+": "+result.Reason, nil)
			report.Outcomes = append(report.Outcomes, CoinOutcome{Coin: coin, Action: "skipped", Reason: result.Reason})
			continue
		}

		// Step 6: route by automation level.
		action, err := e.automation.Process(ctx, modelID, model.Automation, *settings, decision)
		if err != nil {
			if errors.Is(err, cryptoerrors.ErrDuplicatePending) {
				// pending.Create already wrote the TRADE_REJECTED incident;
				// a duplicate is simply dropped, not an execution failure.
				report.Outcomes = append(report.Outcomes, CoinOutcome{Coin: coin, Action: "skipped", Reason: "duplicate pending decision"})
				continue
			}
			e.writeIncident(ctx, modelID, models.IncidentExecutionError, models.SeverityHigh, "automation handling failed for "+coin, err)
			report.Outcomes = append(report.Outcomes, CoinOutcome{Coin: coin, Action: "skipped", Reason: err.Error()})
			continue
		}

		switch action.Action {
		case automation.ActionExecuteNow:
			executor, err := e.executorFor(*model)
			if err != nil {
				e.writeIncident(ctx, modelID, models.IncidentExecutionError, models.SeverityHigh, "no executor for "+coin, err)
				report.Outcomes = append(report.Outcomes, CoinOutcome{Coin: coin, Action: "skipped", Reason: err.Error()})
				continue
			}
			execResult, err := executor.Execute(ctx, modelID, coin, decision, snapshots[coin])
			if err != nil {
				e.writeIncident(ctx, modelID, models.IncidentExecutionError, models.SeverityHigh, "execution failed for "+coin, err)
				report.Outcomes = append(report.Outcomes, CoinOutcome{Coin: coin, Action: "skipped", Reason: err.Error()})
				continue
			}
			if execResult.Status == execution.StatusFailed {
				report.Outcomes = append(report.Outcomes, CoinOutcome{Coin: coin, Action: "skipped", Reason: execResult.Reason})
				continue
			}
			report.Outcomes = append(report.Outcomes, CoinOutcome{Coin: coin, Action: "executed"})
			if settings.NotifyOnTrade {
				if err := e.notifier.SendTrade(ctx, execResult.Trade); err != nil {
					e.log.Warn().Err(err).Msg("trade notification failed")
				}
			}
			if e.auditor != nil {
				orderID := ""
				if execResult.Trade.ExchangeOrderID != nil {
					orderID = *execResult.Trade.ExchangeOrderID
				}
				qty, _ := execResult.Trade.Quantity.Float64()
				price, _ := execResult.Trade.Price.Float64()
				if err := e.auditor.LogTradeExecuted(ctx, modelID, orderID, coin, string(execResult.Trade.Side), qty, price, true, ""); err != nil {
					e.log.Warn().Err(err).Msg("audit log write failed")
				}
			}
		case automation.ActionQueued:
			report.Outcomes = append(report.Outcomes, CoinOutcome{Coin: coin, Action: "pending"})
		case automation.ActionLogOnly:
			report.Outcomes = append(report.Outcomes, CoinOutcome{Coin: coin, Action: "logged"})
		}
	}

	return report, nil
}

func (e *Executor) writeIncident(ctx context.Context, modelID int64, typ models.IncidentType, severity models.Severity, message string, err error) {
	details := map[string]any{}
	if err != nil {
		details["error"] = err.Error()
	}
	id := modelID
	inc := models.Incident{ModelID: &id, Type: typ, Severity: severity, Message: message, Details: details, Timestamp: time.Now()}
	if _, writeErr := e.store.WriteIncident(ctx, &inc); writeErr != nil {
		e.log.Error().Err(writeErr).Msg("failed to write incident")
		return
	}
	if settings, sErr := e.store.GetSettings(ctx, modelID); sErr == nil && settings.NotifyOnIncident {
		if notifyErr := e.notifier.SendIncident(ctx, inc); notifyErr != nil {
			e.log.Warn().Err(notifyErr).Msg("incident notification failed")
		}
	}
}

func totalValue(portfolio models.Portfolio, snapshots map[string]models.MarketSnapshot) decimal.Decimal {
	total := portfolio.Cash
	for _, pos := range portfolio.Positions {
		snap, ok := snapshots[pos.Coin]
		price := pos.AverageEntryPrice
		if ok {
			price = snap.Price
		}
		total = total.Add(pos.Notional(price))
	}
	return total
}

type dailyStats struct {
	dailyTradeCount      int
	todayRealizedPnL     decimal.Decimal
	startOfDayTotalValue decimal.Decimal
	drawdownPct          decimal.Decimal
}

// computeDailyStats derives the day-scoped figures RiskManager needs from
// the model's trade history. The trading day is the UTC calendar day.
func (e *Executor) computeDailyStats(ctx context.Context, modelID int64, currentTotalValue decimal.Decimal) (dailyStats, error) {
	start := startOfUTCDay(time.Now())
	trades, err := e.store.ListTrades(ctx, modelID, start)
	if err != nil {
		return dailyStats{}, err
	}

	stats := dailyStats{dailyTradeCount: len(trades)}
	for _, t := range trades {
		stats.todayRealizedPnL = stats.todayRealizedPnL.Add(t.RealizedPnL)
	}
	stats.startOfDayTotalValue = currentTotalValue.Sub(stats.todayRealizedPnL)

	if stats.startOfDayTotalValue.GreaterThan(decimal.Zero) && currentTotalValue.LessThan(stats.startOfDayTotalValue) {
		drop := stats.startOfDayTotalValue.Sub(currentTotalValue)
		stats.drawdownPct = drop.Div(stats.startOfDayTotalValue).Mul(decimal.NewFromInt(100))
	}
	return stats, nil
}

func startOfUTCDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
