// Package pending implements the approval queue for semi-automated
// decisions: a state machine with a fixed 1h TTL, grounded on the
// teacher's PlanStatus lifecycle transitions in internal/store/store.go
// (§4.5).
package pending

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	cryptoerrors "cryptotrader/internal/errors"
	"cryptotrader/internal/execution"
	"cryptotrader/internal/models"
	"cryptotrader/internal/risk"
	"cryptotrader/internal/store"
)

// Modifications overrides quantity and/or leverage at approval time; all
// other Decision fields are immutable once queued (§4.5).
type Modifications struct {
	Quantity *decimal.Decimal
	Leverage *decimal.Decimal
}

// RiskContext supplies everything Evaluate needs beyond the decision
// itself, re-derived fresh at approval time so the re-check reflects
// current state rather than state at creation time.
type RiskContext struct {
	Portfolio            models.Portfolio
	Settings             models.ModelSettings
	Automation           models.AutomationLevel
	DailyTradeCount      int
	TodayRealizedPnL     decimal.Decimal
	StartOfDayTotalValue decimal.Decimal
	DrawdownPct          decimal.Decimal
}

// RiskContextFunc loads a fresh RiskContext for a model at approval time.
type RiskContextFunc func(ctx context.Context, modelID int64) (RiskContext, error)

// Queue is the PendingQueue (§4.5).
type Queue struct {
	store       store.Store
	executors   func(modelID int64) (execution.Executor, error)
	loadContext RiskContextFunc
	log         zerolog.Logger
}

// New builds a Queue. executors resolves the EnvironmentExecutor to use
// for a model at approval time (its current Environment may have changed
// since the decision was queued); loadContext resolves a fresh RiskContext.
func New(st store.Store, executors func(modelID int64) (execution.Executor, error), loadContext RiskContextFunc, log zerolog.Logger) *Queue {
	return &Queue{store: st, executors: executors, loadContext: loadContext, log: log.With().Str("component", "pending_queue").Logger()}
}

// Create writes a new pending decision with a 1h TTL. It rejects (with an
// incident) if a pending entry already exists for the same (model, coin).
func (q *Queue) Create(ctx context.Context, modelID int64, decision models.Decision) (*models.PendingDecision, error) {
	existing, err := q.store.FindPendingByModelCoin(ctx, modelID, decision.Coin)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Status == models.PendingStatusPending {
		id := modelID
		_, _ = q.store.WriteIncident(ctx, &models.Incident{
			ModelID: &id, Type: models.IncidentTradeRejected, Severity: models.SeverityLow,
			Message: "duplicate pending decision rejected for " + decision.Coin,
			Details: map[string]any{"coin": decision.Coin}, Timestamp: time.Now(),
		})
		return nil, cryptoerrors.ErrDuplicatePending
	}

	now := time.Now()
	p := &models.PendingDecision{
		ModelID: modelID, Coin: decision.Coin, Decision: decision,
		Status: models.PendingStatusPending, CreatedAt: now, ExpiresAt: now.Add(models.PendingDecisionTTL),
	}
	id, err := q.store.CreatePending(ctx, p)
	if err != nil {
		return nil, err
	}
	p.ID = id
	return p, nil
}

// Approve transitions pending → approved, re-checks risk against current
// state, and on approval immediately executes the (possibly modified)
// decision. Success transitions approved → executed and returns the
// Trade; a risk failure at approval time transitions back to rejected.
func (q *Queue) Approve(ctx context.Context, id int64, mods *Modifications) (execution.Result, error) {
	p, err := q.store.GetPending(ctx, id)
	if err != nil {
		return execution.Result{}, err
	}
	if p.Status != models.PendingStatusPending {
		return execution.Result{}, cryptoerrors.ErrAlreadyResolved
	}

	decision := p.Decision
	var resolvedQty, resolvedLev *decimal.Decimal
	if mods != nil {
		if mods.Quantity != nil {
			decision.Quantity = *mods.Quantity
			resolvedQty = mods.Quantity
		}
		if mods.Leverage != nil {
			decision.Leverage = *mods.Leverage
			resolvedLev = mods.Leverage
		}
	}

	if err := q.store.TransitionPending(ctx, id, models.PendingStatusApproved, nil, resolvedQty, resolvedLev); err != nil {
		return execution.Result{}, err
	}

	riskCtx, err := q.loadContext(ctx, p.ModelID)
	if err != nil {
		return execution.Result{}, err
	}

	result := risk.Evaluate(risk.Input{
		ModelID: p.ModelID, Decision: decision, Portfolio: riskCtx.Portfolio, Settings: riskCtx.Settings,
		Automation: riskCtx.Automation, Now: time.Now(), DailyTradeCount: riskCtx.DailyTradeCount,
		TodayRealizedPnL: riskCtx.TodayRealizedPnL, StartOfDayTotalValue: riskCtx.StartOfDayTotalValue,
		DrawdownPct: riskCtx.DrawdownPct,
	})
	if !result.Allow {
		reason := result.Reason
		_ = q.store.TransitionPending(ctx, id, models.PendingStatusRejected, &reason, resolvedQty, resolvedLev)
		modelID := p.ModelID
		_, _ = q.store.WriteIncident(ctx, &models.Incident{
			ModelID: &modelID, Type: models.IncidentTradeRejected, Severity: models.SeverityMedium,
			Message: "pending decision failed risk re-check at approval time",
			Details: map[string]any{"coin": p.Coin, "rule": result.Rule, "reason": result.Reason},
			Timestamp: time.Now(),
		})
		return execution.Result{}, cryptoerrors.NewRiskDeniedError(result.Rule, result.Reason)
	}

	executor, err := q.executors(p.ModelID)
	if err != nil {
		return execution.Result{}, err
	}

	snapshot := models.MarketSnapshot{Coin: p.Coin, Price: decision.EntryPrice, AsOf: time.Now()}
	execResult, err := executor.Execute(ctx, p.ModelID, p.Coin, decision, snapshot)
	if err != nil {
		return execution.Result{}, err
	}
	if execResult.Status == execution.StatusFailed {
		reason := execResult.Reason
		_ = q.store.TransitionPending(ctx, id, models.PendingStatusRejected, &reason, resolvedQty, resolvedLev)
		return execResult, nil
	}

	if err := q.store.TransitionPending(ctx, id, models.PendingStatusExecuted, nil, resolvedQty, resolvedLev); err != nil {
		return execution.Result{}, err
	}
	return execResult, nil
}

// Reject transitions pending → rejected; reason is stored verbatim.
func (q *Queue) Reject(ctx context.Context, id int64, reason string) error {
	p, err := q.store.GetPending(ctx, id)
	if err != nil {
		return err
	}
	if p.Status != models.PendingStatusPending {
		return cryptoerrors.ErrAlreadyResolved
	}
	return q.store.TransitionPending(ctx, id, models.PendingStatusRejected, &reason, nil, nil)
}

// ExpireSweep transitions all pending rows with expires_at < now to
// expired. Intended to run at least once per minute (§4.5, §4.7).
func (q *Queue) ExpireSweep(ctx context.Context) (int, error) {
	return q.store.ExpirePendingBefore(ctx, time.Now())
}

// List returns pending rows, optionally filtered by model, ordered by
// created_at ascending (guaranteed by the store implementation).
func (q *Queue) List(ctx context.Context, modelID *int64) ([]models.PendingDecision, error) {
	return q.store.ListPending(ctx, modelID)
}
