// Package automation implements the AutomationHandler: what happens to a
// risk-approved decision, by automation level (§4.3). Grounded on
// internal/trading/pipeline.go's shouldExecute and
// internal/agents/orchestrator.go's shouldExecute/RecordTrade — the
// teacher's single-mode gate generalized to three explicit levels plus a
// full-auto auto-pause trigger.
package automation

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"cryptotrader/internal/models"
	"cryptotrader/internal/pending"
	"cryptotrader/internal/store"
)

// Action is what a Handler decides to do with a risk-approved decision.
type Action string

const (
	ActionLogOnly    Action = "log only"
	ActionQueued     Action = "queued"
	ActionExecuteNow Action = "execute now"
)

// Result is Process's return value.
type Result struct {
	Action  Action
	Pending *models.PendingDecision // set when Action == ActionQueued
}

// AutoPauseContext supplies the data an auto-pause evaluation needs; the
// Handler loads it through its AutoPauseContextFunc.
type AutoPauseContext struct {
	ConsecutiveLosses int
	Last10WinRatePct  int
	Last10Closed      int
	TodayRealizedPnLPct decimal.Decimal
}

// AutoPauseContextFunc loads a fresh AutoPauseContext for a model.
type AutoPauseContextFunc func(ctx context.Context, modelID int64) (AutoPauseContext, error)

// Handler is the AutomationHandler (§4.3).
type Handler struct {
	store       store.Store
	pending     *pending.Queue
	loadContext AutoPauseContextFunc
}

// New builds a Handler.
func New(st store.Store, pendingQueue *pending.Queue, loadContext AutoPauseContextFunc) *Handler {
	return &Handler{store: st, pending: pendingQueue, loadContext: loadContext}
}

// Process decides what to do with a risk-approved decision, per the
// model's current automation level.
func (h *Handler) Process(ctx context.Context, modelID int64, level models.AutomationLevel, settings models.ModelSettings, decision models.Decision) (Result, error) {
	switch level {
	case models.AutomationManual:
		return Result{Action: ActionLogOnly}, nil

	case models.AutomationSemi:
		p, err := h.pending.Create(ctx, modelID, decision)
		if err != nil {
			return Result{}, err
		}
		return Result{Action: ActionQueued, Pending: p}, nil

	case models.AutomationFull:
		triggered, reason, err := h.checkAutoPause(ctx, modelID, settings)
		if err != nil {
			return Result{}, err
		}
		if triggered {
			if err := h.store.UpdateModelAutomation(ctx, modelID, models.AutomationSemi); err != nil {
				return Result{}, err
			}
			mID := modelID
			if _, err := h.store.WriteIncident(ctx, &models.Incident{
				ModelID: &mID, Type: models.IncidentAutoPause, Severity: models.SeverityHigh,
				Message: "full automation auto-paused to semi: " + reason,
				Details: map[string]any{"reason": reason}, Timestamp: time.Now(),
			}); err != nil {
				return Result{}, err
			}
			p, err := h.pending.Create(ctx, modelID, decision)
			if err != nil {
				return Result{}, err
			}
			return Result{Action: ActionQueued, Pending: p}, nil
		}
		return Result{Action: ActionExecuteNow}, nil
	}
	return Result{Action: ActionLogOnly}, nil
}

// checkAutoPause evaluates the three full-auto triggers from §4.3 in
// order, returning the first one that fires.
func (h *Handler) checkAutoPause(ctx context.Context, modelID int64, settings models.ModelSettings) (bool, string, error) {
	if !settings.AutoPauseEnabled {
		return false, "", nil
	}

	apCtx, err := h.loadContext(ctx, modelID)
	if err != nil {
		return false, "", err
	}

	if apCtx.ConsecutiveLosses >= settings.AutoPauseConsecutiveLosses {
		return true, "consecutive losses at or above auto_pause_consecutive_losses", nil
	}
	if apCtx.Last10Closed >= 10 {
		threshold, _ := settings.AutoPauseWinRateThresholdPct.Float64()
		if float64(apCtx.Last10WinRatePct) < threshold {
			return true, "rolling win rate over last 10 closed trades below auto_pause_win_rate_threshold", nil
		}
	}
	threshold := settings.MaxDailyLossPct.Neg()
	if apCtx.TodayRealizedPnLPct.LessThanOrEqual(threshold) {
		return true, "today's realized pnl pct at or beyond -max_daily_loss_pct", nil
	}
	return false, "", nil
}
