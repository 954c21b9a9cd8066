// Package store defines the persistence contract shared by every
// subsystem and a SQLite-backed implementation of it. Store is the single
// source of truth (§5); callers serialize writes with per-model and
// global locks, not with database-level locking.
package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"cryptotrader/internal/models"
)

// Store is the durable-state contract from §6: models, model_settings,
// risk_profiles, profile_sessions, trades, positions, pending_decisions,
// incidents, providers, exchange_credentials.
type Store interface {
	// Models
	CreateModel(ctx context.Context, m *models.Model) (int64, error)
	GetModel(ctx context.Context, id int64) (*models.Model, error)
	ListModels(ctx context.Context) ([]models.Model, error)
	ListActiveModels(ctx context.Context) ([]models.Model, error)
	UpdateModelStatus(ctx context.Context, id int64, status models.ModelStatus) error
	UpdateModelEnvironment(ctx context.Context, id int64, env models.Environment) error
	UpdateModelAutomation(ctx context.Context, id int64, level models.AutomationLevel) error

	// ModelSettings
	GetSettings(ctx context.Context, modelID int64) (*models.ModelSettings, error)
	SaveSettings(ctx context.Context, s *models.ModelSettings) error

	// RiskProfile
	GetRiskProfile(ctx context.Context, id models.ProfileID) (*models.RiskProfile, error)
	ListRiskProfiles(ctx context.Context) ([]models.RiskProfile, error)
	SaveCustomRiskProfile(ctx context.Context, p *models.RiskProfile) (models.ProfileID, error)

	// ProfileSession
	OpenProfileSession(ctx context.Context, s *models.ProfileSession) (int64, error)
	CloseProfileSession(ctx context.Context, id int64, end time.Time, aggregates models.ProfileSession) error
	GetOpenProfileSession(ctx context.Context, modelID int64) (*models.ProfileSession, error)
	ListProfileSessions(ctx context.Context, modelID int64) ([]models.ProfileSession, error)

	// Trade / Position
	AppendTrade(ctx context.Context, t *models.Trade) (int64, error)
	ListTrades(ctx context.Context, modelID int64, since time.Time) ([]models.Trade, error)
	RecentTrades(ctx context.Context, modelID int64, limit int) ([]models.Trade, error)
	GetPortfolio(ctx context.Context, modelID int64) (*models.Portfolio, error)
	UpsertPosition(ctx context.Context, p *models.Position) error
	DeletePosition(ctx context.Context, modelID int64, coin string, side models.PositionSide) error

	// PendingDecision
	CreatePending(ctx context.Context, p *models.PendingDecision) (int64, error)
	GetPending(ctx context.Context, id int64) (*models.PendingDecision, error)
	FindPendingByModelCoin(ctx context.Context, modelID int64, coin string) (*models.PendingDecision, error)
	ListPending(ctx context.Context, modelID *int64) ([]models.PendingDecision, error)
	TransitionPending(ctx context.Context, id int64, status models.PendingStatus, note *string, resolvedQty, resolvedLev *decimal.Decimal) error
	ExpirePendingBefore(ctx context.Context, now time.Time) (int, error)

	// Incident
	WriteIncident(ctx context.Context, inc *models.Incident) (int64, error)
	ListIncidents(ctx context.Context, modelID *int64, limit int) ([]models.Incident, error)

	// ExchangeCredentials: opaque byte strings keyed by (model, environment).
	SaveCredentials(ctx context.Context, modelID int64, env models.ExchangeEnvironment, apiKey, apiSecret []byte) error
	GetCredentials(ctx context.Context, modelID int64, env models.ExchangeEnvironment) (apiKey, apiSecret []byte, err error)

	Close() error
}
