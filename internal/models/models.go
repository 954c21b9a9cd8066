// Package models defines the core domain types shared by every subsystem:
// models, settings, trades, positions, pending decisions, risk profiles,
// profile sessions, and incidents.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Environment is where a trade executes.
type Environment string

const (
	EnvironmentSimulation Environment = "simulation"
	EnvironmentLive       Environment = "live"
)

// ExchangeEnvironment selects which exchange endpoint live orders target.
type ExchangeEnvironment string

const (
	ExchangeTestnet ExchangeEnvironment = "testnet"
	ExchangeMainnet ExchangeEnvironment = "mainnet"
)

// AutomationLevel is how a risk-approved decision is acted upon.
type AutomationLevel string

const (
	AutomationManual AutomationLevel = "manual"
	AutomationSemi   AutomationLevel = "semi"
	AutomationFull   AutomationLevel = "full"
)

// ModelStatus is the operator-controlled lifecycle state of a Model.
type ModelStatus string

const (
	ModelActive ModelStatus = "active"
	ModelPaused ModelStatus = "paused"
)

// Model is the unit of trading: an AI decision source paired with a risk
// profile and a capital allocation.
type Model struct {
	ID                 int64
	Name               string
	AIProvider         string
	AIModelID          string
	Coins              []string
	InitialCapital     decimal.Decimal
	Status             ModelStatus
	Environment        Environment
	Automation         AutomationLevel
	ExchangeEnv        ExchangeEnvironment
	CreatedAt          time.Time
}

// ModelSettings is the 1:1 mutable tuning record for a Model. Fields owned
// by a RiskProfile are overwritten wholesale whenever a profile is applied;
// see internal/profile.
type ModelSettings struct {
	ModelID int64

	MaxPositionSizePct decimal.Decimal
	MaxDailyLossPct    decimal.Decimal
	MaxDailyTrades     int
	MaxOpenPositions   int
	MinCashReservePct  decimal.Decimal
	MaxDrawdownPct     decimal.Decimal

	TradingIntervalMinutes int
	FeeRate                decimal.Decimal // fraction, e.g. 0.001 = 0.1%
	AITemperature          float64

	AutoPauseEnabled               bool
	AutoPauseConsecutiveLosses     int
	AutoPauseWinRateThresholdPct   decimal.Decimal

	NotifyOnTrade    bool
	NotifyOnIncident bool

	ActiveProfileID *int64
}

// DefaultTradingIntervalMinutes is used when a model is created without an
// explicit cycle interval.
const DefaultTradingIntervalMinutes = 60

// MinTradingIntervalMinutes and MaxTradingIntervalMinutes bound the
// configurable per-model cycle interval (§4.7).
const (
	MinTradingIntervalMinutes = 5
	MaxTradingIntervalMinutes = 1440
)

// ClampInterval clamps a requested interval to the allowed range.
func ClampInterval(minutes int) int {
	if minutes < MinTradingIntervalMinutes {
		return MinTradingIntervalMinutes
	}
	if minutes > MaxTradingIntervalMinutes {
		return MaxTradingIntervalMinutes
	}
	return minutes
}
