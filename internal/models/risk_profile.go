package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProfileID identifies a risk profile, system or custom.
type ProfileID int64

// System profile ids are fixed and well-known so the profile engine and
// scheduler can reference them without a store round-trip.
const (
	ProfileUltraSafe ProfileID = iota + 1
	ProfileConservative
	ProfileBalanced
	ProfileAggressive
	ProfileScalper
)

// RiskProfile is a named, reusable bundle of ModelSettings risk fields.
type RiskProfile struct {
	ID          ProfileID
	Name        string
	Icon        string
	Description string
	IsSystem    bool
	CreatedAt   time.Time

	MaxPositionSizePct           decimal.Decimal
	MaxDailyLossPct              decimal.Decimal
	MaxDailyTrades               int
	MaxOpenPositions             int
	MinCashReservePct            decimal.Decimal
	MaxDrawdownPct               decimal.Decimal
}

// d is a small decimal-literal helper kept local to this file to avoid
// repeating decimal.NewFromInt/decimal.NewFromFloat noise below.
func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

// SystemProfiles returns the five built-in presets in the exact values
// mandated by §6. Balanced is the documented default.
func SystemProfiles() []RiskProfile {
	return []RiskProfile{
		{
			ID: ProfileUltraSafe, Name: "Ultra-Safe", Icon: "shield", IsSystem: true,
			Description:        "Minimal risk, small positions, tight loss limits.",
			MaxPositionSizePct: d(5), MaxDailyLossPct: d(1), MaxDailyTrades: 5,
			MaxOpenPositions: 2, MinCashReservePct: d(40), MaxDrawdownPct: d(8),
		},
		{
			ID: ProfileConservative, Name: "Conservative", Icon: "lock", IsSystem: true,
			Description:        "Modest position sizes with a healthy cash buffer.",
			MaxPositionSizePct: d(8), MaxDailyLossPct: d(2), MaxDailyTrades: 10,
			MaxOpenPositions: 3, MinCashReservePct: d(30), MaxDrawdownPct: d(10),
		},
		{
			ID: ProfileBalanced, Name: "Balanced", Icon: "scale", IsSystem: true,
			Description:        "Default profile: balanced risk and opportunity.",
			MaxPositionSizePct: d(10), MaxDailyLossPct: d(3), MaxDailyTrades: 20,
			MaxOpenPositions: 5, MinCashReservePct: d(20), MaxDrawdownPct: d(15),
		},
		{
			ID: ProfileAggressive, Name: "Aggressive", Icon: "flame", IsSystem: true,
			Description:        "Larger positions, higher loss tolerance.",
			MaxPositionSizePct: d(15), MaxDailyLossPct: d(5), MaxDailyTrades: 40,
			MaxOpenPositions: 7, MinCashReservePct: d(10), MaxDrawdownPct: d(20),
		},
		{
			ID: ProfileScalper, Name: "Scalper", Icon: "bolt", IsSystem: true,
			Description:        "High trade frequency, moderate position sizes.",
			MaxPositionSizePct: d(12), MaxDailyLossPct: d(4), MaxDailyTrades: 100,
			MaxOpenPositions: 8, MinCashReservePct: d(15), MaxDrawdownPct: d(18),
		},
	}
}

// ApplyTo overwrites the settings fields owned by a profile.
func (p RiskProfile) ApplyTo(s *ModelSettings) {
	s.MaxPositionSizePct = p.MaxPositionSizePct
	s.MaxDailyLossPct = p.MaxDailyLossPct
	s.MaxDailyTrades = p.MaxDailyTrades
	s.MaxOpenPositions = p.MaxOpenPositions
	s.MinCashReservePct = p.MinCashReservePct
	s.MaxDrawdownPct = p.MaxDrawdownPct
}

// ProfileSession attributes realized trading results to whichever profile
// was active during [StartTime, EndTime).
type ProfileSession struct {
	ID        int64
	ModelID   int64
	ProfileID ProfileID
	StartTime time.Time
	EndTime   *time.Time

	TradesExecuted int
	Wins           int
	Losses         int
	TotalPnL       decimal.Decimal
	MaxDrawdown    decimal.Decimal
}

// Open reports whether the session has not yet been closed.
func (s ProfileSession) Open() bool { return s.EndTime == nil }
