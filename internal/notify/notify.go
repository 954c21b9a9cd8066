// Package notify sends operator-facing notifications for trades and
// incidents. It is ambient: the core never blocks on it, and a failed
// notification is logged but never turns into an incident itself.
package notify

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"cryptotrader/internal/models"
)

// Notifier is implemented by every notification channel.
type Notifier interface {
	SendTrade(ctx context.Context, t models.Trade) error
	SendIncident(ctx context.Context, inc models.Incident) error
}

// Level filters which events reach a channel.
type Level string

const (
	LevelAll           Level = "all"
	LevelTradesOnly    Level = "trades_only"
	LevelIncidentsOnly Level = "incidents_only"
)

// TerminalNotifier logs notifications through zerolog. cmd/server uses it
// as the channel when notifications are enabled in config; when they are
// disabled, a no-op notifier is used instead.
type TerminalNotifier struct {
	log   zerolog.Logger
	level Level
}

// NewTerminalNotifier builds a console/log notifier at the given level.
func NewTerminalNotifier(log zerolog.Logger, level Level) *TerminalNotifier {
	if level == "" {
		level = LevelAll
	}
	return &TerminalNotifier{log: log.With().Str("component", "notify").Logger(), level: level}
}

func (n *TerminalNotifier) SendTrade(ctx context.Context, t models.Trade) error {
	if n.level == LevelIncidentsOnly {
		return nil
	}
	n.log.Info().
		Int64("model_id", t.ModelID).
		Str("coin", t.Coin).
		Str("side", string(t.Side)).
		Str("quantity", t.Quantity.String()).
		Str("price", t.Price.String()).
		Str("realized_pnl", t.RealizedPnL.String()).
		Msg("trade notification")
	return nil
}

func (n *TerminalNotifier) SendIncident(ctx context.Context, inc models.Incident) error {
	if n.level == LevelTradesOnly {
		return nil
	}
	event := n.log.Warn()
	if inc.ModelID != nil {
		event = event.Int64("model_id", *inc.ModelID)
	}
	event.Str("type", string(inc.Type)).Str("severity", string(inc.Severity)).Msg(inc.Message)
	return nil
}

// Multi fans a notification out to every configured channel, collecting
// (not failing fast on) per-channel errors.
type Multi struct {
	channels []Notifier
}

// NewMulti builds a fan-out notifier.
func NewMulti(channels ...Notifier) *Multi {
	return &Multi{channels: channels}
}

func (m *Multi) SendTrade(ctx context.Context, t models.Trade) error {
	var firstErr error
	for _, c := range m.channels {
		if err := c.SendTrade(ctx, t); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("notify channel failed: %w", err)
		}
	}
	return firstErr
}

func (m *Multi) SendIncident(ctx context.Context, inc models.Incident) error {
	var firstErr error
	for _, c := range m.channels {
		if err := c.SendIncident(ctx, inc); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("notify channel failed: %w", err)
		}
	}
	return firstErr
}

// noop is used when notifications are disabled in config.
type noop struct{}

func (noop) SendTrade(context.Context, models.Trade) error       { return nil }
func (noop) SendIncident(context.Context, models.Incident) error { return nil }

// NewNoop returns a Notifier that does nothing.
func NewNoop() Notifier { return noop{} }
