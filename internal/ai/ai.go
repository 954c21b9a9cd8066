// Package ai implements the AIDecider the trading executor calls once per
// cycle (§4.4, §6). Grounded on internal/agents/llm.go's OpenAIClient (the
// chat-completion plumbing) and internal/agents/trader.go's MakeFinalDecision
// (prompt-then-parse shape), collapsed from the teacher's multi-agent
// consensus into a single structured-output call per model per cycle.
package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"cryptotrader/internal/models"
)

// chatClient is the slice of the OpenAI client OpenAIDecider depends on,
// mirroring internal/agents/technical.go's LLMClient seam so tests can
// fake the model response instead of calling the network.
type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIDecider is the default AIDecider: one chat-completion call per
// model per cycle, asked to return a JSON object keyed by coin.
type OpenAIDecider struct {
	client chatClient
	model  string
	log    zerolog.Logger
}

// NewOpenAIDecider builds an OpenAIDecider for a given API key and model
// name. The model name is per-Model configuration (§3: ai_provider,
// ai_model_id), not a package-wide default.
func NewOpenAIDecider(apiKey, model string, log zerolog.Logger) *OpenAIDecider {
	return newOpenAIDecider(openai.NewClient(apiKey), model, log)
}

func newOpenAIDecider(client chatClient, model string, log zerolog.Logger) *OpenAIDecider {
	return &OpenAIDecider{
		client: client,
		model:  model,
		log:    log.With().Str("component", "ai_decider").Logger(),
	}
}

// rawDecision is the wire shape the model is asked to emit for one coin.
type rawDecision struct {
	Signal        string  `json:"signal"`
	Quantity      string  `json:"quantity"`
	Leverage      string  `json:"leverage"`
	StopLoss      *string `json:"stop_loss"`
	TakeProfit    *string `json:"take_profit"`
	Confidence    float64 `json:"confidence"`
	Justification string  `json:"justification"`
}

// Decide asks the model for one decision per coin in snapshots. A coin
// the response omits, or that fails to parse, is coerced to Hold rather
// than failing the whole cycle — one malformed entry should not block
// every other coin's decision.
func (d *OpenAIDecider) Decide(ctx context.Context, model models.Model, settings models.ModelSettings, portfolio models.Portfolio, snapshots map[string]models.MarketSnapshot) (map[string]models.Decision, error) {
	resp, err := d.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:          d.model,
		Temperature:    float32(settings.AITemperature),
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt()},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt(model, settings, portfolio, snapshots)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("ai decision call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("ai decision call: no choices returned")
	}

	var raw map[string]rawDecision
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &raw); err != nil {
		return nil, fmt.Errorf("ai decision call: parsing response: %w", err)
	}

	out := make(map[string]models.Decision, len(snapshots))
	for coin, snap := range snapshots {
		r, ok := raw[coin]
		if !ok {
			out[coin] = holdDecision(coin, snap.Price, "no decision returned for this coin")
			continue
		}
		decision, err := r.toDecision(coin, snap.Price)
		if err != nil {
			d.log.Warn().Err(err).Str("coin", coin).Msg("discarding malformed decision, defaulting to hold")
			out[coin] = holdDecision(coin, snap.Price, "malformed decision: "+err.Error())
			continue
		}
		out[coin] = decision
	}
	return out, nil
}

func (r rawDecision) toDecision(coin string, price decimal.Decimal) (models.Decision, error) {
	signal := models.Signal(strings.ToLower(strings.TrimSpace(r.Signal)))
	switch signal {
	case models.SignalBuyToEnter, models.SignalSellToEnter, models.SignalClose, models.SignalHold:
	default:
		return models.Decision{}, fmt.Errorf("unrecognized signal %q", r.Signal)
	}

	decision := models.Decision{
		Coin: coin, Signal: signal, EntryPrice: price,
		Confidence: r.Confidence, Justification: r.Justification,
	}

	if signal == models.SignalHold {
		return decision, nil
	}

	qty, err := decimal.NewFromString(r.Quantity)
	if err != nil {
		return models.Decision{}, fmt.Errorf("quantity %q: %w", r.Quantity, err)
	}
	decision.Quantity = qty

	if r.Leverage != "" {
		lev, err := decimal.NewFromString(r.Leverage)
		if err != nil {
			return models.Decision{}, fmt.Errorf("leverage %q: %w", r.Leverage, err)
		}
		decision.Leverage = lev
	} else {
		decision.Leverage = decimal.NewFromInt(1)
	}

	if r.StopLoss != nil {
		sl, err := decimal.NewFromString(*r.StopLoss)
		if err != nil {
			return models.Decision{}, fmt.Errorf("stop_loss %q: %w", *r.StopLoss, err)
		}
		decision.StopLoss = &sl
	}
	if r.TakeProfit != nil {
		tp, err := decimal.NewFromString(*r.TakeProfit)
		if err != nil {
			return models.Decision{}, fmt.Errorf("take_profit %q: %w", *r.TakeProfit, err)
		}
		decision.TakeProfit = &tp
	}

	return decision, nil
}

func holdDecision(coin string, price decimal.Decimal, reason string) models.Decision {
	return models.Decision{Coin: coin, Signal: models.SignalHold, EntryPrice: price, Justification: reason}
}

func systemPrompt() string {
	return `You are an autonomous cryptocurrency trading strategist operating one model's
portfolio. For every coin listed in the user message, decide one of: buy_to_enter,
sell_to_enter, close, hold. Respond with a single JSON object whose keys are the
coin symbols you were given and whose values have the shape:
{"signal": "...", "quantity": "0.0", "leverage": "1", "stop_loss": null,
"take_profit": null, "confidence": 0.0, "justification": "..."}
quantity, leverage, stop_loss, and take_profit are decimal strings, never floats.
Omit stop_loss/take_profit (null) when you have no view. confidence is 0..1.
Respond with JSON only, no prose outside the object.`
}

func userPrompt(model models.Model, settings models.ModelSettings, portfolio models.Portfolio, snapshots map[string]models.MarketSnapshot) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Model: %s (%s)\n", model.Name, model.Environment)
	fmt.Fprintf(&sb, "Cash: %s  Total value: %s\n", portfolio.Cash.String(), portfolio.TotalValue.String())
	fmt.Fprintf(&sb, "Max position size: %s%% of total value  Max open positions: %d\n",
		settings.MaxPositionSizePct.String(), settings.MaxOpenPositions)
	fmt.Fprintf(&sb, "Max daily loss: %s%%  Max drawdown: %s%%\n",
		settings.MaxDailyLossPct.String(), settings.MaxDrawdownPct.String())

	sb.WriteString("\nOpen positions:\n")
	if len(portfolio.Positions) == 0 {
		sb.WriteString("  none\n")
	}
	for _, p := range portfolio.Positions {
		fmt.Fprintf(&sb, "  %s %s qty=%s avg_entry=%s\n", p.Coin, p.Side, p.Quantity.String(), p.AverageEntryPrice.String())
	}

	sb.WriteString("\nMarket snapshots:\n")
	for coin, snap := range snapshots {
		fmt.Fprintf(&sb, "  %s price=%s 24h_change=%s%%\n", coin, snap.Price.String(), snap.Change24hPct.String())
		for name, v := range snap.Indicators {
			fmt.Fprintf(&sb, "    %s=%s\n", name, v.String())
		}
	}

	return sb.String()
}
