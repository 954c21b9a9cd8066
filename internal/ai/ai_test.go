package ai

import (
	"context"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptotrader/internal/models"
)

type fakeChatClient struct {
	content string
	err     error
}

func (f *fakeChatClient) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: f.content}},
		},
	}, nil
}

func snapshots() map[string]models.MarketSnapshot {
	return map[string]models.MarketSnapshot{
		"BTC": {Coin: "BTC", Price: decimal.NewFromInt(40000)},
		"ETH": {Coin: "ETH", Price: decimal.NewFromInt(2500)},
	}
}

func TestDecide_ParsesValidResponse(t *testing.T) {
	client := &fakeChatClient{content: `{
		"BTC": {"signal": "buy_to_enter", "quantity": "0.01", "leverage": "1", "confidence": 0.8, "justification": "momentum"},
		"ETH": {"signal": "hold", "confidence": 0.5, "justification": "no edge"}
	}`}
	d := newOpenAIDecider(client, "gpt-4o-mini", zerolog.Nop())

	decisions, err := d.Decide(context.Background(), models.Model{Name: "m1"}, models.ModelSettings{}, models.Portfolio{}, snapshots())
	require.NoError(t, err)
	require.Len(t, decisions, 2)

	btc := decisions["BTC"]
	assert.Equal(t, models.SignalBuyToEnter, btc.Signal)
	assert.True(t, btc.Quantity.Equal(decimal.NewFromFloat(0.01)))
	assert.True(t, btc.Leverage.Equal(decimal.NewFromInt(1)))

	eth := decisions["ETH"]
	assert.Equal(t, models.SignalHold, eth.Signal)
}

func TestDecide_MissingCoinDefaultsToHold(t *testing.T) {
	client := &fakeChatClient{content: `{"BTC": {"signal": "hold", "confidence": 0.5}}`}
	d := newOpenAIDecider(client, "gpt-4o-mini", zerolog.Nop())

	decisions, err := d.Decide(context.Background(), models.Model{}, models.ModelSettings{}, models.Portfolio{}, snapshots())
	require.NoError(t, err)
	assert.Equal(t, models.SignalHold, decisions["ETH"].Signal)
	assert.Contains(t, decisions["ETH"].Justification, "no decision returned")
}

func TestDecide_MalformedSignalDefaultsToHoldWithoutFailingCycle(t *testing.T) {
	client := &fakeChatClient{content: `{
		"BTC": {"signal": "moon", "confidence": 0.9},
		"ETH": {"signal": "hold", "confidence": 0.5}
	}`}
	d := newOpenAIDecider(client, "gpt-4o-mini", zerolog.Nop())

	decisions, err := d.Decide(context.Background(), models.Model{}, models.ModelSettings{}, models.Portfolio{}, snapshots())
	require.NoError(t, err)
	assert.Equal(t, models.SignalHold, decisions["BTC"].Signal)
	assert.Contains(t, decisions["BTC"].Justification, "malformed decision")
}

func TestDecide_PropagatesTransportError(t *testing.T) {
	client := &fakeChatClient{err: assert.AnError}
	d := newOpenAIDecider(client, "gpt-4o-mini", zerolog.Nop())

	_, err := d.Decide(context.Background(), models.Model{}, models.ModelSettings{}, models.Portfolio{}, snapshots())
	require.Error(t, err)
}

func TestDecide_InvalidQuantityDefaultsToHold(t *testing.T) {
	client := &fakeChatClient{content: `{
		"BTC": {"signal": "buy_to_enter", "quantity": "not-a-number", "confidence": 0.6},
		"ETH": {"signal": "hold", "confidence": 0.5}
	}`}
	d := newOpenAIDecider(client, "gpt-4o-mini", zerolog.Nop())

	decisions, err := d.Decide(context.Background(), models.Model{}, models.ModelSettings{}, models.Portfolio{}, snapshots())
	require.NoError(t, err)
	assert.Equal(t, models.SignalHold, decisions["BTC"].Signal)
}
