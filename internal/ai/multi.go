package ai

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"cryptotrader/internal/models"
)

// MultiDecider dispatches to one OpenAIDecider per distinct AIModelID,
// since a Model's ai_provider/ai_model_id (§3) is per-Model configuration
// but internal/trading.Executor holds a single shared AIDecider across
// every model it cycles. Instances are built lazily and cached by model
// name so a cycle never pays client-construction cost twice.
type MultiDecider struct {
	apiKey string
	log    zerolog.Logger

	mu       sync.Mutex
	deciders map[string]*OpenAIDecider
}

// NewMultiDecider builds a per-model-name OpenAIDecider cache sharing one
// API key, the process-wide OpenAI credential (§6 config).
func NewMultiDecider(apiKey string, log zerolog.Logger) *MultiDecider {
	return &MultiDecider{apiKey: apiKey, log: log, deciders: make(map[string]*OpenAIDecider)}
}

func (m *MultiDecider) deciderFor(modelName string) *OpenAIDecider {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.deciders[modelName]; ok {
		return d
	}
	d := NewOpenAIDecider(m.apiKey, modelName, m.log)
	m.deciders[modelName] = d
	return d
}

// Decide routes to the OpenAIDecider for model.AIModelID. Only the
// "openai" provider is currently supported (§3); any other ai_provider
// value fails the call with an incident-worthy error rather than
// silently substituting a default.
func (m *MultiDecider) Decide(ctx context.Context, model models.Model, settings models.ModelSettings, portfolio models.Portfolio, snapshots map[string]models.MarketSnapshot) (map[string]models.Decision, error) {
	if model.AIProvider != "" && model.AIProvider != "openai" {
		return nil, fmt.Errorf("ai decision call: unsupported ai_provider %q", model.AIProvider)
	}
	return m.deciderFor(model.AIModelID).Decide(ctx, model, settings, portfolio, snapshots)
}
