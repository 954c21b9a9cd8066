package automation

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cryptoerrors "cryptotrader/internal/errors"
	"cryptotrader/internal/execution"
	"cryptotrader/internal/models"
	"cryptotrader/internal/pending"
)

// memStore is a minimal in-memory store.Store fake covering exactly what
// Handler and the pending.Queue it drives exercise.
type memStore struct {
	automation models.AutomationLevel
	pendingRows map[int64]*models.PendingDecision
	nextID      int64
	trades      []models.Trade
	portfolio   models.Portfolio
	settings    models.ModelSettings
	incidents   []models.Incident
}

func newAutomationMemStore() *memStore {
	return &memStore{pendingRows: map[int64]*models.PendingDecision{}, nextID: 1}
}

func (m *memStore) CreateModel(context.Context, *models.Model) (int64, error) { return 0, nil }
func (m *memStore) GetModel(context.Context, int64) (*models.Model, error)    { return nil, nil }
func (m *memStore) ListModels(context.Context) ([]models.Model, error)       { return nil, nil }
func (m *memStore) ListActiveModels(context.Context) ([]models.Model, error) { return nil, nil }
func (m *memStore) UpdateModelStatus(context.Context, int64, models.ModelStatus) error { return nil }
func (m *memStore) UpdateModelEnvironment(context.Context, int64, models.Environment) error { return nil }
func (m *memStore) UpdateModelAutomation(ctx context.Context, id int64, level models.AutomationLevel) error {
	m.automation = level
	return nil
}

func (m *memStore) GetSettings(context.Context, int64) (*models.ModelSettings, error) {
	s := m.settings
	return &s, nil
}
func (m *memStore) SaveSettings(context.Context, *models.ModelSettings) error { return nil }

func (m *memStore) GetRiskProfile(context.Context, models.ProfileID) (*models.RiskProfile, error) {
	return nil, nil
}
func (m *memStore) ListRiskProfiles(context.Context) ([]models.RiskProfile, error) { return nil, nil }
func (m *memStore) SaveCustomRiskProfile(context.Context, *models.RiskProfile) (models.ProfileID, error) {
	return 0, nil
}

func (m *memStore) OpenProfileSession(context.Context, *models.ProfileSession) (int64, error) { return 0, nil }
func (m *memStore) CloseProfileSession(context.Context, int64, time.Time, models.ProfileSession) error {
	return nil
}
func (m *memStore) GetOpenProfileSession(context.Context, int64) (*models.ProfileSession, error) {
	return nil, nil
}
func (m *memStore) ListProfileSessions(context.Context, int64) ([]models.ProfileSession, error) {
	return nil, nil
}

func (m *memStore) AppendTrade(ctx context.Context, t *models.Trade) (int64, error) {
	t.ID = int64(len(m.trades) + 1)
	m.trades = append(m.trades, *t)
	return t.ID, nil
}
func (m *memStore) ListTrades(context.Context, int64, time.Time) ([]models.Trade, error) { return m.trades, nil }
func (m *memStore) RecentTrades(context.Context, int64, int) ([]models.Trade, error)     { return m.trades, nil }
func (m *memStore) GetPortfolio(context.Context, int64) (*models.Portfolio, error) {
	p := m.portfolio
	return &p, nil
}
func (m *memStore) UpsertPosition(ctx context.Context, p *models.Position) error {
	for i, existing := range m.portfolio.Positions {
		if existing.Coin == p.Coin && existing.Side == p.Side {
			m.portfolio.Positions[i] = *p
			return nil
		}
	}
	m.portfolio.Positions = append(m.portfolio.Positions, *p)
	return nil
}
func (m *memStore) DeletePosition(ctx context.Context, modelID int64, coin string, side models.PositionSide) error {
	out := m.portfolio.Positions[:0]
	for _, p := range m.portfolio.Positions {
		if p.Coin == coin && p.Side == side {
			continue
		}
		out = append(out, p)
	}
	m.portfolio.Positions = out
	return nil
}

func (m *memStore) CreatePending(ctx context.Context, p *models.PendingDecision) (int64, error) {
	id := m.nextID
	m.nextID++
	cp := *p
	cp.ID = id
	m.pendingRows[id] = &cp
	return id, nil
}
func (m *memStore) GetPending(ctx context.Context, id int64) (*models.PendingDecision, error) {
	p, ok := m.pendingRows[id]
	if !ok {
		return nil, cryptoerrors.ErrNotFound
	}
	cp := *p
	return &cp, nil
}
func (m *memStore) FindPendingByModelCoin(ctx context.Context, modelID int64, coin string) (*models.PendingDecision, error) {
	for _, p := range m.pendingRows {
		if p.ModelID == modelID && p.Coin == coin && p.Status == models.PendingStatusPending {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}
func (m *memStore) ListPending(context.Context, *int64) ([]models.PendingDecision, error) { return nil, nil }
func (m *memStore) TransitionPending(ctx context.Context, id int64, status models.PendingStatus, note *string, resolvedQty, resolvedLev *decimal.Decimal) error {
	p, ok := m.pendingRows[id]
	if !ok {
		return cryptoerrors.ErrNotFound
	}
	p.Status = status
	return nil
}
func (m *memStore) ExpirePendingBefore(context.Context, time.Time) (int, error) { return 0, nil }

func (m *memStore) WriteIncident(ctx context.Context, inc *models.Incident) (int64, error) {
	m.incidents = append(m.incidents, *inc)
	return int64(len(m.incidents)), nil
}
func (m *memStore) ListIncidents(context.Context, *int64, int) ([]models.Incident, error) { return m.incidents, nil }

func (m *memStore) SaveCredentials(context.Context, int64, models.ExchangeEnvironment, []byte, []byte) error {
	return nil
}
func (m *memStore) GetCredentials(context.Context, int64, models.ExchangeEnvironment) ([]byte, []byte, error) {
	return nil, nil, nil
}
func (m *memStore) Close() error { return nil }

func settingsWithAutoPause() models.ModelSettings {
	return models.ModelSettings{
		ModelID: 1, MaxPositionSizePct: decimal.NewFromInt(100), MaxDailyTrades: 1000,
		MaxOpenPositions: 1000, MinCashReservePct: decimal.Zero, MaxDrawdownPct: decimal.NewFromInt(100),
		MaxDailyLossPct: decimal.NewFromInt(5), FeeRate: decimal.NewFromFloat(0.001),
		AutoPauseEnabled: true, AutoPauseConsecutiveLosses: 3, AutoPauseWinRateThresholdPct: decimal.NewFromInt(30),
	}
}

func noopAutoPauseContext(context.Context, int64) (AutoPauseContext, error) {
	return AutoPauseContext{}, nil
}

func newTestHandler(st *memStore, loadContext AutoPauseContextFunc) *Handler {
	pq := pending.New(st,
		func(int64) (execution.Executor, error) { return execution.NewSimulationExecutor(st), nil },
		func(context.Context, int64) (pending.RiskContext, error) { return pending.RiskContext{}, nil },
		zerolog.Nop(),
	)
	return New(st, pq, loadContext)
}

func TestProcess_ManualLogsOnly(t *testing.T) {
	st := newAutomationMemStore()
	h := newTestHandler(st, noopAutoPauseContext)

	decision := models.Decision{Coin: "BTC", Signal: models.SignalBuyToEnter, Quantity: decimal.NewFromFloat(0.01), EntryPrice: decimal.NewFromInt(100)}
	result, err := h.Process(context.Background(), 1, models.AutomationManual, settingsWithAutoPause(), decision)
	require.NoError(t, err)
	assert.Equal(t, ActionLogOnly, result.Action)
	assert.Nil(t, result.Pending)
}

func TestProcess_SemiQueues(t *testing.T) {
	st := newAutomationMemStore()
	h := newTestHandler(st, noopAutoPauseContext)

	decision := models.Decision{Coin: "BTC", Signal: models.SignalBuyToEnter, Quantity: decimal.NewFromFloat(0.01), EntryPrice: decimal.NewFromInt(100)}
	result, err := h.Process(context.Background(), 1, models.AutomationSemi, settingsWithAutoPause(), decision)
	require.NoError(t, err)
	assert.Equal(t, ActionQueued, result.Action)
	require.NotNil(t, result.Pending)
	assert.Equal(t, models.PendingStatusPending, result.Pending.Status)
}

func TestProcess_FullExecutesWhenNoTriggersFire(t *testing.T) {
	st := newAutomationMemStore()
	h := newTestHandler(st, noopAutoPauseContext)

	decision := models.Decision{Coin: "BTC", Signal: models.SignalBuyToEnter, Quantity: decimal.NewFromFloat(0.01), EntryPrice: decimal.NewFromInt(100)}
	result, err := h.Process(context.Background(), 1, models.AutomationFull, settingsWithAutoPause(), decision)
	require.NoError(t, err)
	assert.Equal(t, ActionExecuteNow, result.Action)
}

func TestProcess_FullAutoPausesOnConsecutiveLosses(t *testing.T) {
	st := newAutomationMemStore()
	triggerCtx := func(context.Context, int64) (AutoPauseContext, error) {
		return AutoPauseContext{ConsecutiveLosses: 3}, nil
	}
	h := newTestHandler(st, triggerCtx)

	decision := models.Decision{Coin: "BTC", Signal: models.SignalBuyToEnter, Quantity: decimal.NewFromFloat(0.01), EntryPrice: decimal.NewFromInt(100)}
	result, err := h.Process(context.Background(), 1, models.AutomationFull, settingsWithAutoPause(), decision)
	require.NoError(t, err)
	assert.Equal(t, ActionQueued, result.Action)
	assert.Equal(t, models.AutomationSemi, st.automation)
	require.Len(t, st.incidents, 1)
	assert.Equal(t, models.IncidentAutoPause, st.incidents[0].Type)
}

func TestProcess_FullAutoPausesOnDailyLoss(t *testing.T) {
	st := newAutomationMemStore()
	triggerCtx := func(context.Context, int64) (AutoPauseContext, error) {
		return AutoPauseContext{TodayRealizedPnLPct: decimal.NewFromInt(-6)}, nil
	}
	h := newTestHandler(st, triggerCtx)

	decision := models.Decision{Coin: "ETH", Signal: models.SignalBuyToEnter, Quantity: decimal.NewFromFloat(0.01), EntryPrice: decimal.NewFromInt(100)}
	result, err := h.Process(context.Background(), 1, models.AutomationFull, settingsWithAutoPause(), decision)
	require.NoError(t, err)
	assert.Equal(t, ActionQueued, result.Action)
	assert.Equal(t, models.AutomationSemi, st.automation)
}

func TestProcess_FullAutoPausesOnPoorWinRate(t *testing.T) {
	st := newAutomationMemStore()
	triggerCtx := func(context.Context, int64) (AutoPauseContext, error) {
		return AutoPauseContext{Last10Closed: 10, Last10WinRatePct: 20}, nil
	}
	h := newTestHandler(st, triggerCtx)

	decision := models.Decision{Coin: "SOL", Signal: models.SignalBuyToEnter, Quantity: decimal.NewFromFloat(0.01), EntryPrice: decimal.NewFromInt(100)}
	result, err := h.Process(context.Background(), 1, models.AutomationFull, settingsWithAutoPause(), decision)
	require.NoError(t, err)
	assert.Equal(t, ActionQueued, result.Action)
}
