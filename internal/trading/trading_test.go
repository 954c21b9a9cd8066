package trading

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptotrader/internal/automation"
	cryptoerrors "cryptotrader/internal/errors"
	"cryptotrader/internal/exchange"
	"cryptotrader/internal/execution"
	"cryptotrader/internal/market"
	"cryptotrader/internal/models"
	"cryptotrader/internal/pending"
)

// fakeExchangeClient returns a fixed ticker price and satisfies
// exchange.Client for MarketData construction; no order is ever placed in
// these tests (automation level is never Full in a way that hits Live).
type fakeExchangeClient struct{ price decimal.Decimal }

func (f *fakeExchangeClient) Ping(context.Context) (bool, error) { return true, nil }
func (f *fakeExchangeClient) GetBalance(context.Context, string) (exchange.Balance, error) {
	return exchange.Balance{}, nil
}
func (f *fakeExchangeClient) GetTickerPrice(context.Context, string) (decimal.Decimal, error) {
	return f.price, nil
}
func (f *fakeExchangeClient) GetSymbolInfo(context.Context, string) (exchange.SymbolInfo, error) {
	return exchange.SymbolInfo{StepSize: decimal.NewFromFloat(0.0001)}, nil
}
func (f *fakeExchangeClient) PlaceMarketOrder(context.Context, string, exchange.OrderSide, decimal.Decimal) (exchange.OrderResult, error) {
	return exchange.OrderResult{}, nil
}
func (f *fakeExchangeClient) PlaceLimitOrder(context.Context, string, exchange.OrderSide, decimal.Decimal, decimal.Decimal, exchange.TimeInForce) (exchange.OrderResult, error) {
	return exchange.OrderResult{}, nil
}
func (f *fakeExchangeClient) CancelOrder(context.Context, string, string) error      { return nil }
func (f *fakeExchangeClient) CancelAllOrders(context.Context, string) error         { return nil }

// fakeAI proposes its configured signal and quantity for every snapshotted
// coin, at the snapshot price.
type fakeAI struct {
	signal   models.Signal
	quantity decimal.Decimal
}

func (f *fakeAI) Decide(ctx context.Context, model models.Model, settings models.ModelSettings, portfolio models.Portfolio, snapshots map[string]models.MarketSnapshot) (map[string]models.Decision, error) {
	out := make(map[string]models.Decision)
	for coin, snap := range snapshots {
		out[coin] = models.Decision{Coin: coin, Signal: f.signal, Quantity: f.quantity, EntryPrice: snap.Price, Confidence: 0.7}
	}
	return out, nil
}

// memStore is a minimal in-memory store.Store fake covering exactly what
// the TradingExecutor, AutomationHandler, and PendingQueue exercise.
type memStore struct {
	model       models.Model
	settings    models.ModelSettings
	portfolio   models.Portfolio
	trades      []models.Trade
	incidents   []models.Incident
	automation  models.AutomationLevel
	pendingRows map[int64]*models.PendingDecision
	nextID      int64
}

func newMemStore() *memStore {
	return &memStore{pendingRows: map[int64]*models.PendingDecision{}, nextID: 1}
}

func (m *memStore) CreateModel(context.Context, *models.Model) (int64, error) { return 0, nil }
func (m *memStore) GetModel(context.Context, int64) (*models.Model, error) {
	mm := m.model
	return &mm, nil
}
func (m *memStore) ListModels(context.Context) ([]models.Model, error)       { return nil, nil }
func (m *memStore) ListActiveModels(context.Context) ([]models.Model, error) { return nil, nil }
func (m *memStore) UpdateModelStatus(context.Context, int64, models.ModelStatus) error { return nil }
func (m *memStore) UpdateModelEnvironment(context.Context, int64, models.Environment) error { return nil }
func (m *memStore) UpdateModelAutomation(ctx context.Context, id int64, level models.AutomationLevel) error {
	m.automation = level
	m.model.Automation = level
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

func balancedSettings() models.ModelSettings {
	return models.ModelSettings{
		ModelID: 1, MaxPositionSizePct: decimal.NewFromInt(10), MaxDailyLossPct: decimal.NewFromInt(3),
		MaxDailyTrades: 20, MaxOpenPositions: 5, MinCashReservePct: decimal.NewFromInt(20),
		MaxDrawdownPct: decimal.NewFromInt(15), FeeRate: decimal.NewFromFloat(0.001),
		AutoPauseConsecutiveLosses: 5, AutoPauseWinRateThresholdPct: decimal.NewFromInt(30),
	}
}

func newTestExecutor(st *memStore, automationLevel models.AutomationLevel, signal models.Signal, qty decimal.Decimal) *Executor {
	st.model = models.Model{ID: 1, Coins: []string{"BTC"}, Status: models.ModelActive, Automation: automationLevel, Environment: models.EnvironmentSimulation}
	st.settings = balancedSettings()
	st.portfolio = models.Portfolio{ModelID: 1, Cash: decimal.NewFromInt(10000), TotalValue: decimal.NewFromInt(10000)}

	client := &fakeExchangeClient{price: decimal.NewFromInt(40000)}
	marketData := market.New(client)

	pq := pending.New(st,
		func(int64) (execution.Executor, error) { return execution.NewSimulationExecutor(st), nil },
		func(ctx context.Context, modelID int64) (pending.RiskContext, error) {
			return pending.RiskContext{Portfolio: st.portfolio, Settings: st.settings, Automation: automationLevel, StartOfDayTotalValue: st.portfolio.TotalValue}, nil
		},
		zerolog.Nop(),
	)
	autoHandler := automation.New(st, pq, func(context.Context, int64) (automation.AutoPauseContext, error) {
		return automation.AutoPauseContext{}, nil
	})

	executorFor := func(models.Model) (execution.Executor, error) { return execution.NewSimulationExecutor(st), nil }

	return New(st, marketData, &fakeAI{signal: signal, quantity: qty}, executorFor, autoHandler, zerolog.Nop())
}

func TestRunCycle_FullAutomationExecutesImmediately(t *testing.T) {
	st := newMemStore()
	exec := newTestExecutor(st, models.AutomationFull, models.SignalBuyToEnter, decimal.NewFromFloat(0.02))

	report, err := exec.RunCycle(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Executed())
	assert.Equal(t, 0, report.Pending())
	assert.Equal(t, 0, report.Skipped())
	require.Len(t, st.trades, 1)
	assert.Equal(t, models.SideBuy, st.trades[0].Side)
}

func TestRunCycle_SemiAutomationQueues(t *testing.T) {
	st := newMemStore()
	exec := newTestExecutor(st, models.AutomationSemi, models.SignalBuyToEnter, decimal.NewFromFloat(0.02))

	report, err := exec.RunCycle(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Pending())
	assert.Empty(t, st.trades)
	assert.Len(t, st.pendingRows, 1)
}

func TestRunCycle_ManualLogsOnly(t *testing.T) {
	st := newMemStore()
	exec := newTestExecutor(st, models.AutomationManual, models.SignalBuyToEnter, decimal.NewFromFloat(0.02))

	report, err := exec.RunCycle(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "logged", report.Outcomes[0].Action)
	assert.Empty(t, st.trades)
	assert.Empty(t, st.pendingRows)
}

func TestRunCycle_RiskDeniedSkipsAndWritesIncident(t *testing.T) {
	st := newMemStore()
	exec := newTestExecutor(st, models.AutomationFull, models.SignalBuyToEnter, decimal.NewFromFloat(100)) // notional blows the position-size cap

	report, err := exec.RunCycle(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped())
	assert.Empty(t, st.trades)
	require.NotEmpty(t, st.incidents)
	assert.Equal(t, models.IncidentTradeRejected, st.incidents[0].Type)
}

func TestRunCycle_PausedModelIsNoOp(t *testing.T) {
	st := newMemStore()
	exec := newTestExecutor(st, models.AutomationFull, models.SignalBuyToEnter, decimal.NewFromFloat(0.02))
	st.model.Status = models.ModelPaused

	report, err := exec.RunCycle(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, report.Outcomes)
}

func TestRunCycle_HoldSignalIsSkippedWithoutIncident(t *testing.T) {
	st := newMemStore()
	exec := newTestExecutor(st, models.AutomationFull, models.SignalHold, decimal.Zero)

	report, err := exec.RunCycle(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped())
	assert.Empty(t, st.incidents)
}
