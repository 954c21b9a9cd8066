package execution

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptotrader/internal/models"
)

// memStore is a minimal in-memory store.Store fake covering exactly the
// portfolio/trade methods applyFill exercises.
type memStore struct {
	portfolio models.Portfolio
	trades    []models.Trade
	settings  models.ModelSettings
}

func newMemStore() *memStore { return &memStore{} }

func (m *memStore) CreateModel(context.Context, *models.Model) (int64, error) { return 0, nil }
func (m *memStore) GetModel(context.Context, int64) (*models.Model, error)    { return nil, nil }
func (m *memStore) ListModels(context.Context) ([]models.Model, error)        { return nil, nil }
func (m *memStore) ListActiveModels(context.Context) ([]models.Model, error)  { return nil, nil }
func (m *memStore) UpdateModelStatus(context.Context, int64, models.ModelStatus) error         { return nil }
func (m *memStore) UpdateModelEnvironment(context.Context, int64, models.Environment) error    { return nil }
func (m *memStore) UpdateModelAutomation(context.Context, int64, models.AutomationLevel) error { return nil }
func (m *memStore) GetSettings(context.Context, int64) (*models.ModelSettings, error) {
	s := m.settings
	return &s, nil
}
func (m *memStore) SaveSettings(context.Context, *models.ModelSettings) error                  { return nil }
func (m *memStore) GetRiskProfile(context.Context, models.ProfileID) (*models.RiskProfile, error) {
	return nil, nil
}
func (m *memStore) ListRiskProfiles(context.Context) ([]models.RiskProfile, error) { return nil, nil }
func (m *memStore) SaveCustomRiskProfile(context.Context, *models.RiskProfile) (models.ProfileID, error) {
	return 0, nil
}
func (m *memStore) OpenProfileSession(context.Context, *models.ProfileSession) (int64, error) {
	return 0, nil
}
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
func (m *memStore) GetPortfolio(ctx context.Context, modelID int64) (*models.Portfolio, error) {
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
	var out []models.Position
	for _, p := range m.portfolio.Positions {
		if p.Coin == coin && p.Side == side {
			continue
		}
		out = append(out, p)
	}
	m.portfolio.Positions = out
	return nil
}
func (m *memStore) CreatePending(context.Context, *models.PendingDecision) (int64, error) { return 0, nil }
func (m *memStore) GetPending(context.Context, int64) (*models.PendingDecision, error)    { return nil, nil }
func (m *memStore) FindPendingByModelCoin(context.Context, int64, string) (*models.PendingDecision, error) {
	return nil, nil
}
func (m *memStore) ListPending(context.Context, *int64) ([]models.PendingDecision, error) { return nil, nil }
func (m *memStore) TransitionPending(context.Context, int64, models.PendingStatus, *string, *decimal.Decimal, *decimal.Decimal) error {
	return nil
}
func (m *memStore) ExpirePendingBefore(context.Context, time.Time) (int, error) { return 0, nil }
func (m *memStore) WriteIncident(context.Context, *models.Incident) (int64, error) { return 0, nil }
func (m *memStore) ListIncidents(context.Context, *int64, int) ([]models.Incident, error) { return nil, nil }
func (m *memStore) SaveCredentials(context.Context, int64, models.ExchangeEnvironment, []byte, []byte) error {
	return nil
}
func (m *memStore) GetCredentials(context.Context, int64, models.ExchangeEnvironment) ([]byte, []byte, error) {
	return nil, nil, nil
}
func (m *memStore) Close() error { return nil }

func snapshotAt(price decimal.Decimal) models.MarketSnapshot {
	return models.MarketSnapshot{Price: price, AsOf: time.Now()}
}

func TestSimulationExecutor_OpenFillsAtSnapshotPriceAndChargesFee(t *testing.T) {
	st := newMemStore()
	st.settings = models.ModelSettings{FeeRate: decimal.NewFromFloat(0.001)}
	ex := NewSimulationExecutor(st)

	decision := models.Decision{Coin: "BTC", Signal: models.SignalBuyToEnter, Quantity: decimal.NewFromInt(1)}

	result, err := ex.Execute(context.Background(), 1, "BTC", decision, snapshotAt(decimal.NewFromInt(50_000)))
	require.NoError(t, err)
	assert.Equal(t, StatusSimulated, result.Status)
	assert.True(t, result.Trade.Fee.Equal(decimal.NewFromInt(50)))

	portfolio, _ := st.GetPortfolio(context.Background(), 1)
	pos, ok := portfolio.PositionFor("BTC", models.PositionLong)
	require.True(t, ok)
	assert.True(t, pos.Quantity.Equal(decimal.NewFromInt(1)))
}

// Property: closing a position never leaves a residual position with
// quantity <= 0, and the realized PnL sign matches the direction of price
// movement relative to the average entry price (the Trade↔Position
// invariant at the core of §4.2/§8).
func TestProperty_ClosePositionNeverLeavesNonPositiveResidual(t *testing.T) {
	entryPrices := []float64{100, 250.5, 9999.99, 1}
	closePrices := []float64{90, 260, 10000.01, 500}
	openQtys := []float64{1, 0.5, 10, 0.001}
	closeQtys := []float64{0.5, 0.5, 15, 0.0005}

	for i := range entryPrices {
		st := newMemStore()
		entry := decimal.NewFromFloat(entryPrices[i])
		closePx := decimal.NewFromFloat(closePrices[i])
		openQty := decimal.NewFromFloat(openQtys[i])
		closeQty := decimal.NewFromFloat(closeQtys[i])

		require.NoError(t, st.UpsertPosition(context.Background(), &models.Position{
			ModelID: 1, Coin: "BTC", Side: models.PositionLong,
			Quantity: openQty, AverageEntryPrice: entry,
		}))

		realized, err := closePosition(context.Background(), st, 1, "BTC", closePx, closeQty)
		require.NoError(t, err)

		portfolio, _ := st.GetPortfolio(context.Background(), 1)
		pos, stillOpen := portfolio.PositionFor("BTC", models.PositionLong)
		if stillOpen {
			assert.True(t, pos.Quantity.GreaterThan(decimal.Zero), "residual quantity must be positive")
		}

		closedQty := decimal.Min(openQty, closeQty)
		expected := closePx.Sub(entry).Mul(closedQty)
		assert.True(t, realized.Equal(expected), "case %d: realized=%s expected=%s", i, realized, expected)
	}
}
