package cli

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptotrader/internal/config"
	cryptoerrors "cryptotrader/internal/errors"
	"cryptotrader/internal/models"
	"cryptotrader/internal/profile"
)

// memStore is a minimal in-memory store.Store fake covering what the CLI
// command set exercises.
type memStore struct {
	modelsByID map[int64]*models.Model
	settings   map[int64]models.ModelSettings
	profiles   map[models.ProfileID]models.RiskProfile
	sessions   map[int64]*models.ProfileSession
	nextID     int64
	incidents  []models.Incident
}

func newMemStore() *memStore {
	profiles := map[models.ProfileID]models.RiskProfile{}
	for _, p := range models.SystemProfiles() {
		profiles[p.ID] = p
	}
	return &memStore{
		modelsByID: map[int64]*models.Model{}, settings: map[int64]models.ModelSettings{},
		profiles: profiles, sessions: map[int64]*models.ProfileSession{}, nextID: 1,
	}
}

func (m *memStore) CreateModel(ctx context.Context, mm *models.Model) (int64, error) {
	id := m.nextID
	m.nextID++
	cp := *mm
	cp.ID = id
	m.modelsByID[id] = &cp
	return id, nil
}
func (m *memStore) GetModel(ctx context.Context, id int64) (*models.Model, error) {
	mm, ok := m.modelsByID[id]
	if !ok {
		return nil, cryptoerrors.ErrNotFound
	}
	cp := *mm
	return &cp, nil
}
func (m *memStore) ListModels(ctx context.Context) ([]models.Model, error) {
	out := make([]models.Model, 0, len(m.modelsByID))
	for _, mm := range m.modelsByID {
		out = append(out, *mm)
	}
	return out, nil
}
func (m *memStore) ListActiveModels(ctx context.Context) ([]models.Model, error) { return nil, nil }
func (m *memStore) UpdateModelStatus(ctx context.Context, id int64, status models.ModelStatus) error {
	if mm, ok := m.modelsByID[id]; ok {
		mm.Status = status
	}
	return nil
}
func (m *memStore) UpdateModelEnvironment(context.Context, int64, models.Environment) error { return nil }
func (m *memStore) UpdateModelAutomation(context.Context, int64, models.AutomationLevel) error {
	return nil
}

func (m *memStore) GetSettings(ctx context.Context, modelID int64) (*models.ModelSettings, error) {
	s, ok := m.settings[modelID]
	if !ok {
		return nil, cryptoerrors.ErrNotFound
	}
	return &s, nil
}
func (m *memStore) SaveSettings(ctx context.Context, s *models.ModelSettings) error {
	m.settings[s.ModelID] = *s
	return nil
}

func (m *memStore) GetRiskProfile(ctx context.Context, id models.ProfileID) (*models.RiskProfile, error) {
	p, ok := m.profiles[id]
	if !ok {
		return nil, cryptoerrors.ErrNotFound
	}
	return &p, nil
}
func (m *memStore) ListRiskProfiles(ctx context.Context) ([]models.RiskProfile, error) {
	return models.SystemProfiles(), nil
}
func (m *memStore) SaveCustomRiskProfile(context.Context, *models.RiskProfile) (models.ProfileID, error) {
	return 0, nil
}

func (m *memStore) OpenProfileSession(ctx context.Context, s *models.ProfileSession) (int64, error) {
	m.sessions[s.ModelID] = s
	return 1, nil
}
func (m *memStore) CloseProfileSession(ctx context.Context, id int64, end time.Time, aggregates models.ProfileSession) error {
	return nil
}
func (m *memStore) GetOpenProfileSession(ctx context.Context, modelID int64) (*models.ProfileSession, error) {
	return m.sessions[modelID], nil
}
func (m *memStore) ListProfileSessions(context.Context, int64) ([]models.ProfileSession, error) {
	return nil, nil
}

func (m *memStore) AppendTrade(context.Context, *models.Trade) (int64, error) { return 0, nil }
func (m *memStore) ListTrades(context.Context, int64, time.Time) ([]models.Trade, error) {
	return nil, nil
}
func (m *memStore) RecentTrades(context.Context, int64, int) ([]models.Trade, error) { return nil, nil }
func (m *memStore) GetPortfolio(context.Context, int64) (*models.Portfolio, error) {
	return &models.Portfolio{}, nil
}
func (m *memStore) UpsertPosition(context.Context, *models.Position) error { return nil }
func (m *memStore) DeletePosition(context.Context, int64, string, models.PositionSide) error {
	return nil
}

func (m *memStore) CreatePending(context.Context, *models.PendingDecision) (int64, error) { return 0, nil }
func (m *memStore) GetPending(context.Context, int64) (*models.PendingDecision, error)     { return nil, nil }
func (m *memStore) FindPendingByModelCoin(context.Context, int64, string) (*models.PendingDecision, error) {
	return nil, nil
}
func (m *memStore) ListPending(context.Context, *int64) ([]models.PendingDecision, error) {
	return nil, nil
}
func (m *memStore) TransitionPending(context.Context, int64, models.PendingStatus, *string, *decimal.Decimal, *decimal.Decimal) error {
	return nil
}
func (m *memStore) ExpirePendingBefore(context.Context, time.Time) (int, error) { return 0, nil }

func (m *memStore) WriteIncident(ctx context.Context, inc *models.Incident) (int64, error) {
	m.incidents = append(m.incidents, *inc)
	return int64(len(m.incidents)), nil
}
func (m *memStore) ListIncidents(context.Context, *int64, int) ([]models.Incident, error) {
	return m.incidents, nil
}

func (m *memStore) SaveCredentials(context.Context, int64, models.ExchangeEnvironment, []byte, []byte) error {
	return nil
}
func (m *memStore) GetCredentials(context.Context, int64, models.ExchangeEnvironment) ([]byte, []byte, error) {
	return nil, nil, nil
}
func (m *memStore) Close() error { return nil }

func testApp(st *memStore) *App {
	return &App{
		Config:  &config.Config{Scheduler: config.SchedulerConfig{DefaultIntervalMinutes: 60}, Store: config.StoreConfig{DataDir: "/tmp/cryptotrader-test"}},
		Logger:  zerolog.Nop(),
		Store:   st,
		Profile: profile.New(st),
	}
}

func runCmd(t *testing.T, app *App, args ...string) string {
	t.Helper()
	root := NewRootCmd(app)
	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	require.NoError(t, err)
	return buf.String()
}

func TestVersionCmd(t *testing.T) {
	out := runCmd(t, testApp(newMemStore()), "version")
	assert.Contains(t, out, Version)
}

func TestConfigValidateCmd(t *testing.T) {
	out := runCmd(t, testApp(newMemStore()), "config", "validate")
	assert.Contains(t, out, "valid")
}

func TestModelsAddThenList(t *testing.T) {
	st := newMemStore()
	app := testApp(st)

	out := runCmd(t, app, "models", "add", "alpha", "--coins", "BTC", "--initial-capital", "5000")
	assert.Contains(t, out, "created")
	require.Len(t, st.modelsByID, 1)

	out = runCmd(t, app, "models", "list")
	assert.Contains(t, out, "alpha")
}

func TestModelsPauseAndResume(t *testing.T) {
	st := newMemStore()
	app := testApp(st)
	runCmd(t, app, "models", "add", "beta", "--coins", "ETH", "--initial-capital", "1000")

	runCmd(t, app, "models", "pause", "1")
	assert.Equal(t, models.ModelPaused, st.modelsByID[1].Status)

	runCmd(t, app, "models", "resume", "1")
	assert.Equal(t, models.ModelActive, st.modelsByID[1].Status)
}

func TestProfilesListCmd(t *testing.T) {
	out := runCmd(t, testApp(newMemStore()), "profiles", "list")
	assert.Contains(t, out, "Balanced")
}

func TestPendingListEmptyCmd(t *testing.T) {
	out := runCmd(t, testApp(newMemStore()), "pending", "list")
	assert.Equal(t, "", out)
}
