package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	cryptoerrors "cryptotrader/internal/errors"
	"cryptotrader/internal/models"
)

// SQLiteStore is the reference Store implementation. It keeps a single
// *sql.DB with WAL mode enabled; serialization of writes across models is
// the caller's responsibility (per-model and global locks), not the
// driver's — SQLite's own locking is only a last-resort backstop.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if necessary) the SQLite database at
// path and ensures the schema exists.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, cryptoerrors.Wrap(err, "opening sqlite database")
	}
	db.SetMaxOpenConns(1) // single writer discipline; SQLite has one writer anyway
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.seedSystemProfiles(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS models (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	ai_provider TEXT NOT NULL,
	ai_model_id TEXT NOT NULL,
	coins TEXT NOT NULL,
	initial_capital TEXT NOT NULL,
	status TEXT NOT NULL,
	environment TEXT NOT NULL,
	automation TEXT NOT NULL,
	exchange_env TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS model_settings (
	model_id INTEGER PRIMARY KEY REFERENCES models(id),
	max_position_size_pct TEXT NOT NULL,
	max_daily_loss_pct TEXT NOT NULL,
	max_daily_trades INTEGER NOT NULL,
	max_open_positions INTEGER NOT NULL,
	min_cash_reserve_pct TEXT NOT NULL,
	max_drawdown_pct TEXT NOT NULL,
	trading_interval_minutes INTEGER NOT NULL,
	fee_rate TEXT NOT NULL,
	ai_temperature REAL NOT NULL,
	auto_pause_enabled INTEGER NOT NULL,
	auto_pause_consecutive_losses INTEGER NOT NULL,
	auto_pause_win_rate_threshold_pct TEXT NOT NULL,
	notify_on_trade INTEGER NOT NULL,
	notify_on_incident INTEGER NOT NULL,
	active_profile_id INTEGER
);

CREATE TABLE IF NOT EXISTS risk_profiles (
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	icon TEXT NOT NULL,
	description TEXT NOT NULL,
	is_system INTEGER NOT NULL,
	created_at DATETIME NOT NULL,
	max_position_size_pct TEXT NOT NULL,
	max_daily_loss_pct TEXT NOT NULL,
	max_daily_trades INTEGER NOT NULL,
	max_open_positions INTEGER NOT NULL,
	min_cash_reserve_pct TEXT NOT NULL,
	max_drawdown_pct TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS profile_sessions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	model_id INTEGER NOT NULL REFERENCES models(id),
	profile_id INTEGER NOT NULL,
	start_time DATETIME NOT NULL,
	end_time DATETIME,
	trades_executed INTEGER NOT NULL DEFAULT 0,
	wins INTEGER NOT NULL DEFAULT 0,
	losses INTEGER NOT NULL DEFAULT 0,
	total_pnl TEXT NOT NULL DEFAULT '0',
	max_drawdown TEXT NOT NULL DEFAULT '0'
);
CREATE INDEX IF NOT EXISTS idx_profile_sessions_model ON profile_sessions(model_id);

CREATE TABLE IF NOT EXISTS trades (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	model_id INTEGER NOT NULL REFERENCES models(id),
	coin TEXT NOT NULL,
	side TEXT NOT NULL,
	quantity TEXT NOT NULL,
	price TEXT NOT NULL,
	fee TEXT NOT NULL,
	realized_pnl TEXT NOT NULL,
	timestamp DATETIME NOT NULL,
	exchange_order_id TEXT
);
CREATE INDEX IF NOT EXISTS idx_trades_model_time ON trades(model_id, timestamp);

CREATE TABLE IF NOT EXISTS positions (
	model_id INTEGER NOT NULL REFERENCES models(id),
	coin TEXT NOT NULL,
	side TEXT NOT NULL,
	quantity TEXT NOT NULL,
	average_entry_price TEXT NOT NULL,
	stop_loss TEXT,
	take_profit TEXT,
	PRIMARY KEY (model_id, coin, side)
);

CREATE TABLE IF NOT EXISTS pending_decisions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	model_id INTEGER NOT NULL REFERENCES models(id),
	coin TEXT NOT NULL,
	signal TEXT NOT NULL,
	quantity TEXT NOT NULL,
	entry_price TEXT NOT NULL,
	leverage TEXT NOT NULL,
	stop_loss TEXT,
	take_profit TEXT,
	confidence REAL NOT NULL,
	justification TEXT NOT NULL,
	status TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	expires_at DATETIME NOT NULL,
	resolved_at DATETIME,
	resolution_note TEXT,
	resolved_quantity TEXT,
	resolved_leverage TEXT
);
CREATE INDEX IF NOT EXISTS idx_pending_model_coin_status ON pending_decisions(model_id, coin, status);

CREATE TABLE IF NOT EXISTS incidents (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	model_id INTEGER,
	type TEXT NOT NULL,
	severity TEXT NOT NULL,
	message TEXT NOT NULL,
	details TEXT,
	resolved INTEGER NOT NULL DEFAULT 0,
	timestamp DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_incidents_model_time ON incidents(model_id, timestamp);

CREATE TABLE IF NOT EXISTS exchange_credentials (
	model_id INTEGER NOT NULL REFERENCES models(id),
	environment TEXT NOT NULL,
	api_key BLOB NOT NULL,
	api_secret BLOB NOT NULL,
	PRIMARY KEY (model_id, environment)
);

CREATE TABLE IF NOT EXISTS providers (
	name TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	enabled INTEGER NOT NULL DEFAULT 1
);
`
	_, err := s.db.Exec(schema)
	if err != nil {
		return cryptoerrors.Wrap(err, "creating schema")
	}
	return nil
}

func (s *SQLiteStore) seedSystemProfiles() error {
	for _, p := range models.SystemProfiles() {
		_, err := s.db.Exec(`
			INSERT OR IGNORE INTO risk_profiles
				(id, name, icon, description, is_system, created_at,
				 max_position_size_pct, max_daily_loss_pct, max_daily_trades,
				 max_open_positions, min_cash_reserve_pct, max_drawdown_pct)
			VALUES (?, ?, ?, ?, 1, ?, ?, ?, ?, ?, ?, ?)`,
			p.ID, p.Name, p.Icon, p.Description, time.Now().UTC(),
			p.MaxPositionSizePct, p.MaxDailyLossPct, p.MaxDailyTrades,
			p.MaxOpenPositions, p.MinCashReservePct, p.MaxDrawdownPct)
		if err != nil {
			return cryptoerrors.Wrap(err, "seeding system risk profiles")
		}
	}
	return nil
}

// --- Models ---

func (s *SQLiteStore) CreateModel(ctx context.Context, m *models.Model) (int64, error) {
	coins := joinCoins(m.Coins)
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO models (name, ai_provider, ai_model_id, coins, initial_capital, status, environment, automation, exchange_env, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.Name, m.AIProvider, m.AIModelID, coins, m.InitialCapital, m.Status, m.Environment, m.Automation, m.ExchangeEnv, m.CreatedAt)
	if err != nil {
		return 0, cryptoerrors.Wrap(err, "creating model")
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) scanModel(row interface{ Scan(...any) error }) (*models.Model, error) {
	var m models.Model
	var coins string
	if err := row.Scan(&m.ID, &m.Name, &m.AIProvider, &m.AIModelID, &coins, &m.InitialCapital, &m.Status, &m.Environment, &m.Automation, &m.ExchangeEnv, &m.CreatedAt); err != nil {
		return nil, err
	}
	m.Coins = splitCoins(coins)
	return &m, nil
}

func (s *SQLiteStore) GetModel(ctx context.Context, id int64) (*models.Model, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, ai_provider, ai_model_id, coins, initial_capital, status, environment, automation, exchange_env, created_at
		FROM models WHERE id = ?`, id)
	m, err := s.scanModel(row)
	if err == sql.ErrNoRows {
		return nil, cryptoerrors.ErrNotFound
	}
	if err != nil {
		return nil, cryptoerrors.Wrap(err, "getting model")
	}
	return m, nil
}

func (s *SQLiteStore) listModelsWhere(ctx context.Context, where string) ([]models.Model, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, ai_provider, ai_model_id, coins, initial_capital, status, environment, automation, exchange_env, created_at
		FROM models `+where+` ORDER BY id`)
	if err != nil {
		return nil, cryptoerrors.Wrap(err, "listing models")
	}
	defer rows.Close()
	var out []models.Model
	for rows.Next() {
		m, err := s.scanModel(rows)
		if err != nil {
			return nil, cryptoerrors.Wrap(err, "scanning model")
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ListModels(ctx context.Context) ([]models.Model, error) {
	return s.listModelsWhere(ctx, "")
}

func (s *SQLiteStore) ListActiveModels(ctx context.Context) ([]models.Model, error) {
	return s.listModelsWhere(ctx, "WHERE status = 'active'")
}

func (s *SQLiteStore) UpdateModelStatus(ctx context.Context, id int64, status models.ModelStatus) error {
	_, err := s.db.ExecContext(ctx, `UPDATE models SET status = ? WHERE id = ?`, status, id)
	return cryptoerrors.Wrap(err, "updating model status")
}

func (s *SQLiteStore) UpdateModelEnvironment(ctx context.Context, id int64, env models.Environment) error {
	_, err := s.db.ExecContext(ctx, `UPDATE models SET environment = ? WHERE id = ?`, env, id)
	return cryptoerrors.Wrap(err, "updating model environment")
}

func (s *SQLiteStore) UpdateModelAutomation(ctx context.Context, id int64, level models.AutomationLevel) error {
	_, err := s.db.ExecContext(ctx, `UPDATE models SET automation = ? WHERE id = ?`, level, id)
	return cryptoerrors.Wrap(err, "updating model automation")
}

// --- ModelSettings ---

func (s *SQLiteStore) GetSettings(ctx context.Context, modelID int64) (*models.ModelSettings, error) {
	var set models.ModelSettings
	var activeProfile sql.NullInt64
	row := s.db.QueryRowContext(ctx, `
		SELECT model_id, max_position_size_pct, max_daily_loss_pct, max_daily_trades, max_open_positions,
		       min_cash_reserve_pct, max_drawdown_pct, trading_interval_minutes, fee_rate, ai_temperature,
		       auto_pause_enabled, auto_pause_consecutive_losses, auto_pause_win_rate_threshold_pct,
		       notify_on_trade, notify_on_incident, active_profile_id
		FROM model_settings WHERE model_id = ?`, modelID)
	err := row.Scan(&set.ModelID, &set.MaxPositionSizePct, &set.MaxDailyLossPct, &set.MaxDailyTrades, &set.MaxOpenPositions,
		&set.MinCashReservePct, &set.MaxDrawdownPct, &set.TradingIntervalMinutes, &set.FeeRate, &set.AITemperature,
		&set.AutoPauseEnabled, &set.AutoPauseConsecutiveLosses, &set.AutoPauseWinRateThresholdPct,
		&set.NotifyOnTrade, &set.NotifyOnIncident, &activeProfile)
	if err == sql.ErrNoRows {
		return nil, cryptoerrors.ErrNotFound
	}
	if err != nil {
		return nil, cryptoerrors.Wrap(err, "getting settings")
	}
	if activeProfile.Valid {
		id := activeProfile.Int64
		set.ActiveProfileID = &id
	}
	return &set, nil
}

func (s *SQLiteStore) SaveSettings(ctx context.Context, set *models.ModelSettings) error {
	var activeProfile any
	if set.ActiveProfileID != nil {
		activeProfile = *set.ActiveProfileID
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO model_settings
			(model_id, max_position_size_pct, max_daily_loss_pct, max_daily_trades, max_open_positions,
			 min_cash_reserve_pct, max_drawdown_pct, trading_interval_minutes, fee_rate, ai_temperature,
			 auto_pause_enabled, auto_pause_consecutive_losses, auto_pause_win_rate_threshold_pct,
			 notify_on_trade, notify_on_incident, active_profile_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(model_id) DO UPDATE SET
			max_position_size_pct=excluded.max_position_size_pct,
			max_daily_loss_pct=excluded.max_daily_loss_pct,
			max_daily_trades=excluded.max_daily_trades,
			max_open_positions=excluded.max_open_positions,
			min_cash_reserve_pct=excluded.min_cash_reserve_pct,
			max_drawdown_pct=excluded.max_drawdown_pct,
			trading_interval_minutes=excluded.trading_interval_minutes,
			fee_rate=excluded.fee_rate,
			ai_temperature=excluded.ai_temperature,
			auto_pause_enabled=excluded.auto_pause_enabled,
			auto_pause_consecutive_losses=excluded.auto_pause_consecutive_losses,
			auto_pause_win_rate_threshold_pct=excluded.auto_pause_win_rate_threshold_pct,
			notify_on_trade=excluded.notify_on_trade,
			notify_on_incident=excluded.notify_on_incident,
			active_profile_id=excluded.active_profile_id`,
		set.ModelID, set.MaxPositionSizePct, set.MaxDailyLossPct, set.MaxDailyTrades, set.MaxOpenPositions,
		set.MinCashReservePct, set.MaxDrawdownPct, set.TradingIntervalMinutes, set.FeeRate, set.AITemperature,
		set.AutoPauseEnabled, set.AutoPauseConsecutiveLosses, set.AutoPauseWinRateThresholdPct,
		set.NotifyOnTrade, set.NotifyOnIncident, activeProfile)
	return cryptoerrors.Wrap(err, "saving settings")
}

// --- RiskProfile ---

func (s *SQLiteStore) GetRiskProfile(ctx context.Context, id models.ProfileID) (*models.RiskProfile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, icon, description, is_system, created_at,
		       max_position_size_pct, max_daily_loss_pct, max_daily_trades, max_open_positions,
		       min_cash_reserve_pct, max_drawdown_pct
		FROM risk_profiles WHERE id = ?`, id)
	var p models.RiskProfile
	err := row.Scan(&p.ID, &p.Name, &p.Icon, &p.Description, &p.IsSystem, &p.CreatedAt,
		&p.MaxPositionSizePct, &p.MaxDailyLossPct, &p.MaxDailyTrades, &p.MaxOpenPositions,
		&p.MinCashReservePct, &p.MaxDrawdownPct)
	if err == sql.ErrNoRows {
		return nil, cryptoerrors.ErrNotFound
	}
	if err != nil {
		return nil, cryptoerrors.Wrap(err, "getting risk profile")
	}
	return &p, nil
}

func (s *SQLiteStore) ListRiskProfiles(ctx context.Context) ([]models.RiskProfile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, icon, description, is_system, created_at,
		       max_position_size_pct, max_daily_loss_pct, max_daily_trades, max_open_positions,
		       min_cash_reserve_pct, max_drawdown_pct
		FROM risk_profiles ORDER BY id`)
	if err != nil {
		return nil, cryptoerrors.Wrap(err, "listing risk profiles")
	}
	defer rows.Close()
	var out []models.RiskProfile
	for rows.Next() {
		var p models.RiskProfile
		if err := rows.Scan(&p.ID, &p.Name, &p.Icon, &p.Description, &p.IsSystem, &p.CreatedAt,
			&p.MaxPositionSizePct, &p.MaxDailyLossPct, &p.MaxDailyTrades, &p.MaxOpenPositions,
			&p.MinCashReservePct, &p.MaxDrawdownPct); err != nil {
			return nil, cryptoerrors.Wrap(err, "scanning risk profile")
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveCustomRiskProfile(ctx context.Context, p *models.RiskProfile) (models.ProfileID, error) {
	if p.IsSystem {
		return 0, cryptoerrors.NewValidationError("is_system", true, "system profiles are immutable")
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO risk_profiles (name, icon, description, is_system, created_at,
			max_position_size_pct, max_daily_loss_pct, max_daily_trades, max_open_positions,
			min_cash_reserve_pct, max_drawdown_pct)
		VALUES (?, ?, ?, 0, ?, ?, ?, ?, ?, ?, ?)`,
		p.Name, p.Icon, p.Description, time.Now().UTC(),
		p.MaxPositionSizePct, p.MaxDailyLossPct, p.MaxDailyTrades, p.MaxOpenPositions,
		p.MinCashReservePct, p.MaxDrawdownPct)
	if err != nil {
		return 0, cryptoerrors.Wrap(err, "saving custom risk profile")
	}
	id, err := res.LastInsertId()
	return models.ProfileID(id), err
}

// --- ProfileSession ---

func (s *SQLiteStore) OpenProfileSession(ctx context.Context, sess *models.ProfileSession) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO profile_sessions (model_id, profile_id, start_time, end_time, trades_executed, wins, losses, total_pnl, max_drawdown)
		VALUES (?, ?, ?, NULL, 0, 0, 0, '0', '0')`,
		sess.ModelID, sess.ProfileID, sess.StartTime)
	if err != nil {
		return 0, cryptoerrors.Wrap(err, "opening profile session")
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) CloseProfileSession(ctx context.Context, id int64, end time.Time, agg models.ProfileSession) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE profile_sessions SET end_time = ?, trades_executed = ?, wins = ?, losses = ?, total_pnl = ?, max_drawdown = ?
		WHERE id = ? AND end_time IS NULL`,
		end, agg.TradesExecuted, agg.Wins, agg.Losses, agg.TotalPnL, agg.MaxDrawdown, id)
	return cryptoerrors.Wrap(err, "closing profile session")
}

func (s *SQLiteStore) scanSession(row interface{ Scan(...any) error }) (*models.ProfileSession, error) {
	var sess models.ProfileSession
	var end sql.NullTime
	if err := row.Scan(&sess.ID, &sess.ModelID, &sess.ProfileID, &sess.StartTime, &end,
		&sess.TradesExecuted, &sess.Wins, &sess.Losses, &sess.TotalPnL, &sess.MaxDrawdown); err != nil {
		return nil, err
	}
	if end.Valid {
		t := end.Time
		sess.EndTime = &t
	}
	return &sess, nil
}

func (s *SQLiteStore) GetOpenProfileSession(ctx context.Context, modelID int64) (*models.ProfileSession, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, model_id, profile_id, start_time, end_time, trades_executed, wins, losses, total_pnl, max_drawdown
		FROM profile_sessions WHERE model_id = ? AND end_time IS NULL`, modelID)
	sess, err := s.scanSession(row)
	if err == sql.ErrNoRows {
		return nil, cryptoerrors.ErrNotFound
	}
	if err != nil {
		return nil, cryptoerrors.Wrap(err, "getting open profile session")
	}
	return sess, nil
}

func (s *SQLiteStore) ListProfileSessions(ctx context.Context, modelID int64) ([]models.ProfileSession, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, model_id, profile_id, start_time, end_time, trades_executed, wins, losses, total_pnl, max_drawdown
		FROM profile_sessions WHERE model_id = ? ORDER BY start_time`, modelID)
	if err != nil {
		return nil, cryptoerrors.Wrap(err, "listing profile sessions")
	}
	defer rows.Close()
	var out []models.ProfileSession
	for rows.Next() {
		sess, err := s.scanSession(rows)
		if err != nil {
			return nil, cryptoerrors.Wrap(err, "scanning profile session")
		}
		out = append(out, *sess)
	}
	return out, rows.Err()
}

// --- Trade / Position ---

func (s *SQLiteStore) AppendTrade(ctx context.Context, t *models.Trade) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO trades (model_id, coin, side, quantity, price, fee, realized_pnl, timestamp, exchange_order_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ModelID, t.Coin, t.Side, t.Quantity, t.Price, t.Fee, t.RealizedPnL, t.Timestamp, t.ExchangeOrderID)
	if err != nil {
		return 0, cryptoerrors.Wrap(err, "appending trade")
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) scanTrade(row interface{ Scan(...any) error }) (*models.Trade, error) {
	var t models.Trade
	var orderID sql.NullString
	if err := row.Scan(&t.ID, &t.ModelID, &t.Coin, &t.Side, &t.Quantity, &t.Price, &t.Fee, &t.RealizedPnL, &t.Timestamp, &orderID); err != nil {
		return nil, err
	}
	if orderID.Valid {
		v := orderID.String
		t.ExchangeOrderID = &v
	}
	return &t, nil
}

func (s *SQLiteStore) ListTrades(ctx context.Context, modelID int64, since time.Time) ([]models.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, model_id, coin, side, quantity, price, fee, realized_pnl, timestamp, exchange_order_id
		FROM trades WHERE model_id = ? AND timestamp >= ? ORDER BY timestamp`, modelID, since)
	if err != nil {
		return nil, cryptoerrors.Wrap(err, "listing trades")
	}
	defer rows.Close()
	var out []models.Trade
	for rows.Next() {
		t, err := s.scanTrade(rows)
		if err != nil {
			return nil, cryptoerrors.Wrap(err, "scanning trade")
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) RecentTrades(ctx context.Context, modelID int64, limit int) ([]models.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, model_id, coin, side, quantity, price, fee, realized_pnl, timestamp, exchange_order_id
		FROM trades WHERE model_id = ? ORDER BY timestamp DESC LIMIT ?`, modelID, limit)
	if err != nil {
		return nil, cryptoerrors.Wrap(err, "listing recent trades")
	}
	defer rows.Close()
	var out []models.Trade
	for rows.Next() {
		t, err := s.scanTrade(rows)
		if err != nil {
			return nil, cryptoerrors.Wrap(err, "scanning trade")
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetPortfolio(ctx context.Context, modelID int64) (*models.Portfolio, error) {
	m, err := s.GetModel(ctx, modelID)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT model_id, coin, side, quantity, average_entry_price, stop_loss, take_profit
		FROM positions WHERE model_id = ?`, modelID)
	if err != nil {
		return nil, cryptoerrors.Wrap(err, "listing positions")
	}
	defer rows.Close()
	var positions []models.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, cryptoerrors.Wrap(err, "scanning position")
		}
		positions = append(positions, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	cash, err := s.computeCash(ctx, m)
	if err != nil {
		return nil, err
	}
	return &models.Portfolio{ModelID: modelID, Cash: cash, Positions: positions}, nil
}

// computeCash derives cash from the invariant in §3: initial_capital −
// Σ(buy_cost+buy_fee) + Σ(sell_proceeds−sell_fee) + Σ realized_pnl_from_closes.
func (s *SQLiteStore) computeCash(ctx context.Context, m *models.Model) (decimal.Decimal, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT side, quantity, price, fee, realized_pnl FROM trades WHERE model_id = ?`, m.ID)
	if err != nil {
		return decimal.Zero, cryptoerrors.Wrap(err, "computing cash")
	}
	defer rows.Close()
	cash := m.InitialCapital
	for rows.Next() {
		var side models.Side
		var qty, price, fee, pnl decimal.Decimal
		if err := rows.Scan(&side, &qty, &price, &fee, &pnl); err != nil {
			return decimal.Zero, err
		}
		notional := qty.Mul(price)
		switch side {
		case models.SideBuy:
			cash = cash.Sub(notional).Sub(fee)
		case models.SideSell:
			cash = cash.Add(notional).Sub(fee)
		case models.SideClose:
			cash = cash.Add(notional).Sub(fee)
		}
		cash = cash.Add(pnl)
	}
	return cash, rows.Err()
}

func scanPosition(row interface{ Scan(...any) error }) (*models.Position, error) {
	var p models.Position
	var stopLoss, takeProfit sql.NullString
	if err := row.Scan(&p.ModelID, &p.Coin, &p.Side, &p.Quantity, &p.AverageEntryPrice, &stopLoss, &takeProfit); err != nil {
		return nil, err
	}
	if stopLoss.Valid {
		v, err := decimal.NewFromString(stopLoss.String)
		if err != nil {
			return nil, err
		}
		p.StopLoss = &v
	}
	if takeProfit.Valid {
		v, err := decimal.NewFromString(takeProfit.String)
		if err != nil {
			return nil, err
		}
		p.TakeProfit = &v
	}
	return &p, nil
}

func (s *SQLiteStore) UpsertPosition(ctx context.Context, p *models.Position) error {
	var stopLoss, takeProfit any
	if p.StopLoss != nil {
		stopLoss = p.StopLoss.String()
	}
	if p.TakeProfit != nil {
		takeProfit = p.TakeProfit.String()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO positions (model_id, coin, side, quantity, average_entry_price, stop_loss, take_profit)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(model_id, coin, side) DO UPDATE SET
			quantity=excluded.quantity,
			average_entry_price=excluded.average_entry_price,
			stop_loss=excluded.stop_loss,
			take_profit=excluded.take_profit`,
		p.ModelID, p.Coin, p.Side, p.Quantity, p.AverageEntryPrice, stopLoss, takeProfit)
	return cryptoerrors.Wrap(err, "upserting position")
}

func (s *SQLiteStore) DeletePosition(ctx context.Context, modelID int64, coin string, side models.PositionSide) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM positions WHERE model_id = ? AND coin = ? AND side = ?`, modelID, coin, side)
	return cryptoerrors.Wrap(err, "deleting position")
}

// --- PendingDecision ---

func (s *SQLiteStore) CreatePending(ctx context.Context, p *models.PendingDecision) (int64, error) {
	var sl, tp any
	if p.Decision.StopLoss != nil {
		sl = p.Decision.StopLoss.String()
	}
	if p.Decision.TakeProfit != nil {
		tp = p.Decision.TakeProfit.String()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_decisions
			(model_id, coin, signal, quantity, entry_price, leverage, stop_loss, take_profit, confidence, justification, status, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ModelID, p.Coin, p.Decision.Signal, p.Decision.Quantity, p.Decision.EntryPrice, p.Decision.Leverage,
		sl, tp, p.Decision.Confidence, p.Decision.Justification, p.Status, p.CreatedAt, p.ExpiresAt)
	if err != nil {
		return 0, cryptoerrors.Wrap(err, "creating pending decision")
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) scanPending(row interface{ Scan(...any) error }) (*models.PendingDecision, error) {
	var p models.PendingDecision
	var sl, tp, note, resolvedQty, resolvedLev sql.NullString
	var resolvedAt sql.NullTime
	if err := row.Scan(&p.ID, &p.ModelID, &p.Coin, &p.Decision.Signal, &p.Decision.Quantity, &p.Decision.EntryPrice,
		&p.Decision.Leverage, &sl, &tp, &p.Decision.Confidence, &p.Decision.Justification, &p.Status,
		&p.CreatedAt, &p.ExpiresAt, &resolvedAt, &note, &resolvedQty, &resolvedLev); err != nil {
		return nil, err
	}
	p.Decision.Coin = p.Coin
	if sl.Valid {
		v, _ := decimal.NewFromString(sl.String)
		p.Decision.StopLoss = &v
	}
	if tp.Valid {
		v, _ := decimal.NewFromString(tp.String)
		p.Decision.TakeProfit = &v
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		p.ResolvedAt = &t
	}
	if note.Valid {
		v := note.String
		p.ResolutionNote = &v
	}
	if resolvedQty.Valid {
		v, _ := decimal.NewFromString(resolvedQty.String)
		p.ResolvedQuantity = &v
	}
	if resolvedLev.Valid {
		v, _ := decimal.NewFromString(resolvedLev.String)
		p.ResolvedLeverage = &v
	}
	return &p, nil
}

const pendingSelectCols = `
	id, model_id, coin, signal, quantity, entry_price, leverage, stop_loss, take_profit, confidence, justification,
	status, created_at, expires_at, resolved_at, resolution_note, resolved_quantity, resolved_leverage`

func (s *SQLiteStore) GetPending(ctx context.Context, id int64) (*models.PendingDecision, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+pendingSelectCols+` FROM pending_decisions WHERE id = ?`, id)
	p, err := s.scanPending(row)
	if err == sql.ErrNoRows {
		return nil, cryptoerrors.ErrNotFound
	}
	if err != nil {
		return nil, cryptoerrors.Wrap(err, "getting pending decision")
	}
	return p, nil
}

func (s *SQLiteStore) FindPendingByModelCoin(ctx context.Context, modelID int64, coin string) (*models.PendingDecision, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+pendingSelectCols+` FROM pending_decisions
		WHERE model_id = ? AND coin = ? AND status = 'pending'`, modelID, coin)
	p, err := s.scanPending(row)
	if err == sql.ErrNoRows {
		return nil, cryptoerrors.ErrNotFound
	}
	if err != nil {
		return nil, cryptoerrors.Wrap(err, "finding pending decision")
	}
	return p, nil
}

func (s *SQLiteStore) ListPending(ctx context.Context, modelID *int64) ([]models.PendingDecision, error) {
	query := `SELECT ` + pendingSelectCols + ` FROM pending_decisions`
	args := []any{}
	if modelID != nil {
		query += ` WHERE model_id = ?`
		args = append(args, *modelID)
	}
	query += ` ORDER BY created_at ASC`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, cryptoerrors.Wrap(err, "listing pending decisions")
	}
	defer rows.Close()
	var out []models.PendingDecision
	for rows.Next() {
		p, err := s.scanPending(rows)
		if err != nil {
			return nil, cryptoerrors.Wrap(err, "scanning pending decision")
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) TransitionPending(ctx context.Context, id int64, status models.PendingStatus, note *string, resolvedQty, resolvedLev *decimal.Decimal) error {
	var qty, lev any
	if resolvedQty != nil {
		qty = resolvedQty.String()
	}
	if resolvedLev != nil {
		lev = resolvedLev.String()
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE pending_decisions
		SET status = ?, resolved_at = ?, resolution_note = ?, resolved_quantity = ?, resolved_leverage = ?
		WHERE id = ? AND status IN ('pending', 'approved')`,
		status, time.Now().UTC(), note, qty, lev, id)
	if err != nil {
		return cryptoerrors.Wrap(err, "transitioning pending decision")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return cryptoerrors.Wrap(err, "transitioning pending decision")
	}
	if n == 0 {
		return cryptoerrors.ErrAlreadyResolved
	}
	return nil
}

func (s *SQLiteStore) ExpirePendingBefore(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE pending_decisions SET status = 'expired', resolved_at = ?
		WHERE status = 'pending' AND expires_at < ?`, now, now)
	if err != nil {
		return 0, cryptoerrors.Wrap(err, "expiring pending decisions")
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// --- Incident ---

func (s *SQLiteStore) WriteIncident(ctx context.Context, inc *models.Incident) (int64, error) {
	details, err := encodeDetails(inc.Details)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO incidents (model_id, type, severity, message, details, resolved, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		inc.ModelID, inc.Type, inc.Severity, inc.Message, details, inc.Resolved, inc.Timestamp)
	if err != nil {
		return 0, cryptoerrors.Wrap(err, "writing incident")
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) ListIncidents(ctx context.Context, modelID *int64, limit int) ([]models.Incident, error) {
	query := `SELECT id, model_id, type, severity, message, details, resolved, timestamp FROM incidents`
	args := []any{}
	if modelID != nil {
		query += ` WHERE model_id = ?`
		args = append(args, *modelID)
	}
	query += ` ORDER BY timestamp DESC LIMIT ?`
	args = append(args, limit)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, cryptoerrors.Wrap(err, "listing incidents")
	}
	defer rows.Close()
	var out []models.Incident
	for rows.Next() {
		var inc models.Incident
		var modelIDN sql.NullInt64
		var details sql.NullString
		if err := rows.Scan(&inc.ID, &modelIDN, &inc.Type, &inc.Severity, &inc.Message, &details, &inc.Resolved, &inc.Timestamp); err != nil {
			return nil, cryptoerrors.Wrap(err, "scanning incident")
		}
		if modelIDN.Valid {
			v := modelIDN.Int64
			inc.ModelID = &v
		}
		if details.Valid {
			m, err := decodeDetails(details.String)
			if err != nil {
				return nil, err
			}
			inc.Details = m
		}
		out = append(out, inc)
	}
	return out, rows.Err()
}

// --- ExchangeCredentials ---

func (s *SQLiteStore) SaveCredentials(ctx context.Context, modelID int64, env models.ExchangeEnvironment, apiKey, apiSecret []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO exchange_credentials (model_id, environment, api_key, api_secret)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(model_id, environment) DO UPDATE SET api_key=excluded.api_key, api_secret=excluded.api_secret`,
		modelID, env, apiKey, apiSecret)
	return cryptoerrors.Wrap(err, "saving exchange credentials")
}

func (s *SQLiteStore) GetCredentials(ctx context.Context, modelID int64, env models.ExchangeEnvironment) ([]byte, []byte, error) {
	var key, secret []byte
	row := s.db.QueryRowContext(ctx, `SELECT api_key, api_secret FROM exchange_credentials WHERE model_id = ? AND environment = ?`, modelID, env)
	if err := row.Scan(&key, &secret); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, cryptoerrors.ErrNotFound
		}
		return nil, nil, cryptoerrors.Wrap(err, "getting exchange credentials")
	}
	return key, secret, nil
}
