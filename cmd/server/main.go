// Command server wires every package into a runnable cryptotrader CLI:
// config, persistence, the exchange/AI/market clients, the risk and
// automation layers, the scheduler, and the cobra command tree.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"cryptotrader/internal/ai"
	"cryptotrader/internal/automation"
	"cryptotrader/internal/cli"
	"cryptotrader/internal/config"
	"cryptotrader/internal/exchange"
	"cryptotrader/internal/execution"
	cryptologging "cryptotrader/internal/logging"
	"cryptotrader/internal/market"
	"cryptotrader/internal/models"
	"cryptotrader/internal/notify"
	"cryptotrader/internal/pending"
	"cryptotrader/internal/profile"
	"cryptotrader/internal/resilience"
	"cryptotrader/internal/scheduler"
	"cryptotrader/internal/security"
	"cryptotrader/internal/statsctx"
	"cryptotrader/internal/store"
	"cryptotrader/internal/trading"
)

func main() {
	configDir := flag.String("config", "", "configuration directory (default: ~/.config/cryptotrader)")
	flag.Parse()

	cfg, err := config.Load(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading configuration: %v\n", err)
		os.Exit(1)
	}

	log := cryptologging.NewLoggerWithConfig(cryptologging.LogConfig{
		Level: cfg.Logging.Level, Console: cfg.Logging.Console, File: cfg.Logging.File,
		FilePath: cfg.Logging.FilePath, MaxSize: cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups, MaxAge: cfg.Logging.MaxAgeDays,
	})

	app, closeFn, err := bootstrap(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize")
	}
	defer closeFn()

	root := cli.NewRootCmd(app)
	if err := root.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// bootstrap builds the full dependency graph described by §5/§6: a single
// store, one shared market-data client (public ticker prices, not
// model-scoped), a per-model-name AI decider cache, a per-model lazily
// built execution.Executor, and the risk/automation/trading/scheduler
// stack sitting on top of all of it.
func bootstrap(cfg *config.Config, log zerolog.Logger) (*cli.App, func(), error) {
	dbPath := cfg.Store.DataDir + string(os.PathSeparator) + cfg.Store.Filename
	if cfg.Store.DataDir == "" {
		dbPath = cfg.Store.Filename
	}
	st, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening store: %w", err)
	}

	breakers := resilience.NewCircuitBreakerRegistry(resilience.DefaultCircuitBreakerConfig())

	publicExchange := exchange.NewResilientClient(
		exchange.NewBinanceClient(exchange.BinanceConfig{Env: models.ExchangeMainnet}, log),
		breakers, "exchange:market-data", cfg.Scheduler.ExchangeTimeout,
	)

	// The initial reachability check is the one place this system retries:
	// a market-data ping at startup is not an order, so backing off a few
	// times before giving up on an otherwise-healthy venue is safe (§7
	// reserves "never retry" for live order placement, not connectivity
	// checks).
	retry := resilience.DefaultRetryWithBackoff()
	if _, err := resilience.RetryWithBackoffResult(context.Background(), retry, func() (bool, error) {
		return publicExchange.Ping(context.Background())
	}); err != nil {
		log.Warn().Err(err).Msg("exchange reachability check failed at startup; continuing, circuit breaker will gate live calls")
	}

	marketData := market.New(publicExchange)

	aiDecider := ai.NewResilientDecider(
		ai.NewMultiDecider(cfg.Credentials.OpenAI.APIKey, log),
		breakers, "ai:decider", cfg.Scheduler.AIDeciderTimeout,
	)

	execFactory := newExecutorFactory(st, cfg, log, breakers)

	pendingQueue := pending.New(st, executorByModelID(st, execFactory), riskContextLoader(st, marketData), log)
	automationHandler := automation.New(st, pendingQueue, autoPauseContextLoader(st))
	tradingExecutor := trading.New(st, marketData, aiDecider, execFactory, automationHandler, log)
	tradingExecutor.SetNotifier(newNotifier(cfg, log))
	if cfg.Security.AuditEnabled {
		if auditor, err := security.NewAuditLogger(security.DefaultAuditConfig()); err != nil {
			log.Warn().Err(err).Msg("audit logger unavailable; continuing without an audit trail")
		} else {
			tradingExecutor.SetAuditor(auditor)
		}
	}
	sched := scheduler.New(st, tradingExecutor, pendingQueue, log)
	profileEngine := profile.New(st)

	app := &cli.App{
		Config: cfg, Logger: log, Store: st,
		Scheduler: sched, Pending: pendingQueue, Profile: profileEngine,
		Breakers: breakers,
	}
	return app, func() { _ = st.Close() }, nil
}

// newNotifier builds the operator-facing notification channel from
// config (§6 Notifications): disabled means a pure no-op, enabled always
// includes the terminal/log channel at the configured level.
func newNotifier(cfg *config.Config, log zerolog.Logger) notify.Notifier {
	if !cfg.Notifications.Enabled {
		return notify.NewNoop()
	}
	return notify.NewMulti(notify.NewTerminalNotifier(log, notify.Level(cfg.Notifications.Level)))
}

// executorByModelID adapts trading.ExecutorFactory (keyed by Model) into
// the modelID-keyed lookup pending.Queue.Approve needs at resolution
// time, when only the pending decision's modelID is on hand.
func executorByModelID(st store.Store, execFactory trading.ExecutorFactory) func(int64) (execution.Executor, error) {
	return func(modelID int64) (execution.Executor, error) {
		model, err := st.GetModel(context.Background(), modelID)
		if err != nil {
			return nil, err
		}
		return execFactory(*model)
	}
}

// riskContextLoader adapts statsctx into pending.RiskContextFunc, the
// fresh-at-approval-time re-check pending.Queue.Approve needs (§4.5).
func riskContextLoader(st store.Store, marketData *market.Data) pending.RiskContextFunc {
	return func(ctx context.Context, modelID int64) (pending.RiskContext, error) {
		model, err := st.GetModel(ctx, modelID)
		if err != nil {
			return pending.RiskContext{}, err
		}
		settings, err := st.GetSettings(ctx, modelID)
		if err != nil {
			return pending.RiskContext{}, err
		}
		portfolio, err := statsctx.LoadPortfolioWithValue(ctx, st, marketData, modelID, model.Coins)
		if err != nil {
			return pending.RiskContext{}, err
		}
		daily, err := statsctx.LoadDaily(ctx, st, modelID, portfolio.TotalValue)
		if err != nil {
			return pending.RiskContext{}, err
		}
		return pending.RiskContext{
			Portfolio: portfolio, Settings: *settings, Automation: model.Automation,
			DailyTradeCount: daily.TradeCount, TodayRealizedPnL: daily.TodayRealizedPnL,
			StartOfDayTotalValue: daily.StartOfDayTotalValue, DrawdownPct: daily.DrawdownPct,
		}, nil
	}
}

// autoPauseContextLoader adapts statsctx into automation.AutoPauseContextFunc
// (§4.3).
func autoPauseContextLoader(st store.Store) automation.AutoPauseContextFunc {
	return func(ctx context.Context, modelID int64) (automation.AutoPauseContext, error) {
		outcomes, err := statsctx.LoadRecentOutcomes(ctx, st, modelID)
		if err != nil {
			return automation.AutoPauseContext{}, err
		}
		portfolio, err := st.GetPortfolio(ctx, modelID)
		if err != nil {
			return automation.AutoPauseContext{}, err
		}
		daily, err := statsctx.LoadDaily(ctx, st, modelID, portfolio.TotalValue)
		if err != nil {
			return automation.AutoPauseContext{}, err
		}
		pnlPct := daily.TodayRealizedPnL
		if !daily.StartOfDayTotalValue.IsZero() {
			pnlPct = daily.TodayRealizedPnL.Div(daily.StartOfDayTotalValue).Mul(decimal.NewFromInt(100))
		}
		return automation.AutoPauseContext{
			ConsecutiveLosses: outcomes.ConsecutiveLosses, Last10WinRatePct: outcomes.WinRatePct,
			Last10Closed: outcomes.Closed, TodayRealizedPnLPct: pnlPct,
		}, nil
	}
}

// executorCache lazily builds execution.Executors. One simulation
// executor is shared by every model. A live executor is built on a
// model's first live use and cached per (model, exchange environment), so
// a model moved between testnet and mainnet gets a separate client. A
// cached live executor is kept for the life of the process: credentials
// saved for that model and exchange environment afterwards are not picked
// up by it.
type executorCache struct {
	mu   sync.Mutex
	sim  execution.Executor
	live map[liveExecutorKey]execution.Executor
}

// liveExecutorKey identifies one cached live executor.
type liveExecutorKey struct {
	modelID int64
	env     models.ExchangeEnvironment
}

func newExecutorFactory(st store.Store, cfg *config.Config, log zerolog.Logger, breakers *resilience.CircuitBreakerRegistry) trading.ExecutorFactory {
	cache := &executorCache{sim: execution.NewSimulationExecutor(st), live: make(map[liveExecutorKey]execution.Executor)}

	return func(model models.Model) (execution.Executor, error) {
		if model.Environment != models.EnvironmentLive {
			return cache.sim, nil
		}

		cache.mu.Lock()
		defer cache.mu.Unlock()
		key := liveExecutorKey{modelID: model.ID, env: model.ExchangeEnv}
		if ex, ok := cache.live[key]; ok {
			return ex, nil
		}

		apiKey, apiSecret, err := st.GetCredentials(context.Background(), model.ID, model.ExchangeEnv)
		if err != nil || len(apiKey) == 0 {
			apiKey, apiSecret = []byte(cfg.Credentials.Binance.APIKey), []byte(cfg.Credentials.Binance.APISecret)
		} else if cfg.Security.EncryptCredentials {
			apiKey, err = security.DecryptBlob(cfg.Credentials.MasterPassword, apiKey)
			if err != nil {
				return nil, fmt.Errorf("decrypting model %d exchange credentials: %w", model.ID, err)
			}
			apiSecret, err = security.DecryptBlob(cfg.Credentials.MasterPassword, apiSecret)
			if err != nil {
				return nil, fmt.Errorf("decrypting model %d exchange credentials: %w", model.ID, err)
			}
		}

		client := exchange.NewResilientClient(
			exchange.NewBinanceClient(exchange.BinanceConfig{
				APIKey: string(apiKey), APISecret: string(apiSecret),
				Env: model.ExchangeEnv, Timeout: cfg.Scheduler.ExchangeTimeout,
			}, log),
			breakers, fmt.Sprintf("exchange:model-%d", model.ID), cfg.Scheduler.ExchangeTimeout,
		)
		ex := execution.NewLiveExecutor(st, client, log)
		cache.live[key] = ex
		return ex, nil
	}
}
