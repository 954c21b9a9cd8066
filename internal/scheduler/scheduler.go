// Package scheduler drives per-model trading cycles and the pending-
// expire sweep, and implements the emergency controls (§4.7). Grounded on
// other_examples/0d2c0ec8_jonnyspicer-hyperkaehler__internal-scheduler-scheduler.go's
// ticker-per-concern select loop, generalized from one strategy set to N
// independently-ticking models; the per-model ticker registry is grounded
// on internal/resilience/registry.go's CircuitBreakerRegistry (lazy-get,
// double-checked-lock map of per-key state).
package scheduler

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"cryptotrader/internal/models"
	"cryptotrader/internal/pending"
	"cryptotrader/internal/store"
	"cryptotrader/internal/trading"
)

// PendingSweepInterval is how often the pending-expire sweep runs (§4.5,
// §4.7: "at least once per minute").
const PendingSweepInterval = time.Minute

type modelWorker struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Scheduler is the single long-running process responsibility from §4.7:
// maintain a map of active models, drive RunCycle per-model on its own
// interval, sweep expired pending decisions, and carry out emergency
// operator controls.
type Scheduler struct {
	store   store.Store
	trading *trading.Executor
	pending *pending.Queue
	log     zerolog.Logger

	mu      sync.Mutex
	workers map[int64]*modelWorker
	enabled bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Scheduler.
func New(st store.Store, tradingExecutor *trading.Executor, pendingQueue *pending.Queue, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		store: st, trading: tradingExecutor, pending: pendingQueue,
		log: log.With().Str("component", "scheduler").Logger(),
		workers: make(map[int64]*modelWorker), enabled: true,
	}
}

// Start loads every active model, launches its per-model ticker loop, and
// starts the independent pending-expire sweep. It returns once workers
// are launched; Stop tears everything down.
func (s *Scheduler) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	activeModels, err := s.store.ListActiveModels(ctx)
	if err != nil {
		return err
	}
	for _, m := range activeModels {
		s.addModel(runCtx, m)
	}

	s.wg.Add(1)
	go s.runSweepLoop(runCtx)

	return nil
}

// Stop cancels every per-model loop and the sweep loop, and waits for
// them to exit.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// addModel launches a per-model ticker loop, unless one is already
// running for this model id.
func (s *Scheduler) addModel(ctx context.Context, model models.Model) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.workers[model.ID]; ok {
		return
	}

	minutes := models.DefaultTradingIntervalMinutes
	if settings, err := s.store.GetSettings(ctx, model.ID); err == nil && settings.TradingIntervalMinutes > 0 {
		minutes = settings.TradingIntervalMinutes
	}
	interval := time.Duration(models.ClampInterval(minutes)) * time.Minute

	workerCtx, cancel := context.WithCancel(ctx)
	w := &modelWorker{cancel: cancel, done: make(chan struct{})}
	s.workers[model.ID] = w

	s.wg.Add(1)
	go s.runModelLoop(workerCtx, model.ID, interval, w.done)
}

// RemoveModel stops a model's ticker loop (e.g. on deletion).
func (s *Scheduler) RemoveModel(modelID int64) {
	s.mu.Lock()
	w, ok := s.workers[modelID]
	if ok {
		delete(s.workers, modelID)
	}
	s.mu.Unlock()
	if ok {
		w.cancel()
		<-w.done
	}
}

func (s *Scheduler) runModelLoop(ctx context.Context, modelID int64, interval time.Duration, done chan struct{}) {
	defer s.wg.Done()
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.runCycleIfEnabled(ctx, modelID)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runCycleIfEnabled(ctx, modelID)
		}
	}
}

func (s *Scheduler) runCycleIfEnabled(ctx context.Context, modelID int64) {
	s.mu.Lock()
	enabled := s.enabled
	s.mu.Unlock()
	if !enabled {
		return
	}

	report, err := s.trading.RunCycle(ctx, modelID)
	if err != nil {
		s.log.Error().Err(err).Int64("model_id", modelID).Msg("cycle failed")
		return
	}
	s.log.Info().Int64("model_id", modelID).Int("executed", report.Executed()).
		Int("pending", report.Pending()).Int("skipped", report.Skipped()).Msg("cycle complete")
}

func (s *Scheduler) runSweepLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(PendingSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.pending.ExpireSweep(ctx)
			if err != nil {
				s.log.Error().Err(err).Msg("pending-expire sweep failed")
				continue
			}
			if n > 0 {
				s.log.Info().Int("expired", n).Msg("pending-expire sweep")
			}
		}
	}
}

// EmergencyPause reduces one model's automation to a level requiring
// human action and writes an incident (§4.7).
func (s *Scheduler) EmergencyPause(ctx context.Context, modelID int64, target models.AutomationLevel) error {
	if target != models.AutomationSemi && target != models.AutomationManual {
		target = models.AutomationSemi
	}
	if err := s.store.UpdateModelAutomation(ctx, modelID, target); err != nil {
		return err
	}
	id := modelID
	_, err := s.store.WriteIncident(ctx, &models.Incident{
		ModelID: &id, Type: models.IncidentEmergencyPause, Severity: models.SeverityHigh,
		Message: "emergency pause: automation reduced to " + string(target),
		Details: map[string]any{"target_automation": string(target)}, Timestamp: time.Now(),
	})
	return err
}

// EmergencyStopAll sets every model's environment to simulation — active
// or paused — and writes one incident listing the models affected and
// their previous environments (§4.7). A call that changes nothing (every
// model already simulation) writes no incident, so repeated calls within
// the same second stay idempotent (§8).
func (s *Scheduler) EmergencyStopAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.store.ListModels(ctx)
	if err != nil {
		return err
	}

	previous := make(map[string]string, len(all))
	for _, m := range all {
		if m.Environment == models.EnvironmentLive {
			if err := s.store.UpdateModelEnvironment(ctx, m.ID, models.EnvironmentSimulation); err != nil {
				return err
			}
			previous[strconv.FormatInt(m.ID, 10)] = string(m.Environment)
		}
	}

	if len(previous) == 0 {
		return nil
	}

	_, err = s.store.WriteIncident(ctx, &models.Incident{
		Type: models.IncidentEmergencyStopAll, Severity: models.SeverityCritical,
		Message: "emergency stop all: every live model forced to simulation",
		Details: map[string]any{"previous_environments": previous}, Timestamp: time.Now(),
	})
	return err
}

// GlobalToggle enables or disables every cycle without unloading model
// state (§4.7).
func (s *Scheduler) GlobalToggle(enabled bool) {
	s.mu.Lock()
	s.enabled = enabled
	s.mu.Unlock()
}
