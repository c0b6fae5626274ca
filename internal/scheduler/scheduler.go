// Package scheduler owns the repeating trading timer. The interval follows the
// frequency configured for the current market session and the timer is
// rebuilt whenever the session changes or the frequency is updated.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/bkviswam/tradeplatform/internal/dispatch"
	"github.com/bkviswam/tradeplatform/internal/models"
	"github.com/bkviswam/tradeplatform/internal/session"
	"github.com/bkviswam/tradeplatform/internal/store"
)

var ErrInvalidFrequency = errors.New("frequency must be positive")

const FallbackFrequencyMs = models.DefaultFrequencyMs

type Clock interface {
	MarketClock(ctx context.Context) (models.Clock, error)
}

type Dispatcher interface {
	Run(ctx context.Context, instruments []models.Instrument, cfg models.StrategyConfig, session models.MarketSession) dispatch.CycleID
}

// handle is one scheduled timer loop.
type handle struct {
	cancel      context.CancelFunc
	session     models.MarketSession
	frequencyMs int64
}

type Status struct {
	Running     bool                 `json:"running"`
	Session     models.MarketSession `json:"session,omitempty"`
	FrequencyMs int64                `json:"frequency_ms,omitempty"`
	LastTick    time.Time            `json:"last_tick"`
	Ticks       uint64               `json:"ticks"`
	ClosedTicks uint64               `json:"closed_ticks"`
}

type Manager struct {
	env        models.Environment
	clock      Clock
	configs    store.ConfigStore
	registry   store.InstrumentRegistry
	dispatcher Dispatcher
	log        *zap.Logger

	now   func() time.Time
	after func(time.Duration) <-chan time.Time

	mu     sync.Mutex
	base   context.Context
	active *handle

	// updateMu serializes UpdateFrequency from session read to reschedule.
	updateMu sync.Mutex

	loops       atomic.Int32
	ticks       atomic.Uint64
	closedTicks atomic.Uint64
	lastTick    atomic.Int64
}

func New(env models.Environment, clock Clock, configs store.ConfigStore, registry store.InstrumentRegistry, dispatcher Dispatcher, log *zap.Logger) *Manager {
	return &Manager{
		env:        env,
		clock:      clock,
		configs:    configs,
		registry:   registry,
		dispatcher: dispatcher,
		log:        log.Named("scheduler"),
		now:        time.Now,
		after:      time.After,
		base:       context.Background(),
	}
}

// Start classifies the current session and schedules the trading loop at that
// session's frequency. The first cycle runs immediately.
func (m *Manager) Start(ctx context.Context) error {
	current := m.classify(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.base = context.WithoutCancel(ctx)
	m.reschedule(current)
	return nil
}

// OnSessionChange reschedules when the session differs from the one the
// active timer was built for.
func (m *Manager) OnSessionChange(ctx context.Context) error {
	clock, err := m.clock.MarketClock(ctx)
	if err != nil {
		return fmt.Errorf("scheduler.OnSessionChange: %w", err)
	}
	m.switchSession(session.Classify(clock, m.now()))
	return nil
}

func (m *Manager) UpdateFrequency(ctx context.Context, frequencyMs int64) error {
	if frequencyMs <= 0 {
		m.log.Warn("ignoring invalid frequency", zap.Int64("frequency_ms", frequencyMs))
		return ErrInvalidFrequency
	}

	m.updateMu.Lock()
	defer m.updateMu.Unlock()

	var current models.MarketSession
	m.mu.Lock()
	if m.active != nil {
		current = m.active.session
	}
	m.mu.Unlock()
	if current == "" {
		current = m.classify(ctx)
	}

	cfg, err := m.configs.Get(ctx, m.env, current)
	if err != nil {
		return fmt.Errorf("scheduler.UpdateFrequency: %w", err)
	}
	cfg.FrequencyMs = frequencyMs
	if err := m.configs.Save(ctx, cfg); err != nil {
		return fmt.Errorf("scheduler.UpdateFrequency: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != nil && m.active.session != current {
		m.reschedule(m.active.session)
		return nil
	}
	m.schedule(current, frequencyMs)
	m.log.Info("frequency updated", zap.String("session", string(current)), zap.Int64("frequency_ms", frequencyMs))
	return nil
}

// CurrentFrequency returns the stored frequency for the active session.
func (m *Manager) CurrentFrequency(ctx context.Context) (int64, error) {
	m.mu.Lock()
	var current models.MarketSession
	if m.active != nil {
		current = m.active.session
	}
	m.mu.Unlock()
	if current == "" {
		current = m.classify(ctx)
	}

	cfg, err := m.configs.Get(ctx, m.env, current)
	if err != nil {
		return 0, err
	}
	return cfg.FrequencyMs, nil
}

// RunCycle runs one tick synchronously. Orders are still placed
// asynchronously by the dispatcher.
func (m *Manager) RunCycle(ctx context.Context, env models.Environment) {
	m.tick(ctx, env)
}

func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return
	}
	m.active.cancel()
	m.active = nil
	m.log.Info("schedule stopped")
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	st := Status{Running: m.active != nil}
	if m.active != nil {
		st.Session = m.active.session
		st.FrequencyMs = m.active.frequencyMs
	}
	m.mu.Unlock()

	st.Ticks = m.ticks.Load()
	st.ClosedTicks = m.closedTicks.Load()
	if unix := m.lastTick.Load(); unix != 0 {
		st.LastTick = time.Unix(0, unix).UTC()
	}
	return st
}

// classify falls back to the regular session when the clock is unavailable;
// the first tick corrects it.
func (m *Manager) classify(ctx context.Context) models.MarketSession {
	clock, err := m.clock.MarketClock(ctx)
	if err != nil {
		m.log.Warn("market clock unavailable, assuming regular session", zap.Error(err))
		return models.Regular
	}
	return session.Classify(clock, m.now())
}

// switchSession reports whether the schedule was rebuilt.
func (m *Manager) switchSession(current models.MarketSession) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil || m.active.session == current {
		return false
	}
	m.log.Info("market session changed", zap.String("from", string(m.active.session)), zap.String("to", string(current)))
	m.reschedule(current)
	return true
}

// reschedule must be called with mu held.
func (m *Manager) reschedule(current models.MarketSession) {
	frequencyMs := FallbackFrequencyMs
	cfg, err := m.configs.Get(m.base, m.env, current)
	switch {
	case err != nil:
		m.log.Warn("no config for session, using fallback frequency", zap.String("session", string(current)),
			zap.Int64("frequency_ms", frequencyMs), zap.Error(err))
	case cfg.FrequencyMs <= 0:
		m.log.Warn("invalid frequency in config, using fallback", zap.String("session", string(current)),
			zap.Int64("configured", cfg.FrequencyMs), zap.Int64("frequency_ms", frequencyMs))
	default:
		frequencyMs = cfg.FrequencyMs
	}
	m.schedule(current, frequencyMs)
}

// schedule replaces the active timer and must be called with mu held. The
// previous loop is cancelled without waiting for an in-flight tick.
func (m *Manager) schedule(current models.MarketSession, frequencyMs int64) {
	if m.active != nil {
		m.active.cancel()
	}
	ctx, cancel := context.WithCancel(m.base)
	m.active = &handle{cancel: cancel, session: current, frequencyMs: frequencyMs}
	m.loops.Add(1)
	go m.loop(ctx, time.Duration(frequencyMs)*time.Millisecond)
	m.log.Info("trading scheduled", zap.String("session", string(current)), zap.Int64("frequency_ms", frequencyMs))
}

func (m *Manager) loop(ctx context.Context, interval time.Duration) {
	defer m.loops.Add(-1)
	for {
		m.tick(ctx, m.env)
		if ctx.Err() != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-m.after(interval):
		}
	}
}

func (m *Manager) tick(ctx context.Context, env models.Environment) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("tick panicked", zap.Any("panic", r))
		}
	}()
	if ctx.Err() != nil {
		return
	}

	now := m.now()
	m.ticks.Add(1)
	m.lastTick.Store(now.UnixNano())

	clock, err := m.clock.MarketClock(ctx)
	if err != nil {
		m.log.Error("market clock unavailable, skipping cycle", zap.Error(err))
		return
	}
	if !clock.IsOpen && !session.IsExtendedHours(clock, now) {
		m.closedTicks.Add(1)
		m.log.Info("market closed, skipping cycle")
		return
	}

	current := session.Classify(clock, now)
	if m.switchSession(current) {
		return
	}

	cfg, err := m.configs.Get(ctx, env, current)
	if err != nil {
		m.log.Error("load strategy config failed", zap.String("session", string(current)), zap.Error(err))
		return
	}
	instruments, err := m.registry.ListActive(ctx)
	if err != nil {
		m.log.Error("list active instruments failed", zap.Error(err))
		return
	}
	if len(instruments) == 0 {
		m.log.Debug("no active instruments")
		return
	}

	cycle := m.dispatcher.Run(ctx, instruments, cfg, current)
	m.log.Debug("cycle dispatched", zap.Uint64("cycle", uint64(cycle)), zap.String("session", string(current)),
		zap.Int("instruments", len(instruments)))
}
