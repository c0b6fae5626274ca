package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bkviswam/tradeplatform/internal/dispatch"
	"github.com/bkviswam/tradeplatform/internal/models"
	"github.com/bkviswam/tradeplatform/internal/store"
)

var newYork = mustLoad("America/New_York")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

func at(hour, minute int) time.Time {
	return time.Date(2024, 3, 5, hour, minute, 0, 0, newYork)
}

var (
	openClock = models.Clock{IsOpen: true, NextOpen: time.Date(2024, 3, 6, 9, 30, 0, 0, newYork), NextClose: at(16, 0)}
	preClock  = models.Clock{IsOpen: false, NextOpen: at(9, 30), NextClose: at(16, 0)}
	// Saturday midday: closed and inside the regular time-of-day window.
	weekendClock = models.Clock{IsOpen: false, NextOpen: time.Date(2024, 3, 11, 9, 30, 0, 0, newYork), NextClose: time.Date(2024, 3, 11, 16, 0, 0, 0, newYork)}
)

type fakeClock struct {
	mu    sync.Mutex
	clock models.Clock
	now   time.Time
	err   error
	calls atomic.Int32
}

func (f *fakeClock) MarketClock(context.Context) (models.Clock, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clock, f.err
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) set(clock models.Clock, now time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clock = clock
	f.now = now
}

type run struct {
	symbols []string
	cfg     models.StrategyConfig
	session models.MarketSession
}

type fakeDispatcher struct {
	mu    sync.Mutex
	runs  []run
	panic bool
}

func (f *fakeDispatcher) Run(_ context.Context, instruments []models.Instrument, cfg models.StrategyConfig, session models.MarketSession) dispatch.CycleID {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panic {
		f.panic = false
		panic("dispatcher exploded")
	}
	symbols := make([]string, 0, len(instruments))
	for _, i := range instruments {
		symbols = append(symbols, i.Symbol)
	}
	f.runs = append(f.runs, run{symbols: symbols, cfg: cfg, session: session})
	return dispatch.CycleID(len(f.runs))
}

func (f *fakeDispatcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.runs)
}

func (f *fakeDispatcher) last() run {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs[len(f.runs)-1]
}

// manualTimers hands out timer channels that only fire when the test says so.
type manualTimers struct {
	mu        sync.Mutex
	intervals []time.Duration
	chans     []chan time.Time
}

func (m *manualTimers) after(d time.Duration) <-chan time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan time.Time, 1)
	m.intervals = append(m.intervals, d)
	m.chans = append(m.chans, ch)
	return ch
}

func (m *manualTimers) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.chans)
}

func (m *manualTimers) lastInterval() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.intervals) == 0 {
		return 0
	}
	return m.intervals[len(m.intervals)-1]
}

func (m *manualTimers) fireLast() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chans[len(m.chans)-1] <- time.Now()
}

type countingRegistry struct {
	store.InstrumentRegistry
	calls atomic.Int32
}

func (c *countingRegistry) ListActive(ctx context.Context) ([]models.Instrument, error) {
	c.calls.Add(1)
	return c.InstrumentRegistry.ListActive(ctx)
}

// gatedConfigs blocks the first Save after it has been applied.
type gatedConfigs struct {
	store.ConfigStore
	once    sync.Once
	saved   chan struct{}
	release chan struct{}
}

func (g *gatedConfigs) Save(ctx context.Context, cfg models.StrategyConfig) error {
	if err := g.ConfigStore.Save(ctx, cfg); err != nil {
		return err
	}
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.saved)
		<-g.release
	}
	return nil
}

type fixture struct {
	manager    *Manager
	clock      *fakeClock
	configs    *store.MemoryConfigStore
	registry   *countingRegistry
	dispatcher *fakeDispatcher
	timers     *manualTimers
}

func newFixture(t *testing.T, clock models.Clock, now time.Time) *fixture {
	t.Helper()
	f := &fixture{
		clock:      &fakeClock{clock: clock, now: now},
		configs:    store.NewMemoryConfigStore(),
		registry:   &countingRegistry{InstrumentRegistry: store.NewMemoryInstrumentRegistry(models.Instrument{Symbol: "AAPL", Active: true})},
		dispatcher: &fakeDispatcher{},
		timers:     &manualTimers{},
	}
	f.manager = New(models.EnvironmentPaper, f.clock, f.configs, f.registry, f.dispatcher, zap.NewNop())
	f.manager.now = f.clock.Now
	f.manager.after = f.timers.after
	t.Cleanup(f.manager.Stop)
	return f
}

func (f *fixture) saveConfig(t *testing.T, session models.MarketSession, frequencyMs int64) {
	t.Helper()
	cfg := models.NewStrategyConfig(models.EnvironmentPaper, session)
	cfg.FrequencyMs = frequencyMs
	require.NoError(t, f.configs.Save(context.Background(), cfg))
}

func (f *fixture) storedFrequency(t *testing.T, session models.MarketSession) int64 {
	t.Helper()
	cfg, err := f.configs.Get(context.Background(), models.EnvironmentPaper, session)
	require.NoError(t, err)
	return cfg.FrequencyMs
}

func (f *fixture) waitForTimers(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return f.timers.count() >= n }, time.Second, 5*time.Millisecond)
}

func TestStartRunsImmediatelyAtSessionFrequency(t *testing.T) {
	f := newFixture(t, openClock, at(10, 0))
	f.saveConfig(t, models.Regular, 5000)

	require.NoError(t, f.manager.Start(context.Background()))
	f.waitForTimers(t, 1)

	assert.Equal(t, 1, f.dispatcher.count())
	assert.Equal(t, models.Regular, f.dispatcher.last().session)
	assert.Equal(t, []string{"AAPL"}, f.dispatcher.last().symbols)
	assert.Equal(t, 5*time.Second, f.timers.lastInterval())

	status := f.manager.Status()
	assert.True(t, status.Running)
	assert.Equal(t, models.Regular, status.Session)
	assert.Equal(t, int64(5000), status.FrequencyMs)
}

func TestStartFallsBackWithoutConfig(t *testing.T) {
	f := newFixture(t, openClock, at(10, 0))

	require.NoError(t, f.manager.Start(context.Background()))
	f.waitForTimers(t, 1)

	assert.Equal(t, time.Duration(FallbackFrequencyMs)*time.Millisecond, f.timers.lastInterval())
	assert.Equal(t, 0, f.dispatcher.count())
}

func TestTimerFiresNextCycle(t *testing.T) {
	f := newFixture(t, openClock, at(10, 0))
	f.saveConfig(t, models.Regular, 5000)

	require.NoError(t, f.manager.Start(context.Background()))
	f.waitForTimers(t, 1)
	f.timers.fireLast()
	f.waitForTimers(t, 2)

	assert.Equal(t, 2, f.dispatcher.count())
	assert.Equal(t, uint64(2), f.manager.Status().Ticks)
}

func TestUpdateFrequencyRejectsNonPositive(t *testing.T) {
	f := newFixture(t, openClock, at(10, 0))
	f.saveConfig(t, models.Regular, 5000)
	require.NoError(t, f.manager.Start(context.Background()))
	f.waitForTimers(t, 1)

	for _, frequency := range []int64{0, -1, -60000} {
		err := f.manager.UpdateFrequency(context.Background(), frequency)
		assert.ErrorIs(t, err, ErrInvalidFrequency)
	}

	assert.Equal(t, int64(5000), f.storedFrequency(t, models.Regular))
	assert.Equal(t, int64(5000), f.manager.Status().FrequencyMs)
	assert.Equal(t, int32(1), f.manager.loops.Load())
	assert.Equal(t, 1, f.timers.count())
}

func TestUpdateFrequencyLeavesOneActiveTimer(t *testing.T) {
	f := newFixture(t, openClock, at(10, 0))
	f.saveConfig(t, models.Regular, 5000)
	require.NoError(t, f.manager.Start(context.Background()))
	f.waitForTimers(t, 1)

	for i, frequency := range []int64{1500, 2500, 750} {
		require.NoError(t, f.manager.UpdateFrequency(context.Background(), frequency))
		f.waitForTimers(t, i+2)
	}

	require.Eventually(t, func() bool { return f.manager.loops.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 750*time.Millisecond, f.timers.lastInterval())
	assert.Equal(t, int64(750), f.storedFrequency(t, models.Regular))
	assert.Equal(t, int64(750), f.manager.Status().FrequencyMs)

	current, err := f.manager.CurrentFrequency(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(750), current)
}

func TestConcurrentUpdatesKeepTimerInSyncWithStore(t *testing.T) {
	f := newFixture(t, openClock, at(11, 0))
	f.saveConfig(t, models.Regular, 60000)
	gate := &gatedConfigs{ConfigStore: f.configs, saved: make(chan struct{}), release: make(chan struct{})}
	f.manager.configs = gate
	require.NoError(t, f.manager.Start(context.Background()))

	first := make(chan error, 1)
	go func() { first <- f.manager.UpdateFrequency(context.Background(), 100) }()
	<-gate.saved

	second := make(chan error, 1)
	go func() { second <- f.manager.UpdateFrequency(context.Background(), 200) }()
	select {
	case <-second:
		t.Fatal("second update finished while the first was still persisting")
	case <-time.After(50 * time.Millisecond):
	}

	close(gate.release)
	require.NoError(t, <-first)
	require.NoError(t, <-second)

	assert.Equal(t, int64(200), f.storedFrequency(t, models.Regular))
	assert.Equal(t, int64(200), f.manager.Status().FrequencyMs)
	require.Eventually(t, func() bool { return f.manager.loops.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestUpdateFrequencyWithoutConfig(t *testing.T) {
	f := newFixture(t, openClock, at(10, 0))

	err := f.manager.UpdateFrequency(context.Background(), 1000)

	assert.ErrorIs(t, err, store.ErrConfigNotFound)
	assert.False(t, f.manager.Status().Running)
}

func TestCurrentFrequency(t *testing.T) {
	f := newFixture(t, preClock, at(8, 0))
	f.saveConfig(t, models.Regular, 5000)

	_, err := f.manager.CurrentFrequency(context.Background())
	assert.ErrorIs(t, err, store.ErrConfigNotFound)

	f.saveConfig(t, models.PreMarket, 2000)
	frequency, err := f.manager.CurrentFrequency(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2000), frequency)
}

func TestClosedMarketTickDoesNothing(t *testing.T) {
	f := newFixture(t, weekendClock, time.Date(2024, 3, 9, 12, 0, 0, 0, newYork))
	f.saveConfig(t, models.Regular, 5000)

	f.manager.RunCycle(context.Background(), models.EnvironmentPaper)

	assert.Equal(t, int32(1), f.clock.calls.Load())
	assert.Equal(t, int32(0), f.registry.calls.Load())
	assert.Equal(t, 0, f.dispatcher.count())
	assert.Equal(t, uint64(1), f.manager.Status().ClosedTicks)
}

func TestExtendedHoursTickDispatches(t *testing.T) {
	f := newFixture(t, preClock, at(8, 0))
	f.saveConfig(t, models.PreMarket, 2000)

	f.manager.RunCycle(context.Background(), models.EnvironmentPaper)

	require.Equal(t, 1, f.dispatcher.count())
	assert.Equal(t, models.PreMarket, f.dispatcher.last().session)
	assert.Equal(t, int64(2000), f.dispatcher.last().cfg.FrequencyMs)
}

func TestTickReschedulesOnSessionChange(t *testing.T) {
	f := newFixture(t, preClock, at(9, 29))
	f.saveConfig(t, models.PreMarket, 1000)
	f.saveConfig(t, models.Regular, 5000)

	require.NoError(t, f.manager.Start(context.Background()))
	f.waitForTimers(t, 1)
	assert.Equal(t, time.Second, f.timers.lastInterval())

	f.clock.set(openClock, at(9, 31))
	f.timers.fireLast()
	f.waitForTimers(t, 2)

	require.Eventually(t, func() bool { return f.manager.loops.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 5*time.Second, f.timers.lastInterval())
	status := f.manager.Status()
	assert.Equal(t, models.Regular, status.Session)
	assert.Equal(t, int64(5000), status.FrequencyMs)

	require.Equal(t, 2, f.dispatcher.count())
	assert.Equal(t, models.Regular, f.dispatcher.last().session)
}

func TestOnSessionChangeKeepsScheduleWhenUnchanged(t *testing.T) {
	f := newFixture(t, openClock, at(10, 0))
	f.saveConfig(t, models.Regular, 5000)
	require.NoError(t, f.manager.Start(context.Background()))
	f.waitForTimers(t, 1)

	require.NoError(t, f.manager.OnSessionChange(context.Background()))

	assert.Equal(t, 1, f.timers.count())
	assert.Equal(t, int32(1), f.manager.loops.Load())
}

func TestTickSurvivesFailures(t *testing.T) {
	f := newFixture(t, openClock, at(10, 0))
	f.saveConfig(t, models.Regular, 5000)
	f.dispatcher.panic = true

	require.NoError(t, f.manager.Start(context.Background()))
	f.waitForTimers(t, 1)
	assert.Equal(t, 0, f.dispatcher.count())

	f.clock.mu.Lock()
	f.clock.err = errors.New("clock unavailable")
	f.clock.mu.Unlock()
	f.timers.fireLast()
	f.waitForTimers(t, 2)
	assert.Equal(t, 0, f.dispatcher.count())

	f.clock.mu.Lock()
	f.clock.err = nil
	f.clock.mu.Unlock()
	f.timers.fireLast()
	f.waitForTimers(t, 3)
	assert.Equal(t, 1, f.dispatcher.count())
}

func TestStopCancelsLoop(t *testing.T) {
	f := newFixture(t, openClock, at(10, 0))
	f.saveConfig(t, models.Regular, 5000)
	require.NoError(t, f.manager.Start(context.Background()))
	f.waitForTimers(t, 1)

	f.manager.Stop()

	require.Eventually(t, func() bool { return f.manager.loops.Load() == 0 }, time.Second, 5*time.Millisecond)
	assert.False(t, f.manager.Status().Running)
}
