package engine

import (
	"bufio"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bkviswam/tradeplatform/internal/broker"
	"github.com/bkviswam/tradeplatform/internal/models"
	"github.com/bkviswam/tradeplatform/internal/store"
)

type mockBroker struct {
	mock.Mock
}

func (m *mockBroker) MarketPrice(ctx context.Context, symbol string) (float64, error) {
	args := m.Called(ctx, symbol)
	return args.Get(0).(float64), args.Error(1)
}

func (m *mockBroker) PlaceBuyOrder(ctx context.Context, symbol string, qty int) (broker.OrderRef, error) {
	args := m.Called(ctx, symbol, qty)
	return args.Get(0).(broker.OrderRef), args.Error(1)
}

func (m *mockBroker) PlaceSellOrder(ctx context.Context, symbol string, qty int) (broker.OrderRef, error) {
	args := m.Called(ctx, symbol, qty)
	return args.Get(0).(broker.OrderRef), args.Error(1)
}

func (m *mockBroker) BuyingPower(ctx context.Context) (decimal.Decimal, error) {
	args := m.Called(ctx)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *mockBroker) AvailableQty(ctx context.Context, symbol string) (int, error) {
	args := m.Called(ctx, symbol)
	return args.Int(0), args.Error(1)
}

type fixture struct {
	engine   *Engine
	broker   *mockBroker
	configs  *store.MemoryConfigStore
	history  *store.MemoryHistoryStore
	registry *store.MemoryInstrumentRegistry
	logPath  string
}

func newFixture(t *testing.T, instruments ...models.Instrument) *fixture {
	t.Helper()
	logPath := filepath.Join(t.TempDir(), "decisions.jsonl")
	decisions, err := NewDecisionLogger(logPath, "test-run", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = decisions.Close() })

	f := &fixture{
		broker:   &mockBroker{},
		configs:  store.NewMemoryConfigStore(),
		history:  store.NewMemoryHistoryStore(),
		registry: store.NewMemoryInstrumentRegistry(instruments...),
		logPath:  logPath,
	}
	f.engine = New(Deps{
		Env:       models.EnvironmentPaper,
		Broker:    f.broker,
		Configs:   f.configs,
		History:   f.history,
		Registry:  f.registry,
		Decisions: decisions,
		Log:       zap.NewNop(),
	})
	return f
}

func (f *fixture) seedRecord(t *testing.T, symbol string, price float64, qty int, action models.Action) {
	t.Helper()
	require.NoError(t, f.history.Append(context.Background(), models.TradeRecord{
		Symbol:        symbol,
		Price:         price,
		Quantity:      qty,
		Action:        action,
		Timestamp:     time.Now().UTC(),
		OrderID:       "seed",
		OrderStatus:   "filled",
		MarketSession: models.Regular,
	}))
}

func (f *fixture) decisions(t *testing.T) []Decision {
	t.Helper()
	file, err := os.Open(f.logPath)
	require.NoError(t, err)
	defer file.Close()

	var out []Decision
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var d Decision
		require.NoError(t, sonic.Unmarshal(scanner.Bytes(), &d))
		out = append(out, d)
	}
	require.NoError(t, scanner.Err())
	return out
}

func regularConfig() models.StrategyConfig {
	cfg := models.NewStrategyConfig(models.EnvironmentPaper, models.Regular)
	return cfg
}

var aapl = models.Instrument{Symbol: "AAPL", Active: true}

func TestExecuteStrategyFor_NoHistoryHolds(t *testing.T) {
	f := newFixture(t, aapl)
	f.broker.On("MarketPrice", mock.Anything, "AAPL").Return(100.0, nil)

	outcome, err := f.engine.ExecuteStrategyFor(context.Background(), aapl, regularConfig(), models.Regular)

	require.NoError(t, err)
	assert.Equal(t, OutcomeHeld, outcome)
	f.broker.AssertNotCalled(t, "PlaceBuyOrder", mock.Anything, mock.Anything, mock.Anything)
	f.broker.AssertNotCalled(t, "PlaceSellOrder", mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, f.history.Records("AAPL"))

	decisions := f.decisions(t)
	require.Len(t, decisions, 1)
	assert.Equal(t, ResultHold, decisions[0].Result)
	assert.Equal(t, "test-run", decisions[0].RunID)
}

func TestExecuteStrategyFor_MartingaleDoublesOnDrop(t *testing.T) {
	f := newFixture(t, aapl)
	f.seedRecord(t, "AAPL", 100, 1, models.Buy)
	f.broker.On("MarketPrice", mock.Anything, "AAPL").Return(94.0, nil)
	f.broker.On("BuyingPower", mock.Anything).Return(decimal.NewFromInt(1000), nil)
	f.broker.On("PlaceBuyOrder", mock.Anything, "AAPL", 2).
		Return(broker.OrderRef{ID: "o-1", Status: "accepted", Side: models.Buy, Qty: 2}, nil)

	outcome, err := f.engine.ExecuteStrategyFor(context.Background(), aapl, regularConfig(), models.Regular)

	require.NoError(t, err)
	assert.Equal(t, OutcomeTraded, outcome)
	f.broker.AssertExpectations(t)

	records := f.history.Records("AAPL")
	require.Len(t, records, 2)
	last := records[1]
	assert.Equal(t, models.Buy, last.Action)
	assert.Equal(t, 2, last.Quantity)
	assert.Equal(t, 94.0, last.Price)
	assert.Equal(t, "o-1", last.OrderID)
	assert.Equal(t, models.Regular, last.MarketSession)
}

func TestExecuteStrategyFor_MartingaleSellsOnRise(t *testing.T) {
	testCases := []struct {
		desc      string
		available int
		want      Outcome
		placed    bool
	}{
		{"enough position", 4, OutcomeTraded, true},
		{"short position", 1, OutcomeSkipped, false},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			f := newFixture(t, aapl)
			f.seedRecord(t, "AAPL", 100, 2, models.Buy)
			f.broker.On("MarketPrice", mock.Anything, "AAPL").Return(101.0, nil)
			f.broker.On("AvailableQty", mock.Anything, "AAPL").Return(tc.available, nil)
			f.broker.On("PlaceSellOrder", mock.Anything, "AAPL", 4).
				Return(broker.OrderRef{ID: "o-2", Status: "accepted", Side: models.Sell, Qty: 4}, nil).Maybe()

			outcome, err := f.engine.ExecuteStrategyFor(context.Background(), aapl, regularConfig(), models.Regular)

			require.NoError(t, err)
			assert.Equal(t, tc.want, outcome)
			if tc.placed {
				f.broker.AssertCalled(t, "PlaceSellOrder", mock.Anything, "AAPL", 4)
				assert.Len(t, f.history.Records("AAPL"), 2)
			} else {
				f.broker.AssertNotCalled(t, "PlaceSellOrder", mock.Anything, mock.Anything, mock.Anything)
				assert.Len(t, f.history.Records("AAPL"), 1)
			}
		})
	}
}

func TestExecuteStrategyFor_InsufficientFundsSkips(t *testing.T) {
	f := newFixture(t, aapl)
	f.seedRecord(t, "AAPL", 100, 1, models.Buy)
	f.broker.On("MarketPrice", mock.Anything, "AAPL").Return(94.0, nil)
	f.broker.On("BuyingPower", mock.Anything).Return(decimal.NewFromInt(100), nil)

	outcome, err := f.engine.ExecuteStrategyFor(context.Background(), aapl, regularConfig(), models.Regular)

	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)
	f.broker.AssertNotCalled(t, "PlaceBuyOrder", mock.Anything, mock.Anything, mock.Anything)

	decisions := f.decisions(t)
	require.Len(t, decisions, 1)
	assert.Equal(t, ResultRejected, decisions[0].Result)
}

func TestExecuteStrategyFor_RoundCapSkips(t *testing.T) {
	f := newFixture(t, aapl)
	f.seedRecord(t, "AAPL", 100, 64, models.Buy)
	f.broker.On("MarketPrice", mock.Anything, "AAPL").Return(50.0, nil)
	f.broker.On("BuyingPower", mock.Anything).Return(decimal.NewFromInt(1_000_000), nil)

	outcome, err := f.engine.ExecuteStrategyFor(context.Background(), aapl, regularConfig(), models.Regular)

	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)
	f.broker.AssertNotCalled(t, "PlaceBuyOrder", mock.Anything, mock.Anything, mock.Anything)
}

func TestExecuteStrategyFor_ThresholdInExtendedSession(t *testing.T) {
	f := newFixture(t, aapl)
	f.seedRecord(t, "AAPL", 100, 5, models.Buy)
	f.broker.On("MarketPrice", mock.Anything, "AAPL").Return(103.0, nil)
	f.broker.On("AvailableQty", mock.Anything, "AAPL").Return(5, nil)
	f.broker.On("PlaceSellOrder", mock.Anything, "AAPL", 1).
		Return(broker.OrderRef{ID: "o-3", Status: "new", Side: models.Sell, Qty: 1}, nil)

	cfg := models.NewStrategyConfig(models.EnvironmentPaper, models.PreMarket)

	outcome, err := f.engine.ExecuteStrategyFor(context.Background(), aapl, cfg, models.PreMarket)

	require.NoError(t, err)
	assert.Equal(t, OutcomeTraded, outcome)
	records := f.history.Records("AAPL")
	require.Len(t, records, 2)
	assert.Equal(t, models.PreMarket, records[1].MarketSession)
	assert.Equal(t, 1, records[1].Quantity)
}

func TestExecuteStrategyFor_OrderFailureRecordsNothing(t *testing.T) {
	f := newFixture(t, aapl)
	f.seedRecord(t, "AAPL", 100, 1, models.Buy)
	f.broker.On("MarketPrice", mock.Anything, "AAPL").Return(94.0, nil)
	f.broker.On("BuyingPower", mock.Anything).Return(decimal.NewFromInt(1000), nil)
	f.broker.On("PlaceBuyOrder", mock.Anything, "AAPL", 2).Return(broker.OrderRef{}, errors.New("rejected"))

	outcome, err := f.engine.ExecuteStrategyFor(context.Background(), aapl, regularConfig(), models.Regular)

	require.Error(t, err)
	assert.Empty(t, outcome)
	assert.Len(t, f.history.Records("AAPL"), 1)

	decisions := f.decisions(t)
	require.Len(t, decisions, 1)
	assert.Equal(t, ResultOrderFailed, decisions[0].Result)
}

func TestExecuteStrategyFor_PriceErrorPropagates(t *testing.T) {
	f := newFixture(t, aapl)
	f.broker.On("MarketPrice", mock.Anything, "AAPL").Return(0.0, errors.New("feed down"))

	_, err := f.engine.ExecuteStrategyFor(context.Background(), aapl, regularConfig(), models.Regular)

	assert.Error(t, err)
}

func TestExecuteStrategyFor_SameInputsSameDecision(t *testing.T) {
	f := newFixture(t, aapl)
	f.seedRecord(t, "AAPL", 100, 1, models.Buy)
	f.broker.On("MarketPrice", mock.Anything, "AAPL").Return(99.0, nil)

	for i := 0; i < 2; i++ {
		outcome, err := f.engine.ExecuteStrategyFor(context.Background(), aapl, regularConfig(), models.Regular)
		require.NoError(t, err)
		assert.Equal(t, OutcomeHeld, outcome)
	}

	decisions := f.decisions(t)
	require.Len(t, decisions, 2)
	assert.Equal(t, decisions[0].Reason, decisions[1].Reason)
}

func TestSeedInitialPositions(t *testing.T) {
	msft := models.Instrument{Symbol: "MSFT", Active: true}
	tsla := models.Instrument{Symbol: "TSLA", Active: true}
	f := newFixture(t, aapl, msft, tsla)

	cfg := regularConfig()
	cfg.InitialQuantity = 3
	require.NoError(t, f.configs.Save(context.Background(), cfg))

	f.seedRecord(t, "MSFT", 300, 1, models.Buy)
	f.seedRecord(t, "TSLA", 200, 1, models.Sell)

	for _, symbol := range []string{"AAPL", "TSLA"} {
		f.broker.On("MarketPrice", mock.Anything, symbol).Return(150.0, nil).Once()
		f.broker.On("PlaceBuyOrder", mock.Anything, symbol, 3).
			Return(broker.OrderRef{ID: "seed-" + symbol, Status: "accepted", Side: models.Buy, Qty: 3}, nil).Once()
	}

	require.NoError(t, f.engine.SeedInitialPositions(context.Background()))

	f.broker.AssertExpectations(t)
	f.broker.AssertNotCalled(t, "PlaceBuyOrder", mock.Anything, "MSFT", mock.Anything)

	records := f.history.Records("AAPL")
	require.Len(t, records, 1)
	assert.Equal(t, 3, records[0].Quantity)
	assert.Equal(t, models.Regular, records[0].MarketSession)
	assert.Len(t, f.history.Records("TSLA"), 2)
}

func TestSeedInitialPositions_DefaultsQuantityWithoutConfig(t *testing.T) {
	f := newFixture(t, aapl)
	f.broker.On("MarketPrice", mock.Anything, "AAPL").Return(150.0, nil)
	f.broker.On("PlaceBuyOrder", mock.Anything, "AAPL", 1).
		Return(broker.OrderRef{ID: "seed", Status: "accepted", Side: models.Buy, Qty: 1}, nil)

	require.NoError(t, f.engine.SeedInitialPositions(context.Background()))

	f.broker.AssertExpectations(t)
	assert.Len(t, f.history.Records("AAPL"), 1)
}

func TestSeedInitialPositions_ContinuesAfterFailure(t *testing.T) {
	msft := models.Instrument{Symbol: "MSFT", Active: true}
	f := newFixture(t, aapl, msft)
	f.broker.On("MarketPrice", mock.Anything, mock.Anything).Return(150.0, nil)
	f.broker.On("PlaceBuyOrder", mock.Anything, "AAPL", 1).Return(broker.OrderRef{}, errors.New("forbidden"))
	f.broker.On("PlaceBuyOrder", mock.Anything, "MSFT", 1).
		Return(broker.OrderRef{ID: "seed", Status: "accepted", Side: models.Buy, Qty: 1}, nil)

	require.NoError(t, f.engine.SeedInitialPositions(context.Background()))

	assert.Empty(t, f.history.Records("AAPL"))
	assert.Len(t, f.history.Records("MSFT"), 1)
}
