package state

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/bkviswam/tradeplatform/internal/broker"
	"github.com/bkviswam/tradeplatform/internal/store"
)

const DefaultRefreshInterval = time.Minute

type PositionSource interface {
	Position(ctx context.Context, symbol string) (broker.Position, error)
	MarketPrice(ctx context.Context, symbol string) (float64, error)
}

type Publisher interface {
	Publish(ctx context.Context, position Position) error
}

type Tracker struct {
	source PositionSource
	store  *Store
	mirror Publisher
	log    *zap.Logger
	now    func() time.Time
}

// NewTracker wires the position source into store. mirror may be nil.
func NewTracker(source PositionSource, store *Store, mirror Publisher, log *zap.Logger) *Tracker {
	return &Tracker{
		source: source,
		store:  store,
		mirror: mirror,
		log:    log.Named("positions"),
		now:    time.Now,
	}
}

func (t *Tracker) Store() *Store {
	return t.store
}

func (t *Tracker) Refresh(ctx context.Context, symbol string) (Position, error) {
	pos, err := t.source.Position(ctx, symbol)
	if err != nil {
		return Position{}, err
	}
	price, err := t.source.MarketPrice(ctx, symbol)
	if err != nil {
		return Position{}, err
	}

	snapshot := Position{Symbol: symbol, Qty: pos.Qty, AvgEntry: pos.AvgEntry}.Valued(price, t.now().UTC())
	t.store.Update(snapshot)

	if t.mirror != nil {
		if err := t.mirror.Publish(ctx, snapshot); err != nil {
			t.log.Warn("mirror position failed", zap.String("symbol", symbol), zap.Error(err))
		}
	}

	t.log.Debug("position refreshed", zap.String("symbol", symbol), zap.Int("qty", snapshot.Qty),
		zap.Float64("market_value", snapshot.MarketValue), zap.Float64("unrealized_pnl", snapshot.UnrealizedPnL))
	return snapshot, nil
}

// RefreshActive refreshes every active instrument, logging failures per symbol.
func (t *Tracker) RefreshActive(ctx context.Context, registry store.InstrumentRegistry) {
	instruments, err := registry.ListActive(ctx)
	if err != nil {
		t.log.Error("list active instruments failed", zap.Error(err))
		return
	}
	for _, instrument := range instruments {
		if _, err := t.Refresh(ctx, instrument.Symbol); err != nil {
			t.log.Error("refresh position failed", zap.String("symbol", instrument.Symbol), zap.Error(err))
		}
	}
}

func (t *Tracker) RefreshLoop(ctx context.Context, registry store.InstrumentRegistry, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.RefreshActive(ctx, registry)
		}
	}
}
