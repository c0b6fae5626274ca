// Package store defines the persistence collaborators of the trading core and
// an in-memory implementation of each.
package store

import (
	"context"
	"errors"

	"github.com/bkviswam/tradeplatform/internal/models"
)

var ErrConfigNotFound = errors.New("strategy config not found")

type ConfigStore interface {
	Get(ctx context.Context, env models.Environment, session models.MarketSession) (models.StrategyConfig, error)
	Save(ctx context.Context, cfg models.StrategyConfig) error
}

type HistoryStore interface {
	// LastRecordFor returns nil without error when the symbol has never traded.
	LastRecordFor(ctx context.Context, symbol string) (*models.TradeRecord, error)
	Append(ctx context.Context, record models.TradeRecord) error
}

type InstrumentRegistry interface {
	ListActive(ctx context.Context) ([]models.Instrument, error)
}

// Seed writes bootstrap instruments and configs into the given stores. Scopes
// and symbols that already exist are left as they are, so values changed at
// runtime survive a restart. Stores that cannot register instruments are
// skipped for that part.
func Seed(ctx context.Context, configs ConfigStore, registry InstrumentRegistry, instruments []models.Instrument, strategyConfigs []models.StrategyConfig) error {
	for _, cfg := range strategyConfigs {
		if err := cfg.Validate(); err != nil {
			return err
		}
		_, err := configs.Get(ctx, cfg.Environment, cfg.MarketSession)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrConfigNotFound) {
			return err
		}
		if err := configs.Save(ctx, cfg); err != nil {
			return err
		}
	}
	adder, ok := registry.(interface {
		Register(ctx context.Context, instrument models.Instrument) error
	})
	if !ok {
		return nil
	}
	for _, instrument := range instruments {
		if err := adder.Register(ctx, instrument); err != nil {
			return err
		}
	}
	return nil
}
