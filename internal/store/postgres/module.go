package postgres

import (
	"context"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/bkviswam/tradeplatform/internal/config"
	"github.com/bkviswam/tradeplatform/internal/store"
	"github.com/bkviswam/tradeplatform/pkg/db"
)

type Stores struct {
	fx.Out

	Configs  store.ConfigStore
	History  store.HistoryStore
	Registry store.InstrumentRegistry
}

// NewStores picks the backend named in cfg. The postgres schema is migrated on
// start.
func NewStores(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (Stores, error) {
	if cfg.Store != config.BackendPostgres {
		log.Info("using in-memory stores")
		return Stores{
			Configs:  store.NewMemoryConfigStore(),
			History:  store.NewMemoryHistoryStore(),
			Registry: store.NewMemoryInstrumentRegistry(),
		}, nil
	}

	pool, err := db.NewPool(context.Background(), db.PoolConfig{DSN: cfg.DatabaseDSN, MaxConns: int32(cfg.DBMaxConns)})
	if err != nil {
		return Stores{}, fmt.Errorf("postgres.NewStores: %w", err)
	}
	tx := db.NewPgTxManager(pool)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := pool.Ping(ctx); err != nil {
				return fmt.Errorf("postgres ping: %w", err)
			}
			if err := Migrate(ctx, tx.Conn()); err != nil {
				return err
			}
			log.Info("postgres stores ready")
			return nil
		},
		OnStop: func(context.Context) error {
			tx.Close()
			return nil
		},
	})

	return Stores{
		Configs:  NewConfigStore(tx),
		History:  NewHistoryStore(tx),
		Registry: NewInstrumentRegistry(tx),
	}, nil
}

func Module() fx.Option {
	return fx.Module("stores",
		fx.Provide(NewStores),
	)
}
