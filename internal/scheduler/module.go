package scheduler

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/bkviswam/tradeplatform/internal/broker"
	"github.com/bkviswam/tradeplatform/internal/config"
	"github.com/bkviswam/tradeplatform/internal/dispatch"
	"github.com/bkviswam/tradeplatform/internal/store"
)

func provide(cfg config.Config, client *broker.Client, configs store.ConfigStore, registry store.InstrumentRegistry, d *dispatch.Dispatcher, log *zap.Logger) *Manager {
	return New(cfg.Environment, client, configs, registry, d, log)
}

func Module() fx.Option {
	return fx.Module("scheduler",
		fx.Provide(provide),
	)
}
