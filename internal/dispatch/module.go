package dispatch

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/bkviswam/tradeplatform/internal/config"
	"github.com/bkviswam/tradeplatform/internal/engine"
)

func provide(lc fx.Lifecycle, cfg config.Config, eng *engine.Engine, log *zap.Logger) *Dispatcher {
	d := New(eng, Options{Workers: cfg.Workers}, log)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			d.Close()
			return nil
		},
	})
	return d
}

func Module() fx.Option {
	return fx.Module("dispatch",
		fx.Provide(provide),
	)
}
