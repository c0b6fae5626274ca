package main

import (
	"context"
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/bkviswam/tradeplatform/internal/broker"
	"github.com/bkviswam/tradeplatform/internal/config"
	"github.com/bkviswam/tradeplatform/internal/dispatch"
	"github.com/bkviswam/tradeplatform/internal/engine"
	"github.com/bkviswam/tradeplatform/internal/health"
	"github.com/bkviswam/tradeplatform/internal/logger"
	"github.com/bkviswam/tradeplatform/internal/notify"
	"github.com/bkviswam/tradeplatform/internal/scheduler"
	"github.com/bkviswam/tradeplatform/internal/state"
	"github.com/bkviswam/tradeplatform/internal/store"
	"github.com/bkviswam/tradeplatform/internal/store/postgres"
)

func main() {
	app := fx.New(
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
		config.Module(),
		logger.Module(),
		postgres.Module(),
		broker.Module(),
		notify.Module(),
		state.Module(),
		engine.Module(),
		dispatch.Module(),
		scheduler.Module(),
		health.Module(),
		fx.Invoke(run),
	)
	if err := app.Err(); err != nil {
		log.Fatalf("startup error: %v", err)
	}
	app.Run()
}

type runParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.Config
	Seed      config.Seed
	Configs   store.ConfigStore
	Registry  store.InstrumentRegistry
	Engine    *engine.Engine
	Manager   *scheduler.Manager
	Health    *health.State
	Log       *zap.Logger
}

func run(p runParams) {
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := store.Seed(ctx, p.Configs, p.Registry, p.Seed.Instruments, p.Seed.Strategies); err != nil {
				return err
			}
			if p.Config.SeedPositions {
				if err := p.Engine.SeedInitialPositions(ctx); err != nil {
					return err
				}
			}
			if err := p.Manager.Start(ctx); err != nil {
				return err
			}
			p.Health.SetReady(true)
			p.Log.Info("bot started", zap.String("env", string(p.Config.Environment)), zap.String("store", string(p.Config.Store)))
			return nil
		},
		OnStop: func(context.Context) error {
			p.Health.SetReady(false)
			p.Manager.Stop()
			p.Log.Info("bot shutdown complete")
			return nil
		},
	})
}
