package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/bkviswam/tradeplatform/internal/broker"
	"github.com/bkviswam/tradeplatform/internal/config"
	"github.com/bkviswam/tradeplatform/internal/notify"
	"github.com/bkviswam/tradeplatform/internal/risk"
	"github.com/bkviswam/tradeplatform/internal/state"
	"github.com/bkviswam/tradeplatform/internal/store"
)

func provideDecisionLogger(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (*DecisionLogger, error) {
	decisions, err := NewDecisionLogger(cfg.DecisionsPath, generateRunID(), log)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return decisions.Close()
		},
	})
	return decisions, nil
}

type params struct {
	fx.In

	Config    config.Config
	Broker    *broker.Client
	Configs   store.ConfigStore
	History   store.HistoryStore
	Registry  store.InstrumentRegistry
	Tracker   *state.Tracker
	Decisions *DecisionLogger
	Notifier  notify.Notifier
	Log       *zap.Logger
}

func provideEngine(p params) *Engine {
	return New(Deps{
		Env:       p.Config.Environment,
		Broker:    p.Broker,
		Configs:   p.Configs,
		History:   p.History,
		Registry:  p.Registry,
		Gate:      risk.Gate{Log: p.Log.Named("risk")},
		Positions: p.Tracker,
		Decisions: p.Decisions,
		Notifier:  p.Notifier,
		Log:       p.Log,
	})
}

func generateRunID() string {
	timestamp := time.Now().UTC().Format("20060102T150405")
	randomBytes := make([]byte, 4)
	if _, err := rand.Read(randomBytes); err != nil {
		return timestamp
	}
	return timestamp + "-" + hex.EncodeToString(randomBytes)
}

func Module() fx.Option {
	return fx.Module("engine",
		fx.Provide(provideDecisionLogger, provideEngine),
	)
}
