package state

import (
	"context"
	"errors"
	"os"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/bkviswam/tradeplatform/internal/broker"
	"github.com/bkviswam/tradeplatform/internal/config"
	"github.com/bkviswam/tradeplatform/internal/store"
)

// NewPublisher returns nil when no redis address is configured.
func NewPublisher(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) Publisher {
	if cfg.RedisAddr == "" {
		log.Info("redis mirror disabled")
		return nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := rdb.Ping(ctx).Err(); err != nil {
				log.Warn("redis ping failed", zap.String("addr", cfg.RedisAddr), zap.Error(err))
			}
			return nil
		},
		OnStop: func(context.Context) error {
			return rdb.Close()
		},
	})
	return NewRedisMirror(rdb, cfg.PositionTTL)
}

func provideStore(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) *Store {
	s := NewStore()
	if err := s.Load(cfg.CheckpointPath); err == nil {
		log.Info("loaded checkpoint", zap.String("path", cfg.CheckpointPath), zap.Int("positions", len(s.Positions())))
	} else if !errors.Is(err, os.ErrNotExist) {
		log.Warn("load checkpoint failed", zap.String("path", cfg.CheckpointPath), zap.Error(err))
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			if err := s.Save(cfg.CheckpointPath); err != nil {
				log.Error("save checkpoint failed", zap.String("path", cfg.CheckpointPath), zap.Error(err))
			}
			return nil
		},
	})
	return s
}

func provideTracker(client *broker.Client, s *Store, mirror Publisher, log *zap.Logger) *Tracker {
	return NewTracker(client, s, mirror, log)
}

func runRefreshLoop(lc fx.Lifecycle, cfg config.Config, tracker *Tracker, registry store.InstrumentRegistry) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go tracker.RefreshLoop(ctx, registry, cfg.RefreshInterval)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

func Module() fx.Option {
	return fx.Module("state",
		fx.Provide(provideStore, NewPublisher, provideTracker),
		fx.Invoke(runRefreshLoop),
	)
}
