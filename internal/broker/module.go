package broker

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/bkviswam/tradeplatform/internal/config"
)

func NewFromConfig(cfg config.Config, log *zap.Logger) *Client {
	return New(Options{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
		BaseURL:   BaseURLFor(cfg.Environment),
		Feed:      cfg.Feed,
	}, log)
}

func Module() fx.Option {
	return fx.Module("broker",
		fx.Provide(NewFromConfig),
	)
}
