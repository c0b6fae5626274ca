package notify

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/bkviswam/tradeplatform/internal/config"
)

func Module() fx.Option {
	return fx.Module("notify",
		fx.Provide(func(cfg config.Config, log *zap.Logger) Notifier {
			return New(cfg.TelegramToken, cfg.TelegramChatID, log)
		}),
	)
}
