package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bkviswam/tradeplatform/internal/models"
	"github.com/bkviswam/tradeplatform/internal/store"
	"github.com/bkviswam/tradeplatform/pkg/db"
)

type ConfigStore struct {
	tx db.TxManager
}

func NewConfigStore(tx db.TxManager) *ConfigStore {
	return &ConfigStore{tx: tx}
}

func (s *ConfigStore) Get(ctx context.Context, env models.Environment, session models.MarketSession) (cfg models.StrategyConfig, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("ConfigStore.Get: %w", err)
		}
	}()

	row := s.tx.Conn().QueryRow(ctx, `
		SELECT id, environment, market_session, threshold, max_rounds, initial_quantity, frequency_ms, price_change_percentage
		FROM strategy_configs
		WHERE environment = $1 AND market_session = $2`, string(env), string(session))

	var environment, marketSession string
	err = row.Scan(&cfg.ID, &environment, &marketSession, &cfg.Threshold, &cfg.MaxRounds, &cfg.InitialQuantity, &cfg.FrequencyMs, &cfg.PriceChangePercentage)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.StrategyConfig{}, fmt.Errorf("%w: environment=%s session=%s", store.ErrConfigNotFound, env, session)
	}
	if err != nil {
		return models.StrategyConfig{}, err
	}
	cfg.Environment = models.Environment(environment)
	cfg.MarketSession = models.MarketSession(marketSession)
	return cfg, nil
}

func (s *ConfigStore) Save(ctx context.Context, cfg models.StrategyConfig) error {
	return s.tx.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctxTx, `
			INSERT INTO strategy_configs (environment, market_session, threshold, max_rounds, initial_quantity, frequency_ms, price_change_percentage)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (environment, market_session) DO UPDATE SET
				threshold = EXCLUDED.threshold,
				max_rounds = EXCLUDED.max_rounds,
				initial_quantity = EXCLUDED.initial_quantity,
				frequency_ms = EXCLUDED.frequency_ms,
				price_change_percentage = EXCLUDED.price_change_percentage`,
			string(cfg.Environment), string(cfg.MarketSession), cfg.Threshold, cfg.MaxRounds, cfg.InitialQuantity, cfg.FrequencyMs, cfg.PriceChangePercentage)
		if err != nil {
			return fmt.Errorf("ConfigStore.Save: %w", err)
		}
		return nil
	})
}
