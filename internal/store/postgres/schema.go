package postgres

import (
	"context"
	"fmt"

	"github.com/bkviswam/tradeplatform/pkg/db"
)

const schema = `
CREATE TABLE IF NOT EXISTS instruments (
	symbol     TEXT PRIMARY KEY,
	name       TEXT NOT NULL DEFAULT '',
	active     BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS strategy_configs (
	id                      BIGSERIAL PRIMARY KEY,
	environment             TEXT NOT NULL,
	market_session          TEXT NOT NULL,
	threshold               DOUBLE PRECISION NOT NULL,
	max_rounds              INTEGER NOT NULL,
	initial_quantity        INTEGER NOT NULL,
	frequency_ms            BIGINT NOT NULL,
	price_change_percentage DOUBLE PRECISION NOT NULL,
	UNIQUE (environment, market_session)
);

CREATE TABLE IF NOT EXISTS trade_records (
	id             BIGSERIAL PRIMARY KEY,
	symbol         TEXT NOT NULL REFERENCES instruments (symbol),
	price          DOUBLE PRECISION NOT NULL CHECK (price > 0),
	quantity       INTEGER NOT NULL CHECK (quantity > 0),
	action         TEXT NOT NULL,
	traded_at      TIMESTAMPTZ NOT NULL,
	order_id       TEXT NOT NULL,
	order_status   TEXT NOT NULL,
	market_session TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS trade_records_symbol_traded_at_idx ON trade_records (symbol, traded_at DESC, id DESC);
`

func Migrate(ctx context.Context, conn db.Transaction) error {
	if _, err := conn.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres.Migrate: %w", err)
	}
	return nil
}
