package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bkviswam/tradeplatform/internal/models"
	"github.com/bkviswam/tradeplatform/pkg/db"
)

type InstrumentRegistry struct {
	tx db.TxManager
}

func NewInstrumentRegistry(tx db.TxManager) *InstrumentRegistry {
	return &InstrumentRegistry{tx: tx}
}

func (r *InstrumentRegistry) ListActive(ctx context.Context) ([]models.Instrument, error) {
	rows, err := r.tx.Conn().Query(ctx, `SELECT symbol, name, active FROM instruments WHERE active ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("InstrumentRegistry.ListActive: %w", err)
	}
	instruments, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Instrument, error) {
		var i models.Instrument
		err := row.Scan(&i.Symbol, &i.Name, &i.Active)
		return i, err
	})
	if err != nil {
		return nil, fmt.Errorf("InstrumentRegistry.ListActive: %w", err)
	}
	return instruments, nil
}

// Register inserts the instrument unless the symbol is already known.
func (r *InstrumentRegistry) Register(ctx context.Context, instrument models.Instrument) error {
	if instrument.Symbol == "" {
		return fmt.Errorf("InstrumentRegistry.Register: symbol is required")
	}
	return r.tx.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctxTx, `
			INSERT INTO instruments (symbol, name, active) VALUES ($1, $2, $3)
			ON CONFLICT (symbol) DO NOTHING`,
			instrument.Symbol, instrument.Name, instrument.Active)
		if err != nil {
			return fmt.Errorf("InstrumentRegistry.Register: %w", err)
		}
		return nil
	})
}
