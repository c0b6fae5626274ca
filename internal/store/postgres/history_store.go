package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bkviswam/tradeplatform/internal/models"
	"github.com/bkviswam/tradeplatform/pkg/db"
)

type HistoryStore struct {
	tx db.TxManager
}

func NewHistoryStore(tx db.TxManager) *HistoryStore {
	return &HistoryStore{tx: tx}
}

func (s *HistoryStore) LastRecordFor(ctx context.Context, symbol string) (record *models.TradeRecord, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("HistoryStore.LastRecordFor: %w", err)
		}
	}()

	row := s.tx.Conn().QueryRow(ctx, `
		SELECT id, symbol, price, quantity, action, traded_at, order_id, order_status, market_session
		FROM trade_records
		WHERE symbol = $1
		ORDER BY traded_at DESC, id DESC
		LIMIT 1`, symbol)

	var r models.TradeRecord
	var action, session string
	err = row.Scan(&r.ID, &r.Symbol, &r.Price, &r.Quantity, &action, &r.Timestamp, &r.OrderID, &r.OrderStatus, &session)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.Action = models.Action(action)
	r.MarketSession = models.MarketSession(session)
	return &r, nil
}

func (s *HistoryStore) Append(ctx context.Context, record models.TradeRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}
	return s.tx.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctxTx, `
			INSERT INTO trade_records (symbol, price, quantity, action, traded_at, order_id, order_status, market_session)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			record.Symbol, record.Price, record.Quantity, string(record.Action), record.Timestamp, record.OrderID, record.OrderStatus, string(record.MarketSession))
		if err != nil {
			return fmt.Errorf("HistoryStore.Append: %w", err)
		}
		return nil
	})
}
