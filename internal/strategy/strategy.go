package strategy

import (
	"fmt"
	"time"

	"github.com/bkviswam/tradeplatform/internal/models"
)

type Action string

const (
	Hold Action = "HOLD"
	Buy  Action = "BUY"
	Sell Action = "SELL"
)

// MarketSnapshot is everything a strategy may look at for one instrument.
// Last is nil when the instrument has no trade history.
type MarketSnapshot struct {
	Symbol    string
	Timestamp time.Time
	Price     float64
	Last      *models.TradeRecord
}

// LastPrice falls back to the current price when there is no history so that
// a first evaluation sees neither a drop nor a rise.
func (s MarketSnapshot) LastPrice() float64 {
	if s.Last == nil {
		return s.Price
	}
	return s.Last.Price
}

type TradeIntent struct {
	Action Action
	Qty    int
	// MaxQty is the largest quantity the strategy allows for a buy; 0 means uncapped.
	MaxQty int
	Reason string
}

type Strategy interface {
	Decide(cfg models.StrategyConfig, snapshot MarketSnapshot) TradeIntent
}

type Kind string

const (
	KindMartingale Kind = "martingale"
	KindThreshold  Kind = "threshold"
)

var sessionKinds = map[models.MarketSession]Kind{
	models.PreMarket:   KindThreshold,
	models.Regular:     KindMartingale,
	models.AfterMarket: KindThreshold,
}

var strategies = map[Kind]Strategy{
	KindMartingale: Martingale{},
	KindThreshold:  Threshold{},
}

func KindFor(session models.MarketSession) (Kind, error) {
	kind, ok := sessionKinds[session]
	if !ok {
		return "", fmt.Errorf("no strategy for market session %q", session)
	}
	return kind, nil
}

func ForSession(session models.MarketSession) (Strategy, error) {
	kind, err := KindFor(session)
	if err != nil {
		return nil, err
	}
	return strategies[kind], nil
}
