package models

import (
	"fmt"
	"strings"
	"time"
)

type Environment string

const (
	EnvironmentPaper Environment = "PAPER"
	EnvironmentLive  Environment = "LIVE"
)

func ParseEnvironment(value string) (Environment, error) {
	switch Environment(strings.ToUpper(strings.TrimSpace(value))) {
	case EnvironmentPaper:
		return EnvironmentPaper, nil
	case EnvironmentLive:
		return EnvironmentLive, nil
	default:
		return "", fmt.Errorf("unknown environment: %q", value)
	}
}

type MarketSession string

const (
	PreMarket   MarketSession = "PRE_MARKET"
	Regular     MarketSession = "REGULAR"
	AfterMarket MarketSession = "AFTER_MARKET"
)

// MarketSessions lists every session in trading-day order.
var MarketSessions = []MarketSession{PreMarket, Regular, AfterMarket}

func ParseMarketSession(value string) (MarketSession, error) {
	for _, s := range MarketSessions {
		if string(s) == strings.ToUpper(strings.TrimSpace(value)) {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown market session: %q", value)
}

type Action string

const (
	Buy  Action = "BUY"
	Sell Action = "SELL"
)

type Instrument struct {
	Symbol string `yaml:"symbol" json:"symbol"`
	Name   string `yaml:"name" json:"name,omitempty"`
	Active bool   `yaml:"active" json:"active"`
}

// Clock is the broker's view of the trading calendar at the time of the call.
type Clock struct {
	IsOpen    bool
	NextOpen  time.Time
	NextClose time.Time
}

type TradeRecord struct {
	ID            int64
	Symbol        string
	Price         float64
	Quantity      int
	Action        Action
	Timestamp     time.Time
	OrderID       string
	OrderStatus   string
	MarketSession MarketSession
}

func (r TradeRecord) Validate() error {
	if r.Symbol == "" {
		return fmt.Errorf("trade record: empty symbol")
	}
	if r.Price <= 0 {
		return fmt.Errorf("trade record %s: price must be > 0, got %v", r.Symbol, r.Price)
	}
	if r.Quantity <= 0 {
		return fmt.Errorf("trade record %s: quantity must be > 0, got %d", r.Symbol, r.Quantity)
	}
	if r.Action != Buy && r.Action != Sell {
		return fmt.Errorf("trade record %s: invalid action %q", r.Symbol, r.Action)
	}
	return nil
}
