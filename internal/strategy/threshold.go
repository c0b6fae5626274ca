package strategy

import (
	"math"

	"github.com/bkviswam/tradeplatform/internal/models"
)

// Threshold trades a fixed initial quantity whenever the price has moved
// strictly more than PriceChangePercentage since the last trade.
type Threshold struct{}

func (Threshold) Decide(cfg models.StrategyConfig, snapshot MarketSnapshot) TradeIntent {
	lastPrice := snapshot.LastPrice()
	if lastPrice <= 0 {
		return TradeIntent{Action: Hold, Reason: "invalid_last_price"}
	}

	changePct := ChangePercentage(lastPrice, snapshot.Price)
	if changePct <= cfg.PriceChangePercentage {
		return TradeIntent{Action: Hold, Reason: "no_significant_change"}
	}
	if snapshot.Price > lastPrice {
		return TradeIntent{Action: Sell, Qty: cfg.InitialQuantity, Reason: "price_rose_beyond_percentage"}
	}
	return TradeIntent{Action: Buy, Qty: cfg.InitialQuantity, Reason: "price_fell_beyond_percentage"}
}

func ChangePercentage(lastPrice, currentPrice float64) float64 {
	return math.Abs(currentPrice-lastPrice) * 100 / lastPrice
}
