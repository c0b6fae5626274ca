package strategy

import (
	"math"

	"github.com/bkviswam/tradeplatform/internal/models"
)

// Martingale doubles the size of the previous trade on every signal. The
// doubling depth is bounded by RoundCap.
type Martingale struct{}

func (Martingale) Decide(cfg models.StrategyConfig, snapshot MarketSnapshot) TradeIntent {
	lastPrice := snapshot.LastPrice()
	qty := cfg.InitialQuantity
	if snapshot.Last != nil {
		qty = snapshot.Last.Quantity * 2
	}

	if lastPrice > snapshot.Price*(1+cfg.Threshold) {
		return TradeIntent{
			Action: Buy,
			Qty:    qty,
			MaxQty: RoundCap(cfg),
			Reason: "price_dropped_beyond_threshold",
		}
	}
	if snapshot.Price > lastPrice {
		return TradeIntent{
			Action: Sell,
			Qty:    qty,
			Reason: "price_rose",
		}
	}
	if snapshot.Last == nil {
		return TradeIntent{Action: Hold, Reason: "no_history"}
	}
	return TradeIntent{Action: Hold, Reason: "within_threshold"}
}

// RoundCap is 2^maxRounds, saturated at math.MaxInt. It does not scale with
// the initial quantity.
func RoundCap(cfg models.StrategyConfig) int {
	limit := math.Pow(2, float64(cfg.MaxRounds))
	if limit >= math.MaxInt {
		return math.MaxInt
	}
	return int(limit)
}
