package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bkviswam/tradeplatform/internal/models"
)

func extendedConfig(pct float64) models.StrategyConfig {
	cfg := models.NewStrategyConfig(models.EnvironmentPaper, models.AfterMarket)
	cfg.InitialQuantity = 5
	cfg.PriceChangePercentage = pct
	return cfg
}

func TestThresholdDecide(t *testing.T) {
	testCases := []struct {
		desc      string
		price     float64
		last      *models.TradeRecord
		expAction Action
		expQty    int
	}{
		{"exact change is not enough", 102, lastTrade(100, 40), Hold, 0},
		{"exact drop is not enough", 98, lastTrade(100, 40), Hold, 0},
		{"rise beyond percentage sells initial qty", 103, lastTrade(100, 40), Sell, 5},
		{"drop beyond percentage buys initial qty", 97, lastTrade(100, 40), Buy, 5},
		{"no history never trades", 97, nil, Hold, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			intent := Threshold{}.Decide(extendedConfig(2.0), MarketSnapshot{Symbol: "AAPL", Price: tc.price, Last: tc.last})
			assert.Equal(t, tc.expAction, intent.Action)
			assert.Equal(t, tc.expQty, intent.Qty)
			assert.Zero(t, intent.MaxQty)
		})
	}
}

func TestChangePercentage(t *testing.T) {
	assert.Equal(t, 2.0, ChangePercentage(100, 102))
	assert.Equal(t, 2.0, ChangePercentage(100, 98))
}
