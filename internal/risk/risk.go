package risk

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/bkviswam/tradeplatform/internal/strategy"
)

var (
	ErrInsufficientFunds    = errors.New("insufficient buying power")
	ErrInsufficientPosition = errors.New("insufficient position quantity")
	ErrRoundCapExceeded     = errors.New("martingale round cap exceeded")
	ErrInvalidQuantity      = errors.New("invalid quantity")
)

// RiskContext carries the account facts fetched for a single intent. Only the
// field relevant to the intent's side needs to be populated.
type RiskContext struct {
	Symbol       string
	Price        float64
	BuyingPower  decimal.Decimal
	AvailableQty int
}

type ApprovedIntent struct {
	Intent   strategy.TradeIntent
	Notional decimal.Decimal
	Reason   string
}

type Gate struct {
	Log *zap.Logger
}

func (g Gate) logger() *zap.Logger {
	if g.Log == nil {
		return zap.NewNop()
	}
	return g.Log
}

func (g Gate) Evaluate(intent strategy.TradeIntent, ctx RiskContext) (ApprovedIntent, error) {
	if intent.Action == strategy.Hold {
		return ApprovedIntent{Intent: intent, Reason: "hold"}, nil
	}

	log := g.logger().With(zap.String("symbol", ctx.Symbol), zap.String("intent", string(intent.Action)), zap.Int("qty", intent.Qty))
	notional := decimal.NewFromFloat(ctx.Price).Mul(decimal.NewFromInt(int64(intent.Qty)))

	if intent.Qty <= 0 {
		log.Warn("risk rejected", zap.String("reason", "invalid_quantity"))
		return ApprovedIntent{}, ErrInvalidQuantity
	}

	switch intent.Action {
	case strategy.Buy:
		if intent.MaxQty > 0 && intent.Qty > intent.MaxQty {
			log.Warn("risk rejected", zap.String("reason", "round_cap_exceeded"), zap.Int("max_qty", intent.MaxQty))
			return ApprovedIntent{}, fmt.Errorf("%w: qty %d > cap %d", ErrRoundCapExceeded, intent.Qty, intent.MaxQty)
		}
		if notional.GreaterThan(ctx.BuyingPower) {
			log.Warn("risk rejected", zap.String("reason", "insufficient_buying_power"),
				zap.String("required", notional.StringFixed(2)), zap.String("available", ctx.BuyingPower.StringFixed(2)))
			return ApprovedIntent{}, fmt.Errorf("%w: required %s, available %s", ErrInsufficientFunds, notional.StringFixed(2), ctx.BuyingPower.StringFixed(2))
		}
	case strategy.Sell:
		if ctx.AvailableQty < intent.Qty {
			log.Warn("risk rejected", zap.String("reason", "insufficient_quantity"), zap.Int("available", ctx.AvailableQty))
			return ApprovedIntent{}, fmt.Errorf("%w: requested %d, available %d", ErrInsufficientPosition, intent.Qty, ctx.AvailableQty)
		}
	default:
		return ApprovedIntent{}, fmt.Errorf("unknown intent action %q", intent.Action)
	}

	log.Info("risk approved", zap.String("reason", intent.Reason), zap.String("notional", notional.StringFixed(2)))
	return ApprovedIntent{Intent: intent, Notional: notional, Reason: "approved"}, nil
}

// IsSkip reports whether err is an expected trading condition rather than a failure.
func IsSkip(err error) bool {
	return errors.Is(err, ErrInsufficientFunds) || errors.Is(err, ErrInsufficientPosition) || errors.Is(err, ErrRoundCapExceeded)
}
