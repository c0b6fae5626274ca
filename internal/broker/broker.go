package broker

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/bkviswam/tradeplatform/internal/models"
	"github.com/bkviswam/tradeplatform/internal/session"
)

const (
	PaperBaseURL = "https://paper-api.alpaca.markets"
	LiveBaseURL  = "https://api.alpaca.markets"
)

type OrderRef struct {
	ID            string
	ClientOrderID string
	Status        string
	Side          models.Action
	Qty           int
	LimitPrice    *decimal.Decimal
}

type Position struct {
	Symbol   string
	Qty      int
	AvgEntry float64
}

type Options struct {
	APIKey    string
	APISecret string
	BaseURL   string
	Feed      string
}

type Client struct {
	client *alpaca.Client
	data   *marketdata.Client
	feed   marketdata.Feed
	log    *zap.Logger
	now    func() time.Time
}

func BaseURLFor(env models.Environment) string {
	if env == models.EnvironmentLive {
		return LiveBaseURL
	}
	return PaperBaseURL
}

func New(opts Options, log *zap.Logger) *Client {
	return &Client{
		client: alpaca.NewClient(alpaca.ClientOpts{
			APIKey:    opts.APIKey,
			APISecret: opts.APISecret,
			BaseURL:   opts.BaseURL,
		}),
		data: marketdata.NewClient(marketdata.ClientOpts{
			APIKey:    opts.APIKey,
			APISecret: opts.APISecret,
		}),
		feed: parseFeed(opts.Feed),
		log:  log.Named("broker"),
		now:  time.Now,
	}
}

func (c *Client) MarketClock(ctx context.Context) (models.Clock, error) {
	clock, err := c.client.GetClock()
	if err != nil {
		c.log.Error("fetch market clock failed", zap.Error(err))
		return models.Clock{}, pkgerrors.Wrap(err, "fetch market clock")
	}
	return models.Clock{
		IsOpen:    clock.IsOpen,
		NextOpen:  clock.NextOpen,
		NextClose: clock.NextClose,
	}, nil
}

func (c *Client) IsMarketOpen(ctx context.Context) (bool, error) {
	clock, err := c.MarketClock(ctx)
	if err != nil {
		return false, err
	}
	return clock.IsOpen, nil
}

func (c *Client) IsExtendedHours(ctx context.Context) (bool, error) {
	clock, err := c.MarketClock(ctx)
	if err != nil {
		return false, err
	}
	return session.IsExtendedHours(clock, c.now()), nil
}

// MarketPrice returns the price of the latest trade on the configured feed.
func (c *Client) MarketPrice(ctx context.Context, symbol string) (float64, error) {
	trade, err := c.data.GetLatestTrade(symbol, marketdata.GetLatestTradeRequest{Feed: c.feed})
	if err != nil {
		c.log.Error("fetch latest trade failed", zap.String("symbol", symbol), zap.Error(err))
		return 0, pkgerrors.Wrapf(err, "fetch market price for %s", symbol)
	}
	if trade == nil {
		return 0, pkgerrors.Errorf("no latest trade for %s", symbol)
	}
	return trade.Price, nil
}

func (c *Client) PlaceBuyOrder(ctx context.Context, symbol string, qty int) (OrderRef, error) {
	return c.placeOrder(ctx, alpaca.Buy, symbol, qty)
}

func (c *Client) PlaceSellOrder(ctx context.Context, symbol string, qty int) (OrderRef, error) {
	return c.placeOrder(ctx, alpaca.Sell, symbol, qty)
}

// placeOrder sends a market order during the regular session and a day limit
// order at the last trade price otherwise, since Alpaca only accepts limit
// orders in extended hours.
func (c *Client) placeOrder(ctx context.Context, side alpaca.Side, symbol string, qty int) (OrderRef, error) {
	clock, err := c.MarketClock(ctx)
	if err != nil {
		return OrderRef{}, pkgerrors.Wrapf(err, "place %s order for %s", side, symbol)
	}

	quantity := decimal.NewFromInt(int64(qty))
	req := alpaca.PlaceOrderRequest{
		Symbol:        symbol,
		Qty:           &quantity,
		Side:          side,
		Type:          alpaca.Market,
		TimeInForce:   alpaca.Day,
		ClientOrderID: uuid.NewString(),
	}

	var limitPrice *decimal.Decimal
	if !clock.IsOpen && session.IsExtendedHours(clock, c.now()) {
		price, err := c.MarketPrice(ctx, symbol)
		if err != nil {
			return OrderRef{}, pkgerrors.Wrapf(err, "place %s order for %s", side, symbol)
		}
		limit := LimitPrice(price)
		limitPrice = &limit
		req.Type = alpaca.Limit
		req.LimitPrice = limitPrice
		req.ExtendedHours = true
	}

	order, err := c.client.PlaceOrder(req)
	if err != nil {
		c.log.Error("place order failed", zap.String("side", string(side)), zap.String("symbol", symbol), zap.Int("qty", qty),
			zap.String("type", string(req.Type)), zap.String("cause", string(Classify(err))), zap.Error(err))
		return OrderRef{}, pkgerrors.Wrapf(err, "place %s order for %s", side, symbol)
	}

	c.log.Info("place order success", zap.String("order_id", order.ID), zap.String("side", string(side)), zap.String("symbol", symbol),
		zap.Int("qty", qty), zap.String("type", string(req.Type)), zap.String("status", string(order.Status)))
	return OrderRef{
		ID:            order.ID,
		ClientOrderID: order.ClientOrderID,
		Status:        string(order.Status),
		Side:          toAction(side),
		Qty:           qty,
		LimitPrice:    limitPrice,
	}, nil
}

func (c *Client) BuyingPower(ctx context.Context) (decimal.Decimal, error) {
	acct, err := c.client.GetAccount()
	if err != nil {
		c.log.Error("fetch account failed", zap.Error(err))
		return decimal.Zero, pkgerrors.Wrap(err, "fetch buying power")
	}
	return acct.BuyingPower, nil
}

// Position treats a 404 from the broker as a flat position.
func (c *Client) Position(ctx context.Context, symbol string) (Position, error) {
	pos, err := c.client.GetPosition(symbol)
	if err != nil {
		var apiErr *alpaca.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			c.log.Warn("no position found", zap.String("symbol", symbol))
			return Position{Symbol: symbol}, nil
		}
		c.log.Error("fetch position failed", zap.String("symbol", symbol), zap.Error(err))
		return Position{}, pkgerrors.Wrapf(err, "fetch position for %s", symbol)
	}
	avgEntry, _ := pos.AvgEntryPrice.Float64()
	return Position{
		Symbol:   pos.Symbol,
		Qty:      int(pos.Qty.IntPart()),
		AvgEntry: avgEntry,
	}, nil
}

func (c *Client) AvailableQty(ctx context.Context, symbol string) (int, error) {
	pos, err := c.Position(ctx, symbol)
	if err != nil {
		return 0, err
	}
	return pos.Qty, nil
}

// LimitPrice rounds half-up to cents.
func LimitPrice(price float64) decimal.Decimal {
	return decimal.NewFromFloat(price).Round(2)
}

func toAction(side alpaca.Side) models.Action {
	if side == alpaca.Sell {
		return models.Sell
	}
	return models.Buy
}

func parseFeed(feed string) marketdata.Feed {
	switch feed {
	case "sip":
		return marketdata.SIP
	default:
		return marketdata.IEX
	}
}
