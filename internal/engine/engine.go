package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/bkviswam/tradeplatform/internal/broker"
	"github.com/bkviswam/tradeplatform/internal/models"
	"github.com/bkviswam/tradeplatform/internal/notify"
	"github.com/bkviswam/tradeplatform/internal/risk"
	"github.com/bkviswam/tradeplatform/internal/state"
	"github.com/bkviswam/tradeplatform/internal/store"
	"github.com/bkviswam/tradeplatform/internal/strategy"
)

type Broker interface {
	MarketPrice(ctx context.Context, symbol string) (float64, error)
	PlaceBuyOrder(ctx context.Context, symbol string, qty int) (broker.OrderRef, error)
	PlaceSellOrder(ctx context.Context, symbol string, qty int) (broker.OrderRef, error)
	BuyingPower(ctx context.Context) (decimal.Decimal, error)
	AvailableQty(ctx context.Context, symbol string) (int, error)
}

type PositionRefresher interface {
	Refresh(ctx context.Context, symbol string) (state.Position, error)
}

// Outcome is how one evaluation of one instrument ended.
type Outcome string

const (
	OutcomeTraded  Outcome = "traded"
	OutcomeHeld    Outcome = "held"
	OutcomeSkipped Outcome = "skipped"
)

type Deps struct {
	Env       models.Environment
	Broker    Broker
	Configs   store.ConfigStore
	History   store.HistoryStore
	Registry  store.InstrumentRegistry
	Gate      risk.Gate
	Positions PositionRefresher
	Decisions *DecisionLogger
	Notifier  notify.Notifier
	Log       *zap.Logger
}

type Engine struct {
	env       models.Environment
	broker    Broker
	configs   store.ConfigStore
	history   store.HistoryStore
	registry  store.InstrumentRegistry
	gate      risk.Gate
	positions PositionRefresher
	decisions *DecisionLogger
	notifier  notify.Notifier
	log       *zap.Logger
	now       func() time.Time
}

func New(deps Deps) *Engine {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	gate := deps.Gate
	if gate.Log == nil {
		gate.Log = log.Named("risk")
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notify.NewLog(log)
	}
	return &Engine{
		env:       deps.Env,
		broker:    deps.Broker,
		configs:   deps.Configs,
		history:   deps.History,
		registry:  deps.Registry,
		gate:      gate,
		positions: deps.Positions,
		decisions: deps.Decisions,
		notifier:  notifier,
		log:       log.Named("engine"),
		now:       time.Now,
	}
}

func (e *Engine) Environment() models.Environment {
	return e.env
}

// ExecuteStrategyFor evaluates one instrument with the strategy mapped to
// session and places at most one order. Expected trading conditions such as
// missing funds end in OutcomeSkipped without an error.
func (e *Engine) ExecuteStrategyFor(ctx context.Context, instrument models.Instrument, cfg models.StrategyConfig, session models.MarketSession) (Outcome, error) {
	symbol := instrument.Symbol
	log := e.log.With(zap.String("symbol", symbol), zap.String("session", string(session)))

	kind, err := strategy.KindFor(session)
	if err != nil {
		return "", err
	}
	strat, err := strategy.ForSession(session)
	if err != nil {
		return "", err
	}

	price, err := e.broker.MarketPrice(ctx, symbol)
	if err != nil {
		return "", fmt.Errorf("engine.ExecuteStrategyFor %s: %w", symbol, err)
	}
	last, err := e.history.LastRecordFor(ctx, symbol)
	if err != nil {
		return "", fmt.Errorf("engine.ExecuteStrategyFor %s: %w", symbol, err)
	}

	snapshot := strategy.MarketSnapshot{Symbol: symbol, Timestamp: e.now().UTC(), Price: price, Last: last}
	intent := strat.Decide(cfg, snapshot)

	decision := Decision{
		Timestamp: snapshot.Timestamp,
		Symbol:    symbol,
		Session:   session,
		Strategy:  kind,
		Price:     price,
		LastPrice: snapshot.LastPrice(),
		Intent:    intent.Action,
		IntentQty: intent.Qty,
		Reason:    intent.Reason,
	}

	if intent.Action == strategy.Hold {
		decision.Result = ResultHold
		e.decisions.Append(decision)
		log.Info("no trade", zap.String("strategy", string(kind)), zap.Float64("price", price),
			zap.Float64("last_price", snapshot.LastPrice()), zap.String("reason", intent.Reason))
		return OutcomeHeld, nil
	}

	riskCtx, err := e.riskContext(ctx, symbol, price, intent.Action)
	if err != nil {
		return "", fmt.Errorf("engine.ExecuteStrategyFor %s: %w", symbol, err)
	}

	approved, err := e.gate.Evaluate(intent, riskCtx)
	if err != nil {
		if risk.IsSkip(err) {
			decision.Result = ResultRejected
			decision.RejectReason = err.Error()
			e.decisions.Append(decision)
			return OutcomeSkipped, nil
		}
		return "", fmt.Errorf("engine.ExecuteStrategyFor %s: %w", symbol, err)
	}

	order, err := e.place(ctx, symbol, approved.Intent)
	if err != nil {
		cause := broker.Classify(err)
		decision.Result = ResultOrderFailed
		decision.RejectReason = err.Error()
		decision.Cause = string(cause)
		e.decisions.Append(decision)
		log.Error("order failed", zap.String("side", string(intent.Action)), zap.Int("qty", intent.Qty),
			zap.String("cause", string(cause)), zap.Error(err))
		return "", fmt.Errorf("engine.ExecuteStrategyFor %s: %w", symbol, err)
	}

	decision.Result = ResultOrderSubmitted
	decision.OrderID = order.ID
	decision.ClientOrderID = order.ClientOrderID
	e.decisions.Append(decision)

	if err := e.record(ctx, symbol, price, order, session); err != nil {
		return "", err
	}

	log.Info("order submitted", zap.String("strategy", string(kind)), zap.String("side", string(order.Side)),
		zap.Int("qty", order.Qty), zap.Float64("price", price), zap.String("order_id", order.ID), zap.String("reason", intent.Reason))
	return OutcomeTraded, nil
}

// SeedInitialPositions buys the REGULAR-session initial quantity of every
// active instrument whose latest record is not a buy. Failures are logged per
// instrument.
func (e *Engine) SeedInitialPositions(ctx context.Context) error {
	qty := models.DefaultInitialQuantity
	cfg, err := e.configs.Get(ctx, e.env, models.Regular)
	switch {
	case err == nil:
		qty = cfg.InitialQuantity
	case errors.Is(err, store.ErrConfigNotFound):
		e.log.Warn("no regular session config, seeding with default quantity", zap.Int("qty", qty))
	default:
		return fmt.Errorf("engine.SeedInitialPositions: %w", err)
	}

	instruments, err := e.registry.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("engine.SeedInitialPositions: %w", err)
	}

	for _, instrument := range instruments {
		if err := e.seed(ctx, instrument.Symbol, qty); err != nil {
			e.log.Error("initial buy failed", zap.String("symbol", instrument.Symbol), zap.String("cause", string(broker.Classify(err))), zap.Error(err))
		}
	}
	return nil
}

func (e *Engine) seed(ctx context.Context, symbol string, qty int) error {
	last, err := e.history.LastRecordFor(ctx, symbol)
	if err != nil {
		return err
	}
	if last != nil && last.Action == models.Buy {
		e.log.Info("previous buy found, skipping initial buy", zap.String("symbol", symbol))
		return nil
	}

	price, err := e.broker.MarketPrice(ctx, symbol)
	if err != nil {
		return err
	}
	order, err := e.broker.PlaceBuyOrder(ctx, symbol, qty)
	if err != nil {
		return err
	}

	e.decisions.Append(Decision{
		Timestamp:     e.now().UTC(),
		Symbol:        symbol,
		Session:       models.Regular,
		Price:         price,
		LastPrice:     price,
		Intent:        strategy.Buy,
		IntentQty:     qty,
		Reason:        "initial_position",
		Result:        ResultSeeded,
		OrderID:       order.ID,
		ClientOrderID: order.ClientOrderID,
	})
	if err := e.record(ctx, symbol, price, order, models.Regular); err != nil {
		return err
	}
	e.log.Info("initial buy placed", zap.String("symbol", symbol), zap.Int("qty", qty), zap.Float64("price", price))
	return nil
}

func (e *Engine) riskContext(ctx context.Context, symbol string, price float64, action strategy.Action) (risk.RiskContext, error) {
	riskCtx := risk.RiskContext{Symbol: symbol, Price: price}
	switch action {
	case strategy.Buy:
		power, err := e.broker.BuyingPower(ctx)
		if err != nil {
			return risk.RiskContext{}, err
		}
		riskCtx.BuyingPower = power
	case strategy.Sell:
		qty, err := e.broker.AvailableQty(ctx, symbol)
		if err != nil {
			return risk.RiskContext{}, err
		}
		riskCtx.AvailableQty = qty
	}
	return riskCtx, nil
}

func (e *Engine) place(ctx context.Context, symbol string, intent strategy.TradeIntent) (broker.OrderRef, error) {
	if intent.Action == strategy.Sell {
		return e.broker.PlaceSellOrder(ctx, symbol, intent.Qty)
	}
	return e.broker.PlaceBuyOrder(ctx, symbol, intent.Qty)
}

// record persists the trade and runs the post-trade side effects.
func (e *Engine) record(ctx context.Context, symbol string, price float64, order broker.OrderRef, session models.MarketSession) error {
	record := models.TradeRecord{
		Symbol:        symbol,
		Price:         price,
		Quantity:      order.Qty,
		Action:        order.Side,
		Timestamp:     e.now().UTC(),
		OrderID:       order.ID,
		OrderStatus:   order.Status,
		MarketSession: session,
	}
	if err := e.history.Append(ctx, record); err != nil {
		e.log.Error("save trade record failed", zap.String("symbol", symbol), zap.String("order_id", order.ID), zap.Error(err))
		return fmt.Errorf("engine.record %s: %w", symbol, err)
	}

	if e.positions != nil {
		if _, err := e.positions.Refresh(ctx, symbol); err != nil {
			e.log.Warn("refresh position failed", zap.String("symbol", symbol), zap.Error(err))
		}
	}
	e.notifier.Sendf("%s %s x%d @ %.2f (%s, order %s)", record.Action, symbol, record.Quantity, price, session, order.ID)
	return nil
}
