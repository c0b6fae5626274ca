package models

import "fmt"

const (
	DefaultThreshold       = 0.05
	DefaultMaxRounds       = 6
	DefaultInitialQuantity = 1
	DefaultFrequencyMs     = int64(60000)

	DefaultPriceChangePercentage = 2.0
)

// StrategyConfig holds the tunables for one (environment, session) scope.
type StrategyConfig struct {
	ID                    int64         `yaml:"-" json:"id,omitempty"`
	Environment           Environment   `yaml:"environment" json:"environment"`
	MarketSession         MarketSession `yaml:"market_session" json:"market_session"`
	Threshold             float64       `yaml:"threshold" json:"threshold"`
	MaxRounds             int           `yaml:"max_rounds" json:"max_rounds"`
	InitialQuantity       int           `yaml:"initial_quantity" json:"initial_quantity"`
	FrequencyMs           int64         `yaml:"frequency_ms" json:"frequency_ms"`
	PriceChangePercentage float64       `yaml:"price_change_percentage" json:"price_change_percentage"`
}

func NewStrategyConfig(env Environment, session MarketSession) StrategyConfig {
	return StrategyConfig{
		Environment:     env,
		MarketSession:   session,
		Threshold:       DefaultThreshold,
		MaxRounds:       DefaultMaxRounds,
		InitialQuantity: DefaultInitialQuantity,
		FrequencyMs:     DefaultFrequencyMs,

		PriceChangePercentage: DefaultPriceChangePercentage,
	}
}

func (c StrategyConfig) Validate() error {
	if c.Environment == "" || c.MarketSession == "" {
		return fmt.Errorf("strategy config: environment and market session are required")
	}
	if c.Threshold <= 0 || c.Threshold > 1 {
		return fmt.Errorf("strategy config %s/%s: threshold must be in (0,1], got %v", c.Environment, c.MarketSession, c.Threshold)
	}
	if c.MaxRounds < 1 {
		return fmt.Errorf("strategy config %s/%s: max rounds must be >= 1, got %d", c.Environment, c.MarketSession, c.MaxRounds)
	}
	if c.InitialQuantity <= 0 {
		return fmt.Errorf("strategy config %s/%s: initial quantity must be > 0, got %d", c.Environment, c.MarketSession, c.InitialQuantity)
	}
	if c.FrequencyMs <= 0 {
		return fmt.Errorf("strategy config %s/%s: frequency must be > 0, got %d", c.Environment, c.MarketSession, c.FrequencyMs)
	}
	if c.PriceChangePercentage <= 0 || c.PriceChangePercentage > 100 {
		return fmt.Errorf("strategy config %s/%s: price change percentage must be in (0,100], got %v", c.Environment, c.MarketSession, c.PriceChangePercentage)
	}
	return nil
}
