package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/bkviswam/tradeplatform/internal/models"
)

// Seed is the bootstrap data written into the stores on start.
type Seed struct {
	Instruments []models.Instrument     `yaml:"instruments"`
	Strategies  []models.StrategyConfig `yaml:"strategies"`
}

// DefaultSeed has one config per session and no instruments.
func DefaultSeed(env models.Environment) Seed {
	seed := Seed{}
	for _, session := range models.MarketSessions {
		cfg := models.NewStrategyConfig(env, session)
		seed.Strategies = append(seed.Strategies, cfg)
	}
	return seed
}

// NewSeed reads cfg.SeedPath, or returns DefaultSeed when it is empty.
func NewSeed(cfg Config) (Seed, error) {
	if cfg.SeedPath == "" {
		return DefaultSeed(cfg.Environment), nil
	}
	return LoadSeed(cfg.SeedPath, cfg.Environment)
}

// LoadSeed parses a seed file. Strategies without an environment are scoped
// to env and unset tunables take the entity defaults.
func LoadSeed(path string, env models.Environment) (Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, fmt.Errorf("read seed %s: %w", path, err)
	}
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return Seed{}, fmt.Errorf("parse seed %s: %w", path, err)
	}

	for i, cfg := range seed.Strategies {
		if cfg.Environment == "" {
			cfg.Environment = env
		}
		session, err := models.ParseMarketSession(string(cfg.MarketSession))
		if err != nil {
			return Seed{}, fmt.Errorf("seed %s: %w", path, err)
		}
		cfg.MarketSession = session
		defaults := models.NewStrategyConfig(cfg.Environment, session)
		if cfg.Threshold == 0 {
			cfg.Threshold = defaults.Threshold
		}
		if cfg.MaxRounds == 0 {
			cfg.MaxRounds = defaults.MaxRounds
		}
		if cfg.InitialQuantity == 0 {
			cfg.InitialQuantity = defaults.InitialQuantity
		}
		if cfg.FrequencyMs == 0 {
			cfg.FrequencyMs = defaults.FrequencyMs
		}
		if cfg.PriceChangePercentage == 0 {
			cfg.PriceChangePercentage = defaults.PriceChangePercentage
		}
		if err := cfg.Validate(); err != nil {
			return Seed{}, fmt.Errorf("seed %s: %w", path, err)
		}
		seed.Strategies[i] = cfg
	}
	for _, instrument := range seed.Instruments {
		if instrument.Symbol == "" {
			return Seed{}, fmt.Errorf("seed %s: instrument without symbol", path)
		}
	}
	return seed, nil
}
