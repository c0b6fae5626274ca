package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/bkviswam/tradeplatform/internal/models"
)

type scope struct {
	env     models.Environment
	session models.MarketSession
}

type MemoryConfigStore struct {
	mu      sync.RWMutex
	nextID  int64
	configs map[scope]models.StrategyConfig
}

func NewMemoryConfigStore() *MemoryConfigStore {
	return &MemoryConfigStore{configs: make(map[scope]models.StrategyConfig)}
}

func (s *MemoryConfigStore) Get(ctx context.Context, env models.Environment, session models.MarketSession) (models.StrategyConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.configs[scope{env, session}]
	if !ok {
		return models.StrategyConfig{}, fmt.Errorf("%w: environment=%s session=%s", ErrConfigNotFound, env, session)
	}
	return cfg, nil
}

// Save upserts by (environment, session) scope.
func (s *MemoryConfigStore) Save(ctx context.Context, cfg models.StrategyConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := scope{cfg.Environment, cfg.MarketSession}
	if existing, ok := s.configs[key]; ok {
		cfg.ID = existing.ID
	} else {
		s.nextID++
		cfg.ID = s.nextID
	}
	s.configs[key] = cfg
	return nil
}

type MemoryHistoryStore struct {
	mu      sync.RWMutex
	nextID  int64
	records map[string][]models.TradeRecord
}

func NewMemoryHistoryStore() *MemoryHistoryStore {
	return &MemoryHistoryStore{records: make(map[string][]models.TradeRecord)}
}

func (s *MemoryHistoryStore) LastRecordFor(ctx context.Context, symbol string) (*models.TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := s.records[symbol]
	if len(records) == 0 {
		return nil, nil
	}
	last := records[len(records)-1]
	return &last, nil
}

func (s *MemoryHistoryStore) Append(ctx context.Context, record models.TradeRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	record.ID = s.nextID
	s.records[record.Symbol] = append(s.records[record.Symbol], record)
	return nil
}

// Records returns a copy of the symbol's history, oldest first.
func (s *MemoryHistoryStore) Records(symbol string) []models.TradeRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.TradeRecord, len(s.records[symbol]))
	copy(out, s.records[symbol])
	return out
}

type MemoryInstrumentRegistry struct {
	mu          sync.RWMutex
	instruments map[string]models.Instrument
}

func NewMemoryInstrumentRegistry(instruments ...models.Instrument) *MemoryInstrumentRegistry {
	r := &MemoryInstrumentRegistry{instruments: make(map[string]models.Instrument)}
	for _, instrument := range instruments {
		r.instruments[instrument.Symbol] = instrument
	}
	return r
}

// Register adds the instrument unless the symbol is already known.
func (r *MemoryInstrumentRegistry) Register(ctx context.Context, instrument models.Instrument) error {
	if instrument.Symbol == "" {
		return fmt.Errorf("instrument symbol is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.instruments[instrument.Symbol]; !ok {
		r.instruments[instrument.Symbol] = instrument
	}
	return nil
}

// ListActive returns active instruments sorted by symbol.
func (r *MemoryInstrumentRegistry) ListActive(ctx context.Context) ([]models.Instrument, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Instrument, 0, len(r.instruments))
	for _, instrument := range r.instruments {
		if instrument.Active {
			out = append(out, instrument)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}
