// Package state keeps the latest known position for every traded symbol.
package state

import (
	"os"
	"sort"
	"sync"
	"time"

	"github.com/bytedance/sonic"
)

type Position struct {
	Symbol        string    `json:"symbol"`
	Qty           int       `json:"qty"`
	AvgEntry      float64   `json:"avg_entry"`
	LastPrice     float64   `json:"last_price"`
	MarketValue   float64   `json:"market_value"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Valued fills the derived fields from qty, entry and the given price.
func (p Position) Valued(price float64, at time.Time) Position {
	p.LastPrice = price
	p.MarketValue = float64(p.Qty) * price
	p.UnrealizedPnL = float64(p.Qty) * (price - p.AvgEntry)
	p.UpdatedAt = at
	return p
}

type Store struct {
	mu        sync.RWMutex
	positions map[string]Position
}

func NewStore() *Store {
	return &Store{positions: map[string]Position{}}
}

func (s *Store) Get(symbol string) (Position, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.positions[symbol]
	return p, ok
}

// Positions returns a copy ordered by symbol.
func (s *Store) Positions() []Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Position, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func (s *Store) Update(position Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[position.Symbol] = position
}

func (s *Store) Save(path string) error {
	data, err := sonic.ConfigStd.MarshalIndent(s.Positions(), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (s *Store) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var positions []Position
	if err := sonic.Unmarshal(data, &positions); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions = make(map[string]Position, len(positions))
	for _, p := range positions {
		s.positions[p.Symbol] = p
	}
	return nil
}
