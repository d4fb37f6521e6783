package krakenfeed

import (
	"sync"

	"github.com/shopspring/decimal"
)

// snapshot holds the latest known price per symbol. Writes replace whole
// entries atomically under the lock; reads of different keys never contend
// with each other beyond the shared RWMutex read path.
type snapshot struct {
	mu     sync.RWMutex
	prices map[string]decimal.Decimal
}

func newSnapshot() *snapshot {
	return &snapshot{prices: make(map[string]decimal.Decimal)}
}

func (s *snapshot) set(symbol string, price decimal.Decimal) {
	s.mu.Lock()
	s.prices[symbol] = price
	s.mu.Unlock()
}

func (s *snapshot) get(symbol string) (decimal.Decimal, bool) {
	s.mu.RLock()
	price, ok := s.prices[symbol]
	s.mu.RUnlock()
	return price, ok
}

// all returns an independent copy; callers can iterate it freely while ticks
// keep arriving.
func (s *snapshot) all() map[string]decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]decimal.Decimal, len(s.prices))
	for symbol, price := range s.prices {
		out[symbol] = price
	}
	return out
}
