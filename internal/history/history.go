package history

import (
	"sync"
	"time"
)

// DefaultCap bounds per-pair history length. Constrained deployments may
// configure the smaller ConstrainedCap instead.
const (
	DefaultCap     = 100
	ConstrainedCap = 50
)

// PricePoint is one observed rate for a pair.
type PricePoint struct {
	Rate      float64
	Timestamp time.Time
}

// Store keeps a bounded, append-only price series per pair. Appends evict the
// oldest point first once the cap is reached; reads return an isolated copy so
// indicator computation never observes a partial append.
type Store struct {
	mu     sync.RWMutex
	cap    int
	series map[string][]PricePoint
}

// NewStore constructs a Store with the given cap. Non-positive caps fall back
// to DefaultCap.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCap
	}
	return &Store{
		cap:    capacity,
		series: make(map[string][]PricePoint),
	}
}

// Cap returns the configured per-pair bound.
func (s *Store) Cap() int {
	return s.cap
}

// Append records a new point for the pair, evicting the oldest point when the
// series would exceed the cap.
func (s *Store) Append(pairID string, point PricePoint) {
	s.mu.Lock()
	defer s.mu.Unlock()

	series := append(s.series[pairID], point)
	if len(series) > s.cap {
		series = series[len(series)-s.cap:]
	}
	s.series[pairID] = series
}

// Read returns a copy of the pair's series in insertion order.
func (s *Store) Read(pairID string) []PricePoint {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series := s.series[pairID]
	out := make([]PricePoint, len(series))
	copy(out, series)
	return out
}

// Len returns the current series length for the pair.
func (s *Store) Len(pairID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.series[pairID])
}

// Last returns the most recent point for the pair, if any.
func (s *Store) Last(pairID string) (PricePoint, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series := s.series[pairID]
	if len(series) == 0 {
		return PricePoint{}, false
	}
	return series[len(series)-1], true
}

// Rates extracts the raw rate sequence from a series.
func Rates(series []PricePoint) []float64 {
	rates := make([]float64, len(series))
	for i, point := range series {
		rates[i] = point.Rate
	}
	return rates
}
