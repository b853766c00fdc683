package risk

import (
	"math"
	"sync"
)

// LotSize is the notional currency units per standard lot. The source
// material disagreed between 1,000 and 100,000; the standard FX lot of
// 100,000 is canonical here.
const LotSize = 100_000

// Position size is clamped to this window regardless of what the raw formula
// produces. The ceiling is a safety bound, not a rounding artifact.
const (
	MinLots = 0.01
	MaxLots = 10.0
)

// Settings hold the account parameters every sizing computation reads.
// RiskFraction is a fraction of capital (0.02 = risk 2% per trade).
type Settings struct {
	Capital      float64 `mapstructure:"capital"`
	RiskFraction float64 `mapstructure:"risk_fraction"`
	Leverage     float64 `mapstructure:"leverage"`
}

// Plan is the risk-sized trade recommendation derived from a price, a stop
// level, and the current Settings.
type Plan struct {
	OptimalLots    float64 `json:"optimalLots"`
	MaxLossAmount  float64 `json:"maxLossAmount"`
	RequiredMargin float64 `json:"requiredMargin"`
}

// Size converts capital, risk tolerance, and leverage into a clamped position
// size and margin requirement. A zero stop distance substitutes the minimum
// lot size instead of dividing by zero.
func Size(currentPrice, stopLossPrice float64, settings Settings) Plan {
	maxLoss := settings.Capital * settings.RiskFraction
	stopDistance := math.Abs(currentPrice - stopLossPrice)

	lots := MinLots
	if stopDistance > 0 {
		lots = maxLoss / (stopDistance * LotSize)
	}
	lots = clampLots(lots)

	margin := 0.0
	if settings.Leverage > 0 {
		margin = currentPrice * LotSize * lots / settings.Leverage
	}

	return Plan{
		OptimalLots:    lots,
		MaxLossAmount:  maxLoss,
		RequiredMargin: margin,
	}
}

func clampLots(lots float64) float64 {
	if lots < MinLots {
		return MinLots
	}
	if lots > MaxLots {
		return MaxLots
	}
	return lots
}

// SettingsStore serializes access to the process-wide Settings so every
// sizing computation observes a consistent snapshot while user updates land.
type SettingsStore struct {
	mu       sync.RWMutex
	settings Settings
}

// NewSettingsStore seeds the store with initial settings.
func NewSettingsStore(initial Settings) *SettingsStore {
	return &SettingsStore{settings: initial}
}

// Get returns the current settings snapshot.
func (s *SettingsStore) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Set replaces the settings in one step.
func (s *SettingsStore) Set(settings Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
}
