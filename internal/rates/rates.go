package rates

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReferenceCurrency is the base of every provider snapshot: all rates are
// expressed as units of foreign currency per 1 JPY.
const ReferenceCurrency = "JPY"

// PairSpec is an immutable descriptor of a monitored currency pair.
type PairSpec struct {
	ID    string `mapstructure:"id"`
	Base  string `mapstructure:"base"`
	Quote string `mapstructure:"quote"`
	Name  string `mapstructure:"name"`
}

// Snapshot holds one normalized provider response: currency code to units of
// that currency per 1 unit of the reference currency.
type Snapshot struct {
	Reference string
	Rates     map[string]decimal.Decimal
	Source    string
	FetchedAt time.Time
}

// Live reports whether the snapshot came from a real provider rather than
// the offline fallback table.
func (s Snapshot) Live() bool {
	return s.Source != "" && s.Source != OfflineSource
}

// OfflineSource tags the deterministic fallback snapshot so consumers can
// flag the data as non-live.
const OfflineSource = "offline-demo"

// DefaultPairs returns the monitored pair table.
func DefaultPairs() []PairSpec {
	return []PairSpec{
		{ID: "USD_JPY", Base: "USD", Quote: "JPY", Name: "USD/JPY"},
		{ID: "EUR_JPY", Base: "EUR", Quote: "JPY", Name: "EUR/JPY"},
		{ID: "GBP_JPY", Base: "GBP", Quote: "JPY", Name: "GBP/JPY"},
		{ID: "AUD_JPY", Base: "AUD", Quote: "JPY", Name: "AUD/JPY"},
		{ID: "EUR_USD", Base: "EUR", Quote: "USD", Name: "EUR/USD"},
		{ID: "GBP_USD", Base: "GBP", Quote: "USD", Name: "GBP/USD"},
	}
}

// Derive computes the pair quote from a snapshot. Pairs quoted in the
// reference currency use the reciprocal of the base rate; cross pairs use the
// quote/base ratio. The asymmetry encodes which currency prices the pair and
// must not be collapsed into a single formula.
func Derive(pair PairSpec, snap Snapshot) (decimal.Decimal, bool) {
	base, ok := snap.Rates[pair.Base]
	if !ok || base.IsZero() {
		return decimal.Decimal{}, false
	}

	if pair.Quote == snap.Reference {
		return decimal.NewFromInt(1).Div(base), true
	}

	quote, ok := snap.Rates[pair.Quote]
	if !ok || quote.IsZero() {
		return decimal.Decimal{}, false
	}
	return quote.Div(base), true
}

// PercentChange returns the percent move from previous to current. A zero
// previous value yields zero rather than a division error.
func PercentChange(previous, current float64) float64 {
	if previous == 0 {
		return 0
	}
	return (current - previous) / previous * 100
}
