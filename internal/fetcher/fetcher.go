package fetcher

import (
	"context"
	"errors"

	"fx-signal-alerts/internal/rates"
)

// Provider retrieves one normalized rate snapshot from a single source. A
// provider bounds its own attempt with a timeout and treats HTTP failures,
// malformed bodies, and empty rate sets as errors.
type Provider interface {
	Name() string
	Fetch(ctx context.Context) (rates.Snapshot, error)
}

// ErrEmptyRates marks a response that parsed but carried no usable rates.
var ErrEmptyRates = errors.New("fetcher: provider returned no rates")
