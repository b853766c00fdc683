package fetcher

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"fx-signal-alerts/internal/rates"
)

// Aggregator tries providers in priority order and falls back to the static
// demo snapshot when every source fails. Attempts are sequential, never
// concurrent, and no provider is retried within one FetchSnapshot call.
type Aggregator struct {
	providers []Provider
	reference string
	logger    zerolog.Logger
}

// NewAggregator builds an aggregator over the ranked provider list.
func NewAggregator(providers []Provider, reference string, logger zerolog.Logger) *Aggregator {
	if reference == "" {
		reference = rates.ReferenceCurrency
	}
	return &Aggregator{
		providers: providers,
		reference: reference,
		logger:    logger.With().Str("component", "rate_aggregator").Logger(),
	}
}

// FetchSnapshot returns the first valid provider snapshot, or the offline
// fallback snapshot when all providers fail. Only context cancellation is
// surfaced as an error: a fully degraded fetch still yields data, flagged by
// its source id.
func (a *Aggregator) FetchSnapshot(ctx context.Context) (rates.Snapshot, error) {
	for _, provider := range a.providers {
		if err := ctx.Err(); err != nil {
			return rates.Snapshot{}, err
		}

		snap, err := provider.Fetch(ctx)
		if err != nil {
			a.logger.Warn().Err(err).Str("provider", provider.Name()).Msg("provider attempt failed, trying next")
			continue
		}

		a.logger.Info().Str("provider", provider.Name()).Int("currencies", len(snap.Rates)).Msg("snapshot acquired")
		return snap, nil
	}

	a.logger.Warn().Msg("all providers failed, serving offline demo snapshot")
	return a.fallbackSnapshot(), nil
}

// fallbackSnapshot returns the deterministic approximate-rate table. The
// OfflineSource tag lets downstream consumers flag the data as non-live.
func (a *Aggregator) fallbackSnapshot() rates.Snapshot {
	return rates.Snapshot{
		Reference: a.reference,
		Rates: map[string]decimal.Decimal{
			"USD": decimal.RequireFromString("0.00671"),
			"EUR": decimal.RequireFromString("0.00617"),
			"GBP": decimal.RequireFromString("0.00528"),
			"AUD": decimal.RequireFromString("0.01025"),
			"CHF": decimal.RequireFromString("0.00586"),
			"CAD": decimal.RequireFromString("0.00924"),
		},
		Source:    rates.OfflineSource,
		FetchedAt: time.Now().UTC(),
	}
}
