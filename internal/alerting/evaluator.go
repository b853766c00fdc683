package alerting

import (
	"context"
	"math"

	"github.com/rs/zerolog"

	"fx-signal-alerts/internal/metrics"
	"fx-signal-alerts/internal/rates"
	"fx-signal-alerts/internal/registry"
)

// DefaultVolatilityPct is the tick-over-tick move that fires a broadcast.
const DefaultVolatilityPct = 0.5

// Evaluator checks the two alert triggers on every new rate.
type Evaluator struct {
	reg           *registry.Registry
	dispatcher    *Dispatcher
	volatilityPct float64
	logger        zerolog.Logger
}

// NewEvaluator constructs an Evaluator. volatilityPct <= 0 falls back to the
// default threshold.
func NewEvaluator(reg *registry.Registry, dispatcher *Dispatcher, volatilityPct float64, logger zerolog.Logger) *Evaluator {
	if volatilityPct <= 0 {
		volatilityPct = DefaultVolatilityPct
	}
	return &Evaluator{
		reg:           reg,
		dispatcher:    dispatcher,
		volatilityPct: volatilityPct,
		logger:        logger.With().Str("component", "alert_evaluator").Logger(),
	}
}

// Evaluate runs both triggers for one pair observation and returns the
// endpoints that reported permanent delivery failure. The caller commits the
// prune after the full cycle completes.
func (e *Evaluator) Evaluate(ctx context.Context, pair rates.PairSpec, previousRate float64, hasPrevious bool, currentRate float64) []string {
	dead := e.evaluateVolatility(ctx, pair, previousRate, hasPrevious, currentRate)
	dead = append(dead, e.evaluateUserAlerts(ctx, pair, currentRate)...)
	return dead
}

// evaluateVolatility broadcasts when the move since the previous stored rate
// reaches the threshold. The first observation of a pair never fires, and
// the check is skipped entirely with zero subscribers.
func (e *Evaluator) evaluateVolatility(ctx context.Context, pair rates.PairSpec, previousRate float64, hasPrevious bool, currentRate float64) []string {
	if !hasPrevious || e.reg.SubscriberCount() == 0 {
		return nil
	}

	change := rates.PercentChange(previousRate, currentRate)
	if math.Abs(change) < e.volatilityPct {
		return nil
	}

	e.logger.Info().Str("pair", pair.ID).Float64("change_pct", change).Msg("volatility threshold crossed")

	dead, err := e.dispatcher.Broadcast(ctx, VolatilityPayload(pair, change, currentRate))
	if err != nil {
		e.logger.Error().Err(err).Str("pair", pair.ID).Msg("volatility broadcast failed")
		return nil
	}
	return dead
}

// evaluateUserAlerts fires every satisfied untriggered alert for the pair
// exactly once. Alerts whose owning subscription is gone are marked
// triggered and skipped silently: subscription and alert lifecycles are
// cleaned up independently.
func (e *Evaluator) evaluateUserAlerts(ctx context.Context, pair rates.PairSpec, currentRate float64) []string {
	var dead []string

	for _, alert := range e.reg.UntriggeredAlerts(pair.ID) {
		satisfied := (alert.Direction == registry.Above && currentRate >= alert.TargetPrice) ||
			(alert.Direction == registry.Below && currentRate <= alert.TargetPrice)
		if !satisfied {
			continue
		}

		// MarkTriggered is the idempotence gate: only the first satisfying
		// observation dispatches.
		if !e.reg.MarkTriggered(ctx, alert.ID) {
			continue
		}
		metrics.AlertsFired.Inc()

		sub, ok := e.reg.FindBySubscriber(alert.SubscriberID)
		if !ok {
			e.logger.Debug().Str("alert", alert.ID).Msg("alert owner unsubscribed, skipping dispatch")
			continue
		}

		e.logger.Info().
			Str("pair", pair.ID).
			Str("alert", alert.ID).
			Float64("target", alert.TargetPrice).
			Float64("rate", currentRate).
			Msg("price alert fired")

		endpoint, err := e.dispatcher.SendTo(ctx, sub, UserAlertPayload(pair, alert, currentRate))
		if err != nil {
			e.logger.Error().Err(err).Str("alert", alert.ID).Msg("alert dispatch failed")
			continue
		}
		if endpoint != "" {
			dead = append(dead, endpoint)
		}
	}
	return dead
}
